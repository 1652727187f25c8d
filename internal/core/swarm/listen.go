package swarm

import (
	"errors"
	"fmt"
	"sync/atomic"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

// listenerEntry 一个运行中的监听器
type listenerEntry struct {
	l       transport.Listener
	addrs   []ma.Multiaddr
	closing atomic.Bool
}

func (e *listenerEntry) close() error {
	e.closing.Store(true)
	return e.l.Close()
}

// Listen 在全部地址上监听
//
// 任何一个地址绑定失败都返回错误（*transport.BindError），
// 此前已成功的监听器保持运行，由 Close 统一关闭。
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if len(addrs) == 0 {
		return ErrNoListenAddrs
	}
	for _, addr := range addrs {
		if err := s.listen(addr); err != nil {
			log.Error("监听失败", "addr", addr, "err", err)
			return err
		}
	}
	return nil
}

func (s *Swarm) listen(addr ma.Multiaddr) error {
	t := s.transportFor(addr)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrNoTransport, addr)
	}
	l, err := t.Listen(addr)
	if err != nil {
		return err
	}

	e := &listenerEntry{l: l, addrs: expandWildcard(l.Multiaddr())}
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = l.Close()
		return ErrSwarmClosed
	}
	s.listeners[e] = struct{}{}
	s.mu.Unlock()

	for _, a := range e.addrs {
		log.Info("监听地址可用", "addr", a)
		s.emit(Event{Kind: NewListenAddr, Addr: a, Listener: l.Multiaddr()})
	}

	s.wg.Add(1)
	go s.acceptLoop(e)
	return nil
}

// acceptLoop 接受已升级连接，监听器关闭后发出 ListenerClosed
func (s *Swarm) acceptLoop(e *listenerEntry) {
	defer s.wg.Done()

	var closeErr error
	for {
		c, err := e.l.Accept()
		if err != nil {
			var ue *transport.UpgradeError
			if errors.As(err, &ue) {
				s.metrics.ConnError(transport.DirInbound.String())
				log.Debug("入站连接升级失败", "remote", ue.Remote, "err", ue.Err)
				s.emit(Event{Kind: IncomingConnection, Addr: ue.Remote, Listener: e.l.Multiaddr()})
				s.emit(Event{Kind: IncomingConnectionError, Addr: ue.Remote, Listener: e.l.Multiaddr(), Err: ue.Err})
				continue
			}
			if !e.closing.Load() && !s.closed.Load() {
				closeErr = err
			}
			break
		}

		s.emit(Event{Kind: IncomingConnection, Addr: c.RemoteMultiaddr(), Listener: e.l.Multiaddr()})
		if _, err := s.addConn(c); err != nil {
			log.Debug("丢弃入站连接", "remote", c.RemoteMultiaddr(), "err", err)
			s.emit(Event{Kind: IncomingConnectionError, Addr: c.RemoteMultiaddr(), Listener: e.l.Multiaddr(), Err: err})
		}
	}

	_ = e.l.Close()
	s.mu.Lock()
	delete(s.listeners, e)
	remaining := len(s.listeners)
	s.mu.Unlock()

	for _, a := range e.addrs {
		s.emit(Event{Kind: ExpiredListenAddr, Addr: a, Listener: e.l.Multiaddr()})
	}
	if closeErr != nil {
		log.Error("监听器异常关闭", "addr", e.l.Multiaddr(), "err", closeErr)
	} else {
		log.Info("监听器已关闭", "addr", e.l.Multiaddr())
	}
	s.emit(Event{Kind: ListenerClosed, Listener: e.l.Multiaddr(), Err: closeErr, RemainingListeners: remaining})
}

// ListenAddrs 返回全部监听地址，通配地址已展开
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ma.Multiaddr
	for e := range s.listeners {
		out = append(out, e.addrs...)
	}
	return out
}

// transportFor 选择能处理地址的第一个传输
func (s *Swarm) transportFor(addr ma.Multiaddr) transport.Transport {
	for _, t := range s.transports {
		if t.CanDial(addr) {
			return t
		}
	}
	return nil
}

// expandWildcard 把 0.0.0.0 / :: 展开为同族的各接口地址
func expandWildcard(addr ma.Multiaddr) []ma.Multiaddr {
	if !manet.IsIPUnspecified(addr) {
		return []ma.Multiaddr{addr}
	}
	first, rest := ma.SplitFirst(addr)
	if first == nil {
		return []ma.Multiaddr{addr}
	}
	ifaces, err := manet.InterfaceMultiaddrs()
	if err != nil {
		log.Warn("读取网卡地址失败", "err", err)
		return []ma.Multiaddr{addr}
	}

	var out []ma.Multiaddr
	for _, ia := range ifaces {
		c, _ := ma.SplitFirst(ia)
		if c == nil || c.Protocol().Code != first.Protocol().Code {
			continue
		}
		if rest != nil {
			out = append(out, ia.Encapsulate(rest))
		} else {
			out = append(out, ia)
		}
	}
	if len(out) == 0 {
		return []ma.Multiaddr{addr}
	}
	return out
}
