package swarm

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

// AddrResolver 返回节点的可拨号地址
type AddrResolver func(ctx context.Context, p identity.PeerID) []ma.Multiaddr

// SetAddrResolver 设置 DialPeer 的地址来源
func (s *Swarm) SetAddrResolver(r AddrResolver) {
	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

// Dial 异步拨号，结果以 ConnectionEstablished 或 OutgoingConnectionError 事件返回
func (s *Swarm) Dial(addr ma.Multiaddr) {
	if s.closed.Load() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
		defer cancel()
		if _, err := s.dialAddr(ctx, addr, ""); err != nil {
			log.Debug("拨号失败", "addr", addr, "err", err)
			s.emit(Event{Kind: OutgoingConnectionError, Addr: addr, Err: err})
		}
	}()
}

// DialPeer 同步获取到节点的连接，优先复用已有连接
func (s *Swarm) DialPeer(ctx context.Context, p identity.PeerID) (*Conn, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	if p == s.localPeer {
		return nil, ErrDialSelf
	}
	if c := s.bestConn(p); c != nil {
		return c, nil
	}

	s.mu.RLock()
	resolver := s.resolver
	s.mu.RUnlock()
	var addrs []ma.Multiaddr
	if resolver != nil {
		addrs = resolver(ctx, p)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddresses, p.ShortString())
	}

	var errs error
	for _, addr := range addrs {
		c, err := s.dialAddr(ctx, addr, p)
		if err == nil {
			return c, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("dial %s: %w", p.ShortString(), errs)
}

// DialAddr 同步拨号单个地址，expected 为空时不校验对端
func (s *Swarm) DialAddr(ctx context.Context, addr ma.Multiaddr, expected identity.PeerID) (*Conn, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	return s.dialAddr(ctx, addr, expected)
}

func (s *Swarm) dialAddr(ctx context.Context, addr ma.Multiaddr, expected identity.PeerID) (*Conn, error) {
	t := s.transportFor(addr)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, addr)
	}
	tc, err := t.Dial(ctx, addr, expected)
	if err != nil {
		s.metrics.ConnError(transport.DirOutbound.String())
		return nil, err
	}
	return s.addConn(tc)
}

// NewStream 打开到节点的流，必要时先拨号
func (s *Swarm) NewStream(ctx context.Context, p identity.PeerID, protocols ...string) (*Stream, error) {
	c, err := s.DialPeer(ctx, p)
	if err != nil {
		return nil, err
	}
	return c.NewStream(ctx, protocols...)
}
