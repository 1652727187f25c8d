package swarm

import (
	"context"
	"sync"
	"sync/atomic"

	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("swarm")

// StreamHandler 入站流处理器，负责关闭流
type StreamHandler func(*Stream)

// Swarm 连接群管理
type Swarm struct {
	localPeer identity.PeerID
	cfg       Config
	metrics   *metrics.Metrics
	resolver  AddrResolver

	transports []transport.Transport

	mu        sync.RWMutex
	conns     map[identity.PeerID][]*Conn
	listeners map[*listenerEntry]struct{}

	handlersMu sync.RWMutex
	handlers   map[string]StreamHandler
	mux        *mss.MultistreamMuxer[string]

	events     chan Event
	nextConnID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New 创建 Swarm，transports 按拨号优先级排列
func New(localPeer identity.PeerID, transports []transport.Transport, opts ...Option) *Swarm {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		localPeer:  localPeer,
		cfg:        DefaultConfig(),
		transports: transports,
		conns:      make(map[identity.PeerID][]*Conn),
		listeners:  make(map[*listenerEntry]struct{}),
		handlers:   make(map[string]StreamHandler),
		mux:        mss.NewMultistreamMuxer[string](),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Event, s.cfg.EventBuffer)
	return s
}

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() identity.PeerID { return s.localPeer }

// Events 事件 channel，Swarm 关闭后不再有新事件
func (s *Swarm) Events() <-chan Event { return s.events }

// emit 投递事件，Swarm 关闭时丢弃
func (s *Swarm) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// SetStreamHandler 注册协议处理器，重复注册覆盖旧值
func (s *Swarm) SetStreamHandler(protocol string, h StreamHandler) {
	s.handlersMu.Lock()
	s.handlers[protocol] = h
	s.handlersMu.Unlock()
	s.mux.AddHandler(protocol, nil)
	log.Debug("注册协议处理器", "protocol", protocol)
}

// RemoveStreamHandler 注销协议处理器
func (s *Swarm) RemoveStreamHandler(protocol string) {
	s.handlersMu.Lock()
	delete(s.handlers, protocol)
	s.handlersMu.Unlock()
	s.mux.RemoveHandler(protocol)
}

// Protocols 已注册的协议
func (s *Swarm) Protocols() []string {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	protos := make([]string, 0, len(s.handlers))
	for p := range s.handlers {
		protos = append(protos, p)
	}
	return protos
}

func (s *Swarm) handler(protocol string) StreamHandler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[protocol]
}

// Peers 返回已连接的节点
func (s *Swarm) Peers() []identity.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peers := make([]identity.PeerID, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	return peers
}

// Conns 返回全部连接
func (s *Swarm) Conns() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*Conn
	for _, cs := range s.conns {
		conns = append(conns, cs...)
	}
	return conns
}

// ConnsToPeer 返回到指定节点的连接副本
func (s *Swarm) ConnsToPeer(p identity.PeerID) []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.conns[p]
	if len(cs) == 0 {
		return nil
	}
	out := make([]*Conn, len(cs))
	copy(out, cs)
	return out
}

// bestConn 返回到节点的第一个未关闭连接
func (s *Swarm) bestConn(p identity.PeerID) *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns[p] {
		if !c.IsClosed() {
			return c
		}
	}
	return nil
}

// ClosePeer 关闭到节点的全部连接
func (s *Swarm) ClosePeer(p identity.PeerID) error {
	var err error
	for _, c := range s.ConnsToPeer(p) {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// addConn 登记已升级连接并启动后台协程
func (s *Swarm) addConn(tc transport.CapableConn) (*Conn, error) {
	if tc.RemotePeer() == s.localPeer {
		_ = tc.Close()
		return nil, ErrDialSelf
	}

	c := &Conn{CapableConn: tc, id: s.nextConnID.Add(1), swarm: s}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = tc.Close()
		return nil, ErrSwarmClosed
	}
	p := tc.RemotePeer()
	s.conns[p] = append(s.conns[p], c)
	n := len(s.conns[p])
	s.mu.Unlock()

	s.metrics.ConnOpened(tc.Direction().String())
	log.Info("连接已建立",
		"peer", p.ShortString(),
		"direction", tc.Direction(),
		"remote", tc.RemoteMultiaddr(),
		"security", tc.Security(),
		"muxer", tc.Muxer())
	s.emit(Event{Kind: ConnectionEstablished, Peer: p, Conn: c, Addr: tc.RemoteMultiaddr(), NumEstablished: n})

	s.wg.Add(2)
	go s.watchConn(c)
	go s.acceptStreams(c)
	return c, nil
}

// watchConn 会话关闭后移出连接表
func (s *Swarm) watchConn(c *Conn) {
	defer s.wg.Done()
	<-c.CloseChan()

	p := c.RemotePeer()
	s.mu.Lock()
	cs := s.conns[p]
	for i, other := range cs {
		if other == c {
			cs = append(cs[:i], cs[i+1:]...)
			break
		}
	}
	if len(cs) == 0 {
		delete(s.conns, p)
	} else {
		s.conns[p] = cs
	}
	n := len(cs)
	s.mu.Unlock()

	s.metrics.ConnClosed(c.Direction().String())
	log.Info("连接已关闭", "peer", p.ShortString(), "connID", c.id, "remaining", n)
	s.emit(Event{Kind: ConnectionClosed, Peer: p, Conn: c, Addr: c.RemoteMultiaddr(), NumEstablished: n})
}

// Close 关闭监听器、连接与传输
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Info("关闭 Swarm")

	var err error
	s.mu.Lock()
	entries := make([]*listenerEntry, 0, len(s.listeners))
	for e := range s.listeners {
		entries = append(entries, e)
	}
	var conns []*Conn
	for _, cs := range s.conns {
		conns = append(conns, cs...)
	}
	s.mu.Unlock()

	for _, e := range entries {
		err = multierr.Append(err, e.close())
	}
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	s.cancel()
	for _, t := range s.transports {
		err = multierr.Append(err, t.Close())
	}
	s.wg.Wait()
	return err
}
