package behaviour

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-dep2p-relay/internal/core/relay"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("behaviour")

// DefaultEventBuffer 事件通道默认容量
const DefaultEventBuffer = 256

// Config 三个行为的配置
type Config struct {
	Relay    config.RelayConfig
	Ping     config.PingConfig
	Identify config.IdentifyConfig
}

// NewConfig 从节点配置中取出行为配置
func NewConfig(cfg *config.Config) Config {
	return Config{Relay: cfg.Relay, Ping: cfg.Ping, Identify: cfg.Identify}
}

// Option 行为集选项
type Option func(*Set)

// WithClock 替换探测与中继使用的时钟
func WithClock(c clock.Clock) Option {
	return func(s *Set) { s.clock = c }
}

// WithMetrics 记录中继指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Set) { s.metrics = m }
}

// WithEventBuffer 设置事件通道容量
func WithEventBuffer(n int) Option {
	return func(s *Set) { s.buffer = n }
}

// connState 单个连接上的行为状态
type connState struct {
	conn       *swarm.Conn
	stopPing   context.CancelFunc
	identified atomic.Bool
}

// ============================================================================
//                              Set
// ============================================================================

// Set 行为集
type Set struct {
	sw      *swarm.Swarm
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics
	buffer  int

	relay    *relay.Service
	identify *identify.Service

	events chan Event

	mu    sync.Mutex
	conns map[uint64]*connState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建行为集并在 sw 上注册协议处理器
func New(sw *swarm.Swarm, id *identity.Identity, cfg Config, opts ...Option) (*Set, error) {
	s := &Set{
		sw:     sw,
		cfg:    cfg,
		clock:  clock.New(),
		buffer: DefaultEventBuffer,
		conns:  make(map[uint64]*connState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Event, s.buffer)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	rs, err := relay.New(sw.LocalPeer(), cfg.Relay, s.openStop,
		func(ev relay.Event) { s.emit(Event{Kind: KindRelay, Relay: &ev}) },
		relay.WithClock(s.clock),
		relay.WithMetrics(s.metrics),
		relay.WithAddrs(sw.ListenAddrs))
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.relay = rs

	s.identify = identify.NewService(id, cfg.Identify, sw.ListenAddrs, sw.Protocols,
		func(ev identify.Event) { s.emit(Event{Kind: KindIdentify, Identify: &ev}) })

	sw.SetStreamHandler(ping.ProtocolID, func(st *swarm.Stream) { ping.Handle(st) })
	sw.SetStreamHandler(identify.ProtocolID, s.identify.Handle)
	sw.SetStreamHandler(identify.ProtocolIDPush, s.identify.HandlePush)
	sw.SetStreamHandler(relay.ProtoHop, func(st *swarm.Stream) {
		s.relay.HandleHop(st, st.RemotePeer(), st.Conn().RemoteMultiaddr())
	})

	log.Debug("行为集已注册", "protocols", sw.Protocols())
	return s, nil
}

// Events 行为事件通道
func (s *Set) Events() <-chan Event { return s.events }

// Relay 中继服务
func (s *Set) Relay() *relay.Service { return s.relay }

// Identify 身份交换服务
func (s *Set) Identify() *identify.Service { return s.identify }

// emit 投递事件，Set 关闭后丢弃
func (s *Set) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// openStop 中继到目标的 stop 流
func (s *Set) openStop(ctx context.Context, p identity.PeerID) (relay.Stream, error) {
	st, err := s.sw.NewStream(ctx, p, relay.ProtoStop)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ============================================================================
//                              连接分派
// ============================================================================

// OnConnectionEstablished 为新连接启动探测并发起身份交换
func (s *Set) OnConnectionEstablished(c *swarm.Conn) {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	cs := &connState{conn: c, stopPing: cancel}

	s.mu.Lock()
	if _, ok := s.conns[c.ID()]; ok {
		s.mu.Unlock()
		cancel()
		return
	}
	s.conns[c.ID()] = cs
	s.mu.Unlock()

	open := func(ctx context.Context) (ping.Stream, error) {
		st, err := c.NewStream(ctx, ping.ProtocolID)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	prober := ping.NewProber(c.RemotePeer(), c.ID(), open, s.cfg.Ping, s.clock,
		func(ev ping.Event) { s.emit(Event{Kind: KindPing, Ping: &ev}) })

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		prober.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		if _, err := s.identify.Identify(ctx, c); err == nil {
			cs.identified.Store(true)
		}
	}()
}

// OnConnectionClosed 停止该连接的探测；节点已无连接时通知中继
func (s *Set) OnConnectionClosed(c *swarm.Conn, numEstablished int) {
	s.mu.Lock()
	cs, ok := s.conns[c.ID()]
	delete(s.conns, c.ID())
	s.mu.Unlock()
	if ok {
		cs.stopPing()
	}

	if numEstablished == 0 {
		// 中继 actor 可能正等待投递事件，不能在事件循环中同步等待
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.relay.PeerDisconnected(c.RemotePeer())
		}()
	}
}

// PushIdentify 向所有已完成身份交换的连接推送本节点记录
func (s *Set) PushIdentify() {
	s.mu.Lock()
	var conns []*swarm.Conn
	for _, cs := range s.conns {
		if cs.identified.Load() {
			conns = append(conns, cs.conn)
		}
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.identify.Push(s.ctx, c); err != nil {
				log.Debug("推送身份记录失败", "peer", c.RemotePeer().ShortString(), "err", err)
			}
		}()
	}
}

// Identified 连接是否已完成身份交换
func (s *Set) Identified(connID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.conns[connID]
	return ok && cs.identified.Load()
}

// NumConns 分派表中的连接数
func (s *Set) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close 停止全部探测与中继服务
func (s *Set) Close() error {
	s.cancel()
	s.mu.Lock()
	for id, cs := range s.conns {
		cs.stopPing()
		delete(s.conns, id)
	}
	s.mu.Unlock()

	err := s.relay.Close()
	s.wg.Wait()
	return err
}
