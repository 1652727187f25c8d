package eventloop

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/behaviour"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("eventloop")

// State 循环状态
type State int32

const (
	// Idle 等待下一个事件
	Idle State = iota
	// Dispatching 正在分派事件
	Dispatching
)

func (s State) String() string {
	if s == Dispatching {
		return "dispatching"
	}
	return "idle"
}

// Option 循环选项
type Option func(*Loop)

// WithMetrics 记录循环指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithCloseUnresponsive 节点无响应时是否关闭连接
func WithCloseUnresponsive(v bool) Option {
	return func(l *Loop) { l.closeUnresponsive = v }
}

// Loop 事件循环
type Loop struct {
	sw      *swarm.Swarm
	set     *behaviour.Set
	metrics *metrics.Metrics

	closeUnresponsive bool

	// 以下字段只由循环协程访问
	external    *swarm.ExternalAddressSet
	listenAddrs []ma.Multiaddr

	state   atomic.Int32
	running atomic.Bool
	reqs    chan func()
	done    chan struct{}
}

// New 创建事件循环
func New(sw *swarm.Swarm, set *behaviour.Set, cfg config.EventLoopConfig, opts ...Option) (*Loop, error) {
	external, err := swarm.NewExternalAddressSet(cfg.MaxExternalPeers, cfg.MaxAddrsPerPeer)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		sw:                sw,
		set:               set,
		external:          external,
		closeUnresponsive: true,
		reqs:              make(chan func()),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run 在 sw 上监听 listenAddrs 并驱动循环
//
// 监听失败返回 *transport.BindError；之后只在 ctx 取消（返回 nil）
// 或所有监听器因错误关闭时返回。
func Run(ctx context.Context, sw *swarm.Swarm, set *behaviour.Set, listenAddrs []ma.Multiaddr,
	cfg config.EventLoopConfig, opts ...Option) error {
	l, err := New(sw, set, cfg, opts...)
	if err != nil {
		return err
	}
	if err := sw.Listen(listenAddrs...); err != nil {
		return err
	}
	return l.Run(ctx)
}

// State 当前状态
func (l *Loop) State() State { return State(l.state.Load()) }

// Done 循环退出后关闭
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run 消费事件直到 ctx 取消或发生致命错误
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.done)

	log.Info("事件循环已启动", "peer", l.sw.LocalPeer().ShortString())
	for {
		select {
		case <-ctx.Done():
			log.Info("事件循环已停止")
			return nil

		case ev := <-l.sw.Events():
			l.state.Store(int32(Dispatching))
			err := l.handleSwarmEvent(ev)
			l.state.Store(int32(Idle))
			if err != nil {
				log.Error("事件循环致命错误", "err", err)
				return err
			}

		case ev := <-l.set.Events():
			l.state.Store(int32(Dispatching))
			l.handleBehaviourEvent(ev)
			l.state.Store(int32(Idle))

		case fn := <-l.reqs:
			fn()
		}
	}
}

// ============================================================================
//                              查询
// ============================================================================

// do 在循环协程中执行 fn
func (l *Loop) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case l.reqs <- func() {
		fn()
		close(finished)
	}:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// ExternalAddrs 返回 p 被观察到的外部地址，最早记录的在前
func (l *Loop) ExternalAddrs(ctx context.Context, p identity.PeerID) ([]ma.Multiaddr, error) {
	var out []ma.Multiaddr
	err := l.do(ctx, func() { out = l.external.Addrs(p) })
	return out, err
}

// ListenAddrs 返回循环已记录的监听地址
func (l *Loop) ListenAddrs(ctx context.Context) ([]ma.Multiaddr, error) {
	var out []ma.Multiaddr
	err := l.do(ctx, func() { out = slices.Clone(l.listenAddrs) })
	return out, err
}

// ============================================================================
//                              分派
// ============================================================================

func (l *Loop) handleSwarmEvent(ev swarm.Event) error {
	l.metrics.LoopEvent(ev.Kind.String())

	switch ev.Kind {
	case swarm.NewListenAddr:
		if !slices.ContainsFunc(l.listenAddrs, ev.Addr.Equal) {
			l.listenAddrs = append(l.listenAddrs, ev.Addr)
			l.set.PushIdentify()
		}
		log.Info("监听地址", "addr", ev.Addr)

	case swarm.ExpiredListenAddr:
		l.listenAddrs = slices.DeleteFunc(l.listenAddrs, ev.Addr.Equal)
		log.Info("监听地址失效", "addr", ev.Addr)

	case swarm.ListenerClosed:
		if ev.Err == nil {
			log.Info("监听器已关闭", "addr", ev.Listener, "remaining", ev.RemainingListeners)
			return nil
		}
		log.Warn("监听器异常关闭", "addr", ev.Listener, "remaining", ev.RemainingListeners, "err", ev.Err)
		if ev.RemainingListeners == 0 {
			return fmt.Errorf("%w: %w", ErrAllListenersClosed, ev.Err)
		}

	case swarm.IncomingConnection:
		log.Debug("入站连接", "local", ev.Addr)

	case swarm.IncomingConnectionError:
		log.Debug("入站连接升级失败", "local", ev.Addr, "err", ev.Err)

	case swarm.ConnectionEstablished:
		log.Debug("分派连接建立",
			"peer", ev.Peer.ShortString(),
			"conn", ev.Conn,
			"established", ev.NumEstablished)
		l.set.OnConnectionEstablished(ev.Conn)

	case swarm.ConnectionClosed:
		log.Debug("分派连接关闭",
			"peer", ev.Peer.ShortString(),
			"conn", ev.Conn,
			"remaining", ev.NumEstablished)
		l.set.OnConnectionClosed(ev.Conn, ev.NumEstablished)

	case swarm.OutgoingConnectionError:
		log.Debug("出站连接失败", "addr", ev.Addr, "err", ev.Err)
	}
	return nil
}

func (l *Loop) handleBehaviourEvent(ev behaviour.Event) {
	l.metrics.LoopEvent(ev.Kind.String())

	switch ev.Kind {
	case behaviour.KindIdentify:
		l.handleIdentify(ev.Identify)
	case behaviour.KindPing:
		l.handlePing(ev.Ping)
	case behaviour.KindRelay:
		r := ev.Relay
		log.Debug("中继事件",
			"kind", r.Kind,
			"peer", r.Peer.ShortString(),
			"src", r.Src.ShortString(),
			"dst", r.Dst.ShortString(),
			"status", r.Status,
			"err", r.Err)
	}
}

func (l *Loop) handleIdentify(ev *identify.Event) {
	l.metrics.Identify(ev.Kind.String())
	if ev.Kind != identify.EventReceived {
		if ev.Err != nil {
			log.Debug("身份交换失败", "peer", ev.Peer.ShortString(), "err", ev.Err)
		}
		return
	}

	info := ev.Info
	if info.ObservedAddr != nil && l.external.Add(l.sw.LocalPeer(), info.ObservedAddr) {
		log.Info("记录本节点外部地址", "addr", info.ObservedAddr, "observer", ev.Peer.ShortString())
	}
	added := 0
	for _, addr := range info.ListenAddrs {
		if l.external.Add(ev.Peer, addr) {
			added++
		}
	}
	if added > 0 {
		log.Debug("记录节点地址", "peer", ev.Peer.ShortString(), "added", added)
	}
	l.metrics.ExternalAddrs(l.external.Len())
}

func (l *Loop) handlePing(ev *ping.Event) {
	switch ev.Kind {
	case ping.EventSuccess:
		l.metrics.PingSuccess(ev.RTT)
	case ping.EventFailure:
		l.metrics.PingFailure()
		log.Debug("探测失败", "peer", ev.Peer.ShortString(), "failures", ev.ConsecutiveFailures, "err", ev.Err)
	case ping.EventUnresponsive:
		l.metrics.PeerUnresponsive()
		log.Warn("节点无响应", "peer", ev.Peer.ShortString(), "failures", ev.ConsecutiveFailures)
		if !l.closeUnresponsive {
			return
		}
		for _, c := range l.sw.ConnsToPeer(ev.Peer) {
			if c.ID() == ev.ConnID {
				_ = c.Close()
			}
		}
	}
}
