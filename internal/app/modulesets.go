package app

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/behaviour"
	"github.com/dep2p/go-dep2p-relay/internal/core/eventloop"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/core/security/noise"
	tlssec "github.com/dep2p/go-dep2p-relay/internal/core/security/tls"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport/quic"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport/tcp"
	"github.com/dep2p/go-dep2p-relay/internal/core/upgrader"
)

// ============================================================================
//                              模块集合
// ============================================================================

// FoundationModules 基础层 (Tier 1)：身份与指标
func FoundationModules() fx.Option {
	return fx.Module("foundation",
		fx.Provide(provideIdentity, provideMetrics),
	)
}

// TransportModules 传输层 (Tier 2)：安全通道、多路复用、TCP/QUIC、Swarm
func TransportModules() fx.Option {
	return fx.Module("transport",
		fx.Provide(provideUpgrader, provideTransports, provideSwarm),
	)
}

// BehaviourModules 行为层 (Tier 3)：Relay + Ping + Identify
func BehaviourModules() fx.Option {
	return fx.Module("behaviour",
		fx.Provide(provideBehaviour),
	)
}

// LoopModules 事件循环 (Tier 4)
func LoopModules() fx.Option {
	return fx.Module("eventloop",
		fx.Provide(provideLoop, newRuntime),
		fx.Invoke(registerLoop),
	)
}

// MonitoringModules 指标 HTTP 端点
func MonitoringModules() fx.Option {
	return fx.Module("monitoring",
		fx.Invoke(registerMetricsServer),
	)
}

// AllModules 中继节点全部模块
func AllModules() fx.Option {
	return fx.Options(
		FoundationModules(),
		TransportModules(),
		BehaviourModules(),
		LoopModules(),
		MonitoringModules(),
	)
}

// ============================================================================
//                              Provider
// ============================================================================

func provideIdentity(cfg *config.Config) (*identity.Identity, error) {
	if cfg.Identity.Seed == nil {
		return nil, fmt.Errorf("identity: %w", config.ErrInvalidConfig)
	}
	return identity.Derive(*cfg.Identity.Seed)
}

func provideMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace)
}

// provideUpgrader 按配置顺序构造安全协议
func provideUpgrader(cfg *config.Config, id *identity.Identity) (*upgrader.Upgrader, error) {
	timeout := cfg.Security.HandshakeTimeout.Duration()

	var secs []security.SecureTransport
	for _, name := range cfg.Security.Protocols {
		switch name {
		case config.SecurityNoise:
			nt, err := noise.New(id, timeout)
			if err != nil {
				return nil, err
			}
			secs = append(secs, nt)
		case config.SecurityTLS:
			tlsID, err := tlssec.NewIdentity(id)
			if err != nil {
				return nil, err
			}
			tt, err := tlssec.New(id, tlsID, timeout)
			if err != nil {
				return nil, err
			}
			secs = append(secs, tt)
		}
	}

	mx, err := muxer.NewTransport(cfg.Muxer)
	if err != nil {
		return nil, err
	}
	return upgrader.New(secs, []muxer.Multiplexer{mx}, cfg.Transport.NegotiateTimeout.Duration())
}

func provideTransports(cfg *config.Config, id *identity.Identity, u *upgrader.Upgrader) ([]transport.Transport, error) {
	transports := []transport.Transport{tcp.New(u, cfg.Transport.DialTimeout.Duration())}
	if cfg.Transport.EnableQUIC {
		tlsID, err := tlssec.NewIdentity(id)
		if err != nil {
			return nil, err
		}
		transports = append(transports, quic.New(id, tlsID, cfg.Security.HandshakeTimeout.Duration()))
	}
	return transports, nil
}

type swarmInput struct {
	fx.In

	LC         fx.Lifecycle
	Config     *config.Config
	Identity   *identity.Identity
	Transports []transport.Transport
	Metrics    *metrics.Metrics
}

func provideSwarm(in swarmInput) *swarm.Swarm {
	sw := swarm.New(in.Identity.PeerID(), in.Transports,
		swarm.WithConfig(swarm.Config{
			DialTimeout:      in.Config.Transport.DialTimeout.Duration(),
			NegotiateTimeout: in.Config.Transport.NegotiateTimeout.Duration(),
		}),
		swarm.WithMetrics(in.Metrics))
	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error { return sw.Close() },
	})
	return sw
}

type behaviourInput struct {
	fx.In

	LC       fx.Lifecycle
	Config   *config.Config
	Identity *identity.Identity
	Swarm    *swarm.Swarm
	Metrics  *metrics.Metrics
}

func provideBehaviour(in behaviourInput) (*behaviour.Set, error) {
	set, err := behaviour.New(in.Swarm, in.Identity, behaviour.NewConfig(in.Config),
		behaviour.WithMetrics(in.Metrics))
	if err != nil {
		return nil, err
	}
	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error { return set.Close() },
	})
	return set, nil
}

func provideLoop(cfg *config.Config, sw *swarm.Swarm, set *behaviour.Set, m *metrics.Metrics) (*eventloop.Loop, error) {
	loop, err := eventloop.New(sw, set, cfg.EventLoop,
		eventloop.WithMetrics(m),
		eventloop.WithCloseUnresponsive(cfg.Ping.CloseUnresponsive))
	if err != nil {
		return nil, err
	}
	// 没有现成连接时，按事件循环记录的外部地址拨号
	sw.SetAddrResolver(func(ctx context.Context, p identity.PeerID) []ma.Multiaddr {
		addrs, _ := loop.ExternalAddrs(ctx, p)
		return addrs
	})
	return loop, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

type loopInput struct {
	fx.In

	LC       fx.Lifecycle
	Config   *config.Config
	Swarm    *swarm.Swarm
	Loop     *eventloop.Loop
	Runtime  *Runtime
	Shutdown fx.Shutdowner
}

// registerLoop 启动时绑定监听地址并在后台运行事件循环
//
// 监听失败（BindError）使 fx 启动失败；循环因致命错误退出时请求关闭应用。
func registerLoop(in loopInput) {
	ctx, cancel := context.WithCancel(context.Background())
	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			addrs, err := transport.ListenAddrsFor(in.Config.Transport.UseIPv6,
				in.Config.Transport.Port, in.Config.Transport.EnableQUIC)
			if err != nil {
				cancel()
				return err
			}
			if err := in.Swarm.Listen(addrs...); err != nil {
				cancel()
				return err
			}
			go func() {
				err := in.Loop.Run(ctx)
				in.Runtime.finish(err)
				if err != nil {
					_ = in.Shutdown.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-in.Loop.Done():
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

type metricsServerInput struct {
	fx.In

	LC      fx.Lifecycle
	Config  *config.Config
	Metrics *metrics.Metrics
}

// registerMetricsServer 配置了 listen_addr 时暴露 /metrics
func registerMetricsServer(in metricsServerInput) {
	if in.Config.Metrics.ListenAddr == "" {
		return
	}
	var srv *metrics.Server
	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s, err := metrics.Listen(in.Config.Metrics.ListenAddr, in.Metrics)
			if err != nil {
				return err
			}
			srv = s
			go srv.Serve()
			log.Info("指标端点已启动", "addr", srv.Addr().String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
