package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/behaviour"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm/swarmtest"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

var loopback = ma.StringCast("/ip4/127.0.0.1/tcp/0")

type node struct {
	sw   *swarm.Swarm
	set  *behaviour.Set
	loop *Loop
	errc chan error
}

func testBehaviourConfig() behaviour.Config {
	cfg := behaviour.NewConfig(config.NewConfig())
	cfg.Ping.Interval = config.Duration(50 * time.Millisecond)
	cfg.Ping.Timeout = config.Duration(time.Second)
	cfg.Ping.MaxFailures = 2
	cfg.Identify.Timeout = config.Duration(5 * time.Second)
	return cfg
}

// startNode 创建节点并在后台运行事件循环
func startNode(t *testing.T, seed byte, listen []ma.Multiaddr, opts ...Option) *node {
	t.Helper()
	sw, id := swarmtest.New(t, seed)
	set, err := behaviour.New(sw, id, testBehaviourConfig())
	require.NoError(t, err)
	loop, err := New(sw, set, config.DefaultEventLoopConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, sw.Listen(listen...))

	ctx, cancel := context.WithCancel(context.Background())
	n := &node{sw: sw, set: set, loop: loop, errc: make(chan error, 1)}
	go func() { n.errc <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
		_ = set.Close()
	})
	return n
}

func TestRun_BindError(t *testing.T) {
	a := startNode(t, 1, []ma.Multiaddr{loopback})
	require.Eventually(t, func() bool { return len(a.sw.ListenAddrs()) > 0 }, 5*time.Second, 10*time.Millisecond)

	sw, id := swarmtest.New(t, 2)
	set, err := behaviour.New(sw, id, testBehaviourConfig())
	require.NoError(t, err)
	defer set.Close()

	err = Run(context.Background(), sw, set, a.sw.ListenAddrs(), config.DefaultEventLoopConfig())
	var be *transport.BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, transport.AddressInUse, be.Kind)
}

func TestRun_RecordsListenAddrs(t *testing.T) {
	n := startNode(t, 1, []ma.Multiaddr{loopback})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		addrs, err := n.loop.ListenAddrs(ctx)
		return err == nil && len(addrs) == 1
	}, 5*time.Second, 10*time.Millisecond)
	addrs, err := n.loop.ListenAddrs(ctx)
	require.NoError(t, err)
	assert.True(t, addrs[0].Equal(n.sw.ListenAddrs()[0]))
}

func TestRun_RecordsExternalAddrsFromIdentify(t *testing.T) {
	r := startNode(t, 1, []ma.Multiaddr{loopback})
	c := startNode(t, 2, []ma.Multiaddr{loopback})
	require.Eventually(t, func() bool {
		return len(r.sw.ListenAddrs()) > 0 && len(c.sw.ListenAddrs()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.sw.DialAddr(ctx, r.sw.ListenAddrs()[0], r.sw.LocalPeer())
	require.NoError(t, err)

	// 中继被客户端观察到的地址即其监听地址
	require.Eventually(t, func() bool {
		addrs, err := r.loop.ExternalAddrs(ctx, r.sw.LocalPeer())
		return err == nil && len(addrs) == 1 && addrs[0].Equal(r.sw.ListenAddrs()[0])
	}, 5*time.Second, 20*time.Millisecond)

	// 客户端宣告的监听地址
	require.Eventually(t, func() bool {
		addrs, err := r.loop.ExternalAddrs(ctx, c.sw.LocalPeer())
		return err == nil && len(addrs) == 1 && addrs[0].Equal(c.sw.ListenAddrs()[0])
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRun_ClosesUnresponsivePeer(t *testing.T) {
	r := startNode(t, 1, []ma.Multiaddr{loopback})
	require.Eventually(t, func() bool { return len(r.sw.ListenAddrs()) > 0 }, 5*time.Second, 10*time.Millisecond)

	// 裸 Swarm 不响应 ping
	bare, _ := swarmtest.New(t, 2)
	swarmtest.Connect(t, bare, r.sw)

	require.Eventually(t, func() bool {
		return len(bare.ConnsToPeer(r.sw.LocalPeer())) == 0
	}, 10*time.Second, 20*time.Millisecond)
}

func TestRun_KeepsUnresponsivePeerWhenConfigured(t *testing.T) {
	r := startNode(t, 1, []ma.Multiaddr{loopback}, WithCloseUnresponsive(false))
	require.Eventually(t, func() bool { return len(r.sw.ListenAddrs()) > 0 }, 5*time.Second, 10*time.Millisecond)

	bare, _ := swarmtest.New(t, 2)
	swarmtest.Connect(t, bare, r.sw)

	// 连续失败阈值为 2，间隔 50ms
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, bare.ConnsToPeer(r.sw.LocalPeer()), 1)
}

func TestListenerClosed(t *testing.T) {
	l := &Loop{}
	boom := errors.New("boom")

	assert.NoError(t, l.handleSwarmEvent(swarm.Event{Kind: swarm.ListenerClosed, Listener: loopback}))
	assert.NoError(t, l.handleSwarmEvent(swarm.Event{Kind: swarm.ListenerClosed, Listener: loopback, Err: boom, RemainingListeners: 1}))

	err := l.handleSwarmEvent(swarm.Event{Kind: swarm.ListenerClosed, Listener: loopback, Err: boom})
	assert.ErrorIs(t, err, ErrAllListenersClosed)
	assert.ErrorIs(t, err, boom)
}

func TestLoop_StoppedAndRunOnce(t *testing.T) {
	sw, id := swarmtest.New(t, 1)
	set, err := behaviour.New(sw, id, testBehaviourConfig())
	require.NoError(t, err)
	defer set.Close()
	loop, err := New(sw, set, config.DefaultEventLoopConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()
	require.Eventually(t, func() bool { return loop.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, loop.Run(ctx), ErrAlreadyRunning)
	assert.Equal(t, Idle, loop.State())

	cancel()
	require.NoError(t, <-errc)
	_, err = loop.ExternalAddrs(context.Background(), sw.LocalPeer())
	assert.ErrorIs(t, err, ErrLoopStopped)
}
