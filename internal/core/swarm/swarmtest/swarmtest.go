// Package swarmtest 构造回环 TCP 上的测试 Swarm
package swarmtest

import (
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/core/security/noise"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport/tcp"
	"github.com/dep2p/go-dep2p-relay/internal/core/upgrader"
)

// New 创建只含 TCP/Noise/Yamux 的 Swarm，测试结束时关闭
func New(t testing.TB, seed byte, opts ...swarm.Option) (*swarm.Swarm, *identity.Identity) {
	t.Helper()
	id, err := identity.Derive(seed)
	require.NoError(t, err)

	nt, err := noise.New(id, 5*time.Second)
	require.NoError(t, err)
	mx, err := muxer.NewTransport(config.DefaultMuxerConfig())
	require.NoError(t, err)
	u, err := upgrader.New([]security.SecureTransport{nt}, []muxer.Multiplexer{mx}, 5*time.Second)
	require.NoError(t, err)

	s := swarm.New(id.PeerID(), []transport.Transport{tcp.New(u, 5*time.Second)}, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, id
}

// Listen 监听回环随机端口并返回实际地址
func Listen(t testing.TB, s *swarm.Swarm) ma.Multiaddr {
	t.Helper()
	require.NoError(t, s.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))
	addrs := s.ListenAddrs()
	require.NotEmpty(t, addrs)
	return addrs[0]
}

// Connect a 拨号 b，返回 a 侧连接，并等待 b 侧登记
func Connect(t testing.TB, a, b *swarm.Swarm) *swarm.Conn {
	t.Helper()
	addrs := b.ListenAddrs()
	if len(addrs) == 0 {
		addrs = []ma.Multiaddr{Listen(t, b)}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := a.DialAddr(ctx, addrs[0], b.LocalPeer())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(b.ConnsToPeer(a.LocalPeer())) > 0
	}, 5*time.Second, 10*time.Millisecond)
	return c
}

// NextEvent 等待指定类别的事件，跳过其他事件
func NextEvent(t testing.TB, s *swarm.Swarm, kind swarm.EventKind) swarm.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return swarm.Event{}
		}
	}
}
