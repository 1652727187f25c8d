package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/core/security/noise"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/core/upgrader"
)

func newTransport(t *testing.T, seed byte) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Derive(seed)
	require.NoError(t, err)
	n, err := noise.New(id, 2*time.Second)
	require.NoError(t, err)
	mx, err := muxer.NewTransport(config.DefaultMuxerConfig())
	require.NoError(t, err)
	u, err := upgrader.New([]security.SecureTransport{n}, []muxer.Multiplexer{mx}, 2*time.Second)
	require.NoError(t, err)
	tr := New(u, 2*time.Second)
	t.Cleanup(func() { tr.Close() })
	return tr, id
}

func TestCanDial(t *testing.T) {
	tr, _ := newTransport(t, 1)
	assert.True(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/1")))
	assert.True(t, tr.CanDial(ma.StringCast("/ip6/::1/tcp/1")))
	assert.True(t, tr.CanDial(ma.StringCast("/dns4/example.com/tcp/1")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/1/quic-v1")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/1")))
}

func TestListenDial(t *testing.T) {
	server, serverID := newTransport(t, 1)
	client, clientID := newTransport(t, 2)

	l, err := server.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan transport.CapableConn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	cc, err := client.Dial(context.Background(), l.Multiaddr(), serverID.PeerID())
	require.NoError(t, err)
	defer cc.Close()

	var sc transport.CapableConn
	select {
	case sc = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound connection")
	}
	defer sc.Close()

	assert.Equal(t, clientID.PeerID(), sc.RemotePeer())
	assert.Equal(t, l.Multiaddr().String(), cc.RemoteMultiaddr().String())
	assert.True(t, sc.LocalMultiaddr().Equal(l.Multiaddr()))

	go func() {
		s, err := cc.OpenStream(context.Background())
		if err == nil {
			_, _ = s.Write([]byte("relay"))
			_ = s.Close()
		}
	}()
	st, err := sc.AcceptStream()
	require.NoError(t, err)
	data, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, "relay", string(data))
}

func TestListen_AddressInUse(t *testing.T) {
	tr, _ := newTransport(t, 1)
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer l.Close()

	_, err = tr.Listen(l.Multiaddr())
	var be *transport.BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, transport.AddressInUse, be.Kind)
}

func TestAccept_UpgradeFailureIsNotFatal(t *testing.T) {
	tr, serverID := newTransport(t, 1)
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer l.Close()

	// 发送垃圾数据后断开
	na, err := manet.ToNetAddr(l.Multiaddr())
	require.NoError(t, err)
	raw, err := net.Dial("tcp", na.String())
	require.NoError(t, err)
	_, _ = raw.Write([]byte("garbage\n"))
	raw.Close()

	_, err = l.Accept()
	var ue *transport.UpgradeError
	require.True(t, errors.As(err, &ue), "got %v", err)

	// 监听器仍可用
	client, _ := newTransport(t, 2)
	go func() {
		c, err := client.Dial(context.Background(), l.Multiaddr(), serverID.PeerID())
		if err == nil {
			defer c.Close()
			time.Sleep(500 * time.Millisecond)
		}
	}()
	c, err := l.Accept()
	require.NoError(t, err)
	c.Close()
}

func TestListener_Close(t *testing.T) {
	tr, _ := newTransport(t, 1)
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Accept()
	assert.ErrorIs(t, err, transport.ErrListenerClosed)
}

func TestDial_Closed(t *testing.T) {
	tr, _ := newTransport(t, 1)
	require.NoError(t, tr.Close())
	_, err := tr.Dial(context.Background(), ma.StringCast("/ip4/127.0.0.1/tcp/1"), "")
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}
