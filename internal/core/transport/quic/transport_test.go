package quic

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	tlssec "github.com/dep2p/go-dep2p-relay/internal/core/security/tls"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

func newTransport(t *testing.T, seed byte) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Derive(seed)
	require.NoError(t, err)
	tid, err := tlssec.NewIdentity(id)
	require.NoError(t, err)
	tr := New(id, tid, 5*time.Second)
	t.Cleanup(func() { tr.Close() })
	return tr, id
}

func TestCanDial(t *testing.T) {
	tr, _ := newTransport(t, 1)
	assert.True(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/1/quic-v1")))
	assert.True(t, tr.CanDial(ma.StringCast("/ip6/::1/udp/1/quic-v1")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/1")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/1")))
}

func TestListenDial(t *testing.T) {
	server, serverID := newTransport(t, 1)
	client, clientID := newTransport(t, 2)

	l, err := server.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	require.NoError(t, err)

	accepted := make(chan transport.CapableConn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cc, err := client.Dial(ctx, l.Multiaddr(), serverID.PeerID())
	require.NoError(t, err)
	defer cc.Close()
	assert.Equal(t, serverID.PeerID(), cc.RemotePeer())

	go func() {
		s, err := cc.OpenStream(ctx)
		if err == nil {
			_, _ = s.Write([]byte("quic"))
			_ = s.CloseWrite()
		}
	}()

	var sc transport.CapableConn
	select {
	case sc = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound connection")
	}
	assert.Equal(t, clientID.PeerID(), sc.RemotePeer())
	assert.Equal(t, ID, sc.Security())

	st, err := sc.AcceptStream()
	require.NoError(t, err)
	data, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, "quic", string(data))

	require.NoError(t, sc.Close())
	select {
	case <-cc.CloseChan():
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not observe close")
	}
	_, err = cc.OpenStream(context.Background())
	assert.ErrorIs(t, err, muxer.ErrSessionClosed)
}

func TestDial_WrongPeer(t *testing.T) {
	server, _ := newTransport(t, 1)
	client, _ := newTransport(t, 2)
	other, _ := identity.Derive(3)

	l, err := server.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	require.NoError(t, err)
	go func() { _, _ = l.Accept() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.Dial(ctx, l.Multiaddr(), other.PeerID())
	assert.Error(t, err)
}
