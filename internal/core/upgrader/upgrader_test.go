package upgrader

import (
	"context"
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
	tlssec "github.com/dep2p/go-dep2p-relay/internal/core/security/tls"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

func newUpgrader(t *testing.T, seed byte, protos ...string) (*Upgrader, *identity.Identity) {
	t.Helper()
	id, err := identity.Derive(seed)
	require.NoError(t, err)

	var secs []security.SecureTransport
	for _, p := range protos {
		switch p {
		case config.SecurityNoise:
			n, err := noise.New(id, 5*time.Second)
			require.NoError(t, err)
			secs = append(secs, n)
		case config.SecurityTLS:
			tid, err := tlssec.NewIdentity(id)
			require.NoError(t, err)
			tr, err := tlssec.New(id, tid, 5*time.Second)
			require.NoError(t, err)
			secs = append(secs, tr)
		}
	}
	mx, err := muxer.NewTransport(config.DefaultMuxerConfig())
	require.NoError(t, err)
	u, err := New(secs, []muxer.Multiplexer{mx}, 5*time.Second)
	require.NoError(t, err)
	return u, id
}

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	ch := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		ch <- c
	}()
	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	s := <-ch
	t.Cleanup(func() { c.Close(); s.Close() })
	return c, s
}

func addrs(t *testing.T, c net.Conn) (ma.Multiaddr, ma.Multiaddr) {
	l, err := manet.FromNetAddr(c.LocalAddr())
	require.NoError(t, err)
	r, err := manet.FromNetAddr(c.RemoteAddr())
	require.NoError(t, err)
	return l, r
}

type upgradeResult struct {
	conn *Conn
	err  error
}

func upgradeBoth(t *testing.T, client, server *Upgrader, expected identity.PeerID) (upgradeResult, upgradeResult) {
	c, s := tcpPair(t)
	ch := make(chan upgradeResult, 1)
	go func() {
		l, r := addrs(t, s)
		uc, err := server.Upgrade(context.Background(), s, transport.DirInbound, l, r, "")
		ch <- upgradeResult{uc, err}
	}()
	l, r := addrs(t, c)
	uc, err := client.Upgrade(context.Background(), c, transport.DirOutbound, l, r, expected)
	return upgradeResult{uc, err}, <-ch
}

func TestUpgrade_SelectsFirstMutualSecurity(t *testing.T) {
	client, clientID := newUpgrader(t, 1, config.SecurityNoise, config.SecurityTLS)
	server, serverID := newUpgrader(t, 2, config.SecurityTLS, config.SecurityNoise)

	cr, sr := upgradeBoth(t, client, server, serverID.PeerID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)
	t.Cleanup(func() { cr.conn.Close(); sr.conn.Close() })

	assert.Equal(t, noise.ID, cr.conn.Security())
	assert.Equal(t, noise.ID, sr.conn.Security())
	assert.Equal(t, muxer.ID, cr.conn.Muxer())
	assert.Equal(t, serverID.PeerID(), cr.conn.RemotePeer())
	assert.Equal(t, clientID.PeerID(), sr.conn.RemotePeer())
	assert.Equal(t, transport.DirOutbound, cr.conn.Direction())
	assert.Equal(t, transport.DirInbound, sr.conn.Direction())

	go func() {
		s, err := cr.conn.OpenStream(context.Background())
		if err == nil {
			_, _ = s.Write([]byte("hi"))
			_ = s.Close()
		}
	}()
	st, err := sr.conn.AcceptStream()
	require.NoError(t, err)
	data, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestUpgrade_TLSOnly(t *testing.T) {
	client, _ := newUpgrader(t, 1, config.SecurityTLS)
	server, _ := newUpgrader(t, 2, config.SecurityTLS)

	cr, sr := upgradeBoth(t, client, server, "")
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)
	assert.Equal(t, tlssec.ID, cr.conn.Security())
	cr.conn.Close()
	sr.conn.Close()
}

func TestUpgrade_NoCommonSecurity(t *testing.T) {
	client, _ := newUpgrader(t, 1, config.SecurityNoise)
	server, _ := newUpgrader(t, 2, config.SecurityTLS)

	cr, sr := upgradeBoth(t, client, server, "")
	require.Error(t, cr.err)
	require.Error(t, sr.err)
	var ne *security.NegotiationError
	assert.ErrorAs(t, cr.err, &ne)
}

func TestUpgrade_WrongPeerClosesConn(t *testing.T) {
	client, _ := newUpgrader(t, 1, config.SecurityNoise)
	server, _ := newUpgrader(t, 2, config.SecurityNoise)
	other, _ := identity.Derive(9)

	cr, _ := upgradeBoth(t, client, server, other.PeerID())
	assert.ErrorIs(t, cr.err, security.ErrHandshakeFailed)
	assert.Nil(t, cr.conn)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, []muxer.Multiplexer{}, time.Second)
	assert.ErrorIs(t, err, ErrNoSecurityTransport)

	id, _ := identity.Derive(1)
	n, _ := noise.New(id, time.Second)
	_, err = New([]security.SecureTransport{n}, nil, time.Second)
	assert.ErrorIs(t, err, ErrNoStreamMuxer)
}
