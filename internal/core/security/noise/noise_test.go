package noise

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
)

// createConnPair 本地回环 TCP 连接对
func createConnPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func newTransport(t *testing.T, seed byte) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Derive(seed)
	require.NoError(t, err)
	tr, err := New(id, 5*time.Second)
	require.NoError(t, err)
	return tr, id
}

type result struct {
	conn security.SecureConn
	err  error
}

func secureBoth(t *testing.T, client, server *Transport, expected identity.PeerID) (result, result) {
	c, s := createConnPair(t)
	ctx := context.Background()

	srvCh := make(chan result, 1)
	go func() {
		sc, err := server.SecureInbound(ctx, s)
		srvCh <- result{sc, err}
	}()
	cc, err := client.SecureOutbound(ctx, c, expected)
	return result{cc, err}, <-srvCh
}

func TestHandshake_BindsPeerIDs(t *testing.T) {
	client, clientID := newTransport(t, 1)
	server, serverID := newTransport(t, 2)

	cr, sr := secureBoth(t, client, server, serverID.PeerID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, serverID.PeerID(), cr.conn.RemotePeer())
	assert.Equal(t, clientID.PeerID(), sr.conn.RemotePeer())
	assert.Equal(t, clientID.PeerID(), cr.conn.LocalPeer())
	assert.Equal(t, cr.conn.RemotePeer(), cr.conn.RemotePublicKey().PeerID())
	assert.Equal(t, sr.conn.RemotePeer(), sr.conn.RemotePublicKey().PeerID())
	assert.Equal(t, ID, cr.conn.Protocol())
}

func TestHandshake_Exchange(t *testing.T) {
	client, _ := newTransport(t, 1)
	server, _ := newTransport(t, 2)
	cr, sr := secureBoth(t, client, server, "")
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	// larger than a single frame
	msg := bytes.Repeat([]byte("relay"), 40000)
	go func() {
		_, _ = cr.conn.Write(msg)
	}()
	got := make([]byte, len(msg))
	_, err := io.ReadFull(sr.conn, got)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestHandshake_PeerMismatch(t *testing.T) {
	client, _ := newTransport(t, 1)
	server, _ := newTransport(t, 2)
	other, err := identity.Derive(3)
	require.NoError(t, err)

	cr, _ := secureBoth(t, client, server, other.PeerID())
	require.Error(t, cr.err)
	assert.ErrorIs(t, cr.err, security.ErrHandshakeFailed)
}

func TestHandshake_Timeout(t *testing.T) {
	id, err := identity.Derive(1)
	require.NoError(t, err)
	tr, err := New(id, 100*time.Millisecond)
	require.NoError(t, err)

	c, _ := createConnPair(t)
	_, err = tr.SecureOutbound(context.Background(), c, "")
	assert.ErrorIs(t, err, security.ErrTimeout)
}

func TestHandshake_PeerClosed(t *testing.T) {
	server, _ := newTransport(t, 2)
	c, s := createConnPair(t)
	require.NoError(t, c.Close())

	_, err := server.SecureInbound(context.Background(), s)
	assert.ErrorIs(t, err, security.ErrIO)
}

func TestHandshake_Garbage(t *testing.T) {
	server, _ := newTransport(t, 2)
	c, s := createConnPair(t)
	go func() {
		_ = writeFrame(c, []byte("not a noise message"))
	}()
	_, err := server.SecureInbound(context.Background(), s)
	assert.ErrorIs(t, err, security.ErrHandshakeFailed)
}

func TestPayload(t *testing.T) {
	p := handshakePayload{IdentityKey: []byte{1, 2}, IdentitySig: []byte{3}}
	var q handshakePayload
	require.NoError(t, q.unmarshal(p.marshal()))
	assert.Equal(t, p, q)

	assert.Error(t, (&handshakePayload{}).unmarshal(nil))
}
