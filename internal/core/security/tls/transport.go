package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

// ID 协议标识
const ID = "/tls/1.0.0"

var log = logger.Logger("security/tls")

// Transport libp2p TLS 安全传输
type Transport struct {
	id      *identity.Identity
	tlsID   *Identity
	timeout time.Duration
}

var _ security.SecureTransport = (*Transport)(nil)

// New 创建 TLS 传输
func New(id *identity.Identity, tlsID *Identity, handshakeTimeout time.Duration) (*Transport, error) {
	if id == nil || tlsID == nil {
		return nil, errors.New("tls: identity is nil")
	}
	return &Transport{id: id, tlsID: tlsID, timeout: handshakeTimeout}, nil
}

// ID 返回协议标识
func (t *Transport) ID() string { return ID }

// SecureInbound 作为 TLS 服务端握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (security.SecureConn, error) {
	cfg, keyCh := t.tlsID.ServerConfig()
	return t.handshake(ctx, tls.Server(conn, cfg), keyCh, "")
}

// SecureOutbound 作为 TLS 客户端握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected identity.PeerID) (security.SecureConn, error) {
	cfg, keyCh := t.tlsID.ClientConfig(expected)
	return t.handshake(ctx, tls.Client(conn, cfg), keyCh, expected)
}

func (t *Transport) handshake(ctx context.Context, tc *tls.Conn, keyCh <-chan *identity.PublicKey, expected identity.PeerID) (security.SecureConn, error) {
	hctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := tc.HandshakeContext(hctx); err != nil {
		var mismatch *security.PeerMismatchError
		if errors.As(err, &mismatch) {
			err = security.NewNegotiationError(security.KindHandshakeFailed, err)
		} else {
			err = security.Classify(err)
		}
		log.Debug("TLS 握手失败", "remote", tc.RemoteAddr(), "err", err)
		return nil, err
	}

	pub, err := RemotePublicKey(keyCh)
	if err != nil {
		return nil, security.NewNegotiationError(security.KindHandshakeFailed, err)
	}
	if err := security.CheckExpected(expected, pub.PeerID()); err != nil {
		return nil, err
	}

	log.Debug("TLS 握手成功", "remotePeer", pub.PeerID().ShortString())
	return &secureConn{
		Conn:       tc,
		localPeer:  t.id.PeerID(),
		remotePeer: pub.PeerID(),
		remotePub:  pub,
	}, nil
}

type secureConn struct {
	*tls.Conn

	localPeer  identity.PeerID
	remotePeer identity.PeerID
	remotePub  *identity.PublicKey
}

var _ security.SecureConn = (*secureConn)(nil)

func (c *secureConn) LocalPeer() identity.PeerID            { return c.localPeer }
func (c *secureConn) RemotePeer() identity.PeerID           { return c.remotePeer }
func (c *secureConn) RemotePublicKey() *identity.PublicKey { return c.remotePub }
func (c *secureConn) Protocol() string                      { return ID }
