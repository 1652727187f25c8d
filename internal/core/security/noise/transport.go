// Package noise 实现 libp2p Noise 安全传输
//
// 握手模式 Noise_XX_25519_ChaChaPoly_SHA256：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// payload 携带 Ed25519 身份公钥及其对 Noise 静态公钥的签名，
// 签名内容为 "noise-libp2p-static-key:" + 静态公钥。
package noise

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

// ID 协议标识
const ID = "/noise"

var log = logger.Logger("security/noise")

// Transport Noise 安全传输
type Transport struct {
	id      *identity.Identity
	timeout time.Duration
}

// 确保实现接口
var _ security.SecureTransport = (*Transport)(nil)

// New 创建 Noise 传输
func New(id *identity.Identity, handshakeTimeout time.Duration) (*Transport, error) {
	if id == nil {
		return nil, errors.New("noise: identity is nil")
	}
	return &Transport{id: id, timeout: handshakeTimeout}, nil
}

// ID 返回协议标识
func (t *Transport) ID() string { return ID }

// SecureInbound 响应方握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (security.SecureConn, error) {
	return t.secure(ctx, conn, "", false)
}

// SecureOutbound 发起方握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected identity.PeerID) (security.SecureConn, error) {
	return t.secure(ctx, conn, expected, true)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, expected identity.PeerID, initiator bool) (security.SecureConn, error) {
	if conn == nil {
		return nil, security.NewNegotiationError(security.KindIO, net.ErrClosed)
	}

	clear := security.WithHandshakeDeadline(ctx, conn, t.timeout)
	sc, err := handshake(conn, t.id, initiator)
	clear()
	if err != nil {
		err = security.Classify(err)
		log.Debug("Noise 握手失败", "remote", conn.RemoteAddr(), "initiator", initiator, "err", err)
		return nil, err
	}

	if err := security.CheckExpected(expected, sc.remotePeer); err != nil {
		log.Warn("Noise 对端身份不符", "expected", expected.ShortString(), "actual", sc.remotePeer.ShortString())
		return nil, err
	}

	log.Debug("Noise 握手成功", "remotePeer", sc.remotePeer.ShortString(), "initiator", initiator)
	return sc, nil
}
