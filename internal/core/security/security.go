package security

import (
	"context"
	"net"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

// SecureTransport 安全传输协议
type SecureTransport interface {
	// ID 协议标识，用于 multistream 协商
	ID() string

	// SecureInbound 作为响应方握手
	SecureInbound(ctx context.Context, conn net.Conn) (SecureConn, error)

	// SecureOutbound 作为发起方握手
	//
	// expected 为空表示接受任意对端；非空时身份不一致返回 HandshakeFailed。
	SecureOutbound(ctx context.Context, conn net.Conn, expected identity.PeerID) (SecureConn, error)
}

// SecureConn 已认证的加密连接
type SecureConn interface {
	net.Conn

	LocalPeer() identity.PeerID
	RemotePeer() identity.PeerID
	RemotePublicKey() *identity.PublicKey

	// Protocol 协商得到的安全协议 ID
	Protocol() string
}

// CheckExpected 校验握手得到的对端身份
func CheckExpected(expected, actual identity.PeerID) error {
	if expected != "" && expected != actual {
		return NewNegotiationError(KindHandshakeFailed,
			&PeerMismatchError{Expected: expected, Actual: actual})
	}
	return nil
}
