package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
)

// Identity 持有本节点证书，生成 TLS 与 QUIC 共用的 tls.Config
type Identity struct {
	cert tls.Certificate
}

// NewIdentity 为节点生成证书
func NewIdentity(id *identity.Identity) (*Identity, error) {
	cert, err := newCertificate(id)
	if err != nil {
		return nil, err
	}
	return &Identity{cert: cert}, nil
}

// ServerConfig 入站配置，握手后对端公钥写入返回的通道
func (i *Identity) ServerConfig() (*tls.Config, <-chan *identity.PublicKey) {
	return i.config("")
}

// ClientConfig 出站配置，expected 非空时校验对端身份
func (i *Identity) ClientConfig(expected identity.PeerID) (*tls.Config, <-chan *identity.PublicKey) {
	return i.config(expected)
}

func (i *Identity) config(expected identity.PeerID) (*tls.Config, <-chan *identity.PublicKey) {
	keyCh := make(chan *identity.PublicKey, 1)
	cfg := &tls.Config{
		MinVersion:             tls.VersionTLS13,
		InsecureSkipVerify:     true, // 由 VerifyPeerCertificate 完成身份校验
		ClientAuth:             tls.RequireAnyClientCert,
		Certificates:           []tls.Certificate{i.cert},
		NextProtos:             []string{ALPN},
		SessionTicketsDisabled: true,
		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			pub, err := publicKeyFromCerts(raw)
			if err != nil {
				return err
			}
			if expected != "" && pub.PeerID() != expected {
				return &security.PeerMismatchError{Expected: expected, Actual: pub.PeerID()}
			}
			select {
			case keyCh <- pub:
			default:
			}
			return nil
		},
	}
	return cfg, keyCh
}

// PeerPublicKey 从已完成握手的连接状态取出对端身份公钥
//
// QUIC 监听器的配置被多条连接共享，用它代替通道。
func PeerPublicKey(state tls.ConnectionState) (*identity.PublicKey, error) {
	raw := make([][]byte, len(state.PeerCertificates))
	for i, c := range state.PeerCertificates {
		raw[i] = c.Raw
	}
	return publicKeyFromCerts(raw)
}

// RemotePublicKey 读取握手期间记录的对端公钥
func RemotePublicKey(ch <-chan *identity.PublicKey) (*identity.PublicKey, error) {
	select {
	case pub := <-ch:
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: peer certificate not verified", ErrNoCertificate)
	}
}
