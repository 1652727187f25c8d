// Package tls 实现 libp2p TLS 1.3 安全传输
//
// 每个节点生成临时 ECDSA 证书，用扩展 1.3.6.1.4.1.53594.1.1 携带
// SignedKey{PublicKey, Signature}，签名内容为
// "libp2p-tls-handshake:" + 证书 SubjectPublicKeyInfo。对端身份从扩展中的
// 公钥派生，证书本身不参与 PKI 校验。
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

const certificatePrefix = "libp2p-tls-handshake:"

// ALPN 协商值
const ALPN = "libp2p"

var extensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 53594, 1, 1}

var (
	// ErrNoCertificate 对端未提供证书
	ErrNoCertificate = errors.New("tls: no certificate provided")
	// ErrNoKeyExtension 证书缺少身份扩展
	ErrNoKeyExtension = errors.New("tls: certificate has no identity extension")
	// ErrBadKeySignature 扩展签名校验失败
	ErrBadKeySignature = errors.New("tls: identity signature invalid")
)

type signedKey struct {
	PubKey    []byte
	Signature []byte
}

// newCertificate 生成携带身份扩展的自签名证书
func newCertificate(id *identity.Identity) (tls.Certificate, error) {
	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate certificate key: %w", err)
	}
	spki, err := x509.MarshalPKIXPublicKey(&certKey.PublicKey)
	if err != nil {
		return tls.Certificate{}, err
	}
	pub, err := identity.MarshalPublicKey(id.PublicKey())
	if err != nil {
		return tls.Certificate{}, err
	}
	ext, err := asn1.Marshal(signedKey{
		PubKey:    pub,
		Signature: id.Sign(append([]byte(certificatePrefix), spki...)),
	})
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:    serial,
		Subject:         pkix.Name{SerialNumber: serial.String()},
		NotBefore:       time.Now().Add(-time.Hour),
		NotAfter:        time.Now().Add(100 * 365 * 24 * time.Hour),
		ExtraExtensions: []pkix.Extension{{Id: extensionOID, Critical: true, Value: ext}},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, certKey.Public(), certKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: certKey}, nil
}

// publicKeyFromCerts 校验对端证书链并取出身份公钥
func publicKeyFromCerts(raw [][]byte) (*identity.PublicKey, error) {
	if len(raw) != 1 {
		return nil, ErrNoCertificate
	}
	cert, err := x509.ParseCertificate(raw[0])
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, fmt.Errorf("certificate not valid at %s", now.Format(time.RFC3339))
	}
	if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return nil, fmt.Errorf("certificate self signature: %w", err)
	}

	var ext []byte
	for _, e := range cert.Extensions {
		if e.Id.Equal(extensionOID) {
			ext = e.Value
			break
		}
	}
	if ext == nil {
		return nil, ErrNoKeyExtension
	}

	var sk signedKey
	if rest, err := asn1.Unmarshal(ext, &sk); err != nil || len(rest) != 0 {
		return nil, fmt.Errorf("%w: malformed extension", ErrNoKeyExtension)
	}
	pub, err := identity.UnmarshalPublicKey(sk.PubKey)
	if err != nil {
		return nil, err
	}
	if !pub.Verify(append([]byte(certificatePrefix), cert.RawSubjectPublicKeyInfo...), sk.Signature) {
		return nil, ErrBadKeySignature
	}
	return pub, nil
}
