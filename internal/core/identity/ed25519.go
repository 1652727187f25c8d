package identity

import (
	"crypto/ed25519"
)

// ============================================================================
//                              PublicKey
// ============================================================================

// PublicKey Ed25519 公钥
type PublicKey struct {
	key ed25519.PublicKey
}

// NewPublicKey 从 32 字节原始公钥创建
func NewPublicKey(raw []byte) (*PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeySize
	}
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, raw)
	return &PublicKey{key: key}, nil
}

// Bytes 原始公钥字节
func (k *PublicKey) Bytes() []byte {
	return k.key
}

// Raw 返回标准库类型，供 tls/x509 使用
func (k *PublicKey) Raw() ed25519.PublicKey {
	return k.key
}

// Equal 比较两把公钥
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.key.Equal(other.key)
}

// Verify 验证签名
func (k *PublicKey) Verify(data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(k.key, data, sig)
}

// PeerID 派生节点标识
func (k *PublicKey) PeerID() PeerID {
	id, _ := PeerIDFromPublicKey(k)
	return id
}

// ============================================================================
//                              PrivateKey
// ============================================================================

// PrivateKey Ed25519 私钥
type PrivateKey struct {
	key ed25519.PrivateKey
}

// NewPrivateKeyFromSeed 从 32 字节种子派生私钥
func NewPrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSeedLength
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public 对应公钥
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: k.key.Public().(ed25519.PublicKey)}
}

// Sign 签名
func (k *PrivateKey) Sign(data []byte) []byte {
	return ed25519.Sign(k.key, data)
}

// Raw 返回标准库类型
func (k *PrivateKey) Raw() ed25519.PrivateKey {
	return k.key
}

// Seed 返回 32 字节种子，Noise 静态密钥转换需要
func (k *PrivateKey) Seed() []byte {
	return k.key.Seed()
}
