package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Identity 节点身份，创建后不可变
type Identity struct {
	priv   *PrivateKey
	pub    *PublicKey
	peerID PeerID
}

// New 从私钥构造身份
func New(priv *PrivateKey) (*Identity, error) {
	pub := priv.Public()
	id, err := PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}
	return &Identity{priv: priv, pub: pub, peerID: id}, nil
}

// Derive 由单字节种子确定性派生身份
//
// 32 字节 Ed25519 种子首字节为 seed，其余为 0，同一 seed 始终得到同一 PeerID。
func Derive(seed byte) (*Identity, error) {
	material := make([]byte, ed25519.SeedSize)
	material[0] = seed
	return deriveFrom(material)
}

func deriveFrom(material []byte) (*Identity, error) {
	priv, err := NewPrivateKeyFromSeed(material)
	if err != nil {
		return nil, err
	}
	return New(priv)
}

// Generate 随机生成身份（测试与临时节点使用）
func Generate() (*Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return deriveFrom(seed)
}

// PeerID 节点标识
func (i *Identity) PeerID() PeerID { return i.peerID }

// PublicKey 公钥
func (i *Identity) PublicKey() *PublicKey { return i.pub }

// PrivateKey 私钥
func (i *Identity) PrivateKey() *PrivateKey { return i.priv }

// Sign 用节点私钥签名
func (i *Identity) Sign(data []byte) []byte {
	return i.priv.Sign(data)
}
