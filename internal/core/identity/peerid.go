package identity

import (
	"fmt"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// maxInlineKeyLength 不超过该长度的编码公钥用 identity multihash 内联
const maxInlineKeyLength = 42

// PeerID 节点标识（base58btc 编码的 multihash）
type PeerID string

// String 完整标识
func (id PeerID) String() string {
	return string(id)
}

// ShortString 日志用的缩写
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) <= 10 {
		return s
	}
	return s[:2] + "*" + s[len(s)-6:]
}

// Validate 检查是否为合法 multihash
func (id PeerID) Validate() error {
	_, err := ParsePeerID(string(id))
	return err
}

// ExtractPublicKey 从内联 PeerID 还原公钥
func (id PeerID) ExtractPublicKey() (*PublicKey, error) {
	buf, err := base58.Decode(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	decoded, err := mh.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	if decoded.Code != mh.IDENTITY {
		return nil, ErrUnsupportedKeyType
	}
	return UnmarshalPublicKey(decoded.Digest)
}

// PeerIDFromPublicKey 公钥 → PeerID
//
// 编码后的 Ed25519 公钥只有 36 字节，始终使用 identity multihash。
func PeerIDFromPublicKey(pub *PublicKey) (PeerID, error) {
	data, err := MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	code := uint64(mh.SHA2_256)
	if len(data) <= maxInlineKeyLength {
		code = mh.IDENTITY
	}
	hash, err := mh.Sum(data, code, -1)
	if err != nil {
		return "", fmt.Errorf("multihash: %w", err)
	}
	return PeerID(base58.Encode(hash)), nil
}

// ParsePeerID 解析 base58 字符串
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return "", ErrInvalidPeerID
	}
	buf, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	if _, err := mh.Cast(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	return PeerID(s), nil
}

// PeerIDFromBytes 从二进制 multihash 构造（中继协议中的 peer.id 字段）
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if _, err := mh.Cast(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	return PeerID(base58.Encode(b)), nil
}

// Bytes 二进制 multihash
func (id PeerID) Bytes() []byte {
	b, _ := base58.Decode(string(id))
	return b
}
