package identity

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// keyTypeEd25519 libp2p crypto.pb KeyType 枚举中的 Ed25519
const keyTypeEd25519 = 1

// protobuf 字段号: message PublicKey { KeyType Type = 1; bytes Data = 2; }
const (
	fieldKeyType protowire.Number = 1
	fieldKeyData protowire.Number = 2
)

// MarshalPublicKey 编码为 libp2p PublicKey protobuf
func MarshalPublicKey(pub *PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, ErrNilPublicKey
	}
	b := make([]byte, 0, 36)
	b = protowire.AppendTag(b, fieldKeyType, protowire.VarintType)
	b = protowire.AppendVarint(b, keyTypeEd25519)
	b = protowire.AppendTag(b, fieldKeyData, protowire.BytesType)
	b = protowire.AppendBytes(b, pub.Bytes())
	return b, nil
}

// UnmarshalPublicKey 解码 libp2p PublicKey protobuf，只接受 Ed25519
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	var (
		keyType uint64
		hasType bool
		raw     []byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrMalformedKey
		}
		data = data[n:]

		switch {
		case num == fieldKeyType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, ErrMalformedKey
			}
			keyType, hasType = v, true
			data = data[m:]
		case num == fieldKeyData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, ErrMalformedKey
			}
			raw = v
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, ErrMalformedKey
			}
			data = data[m:]
		}
	}

	if !hasType || raw == nil {
		return nil, ErrMalformedKey
	}
	if keyType != keyTypeEd25519 {
		return nil, ErrUnsupportedKeyType
	}
	return NewPublicKey(raw)
}
