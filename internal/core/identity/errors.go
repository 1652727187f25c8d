package identity

import "errors"

var (
	// ErrInvalidSeedLength 派生种子长度不是 32 字节
	ErrInvalidSeedLength = errors.New("invalid seed length")

	// ErrInvalidKeySize 公钥或私钥长度错误
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrUnsupportedKeyType 非 Ed25519 密钥
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrInvalidPeerID PeerID 无法解码
	ErrInvalidPeerID = errors.New("invalid peer id")

	// ErrNilPublicKey 公钥为 nil
	ErrNilPublicKey = errors.New("public key is nil")

	// ErrMalformedKey 公钥 protobuf 格式错误
	ErrMalformedKey = errors.New("malformed public key")
)
