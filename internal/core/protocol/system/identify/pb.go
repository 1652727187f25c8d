package identify

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

// Identify 消息字段号
const (
	fieldPublicKey       protowire.Number = 1
	fieldListenAddrs     protowire.Number = 2
	fieldProtocols       protowire.Number = 3
	fieldObservedAddr    protowire.Number = 4
	fieldProtocolVersion protowire.Number = 5
	fieldAgentVersion    protowire.Number = 6
)

// ErrMalformedRecord 记录无法解析
var ErrMalformedRecord = errors.New("identify: malformed record")

// Info 节点身份信息
type Info struct {
	PublicKey       *identity.PublicKey
	ListenAddrs     []ma.Multiaddr
	Protocols       []string
	ObservedAddr    ma.Multiaddr
	ProtocolVersion string
	AgentVersion    string
}

// Marshal 编码为 protobuf
func (i *Info) Marshal() ([]byte, error) {
	var b []byte
	if i.PublicKey != nil {
		key, err := identity.MarshalPublicKey(i.PublicKey)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldPublicKey, protowire.BytesType)
		b = protowire.AppendBytes(b, key)
	}
	for _, a := range i.ListenAddrs {
		b = protowire.AppendTag(b, fieldListenAddrs, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Bytes())
	}
	for _, p := range i.Protocols {
		b = protowire.AppendTag(b, fieldProtocols, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	if i.ObservedAddr != nil {
		b = protowire.AppendTag(b, fieldObservedAddr, protowire.BytesType)
		b = protowire.AppendBytes(b, i.ObservedAddr.Bytes())
	}
	if i.ProtocolVersion != "" {
		b = protowire.AppendTag(b, fieldProtocolVersion, protowire.BytesType)
		b = protowire.AppendString(b, i.ProtocolVersion)
	}
	if i.AgentVersion != "" {
		b = protowire.AppendTag(b, fieldAgentVersion, protowire.BytesType)
		b = protowire.AppendString(b, i.AgentVersion)
	}
	return b, nil
}

// Unmarshal 解码，未知字段忽略，无法解析的地址跳过
func (i *Info) Unmarshal(b []byte) error {
	*i = Info{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldPublicKey:
			pub, err := identity.UnmarshalPublicKey(v)
			if err != nil {
				return fmt.Errorf("%w: public key: %v", ErrMalformedRecord, err)
			}
			i.PublicKey = pub
		case fieldListenAddrs:
			if a, err := ma.NewMultiaddrBytes(v); err == nil {
				i.ListenAddrs = append(i.ListenAddrs, a)
			}
		case fieldProtocols:
			i.Protocols = append(i.Protocols, string(v))
		case fieldObservedAddr:
			if a, err := ma.NewMultiaddrBytes(v); err == nil {
				i.ObservedAddr = a
			}
		case fieldProtocolVersion:
			i.ProtocolVersion = string(v)
		case fieldAgentVersion:
			i.AgentVersion = string(v)
		}
	}
	return nil
}
