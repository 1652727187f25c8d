package noise

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

var errInvalidPayload = errors.New("invalid noise handshake payload")

// handshakePayload NoiseHandshakePayload { bytes identity_key = 1; bytes identity_sig = 2; }
type handshakePayload struct {
	IdentityKey []byte
	IdentitySig []byte
}

func (p *handshakePayload) marshal() []byte {
	b := make([]byte, 0, len(p.IdentityKey)+len(p.IdentitySig)+6)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentityKey)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentitySig)
	return b
}

// unmarshal 忽略未知字段（extensions 等）
func (p *handshakePayload) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errInvalidPayload
		}
		data = data[n:]

		if typ != protowire.BytesType || (num != 1 && num != 2) {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errInvalidPayload
			}
			data = data[m:]
			continue
		}

		v, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return errInvalidPayload
		}
		data = data[m:]
		if num == 1 {
			p.IdentityKey = append([]byte(nil), v...)
		} else {
			p.IdentitySig = append([]byte(nil), v...)
		}
	}
	if len(p.IdentityKey) == 0 || len(p.IdentitySig) == 0 {
		return errInvalidPayload
	}
	return nil
}
