package relay

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxMessageSize 单条 hop/stop 消息上限
const MaxMessageSize = 4096

// ErrMalformedMessage 消息无法解析
var ErrMalformedMessage = errors.New("relay: malformed message")

// HopType HopMessage.type
type HopType uint32

const (
	HopReserve HopType = 0
	HopConnect HopType = 1
	HopStatus  HopType = 2
)

// StopType StopMessage.type
type StopType uint32

const (
	StopConnect StopType = 0
	StopStatus  StopType = 1
)

// Status 响应状态码
type Status uint32

const (
	StatusUnused                Status = 0
	StatusOK                    Status = 100
	StatusReservationRefused    Status = 200
	StatusResourceLimitExceeded Status = 201
	StatusPermissionDenied      Status = 202
	StatusConnectionFailed      Status = 203
	StatusNoReservation         Status = 204
	StatusMalformedMessage      Status = 400
	StatusUnexpectedMessage     Status = 401
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusReservationRefused:
		return "RESERVATION_REFUSED"
	case StatusResourceLimitExceeded:
		return "RESOURCE_LIMIT_EXCEEDED"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusConnectionFailed:
		return "CONNECTION_FAILED"
	case StatusNoReservation:
		return "NO_RESERVATION"
	case StatusMalformedMessage:
		return "MALFORMED_MESSAGE"
	case StatusUnexpectedMessage:
		return "UNEXPECTED_MESSAGE"
	default:
		return fmt.Sprintf("STATUS(%d)", uint32(s))
	}
}

// PeerInfo Peer 子消息
type PeerInfo struct {
	ID    []byte
	Addrs [][]byte
}

// ReservationInfo Reservation 子消息
type ReservationInfo struct {
	// Expire Unix 秒
	Expire  uint64
	Addrs   [][]byte
	Voucher []byte
}

// Limit 电路限制，零值表示不限
type Limit struct {
	// Duration 秒
	Duration uint32
	// Data 每方向字节数
	Data uint64
}

// HopMessage /libp2p/circuit/relay/0.2.0/hop 消息
type HopMessage struct {
	Type        HopType
	Peer        *PeerInfo
	Reservation *ReservationInfo
	Limit       *Limit
	Status      Status
}

// StopMessage /libp2p/circuit/relay/0.2.0/stop 消息
type StopMessage struct {
	Type   StopType
	Peer   *PeerInfo
	Limit  *Limit
	Status Status
}

// ============================================================================
//                              编码
// ============================================================================

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func (p *PeerInfo) marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, p.ID)
	for _, a := range p.Addrs {
		b = appendMessage(b, 2, a)
	}
	return b
}

func (r *ReservationInfo) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, r.Expire)
	for _, a := range r.Addrs {
		b = appendMessage(b, 2, a)
	}
	if len(r.Voucher) > 0 {
		b = appendMessage(b, 3, r.Voucher)
	}
	return b
}

func (l *Limit) marshal() []byte {
	var b []byte
	if l.Duration > 0 {
		b = appendVarint(b, 1, uint64(l.Duration))
	}
	if l.Data > 0 {
		b = appendVarint(b, 2, l.Data)
	}
	return b
}

// Marshal 编码
func (m *HopMessage) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Type))
	if m.Peer != nil {
		b = appendMessage(b, 2, m.Peer.marshal())
	}
	if m.Reservation != nil {
		b = appendMessage(b, 3, m.Reservation.marshal())
	}
	if m.Limit != nil {
		b = appendMessage(b, 4, m.Limit.marshal())
	}
	if m.Status != StatusUnused {
		b = appendVarint(b, 5, uint64(m.Status))
	}
	return b
}

// Marshal 编码
func (m *StopMessage) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Type))
	if m.Peer != nil {
		b = appendMessage(b, 2, m.Peer.marshal())
	}
	if m.Limit != nil {
		b = appendMessage(b, 3, m.Limit.marshal())
	}
	if m.Status != StatusUnused {
		b = appendVarint(b, 4, uint64(m.Status))
	}
	return b
}

// ============================================================================
//                              解码
// ============================================================================

// field 一个已解析字段
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	bytes []byte
}

// fields 拆分消息字段，未知类型的字段跳过
func fields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}

func (p *PeerInfo) unmarshal(b []byte) error {
	fs, err := fields(b)
	if err != nil {
		return err
	}
	for _, f := range fs {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			p.ID = f.bytes
		case f.num == 2 && f.typ == protowire.BytesType:
			p.Addrs = append(p.Addrs, f.bytes)
		}
	}
	if len(p.ID) == 0 {
		return fmt.Errorf("%w: peer without id", ErrMalformedMessage)
	}
	return nil
}

func (r *ReservationInfo) unmarshal(b []byte) error {
	fs, err := fields(b)
	if err != nil {
		return err
	}
	for _, f := range fs {
		switch {
		case f.num == 1 && f.typ == protowire.VarintType:
			r.Expire = f.value
		case f.num == 2 && f.typ == protowire.BytesType:
			r.Addrs = append(r.Addrs, f.bytes)
		case f.num == 3 && f.typ == protowire.BytesType:
			r.Voucher = f.bytes
		}
	}
	return nil
}

func (l *Limit) unmarshal(b []byte) error {
	fs, err := fields(b)
	if err != nil {
		return err
	}
	for _, f := range fs {
		switch {
		case f.num == 1 && f.typ == protowire.VarintType:
			l.Duration = uint32(f.value)
		case f.num == 2 && f.typ == protowire.VarintType:
			l.Data = f.value
		}
	}
	return nil
}

// Unmarshal 解码
func (m *HopMessage) Unmarshal(b []byte) error {
	*m = HopMessage{}
	fs, err := fields(b)
	if err != nil {
		return err
	}
	hasType := false
	for _, f := range fs {
		switch {
		case f.num == 1 && f.typ == protowire.VarintType:
			m.Type = HopType(f.value)
			hasType = true
		case f.num == 2 && f.typ == protowire.BytesType:
			m.Peer = &PeerInfo{}
			if err := m.Peer.unmarshal(f.bytes); err != nil {
				return err
			}
		case f.num == 3 && f.typ == protowire.BytesType:
			m.Reservation = &ReservationInfo{}
			if err := m.Reservation.unmarshal(f.bytes); err != nil {
				return err
			}
		case f.num == 4 && f.typ == protowire.BytesType:
			m.Limit = &Limit{}
			if err := m.Limit.unmarshal(f.bytes); err != nil {
				return err
			}
		case f.num == 5 && f.typ == protowire.VarintType:
			m.Status = Status(f.value)
		}
	}
	if !hasType {
		return fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return nil
}

// Unmarshal 解码
func (m *StopMessage) Unmarshal(b []byte) error {
	*m = StopMessage{}
	fs, err := fields(b)
	if err != nil {
		return err
	}
	hasType := false
	for _, f := range fs {
		switch {
		case f.num == 1 && f.typ == protowire.VarintType:
			m.Type = StopType(f.value)
			hasType = true
		case f.num == 2 && f.typ == protowire.BytesType:
			m.Peer = &PeerInfo{}
			if err := m.Peer.unmarshal(f.bytes); err != nil {
				return err
			}
		case f.num == 3 && f.typ == protowire.BytesType:
			m.Limit = &Limit{}
			if err := m.Limit.unmarshal(f.bytes); err != nil {
				return err
			}
		case f.num == 4 && f.typ == protowire.VarintType:
			m.Status = Status(f.value)
		}
	}
	if !hasType {
		return fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return nil
}

// ============================================================================
//                              分帧
// ============================================================================

type marshaler interface{ Marshal() []byte }

type unmarshaler interface{ Unmarshal([]byte) error }

// writeMsg 写出 varint 长度前缀的消息
func writeMsg(w io.Writer, m marshaler) error {
	data := m.Marshal()
	buf := varint.ToUvarint(uint64(len(data)))
	_, err := w.Write(append(buf, data...))
	return err
}

// readMsg 读取一条消息，不会越过消息边界
func readMsg(r io.Reader, m unmarshaler) error {
	size, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return err
	}
	if size > MaxMessageSize {
		return fmt.Errorf("%w: message too large (%d bytes)", ErrMalformedMessage, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	return m.Unmarshal(data)
}

// byteReader 逐字节读取，避免 bufio 吞掉后续转发数据
type byteReader struct{ r io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

var _ io.ByteReader = byteReader{}
