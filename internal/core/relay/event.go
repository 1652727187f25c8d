package relay

import (
	"github.com/google/uuid"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

// EventKind 中继事件类别
type EventKind int

const (
	// ReservationReqAccepted 预约成功（含续约）
	ReservationReqAccepted EventKind = iota + 1
	// ReservationReqDenied 预约被拒绝
	ReservationReqDenied
	// ReservationTimedOut 预约过期被清理
	ReservationTimedOut
	// CircuitReqAccepted 电路建立并开始转发
	CircuitReqAccepted
	// CircuitReqDenied 电路请求被拒绝
	CircuitReqDenied
	// CircuitClosed 电路结束
	CircuitClosed
)

func (k EventKind) String() string {
	switch k {
	case ReservationReqAccepted:
		return "reservation_accepted"
	case ReservationReqDenied:
		return "reservation_denied"
	case ReservationTimedOut:
		return "reservation_timed_out"
	case CircuitReqAccepted:
		return "circuit_accepted"
	case CircuitReqDenied:
		return "circuit_denied"
	case CircuitClosed:
		return "circuit_closed"
	default:
		return "unknown"
	}
}

// Event 中继事件
type Event struct {
	Kind EventKind

	// Peer 预约事件的节点
	Peer identity.PeerID
	// Renewed 预约事件：是否为续约
	Renewed bool

	// Src / Dst 电路事件的两端
	Src identity.PeerID
	Dst identity.PeerID
	// CircuitID 电路事件的电路
	CircuitID uuid.UUID
	// State CircuitClosed 的终态
	State State

	// Status 拒绝时回复的状态码
	Status Status
	Err    error
}
