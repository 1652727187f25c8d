package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("relay: service closed")

	// ErrNoReservation 目标节点没有有效预约
	ErrNoReservation = errors.New("relay: no reservation")

	// ErrDataLimit 电路流量耗尽
	ErrDataLimit = errors.New("relay: circuit data limit reached")

	// ErrStopRejected 目标节点拒绝 STOP
	ErrStopRejected = errors.New("relay: stop rejected by target")
)

// ErrorKind 中继请求被拒绝的类别
type ErrorKind int

const (
	// CapacityExceeded 电路数达到上限
	CapacityExceeded ErrorKind = iota + 1
	// TargetUnreachable 目标无预约、无连接或 STOP 握手失败
	TargetUnreachable
	// NotAuthorized 请求方不在允许列表内
	NotAuthorized
)

func (k ErrorKind) String() string {
	switch k {
	case CapacityExceeded:
		return "capacity exceeded"
	case TargetUnreachable:
		return "target unreachable"
	case NotAuthorized:
		return "not authorized"
	default:
		return "unknown"
	}
}

// RelayError 电路请求失败
type RelayError struct {
	Kind ErrorKind
	Err  error
}

func newRelayError(kind ErrorKind, err error) *RelayError {
	return &RelayError{Kind: kind, Err: err}
}

func (e *RelayError) Error() string {
	if e.Err == nil {
		return "relay: " + e.Kind.String()
	}
	return fmt.Sprintf("relay: %s: %v", e.Kind, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

// statusFor 电路请求错误对应的 hop 状态码
func statusFor(err error) Status {
	var re *RelayError
	if !errors.As(err, &re) {
		return StatusConnectionFailed
	}
	switch re.Kind {
	case NotAuthorized:
		return StatusPermissionDenied
	case CapacityExceeded:
		return StatusResourceLimitExceeded
	case TargetUnreachable:
		if errors.Is(re.Err, ErrNoReservation) {
			return StatusNoReservation
		}
		return StatusConnectionFailed
	}
	return StatusConnectionFailed
}
