package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Kind 协商错误类别
type Kind int

const (
	// KindHandshakeFailed 握手消息非法或被拒绝
	KindHandshakeFailed Kind = iota + 1
	// KindTimeout 在时限内未收到响应
	KindTimeout
	// KindIO 底层连接关闭或读写失败
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindHandshakeFailed:
		return "handshake failed"
	case KindTimeout:
		return "timeout"
	case KindIO:
		return "io error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// 与 Kind 对应的哨兵，配合 errors.Is 使用
var (
	ErrHandshakeFailed = errors.New("security: handshake failed")
	ErrTimeout         = errors.New("security: handshake timeout")
	ErrIO              = errors.New("security: io error")
)

// NegotiationError 握手失败，仅影响当前连接
type NegotiationError struct {
	Kind Kind
	Err  error
}

// NewNegotiationError 构造协商错误
func NewNegotiationError(kind Kind, err error) *NegotiationError {
	return &NegotiationError{Kind: kind, Err: err}
}

func (e *NegotiationError) Error() string {
	if e.Err == nil {
		return "security: " + e.Kind.String()
	}
	return fmt.Sprintf("security: %s: %v", e.Kind, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Is 匹配 Kind 对应的哨兵
func (e *NegotiationError) Is(target error) bool {
	switch target {
	case ErrHandshakeFailed:
		return e.Kind == KindHandshakeFailed
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrIO:
		return e.Kind == KindIO
	}
	return false
}

// PeerMismatchError 握手得到的身份与期望不符
type PeerMismatchError struct {
	Expected fmt.Stringer
	Actual   fmt.Stringer
}

func (e *PeerMismatchError) Error() string {
	return fmt.Sprintf("peer id mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Classify 把握手过程中的底层错误归入 Kind
//
// 已是 *NegotiationError 的原样返回。
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ne *NegotiationError
	if errors.As(err, &ne) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return NewNegotiationError(KindTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, context.Canceled):
		return NewNegotiationError(KindIO, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewNegotiationError(KindIO, err)
	}
	return NewNegotiationError(KindHandshakeFailed, err)
}
