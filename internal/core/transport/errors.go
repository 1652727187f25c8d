package transport

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")

	// ErrUnsupportedAddr 地址不属于本传输
	ErrUnsupportedAddr = errors.New("unsupported multiaddr")
)

// BindErrorKind 绑定失败类别
type BindErrorKind int

const (
	// BindOther 未归类的绑定失败
	BindOther BindErrorKind = iota
	// AddressInUse 地址已被占用
	AddressInUse
	// PermissionDenied 无权限（如特权端口）
	PermissionDenied
	// UnsupportedFamily 系统不支持该地址族
	UnsupportedFamily
)

func (k BindErrorKind) String() string {
	switch k {
	case AddressInUse:
		return "address in use"
	case PermissionDenied:
		return "permission denied"
	case UnsupportedFamily:
		return "unsupported address family"
	default:
		return "bind failed"
	}
}

// BindError 监听失败，对进程是致命的
type BindError struct {
	Kind BindErrorKind
	Addr ma.Multiaddr
	Err  error
}

// NewBindError 根据底层错误归类
func NewBindError(addr ma.Multiaddr, err error) *BindError {
	return &BindError{Kind: classifyBindError(err), Addr: addr, Err: err}
}

func (e *BindError) Error() string {
	return fmt.Sprintf("listen %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// UpgradeError 单个入站连接升级失败，不影响监听器
type UpgradeError struct {
	Local  ma.Multiaddr
	Remote ma.Multiaddr
	Err    error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("upgrade inbound connection from %s: %v", e.Remote, e.Err)
}

func (e *UpgradeError) Unwrap() error { return e.Err }
