package muxer

import (
	"errors"

	"github.com/libp2p/go-yamux/v5"
)

var (
	// ErrSessionClosed 会话（或流）已关闭
	ErrSessionClosed = errors.New("muxer: session closed")

	// ErrStreamReset 流被任一方重置
	ErrStreamReset = errors.New("muxer: stream reset")
)

// parseError 把 yamux 错误映射为本包错误，其余原样返回
func parseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, yamux.ErrStreamReset):
		return ErrStreamReset
	case errors.Is(err, yamux.ErrSessionShutdown),
		errors.Is(err, yamux.ErrStreamClosed):
		return ErrSessionClosed
	}
	return err
}
