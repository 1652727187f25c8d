package muxer

import (
	"context"
	"io"
	"net"
	"time"
)

// Stream 逻辑流
type Stream interface {
	io.ReadWriteCloser

	// CloseWrite 半关闭写端，对端读到 EOF
	CloseWrite() error
	// CloseRead 不再读取
	CloseRead() error
	// Reset 异常终止，双方后续读写都会失败
	Reset() error

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// MuxedConn 多路复用会话
type MuxedConn interface {
	// OpenStream 打开出站流
	OpenStream(ctx context.Context) (Stream, error)
	// AcceptStream 阻塞等待入站流，会话关闭后返回 ErrSessionClosed
	AcceptStream() (Stream, error)

	Close() error
	IsClosed() bool
	// CloseChan 会话关闭时关闭
	CloseChan() <-chan struct{}
}

// Multiplexer 多路复用协议
type Multiplexer interface {
	ID() string
	NewConn(conn net.Conn, isServer bool) (MuxedConn, error)
}
