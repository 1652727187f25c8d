package ping

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("ping")

// ProtocolID Ping 协议 ID
const ProtocolID = "/ipfs/ping/1.0.0"

const (
	// PingSize Ping 消息大小（32 字节）
	PingSize = 32

	// HandlerIdleTimeout 入站处理器空闲超时
	HandlerIdleTimeout = 60 * time.Second
)

var (
	// ErrDataMismatch 回显数据不匹配
	ErrDataMismatch = errors.New("ping: echo data mismatch")

	// ErrTimeout 超时未收到回显
	ErrTimeout = errors.New("ping: timeout")
)

// Stream ping 使用的流
type Stream interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	Reset() error
}

// Handle 处理入站 ping：读取 32 字节并回显，直到 EOF 或空闲超时
func Handle(s Stream) {
	defer s.Close()

	buf := make([]byte, PingSize)
	for {
		_ = s.SetReadDeadline(time.Now().Add(HandlerIdleTimeout))
		if _, err := io.ReadFull(s, buf); err != nil {
			return
		}
		if _, err := s.Write(buf); err != nil {
			return
		}
	}
}

// RoundTrip 在流上完成一次 ping，返回往返时间，不设置超时
func RoundTrip(s Stream, clk clock.Clock) (time.Duration, error) {
	buf := make([]byte, PingSize)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}

	start := clk.Now()
	if _, err := s.Write(buf); err != nil {
		return 0, err
	}
	echo := make([]byte, PingSize)
	if _, err := io.ReadFull(s, echo); err != nil {
		return 0, err
	}
	rtt := clk.Since(start)

	if !bytes.Equal(buf, echo) {
		return 0, ErrDataMismatch
	}
	return rtt, nil
}
