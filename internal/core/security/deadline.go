package security

import (
	"context"
	"net"
	"time"
)

// WithHandshakeDeadline 在握手期间为连接设置截止时间
//
// 取 ctx 截止时间与 timeout 中较早者；返回的函数清除截止时间并停止监听 ctx。
// ctx 被取消时立即让阻塞的读写返回。
func WithHandshakeDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) func() {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		_ = conn.SetDeadline(time.Time{})
	}
}
