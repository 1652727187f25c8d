package eventloop

import "errors"

var (
	// ErrLoopStopped 循环已退出，查询无法完成
	ErrLoopStopped = errors.New("event loop stopped")

	// ErrAllListenersClosed 所有监听器都已因错误关闭
	ErrAllListenersClosed = errors.New("all listeners closed")

	// ErrAlreadyRunning Run 只能调用一次
	ErrAlreadyRunning = errors.New("event loop already running")
)
