package upgrader

import "errors"

var (
	// ErrNoSecurityTransport 未配置安全协议
	ErrNoSecurityTransport = errors.New("upgrader: no security transport configured")

	// ErrNoStreamMuxer 未配置多路复用协议
	ErrNoStreamMuxer = errors.New("upgrader: no stream muxer configured")

	// ErrMuxerSetup 多路复用协商或会话建立失败
	ErrMuxerSetup = errors.New("upgrader: muxer setup failed")
)
