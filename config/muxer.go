package config

import "time"

// MuxerConfig yamux 参数
type MuxerConfig struct {
	// MaxStreamWindowSize 单流最大接收窗口（字节）
	MaxStreamWindowSize uint32 `json:"max_stream_window_size"`

	// KeepAliveInterval yamux 会话保活间隔，0 关闭
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// MaxIncomingStreams 单连接最多同时打开的入站流
	MaxIncomingStreams uint32 `json:"max_incoming_streams"`
}

// DefaultMuxerConfig 默认 16MiB 窗口
func DefaultMuxerConfig() MuxerConfig {
	return MuxerConfig{
		MaxStreamWindowSize: 16 << 20,
		KeepAliveInterval:   Duration(30 * time.Second),
		MaxIncomingStreams:  1000,
	}
}

// Validate yamux 要求窗口不小于 256KiB
func (c *MuxerConfig) Validate() error {
	if c.MaxStreamWindowSize < 256<<10 {
		return NewError("muxer.max_stream_window_size", "不能小于 256KiB")
	}
	if c.KeepAliveInterval < 0 {
		return NewError("muxer.keep_alive_interval", "不能为负")
	}
	if c.MaxIncomingStreams == 0 {
		return NewError("muxer.max_incoming_streams", "必须大于 0")
	}
	return nil
}
