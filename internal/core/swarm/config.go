package swarm

import (
	"time"

	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
)

// Config Swarm 配置
type Config struct {
	// DialTimeout 异步 Dial 的超时
	DialTimeout time.Duration

	// NegotiateTimeout 入站流协议协商超时
	NegotiateTimeout time.Duration

	// EventBuffer 事件 channel 容量
	EventBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:      10 * time.Second,
		NegotiateTimeout: 60 * time.Second,
		EventBuffer:      256,
	}
}

// Option Swarm 选项
type Option func(*Swarm)

// WithConfig 覆盖默认配置，非正值保持默认
func WithConfig(cfg Config) Option {
	return func(s *Swarm) {
		if cfg.DialTimeout > 0 {
			s.cfg.DialTimeout = cfg.DialTimeout
		}
		if cfg.NegotiateTimeout > 0 {
			s.cfg.NegotiateTimeout = cfg.NegotiateTimeout
		}
		if cfg.EventBuffer > 0 {
			s.cfg.EventBuffer = cfg.EventBuffer
		}
	}
}

// WithMetrics 记录连接指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Swarm) { s.metrics = m }
}

// WithAddrResolver 设置 DialPeer 的地址来源
func WithAddrResolver(r AddrResolver) Option {
	return func(s *Swarm) { s.resolver = r }
}
