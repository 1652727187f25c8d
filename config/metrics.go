package config

import (
	"net"
	"strings"

	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	// ListenAddr 指标 HTTP 监听地址，如 "127.0.0.1:9090"，空表示不暴露
	ListenAddr string `json:"listen_addr"`

	// Namespace 指标名前缀
	Namespace string `json:"namespace"`
}

// DefaultMetricsConfig 不暴露 HTTP 端点
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "relay"}
}

// Validate 地址须为 host:port
func (c *MetricsConfig) Validate() error {
	if c.Namespace == "" {
		return NewError("metrics.namespace", "不能为空")
	}
	if c.ListenAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return NewError("metrics.listen_addr", err.Error())
	}
	return nil
}

// LogConfig 日志配置，环境变量 RELAY_LOG_LEVEL 之后应用
type LogConfig struct {
	// Level 形如 "relay=debug,info"
	Level string `json:"level"`
}

// DefaultLogConfig 沿用环境变量
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 每个级别名都必须可识别
func (c *LogConfig) Validate() error {
	for _, part := range strings.Split(c.Level, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		if _, v, ok := strings.Cut(part, "="); ok {
			name = strings.TrimSpace(v)
		}
		if _, ok := logger.ParseLevel(name); !ok {
			return NewError("log.level", "未知级别 "+name)
		}
	}
	return nil
}
