// Package config 定义中继节点配置
//
// 主 Config 聚合所有子配置，每个子配置提供 Default 构造与 Validate：
//
//	cfg := config.NewConfig()
//	cfg.Identity.SetSeed(7)
//	cfg.Transport.Port = 4001
//	if err := cfg.Validate(); err != nil { ... }
//
//	// 从 JSON 文件加载，未出现的字段保留默认值
//	cfg, err := config.FromFile("relay.json")
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config 中继节点完整配置
type Config struct {
	// Identity 身份（种子）
	Identity IdentityConfig `json:"identity"`

	// Transport 监听地址与传输协议
	Transport TransportConfig `json:"transport"`

	// Security 安全通道
	Security SecurityConfig `json:"security"`

	// Muxer 流多路复用
	Muxer MuxerConfig `json:"muxer"`

	// Relay 中继服务限制
	Relay RelayConfig `json:"relay"`

	// Ping 存活探测
	Ping PingConfig `json:"ping"`

	// Identify 身份交换
	Identify IdentifyConfig `json:"identify"`

	// EventLoop 事件循环与外部地址集
	EventLoop EventLoopConfig `json:"event_loop"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志级别
	Log LogConfig `json:"log"`
}

// NewConfig 返回全部使用默认值的配置
//
// 种子没有默认值，调用方必须显式设置。
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Security:  DefaultSecurityConfig(),
		Muxer:     DefaultMuxerConfig(),
		Relay:     DefaultRelayConfig(),
		Ping:      DefaultPingConfig(),
		Identify:  DefaultIdentifyConfig(),
		EventLoop: DefaultEventLoopConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 依次校验所有子配置，返回第一个 *Error
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Identity, &c.Transport, &c.Security, &c.Muxer,
		&c.Relay, &c.Ping, &c.Identify, &c.EventLoop, &c.Metrics, &c.Log,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FromJSON 在默认配置之上解析 JSON
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewError("", fmt.Sprintf("解析 JSON 失败: %v", err))
	}
	return cfg, nil
}

// FromFile 读取 JSON 配置文件
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("", fmt.Sprintf("读取配置文件 %s 失败: %v", path, err))
	}
	return FromJSON(data)
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
