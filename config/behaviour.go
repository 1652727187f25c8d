package config

import "time"

// PingConfig 存活探测配置
type PingConfig struct {
	// Interval 探测间隔
	Interval Duration `json:"interval"`

	// Timeout 单次往返超时
	Timeout Duration `json:"timeout"`

	// MaxFailures 连续失败多少次判定节点无响应
	MaxFailures int `json:"max_failures"`

	// CloseUnresponsive 节点无响应时事件循环是否关闭连接
	CloseUnresponsive bool `json:"close_unresponsive"`
}

// DefaultPingConfig 15 秒间隔、20 秒超时、连续 3 次失败
func DefaultPingConfig() PingConfig {
	return PingConfig{
		Interval:          Duration(15 * time.Second),
		Timeout:           Duration(20 * time.Second),
		MaxFailures:       3,
		CloseUnresponsive: true,
	}
}

// Validate 校验探测参数
func (c *PingConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return NewError("ping.interval", "必须大于 0")
	case c.Timeout <= 0:
		return NewError("ping.timeout", "必须大于 0")
	case c.MaxFailures <= 0:
		return NewError("ping.max_failures", "必须大于 0")
	}
	return nil
}

// IdentifyConfig 身份交换配置
type IdentifyConfig struct {
	// ProtocolVersion 对外宣告的协议版本
	ProtocolVersion string `json:"protocol_version"`

	// AgentVersion 对外宣告的实现版本
	AgentVersion string `json:"agent_version"`

	// Timeout 单次交换超时
	Timeout Duration `json:"timeout"`
}

// DefaultIdentifyConfig 默认身份交换配置
func DefaultIdentifyConfig() IdentifyConfig {
	return IdentifyConfig{
		ProtocolVersion: "/TODO/0.0.1",
		AgentVersion:    "dep2p-relay/0.1.0",
		Timeout:         Duration(30 * time.Second),
	}
}

// Validate 协议版本不能为空
func (c *IdentifyConfig) Validate() error {
	if c.ProtocolVersion == "" {
		return NewError("identify.protocol_version", "不能为空")
	}
	if c.Timeout <= 0 {
		return NewError("identify.timeout", "必须大于 0")
	}
	return nil
}

// EventLoopConfig 事件循环配置
type EventLoopConfig struct {
	// MaxExternalPeers 外部地址集最多记录的节点数
	MaxExternalPeers int `json:"max_external_peers"`

	// MaxAddrsPerPeer 每个节点最多记录的地址数
	MaxAddrsPerPeer int `json:"max_addrs_per_peer"`
}

// DefaultEventLoopConfig 默认外部地址集容量
func DefaultEventLoopConfig() EventLoopConfig {
	return EventLoopConfig{
		MaxExternalPeers: 4096,
		MaxAddrsPerPeer:  16,
	}
}

// Validate 容量必须为正
func (c *EventLoopConfig) Validate() error {
	if c.MaxExternalPeers <= 0 {
		return NewError("event_loop.max_external_peers", "必须大于 0")
	}
	if c.MaxAddrsPerPeer <= 0 {
		return NewError("event_loop.max_addrs_per_peer", "必须大于 0")
	}
	return nil
}
