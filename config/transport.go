package config

import "time"

// TransportConfig 传输层配置
type TransportConfig struct {
	// Port 监听端口，0 表示由系统分配
	Port uint16 `json:"port"`

	// UseIPv6 监听 :: 而不是 0.0.0.0
	UseIPv6 bool `json:"use_ipv6"`

	// EnableQUIC 额外在同一端口监听 QUIC (udp)
	EnableQUIC bool `json:"enable_quic"`

	// DialTimeout 出站拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// NegotiateTimeout 协议协商（multistream）超时
	NegotiateTimeout Duration `json:"negotiate_timeout"`
}

// DefaultTransportConfig 默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:      Duration(10 * time.Second),
		NegotiateTimeout: Duration(60 * time.Second),
	}
}

// Validate 校验传输配置
func (c *TransportConfig) Validate() error {
	if c.DialTimeout <= 0 {
		return NewError("transport.dial_timeout", "必须大于 0")
	}
	if c.NegotiateTimeout <= 0 {
		return NewError("transport.negotiate_timeout", "必须大于 0")
	}
	return nil
}
