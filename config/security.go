package config

import (
	"fmt"
	"time"
)

// 安全协议名称
const (
	SecurityNoise = "noise"
	SecurityTLS   = "tls"
)

// SecurityConfig 安全通道配置
type SecurityConfig struct {
	// Protocols 按优先级排列的安全协议，出站协商时依次提议
	Protocols []string `json:"protocols"`

	// HandshakeTimeout 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// DefaultSecurityConfig TLS 优先，Noise 兜底
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		Protocols:        []string{SecurityTLS, SecurityNoise},
		HandshakeTimeout: Duration(30 * time.Second),
	}
}

// Validate 至少一个已知协议，且不重复
func (c *SecurityConfig) Validate() error {
	if len(c.Protocols) == 0 {
		return NewError("security.protocols", "至少启用一种安全协议")
	}
	seen := make(map[string]bool, len(c.Protocols))
	for _, p := range c.Protocols {
		if p != SecurityNoise && p != SecurityTLS {
			return NewError("security.protocols", fmt.Sprintf("未知协议 %q", p))
		}
		if seen[p] {
			return NewError("security.protocols", fmt.Sprintf("重复的协议 %q", p))
		}
		seen[p] = true
	}
	if c.HandshakeTimeout <= 0 {
		return NewError("security.handshake_timeout", "必须大于 0")
	}
	return nil
}
