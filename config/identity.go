package config

// IdentityConfig 身份配置
//
// 节点密钥由单字节种子确定性派生。Seed 为 nil 表示未设置。
type IdentityConfig struct {
	Seed *uint8 `json:"seed,omitempty"`
}

// DefaultIdentityConfig 未设置种子
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// SetSeed 设置种子
func (c *IdentityConfig) SetSeed(seed uint8) {
	c.Seed = &seed
}

// Validate 种子必须存在
func (c *IdentityConfig) Validate() error {
	if c.Seed == nil {
		return NewError("identity.seed", "必须指定密钥种子 (0-255)")
	}
	return nil
}
