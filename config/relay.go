package config

import "time"

// RelayConfig 中继服务配置（Circuit Relay v2 服务端）
type RelayConfig struct {
	// ReservationTTL 预约有效期
	ReservationTTL Duration `json:"reservation_ttl"`

	// MaxReservations 最大预约数
	MaxReservations int `json:"max_reservations"`

	// MaxReservationsPerIP 单个 IP 最多预约数
	MaxReservationsPerIP int `json:"max_reservations_per_ip"`

	// MaxCircuits 同时活跃的电路上限
	MaxCircuits int `json:"max_circuits"`

	// MaxCircuitsPerPeer 单个节点作为源或目标的电路上限
	MaxCircuitsPerPeer int `json:"max_circuits_per_peer"`

	// CircuitDuration 单条电路最长存活时间
	CircuitDuration Duration `json:"circuit_duration"`

	// CircuitData 单条电路每个方向最多转发的字节数，0 不限
	CircuitData uint64 `json:"circuit_data"`

	// Bandwidth 每条电路每方向的带宽上限（字节/秒），0 不限
	Bandwidth int64 `json:"bandwidth"`

	// BufferSize 转发缓冲区大小
	BufferSize int `json:"buffer_size"`

	// ConnectTimeout 连接目标并完成 STOP 握手的超时
	ConnectTimeout Duration `json:"connect_timeout"`

	// AllowList 非空时，只允许其中的节点发起电路请求
	AllowList []string `json:"allow_list,omitempty"`
}

// DefaultRelayConfig 与 libp2p 默认资源相近的限制
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ReservationTTL:       Duration(time.Hour),
		MaxReservations:      128,
		MaxReservationsPerIP: 8,
		MaxCircuits:          64,
		MaxCircuitsPerPeer:   16,
		CircuitDuration:      Duration(2 * time.Minute),
		CircuitData:          1 << 17,
		BufferSize:           2048,
		ConnectTimeout:       Duration(30 * time.Second),
	}
}

// Validate 校验中继限制
func (c *RelayConfig) Validate() error {
	switch {
	case c.ReservationTTL <= 0:
		return NewError("relay.reservation_ttl", "必须大于 0")
	case c.MaxReservations <= 0:
		return NewError("relay.max_reservations", "必须大于 0")
	case c.MaxReservationsPerIP <= 0:
		return NewError("relay.max_reservations_per_ip", "必须大于 0")
	case c.MaxCircuits <= 0:
		return NewError("relay.max_circuits", "必须大于 0")
	case c.MaxCircuitsPerPeer <= 0:
		return NewError("relay.max_circuits_per_peer", "必须大于 0")
	case c.CircuitDuration <= 0:
		return NewError("relay.circuit_duration", "必须大于 0")
	case c.Bandwidth < 0:
		return NewError("relay.bandwidth", "不能为负")
	case c.BufferSize <= 0:
		return NewError("relay.buffer_size", "必须大于 0")
	case c.ConnectTimeout <= 0:
		return NewError("relay.connect_timeout", "必须大于 0")
	}
	return nil
}
