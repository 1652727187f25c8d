package behaviour

import (
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-dep2p-relay/internal/core/relay"
)

// Kind 事件来源
type Kind int

const (
	// KindRelay 中继事件
	KindRelay Kind = iota + 1
	// KindPing 存活探测事件
	KindPing
	// KindIdentify 身份交换事件
	KindIdentify
)

func (k Kind) String() string {
	switch k {
	case KindRelay:
		return "relay"
	case KindPing:
		return "ping"
	case KindIdentify:
		return "identify"
	default:
		return "unknown"
	}
}

// Event 行为事件，按 Kind 只有一个字段非空
type Event struct {
	Kind     Kind
	Relay    *relay.Event
	Ping     *ping.Event
	Identify *identify.Event
}
