package swarm

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

// EventKind 事件类别
type EventKind int

const (
	// NewListenAddr 新的监听地址可用
	NewListenAddr EventKind = iota + 1
	// ExpiredListenAddr 监听地址失效
	ExpiredListenAddr
	// ListenerClosed 监听器关闭
	ListenerClosed
	// IncomingConnection 入站连接到达
	IncomingConnection
	// IncomingConnectionError 入站连接升级失败
	IncomingConnectionError
	// ConnectionEstablished 连接建立
	ConnectionEstablished
	// ConnectionClosed 连接关闭
	ConnectionClosed
	// OutgoingConnectionError 出站拨号失败
	OutgoingConnectionError
)

func (k EventKind) String() string {
	switch k {
	case NewListenAddr:
		return "new_listen_addr"
	case ExpiredListenAddr:
		return "expired_listen_addr"
	case ListenerClosed:
		return "listener_closed"
	case IncomingConnection:
		return "incoming_connection"
	case IncomingConnectionError:
		return "incoming_connection_error"
	case ConnectionEstablished:
		return "connection_established"
	case ConnectionClosed:
		return "connection_closed"
	case OutgoingConnectionError:
		return "outgoing_connection_error"
	default:
		return "unknown"
	}
}

// Event Swarm 事件，字段按 Kind 取用
type Event struct {
	Kind EventKind

	// Peer 连接事件的对端
	Peer identity.PeerID
	// Conn 连接事件的连接
	Conn *Conn
	// Addr 监听地址、入站远端地址或出站拨号地址
	Addr ma.Multiaddr
	// Listener 监听事件对应的绑定地址
	Listener ma.Multiaddr
	// Err 失败原因，ListenerClosed 正常关闭时为空
	Err error

	// NumEstablished 事件发生后到该节点的连接数
	NumEstablished int
	// RemainingListeners ListenerClosed 后仍在运行的监听器数
	RemainingListeners int
}
