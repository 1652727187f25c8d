package transport

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
)

// Direction 连接方向
type Direction int

const (
	// DirInbound 对端发起
	DirInbound Direction = iota + 1
	// DirOutbound 本端发起
	DirOutbound
)

func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// CapableConn 已完成安全协商与多路复用的连接
type CapableConn interface {
	muxer.MuxedConn

	LocalPeer() identity.PeerID
	RemotePeer() identity.PeerID
	RemotePublicKey() *identity.PublicKey

	LocalMultiaddr() ma.Multiaddr
	RemoteMultiaddr() ma.Multiaddr

	// Security 安全协议 ID
	Security() string
	// Muxer 多路复用协议 ID
	Muxer() string
	Direction() Direction
}

// Listener 监听器，Accept 只返回升级完成的连接
//
// 单个连接升级失败时 Accept 返回 *UpgradeError，监听器仍可继续使用；
// 返回其他错误表示监听器已关闭。
type Listener interface {
	Accept() (CapableConn, error)
	Close() error
	Multiaddr() ma.Multiaddr
}

// Transport 传输协议
type Transport interface {
	// CanDial 地址是否由本传输处理
	CanDial(addr ma.Multiaddr) bool

	// Dial 拨号并完成升级，expected 为空表示不校验对端身份
	Dial(ctx context.Context, raddr ma.Multiaddr, expected identity.PeerID) (CapableConn, error)

	// Listen 绑定地址，失败返回 *BindError
	Listen(laddr ma.Multiaddr) (Listener, error)

	// Protocols 本传输处理的 multiaddr 协议码
	Protocols() []int

	Close() error
}
