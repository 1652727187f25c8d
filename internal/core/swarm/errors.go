package swarm

import "errors"

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrNoTransport 没有传输能处理该地址
	ErrNoTransport = errors.New("no transport for address")

	// ErrNoAddresses 目标节点没有已知地址
	ErrNoAddresses = errors.New("no addresses for peer")

	// ErrDialSelf 拨号目标是本节点
	ErrDialSelf = errors.New("dial to self attempted")

	// ErrNoListenAddrs Listen 未给出地址
	ErrNoListenAddrs = errors.New("no addresses to listen on")

	// ErrNoProtocols NewStream 未给出协议
	ErrNoProtocols = errors.New("no protocols given")
)
