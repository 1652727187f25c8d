package muxer

import (
	"io"
	"net"

	"github.com/libp2p/go-yamux/v5"

	"github.com/dep2p/go-dep2p-relay/config"
)

// ID 协议标识
const ID = "/yamux/1.0.0"

// Transport yamux 多路复用器
type Transport struct {
	config *yamux.Config
}

var _ Multiplexer = (*Transport)(nil)

// NewTransport 按配置创建 yamux 传输
func NewTransport(cfg config.MuxerConfig) (*Transport, error) {
	yc := yamux.DefaultConfig()
	yc.MaxStreamWindowSize = cfg.MaxStreamWindowSize
	yc.MaxIncomingStreams = cfg.MaxIncomingStreams
	yc.LogOutput = io.Discard
	// 安全层已有缓冲
	yc.ReadBufSize = 0
	if ka := cfg.KeepAliveInterval.Duration(); ka > 0 {
		yc.EnableKeepAlive = true
		yc.KeepAliveInterval = ka
	} else {
		yc.EnableKeepAlive = false
	}
	if err := yamux.VerifyConfig(yc); err != nil {
		return nil, err
	}
	return &Transport{config: yc}, nil
}

// ID 返回协议标识
func (t *Transport) ID() string { return ID }

// NewConn 在安全连接上建立会话
func (t *Transport) NewConn(conn net.Conn, isServer bool) (MuxedConn, error) {
	var (
		sess *yamux.Session
		err  error
	)
	if isServer {
		sess, err = yamux.Server(conn, t.config, nil)
	} else {
		sess, err = yamux.Client(conn, t.config, nil)
	}
	if err != nil {
		return nil, err
	}
	return &muxedConn{session: sess}, nil
}
