package swarm

import (
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
)

// Stream 已协商协议的流
type Stream struct {
	muxer.Stream

	conn     *Conn
	protocol string
}

// Protocol 协商得到的协议 ID
func (s *Stream) Protocol() string { return s.protocol }

// Conn 所属连接
func (s *Stream) Conn() *Conn { return s.conn }

// RemotePeer 对端节点
func (s *Stream) RemotePeer() identity.PeerID { return s.conn.RemotePeer() }
