package upgrader

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

// Conn 升级完成的连接：一个安全会话加一个多路复用会话
type Conn struct {
	muxer.MuxedConn

	secure   security.SecureConn
	muxerID  string
	dir      transport.Direction
	local    ma.Multiaddr
	remote   ma.Multiaddr
}

var _ transport.CapableConn = (*Conn)(nil)

func (c *Conn) LocalPeer() identity.PeerID            { return c.secure.LocalPeer() }
func (c *Conn) RemotePeer() identity.PeerID           { return c.secure.RemotePeer() }
func (c *Conn) RemotePublicKey() *identity.PublicKey { return c.secure.RemotePublicKey() }
func (c *Conn) LocalMultiaddr() ma.Multiaddr          { return c.local }
func (c *Conn) RemoteMultiaddr() ma.Multiaddr         { return c.remote }
func (c *Conn) Security() string                      { return c.secure.Protocol() }
func (c *Conn) Muxer() string                         { return c.muxerID }
func (c *Conn) Direction() transport.Direction        { return c.dir }
