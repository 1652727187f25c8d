package noise

import (
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
)

const (
	maxFrameSize     = 65535
	maxPlaintextSize = maxFrameSize - 16 // ChaChaPoly tag
)

// secureConn 握手后的加密连接，每帧 2 字节长度前缀
type secureConn struct {
	net.Conn

	send *noise.CipherState
	recv *noise.CipherState

	localPeer  identity.PeerID
	remotePeer identity.PeerID
	remotePub  *identity.PublicKey

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex
}

var _ security.SecureConn = (*secureConn)(nil)

func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		frame, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		plain, err := c.recv.Decrypt(frame[:0], nil, frame)
		if err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
		c.pending = plain
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write 超过单帧容量的数据拆分为多帧
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintextSize
		if end > len(p) {
			end = len(p)
		}
		ciphertext, err := c.send.Encrypt(nil, nil, p[written:end])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		if err := writeFrame(c.Conn, ciphertext); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (c *secureConn) LocalPeer() identity.PeerID            { return c.localPeer }
func (c *secureConn) RemotePeer() identity.PeerID           { return c.remotePeer }
func (c *secureConn) RemotePublicKey() *identity.PublicKey { return c.remotePub }
func (c *secureConn) Protocol() string                      { return ID }
