package quic

import (
	"context"
	"errors"
	"io"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

// conn QUIC 连接即已升级连接
type conn struct {
	qc        quic.Connection
	localPeer identity.PeerID
	remotePub *identity.PublicKey
	local     ma.Multiaddr
	remote    ma.Multiaddr
	dir       transport.Direction
}

var _ transport.CapableConn = (*conn)(nil)

func (c *conn) OpenStream(ctx context.Context) (muxer.Stream, error) {
	s, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, c.mapError(err)
	}
	return &stream{s: s, c: c}, nil
}

func (c *conn) AcceptStream() (muxer.Stream, error) {
	s, err := c.qc.AcceptStream(c.qc.Context())
	if err != nil {
		return nil, c.mapError(err)
	}
	return &stream{s: s, c: c}, nil
}

func (c *conn) Close() error {
	return c.qc.CloseWithError(0, "")
}

func (c *conn) IsClosed() bool                        { return c.qc.Context().Err() != nil }
func (c *conn) CloseChan() <-chan struct{}           { return c.qc.Context().Done() }
func (c *conn) LocalPeer() identity.PeerID            { return c.localPeer }
func (c *conn) RemotePeer() identity.PeerID           { return c.remotePub.PeerID() }
func (c *conn) RemotePublicKey() *identity.PublicKey { return c.remotePub }
func (c *conn) LocalMultiaddr() ma.Multiaddr          { return c.local }
func (c *conn) RemoteMultiaddr() ma.Multiaddr         { return c.remote }
func (c *conn) Security() string                      { return ID }
func (c *conn) Muxer() string                         { return ID }
func (c *conn) Direction() transport.Direction        { return c.dir }

// mapError 连接已关闭时统一返回 muxer.ErrSessionClosed
func (c *conn) mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *quic.StreamError
	if errors.As(err, &se) {
		return muxer.ErrStreamReset
	}
	if c.IsClosed() {
		return muxer.ErrSessionClosed
	}
	return err
}

type stream struct {
	s quic.Stream
	c *conn
}

var _ muxer.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.s.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = s.c.mapError(err)
	}
	return n, err
}

func (s *stream) Write(p []byte) (int, error) {
	n, err := s.s.Write(p)
	return n, s.c.mapError(err)
}

// Close 关闭写端并放弃读取
func (s *stream) Close() error {
	s.s.CancelRead(0)
	return s.s.Close()
}

func (s *stream) CloseWrite() error { return s.s.Close() }

func (s *stream) CloseRead() error {
	s.s.CancelRead(0)
	return nil
}

func (s *stream) Reset() error {
	s.s.CancelRead(0)
	s.s.CancelWrite(0)
	return nil
}

func (s *stream) SetDeadline(t time.Time) error      { return s.s.SetDeadline(t) }
func (s *stream) SetReadDeadline(t time.Time) error  { return s.s.SetReadDeadline(t) }
func (s *stream) SetWriteDeadline(t time.Time) error { return s.s.SetWriteDeadline(t) }
