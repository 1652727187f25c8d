package muxer

import (
	"context"
	"time"

	"github.com/libp2p/go-yamux/v5"
)

type muxedConn struct {
	session *yamux.Session
}

var _ MuxedConn = (*muxedConn)(nil)

func (c *muxedConn) OpenStream(ctx context.Context) (Stream, error) {
	s, err := c.session.OpenStream(ctx)
	if err != nil {
		return nil, parseError(err)
	}
	return &muxedStream{stream: s}, nil
}

func (c *muxedConn) AcceptStream() (Stream, error) {
	s, err := c.session.AcceptStream()
	if err != nil {
		return nil, parseError(err)
	}
	return &muxedStream{stream: s}, nil
}

func (c *muxedConn) Close() error                { return c.session.Close() }
func (c *muxedConn) IsClosed() bool              { return c.session.IsClosed() }
func (c *muxedConn) CloseChan() <-chan struct{} { return c.session.CloseChan() }

type muxedStream struct {
	stream *yamux.Stream
}

var _ Stream = (*muxedStream)(nil)

func (s *muxedStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	return n, parseError(err)
}

func (s *muxedStream) Write(p []byte) (int, error) {
	n, err := s.stream.Write(p)
	return n, parseError(err)
}

func (s *muxedStream) Close() error      { return s.stream.Close() }
func (s *muxedStream) CloseWrite() error { return s.stream.CloseWrite() }
func (s *muxedStream) CloseRead() error  { return s.stream.CloseRead() }
func (s *muxedStream) Reset() error      { return s.stream.Reset() }

func (s *muxedStream) SetDeadline(t time.Time) error      { return s.stream.SetDeadline(t) }
func (s *muxedStream) SetReadDeadline(t time.Time) error  { return s.stream.SetReadDeadline(t) }
func (s *muxedStream) SetWriteDeadline(t time.Time) error { return s.stream.SetWriteDeadline(t) }
