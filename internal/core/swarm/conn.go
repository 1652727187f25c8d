package swarm

import (
	"context"
	"fmt"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

// Conn Swarm 管理的连接
type Conn struct {
	transport.CapableConn

	id    uint64
	swarm *Swarm
}

// ID 进程内唯一的连接编号
func (c *Conn) ID() uint64 { return c.id }

func (c *Conn) String() string {
	return fmt.Sprintf("conn#%d<%s %s %s>", c.id, c.RemotePeer().ShortString(), c.Direction(), c.RemoteMultiaddr())
}

// NewStream 在本连接上打开流并协商 protocols 之一
func (c *Conn) NewStream(ctx context.Context, protocols ...string) (*Stream, error) {
	if len(protocols) == 0 {
		return nil, ErrNoProtocols
	}
	ms, err := c.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ms.SetDeadline(deadline)
	}
	selected, err := mss.SelectOneOf(protocols, ms)
	if err != nil {
		_ = ms.Reset()
		return nil, fmt.Errorf("negotiate %v: %w", protocols, err)
	}
	_ = ms.SetDeadline(time.Time{})
	return &Stream{Stream: ms, conn: c, protocol: selected}, nil
}

// handleStream 协商入站流的协议并分发
func (s *Swarm) handleStream(c *Conn, ms muxer.Stream) {
	_ = ms.SetReadDeadline(time.Now().Add(s.cfg.NegotiateTimeout))
	protocol, _, err := s.mux.Negotiate(ms)
	if err != nil {
		log.Debug("入站流协议协商失败", "peer", c.RemotePeer().ShortString(), "err", err)
		_ = ms.Reset()
		return
	}
	_ = ms.SetReadDeadline(time.Time{})

	h := s.handler(protocol)
	if h == nil {
		log.Debug("协议处理器已注销", "protocol", protocol)
		_ = ms.Reset()
		return
	}
	h(&Stream{Stream: ms, conn: c, protocol: protocol})
}

// acceptStreams 入站流循环，退出时关闭连接
func (s *Swarm) acceptStreams(c *Conn) {
	defer s.wg.Done()
	defer c.Close()

	for {
		ms, err := c.AcceptStream()
		if err != nil {
			log.Debug("入站流循环退出", "conn", c.id, "err", err)
			return
		}
		go s.handleStream(c, ms)
	}
}
