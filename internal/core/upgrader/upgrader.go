package upgrader

import (
	"context"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/security"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("upgrader")

// Upgrader 连接升级器
type Upgrader struct {
	security         []security.SecureTransport
	muxers           []muxer.Multiplexer
	negotiateTimeout time.Duration
}

// New 创建升级器，security 与 muxers 按优先级排列
func New(secs []security.SecureTransport, muxers []muxer.Multiplexer, negotiateTimeout time.Duration) (*Upgrader, error) {
	if len(secs) == 0 {
		return nil, ErrNoSecurityTransport
	}
	if len(muxers) == 0 {
		return nil, ErrNoStreamMuxer
	}
	return &Upgrader{security: secs, muxers: muxers, negotiateTimeout: negotiateTimeout}, nil
}

// SecurityProtocols 按优先级返回安全协议 ID
func (u *Upgrader) SecurityProtocols() []string {
	ids := make([]string, len(u.security))
	for i, s := range u.security {
		ids[i] = s.ID()
	}
	return ids
}

// Upgrade 升级原始连接，失败时关闭 conn
//
// laddr/raddr 是连接两端的 multiaddr；expected 仅对出站有效。
func (u *Upgrader) Upgrade(ctx context.Context, conn net.Conn, dir transport.Direction,
	laddr, raddr ma.Multiaddr, expected identity.PeerID) (*Conn, error) {
	c, err := u.upgrade(ctx, conn, dir, laddr, raddr, expected)
	if err != nil {
		_ = conn.Close()
		log.Debug("连接升级失败", "direction", dir, "remote", raddr, "err", err)
		return nil, err
	}
	log.Debug("连接升级成功",
		"direction", dir,
		"remotePeer", c.RemotePeer().ShortString(),
		"security", c.Security(),
		"muxer", c.Muxer())
	return c, nil
}

func (u *Upgrader) upgrade(ctx context.Context, conn net.Conn, dir transport.Direction,
	laddr, raddr ma.Multiaddr, expected identity.PeerID) (*Conn, error) {
	isServer := dir == transport.DirInbound

	st, err := u.negotiateSecurity(ctx, conn, isServer)
	if err != nil {
		return nil, err
	}

	var sc security.SecureConn
	if isServer {
		sc, err = st.SecureInbound(ctx, conn)
	} else {
		sc, err = st.SecureOutbound(ctx, conn, expected)
	}
	if err != nil {
		return nil, err
	}

	mx, err := u.negotiateMuxer(ctx, sc, isServer)
	if err != nil {
		return nil, err
	}
	mc, err := mx.NewConn(sc, isServer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMuxerSetup, err)
	}

	return &Conn{
		MuxedConn: mc,
		secure:    sc,
		muxerID:   mx.ID(),
		dir:       dir,
		local:     laddr,
		remote:    raddr,
	}, nil
}

// negotiateSecurity 协商失败归类为 NegotiationError
func (u *Upgrader) negotiateSecurity(ctx context.Context, conn net.Conn, isServer bool) (security.SecureTransport, error) {
	done := security.WithHandshakeDeadline(ctx, conn, u.negotiateTimeout)
	selected, err := negotiate(conn, u.SecurityProtocols(), isServer)
	done()
	if err != nil {
		return nil, security.Classify(fmt.Errorf("negotiate security: %w", err))
	}
	for _, st := range u.security {
		if st.ID() == selected {
			return st, nil
		}
	}
	return nil, security.NewNegotiationError(security.KindHandshakeFailed,
		fmt.Errorf("negotiated unknown security protocol %q", selected))
}

func (u *Upgrader) negotiateMuxer(ctx context.Context, conn net.Conn, isServer bool) (muxer.Multiplexer, error) {
	ids := make([]string, len(u.muxers))
	for i, m := range u.muxers {
		ids[i] = m.ID()
	}

	done := security.WithHandshakeDeadline(ctx, conn, u.negotiateTimeout)
	selected, err := negotiate(conn, ids, isServer)
	done()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMuxerSetup, err)
	}
	for _, m := range u.muxers {
		if m.ID() == selected {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown muxer %q", ErrMuxerSetup, selected)
}
