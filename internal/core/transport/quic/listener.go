package quic

import (
	"context"
	"errors"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
)

type listener struct {
	t    *Transport
	ql   *quic.Listener
	addr ma.Multiaddr

	ctx    context.Context
	cancel context.CancelFunc
}

func newListener(t *Transport, ql *quic.Listener, addr ma.Multiaddr) *listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &listener{t: t, ql: ql, addr: addr, ctx: ctx, cancel: cancel}
}

// Accept TLS 已由 quic-go 完成；身份提取失败返回 *transport.UpgradeError
func (l *listener) Accept() (transport.CapableConn, error) {
	qc, err := l.ql.Accept(l.ctx)
	if err != nil {
		if errors.Is(err, quic.ErrServerClosed) || l.ctx.Err() != nil {
			return nil, transport.ErrListenerClosed
		}
		return nil, err
	}
	c, err := l.t.wrap(qc, transport.DirInbound)
	if err != nil {
		remote, _ := fromUDPAddr(qc.RemoteAddr())
		return nil, &transport.UpgradeError{Local: l.addr, Remote: remote, Err: err}
	}
	return c, nil
}

func (l *listener) Close() error {
	l.cancel()
	l.t.removeListener(l)
	return l.ql.Close()
}

func (l *listener) Multiaddr() ma.Multiaddr { return l.addr }
