package tcp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	tec "github.com/jbenet/go-temp-err-catcher"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/core/upgrader"
)

type acceptResult struct {
	conn transport.CapableConn
	err  error
}

// listener 接受原始连接并并发升级
type listener struct {
	nl       net.Listener
	addr     ma.Multiaddr
	upgrader *upgrader.Upgrader
	onClose  func(*listener)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	incoming chan acceptResult
	closed   atomic.Bool
	fatal    error
}

func newListener(nl net.Listener, addr ma.Multiaddr, u *upgrader.Upgrader, onClose func(*listener)) *listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		nl:       nl,
		addr:     addr,
		upgrader: u,
		onClose:  onClose,
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan acceptResult, 16),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l
}

func (l *listener) acceptLoop() {
	defer l.wg.Done()
	defer close(l.incoming)

	var upgrades sync.WaitGroup
	defer upgrades.Wait()

	// EMFILE 等临时错误退避后重试
	var catcher tec.TempErrCatcher
	for {
		raw, err := l.nl.Accept()
		if err != nil {
			if !l.closed.Load() && catcher.IsTemporary(err) {
				continue
			}
			if !l.closed.Load() {
				l.fatal = err
			}
			return
		}

		upgrades.Add(1)
		go func() {
			defer upgrades.Done()
			l.upgrade(raw)
		}()
	}
}

func (l *listener) upgrade(raw net.Conn) {
	local, _ := manet.FromNetAddr(raw.LocalAddr())
	remote, _ := manet.FromNetAddr(raw.RemoteAddr())

	c, err := l.upgrader.Upgrade(l.ctx, raw, transport.DirInbound, local, remote, "")
	res := acceptResult{conn: c}
	if err != nil {
		res = acceptResult{err: &transport.UpgradeError{Local: local, Remote: remote, Err: err}}
	}

	select {
	case l.incoming <- res:
	case <-l.ctx.Done():
		if c != nil {
			_ = c.Close()
		}
	}
}

// Accept 返回下一个升级完成的连接或单连接的 *transport.UpgradeError
func (l *listener) Accept() (transport.CapableConn, error) {
	res, ok := <-l.incoming
	if !ok {
		if l.fatal != nil {
			return nil, l.fatal
		}
		return nil, transport.ErrListenerClosed
	}
	return res.conn, res.err
}

func (l *listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.cancel()
	err := l.nl.Close()
	// 排空，使阻塞在发送上的升级协程退出
	go func() {
		for res := range l.incoming {
			if res.conn != nil {
				_ = res.conn.Close()
			}
		}
	}()
	l.wg.Wait()
	if l.onClose != nil {
		l.onClose(l)
	}
	return err
}

func (l *listener) Multiaddr() ma.Multiaddr { return l.addr }
