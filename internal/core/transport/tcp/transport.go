package tcp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/core/upgrader"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("transport/tcp")

// Transport TCP 传输
type Transport struct {
	upgrader    *upgrader.Upgrader
	dialTimeout time.Duration

	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    atomic.Bool
}

// 确保实现接口
var _ transport.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New(u *upgrader.Upgrader, dialTimeout time.Duration) *Transport {
	return &Transport{
		upgrader:    u,
		dialTimeout: dialTimeout,
		listeners:   make(map[*listener]struct{}),
	}
}

// Protocols 处理 tcp
func (t *Transport) Protocols() []int { return []int{ma.P_TCP} }

// CanDial 仅接受 <ip4|ip6|dns*>/tcp/<port>
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	protos := addr.Protocols()
	if len(protos) != 2 || protos[1].Code != ma.P_TCP {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
		return true
	}
	return false
}

// Dial 拨号并升级
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr, expected identity.PeerID) (transport.CapableConn, error) {
	if t.closed.Load() {
		return nil, transport.ErrTransportClosed
	}
	if !t.CanDial(raddr) {
		return nil, transport.ErrUnsupportedAddr
	}

	dctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	var d manet.Dialer
	raw, err := d.DialContext(dctx, raddr)
	if err != nil {
		return nil, err
	}
	return t.upgrader.Upgrade(ctx, raw, transport.DirOutbound, raw.LocalMultiaddr(), raw.RemoteMultiaddr(), expected)
}

// Listen 绑定地址，失败返回 *transport.BindError
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	if t.closed.Load() {
		return nil, transport.ErrTransportClosed
	}
	if !t.CanDial(laddr) {
		return nil, transport.ErrUnsupportedAddr
	}

	network, host, err := manet.DialArgs(laddr)
	if err != nil {
		return nil, transport.NewBindError(laddr, err)
	}
	nl, err := net.Listen(network, host)
	if err != nil {
		return nil, transport.NewBindError(laddr, err)
	}
	bound, err := manet.FromNetAddr(nl.Addr())
	if err != nil {
		nl.Close()
		return nil, transport.NewBindError(laddr, err)
	}

	l := newListener(nl, bound, t.upgrader, func(l *listener) {
		t.mu.Lock()
		delete(t.listeners, l)
		t.mu.Unlock()
	})
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	log.Info("TCP 监听已启动", "addr", bound)
	return l, nil
}

// Close 关闭所有监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	ls := make([]*listener, 0, len(t.listeners))
	for l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	var err error
	for _, l := range ls {
		err = multierr.Append(err, l.Close())
	}
	return err
}
