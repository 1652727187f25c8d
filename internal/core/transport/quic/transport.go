package quic

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	tlssec "github.com/dep2p/go-dep2p-relay/internal/core/security/tls"
	"github.com/dep2p/go-dep2p-relay/internal/core/transport"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

// ID 安全/多路复用标识
const ID = "/quic-v1"

var log = logger.Logger("transport/quic")

var quicComponent = ma.StringCast("/quic-v1")

// Transport QUIC 传输
type Transport struct {
	id     *identity.Identity
	tlsID  *tlssec.Identity
	config *quic.Config

	mu        sync.Mutex
	udp       *net.UDPConn
	qt        *quic.Transport
	listeners map[*listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 QUIC 传输
func New(id *identity.Identity, tlsID *tlssec.Identity, handshakeTimeout time.Duration) *Transport {
	return &Transport{
		id:    id,
		tlsID: tlsID,
		config: &quic.Config{
			HandshakeIdleTimeout: handshakeTimeout,
			MaxIdleTimeout:       30 * time.Second,
			KeepAlivePeriod:      15 * time.Second,
			MaxIncomingStreams:   1000,
		},
		listeners: make(map[*listener]struct{}),
	}
}

// Protocols 处理 quic-v1
func (t *Transport) Protocols() []int { return []int{ma.P_QUIC_V1} }

// CanDial 仅接受 <ip4|ip6>/udp/<port>/quic-v1
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	protos := addr.Protocols()
	if len(protos) != 3 || protos[1].Code != ma.P_UDP || protos[2].Code != ma.P_QUIC_V1 {
		return false
	}
	return protos[0].Code == ma.P_IP4 || protos[0].Code == ma.P_IP6
}

func toUDPAddr(addr ma.Multiaddr) (*net.UDPAddr, error) {
	udpPart, _ := ma.SplitLast(addr)
	na, err := manet.ToNetAddr(udpPart)
	if err != nil {
		return nil, err
	}
	ua, ok := na.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnsupportedAddr, addr)
	}
	return ua, nil
}

func fromUDPAddr(a net.Addr) (ma.Multiaddr, error) {
	m, err := manet.FromNetAddr(a)
	if err != nil {
		return nil, err
	}
	return m.Encapsulate(quicComponent), nil
}

// Listen 绑定 UDP 地址并开始接受 QUIC 连接
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	if !t.CanDial(laddr) {
		return nil, transport.ErrUnsupportedAddr
	}
	ua, err := toUDPAddr(laddr)
	if err != nil {
		return nil, transport.NewBindError(laddr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrTransportClosed
	}
	if t.qt != nil {
		return nil, transport.NewBindError(laddr, fmt.Errorf("quic transport already bound to %s", t.udp.LocalAddr()))
	}

	udp, err := net.ListenUDP(ua.Network(), ua)
	if err != nil {
		return nil, transport.NewBindError(laddr, err)
	}
	qt := &quic.Transport{Conn: udp}

	serverConf, _ := t.tlsID.ServerConfig()
	ql, err := qt.Listen(serverConf, t.config)
	if err != nil {
		_ = qt.Close()
		_ = udp.Close()
		return nil, transport.NewBindError(laddr, err)
	}
	bound, err := fromUDPAddr(udp.LocalAddr())
	if err != nil {
		_ = ql.Close()
		return nil, transport.NewBindError(laddr, err)
	}

	t.udp, t.qt = udp, qt
	l := newListener(t, ql, bound)
	t.listeners[l] = struct{}{}
	log.Info("QUIC 监听已启动", "addr", bound)
	return l, nil
}

// dialer 返回共享的 quic.Transport，未监听时使用临时端口
func (t *Transport) dialer() (*quic.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrTransportClosed
	}
	if t.qt == nil {
		udp, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return nil, err
		}
		t.udp, t.qt = udp, &quic.Transport{Conn: udp}
	}
	return t.qt, nil
}

// Dial 拨号并完成 TLS 认证
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr, expected identity.PeerID) (transport.CapableConn, error) {
	if !t.CanDial(raddr) {
		return nil, transport.ErrUnsupportedAddr
	}
	ua, err := toUDPAddr(raddr)
	if err != nil {
		return nil, err
	}
	qt, err := t.dialer()
	if err != nil {
		return nil, err
	}

	clientConf, _ := t.tlsID.ClientConfig(expected)
	qc, err := qt.Dial(ctx, ua, clientConf, t.config)
	if err != nil {
		return nil, err
	}
	return t.wrap(qc, transport.DirOutbound)
}

func (t *Transport) wrap(qc quic.Connection, dir transport.Direction) (*conn, error) {
	pub, err := tlssec.PeerPublicKey(qc.ConnectionState().TLS)
	if err != nil {
		_ = qc.CloseWithError(0, "identity")
		return nil, err
	}
	local, err := fromUDPAddr(qc.LocalAddr())
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, err
	}
	remote, err := fromUDPAddr(qc.RemoteAddr())
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, err
	}
	return &conn{
		qc:        qc,
		localPeer: t.id.PeerID(),
		remotePub: pub,
		local:     local,
		remote:    remote,
		dir:       dir,
	}, nil
}

func (t *Transport) removeListener(l *listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// Close 关闭监听器与 UDP socket
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ls := make([]*listener, 0, len(t.listeners))
	for l := range t.listeners {
		ls = append(ls, l)
	}
	qt, udp := t.qt, t.udp
	t.mu.Unlock()

	var err error
	for _, l := range ls {
		err = multierr.Append(err, l.Close())
	}
	if qt != nil {
		err = multierr.Append(err, qt.Close())
		err = multierr.Append(err, udp.Close())
	}
	return err
}
