package identify

import (
	"context"
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("identify")

const (
	// ProtocolID Identify 协议 ID
	ProtocolID = "/ipfs/id/1.0.0"

	// ProtocolIDPush Identify Push 协议 ID
	ProtocolIDPush = "/ipfs/id/push/1.0.0"
)

// ErrPeerMismatch 记录中的公钥与连接对端不符
var ErrPeerMismatch = errors.New("identify: public key does not match connection peer")

// EventKind 事件类别
type EventKind int

const (
	// EventReceived 收到并校验通过对端记录
	EventReceived EventKind = iota + 1
	// EventSent 已向对端发送本节点记录
	EventSent
	// EventPushed 已向对端推送本节点记录
	EventPushed
	// EventError 交换失败
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReceived:
		return "received"
	case EventSent:
		return "sent"
	case EventPushed:
		return "pushed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event 身份交换事件
type Event struct {
	Kind   EventKind
	Peer   identity.PeerID
	ConnID uint64
	Info   *Info
	Err    error
}

// Service Identify 服务
type Service struct {
	local     *identity.Identity
	cfg       config.IdentifyConfig
	addrs     func() []ma.Multiaddr
	protocols func() []string
	emit      func(Event)
}

// NewService 创建 Identify 服务
//
// addrs 返回本节点对外宣告的监听地址，protocols 返回已注册的协议。
func NewService(local *identity.Identity, cfg config.IdentifyConfig,
	addrs func() []ma.Multiaddr, protocols func() []string, emit func(Event)) *Service {
	return &Service{
		local:     local,
		cfg:       cfg,
		addrs:     addrs,
		protocols: protocols,
		emit:      emit,
	}
}

// record 构造发给 c 的本节点记录
func (s *Service) record(c *swarm.Conn) *Info {
	info := &Info{
		PublicKey:       s.local.PublicKey(),
		ObservedAddr:    c.RemoteMultiaddr(),
		ProtocolVersion: s.cfg.ProtocolVersion,
		AgentVersion:    s.cfg.AgentVersion,
	}
	if s.addrs != nil {
		info.ListenAddrs = s.addrs()
	}
	if s.protocols != nil {
		info.Protocols = s.protocols()
	}
	return info
}

// Handle 响应方：写出本节点记录后关闭流
func (s *Service) Handle(st *swarm.Stream) {
	defer st.Close()
	c := st.Conn()
	_ = st.SetWriteDeadline(time.Now().Add(s.cfg.Timeout.Duration()))

	if err := writeRecord(st, s.record(c)); err != nil {
		_ = st.Reset()
		log.Debug("发送身份记录失败", "peer", c.RemotePeer().ShortString(), "err", err)
		s.emit(Event{Kind: EventError, Peer: c.RemotePeer(), ConnID: c.ID(), Err: err})
		return
	}
	s.emit(Event{Kind: EventSent, Peer: c.RemotePeer(), ConnID: c.ID()})
}

// HandlePush 接收对端推送的记录
func (s *Service) HandlePush(st *swarm.Stream) {
	defer st.Close()
	c := st.Conn()
	_ = st.SetReadDeadline(time.Now().Add(s.cfg.Timeout.Duration()))

	info, err := s.receive(st, c)
	if err != nil {
		_ = st.Reset()
		s.emit(Event{Kind: EventError, Peer: c.RemotePeer(), ConnID: c.ID(), Err: err})
		return
	}
	s.emit(Event{Kind: EventReceived, Peer: c.RemotePeer(), ConnID: c.ID(), Info: info})
}

// Identify 请求方：在连接上请求对端记录，结果同时以事件发出
func (s *Service) Identify(ctx context.Context, c *swarm.Conn) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout.Duration())
	defer cancel()

	info, err := s.identify(ctx, c)
	if err != nil {
		log.Debug("身份交换失败", "peer", c.RemotePeer().ShortString(), "err", err)
		s.emit(Event{Kind: EventError, Peer: c.RemotePeer(), ConnID: c.ID(), Err: err})
		return nil, err
	}
	log.Debug("收到身份记录",
		"peer", c.RemotePeer().ShortString(),
		"agent", info.AgentVersion,
		"observed", info.ObservedAddr,
		"listenAddrs", len(info.ListenAddrs))
	s.emit(Event{Kind: EventReceived, Peer: c.RemotePeer(), ConnID: c.ID(), Info: info})
	return info, nil
}

func (s *Service) identify(ctx context.Context, c *swarm.Conn) (*Info, error) {
	st, err := c.NewStream(ctx, ProtocolID)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}
	info, err := s.receive(st, c)
	if err != nil {
		_ = st.Reset()
		return nil, err
	}
	return info, nil
}

// receive 读取记录并校验公钥
func (s *Service) receive(st *swarm.Stream, c *swarm.Conn) (*Info, error) {
	info, err := readRecord(st)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if info.PublicKey == nil {
		info.PublicKey = c.RemotePublicKey()
		return info, nil
	}
	if info.PublicKey.PeerID() != c.RemotePeer() {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrPeerMismatch,
			info.PublicKey.PeerID().ShortString(), c.RemotePeer().ShortString())
	}
	return info, nil
}

// Push 向连接对端推送本节点记录（例如新增监听地址后）
func (s *Service) Push(ctx context.Context, c *swarm.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout.Duration())
	defer cancel()

	st, err := c.NewStream(ctx, ProtocolIDPush)
	if err != nil {
		return err
	}
	defer st.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}
	if err := writeRecord(st, s.record(c)); err != nil {
		_ = st.Reset()
		return err
	}
	s.emit(Event{Kind: EventPushed, Peer: c.RemotePeer(), ConnID: c.ID()})
	return nil
}
