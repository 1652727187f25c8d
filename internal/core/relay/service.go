package relay

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("relay")

// ============================================================================
//                              常量
// ============================================================================

const (
	// ProtoHop hop 协议，客户端到中继
	ProtoHop = "/libp2p/circuit/relay/0.2.0/hop"
	// ProtoStop stop 协议，中继到目标
	ProtoStop = "/libp2p/circuit/relay/0.2.0/stop"

	// StreamTimeout hop 请求读写超时
	StreamTimeout = time.Minute

	// sweepInterval 过期预约清理间隔
	sweepInterval = time.Minute
)

// Stream 中继使用的流
type Stream interface {
	io.ReadWriteCloser
	CloseWrite() error
	Reset() error
	SetDeadline(t time.Time) error
}

// StreamOpener 打开到节点的 stop 流
type StreamOpener func(ctx context.Context, p identity.PeerID) (Stream, error)

// Option 服务选项
type Option func(*Service)

// WithClock 替换时钟（测试）
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics 记录中继指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAddrs 预约回复中携带的中继地址来源
func WithAddrs(f func() []ma.Multiaddr) Option {
	return func(s *Service) { s.addrs = f }
}

// ============================================================================
//                              Service
// ============================================================================

type reservation struct {
	peer   identity.PeerID
	ip     string
	expiry time.Time
}

// tables 只由 actor 协程访问
type tables struct {
	reservations map[identity.PeerID]*reservation
	circuits     map[uuid.UUID]*Circuit
}

func (t *tables) reservationsFromIP(ip string) int {
	n := 0
	for _, r := range t.reservations {
		if r.ip == ip {
			n++
		}
	}
	return n
}

func (t *tables) circuitsOf(p identity.PeerID) int {
	n := 0
	for _, c := range t.circuits {
		if c.Src == p || c.Dst == p {
			n++
		}
	}
	return n
}

// Service Circuit Relay v2 服务端
type Service struct {
	self    identity.PeerID
	cfg     config.RelayConfig
	open    StreamOpener
	emit    func(Event)
	clock   clock.Clock
	metrics *metrics.Metrics
	addrs   func() []ma.Multiaddr
	allow   map[identity.PeerID]struct{}

	reqs   chan func(*tables)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建并启动中继服务
func New(self identity.PeerID, cfg config.RelayConfig, open StreamOpener, emit func(Event), opts ...Option) (*Service, error) {
	s := &Service{
		self:  self,
		cfg:   cfg,
		open:  open,
		emit:  emit,
		clock: clock.New(),
		reqs:  make(chan func(*tables)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(cfg.AllowList) > 0 {
		s.allow = make(map[identity.PeerID]struct{}, len(cfg.AllowList))
		for _, str := range cfg.AllowList {
			p, err := identity.ParsePeerID(str)
			if err != nil {
				return nil, fmt.Errorf("relay allow list: %w", err)
			}
			s.allow[p] = struct{}{}
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run()

	log.Info("中继服务已启动",
		"maxReservations", cfg.MaxReservations,
		"maxCircuits", cfg.MaxCircuits,
		"circuitDuration", cfg.CircuitDuration,
		"circuitData", cfg.CircuitData)
	return s, nil
}

// Close 结束全部电路并停止 actor
func (s *Service) Close() error {
	s.cancel()
	s.wg.Wait()
	log.Info("中继服务已停止")
	return nil
}

// run actor 循环
func (s *Service) run() {
	defer s.wg.Done()

	t := &tables{
		reservations: make(map[identity.PeerID]*reservation),
		circuits:     make(map[uuid.UUID]*Circuit),
	}
	ticker := s.clock.Ticker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-s.reqs:
			fn(t)
		case <-ticker.C:
			s.sweep(t)
		case <-s.ctx.Done():
			for _, c := range t.circuits {
				c.Release()
			}
			return
		}
	}
}

// do 在 actor 协程中执行 fn
func (s *Service) do(ctx context.Context, fn func(*tables)) error {
	done := make(chan struct{})
	select {
	case s.reqs <- func(t *tables) {
		fn(t)
		close(done)
	}:
	case <-s.ctx.Done():
		return ErrServiceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// sweep 清理过期预约
func (s *Service) sweep(t *tables) {
	now := s.clock.Now()
	for p, r := range t.reservations {
		if now.After(r.expiry) {
			delete(t.reservations, p)
			log.Debug("预约过期", "peer", p.ShortString())
			s.emit(Event{Kind: ReservationTimedOut, Peer: p})
		}
	}
	s.metrics.ReservationsActive(len(t.reservations))
}

func (s *Service) allowed(p identity.PeerID) bool {
	if s.allow == nil {
		return true
	}
	_, ok := s.allow[p]
	return ok
}

// limit 每条电路的限制
func (s *Service) limit() Limit {
	return Limit{
		Duration: uint32(s.cfg.CircuitDuration.Duration() / time.Second),
		Data:     s.cfg.CircuitData,
	}
}

// relayAddrs 预约回复中的中继地址，附加 /p2p/<self>
func (s *Service) relayAddrs() [][]byte {
	if s.addrs == nil {
		return nil
	}
	self, err := ma.NewMultiaddr("/p2p/" + s.self.String())
	if err != nil {
		return nil
	}
	var out [][]byte
	for _, a := range s.addrs() {
		out = append(out, a.Encapsulate(self).Bytes())
	}
	return out
}

// ============================================================================
//                              查询
// ============================================================================

// Reservation 预约快照
type Reservation struct {
	Peer   identity.PeerID
	Expiry time.Time
}

// Reservations 返回当前预约
func (s *Service) Reservations(ctx context.Context) ([]Reservation, error) {
	var out []Reservation
	err := s.do(ctx, func(t *tables) {
		for _, r := range t.reservations {
			out = append(out, Reservation{Peer: r.peer, Expiry: r.expiry})
		}
	})
	return out, err
}

// Circuits 返回未结束的电路
func (s *Service) Circuits(ctx context.Context) ([]*Circuit, error) {
	var out []*Circuit
	err := s.do(ctx, func(t *tables) {
		for _, c := range t.circuits {
			out = append(out, c)
		}
	})
	return out, err
}

// PeerDisconnected 节点的最后一个连接关闭，其预约随之失效
func (s *Service) PeerDisconnected(p identity.PeerID) {
	_ = s.do(context.Background(), func(t *tables) {
		if _, ok := t.reservations[p]; ok {
			delete(t.reservations, p)
			log.Debug("节点断开，移除预约", "peer", p.ShortString())
			s.metrics.ReservationsActive(len(t.reservations))
		}
	})
}

// ============================================================================
//                              hop 协议
// ============================================================================

// HandleHop 处理 hop 流，remote 为请求方连接的远端地址
func (s *Service) HandleHop(st Stream, from identity.PeerID, remote ma.Multiaddr) {
	_ = st.SetDeadline(time.Now().Add(StreamTimeout))

	var msg HopMessage
	if err := readMsg(st, &msg); err != nil {
		log.Debug("读取 hop 消息失败", "peer", from.ShortString(), "err", err)
		s.writeHopStatus(st, StatusMalformedMessage)
		_ = st.Reset()
		return
	}

	switch msg.Type {
	case HopReserve:
		s.handleReserve(st, from, remote)
		_ = st.Close()
	case HopConnect:
		s.handleConnect(st, from, &msg)
	default:
		s.writeHopStatus(st, StatusUnexpectedMessage)
		_ = st.Close()
	}
}

func (s *Service) writeHopStatus(st Stream, status Status) {
	if err := writeMsg(st, &HopMessage{Type: HopStatus, Status: status}); err != nil {
		log.Debug("写入 hop 状态失败", "status", status, "err", err)
	}
}

func (s *Service) handleReserve(st Stream, from identity.PeerID, remote ma.Multiaddr) {
	deny := func(status Status, active int) {
		s.writeHopStatus(st, status)
		s.metrics.Reservation("refused", active)
		log.Debug("拒绝预约", "peer", from.ShortString(), "status", status)
		s.emit(Event{Kind: ReservationReqDenied, Peer: from, Status: status})
	}
	if !s.allowed(from) {
		deny(StatusPermissionDenied, 0)
		return
	}

	var ip string
	if addr, err := manet.ToIP(remote); err == nil {
		ip = addr.String()
	}

	var (
		status  = StatusOK
		renewed bool
		expiry  time.Time
		active  int
	)
	err := s.do(s.ctx, func(t *tables) {
		expiry = s.clock.Now().Add(s.cfg.ReservationTTL.Duration())
		defer func() { active = len(t.reservations) }()

		if r, ok := t.reservations[from]; ok {
			r.expiry = expiry
			renewed = true
			return
		}
		if len(t.reservations) >= s.cfg.MaxReservations {
			status = StatusReservationRefused
			return
		}
		if ip != "" && t.reservationsFromIP(ip) >= s.cfg.MaxReservationsPerIP {
			status = StatusReservationRefused
			return
		}
		t.reservations[from] = &reservation{peer: from, ip: ip, expiry: expiry}
	})
	if err != nil {
		deny(StatusReservationRefused, active)
		return
	}
	if status != StatusOK {
		deny(status, active)
		return
	}

	limit := s.limit()
	resp := &HopMessage{
		Type:   HopStatus,
		Status: StatusOK,
		Reservation: &ReservationInfo{
			Expire: uint64(expiry.Unix()),
			Addrs:  s.relayAddrs(),
		},
		Limit: &limit,
	}
	if err := writeMsg(st, resp); err != nil {
		log.Debug("写入预约回复失败", "peer", from.ShortString(), "err", err)
	}

	s.metrics.Reservation("accepted", active)
	log.Info("预约成功", "peer", from.ShortString(), "renewed", renewed, "expiry", expiry)
	s.emit(Event{Kind: ReservationReqAccepted, Peer: from, Renewed: renewed})
}

func (s *Service) handleConnect(st Stream, from identity.PeerID, msg *HopMessage) {
	if msg.Peer == nil {
		s.writeHopStatus(st, StatusMalformedMessage)
		_ = st.Close()
		return
	}
	target, err := identity.PeerIDFromBytes(msg.Peer.ID)
	if err != nil {
		s.writeHopStatus(st, StatusMalformedMessage)
		_ = st.Close()
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout.Duration())
	c, err := s.HandleReservationRequest(ctx, from, target)
	cancel()
	if err != nil {
		status := statusFor(err)
		s.writeHopStatus(st, status)
		_ = st.Close()
		s.metrics.CircuitRequest(status.String())
		log.Debug("拒绝电路请求", "src", from.ShortString(), "dst", target.ShortString(), "err", err)
		s.emit(Event{Kind: CircuitReqDenied, Src: from, Dst: target, Status: status, Err: err})
		return
	}

	limit := c.Limit
	if err := writeMsg(st, &HopMessage{Type: HopStatus, Status: StatusOK, Limit: &limit}); err != nil {
		_ = st.Reset()
		_ = c.dst.Reset()
		c.closed.Store(true)
		c.state.Store(int32(Released))
		s.forget(c)
		close(c.done)
		log.Debug("写入电路回复失败", "src", from.ShortString(), "err", err)
		return
	}
	s.activate(c, st)
}

// HandleReservationRequest 受理 from 到 target 的电路请求
//
// 成功时返回处于 Requested 状态、已与目标完成 STOP 握手的电路；
// 失败返回 *RelayError，不会产生转发任务。
func (s *Service) HandleReservationRequest(ctx context.Context, from, target identity.PeerID) (*Circuit, error) {
	if !s.allowed(from) {
		return nil, newRelayError(NotAuthorized, fmt.Errorf("peer %s not in allow list", from.ShortString()))
	}

	var (
		c    *Circuit
		rerr error
	)
	err := s.do(ctx, func(t *tables) {
		now := s.clock.Now()
		r, ok := t.reservations[target]
		if !ok || now.After(r.expiry) {
			rerr = newRelayError(TargetUnreachable, ErrNoReservation)
			return
		}
		if len(t.circuits) >= s.cfg.MaxCircuits {
			rerr = newRelayError(CapacityExceeded, fmt.Errorf("%d circuits active", len(t.circuits)))
			return
		}
		if t.circuitsOf(from) >= s.cfg.MaxCircuitsPerPeer || t.circuitsOf(target) >= s.cfg.MaxCircuitsPerPeer {
			rerr = newRelayError(CapacityExceeded, fmt.Errorf("per-peer circuit limit %d", s.cfg.MaxCircuitsPerPeer))
			return
		}
		c = newCircuit(from, target, now.Add(s.cfg.CircuitDuration.Duration()), s.limit())
		t.circuits[c.ID] = c
	})
	if err != nil {
		return nil, newRelayError(TargetUnreachable, err)
	}
	if rerr != nil {
		return nil, rerr
	}

	dst, err := s.stop(ctx, c)
	if err != nil {
		s.forget(c)
		return nil, newRelayError(TargetUnreachable, err)
	}
	c.dst = &circuitStream{Stream: dst, closed: &c.closed}
	return c, nil
}

// stop 打开到目标的 stop 流并完成握手
func (s *Service) stop(ctx context.Context, c *Circuit) (Stream, error) {
	st, err := s.open(ctx, c.Dst)
	if err != nil {
		return nil, fmt.Errorf("open stop stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}

	limit := c.Limit
	req := &StopMessage{Type: StopConnect, Peer: &PeerInfo{ID: c.Src.Bytes()}, Limit: &limit}
	if err := writeMsg(st, req); err != nil {
		_ = st.Reset()
		return nil, fmt.Errorf("write stop connect: %w", err)
	}
	var resp StopMessage
	if err := readMsg(st, &resp); err != nil {
		_ = st.Reset()
		return nil, fmt.Errorf("read stop status: %w", err)
	}
	if resp.Type != StopStatus || resp.Status != StatusOK {
		_ = st.Reset()
		return nil, fmt.Errorf("%w: %s", ErrStopRejected, resp.Status)
	}
	_ = st.SetDeadline(time.Time{})
	return st, nil
}

// forget 移除未激活的电路
func (s *Service) forget(c *Circuit) {
	_ = s.do(context.Background(), func(t *tables) { delete(t.circuits, c.ID) })
}
