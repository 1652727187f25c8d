package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm/swarmtest"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type testRelay struct {
	svc    *Service
	sw     *swarm.Swarm
	events chan Event
}

func newTestRelay(t *testing.T, cfg config.RelayConfig, opts ...Option) *testRelay {
	t.Helper()
	sw, _ := swarmtest.New(t, 1)
	swarmtest.Listen(t, sw)

	r := &testRelay{sw: sw, events: make(chan Event, 64)}
	open := func(ctx context.Context, p identity.PeerID) (Stream, error) {
		st, err := sw.NewStream(ctx, p, ProtoStop)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	svc, err := New(sw.LocalPeer(), cfg, open, func(ev Event) { r.events <- ev },
		append([]Option{WithAddrs(sw.ListenAddrs)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	r.svc = svc

	sw.SetStreamHandler(ProtoHop, func(st *swarm.Stream) {
		svc.HandleHop(st, st.RemotePeer(), st.Conn().RemoteMultiaddr())
	})
	return r
}

func (r *testRelay) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

// peer 连接到中继的客户端节点
func (r *testRelay) peer(t *testing.T, seed byte) *swarm.Swarm {
	sw, _ := swarmtest.New(t, seed)
	swarmtest.Connect(t, sw, r.sw)
	return sw
}

func hop(t *testing.T, sw *swarm.Swarm, relay identity.PeerID, req *HopMessage) (*swarm.Stream, HopMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := sw.NewStream(ctx, relay, ProtoHop)
	require.NoError(t, err)
	require.NoError(t, writeMsg(st, req))
	var resp HopMessage
	require.NoError(t, readMsg(st, &resp))
	require.Equal(t, HopStatus, resp.Type)
	return st, resp
}

func reserve(t *testing.T, sw *swarm.Swarm, relay identity.PeerID) HopMessage {
	st, resp := hop(t, sw, relay, &HopMessage{Type: HopReserve})
	_ = st.Close()
	return resp
}

func connect(t *testing.T, sw *swarm.Swarm, relay, target identity.PeerID) (*swarm.Stream, HopMessage) {
	return hop(t, sw, relay, &HopMessage{Type: HopConnect, Peer: &PeerInfo{ID: target.Bytes()}})
}

// acceptStops 目标节点接受全部 STOP 请求
func acceptStops(sw *swarm.Swarm) <-chan *swarm.Stream {
	ch := make(chan *swarm.Stream, 4)
	sw.SetStreamHandler(ProtoStop, func(st *swarm.Stream) {
		var msg StopMessage
		if err := readMsg(st, &msg); err != nil || msg.Type != StopConnect {
			_ = st.Reset()
			return
		}
		if err := writeMsg(st, &StopMessage{Type: StopStatus, Status: StatusOK}); err != nil {
			_ = st.Reset()
			return
		}
		ch <- st
	})
	return ch
}

func recvStop(t *testing.T, ch <-chan *swarm.Stream) *swarm.Stream {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(5 * time.Second):
		t.Fatal("no stop stream")
		return nil
	}
}

func testConfig() config.RelayConfig {
	cfg := config.DefaultRelayConfig()
	cfg.ConnectTimeout = config.Duration(5 * time.Second)
	return cfg
}

// ============================================================================
//                              预约
// ============================================================================

func TestReserve(t *testing.T) {
	r := newTestRelay(t, testConfig())
	target := r.peer(t, 2)

	resp := reserve(t, target, r.sw.LocalPeer())
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Reservation)
	require.NotEmpty(t, resp.Reservation.Addrs)
	addr, err := ma.NewMultiaddrBytes(resp.Reservation.Addrs[0])
	require.NoError(t, err)
	p2p, err := addr.ValueForProtocol(ma.P_P2P)
	require.NoError(t, err)
	assert.Equal(t, r.sw.LocalPeer().String(), p2p)
	require.NotNil(t, resp.Limit)
	assert.Equal(t, uint32(120), resp.Limit.Duration)

	ev := r.next(t, ReservationReqAccepted)
	assert.Equal(t, target.LocalPeer(), ev.Peer)
	assert.False(t, ev.Renewed)

	reserve(t, target, r.sw.LocalPeer())
	assert.True(t, r.next(t, ReservationReqAccepted).Renewed)

	list, err := r.svc.Reservations(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReserve_Capacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReservations = 1
	r := newTestRelay(t, cfg)

	assert.Equal(t, StatusOK, reserve(t, r.peer(t, 2), r.sw.LocalPeer()).Status)
	assert.Equal(t, StatusReservationRefused, reserve(t, r.peer(t, 3), r.sw.LocalPeer()).Status)
	ev := r.next(t, ReservationReqDenied)
	assert.Equal(t, StatusReservationRefused, ev.Status)
}

func TestReserve_PerIPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReservationsPerIP = 1
	r := newTestRelay(t, cfg)

	assert.Equal(t, StatusOK, reserve(t, r.peer(t, 2), r.sw.LocalPeer()).Status)
	// 同为 127.0.0.1
	assert.Equal(t, StatusReservationRefused, reserve(t, r.peer(t, 3), r.sw.LocalPeer()).Status)
}

func TestReservation_TimesOut(t *testing.T) {
	mock := clock.NewMock()
	r := newTestRelay(t, testConfig(), WithClock(mock))
	target := r.peer(t, 2)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)

	var ev Event
	require.Eventually(t, func() bool {
		mock.Add(10 * time.Minute)
		select {
		case ev = <-r.events:
			return ev.Kind == ReservationTimedOut
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, target.LocalPeer(), ev.Peer)

	src := r.peer(t, 3)
	_, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	assert.Equal(t, StatusNoReservation, resp.Status)
}

// ============================================================================
//                              电路
// ============================================================================

func TestCircuit_RelaysBothWays(t *testing.T) {
	r := newTestRelay(t, testConfig())
	target := r.peer(t, 2)
	stops := acceptStops(target)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)

	src := r.peer(t, 3)
	srcSt, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	require.Equal(t, StatusOK, resp.Status)
	dstSt := recvStop(t, stops)

	accepted := r.next(t, CircuitReqAccepted)
	assert.Equal(t, src.LocalPeer(), accepted.Src)
	assert.Equal(t, target.LocalPeer(), accepted.Dst)

	_, err := srcSt.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(dstSt, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	_, err = dstSt.Write([]byte("world"))
	require.NoError(t, err)
	_, err = io.ReadFull(srcSt, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	// 双方半关闭后电路正常结束
	require.NoError(t, srcSt.CloseWrite())
	_, err = io.ReadAll(dstSt)
	require.NoError(t, err)
	require.NoError(t, dstSt.CloseWrite())

	closed := r.next(t, CircuitClosed)
	assert.Equal(t, accepted.CircuitID, closed.CircuitID)
	assert.Equal(t, Released, closed.State)
}

func TestCircuit_NoReservation(t *testing.T) {
	r := newTestRelay(t, testConfig())
	target := r.peer(t, 2)
	src := r.peer(t, 3)

	_, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	assert.Equal(t, StatusNoReservation, resp.Status)

	ev := r.next(t, CircuitReqDenied)
	var re *RelayError
	require.ErrorAs(t, ev.Err, &re)
	assert.Equal(t, TargetUnreachable, re.Kind)
	assert.ErrorIs(t, ev.Err, ErrNoReservation)

	circuits, err := r.svc.Circuits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, circuits)
}

func TestCircuit_StopRejected(t *testing.T) {
	r := newTestRelay(t, testConfig())
	target := r.peer(t, 2)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)
	// 目标未注册 stop 协议

	c, err := r.svc.HandleReservationRequest(context.Background(), r.peer(t, 3).LocalPeer(), target.LocalPeer())
	assert.Nil(t, c)
	var re *RelayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, TargetUnreachable, re.Kind)
	assert.Equal(t, StatusConnectionFailed, statusFor(err))
}

func TestCircuit_NotAuthorized(t *testing.T) {
	allowed, err := identity.Derive(2)
	require.NoError(t, err)
	cfg := testConfig()
	cfg.AllowList = []string{allowed.PeerID().String()}
	r := newTestRelay(t, cfg)

	target := r.peer(t, 2)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)

	src := r.peer(t, 3)
	assert.Equal(t, StatusPermissionDenied, reserve(t, src, r.sw.LocalPeer()).Status)
	_, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	assert.Equal(t, StatusPermissionDenied, resp.Status)

	_, err = r.svc.HandleReservationRequest(context.Background(), src.LocalPeer(), target.LocalPeer())
	var re *RelayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NotAuthorized, re.Kind)
}

func TestCircuit_Capacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCircuits = 1
	r := newTestRelay(t, cfg)
	target := r.peer(t, 2)
	stops := acceptStops(target)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)

	src := r.peer(t, 3)
	_, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	require.Equal(t, StatusOK, resp.Status)
	recvStop(t, stops)

	_, resp = connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	assert.Equal(t, StatusResourceLimitExceeded, resp.Status)
	ev := r.next(t, CircuitReqDenied)
	var re *RelayError
	require.ErrorAs(t, ev.Err, &re)
	assert.Equal(t, CapacityExceeded, re.Kind)
}

func TestCircuit_ExpiresAfterDuration(t *testing.T) {
	mock := clock.NewMock()
	r := newTestRelay(t, testConfig(), WithClock(mock))
	target := r.peer(t, 2)
	stops := acceptStops(target)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)

	src := r.peer(t, 3)
	srcSt, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	require.Equal(t, StatusOK, resp.Status)
	dstSt := recvStop(t, stops)
	r.next(t, CircuitReqAccepted)

	circuits, err := r.svc.Circuits(context.Background())
	require.NoError(t, err)
	require.Len(t, circuits, 1)
	c := circuits[0]

	require.Eventually(t, func() bool {
		mock.Add(30 * time.Second)
		return c.State() == Expired
	}, 5*time.Second, 10*time.Millisecond)
	<-c.Done()

	_, err = c.src.Write([]byte("late"))
	assert.ErrorIs(t, err, muxer.ErrSessionClosed)
	_, err = c.dst.Write([]byte("late"))
	assert.ErrorIs(t, err, muxer.ErrSessionClosed)

	// 两端都被重置
	_, err = dstSt.Read(make([]byte, 1))
	assert.Error(t, err)
	_, err = srcSt.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestCircuit_DataLimit(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitData = 16
	r := newTestRelay(t, cfg)
	target := r.peer(t, 2)
	stops := acceptStops(target)
	require.Equal(t, StatusOK, reserve(t, target, r.sw.LocalPeer()).Status)

	src := r.peer(t, 3)
	srcSt, resp := connect(t, src, r.sw.LocalPeer(), target.LocalPeer())
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, uint64(16), resp.Limit.Data)
	dstSt := recvStop(t, stops)

	_, err := srcSt.Write(make([]byte, 32))
	require.NoError(t, err)

	got, _ := io.ReadAll(dstSt)
	assert.LessOrEqual(t, len(got), 16)

	closed := r.next(t, CircuitClosed)
	assert.Equal(t, Expired, closed.State)
	assert.True(t, errors.Is(closed.Err, ErrDataLimit))
}

// ============================================================================
//                              编解码
// ============================================================================

func TestHopMessage_MissingType(t *testing.T) {
	var m HopMessage
	assert.ErrorIs(t, m.Unmarshal(appendVarint(nil, 5, 100)), ErrMalformedMessage)
}

func TestHopMessage_Decode(t *testing.T) {
	in := &HopMessage{
		Type:        HopStatus,
		Status:      StatusOK,
		Reservation: &ReservationInfo{Expire: 1700000000, Addrs: [][]byte{ma.StringCast("/ip4/1.2.3.4/tcp/1").Bytes()}},
		Limit:       &Limit{Duration: 120, Data: 1 << 17},
	}
	var out HopMessage
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in.Reservation.Expire, out.Reservation.Expire)
	assert.Equal(t, *in.Limit, *out.Limit)
	assert.Equal(t, StatusOK, out.Status)
	assert.Nil(t, out.Peer)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusPermissionDenied, statusFor(newRelayError(NotAuthorized, nil)))
	assert.Equal(t, StatusResourceLimitExceeded, statusFor(newRelayError(CapacityExceeded, nil)))
	assert.Equal(t, StatusNoReservation, statusFor(newRelayError(TargetUnreachable, ErrNoReservation)))
	assert.Equal(t, StatusConnectionFailed, statusFor(newRelayError(TargetUnreachable, ErrStopRejected)))
	assert.Equal(t, StatusConnectionFailed, statusFor(errors.New("other")))
}
