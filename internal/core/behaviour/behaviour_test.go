package behaviour_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/behaviour"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/identify"
	"github.com/dep2p/go-dep2p-relay/internal/core/protocol/system/ping"
	"github.com/dep2p/go-dep2p-relay/internal/core/relay"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm/swarmtest"
)

func testConfig() behaviour.Config {
	cfg := behaviour.NewConfig(config.NewConfig())
	cfg.Ping.Interval = config.Duration(50 * time.Millisecond)
	cfg.Ping.Timeout = config.Duration(2 * time.Second)
	cfg.Identify.Timeout = config.Duration(5 * time.Second)
	return cfg
}

// newNode 创建 Swarm 与行为集，并把连接事件转交给行为集
func newNode(t *testing.T, seed byte) (*swarm.Swarm, *behaviour.Set) {
	t.Helper()
	sw, id := swarmtest.New(t, seed)
	set, err := behaviour.New(sw, id, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-sw.Events():
				switch ev.Kind {
				case swarm.ConnectionEstablished:
					set.OnConnectionEstablished(ev.Conn)
				case swarm.ConnectionClosed:
					set.OnConnectionClosed(ev.Conn, ev.NumEstablished)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = set.Close()
	})
	return sw, set
}

func nextEvent(t *testing.T, set *behaviour.Set, match func(behaviour.Event) bool) behaviour.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-set.Events():
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for behaviour event")
			return behaviour.Event{}
		}
	}
}

func TestSet_RegistersProtocols(t *testing.T) {
	sw, _ := newNode(t, 1)
	assert.Subset(t, sw.Protocols(), []string{
		ping.ProtocolID,
		identify.ProtocolID,
		identify.ProtocolIDPush,
		relay.ProtoHop,
	})
}

func TestSet_PingsNewConnections(t *testing.T) {
	a, setA := newNode(t, 1)
	b, _ := newNode(t, 2)
	swarmtest.Listen(t, b)
	swarmtest.Connect(t, a, b)

	ev := nextEvent(t, setA, func(ev behaviour.Event) bool {
		return ev.Kind == behaviour.KindPing && ev.Ping.Kind == ping.EventSuccess
	})
	assert.Equal(t, b.LocalPeer(), ev.Ping.Peer)
	assert.Positive(t, ev.Ping.RTT)
}

func TestSet_IdentifiesNewConnections(t *testing.T) {
	a, setA := newNode(t, 1)
	b, setB := newNode(t, 2)
	bAddr := swarmtest.Listen(t, b)
	conn := swarmtest.Connect(t, a, b)

	ev := nextEvent(t, setA, func(ev behaviour.Event) bool {
		return ev.Kind == behaviour.KindIdentify && ev.Identify.Kind == identify.EventReceived
	})
	require.NotNil(t, ev.Identify.Info)
	assert.Equal(t, b.LocalPeer(), ev.Identify.Peer)
	assert.Contains(t, ev.Identify.Info.Protocols, relay.ProtoHop)
	require.NotEmpty(t, ev.Identify.Info.ListenAddrs)
	assert.True(t, ev.Identify.Info.ListenAddrs[0].Equal(bAddr))
	assert.True(t, ev.Identify.Info.ObservedAddr.Equal(conn.LocalMultiaddr()))

	require.Eventually(t, func() bool { return setA.Identified(conn.ID()) },
		5*time.Second, 10*time.Millisecond)

	// 对端同样完成了身份交换
	nextEvent(t, setB, func(ev behaviour.Event) bool {
		return ev.Kind == behaviour.KindIdentify && ev.Identify.Kind == identify.EventReceived
	})
}

func TestSet_ConnectionClosedClearsState(t *testing.T) {
	a, setA := newNode(t, 1)
	b, _ := newNode(t, 2)
	swarmtest.Listen(t, b)
	conn := swarmtest.Connect(t, a, b)

	require.Eventually(t, func() bool { return setA.NumConns() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return setA.NumConns() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, setA.Identified(conn.ID()))
}

func TestSet_DisconnectDropsReservation(t *testing.T) {
	r, setR := newNode(t, 1)
	swarmtest.Listen(t, r)
	client, _ := newNode(t, 2)
	conn := swarmtest.Connect(t, client, r)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := client.NewStream(ctx, r.LocalPeer(), relay.ProtoHop)
	require.NoError(t, err)
	// HopMessage{Type: RESERVE}
	_, err = st.Write([]byte{0x02, 0x08, 0x00})
	require.NoError(t, err)

	nextEvent(t, setR, func(ev behaviour.Event) bool {
		return ev.Kind == behaviour.KindRelay && ev.Relay.Kind == relay.ReservationReqAccepted
	})
	list, err := setR.Relay().Reservations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		list, err := setR.Relay().Reservations(ctx)
		return err == nil && len(list) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSet_PushIdentify(t *testing.T) {
	a, setA := newNode(t, 1)
	b, _ := newNode(t, 2)
	swarmtest.Listen(t, b)
	conn := swarmtest.Connect(t, a, b)
	require.Eventually(t, func() bool { return setA.Identified(conn.ID()) },
		5*time.Second, 10*time.Millisecond)

	setA.PushIdentify()
	ev := nextEvent(t, setA, func(ev behaviour.Event) bool {
		return ev.Kind == behaviour.KindIdentify && ev.Identify.Kind == identify.EventPushed
	})
	assert.Equal(t, b.LocalPeer(), ev.Identify.Peer)
}
