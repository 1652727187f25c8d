package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/muxer"
)

// State 电路状态
type State int32

const (
	// Requested 已受理，等待双方确认
	Requested State = iota + 1
	// Active 正在转发
	Active
	// Expired 时长或流量限制耗尽
	Expired
	// Released 一端关闭、出错或显式释放
	Released
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case Active:
		return "active"
	case Expired:
		return "expired"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Circuit 一条中继电路
type Circuit struct {
	ID     uuid.UUID
	Src    identity.PeerID
	Dst    identity.PeerID
	Expiry time.Time
	Limit  Limit

	state  atomic.Int32
	closed atomic.Bool

	src *circuitStream
	dst *circuitStream

	toDst atomic.Int64
	toSrc atomic.Int64

	releaseOnce sync.Once
	release     chan struct{}
	done        chan struct{}
}

func newCircuit(src, dst identity.PeerID, expiry time.Time, limit Limit) *Circuit {
	c := &Circuit{
		ID:      uuid.New(),
		Src:     src,
		Dst:     dst,
		Expiry:  expiry,
		Limit:   limit,
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(Requested))
	return c
}

// State 当前状态
func (c *Circuit) State() State { return State(c.state.Load()) }

// Done 电路结束（Expired 或 Released）时关闭
func (c *Circuit) Done() <-chan struct{} { return c.done }

// Bytes 已转发字节数（源到目标、目标到源）
func (c *Circuit) Bytes() (toDst, toSrc int64) {
	return c.toDst.Load(), c.toSrc.Load()
}

// Release 显式结束电路
func (c *Circuit) Release() {
	c.releaseOnce.Do(func() { close(c.release) })
}

// circuitStream 电路结束后写入返回 ErrSessionClosed
type circuitStream struct {
	Stream
	closed *atomic.Bool
}

func (s *circuitStream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, muxer.ErrSessionClosed
	}
	return s.Stream.Write(p)
}
