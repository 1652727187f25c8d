package app

import (
	"context"
	"sync"

	"github.com/dep2p/go-dep2p-relay/internal/core/behaviour"
	"github.com/dep2p/go-dep2p-relay/internal/core/eventloop"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
	"github.com/dep2p/go-dep2p-relay/internal/core/metrics"
	"github.com/dep2p/go-dep2p-relay/internal/core/swarm"
)

// Runtime 通过 fx 组装完成的中继节点
type Runtime struct {
	Identity  *identity.Identity
	Swarm     *swarm.Swarm
	Behaviour *behaviour.Set
	Loop      *eventloop.Loop
	Metrics   *metrics.Metrics

	once sync.Once
	done chan struct{}
	err  error

	stop func(ctx context.Context) error
}

func newRuntime(id *identity.Identity, sw *swarm.Swarm, set *behaviour.Set,
	loop *eventloop.Loop, m *metrics.Metrics) *Runtime {
	return &Runtime{
		Identity:  id,
		Swarm:     sw,
		Behaviour: set,
		Loop:      loop,
		Metrics:   m,
		done:      make(chan struct{}),
	}
}

// PeerID 本节点标识
func (r *Runtime) PeerID() identity.PeerID { return r.Identity.PeerID() }

// Done 事件循环退出后关闭
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Err 事件循环的退出原因，正常停止为 nil
func (r *Runtime) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *Runtime) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Stop 停止运行时（触发 fx OnStop）
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
