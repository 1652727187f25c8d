package ping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dep2p-relay/config"
	"github.com/dep2p/go-dep2p-relay/internal/core/identity"
)

// EventKind 探测结果
type EventKind int

const (
	// EventSuccess 收到回显
	EventSuccess EventKind = iota + 1
	// EventFailure 单次探测失败
	EventFailure
	// EventUnresponsive 连续失败达到阈值
	EventUnresponsive
)

func (k EventKind) String() string {
	switch k {
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventUnresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

// Event 探测事件
type Event struct {
	Kind   EventKind
	Peer   identity.PeerID
	ConnID uint64

	// RTT 仅 EventSuccess 有效
	RTT time.Duration
	// Err 最近一次失败原因
	Err error
	// ConsecutiveFailures 事件发生时的连续失败次数
	ConsecutiveFailures int
}

// Opener 打开一条已协商 ping 协议的流
type Opener func(ctx context.Context) (Stream, error)

// Prober 单个连接的周期探测器，Run 只能调用一次
type Prober struct {
	peer   identity.PeerID
	connID uint64
	open   Opener
	cfg    config.PingConfig
	clock  clock.Clock
	emit   func(Event)

	stream   Stream
	failures int
}

// NewProber 创建探测器，clk 为空时使用系统时钟
func NewProber(peer identity.PeerID, connID uint64, open Opener, cfg config.PingConfig, clk clock.Clock, emit func(Event)) *Prober {
	if clk == nil {
		clk = clock.New()
	}
	return &Prober{
		peer:   peer,
		connID: connID,
		open:   open,
		cfg:    cfg,
		clock:  clk,
		emit:   emit,
	}
}

// Run 立即探测一次，之后每隔 Interval 探测，ctx 取消时返回
func (p *Prober) Run(ctx context.Context) {
	defer p.closeStream()

	interval := p.cfg.Interval.Duration()
	for {
		rtt, err := p.probe(ctx)
		if ctx.Err() != nil {
			return
		}
		p.report(rtt, err)

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(interval):
		}
	}
}

func (p *Prober) report(rtt time.Duration, err error) {
	if err == nil {
		if p.failures > 0 {
			log.Debug("ping 恢复", "peer", p.peer.ShortString(), "after", p.failures)
		}
		p.failures = 0
		p.emit(Event{Kind: EventSuccess, Peer: p.peer, ConnID: p.connID, RTT: rtt})
		return
	}

	p.failures++
	log.Debug("ping 失败", "peer", p.peer.ShortString(), "failures", p.failures, "err", err)
	p.emit(Event{Kind: EventFailure, Peer: p.peer, ConnID: p.connID, Err: err, ConsecutiveFailures: p.failures})
	if p.failures == p.cfg.MaxFailures {
		log.Info("节点无响应", "peer", p.peer.ShortString(), "failures", p.failures)
		p.emit(Event{Kind: EventUnresponsive, Peer: p.peer, ConnID: p.connID, Err: err, ConsecutiveFailures: p.failures})
	}
}

// probe 一次往返，超时或出错后丢弃流，下次重新打开
func (p *Prober) probe(parent context.Context) (time.Duration, error) {
	ctx, cancel := p.clock.WithTimeout(parent, p.cfg.Timeout.Duration())
	defer cancel()

	if p.stream == nil {
		s, err := p.open(ctx)
		if err != nil {
			return 0, fmt.Errorf("open stream: %w", err)
		}
		p.stream = s
	}

	type result struct {
		rtt time.Duration
		err error
	}
	done := make(chan result, 1)
	s := p.stream
	go func() {
		rtt, err := RoundTrip(s, p.clock)
		done <- result{rtt, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			p.resetStream()
		}
		return r.rtt, r.err
	case <-ctx.Done():
		p.resetStream()
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrTimeout
		}
		return 0, ctx.Err()
	}
}

func (p *Prober) resetStream() {
	if p.stream != nil {
		_ = p.stream.Reset()
		p.stream = nil
	}
}

func (p *Prober) closeStream() {
	if p.stream != nil {
		_ = p.stream.Close()
		p.stream = nil
	}
}
