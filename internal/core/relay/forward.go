package relay

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// activate 进入 Active 并启动转发
func (s *Service) activate(c *Circuit, src Stream) {
	c.src = &circuitStream{Stream: src, closed: &c.closed}
	_ = src.SetDeadline(time.Time{})
	c.state.Store(int32(Active))

	s.metrics.CircuitRequest("accepted")
	s.metrics.CircuitOpened()
	log.Info("电路已建立", "id", c.ID, "src", c.Src.ShortString(), "dst", c.Dst.ShortString(), "expiry", c.Expiry)
	s.emit(Event{Kind: CircuitReqAccepted, Src: c.Src, Dst: c.Dst, CircuitID: c.ID})

	s.wg.Add(1)
	go s.forward(c)
}

// forward 双向转发，直到两端 EOF、出错、释放或限制耗尽
func (s *Service) forward(c *Circuit) {
	defer s.wg.Done()

	ctx, cancel := s.clock.WithDeadline(s.ctx, c.Expiry)
	defer cancel()
	fctx, fail := context.WithCancel(ctx)
	defer fail()

	stop := context.AfterFunc(fctx, func() {
		c.closed.Store(true)
		_ = c.src.Reset()
		_ = c.dst.Reset()
	})
	go func() {
		select {
		case <-c.release:
			fail()
		case <-fctx.Done():
		}
	}()

	var (
		g            errgroup.Group
		toDst, toSrc error
	)
	g.Go(func() error {
		toDst = s.pipe(fctx, c.dst, c.src, &c.toDst, c.Limit.Data, fail)
		return toDst
	})
	g.Go(func() error {
		toSrc = s.pipe(fctx, c.src, c.dst, &c.toSrc, c.Limit.Data, fail)
		return toSrc
	})
	_ = g.Wait()
	err := multierr.Combine(toDst, toSrc)

	if stop() {
		c.closed.Store(true)
		_ = c.src.Close()
		_ = c.dst.Close()
	}

	state := Released
	if errors.Is(err, ErrDataLimit) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		state = Expired
	}
	s.finish(c, state, err)
}

// pipe 单方向复制，受流量与带宽限制
func (s *Service) pipe(ctx context.Context, dst, src Stream, counter *atomic.Int64, maxData uint64, fail func()) error {
	var lim *rate.Limiter
	if s.cfg.Bandwidth > 0 {
		lim = rate.NewLimiter(rate.Limit(s.cfg.Bandwidth), max(int(s.cfg.Bandwidth), s.cfg.BufferSize))
	}

	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			exhausted := false
			if maxData > 0 {
				remaining := int64(maxData) - counter.Load()
				if int64(n) >= remaining {
					n = int(remaining)
					exhausted = true
				}
			}
			if lim != nil && n > 0 {
				if err := lim.WaitN(ctx, n); err != nil {
					fail()
					return err
				}
			}
			if n > 0 {
				w, werr := dst.Write(buf[:n])
				counter.Add(int64(w))
				if werr != nil {
					fail()
					return werr
				}
			}
			if exhausted {
				fail()
				return ErrDataLimit
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				_ = dst.CloseWrite()
				return nil
			}
			fail()
			return rerr
		}
	}
}

// finish 记录终态并移出电路表
func (s *Service) finish(c *Circuit, state State, err error) {
	c.closed.Store(true)
	c.state.Store(int32(state))
	s.forget(c)
	close(c.done)

	toDst, toSrc := c.Bytes()
	s.metrics.CircuitClosed(state.String(), toDst, toSrc)
	log.Info("电路已结束",
		"id", c.ID,
		"state", state,
		"toDst", toDst,
		"toSrc", toSrc,
		"err", err)
	s.emit(Event{Kind: CircuitClosed, Src: c.Src, Dst: c.Dst, CircuitID: c.ID, State: state, Err: err})
}
