package kvbench

import (
	"context"
	"sync"
	"time"
)

// Fleet owns every Connection load-testing a single replica set: it fans
// out the requested connection count, gates their dial phase through a
// DialLimiter, guards repeated launch failures with a FleetBreaker, and
// runs the shared warm-up/steady-state phases across all of them. Replaces
// the teacher's ServerPool (server_pool.go), which wrapped one pool and one
// circuit breaker around a single Address(); a Fleet wraps many long-lived
// Connections around one replica set instead of pooling short-lived ones.
type Fleet struct {
	replicaSet string
	opt        *Options
	stats      StatsSink

	limiter *DialLimiter
	breaker *FleetBreaker

	mu          sync.Mutex
	connections []*Connection
}

// NewFleet builds a Fleet of `count` Connections, all targeting replicaSet
// with the same Options and sharing one StatsSink so their totals can be
// read as a single Snapshot. The DialLimiter is sized to count, so it admits
// every Connection's dial at once and holds none of them back.
func NewFleet(replicaSet string, count int, opt *Options, stats StatsSink) (*Fleet, error) {
	if count <= 0 {
		count = 1
	}
	limiter, err := NewDialLimiter(int32(maxInt(count, 1)))
	if err != nil {
		return nil, err
	}

	f := &Fleet{
		replicaSet: replicaSet,
		opt:        opt,
		stats:      stats,
		limiter:    limiter,
		breaker:    NewFleetBreaker(replicaSet, 1, 0, 10*time.Second),
	}

	for i := 0; i < count; i++ {
		conn, err := NewConnection(replicaSet, opt, stats)
		if err != nil {
			limiter.Close()
			return nil, err
		}
		f.connections = append(f.connections, conn)
	}
	return f, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// StartAll dials and sets up every Connection in the fleet concurrently,
// gated by the DialLimiter and guarded by the FleetBreaker.
func (f *Fleet) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(f.connections))

	for _, conn := range f.connections {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := f.limiter.Acquire(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer release()

			errs <- f.breaker.Launch(conn.Start)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadAll runs the warm-up phase on every Connection. If opt.WarmupConnections
// is positive, only that many Connections participate (the rest skip
// straight to steady state, relying on the participating subset to have
// populated the shared key space) — see SPEC_FULL.md §5.
func (f *Fleet) LoadAll(ctx context.Context) error {
	if f.opt.NoLoad {
		return nil
	}
	n := len(f.connections)
	if f.opt.WarmupConnections > 0 && f.opt.WarmupConnections < n {
		n = f.opt.WarmupConnections
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, conn := range f.connections[:n] {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := conn.StartLoading(); err != nil {
				errs <- err
				return
			}
			errs <- f.pumpUntilLoaded(ctx, conn)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// pumpUntilLoaded drains a Connection's loader phase by running its event
// loop until LoaderDone reports true.
func (f *Fleet) pumpUntilLoaded(ctx context.Context, conn *Connection) error {
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Run(loadCtx) }()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if conn.LoaderDone() {
				cancel()
				<-done
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunAll runs the steady-state pacing loop on every Connection concurrently
// until each hits its own exit condition or ctx is cancelled.
func (f *Fleet) RunAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(f.connections))

	for _, conn := range f.connections {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Run(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close tears down every Connection's sessions and the dial limiter.
func (f *Fleet) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.connections {
		for _, s := range conn.sessions {
			_ = s.Close()
		}
	}
	f.limiter.Close()
}
