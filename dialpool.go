package kvbench

import (
	"context"

	"github.com/jackc/puddle/v2"
)

// DialLimiter bounds how many Connections may be in the middle of their
// dial+setup phase at once across a fleet, so launching thousands of
// Connections against a cold replica set doesn't open thousands of sockets
// in the same instant. It repurposes puddle.Pool — the teacher's per-request
// connection pool (pool_puddle.go) — as a pure concurrency gate: the pooled
// resource is a placeholder token, never a *ServerSession or *Connection,
// since Connections here are long-lived for a whole run rather than
// acquired-and-released per operation.
type DialLimiter struct {
	pool *puddle.Pool[struct{}]
}

// NewDialLimiter builds a limiter allowing up to maxConcurrent simultaneous
// dials.
func NewDialLimiter(maxConcurrent int32) (*DialLimiter, error) {
	cfg := &puddle.Config[struct{}]{
		Constructor: func(ctx context.Context) (struct{}, error) { return struct{}{}, nil },
		Destructor:  func(struct{}) {},
		MaxSize:     maxConcurrent,
	}
	pool, err := puddle.NewPool(cfg)
	if err != nil {
		return nil, err
	}
	return &DialLimiter{pool: pool}, nil
}

// Acquire blocks until a dial slot is available or ctx is cancelled. The
// returned release func must be called exactly once, after the dial+setup
// phase has finished (successfully or not).
func (d *DialLimiter) Acquire(ctx context.Context) (release func(), err error) {
	res, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return res.Release, nil
}

// Close releases the limiter's internal pool.
func (d *DialLimiter) Close() { d.pool.Close() }

// Stat exposes puddle's own counters for observability.
func (d *DialLimiter) Stat() *puddle.Stat { return d.pool.Stat() }
