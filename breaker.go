package kvbench

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// FleetBreaker wraps gobreaker around a replica set's launch path: if a
// given replica set's Connections keep failing to dial/setup, the breaker
// trips and further launch attempts fail fast instead of retrying a dead
// target on every fleet tick. Adapted from the teacher's per-request
// GoBreakerWrapper (circuit_breaker.go); here gobreaker's generic result
// type is struct{} (a launch either succeeds or it doesn't) instead of a
// wire response.
type FleetBreaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// NewFleetBreaker builds a breaker for one replica set, named addr for its
// gobreaker.Settings.Name (surfaced in logs/metrics). It trips after three
// or more launch attempts with a 60% failure ratio, matching the teacher's
// NewGobreakerConfig default policy.
func NewFleetBreaker(addr string, maxRequests uint32, interval, timeout time.Duration) *FleetBreaker {
	settings := gobreaker.Settings{
		Name:        addr,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return &FleetBreaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Launch runs fn (a Connection's Start, typically) through the breaker.
func (b *FleetBreaker) Launch(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// State returns the breaker's current gobreaker state for observability.
func (b *FleetBreaker) State() gobreaker.State { return b.cb.State() }
