package kvbench

import (
	"sync"
	"sync/atomic"
	"time"
)

// StatsSink receives every observable event a Connection's pacing and I/O
// state machines produce. Implementations must be safe for concurrent use:
// multiple ServerSessions belonging to multiple Connections in a fleet may
// call into the same sink.
type StatsSink interface {
	// LogGet records a completed GET, including misses.
	LogGet(op *Operation, hit bool)
	// LogSet records a completed SET.
	LogSet(op *Operation)
	// LogOp records that an operation was issued, along with the queue
	// depth immediately after issuance (drive_write_machine's
	// stats.log_op(queue.size()) call).
	LogOp(queueDepth int)
	// LogSkip records one skip-compensation event.
	LogSkip()
	// LogBytes accumulates bytes written to and read from the wire.
	LogBytes(tx, rx int64)
	// LogLeaderSwitch records one etcd leader redirect.
	LogLeaderSwitch()
}

// DefaultStats is the built-in StatsSink: plain atomic counters plus a
// running min/max/sum for GET and SET latency, following the teacher's
// atomic-field collector idiom (its poolStatsCollector).
type DefaultStats struct {
	gets      uint64
	getMisses uint64
	sets      uint64
	ops       uint64
	skips     uint64
	leaderSw  uint64
	txBytes   int64
	rxBytes   int64

	getLatencyNs latencyAccum
	setLatencyNs latencyAccum
}

// latencyAccum tracks count/sum/min/max of a stream of durations using
// plain atomics; it trades histogram precision for zero extra dependencies
// since the corpus exposes no suitable client-side histogram library.
//
// When sampleCap is positive it also retains up to sampleCap raw latencies
// (options.reserve presized, Connection.cc's get_sampler/set_sampler), for
// callers that want percentiles beyond mean/min/max; the mutex only guards
// this slow path, the atomics above stay lock-free.
type latencyAccum struct {
	count uint64
	sumNs uint64
	minNs uint64
	maxNs uint64

	sampleCap int
	mu        sync.Mutex
	samples   []time.Duration
}

func (a *latencyAccum) record(d time.Duration) {
	ns := uint64(d.Nanoseconds())
	atomic.AddUint64(&a.count, 1)
	atomic.AddUint64(&a.sumNs, ns)
	for {
		cur := atomic.LoadUint64(&a.minNs)
		if cur != 0 && cur <= ns {
			break
		}
		if atomic.CompareAndSwapUint64(&a.minNs, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&a.maxNs)
		if cur >= ns {
			break
		}
		if atomic.CompareAndSwapUint64(&a.maxNs, cur, ns) {
			break
		}
	}
	if a.sampleCap > 0 {
		a.mu.Lock()
		if len(a.samples) < a.sampleCap {
			a.samples = append(a.samples, d)
		}
		a.mu.Unlock()
	}
}

// Samples returns a copy of the retained raw latencies, or nil if sampling
// was never enabled (options.reserve <= 0).
func (a *latencyAccum) Samples() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sampleCap <= 0 {
		return nil
	}
	out := make([]time.Duration, len(a.samples))
	copy(out, a.samples)
	return out
}

func (a *latencyAccum) snapshot() LatencySummary {
	count := atomic.LoadUint64(&a.count)
	var mean time.Duration
	if count > 0 {
		mean = time.Duration(atomic.LoadUint64(&a.sumNs) / count)
	}
	return LatencySummary{
		Count: count,
		Mean:  mean,
		Min:   time.Duration(atomic.LoadUint64(&a.minNs)),
		Max:   time.Duration(atomic.LoadUint64(&a.maxNs)),
	}
}

// LatencySummary is a point-in-time snapshot of a latencyAccum.
type LatencySummary struct {
	Count uint64
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
}

// NewDefaultStats returns a zeroed DefaultStats ready for use, with raw
// latency sampling disabled.
func NewDefaultStats() *DefaultStats {
	return &DefaultStats{}
}

// NewDefaultStatsWithReserve returns a DefaultStats that also retains raw
// GET/SET latencies, splitting opt.Reserve between the two samplers in
// proportion to opt.Update the same way Connection.cc presizes
// get_sampler/set_sampler. Each sampler's cap is its share rounded down plus
// one, so together they may hold up to opt.Reserve+2 samples.
func NewDefaultStatsWithReserve(opt *Options) *DefaultStats {
	s := &DefaultStats{}
	if opt == nil || opt.Reserve <= 0 {
		return s
	}
	s.getLatencyNs.sampleCap = int(float64(opt.Reserve)*(1-opt.Update)) + 1
	s.setLatencyNs.sampleCap = int(float64(opt.Reserve)*opt.Update) + 1
	return s
}

// GetLatencySamples/SetLatencySamples expose the raw retained latencies when
// sampling was enabled via NewDefaultStatsWithReserve; both return nil
// otherwise.
func (s *DefaultStats) GetLatencySamples() []time.Duration { return s.getLatencyNs.Samples() }
func (s *DefaultStats) SetLatencySamples() []time.Duration { return s.setLatencyNs.Samples() }

func (s *DefaultStats) LogGet(op *Operation, hit bool) {
	atomic.AddUint64(&s.gets, 1)
	if !hit {
		atomic.AddUint64(&s.getMisses, 1)
	}
	s.getLatencyNs.record(op.Latency())
}

func (s *DefaultStats) LogSet(op *Operation) {
	atomic.AddUint64(&s.sets, 1)
	s.setLatencyNs.record(op.Latency())
}

func (s *DefaultStats) LogOp(queueDepth int) {
	atomic.AddUint64(&s.ops, 1)
}

func (s *DefaultStats) LogSkip() {
	atomic.AddUint64(&s.skips, 1)
}

func (s *DefaultStats) LogBytes(tx, rx int64) {
	atomic.AddInt64(&s.txBytes, tx)
	atomic.AddInt64(&s.rxBytes, rx)
}

func (s *DefaultStats) LogLeaderSwitch() {
	atomic.AddUint64(&s.leaderSw, 1)
}

// Snapshot is a point-in-time, concurrency-safe read of every DefaultStats
// counter.
type Snapshot struct {
	Gets         uint64
	GetMisses    uint64
	Sets         uint64
	OpsIssued    uint64
	Skips        uint64
	LeaderSwitch uint64
	TxBytes      int64
	RxBytes      int64
	GetLatency   LatencySummary
	SetLatency   LatencySummary
}

func (s *DefaultStats) Snapshot() Snapshot {
	return Snapshot{
		Gets:         atomic.LoadUint64(&s.gets),
		GetMisses:    atomic.LoadUint64(&s.getMisses),
		Sets:         atomic.LoadUint64(&s.sets),
		OpsIssued:    atomic.LoadUint64(&s.ops),
		Skips:        atomic.LoadUint64(&s.skips),
		LeaderSwitch: atomic.LoadUint64(&s.leaderSw),
		TxBytes:      atomic.LoadInt64(&s.txBytes),
		RxBytes:      atomic.LoadInt64(&s.rxBytes),
		GetLatency:   s.getLatencyNs.snapshot(),
		SetLatency:   s.setLatencyNs.snapshot(),
	}
}
