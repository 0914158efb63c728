package kvbench

import (
	"math/rand"
	"strings"
	"time"

	"github.com/pior/kvbench/internal/coarsetime"
)

// Connection drives one independent client identity against a replica set:
// it owns every ServerSession in the set, the single pacing clock that
// decides when to issue the next operation, and the key/value generators
// that shape what gets issued. It is the Go analogue of the reference
// implementation's Connection class (Connection.h/Connection.cc), adapted
// from a single-threaded libevent callback object into a goroutine driven
// by Run (eventloop.go).
type Connection struct {
	opt *Options

	sessions []*ServerSession // 1-based ID == index+1
	leader   int              // 1-based; meaningful for the etcd protocol only

	arrivalGen   Generator
	keyGen       KeyGenerator
	keySizeGen   Generator
	valueSizeGen Generator
	valueBuf     []byte
	rng          *rand.Rand

	stats StatsSink

	writeState WriteState
	nextTime   time.Time
	lastTx     time.Time
	lastRx     time.Time

	startTime time.Time

	rrNext int // round-robin cursor, RoundRobin mode only

	pendingTarget *ServerSession // session selected for the op currently being gated on depth/time

	loaderRecordsDone int
}

// NewConnection parses a "host1:port1|host2:port2" replica-set string and
// builds a Connection ready for Start, following
// Connection::Connection/parse_hoststring in Connection.cc.
func NewConnection(replicaSet string, opt *Options, stats StatsSink) (*Connection, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	c := &Connection{
		opt:    opt,
		leader: 1,
		stats:  stats,
		rng:    newRand(),
	}

	id := 1
	for _, item := range strings.Split(replicaSet, "|") {
		if item == "" {
			continue
		}
		host, port := splitHostPort(item)
		c.sessions = append(c.sessions, newServerSession(id, host, port, opt))
		id++
	}
	if len(c.sessions) == 0 {
		return nil, fatalf("connect", 0, "empty replica set")
	}

	if opt.Protocol == ProtocolEtcd {
		for _, s := range c.sessions {
			if eng, ok := s.engine.(*httpEngine); ok {
				eng.SetSession(s.ID, c)
			}
		}
	}

	c.arrivalGen = NewArrivalGenerator(opt.Lambda, len(c.sessions), c.rng)
	c.keyGen = NewSequentialKeyGenerator(opt.Records)

	var err error
	c.keySizeGen, err = ParseSizeGenerator(nonEmpty(opt.KeySize, "fixed:16"), c.rng)
	if err != nil {
		return nil, err
	}
	c.valueSizeGen, err = ParseSizeGenerator(nonEmpty(opt.ValueSize, "fixed:64"), c.rng)
	if err != nil {
		return nil, err
	}

	c.valueBuf = make([]byte, valueBufferSize)
	c.rng.Read(c.valueBuf)

	return c, nil
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func splitHostPort(item string) (host, port string) {
	if idx := strings.LastIndex(item, ":"); idx >= 0 {
		return item[:idx], item[idx+1:]
	}
	return item, defaultPort
}

// GetLeader and SetLeader implement leaderTracker for the etcd protocol
// engine's stale-redirect guard.
func (c *Connection) GetLeader() int { return c.leader }
func (c *Connection) SetLeader(id int) {
	if id < 1 || id > len(c.sessions) {
		return
	}
	c.leader = id
	c.stats.LogLeaderSwitch()
}

func (c *Connection) leaderSession() *ServerSession {
	return c.sessions[c.leader-1]
}

// selectTarget picks which session an about-to-be-issued operation targets:
// the current leader for etcd, a shard of the key space for Shard mode, a
// rotating session for RoundRobin mode, or simply the lone session for a
// single-server replica set.
func (c *Connection) selectTarget(key string) *ServerSession {
	switch {
	case c.opt.Protocol == ProtocolEtcd:
		return c.leaderSession()
	case c.opt.Shard:
		return c.sessions[shardIndex(key, len(c.sessions))]
	case c.opt.RoundRobin:
		idx := c.rrNext % len(c.sessions)
		c.rrNext++
		return c.sessions[idx]
	default:
		return c.sessions[0]
	}
}

// Start dials every session and arms the pacing clock, matching
// Connection::start (which additionally calls start_loading when
// appropriate — see loader.go).
func (c *Connection) Start() error {
	for _, s := range c.sessions {
		if err := s.Dial(c.opt); err != nil {
			return err
		}
		if err := c.runSetupW(s); err != nil {
			return err
		}
	}
	c.startTime = coarseNow()
	c.writeState = WriteInit
	return nil
}

// runSetupW drives a session's protocol-preamble write/read round-trip
// (SASL auth) to completion before steady-state traffic begins.
func (c *Connection) runSetupW(s *ServerSession) error {
	done, err := s.engine.SetupConnectionW(s.stream)
	if err != nil {
		return err
	}
	if done {
		s.ReadState = ReadIdle
		return nil
	}
	for {
		rdone, err := s.engine.SetupConnectionR(s.stream)
		if err != nil {
			return err
		}
		if rdone {
			s.ReadState = ReadIdle
			return nil
		}
		if _, err := s.stream.FillOnce(); err != nil {
			return fatalf("setup", s.ID, "reading setup response: %v", err)
		}
	}
}

// Reset clears every session's in-flight queue and returns each session to
// IDLE/INIT_WRITE, preparing the Connection to begin a fresh measurement
// window. Matches Connection::reset, whose invariant (operator queue must be
// empty) is the caller's responsibility: CheckExitCondition must hold before
// calling Reset. Reset does not zero any counters: the StatsSink, the
// per-session byte counters and the loader counters keep their values.
func (c *Connection) Reset() {
	for _, s := range c.sessions {
		s.ReadState = ReadIdle
		s.WriteState = WriteInit
		s.opQueue.Init()
	}
	c.writeState = WriteInit
	c.pendingTarget = nil
}

// CheckExitCondition reports whether this Connection's run should end:
// either every session has finished its initial connect/setup handshake
// and the configured Time has elapsed, or (LoadOnly) every session is idle.
// Matches Connection::check_exit_condition.
func (c *Connection) CheckExitCondition(now time.Time) bool {
	for _, s := range c.sessions {
		if s.ReadState == ReadInit {
			return false
		}
	}
	if now.After(c.startTime.Add(time.Duration(c.opt.Time) * time.Second)) {
		return true
	}
	if !c.opt.LoadOnly {
		return false
	}
	for _, s := range c.sessions {
		if s.ReadState != ReadIdle {
			return false
		}
	}
	return true
}

// issueSomething chooses GET or SET by Options.Update, picks a pseudo-random
// key and (for SET) a pseudo-random payload window, and writes the request
// to target. Matches Connection::issue_something/issue_get/issue_set.
func (c *Connection) issueSomething(target *ServerSession, now time.Time) error {
	keyIdx := c.rng.Intn(c.opt.Records)
	key := c.keyGen.Key(keyIdx)

	op := &Operation{Start: now}

	var err error
	var txLen int
	if c.rng.Float64() < c.opt.Update {
		op.Type = OpSet
		value := c.drawValue()
		txLen, err = target.engine.WriteSet(target.stream, key, value)
	} else {
		op.Type = OpGet
		txLen, err = target.engine.WriteGet(target.stream, key)
	}
	if err != nil {
		return err
	}
	target.addTxBytes(txLen)
	c.stats.LogBytes(int64(txLen), 0)

	target.pushOp(op)
	if target.ReadState == ReadIdle {
		if op.Type == OpGet {
			target.ReadState = ReadWaitingForGet
		} else {
			target.ReadState = ReadWaitingForSet
		}
	}
	c.stats.LogOp(target.QueueLen())
	return nil
}

// finishOp completes the oldest in-flight operation on s once its response
// has fully arrived: records its type/hit/latency and any leader redirect
// (Switched/SwitchTime; the engine itself promotes the new leader), and pops
// it so the next queued op (or idle) becomes the new
// head. Matches Connection::finish_op, except the redrive that follows
// (driveWriteMachine) is the caller's responsibility (see eventloop.go),
// since finish_op's "drive on the leader" becomes "drive the connection"
// once pacing is connection-wide rather than per-server.
func (c *Connection) finishOp(s *ServerSession, result protocolResult) *Operation {
	op := s.popOp()
	now := coarseNow()
	op.End = now
	c.lastRx = now

	if result.LeaderChanged {
		op.Switched++
		op.SwitchTime = now
	}

	if op.Type == OpGet {
		c.stats.LogGet(op, result.Hit)
	} else {
		c.stats.LogSet(op)
	}
	return op
}

// drawValue samples a value-sized window out of the precomputed pseudo-
// random buffer, avoiding a fresh allocation+fill per SET.
func (c *Connection) drawValue() []byte {
	n := int(c.valueSizeGen.Generate())
	if n <= 0 {
		n = 1
	}
	if n > len(c.valueBuf) {
		n = len(c.valueBuf)
	}
	offset := c.rng.Intn(len(c.valueBuf) - n + 1)
	return c.valueBuf[offset : offset+n]
}

// driveWriteMachine advances the pacing state machine as far as it can
// without blocking, given the current time. It returns the duration the
// caller should next arm a timer for (armDelay, armed=true) when the
// machine parked in WAITING_FOR_TIME, or armed=false when it parked in
// WAITING_FOR_OPQ or the loader phase is still running (backpressure: a
// future read completion will re-drive the machine instead).
//
// Ported from Connection::drive_write_machine in Connection.cc, unrolled
// from its single-server form to re-select a target session on every pass
// through ISSUING so that Shard/RoundRobin mode can spread load.
func (c *Connection) driveWriteMachine(now time.Time) (armDelay time.Duration, armed bool, err error) {
	if !c.LoaderDone() {
		// The loader phase drives its own issuance (loader.go); steady-state
		// pacing must not also push operations onto a LOADING session's queue.
		return 0, false, nil
	}
	for {
		switch c.writeState {
		case WriteInit:
			delay := c.arrivalGen.Generate()
			c.nextTime = now.Add(secondsToDuration(delay))
			c.writeState = WriteWaitingForTime

		case WriteWaitingForTime:
			if now.Before(c.nextTime) {
				return c.nextTime.Sub(now), true, nil
			}
			c.writeState = WriteIssuing

		case WriteWaitingForOpQueue:
			if c.pendingTarget == nil {
				c.pendingTarget = c.selectTarget(c.peekKey())
			}
			if c.pendingTarget.QueueLen() >= c.opt.Depth {
				return 0, false, nil
			}
			c.writeState = WriteIssuing

		case WriteIssuing:
			if c.pendingTarget == nil {
				c.pendingTarget = c.selectTarget(c.peekKey())
			}
			target := c.pendingTarget
			if target.QueueLen() >= c.opt.Depth {
				c.writeState = WriteWaitingForOpQueue
				return 0, false, nil
			}
			if now.Before(c.nextTime) {
				c.writeState = WriteWaitingForTime
				continue
			}
			if c.opt.Moderate && !c.lastRx.IsZero() && now.Sub(c.lastRx) < moderateCooldown {
				c.nextTime = c.lastRx.Add(moderateCooldown)
				c.writeState = WriteWaitingForTime
				return c.nextTime.Sub(now), true, nil
			}

			if ierr := c.issueSomething(target, now); ierr != nil {
				return 0, false, ierr
			}
			c.pendingTarget = nil
			c.lastTx = now
			c.nextTime = c.nextTime.Add(secondsToDuration(c.arrivalGen.Generate()))

			if c.opt.Skip && c.opt.Lambda > 0 &&
				now.Sub(c.nextTime) > skipBehindThreshold &&
				target.QueueLen() >= c.opt.Depth {
				for c.nextTime.Before(now.Add(-skipCatchupMargin)) {
					c.stats.LogSkip()
					c.nextTime = c.nextTime.Add(secondsToDuration(c.arrivalGen.Generate()))
				}
			}
			// loop: stay in ISSUING, matching the reference's unconditional
			// re-entry at the top of drive_write_machine's for(;;).
		}
	}
}

// peekKey previews the key the next issueSomething call would draw, so
// Shard mode can route to the right session before the operation exists.
// It does not advance the RNG a second time: issueSomething redraws its own
// key, so Shard mode's routing key and the issued key can differ by one
// step of the PRNG stream. That's acceptable: Shard mode only needs
// approximately even, deterministic-per-key distribution, not a single
// canonical draw per operation.
func (c *Connection) peekKey() string {
	if !c.opt.Shard {
		return ""
	}
	return c.keyGen.Key(c.rng.Intn(c.opt.Records))
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// coarseNow is the clock source driveWriteMachine and CheckExitCondition
// read. It delegates to internal/coarsetime rather than time.Now directly:
// a fleet running many Connections would otherwise make a syscall on every
// single pacing decision across every session.
func coarseNow() time.Time { return coarsetime.Now() }
