package kvbench

import "fmt"

// Protocol selects the wire format a Connection's sessions speak.
type Protocol int

const (
	ProtocolAscii Protocol = iota
	ProtocolBinary
	ProtocolHTTP
	ProtocolEtcd
)

// Options is a read-only-after-construction configuration snapshot shared
// by every ServerSession a Connection owns. See spec.md §6 for the full
// field-by-field rationale.
type Options struct {
	// Lambda is the target aggregate arrival rate, ops/s; <= 0 disables
	// pacing. qps/lambda_denom scaling helpers named in spec.md §6 are CLI
	// concerns resolved into this single field before a Connection ever
	// sees an Options value (see cmd/kvbench's resolveLambda), not fields
	// of Options itself.
	Lambda float64

	Records int // key-space cardinality for the loader and issuer
	Depth   int // per-session outstanding-operation ceiling

	Update float64 // SET probability during steady state, in [0, 1]

	Time     int  // run duration, seconds
	LoadOnly bool // exit after the loader phase
	NoLoad   bool // skip the loader phase

	// IA names an inter-arrival distribution spec. It is not read: the
	// arrival generator is always exponential, or fixed at 0 when Lambda <= 0
	// (see NewArrivalGenerator).
	IA string
	// KeySize is a key-size distribution spec. NewConnection parses it and
	// rejects a malformed spec, but keys are always the zero-padded record
	// index, so their length does not follow it.
	KeySize   string
	ValueSize string // value-size distribution spec

	Protocol Protocol

	SASL     bool
	Username string
	Password string

	Linear bool // linearizable (quorum) reads, etcd only

	// EtcdLegacyBodyTerminator selects the legacy "}\n" body terminator
	// instead of the chunked-encoding "0\r\n\r\n" terminator (spec.md Open
	// Question (a)); false is the modern default.
	EtcdLegacyBodyTerminator bool

	NoNodelay bool // skip setting TCP_NODELAY
	Moderate  bool // enable the post-response cooldown
	Skip      bool // enable backpressure skip-compensation
	Reserve   int  // presized sample-buffer hint

	// Shard and RoundRobin are mutually exclusive with each other and with
	// etcd leader tracking: they pick which session an issue_something
	// call targets when a replica set has more than one non-Raft server.
	// See SPEC_FULL.md §5.
	Shard      bool
	RoundRobin bool

	// WarmupConnections caps how many sibling Connections in a fleet
	// participate in the loader phase against a shared key space; zero
	// means "all of them" (see SPEC_FULL.md §5).
	WarmupConnections int
}

// Validate checks an Options snapshot for invalid combinations and the
// latent bugs the reference implementation carries unchecked (REDESIGN
// FLAGS: depth <= 0 is an invalid option, not a (size_t) underflow).
func (o *Options) Validate() error {
	if o.Depth <= 0 {
		return fmt.Errorf("kvbench: options.Depth must be positive, got %d", o.Depth)
	}
	if o.Records <= 0 {
		return fmt.Errorf("kvbench: options.Records must be positive, got %d", o.Records)
	}
	if o.Update < 0 || o.Update > 1 {
		return fmt.Errorf("kvbench: options.Update must be in [0, 1], got %v", o.Update)
	}
	if o.Shard && o.RoundRobin {
		return fmt.Errorf("kvbench: options.Shard and options.RoundRobin are mutually exclusive")
	}
	if (o.Shard || o.RoundRobin) && o.Protocol == ProtocolEtcd {
		return fmt.Errorf("kvbench: Shard/RoundRobin cannot be combined with the etcd protocol's leader tracking")
	}
	if o.SASL && o.Protocol != ProtocolBinary {
		return fmt.Errorf("kvbench: options.SASL is only valid with the binary protocol")
	}
	return nil
}
