package kvbench

import "time"

// Pacing constants, ported from the reference implementation's
// drive_write_machine (Connection.cc).
const (
	// moderateCooldown is the post-response quiet period enforced when
	// Options.Moderate is set, to discourage tight burst issuance right
	// after an I/O wakeup.
	moderateCooldown = 250 * time.Microsecond

	// skipBehindThreshold is how far behind schedule next_time must fall
	// before skip-compensation kicks in.
	skipBehindThreshold = 5 * time.Millisecond

	// skipCatchupMargin is how close to "now" skip-compensation fast-forwards
	// next_time to, leaving a small buffer rather than landing exactly on now.
	skipCatchupMargin = 4 * time.Millisecond
)

// loaderChunk is the fixed window of outstanding SETs the warm-up loader
// keeps in flight at once (LOADER_CHUNK in the reference implementation).
const loaderChunk = 1024

// binary protocol wire constants (24-byte fixed header, network byte order).
const (
	binaryMagicRequest = 0x80

	binaryOpGet  = 0x00
	binaryOpSet  = 0x01
	binaryOpSASL = 0x21

	binaryStatusOK = 0x0000

	binaryHeaderLen = 24
	binarySetExtras = 8 // flags(4) + expiry(4)
)

// defaultPort is used when a replica-set entry omits a port.
const defaultPort = "11211"

// valueBufferSize is the size of the precomputed pseudo-random payload
// buffer SET operations draw offsets from (spec §4.4).
const valueBufferSize = 1 << 20 // 1 MiB
