package kvbench

import (
	"github.com/zeebo/xxh3"

	"github.com/pior/kvbench/internal"
)

// shardIndex maps a key to one of numSessions targets using xxh3 for speed
// and Google's Jump Consistent Hash for a balanced, minimal-reshuffling
// distribution. Ported from the teacher's DefaultServerSelector
// (server_selector.go), which hashed meta-protocol keys across a connection
// pool the same way; here it spreads Shard-mode traffic across the replica
// set's independent sessions instead.
func shardIndex(key string, numSessions int) int {
	return internal.JumpHash(xxh3.HashString(key), numSessions)
}
