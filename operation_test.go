package kvbench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationLatency(t *testing.T) {
	start := time.Now()
	op := &Operation{Type: OpGet, Start: start, End: start.Add(5 * time.Millisecond)}
	assert.Equal(t, 5*time.Millisecond, op.Latency())
}

func TestOpTypeString(t *testing.T) {
	assert.Equal(t, "GET", OpGet.String())
	assert.Equal(t, "SET", OpSet.String())
	assert.Equal(t, "?", OpType(99).String())
}
