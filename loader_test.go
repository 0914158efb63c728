package kvbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartLoadingSingleTargetIssuesUpToLoaderChunk(t *testing.T) {
	opt := &Options{Depth: 4, Records: loaderChunk * 2}
	c := newTestConnection(t, 1, opt)

	require.NoError(t, c.StartLoading())
	assert.Equal(t, ReadLoading, c.sessions[0].ReadState)
	assert.Equal(t, loaderChunk, c.sessions[0].QueueLen())
}

func TestDrainLoaderReadsCompletesAndFlipsIdle(t *testing.T) {
	opt := &Options{Depth: 4, Records: 5}
	c := newTestConnection(t, 1, opt)
	require.NoError(t, c.StartLoading())

	s := c.sessions[0]
	assert.Equal(t, 5, s.QueueLen())

	for s.QueueLen() > 0 {
		require.NoError(t, c.drainLoaderReads(s))
	}
	assert.Equal(t, ReadIdle, s.ReadState)
	assert.True(t, c.LoaderDone())
}

func TestStartLoadingShardModeSplitsAcrossSessions(t *testing.T) {
	opt := &Options{Depth: 4, Records: 200, Shard: true}
	c := newTestConnection(t, 3, opt)

	require.NoError(t, c.StartLoading())

	total := 0
	for _, s := range c.sessions {
		total += s.loaderTotal
		assert.LessOrEqual(t, s.QueueLen(), loaderChunk)
	}
	assert.Equal(t, opt.Records, total, "every record must be assigned to exactly one shard")
}

func TestStartLoadingNonLoaderSessionGoesIdleImmediately(t *testing.T) {
	opt := &Options{Depth: 4, Records: 10} // not Shard, not etcd: only sessions[0] loads
	c := newTestConnection(t, 2, opt)

	require.NoError(t, c.StartLoading())
	assert.Equal(t, ReadLoading, c.sessions[0].ReadState)
	assert.Equal(t, ReadIdle, c.sessions[1].ReadState)
}
