package kvbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() *Options {
	return &Options{Depth: 4, Records: 1000, Update: 0.1}
}

func TestOptionsValidate(t *testing.T) {
	opt := validOptions()
	require.NoError(t, opt.Validate())
}

func TestOptionsValidateRejectsNonPositiveDepth(t *testing.T) {
	for _, depth := range []int{0, -1} {
		opt := validOptions()
		opt.Depth = depth
		assert.Error(t, opt.Validate(), "depth %d should be rejected", depth)
	}
}

func TestOptionsValidateRejectsBadRecords(t *testing.T) {
	opt := validOptions()
	opt.Records = 0
	assert.Error(t, opt.Validate())
}

func TestOptionsValidateRejectsBadUpdate(t *testing.T) {
	opt := validOptions()
	opt.Update = 1.5
	assert.Error(t, opt.Validate())
}

func TestOptionsValidateRejectsShardAndRoundRobinTogether(t *testing.T) {
	opt := validOptions()
	opt.Shard = true
	opt.RoundRobin = true
	assert.Error(t, opt.Validate())
}

func TestOptionsValidateRejectsShardWithEtcd(t *testing.T) {
	opt := validOptions()
	opt.Shard = true
	opt.Protocol = ProtocolEtcd
	assert.Error(t, opt.Validate())
}

func TestOptionsValidateRejectsSASLWithoutBinary(t *testing.T) {
	opt := validOptions()
	opt.SASL = true
	opt.Protocol = ProtocolAscii
	assert.Error(t, opt.Validate())
}
