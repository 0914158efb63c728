package kvbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerSessionPushPopOp(t *testing.T) {
	s := newServerSession(1, "localhost", "11211", &Options{})
	assert.Equal(t, 0, s.QueueLen())
	assert.Nil(t, s.frontOp())

	op1 := &Operation{Type: OpGet}
	op2 := &Operation{Type: OpSet}
	s.pushOp(op1)
	s.pushOp(op2)
	assert.Equal(t, 2, s.QueueLen())
	assert.Same(t, op1, s.frontOp())

	popped := s.popOp()
	assert.Same(t, op1, popped)
	assert.Equal(t, 1, s.QueueLen())
	assert.Equal(t, ReadWaitingForSet, s.ReadState)

	s.popOp()
	assert.Equal(t, 0, s.QueueLen())
	assert.Equal(t, ReadIdle, s.ReadState)
}

func TestServerSessionPopOpDuringLoadingLeavesReadStateAlone(t *testing.T) {
	s := newServerSession(1, "localhost", "11211", &Options{})
	s.ReadState = ReadLoading
	s.pushOp(&Operation{Type: OpSet})

	s.popOp()
	assert.Equal(t, ReadLoading, s.ReadState, "loader.go drives ReadState transitions explicitly during LOADING")
}

func TestServerSessionByteCounters(t *testing.T) {
	s := newServerSession(1, "localhost", "11211", &Options{})
	s.addTxBytes(10)
	s.addRxBytes(20)
	assert.EqualValues(t, 10, s.TxBytes())
	assert.EqualValues(t, 20, s.RxBytes())
}
