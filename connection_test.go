package kvbench

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a protocolEngine that never actually touches the wire; it
// lets connection_test.go exercise the pacing state machine in isolation
// from any protocol's byte format.
type fakeEngine struct{}

func (fakeEngine) SetupConnectionW(*ByteStream) (bool, error) { return true, nil }
func (fakeEngine) SetupConnectionR(*ByteStream) (bool, error) { return true, nil }
func (fakeEngine) WriteGet(*ByteStream, string) (int, error)         { return 0, nil }
func (fakeEngine) WriteSet(*ByteStream, string, []byte) (int, error) { return 0, nil }
func (fakeEngine) TryReadResponse(*ByteStream, OpType) (protocolResult, bool, error) {
	return protocolResult{Hit: true}, true, nil
}

// newTestConnection builds a Connection with n sessions backed by net.Pipe,
// each wired to fakeEngine, bypassing NewConnection's real network dial.
func newTestConnection(t *testing.T, n int, opt *Options) *Connection {
	t.Helper()
	stats := NewDefaultStats()
	c := &Connection{opt: opt, leader: 1, stats: stats}
	for i := 0; i < n; i++ {
		client, server := net.Pipe()
		t.Cleanup(func() { client.Close(); server.Close() })
		go drainPipe(server)

		s := newServerSession(i+1, "localhost", "0", opt)
		s.engine = fakeEngine{}
		s.conn = client
		s.stream = NewByteStream(client)
		s.ReadState = ReadIdle
		c.sessions = append(c.sessions, s)
	}
	c.arrivalGen = FixedGenerator{Value: 0}
	c.keyGen = NewSequentialKeyGenerator(opt.Records)
	c.keySizeGen = FixedGenerator{Value: 16}
	c.valueSizeGen = FixedGenerator{Value: 8}
	c.valueBuf = make([]byte, valueBufferSize)
	c.rng = newRand()
	return c
}

// drainPipe drains a net.Pipe's read side so WriteFull never blocks.
func drainPipe(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func TestDriveWriteMachineRespectsDepthOne(t *testing.T) {
	opt := &Options{Depth: 1, Records: 10, Update: 0}
	c := newTestConnection(t, 1, opt)

	now := time.Now()
	_, _, err := c.driveWriteMachine(now)
	require.NoError(t, err)
	assert.Equal(t, 1, c.sessions[0].QueueLen(), "exactly one op should be in flight at depth=1")

	_, armed, err := c.driveWriteMachine(now)
	require.NoError(t, err)
	assert.False(t, armed, "machine should be gated on WAITING_FOR_OPQ, not armed for a timer")
	assert.Equal(t, 1, c.sessions[0].QueueLen(), "a second op must not be issued while depth=1 is full")

	c.finishOp(c.sessions[0], protocolResult{Hit: true})
	assert.Equal(t, 0, c.sessions[0].QueueLen())

	_, _, err = c.driveWriteMachine(now)
	require.NoError(t, err)
	assert.Equal(t, 1, c.sessions[0].QueueLen(), "freeing the queue should let the next op issue")
}

func TestDriveWriteMachineSkipCompensation(t *testing.T) {
	opt := &Options{Depth: 1, Records: 10, Update: 0, Skip: true, Lambda: 1000}
	c := newTestConnection(t, 1, opt)
	c.arrivalGen = FixedGenerator{Value: 0.001}

	now := time.Now()
	_, _, err := c.driveWriteMachine(now)
	require.NoError(t, err)

	// Fill the queue so the next issue attempt qualifies for skip
	// compensation, then jump "now" far into the future: next_time is left
	// far behind schedule while the session stays saturated at depth=1.
	future := now.Add(time.Second)
	_, _, err = c.driveWriteMachine(future)
	require.NoError(t, err)

	stats := c.stats.(*DefaultStats)
	assert.Greater(t, stats.Snapshot().Skips, uint64(0), "skip compensation should have fired after falling far behind schedule")
}

func TestFinishOpPopsOldestAndUpdatesReadState(t *testing.T) {
	opt := &Options{Depth: 4, Records: 10}
	c := newTestConnection(t, 1, opt)
	s := c.sessions[0]

	op1 := &Operation{Type: OpGet, Start: time.Now()}
	op2 := &Operation{Type: OpSet, Start: time.Now()}
	s.pushOp(op1)
	s.ReadState = ReadWaitingForGet
	s.pushOp(op2)

	finished := c.finishOp(s, protocolResult{Hit: true})
	assert.Same(t, op1, finished)
	assert.Equal(t, ReadWaitingForSet, s.ReadState)

	c.finishOp(s, protocolResult{})
	assert.Equal(t, ReadIdle, s.ReadState)
	assert.Equal(t, 0, s.QueueLen())
}

func TestCheckExitConditionWaitsForConnSetup(t *testing.T) {
	opt := &Options{Depth: 1, Records: 10, Time: 0}
	c := newTestConnection(t, 1, opt)
	c.sessions[0].ReadState = ReadInit
	c.startTime = time.Now().Add(-time.Hour)

	assert.False(t, c.CheckExitCondition(time.Now()), "must not exit while a session is still INIT_READ")

	c.sessions[0].ReadState = ReadIdle
	assert.True(t, c.CheckExitCondition(time.Now()))
}

func TestCheckExitConditionLoadOnly(t *testing.T) {
	opt := &Options{Depth: 1, Records: 10, LoadOnly: true, Time: 3600}
	c := newTestConnection(t, 1, opt)
	c.startTime = time.Now()
	c.sessions[0].ReadState = ReadLoading
	assert.False(t, c.CheckExitCondition(time.Now()))

	c.sessions[0].ReadState = ReadIdle
	assert.True(t, c.CheckExitCondition(time.Now()))
}

func TestLeaderSwitchGuard(t *testing.T) {
	opt := &Options{Depth: 1, Records: 10, Protocol: ProtocolEtcd}
	c := newTestConnection(t, 3, opt)
	assert.Equal(t, 1, c.GetLeader())

	c.SetLeader(2)
	assert.Equal(t, 2, c.GetLeader())

	c.SetLeader(99) // out of range, must be ignored
	assert.Equal(t, 2, c.GetLeader())
}
