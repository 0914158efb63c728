package kvbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/kvbench/internal/testutils"
)

func TestHTTPEngineGetHit(t *testing.T) {
	resp := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	mock := testutils.NewConnectionMock(resp)
	stream := NewByteStream(mock)

	e := &httpEngine{opt: &Options{}}
	n, err := e.WriteGet(stream, "foo")
	require.NoError(t, err)
	req := mock.GetWrittenRequest()
	assert.Contains(t, req, "GET /foo HTTP/1.1")
	assert.Equal(t, len(req), n, "WriteGet must report the exact bytes put on the wire")

	fillAll(t, stream)
	result, ok, err := e.TryReadResponse(stream, OpGet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, result.Hit)
}

func TestHTTPEngineGetMiss(t *testing.T) {
	resp := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	mock := testutils.NewConnectionMock(resp)
	stream := NewByteStream(mock)

	e := &httpEngine{opt: &Options{}}
	_, err := e.WriteGet(stream, "foo")
	require.NoError(t, err)
	fillAll(t, stream)

	result, ok, err := e.TryReadResponse(stream, OpGet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, result.Hit)
}

// TestHTTPEngineSplitDelivery feeds the status line, headers, and body in
// three separate reads, exercising Content-Length framing across partial
// deliveries the way a real TCP stream would split them.
func TestHTTPEngineSplitDelivery(t *testing.T) {
	mock := testutils.NewConnectionMock()
	stream := NewByteStream(mock)
	e := &httpEngine{opt: &Options{}}

	parts := []string{"HTTP/1.1 200 OK\r\n", "Content-Length: 5\r\n\r\n", "hello"}
	for _, p := range parts {
		stream.Append([]byte(p))
		result, ok, err := e.TryReadResponse(stream, OpGet)
		require.NoError(t, err)
		if ok {
			assert.True(t, result.Hit)
			return
		}
	}
	t.Fatal("response never completed despite all bytes delivered")
}

func TestEtcdEngineSetRequestFormat(t *testing.T) {
	mock := testutils.NewConnectionMock("HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n")
	stream := NewByteStream(mock)

	e := &httpEngine{opt: &Options{}, etcd: true}
	n, err := e.WriteSet(stream, "foo", []byte("bar"))
	require.NoError(t, err)

	req := mock.GetWrittenRequest()
	assert.Contains(t, req, "POST /v2/keys/test/foo HTTP/1.1")
	assert.Contains(t, req, "Content-Length: 9") // len("value=bar")
	assert.Contains(t, req, etcdFormBodyPrefix)
	assert.Contains(t, req, "value=bar")
	assert.Equal(t, len(req), n, "WriteSet must report the exact bytes put on the wire")

	fillAll(t, stream)
	result, ok, err := e.TryReadResponse(stream, OpSet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, result.Hit)
}

type fakeLeader struct{ leader, setTo int }

func (f *fakeLeader) GetLeader() int   { return f.leader }
func (f *fakeLeader) SetLeader(id int) { f.setTo = id }

func TestEtcdEngineLeaderChangeAppliedWhenGuardPasses(t *testing.T) {
	resp := "HTTP/1.1 424 Failed\r\nX-Raft-Leader: 2\r\nContent-Length: 0\r\n\r\n"
	mock := testutils.NewConnectionMock(resp)
	stream := NewByteStream(mock)

	tracker := &fakeLeader{leader: 1}
	e := &httpEngine{opt: &Options{}, etcd: true, sessionID: 1, leader: tracker}
	_, err := e.WriteGet(stream, "foo")
	require.NoError(t, err)
	fillAll(t, stream)

	result, ok, err := e.TryReadResponse(stream, OpGet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, result.LeaderChanged)
	assert.Equal(t, "2", result.NewLeaderID)
	assert.Equal(t, 2, tracker.setTo, "the decimal leader id from the header should be applied")
}

func TestEtcdEngineLeaderChangeGuardedAgainstStaleRedirect(t *testing.T) {
	resp := "HTTP/1.1 424 Failed\r\nX-Raft-Leader: 2\r\nContent-Length: 0\r\n\r\n"
	mock := testutils.NewConnectionMock(resp)
	stream := NewByteStream(mock)

	// tracker.leader is 3, but this session is 1: the guard must refuse to
	// promote a new leader on this session's stale redirect.
	tracker := &fakeLeader{leader: 3}
	e := &httpEngine{opt: &Options{}, etcd: true, sessionID: 1, leader: tracker}
	_, err := e.WriteGet(stream, "foo")
	require.NoError(t, err)
	fillAll(t, stream)

	_, ok, err := e.TryReadResponse(stream, OpGet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, tracker.setTo, "guard should have suppressed the promotion")
}

func TestEtcdEngineLeaderChangeMatchesLegacyHeader(t *testing.T) {
	resp := "HTTP/1.1 424 Failed\r\nX-Etcd-Leader: 5\r\nContent-Length: 0\r\n\r\n"
	mock := testutils.NewConnectionMock(resp)
	stream := NewByteStream(mock)

	tracker := &fakeLeader{leader: 1}
	e := &httpEngine{opt: &Options{}, etcd: true, sessionID: 1, leader: tracker}
	_, err := e.WriteGet(stream, "foo")
	require.NoError(t, err)
	fillAll(t, stream)

	result, ok, err := e.TryReadResponse(stream, OpGet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", result.NewLeaderID)
	assert.Equal(t, 5, tracker.setTo)
}

func TestEtcdEngineLinearAddsQuorumQuery(t *testing.T) {
	mock := testutils.NewConnectionMock("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	stream := NewByteStream(mock)

	e := &httpEngine{opt: &Options{Linear: true}, etcd: true}
	_, err := e.WriteGet(stream, "foo")
	require.NoError(t, err)
	assert.Contains(t, mock.GetWrittenRequest(), "quorum=true")
}
