package kvbench

import (
	"container/list"
	"net"
	"sync/atomic"
)

// ReadState is the receive-side state of a ServerSession, mirroring
// read_state_enum in the reference implementation's Connection.h.
type ReadState int

const (
	ReadInit ReadState = iota
	ReadConnSetup
	ReadLoading
	ReadIdle
	ReadWaitingForGet
	ReadWaitingForSet
)

// WriteState is the issue-side state of a ServerSession, mirroring
// write_state_enum.
type WriteState int

const (
	WriteInit WriteState = iota
	WriteIssuing
	WriteWaitingForTime
	WriteWaitingForOpQueue
)

// ServerSession is one TCP connection to one replica-set member: its
// protocol engine, its FIFO of in-flight operations, and the two small
// state machines (ReadState/WriteState) that drive issuance and response
// consumption. It is the Go analogue of the reference implementation's
// server_t (Connection.h).
type ServerSession struct {
	ID   int // 1-based, matching the reference implementation's server ids
	Host string
	Port string

	conn   net.Conn
	stream *ByteStream
	engine protocolEngine

	ReadState  ReadState
	WriteState WriteState

	opQueue *list.List // of *Operation, oldest at Front

	loaderIssued    int // loader SETs issued so far by this session
	loaderCompleted int
	loaderNextIndex int // next raw record index to consider
	loaderTotal     int // records this session loads: all of them, none, or its shard's share

	txBytes int64
	rxBytes int64
}

func newServerSession(id int, host, port string, opt *Options) *ServerSession {
	return &ServerSession{
		ID:         id,
		Host:       host,
		Port:       port,
		engine:     newProtocolEngine(opt),
		ReadState:  ReadInit,
		WriteState: WriteInit,
		opQueue:    list.New(),
	}
}

// Dial opens the TCP connection and, unless NoNodelay is set, disables
// Nagle's algorithm (event_callback's TCP_NODELAY setup in Connection.cc).
func (s *ServerSession) Dial(opt *Options) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(s.Host, s.Port))
	if err != nil {
		return fatalf("connect", s.ID, "dial %s:%s: %v", s.Host, s.Port, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok && !opt.NoNodelay {
		_ = tcp.SetNoDelay(true)
	}
	s.conn = conn
	s.stream = NewByteStream(conn)
	s.ReadState = ReadConnSetup
	return nil
}

// Close releases the session's stream buffer and underlying socket.
func (s *ServerSession) Close() error {
	if s.stream != nil {
		s.stream.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// QueueLen returns the number of in-flight operations.
func (s *ServerSession) QueueLen() int { return s.opQueue.Len() }

// pushOp enqueues a newly-issued Operation at the tail.
func (s *ServerSession) pushOp(op *Operation) {
	s.opQueue.PushBack(op)
}

// frontOp returns the oldest in-flight Operation, or nil if none.
func (s *ServerSession) frontOp() *Operation {
	e := s.opQueue.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Operation)
}

// popOp removes the oldest in-flight Operation and updates ReadState to
// reflect the new head, matching Connection::pop_op: outside the loader
// phase the session goes idle when the queue empties, or WAITING_FOR_GET/
// WAITING_FOR_SET to match the new head's type; during loading it is left
// for the caller (loader.go) to manage explicitly.
func (s *ServerSession) popOp() *Operation {
	e := s.opQueue.Front()
	if e == nil {
		return nil
	}
	op := e.Value.(*Operation)
	s.opQueue.Remove(e)

	if s.ReadState != ReadLoading {
		if next := s.frontOp(); next != nil {
			if next.Type == OpGet {
				s.ReadState = ReadWaitingForGet
			} else {
				s.ReadState = ReadWaitingForSet
			}
		} else {
			s.ReadState = ReadIdle
		}
	}
	return op
}

func (s *ServerSession) addTxBytes(n int) { atomic.AddInt64(&s.txBytes, int64(n)) }
func (s *ServerSession) addRxBytes(n int) { atomic.AddInt64(&s.rxBytes, int64(n)) }

// TxBytes/RxBytes expose the byte counters for this session (SPEC_FULL.md
// §5's per-session accounting, absent from the reference implementation
// which only tracked connection-wide totals).
func (s *ServerSession) TxBytes() int64 { return atomic.LoadInt64(&s.txBytes) }
func (s *ServerSession) RxBytes() int64 { return atomic.LoadInt64(&s.rxBytes) }
