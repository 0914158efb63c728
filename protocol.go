package kvbench

// protocolResult is returned by a protocolEngine's TryReadResponse once a
// complete response frame has been consumed from the ByteStream.
type protocolResult struct {
	// Hit is only meaningful for GET responses.
	Hit bool
	// LeaderChanged is set when the response redirected to a new leader
	// (etcd only). NewLeaderID names the replacement session id when known.
	LeaderChanged bool
	NewLeaderID   string
}

// protocolEngine encodes requests and incrementally decodes responses for
// one wire format. A ServerSession owns exactly one protocolEngine instance
// and drives it from its ByteStream; engines are not safe for concurrent
// use. This mirrors the reference implementation's Protocol/ProtocolAscii/
// ProtocolBinary/ProtocolEtcd class hierarchy (Protocol.h/Protocol.cc),
// expressed as an interface instead of virtual dispatch.
type protocolEngine interface {
	// SetupConnectionW writes any connection-preamble bytes required before
	// steady-state traffic can flow (SASL auth for binary; a no-op for the
	// others). It returns true once the preamble is fully written and no
	// response is pending, matching setup_connection_w's read_state
	// transition logic in Connection.cc.
	SetupConnectionW(s *ByteStream) (done bool, err error)

	// SetupConnectionR consumes and validates any preamble response bytes
	// (the SASL auth result for binary). For protocols without a readable
	// preamble it is a no-op returning true immediately.
	SetupConnectionR(s *ByteStream) (done bool, err error)

	// WriteGet appends a GET request for key to the stream's pending
	// output and flushes it, returning the number of bytes actually put on
	// the wire (spec.md §4.1's get_request→bytes_written).
	WriteGet(s *ByteStream, key string) (bytesWritten int, err error)

	// WriteSet appends a SET request for key/value, returning the number of
	// bytes actually put on the wire (set_request→bytes_written).
	WriteSet(s *ByteStream, key string, value []byte) (bytesWritten int, err error)

	// TryReadResponse attempts to consume one complete response frame from
	// the stream's buffer. ok is false if the frame hasn't fully arrived;
	// the caller should FillOnce and retry.
	TryReadResponse(s *ByteStream, opType OpType) (result protocolResult, ok bool, err error)
}

// newProtocolEngine constructs the engine an Options snapshot selects.
func newProtocolEngine(opt *Options) protocolEngine {
	switch opt.Protocol {
	case ProtocolBinary:
		return &binaryEngine{opt: opt}
	case ProtocolHTTP:
		return &httpEngine{opt: opt, etcd: false}
	case ProtocolEtcd:
		return &httpEngine{opt: opt, etcd: true}
	default:
		return &asciiEngine{}
	}
}
