package kvbench

import (
	"bytes"
	"io"
	"net"

	"github.com/pior/kvbench/internal"
)

var readBufferPool = internal.NewByteBufferPool(4096)

// ByteStream buffers incremental reads off a net.Conn and lets a protocol
// engine ask for exactly as much as it currently needs: a CRLF-terminated
// line, a fixed byte count, or the position of a substring — without
// blocking if the answer isn't in the buffer yet. It is the Go analogue of
// the reference implementation's libevent bufferevent input buffer.
//
// A ByteStream is owned by exactly one ServerSession and is not safe for
// concurrent use.
type ByteStream struct {
	conn net.Conn
	buf  *bytes.Buffer
}

func NewByteStream(conn net.Conn) *ByteStream {
	return &ByteStream{conn: conn, buf: readBufferPool.Get()}
}

// Close returns the stream's buffer to the pool. The underlying net.Conn is
// not closed; callers own its lifetime separately.
func (s *ByteStream) Close() {
	readBufferPool.Put(s.buf)
	s.buf = nil
}

// FillOnce performs exactly one Read off the underlying conn and appends
// whatever bytes arrived to the internal buffer. Callers loop FillOnce
// until a Peek/Line/Drain call they need succeeds, so that a protocol
// engine never blocks holding a partial frame.
func (s *ByteStream) FillOnce() (int, error) {
	tmp := make([]byte, 4096)
	n, err := s.conn.Read(tmp)
	if n > 0 {
		s.buf.Write(tmp[:n])
	}
	return n, err
}

// Append adds bytes already read off the wire by another goroutine (see
// eventloop.go's readerLoop) to the buffer.
func (s *ByteStream) Append(data []byte) {
	s.buf.Write(data)
}

// Buffered returns the number of bytes currently held, unconsumed.
func (s *ByteStream) Buffered() int {
	return s.buf.Len()
}

// Line extracts one CRLF-terminated line, without the terminator, if one is
// fully buffered. ok is false if no complete line is available yet.
func (s *ByteStream) Line() (line []byte, ok bool) {
	b := s.buf.Bytes()
	idx := bytes.Index(b, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line = make([]byte, idx)
	copy(line, b[:idx])
	s.buf.Next(idx + 2)
	return line, true
}

// PeekN returns the first n bytes without consuming them, if that many are
// buffered.
func (s *ByteStream) PeekN(n int) ([]byte, bool) {
	b := s.buf.Bytes()
	if len(b) < n {
		return nil, false
	}
	return b[:n], true
}

// DrainN consumes and returns exactly n bytes, if that many are buffered.
func (s *ByteStream) DrainN(n int) ([]byte, bool) {
	b, ok := s.PeekN(n)
	if !ok {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, b)
	s.buf.Next(n)
	return out, true
}

// Index returns the offset of the first occurrence of sep in the buffered
// data, or -1 if sep has not fully arrived yet.
func (s *ByteStream) Index(sep []byte) int {
	return bytes.Index(s.buf.Bytes(), sep)
}

// WriteFull writes p to the underlying conn, looping over short writes the
// way a blocking TCP socket occasionally produces.
func (s *ByteStream) WriteFull(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := s.conn.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}
