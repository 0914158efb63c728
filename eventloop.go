package kvbench

import (
	"context"
	"errors"
	"io"
	"time"
)

// readArrived is delivered by a session's reader goroutine to the
// Connection's single-threaded run loop whenever bytes come off the wire.
// The run loop is the only goroutine that ever touches a ByteStream's
// buffer or a ServerSession's op queue, so every other piece of session
// state stays free of locks.
type readArrived struct {
	session *ServerSession
	data    []byte
	err     error
}

// Run drives the Connection until CheckExitCondition is true or ctx is
// cancelled. It is the Go reimagining of the reference implementation's
// libevent dispatch loop: a timer for the pacing clock plus one readiness
// notification per socket, funneled into a single select so no two
// goroutines ever mutate the same ServerSession concurrently.
func (c *Connection) Run(ctx context.Context) error {
	events := make(chan readArrived, 16*len(c.sessions))
	readerCtx, cancelReaders := context.WithCancel(ctx)
	defer cancelReaders()

	for _, s := range c.sessions {
		go readerLoop(readerCtx, s, events)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	rearm := func() error {
		delay, armed, err := c.driveWriteMachine(coarseNow())
		if err != nil {
			return err
		}
		if armed {
			if delay < 0 {
				delay = 0
			}
			timer.Reset(delay)
		}
		return nil
	}

	if err := rearm(); err != nil {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-events:
			if ev.err != nil && !errors.Is(ev.err, io.EOF) {
				return fatalf("eof", ev.session.ID, "read: %v", ev.err)
			}
			ev.session.stream.Append(ev.data)
			ev.session.addRxBytes(len(ev.data))
			c.stats.LogBytes(0, int64(len(ev.data)))

			if err := c.drainReads(ev.session); err != nil {
				return err
			}
			if ev.err != nil {
				return fatalf("eof", ev.session.ID, "connection closed before exit condition")
			}
			if err := rearm(); err != nil {
				return err
			}

		case <-timer.C:
			if err := rearm(); err != nil {
				return err
			}

		case <-ticker.C:
			if c.CheckExitCondition(coarseNow()) {
				return nil
			}
		}
	}
}

// readerLoop performs the blocking net.Conn reads for one session and
// forwards every chunk (and the terminal error, if any) to events. It never
// touches session state beyond the io.Reader itself.
func readerLoop(ctx context.Context, s *ServerSession, events chan<- readArrived) {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			select {
			case events <- readArrived{session: s, data: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case events <- readArrived{session: s, err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// drainReads consumes as many complete response frames as are currently
// buffered for s, completing each via finishOp. It does not re-drive the
// pacing machine itself; Run does that right after it returns, since
// finishing an op may free up queue depth.
func (c *Connection) drainReads(s *ServerSession) error {
	for {
		switch s.ReadState {
		case ReadInit:
			return fatalf("setup", s.ID, "unexpected read before connection setup")
		case ReadIdle:
			return nil
		case ReadLoading:
			return c.drainLoaderReads(s)
		case ReadWaitingForGet, ReadWaitingForSet:
			op := s.frontOp()
			if op == nil {
				return nil
			}
			result, ok, err := s.engine.TryReadResponse(s.stream, op.Type)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			c.finishOp(s, result)
		default:
			return nil
		}
	}
}
