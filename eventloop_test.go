package kvbench

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAsciiServer answers every "get <key>\r\n" with a fixed hit and every
// "set ...\r\n<value>\r\n" with STORED, just enough to drive a real Run()
// loop end-to-end over the ascii wire format.
func fakeAsciiServer(t *testing.T, conn net.Conn) {
	t.Helper()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "get":
			if _, err := conn.Write([]byte("VALUE " + fields[1] + " 0 2\r\nhi\r\nEND\r\n")); err != nil {
				return
			}
		case "set":
			n := 0
			for _, ch := range fields[3] {
				n = n*10 + int(ch-'0')
			}
			if _, err := r.Discard(n + 2); err != nil { // value + trailing CRLF
				return
			}
			if _, err := conn.Write([]byte("STORED\r\n")); err != nil {
				return
			}
		}
	}
}

func TestConnectionRunEndToEndAscii(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go fakeAsciiServer(t, server)

	opt := &Options{Depth: 2, Records: 100, Update: 0, Time: 0}
	stats := NewDefaultStats()
	c := &Connection{opt: opt, leader: 1, stats: stats}
	s := newServerSession(1, "localhost", "0", opt)
	s.conn = client
	s.stream = NewByteStream(client)
	s.ReadState = ReadIdle
	c.sessions = []*ServerSession{s}
	c.arrivalGen = FixedGenerator{Value: 0}
	c.keyGen = NewSequentialKeyGenerator(opt.Records)
	c.keySizeGen = FixedGenerator{Value: 16}
	c.valueSizeGen = FixedGenerator{Value: 8}
	c.valueBuf = make([]byte, valueBufferSize)
	c.rng = newRand()
	c.startTime = time.Now()
	c.writeState = WriteInit

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	require.NoError(t, err)

	snap := stats.Snapshot()
	assert.Greater(t, snap.Gets, uint64(0), "at least one GET should have completed")
}
