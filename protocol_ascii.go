package kvbench

import (
	"fmt"
	"strconv"
)

// asciiEngine speaks the memcache text protocol: "get <key>\r\n" /
// "set <key> 0 0 <bytes>\r\n<value>\r\n", responses "VALUE ... \r\n<data>
// \r\nEND\r\n" or "END\r\n" (miss) for GET, "STORED\r\n" for SET. Ported
// from ProtocolAscii in Protocol.cc/Protocol.h.
type asciiEngine struct {
	// dataLen is the byte count announced by a VALUE line, while waiting
	// for its payload + trailing CRLF + END line.
	dataLen int
	// state tracks where within a GET response we are; SET responses are
	// a single line so need no extra state.
	state asciiReadState
}

type asciiReadState int

const (
	asciiIdle asciiReadState = iota
	asciiWaitingForGetLine
	asciiWaitingForGetData
	asciiWaitingForEnd
)

func (e *asciiEngine) SetupConnectionW(s *ByteStream) (bool, error) { return true, nil }
func (e *asciiEngine) SetupConnectionR(s *ByteStream) (bool, error) { return true, nil }

func (e *asciiEngine) WriteGet(s *ByteStream, key string) (int, error) {
	return s.WriteFull([]byte(fmt.Sprintf("get %s\r\n", key)))
}

func (e *asciiEngine) WriteSet(s *ByteStream, key string, value []byte) (int, error) {
	req := fmt.Sprintf("set %s 0 0 %d\r\n", key, len(value))
	buf := make([]byte, 0, len(req)+len(value)+2)
	buf = append(buf, req...)
	buf = append(buf, value...)
	buf = append(buf, '\r', '\n')
	return s.WriteFull(buf)
}

func (e *asciiEngine) TryReadResponse(s *ByteStream, opType OpType) (protocolResult, bool, error) {
	if opType == OpSet {
		line, ok := s.Line()
		if !ok {
			return protocolResult{}, false, nil
		}
		if string(line) != "STORED" {
			return protocolResult{}, false, fatalf("parse", 0, "ascii: unexpected SET response %q", line)
		}
		return protocolResult{}, true, nil
	}

	for {
		switch e.state {
		case asciiWaitingForGetLine, asciiIdle:
			line, ok := s.Line()
			if !ok {
				return protocolResult{}, false, nil
			}
			if string(line) == "END" {
				return protocolResult{Hit: false}, true, nil
			}
			n, err := parseValueLine(line)
			if err != nil {
				return protocolResult{}, false, err
			}
			e.dataLen = n
			e.state = asciiWaitingForGetData
		case asciiWaitingForGetData:
			if _, ok := s.DrainN(e.dataLen + 2); !ok {
				return protocolResult{}, false, nil
			}
			e.state = asciiWaitingForEnd
		case asciiWaitingForEnd:
			line, ok := s.Line()
			if !ok {
				return protocolResult{}, false, nil
			}
			if string(line) != "END" {
				return protocolResult{}, false, fatalf("parse", 0, "ascii: expected END, got %q", line)
			}
			e.state = asciiIdle
			return protocolResult{Hit: true}, true, nil
		}
	}
}

// parseValueLine extracts the byte count from "VALUE <key> <flags> <bytes>".
func parseValueLine(line []byte) (int, error) {
	fields := splitFields(line)
	if len(fields) != 4 || string(fields[0]) != "VALUE" {
		return 0, fatalf("parse", 0, "ascii: malformed VALUE line %q", line)
	}
	n, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return 0, fatalf("parse", 0, "ascii: bad byte count in VALUE line %q: %v", line, err)
	}
	return n, nil
}

func splitFields(line []byte) [][]byte {
	var fields [][]byte
	start := -1
	for i, b := range line {
		if b == ' ' {
			if start >= 0 {
				fields = append(fields, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, line[start:])
	}
	return fields
}
