package kvbench

import (
	"bytes"
	"fmt"
	"strconv"
)

// leaderTracker is the subset of Connection a httpEngine needs to apply the
// etcd leader-redirect guard: only the session whose id matches the
// Connection's current "assumed leader" is allowed to promote a new one
// (Protocol.cc's LEADER_CHANGED handling, guarded by
// `serv.id == serv.conn->get_leader()`).
type leaderTracker interface {
	GetLeader() int
	SetLeader(int)
}

// httpEngine speaks plain HTTP/1.1 GET/POST framing and, when etcd is true,
// the etcd v2 keys API on top of it (status-code-driven leader redirects).
// Ported from Protocol's ProtocolHTTP/ProtocolEtcd/ProtocolEtcd2 siblings
// in Protocol.cc/Protocol.h.
type httpEngine struct {
	opt  *Options
	etcd bool

	sessionID int
	leader    leaderTracker

	state         httpReadState
	pendingStatus int
	contentLength int
	hasLength     bool
	leaderID      string
}

type httpReadState int

const (
	httpWaitingForStatus httpReadState = iota
	httpReadingHeaders
	httpWaitingForBody
)

// SetSession binds this engine to its owning session's id and the
// Connection-wide leader tracker; called once per session by NewConnection
// (connection.go) for the etcd protocol only.
func (e *httpEngine) SetSession(id int, leader leaderTracker) {
	e.sessionID = id
	e.leader = leader
}

func (e *httpEngine) SetupConnectionW(s *ByteStream) (bool, error) { return true, nil }
func (e *httpEngine) SetupConnectionR(s *ByteStream) (bool, error) { return true, nil }

func (e *httpEngine) keyPath(key string) string {
	if !e.etcd {
		return "/" + key
	}
	path := fmt.Sprintf("/v2/keys/test/%s", key)
	if e.opt.Linear {
		path += "?quorum=true"
	}
	return path
}

func (e *httpEngine) WriteGet(s *ByteStream, key string) (int, error) {
	req := fmt.Sprintf("GET %s HTTP/1.1\r\n\r\n", e.keyPath(key))
	return s.WriteFull([]byte(req))
}

// etcdFormBodyPrefix is the fixed 57-byte form-encoding prefix the
// reference implementation writes ahead of the value for an HTTP or etcd SET.
const etcdFormBodyPrefix = "Content-Type: application/x-www-form-urlencoded\r\n\r\nvalue="

func (e *httpEngine) WriteSet(s *ByteStream, key string, value []byte) (int, error) {
	contentLen := len(value) + 6 // len("value=")
	req := fmt.Sprintf("POST %s HTTP/1.1\r\nContent-Length: %d\r\n%s", e.keyPath(key), contentLen, etcdFormBodyPrefix)
	n1, err := s.WriteFull([]byte(req))
	if err != nil {
		return n1, err
	}
	n2, err := s.WriteFull(value)
	return n1 + n2, err
}

func (e *httpEngine) TryReadResponse(s *ByteStream, opType OpType) (protocolResult, bool, error) {
	for {
		switch e.state {
		case httpWaitingForStatus:
			line, ok := s.Line()
			if !ok {
				return protocolResult{}, false, nil
			}
			status, err := parseHTTPStatus(line)
			if err != nil {
				return protocolResult{}, false, err
			}
			e.pendingStatus = status
			e.contentLength = 0
			e.hasLength = false
			e.leaderID = ""
			e.state = httpReadingHeaders
		case httpReadingHeaders:
			line, ok := s.Line()
			if !ok {
				return protocolResult{}, false, nil
			}
			if len(line) == 0 {
				e.state = httpWaitingForBody
				continue
			}
			if n, ok := parseContentLength(line); ok {
				e.contentLength = n
				e.hasLength = true
			}
			if e.etcd {
				if id, ok := parseRaftLeaderHeader(line); ok {
					e.leaderID = id
				}
			}
		case httpWaitingForBody:
			var body []byte
			if e.hasLength {
				b, ok := s.DrainN(e.contentLength)
				if !ok {
					return protocolResult{}, false, nil
				}
				body = b
			} else {
				idx := s.Index([]byte(e.bodyTerminator()))
				if idx < 0 {
					return protocolResult{}, false, nil
				}
				b, ok := s.DrainN(idx + len(e.bodyTerminator()))
				if !ok {
					return protocolResult{}, false, nil
				}
				body = b
			}
			e.state = httpWaitingForStatus
			return e.interpretResponse(e.pendingStatus, body, opType)
		}
	}
}

func (e *httpEngine) bodyTerminator() string {
	if e.opt.EtcdLegacyBodyTerminator {
		return "}\n"
	}
	return "0\r\n\r\n"
}

func (e *httpEngine) interpretResponse(status int, body []byte, opType OpType) (protocolResult, bool, error) {
	if !e.etcd {
		if status == 404 && opType == OpGet {
			return protocolResult{Hit: false}, true, nil
		}
		if status < 200 || status >= 300 {
			return protocolResult{}, false, fatalf("parse", e.sessionID, "http: unexpected status %d", status)
		}
		return protocolResult{Hit: opType == OpGet}, true, nil
	}

	switch status {
	case 404:
		return protocolResult{Hit: false}, true, nil
	case 200, 201:
		return protocolResult{Hit: true}, true, nil
	case 424:
		e.applyLeaderChange()
		return protocolResult{Hit: false, LeaderChanged: true, NewLeaderID: e.leaderID}, true, nil
	case 422, 423:
		e.applyLeaderChange()
		return protocolResult{Hit: true, LeaderChanged: true, NewLeaderID: e.leaderID}, true, nil
	default:
		return protocolResult{}, false, fatalf("parse", e.sessionID, "etcd: unexpected status %d", status)
	}
}

// applyLeaderChange promotes the session named by the response's
// X-Raft-Leader/X-Etcd-Leader header, but only if the Connection still
// believes this session is the current leader, guarding against a stale
// redirect arriving after a different session already switched
// (Protocol.cc: `if (serv.id == serv.conn->get_leader()) sscanf(buf, "%d",
// &new_leader); serv.conn->set_leader(new_leader);`).
func (e *httpEngine) applyLeaderChange() {
	if e.leader == nil {
		return
	}
	if e.leader.GetLeader() != e.sessionID {
		return
	}
	newLeader, err := strconv.Atoi(e.leaderID)
	if err != nil {
		return
	}
	e.leader.SetLeader(newLeader)
}

func parseHTTPStatus(line []byte) (int, error) {
	fields := splitFields(line)
	if len(fields) < 2 {
		return 0, fatalf("parse", 0, "http: malformed status line %q", line)
	}
	n, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0, fatalf("parse", 0, "http: bad status code in %q: %v", line, err)
	}
	return n, nil
}

func parseContentLength(line []byte) (int, bool) {
	const prefix = "Content-Length:"
	if len(line) <= len(prefix) || !bytes.EqualFold(line[:len(prefix)], []byte(prefix)) {
		return 0, false
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(line[len(prefix):])))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseRaftLeaderHeader matches both the modern X-Raft-Leader header and the
// legacy dialect's X-Etcd-Leader (spec.md §4.1); both carry the same decimal
// leader id.
func parseRaftLeaderHeader(line []byte) (string, bool) {
	for _, prefix := range [...]string{"X-Raft-Leader:", "X-Etcd-Leader:"} {
		if len(line) > len(prefix) && bytes.EqualFold(line[:len(prefix)], []byte(prefix)) {
			return string(bytes.TrimSpace(line[len(prefix):])), true
		}
	}
	return "", false
}
