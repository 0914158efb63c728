package kvbench

import "encoding/binary"

// binaryEngine speaks the memcache binary protocol: a fixed 24-byte header
// (magic, opcode, key length, extras length, data type, status/reserved,
// total body length, opaque, CAS) followed by extras, key, and value.
// Ported from ProtocolBinary in Protocol.cc/Protocol.h, including the
// optional SASL PLAIN handshake.
type binaryEngine struct {
	opt         *Options
	saslPending bool
	targetLen   int // full frame length (header + body) currently being awaited
}

func (e *binaryEngine) SetupConnectionW(s *ByteStream) (bool, error) {
	if !e.opt.SASL {
		return true, nil
	}
	auth := make([]byte, 0, 5+1+len(e.opt.Username)+1+len(e.opt.Password))
	auth = append(auth, "PLAIN"...)
	auth = append(auth, 0)
	auth = append(auth, e.opt.Username...)
	auth = append(auth, 0)
	auth = append(auth, e.opt.Password...)

	header := make([]byte, binaryHeaderLen)
	header[0] = binaryMagicRequest
	header[1] = binaryOpSASL
	binary.BigEndian.PutUint16(header[2:4], 5) // key_len = len("PLAIN")
	binary.BigEndian.PutUint32(header[8:12], uint32(len(auth)))

	if _, err := s.WriteFull(header); err != nil {
		return false, err
	}
	if _, err := s.WriteFull(auth); err != nil {
		return false, err
	}
	e.saslPending = true
	return false, nil
}

func (e *binaryEngine) SetupConnectionR(s *ByteStream) (bool, error) {
	if !e.opt.SASL {
		return true, nil
	}
	if !e.saslPending {
		return true, nil
	}
	header, ok := s.PeekN(binaryHeaderLen)
	if !ok {
		return false, nil
	}
	bodyLen := binary.BigEndian.Uint32(header[8:12])
	full := binaryHeaderLen + int(bodyLen)
	frame, ok := s.PeekN(full)
	if !ok {
		return false, nil
	}
	status := binary.BigEndian.Uint16(frame[6:8])
	s.DrainN(full)
	if status != binaryStatusOK {
		return false, fatalf("sasl", 0, "SASL PLAIN authentication failed, status=0x%04x", status)
	}
	e.saslPending = false
	return true, nil
}

func (e *binaryEngine) WriteGet(s *ByteStream, key string) (int, error) {
	header := make([]byte, binaryHeaderLen)
	header[0] = binaryMagicRequest
	header[1] = binaryOpGet
	binary.BigEndian.PutUint16(header[2:4], uint16(len(key)))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(key)))
	n1, err := s.WriteFull(header)
	if err != nil {
		return n1, err
	}
	n2, err := s.WriteFull([]byte(key))
	return n1 + n2, err
}

func (e *binaryEngine) WriteSet(s *ByteStream, key string, value []byte) (int, error) {
	bodyLen := binarySetExtras + len(key) + len(value)
	header := make([]byte, binaryHeaderLen)
	header[0] = binaryMagicRequest
	header[1] = binaryOpSet
	header[4] = binarySetExtras
	binary.BigEndian.PutUint16(header[2:4], uint16(len(key)))
	binary.BigEndian.PutUint32(header[8:12], uint32(bodyLen))
	n1, err := s.WriteFull(header)
	if err != nil {
		return n1, err
	}

	body := make([]byte, 0, bodyLen)
	body = append(body, make([]byte, binarySetExtras)...) // flags=0, expiry=0
	body = append(body, key...)
	body = append(body, value...)
	n2, err := s.WriteFull(body)
	return n1 + n2, err
}

func (e *binaryEngine) TryReadResponse(s *ByteStream, opType OpType) (protocolResult, bool, error) {
	header, ok := s.PeekN(binaryHeaderLen)
	if !ok {
		return protocolResult{}, false, nil
	}
	bodyLen := binary.BigEndian.Uint32(header[8:12])
	full := binaryHeaderLen + int(bodyLen)
	frame, ok := s.PeekN(full)
	if !ok {
		return protocolResult{}, false, nil
	}
	status := binary.BigEndian.Uint16(frame[6:8])
	s.DrainN(full)

	if opType == OpSet {
		if status != binaryStatusOK {
			return protocolResult{}, false, fatalf("parse", 0, "binary: SET failed, status=0x%04x", status)
		}
		return protocolResult{}, true, nil
	}

	if status != binaryStatusOK {
		return protocolResult{Hit: false}, true, nil
	}
	return protocolResult{Hit: true}, true, nil
}
