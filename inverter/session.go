package inverter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"time"
)

const (
	interRequestPacing = 100 * time.Millisecond
	readTimeout        = 5 * time.Second
	unitID             = 0x01
	protocolID         = 0x0001
)

// GroupResult is the outcome of reading one RegisterGroup within a session.
type GroupResult struct {
	Group  RegisterGroup
	Values []int
	Err    error
}

// Session runs the sequential, non-pipelined request/response exchange over
// one already-accepted TCP connection: one request at a time, a pacing
// delay between requests, a read timeout per response. A decode-level
// failure is isolated to its group; a transport failure ends the session
// (see ReadGroups).
type Session struct {
	conn    net.Conn
	reader  *bufio.Reader
	counter TxIDCounter
}

// NewSession wraps an accepted connection for one bulk read pass.
func NewSession(conn net.Conn) *Session {
	return &Session{conn: conn, reader: bufio.NewReader(conn)}
}

// ReadGroups sequentially reads each group in order, signed (Int) or
// unsigned per format, pacing interRequestPacing between requests. A
// decode-level failure (ProtocolError, or a FramingError against a frame
// that was read in full) is isolated to its own group and the loop
// continues. A transport-level failure — a write error, or a header/body
// read that came back short — leaves the stream desynced, so the loop
// stops there; every group after it is recorded as ErrGroupSkipped rather
// than attempted against a misaligned stream.
func (s *Session) ReadGroups(groups []RegisterGroup, format DataFormat) []GroupResult {
	results := make([]GroupResult, len(groups))
	for i, g := range groups {
		if i > 0 {
			time.Sleep(interRequestPacing)
		}
		values, err, fatal := s.readOne(g, format)
		results[i] = GroupResult{Group: g, Values: values, Err: err}
		if err != nil {
			log.Printf("⚠️ group %d..%d failed: %v", g.Start, g.Start+g.Count-1, err)
		}
		if fatal {
			log.Printf("❌ transport failure reading group %d..%d, aborting remaining groups", g.Start, g.Start+g.Count-1)
			for j := i + 1; j < len(groups); j++ {
				results[j] = GroupResult{Group: groups[j], Err: ErrGroupSkipped}
			}
			break
		}
	}
	return results
}

// readOne reads one register group. fatal reports whether the failure
// desynced the stream and the session should not attempt further groups.
func (s *Session) readOne(g RegisterGroup, format DataFormat) (values []int, err error, fatal bool) {
	txID := s.counter.Next()
	req := BuildRequest(txID, protocolID, unitID, g.Start, g.Count)

	if err := s.conn.SetWriteDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set write deadline: %v", ErrFramingError, err), true
	}
	if _, err := s.conn.Write(req); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", ErrFramingError, err), true
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %v", ErrFramingError, err), true
	}

	header := make([]byte, 6)
	if _, err := io.ReadFull(s.reader, header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrFramingError, err), true
	}
	if equalBytes(header, protocolErrorFrame) {
		return nil, ErrProtocolError, false
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	body := make([]byte, length)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, fmt.Errorf("%w: read body (%d bytes): %v", ErrFramingError, length, err), true
	}

	full := append(header, body...)
	values, err = ParseResponse(full, int(g.Count), format)
	return values, err, false
}
