package inverter

import "errors"

// Error taxonomy. ProtocolError and a FramingError raised against a
// completely-read frame (bad CRC or byte count) are recovered per register
// group — the stream stayed in sync, so the next group's request/response
// is still well-formed. A FramingError raised by the transport itself
// (write failure, or a header/body read that came back short) desyncs the
// stream, so it aborts the rest of the session; DiscoveryFailed and
// AcceptTimeout abort the poll before any group is attempted.
var (
	ErrDiscoveryFailed = errors.New("inverter: UDP discovery failed after all retries")
	ErrAcceptTimeout   = errors.New("inverter: UDP acked but no TCP connection arrived")
	ErrFramingError    = errors.New("inverter: bad CRC, short read or malformed length")
	ErrProtocolError   = errors.New("inverter: device returned a protocol error indication")
	ErrDecodeError     = errors.New("inverter: register count mismatch or value out of domain")
	ErrEmptyPoll       = errors.New("inverter: all register groups failed")
	ErrStuckPoll       = errors.New("inverter: poll exceeded the stuck threshold")
	ErrGroupSkipped    = errors.New("inverter: group not attempted after a transport failure aborted the session")
)
