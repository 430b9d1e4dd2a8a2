package inverter

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice reads one request at a time off conn and replies with the
// next canned frame in responses, standing in for the inverter side of
// a Session's sequential request/response exchange.
func fakeDevice(t *testing.T, conn net.Conn, responses [][]byte) {
	t.Helper()
	go func() {
		defer conn.Close()
		for _, resp := range responses {
			header := make([]byte, 6)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			length := int(header[4])<<8 | int(header[5])
			body := make([]byte, length)
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()
}

func TestSessionReadGroupsIsolatesPerGroupFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ok := buildResponseFrame(t, []int16{480, 12, 600, 83, 27})
	fakeDevice(t, server, [][]byte{protocolErrorFrame, ok})

	session := NewSession(client)
	groups := []RegisterGroup{
		{Start: 201, Count: 1},
		{Start: 277, Count: 5},
	}
	results := session.ReadGroups(groups, Int)

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrProtocolError)
	require.NoError(t, results[1].Err)
	assert.Equal(t, []int{480, 12, 600, 83, 27}, results[1].Values)
}

// TestSessionReadGroupsAbortsOnTransportFailure verifies that a genuine
// transport-level failure (the device closes the connection mid-request,
// so the request write fails) stops the session rather than attempting the next
// group against a desynced stream — unlike a recognized protocol-error
// frame, which is isolated and doesn't stop the loop.
func TestSessionReadGroupsAbortsOnTransportFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		header := make([]byte, 6)
		if _, err := io.ReadFull(server, header); err != nil {
			return
		}
		// Read only the first 6 bytes of the first group's request, then hang
		// up — the client's write of the rest of that request fails.
		server.Close()
	}()

	session := NewSession(client)
	groups := []RegisterGroup{
		{Start: 201, Count: 1},
		{Start: 277, Count: 5},
		{Start: 338, Count: 2},
	}
	results := session.ReadGroups(groups, Int)

	require.Len(t, results, 3)
	assert.Error(t, results[0].Err)
	assert.NotErrorIs(t, results[0].Err, ErrGroupSkipped)
	assert.ErrorIs(t, results[1].Err, ErrGroupSkipped)
	assert.ErrorIs(t, results[2].Err, ErrGroupSkipped)
	assert.Equal(t, groups[1], results[1].Group)
	assert.Equal(t, groups[2], results[2].Group)
}

func TestSessionPacesRequestsByInterRequestPacing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ok1 := buildResponseFrame(t, []int16{1})
	ok2 := buildResponseFrame(t, []int16{2})
	fakeDevice(t, server, [][]byte{ok1, ok2})

	session := NewSession(client)
	groups := []RegisterGroup{{Start: 1, Count: 1}, {Start: 2, Count: 1}}

	start := time.Now()
	results := session.ReadGroups(groups, Int)
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.GreaterOrEqual(t, elapsed, interRequestPacing)
}
