package inverter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestEncodesTxIDPrefixStartAndCount(t *testing.T) {
	for count := 1; count <= 125; count += 17 {
		txID := uint16(count)
		req := BuildRequest(txID, 0, unitID, 100, uint16(count))

		// request layout: tx:2 proto:2 len:2 | FF 04 unit func start:2 count:2 | crc:2
		require.Equal(t, txID, uint16(req[0])<<8|uint16(req[1]))
		require.Equal(t, byte(0xFF), req[6])
		require.Equal(t, byte(0x04), req[7])

		start := uint16(req[10])<<8 | uint16(req[11])
		gotCount := uint16(req[12])<<8 | uint16(req[13])
		assert.EqualValues(t, 100, start)
		assert.EqualValues(t, count, gotCount)
	}
}

func buildResponseFrame(t *testing.T, values []int16) []byte {
	t.Helper()
	payload := []byte{0xFF, 0x04, unitID, functionReadHoldingRegisters, byte(len(values) * 2)}
	for _, v := range values {
		payload = append(payload, byte(uint16(v)>>8), byte(uint16(v)))
	}
	crc := crc16Modbus(payload)
	region := append(payload, byte(crc), byte(crc>>8))

	frame := []byte{0x00, 0x01, 0x00, 0x00}
	frame = append(frame, byte(len(region)>>8), byte(len(region)))
	frame = append(frame, region...)
	return frame
}

func TestParseResponseDecodesSignedValues(t *testing.T) {
	frame := buildResponseFrame(t, []int16{480, 12, 600, 83, -10})
	values, err := ParseResponse(frame, 5, Int)
	require.NoError(t, err)
	assert.Equal(t, []int{480, 12, 600, 83, -10}, values)
}

func TestParseResponseDetectsCRCMismatch(t *testing.T) {
	frame := buildResponseFrame(t, []int16{1, 2, 3})
	frame[len(frame)-1] ^= 0xFF
	_, err := ParseResponse(frame, 3, Int)
	require.ErrorIs(t, err, ErrFramingError)
}

func TestParseResponseRecognizesProtocolErrorFrame(t *testing.T) {
	_, err := ParseResponse(protocolErrorFrame, 5, Int)
	require.ErrorIs(t, err, ErrProtocolError)
}

func TestParseResponseDetectsCountMismatch(t *testing.T) {
	frame := buildResponseFrame(t, []int16{1, 2, 3})
	_, err := ParseResponse(frame, 5, Int)
	require.ErrorIs(t, err, ErrDecodeError)
}

func TestTxIDCounterWraps(t *testing.T) {
	c := TxIDCounter{next: 0xFFFF}
	assert.EqualValues(t, 0xFFFF, c.Next())
	assert.EqualValues(t, 0x0000, c.Next())
}

func TestCRC16ModbusKnownVector(t *testing.T) {
	// 01 03 00 00 00 0A -> wire bytes C5 CD (a commonly cited Modbus test
	// vector), sent low byte first, so the CRC value is 0xCDC5
	crc := crc16Modbus([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	assert.Equal(t, uint16(0xCDC5), crc)
}
