package inverter

import (
	"encoding/binary"
	"fmt"
)

// Vendor framing constants. The two-byte prefix sits inside the
// length-counted region and is covered by the CRC — the deviation from
// textbook Modbus-TCP that makes this transport non-standard (spec §9).
const (
	vendorPrefixHi = 0xFF
	vendorPrefixLo = 0x04
	functionReadHoldingRegisters = 0x03
)

// protocolErrorFrame is the inverter's recognized error-indication
// sub-frame: a bare response carrying no decodable payload.
var protocolErrorFrame = []byte{0x00, 0x01, 0x00, 0x02, 0xFF, 0x04}

// DataFormat selects how raw register words are interpreted by ParseResponse.
type DataFormat int

const (
	Int DataFormat = iota
	UnsignedInt
)

// TxIDCounter is a wrapping 16-bit transaction id generator. Ids must never
// repeat within a single session, but responses are matched positionally,
// not by id, so wrapping 0xFFFF -> 0x0000 is safe.
type TxIDCounter struct {
	next uint16
}

// Next returns the next transaction id and advances the counter.
func (c *TxIDCounter) Next() uint16 {
	id := c.next
	c.next++
	return id
}

// BuildRequest produces a read-holding-registers request frame:
//
//	tx:2be | proto:2be | len:2be | 0xFF 0x04 | unit:1 | func:1 | start:2be | count:2be | crc:2le
//
// len covers the vendor prefix through the crc inclusive; crc is Modbus
// CRC-16 computed over the prefix through the payload.
func BuildRequest(txID, protoID uint16, unitID byte, start, count uint16) []byte {
	region := make([]byte, 0, 8)
	region = append(region, vendorPrefixHi, vendorPrefixLo, unitID, functionReadHoldingRegisters)
	region = binary.BigEndian.AppendUint16(region, start)
	region = binary.BigEndian.AppendUint16(region, count)

	crc := crc16Modbus(region)

	frame := make([]byte, 0, 6+len(region)+2)
	frame = binary.BigEndian.AppendUint16(frame, txID)
	frame = binary.BigEndian.AppendUint16(frame, protoID)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(region)+2))
	frame = append(frame, region...)
	frame = append(frame, byte(crc), byte(crc>>8))
	return frame
}

// ParseResponse decodes a full response frame into count register values.
// format selects signed (Int) or unsigned (UnsignedInt) interpretation.
func ParseResponse(raw []byte, count int, format DataFormat) ([]int, error) {
	if len(raw) == len(protocolErrorFrame) && equalBytes(raw, protocolErrorFrame) {
		return nil, ErrProtocolError
	}
	if len(raw) < 6 {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrFramingError, len(raw))
	}

	length := int(binary.BigEndian.Uint16(raw[4:6]))
	if len(raw) < 6+length {
		return nil, fmt.Errorf("%w: frame declares length %d but only %d bytes available", ErrFramingError, length, len(raw)-6)
	}
	region := raw[6 : 6+length]
	if len(region) < 2 {
		return nil, fmt.Errorf("%w: region too short for CRC", ErrFramingError)
	}

	payload := region[:len(region)-2]
	wantCRC := uint16(region[len(region)-2]) | uint16(region[len(region)-1])<<8
	gotCRC := crc16Modbus(payload)
	if wantCRC != gotCRC {
		return nil, fmt.Errorf("%w: CRC mismatch (want %04x, got %04x)", ErrFramingError, wantCRC, gotCRC)
	}

	if len(payload) < 5 {
		return nil, fmt.Errorf("%w: payload too short for unit/function/bytecount", ErrFramingError)
	}
	// payload: 0xFF 0x04 | unit:1 | func:1 | byte_count:1 | data[byte_count]
	byteCount := int(payload[4])
	data := payload[5:]
	if len(data) < byteCount {
		return nil, fmt.Errorf("%w: declares %d data bytes, has %d", ErrFramingError, byteCount, len(data))
	}
	if byteCount != count*2 {
		return nil, fmt.Errorf("%w: expected %d registers (%d bytes), got %d bytes", ErrDecodeError, count, count*2, byteCount)
	}

	values := make([]int, count)
	for i := 0; i < count; i++ {
		raw16 := binary.BigEndian.Uint16(data[i*2 : i*2+2])
		switch format {
		case Int:
			values[i] = int(int16(raw16))
		default:
			values[i] = int(raw16)
		}
	}
	return values, nil
}

func equalBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// crc16Modbus computes the CRC-16 variant used by Modbus RTU: polynomial
// 0xA001, initial value 0xFFFF, reflected.
func crc16Modbus(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
