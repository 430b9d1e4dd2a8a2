package inverter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easun/isolar-poller/models"
)

func newEmptySnapshot() models.Snapshot { return models.Snapshot{} }

func TestMaterializeBatteryRequiresAllFiveFields(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}

	registers := map[uint16]int{277: 480, 278: 12, 279: 600, 280: 83} // missing 281
	var s = newEmptySnapshot()
	c.materializeBattery(&s, registers)
	assert.Nil(t, s.Battery)

	registers[281] = 27
	c.materializeBattery(&s, registers)
	require.NotNil(t, s.Battery)
	assert.InDelta(t, 48.0, s.Battery.Voltage, 0.0001)
	assert.InDelta(t, 1.2, s.Battery.Current, 0.0001)
	assert.Equal(t, 600, s.Battery.Power)
	assert.Equal(t, 83, s.Battery.SOC)
	assert.Equal(t, 27, s.Battery.Temperature)
}

func TestMaterializeBatterySignedCurrent(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	registers := map[uint16]int{277: 480, 278: -10, 279: 600, 280: 83, 281: 27}
	var s = newEmptySnapshot()
	c.materializeBattery(&s, registers)
	require.NotNil(t, s.Battery)
	assert.InDelta(t, -1.0, s.Battery.Current, 0.0001)
}

func TestMaterializePVGatesOnAnyOfThreeFields(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	c.materializePV(&s, map[uint16]int{})
	assert.Nil(t, s.PV)

	c.materializePV(&s, map[uint16]int{302: 1000})
	require.NotNil(t, s.PV)
	require.NotNil(t, s.PV.TotalPower)
	assert.Equal(t, 1000, *s.PV.TotalPower)
}

func TestMaterializeGridCurrentIndependentOfPresenceGate(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	// only grid_current present (register 339) — the other three gating
	// fields are absent, so Grid itself should not be materialized.
	c.materializeGrid(&s, map[uint16]int{339: 50})
	assert.Nil(t, s.Grid)

	c.materializeGrid(&s, map[uint16]int{338: 2300, 339: 50})
	require.NotNil(t, s.Grid)
	require.NotNil(t, s.Grid.Current)
	assert.InDelta(t, 5.0, *s.Grid.Current, 0.0001)
}

func TestMaterializeOutputGatesOnVoltageOrPower(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	c.materializeOutput(&s, map[uint16]int{})
	assert.Nil(t, s.Output)

	c.materializeOutput(&s, map[uint16]int{348: 2000})
	require.NotNil(t, s.Output)
	require.NotNil(t, s.Output.Power)
	assert.Equal(t, 2000, *s.Output.Power)
}

func TestOperatingModeFromRawUnknownValueIsFault(t *testing.T) {
	assert.Equal(t, "SUB", operatingModeFromRaw(2).String())
	assert.Equal(t, "SBU", operatingModeFromRaw(3).String())
	assert.Equal(t, "FAULT", operatingModeFromRaw(7).String())
}

func TestMaterializeSystemStatusUnknownModeKeepsInverterTime(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	registers := map[uint16]int{
		201: 7, // unknown mode
		696: 25, 697: 6, 698: 15, 699: 10, 700: 30, 701: 0,
	}
	c.materializeSystemStatus(&s, registers)
	require.NotNil(t, s.SystemStatus)
	assert.Equal(t, "FAULT", s.SystemStatus.OperatingMode.String())
	assert.Equal(t, "UNKNOWN(7)", s.SystemStatus.ModeName)
	require.NotNil(t, s.SystemStatus.InverterTime)
	assert.Equal(t, 2025, s.SystemStatus.InverterTime.Year())
}

func TestDecodeInverterTimeRejectsImplausibleDate(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	registers := map[uint16]int{
		696: 25, 697: 13, 698: 15, 699: 10, 700: 30, 701: 0, // month 13
	}
	assert.Nil(t, c.decodeInverterTime(registers))
}

// TestScenario1HappyPath11K mirrors the literal end-to-end scenario:
// registers 277..281 return [480, 12, 600, 83, 27] on the 11K model.
func TestScenario1HappyPath11K(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	registers := map[uint16]int{277: 480, 278: 12, 279: 600, 280: 83, 281: 27}
	c.materializeBattery(&s, registers)
	require.NotNil(t, s.Battery)
	assert.InDelta(t, 48.0, s.Battery.Voltage, 0.0001)
	assert.InDelta(t, 1.2, s.Battery.Current, 0.0001)
	assert.Equal(t, 600, s.Battery.Power)
	assert.Equal(t, 83, s.Battery.SOC)
	assert.Equal(t, 27, s.Battery.Temperature)
}

// TestScenario2SignedBatteryCurrent mirrors raw register 278 = 0xFFF6 (-10)
// decoding to current = -1.0 A.
func TestScenario2SignedBatteryCurrent(t *testing.T) {
	raw := int(int16(0xFFF6))
	require.Equal(t, -10, raw)
	assert.InDelta(t, -1.0, ISOLAR_SMG_II_11K.Decode("battery_current", raw).(float64), 0.0001)
}

// TestScenario4ProtocolErrorIsolatesOnlyAffectedGroup mirrors: one group
// (standing in for PV2) fails with a protocol error while others succeed,
// and PV is still materialized from the surviving registers with only the
// pv2 fields absent.
func TestScenario4ProtocolErrorIsolatesOnlyAffectedGroup(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	// pv2 registers (389-391) deliberately absent from `registers`, as if
	// that group's read failed; pv1/pv_total_power still present.
	registers := map[uint16]int{302: 1000, 351: 2400, 352: 50, 353: 1200}
	c.materializePV(&s, registers)
	require.NotNil(t, s.PV)
	assert.NotNil(t, s.PV.TotalPower)
	assert.NotNil(t, s.PV.PV1Voltage)
	assert.Nil(t, s.PV.PV2Voltage)
}

func TestMaterializeSerialNumberRequiresFullSpan(t *testing.T) {
	c := &Client{model: ISOLAR_SMG_II_11K}
	var s = newEmptySnapshot()
	registers := map[uint16]int{186: 0x3132} // only 1 of 13 registers
	c.materializeSerialNumber(&s, registers)
	assert.Empty(t, s.SerialNumber)

	for i := uint16(0); i < 13; i++ {
		registers[186+i] = 0x4100 + int(i)
	}
	c.materializeSerialNumber(&s, registers)
	assert.Len(t, s.SerialNumber, 26)
}
