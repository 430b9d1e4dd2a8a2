package inverter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/easun/isolar-poller/models"
)

// Client owns one inverter's address, model map and UDP-failure counter
// across polls, and runs the full C1–C4 pipeline end to end.
type Client struct {
	rendezvous *Rendezvous
	model      *ModelConfig
}

// NewClient builds a poll-ready client for one inverter address and model.
func NewClient(inverterIP, localIP string, model *ModelConfig) *Client {
	return &Client{
		rendezvous: &Rendezvous{InverterIP: inverterIP, LocalIP: localIP},
		model:      model,
	}
}

// Poll runs one full cycle: rendezvous, sequential bulk read of every
// group, and materialization of the typed Snapshot. A session-level error
// (discovery/accept failure) aborts the whole poll; a register-group
// failure is isolated and simply leaves the dependent fields absent. If
// every group fails, ErrEmptyPoll is returned alongside whatever (empty)
// snapshot was built. If ctx is cancelled before Poll returns — the
// coordinator's poll budget expired — the rendezvous connection is closed
// out from under any in-progress read, unblocking it immediately rather
// than leaving it to time out on its own.
func (c *Client) Poll(ctx context.Context) (models.Snapshot, error) {
	groups := c.model.Groups()
	if len(groups) == 0 {
		return models.Snapshot{}, fmt.Errorf("%w: model %q has no supported registers", ErrDecodeError, c.model.Name)
	}

	conn, err := c.rendezvous.Dial(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	defer conn.Close()

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	session := NewSession(conn)
	results := session.ReadGroups(groups, Int)

	registers := make(map[uint16]int)
	anySucceeded := false
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		anySucceeded = true
		for i, v := range r.Values {
			registers[r.Group.Start+uint16(i)] = v
		}
	}
	if !anySucceeded {
		return models.Snapshot{}, ErrEmptyPoll
	}

	snap := models.Snapshot{Time: time.Now()}
	c.materializeBattery(&snap, registers)
	c.materializePV(&snap, registers)
	c.materializeGrid(&snap, registers)
	c.materializeOutput(&snap, registers)
	c.materializeSystemStatus(&snap, registers)
	c.materializeSerialNumber(&snap, registers)

	if snap.Empty() {
		return snap, ErrEmptyPoll
	}
	log.Printf("✅ poll complete: %d of %d groups read", len(results)-countErrs(results), len(results))
	return snap, nil
}

func countErrs(results []GroupResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// rawField looks up a logical field's raw register value, if the register
// was both supported on this model and successfully read this poll.
func (c *Client) rawField(registers map[uint16]int, field string) (int, bool) {
	cfg := c.model.Registers[field]
	if cfg.Unsupported() {
		return 0, false
	}
	v, ok := registers[cfg.Address]
	return v, ok
}

func (c *Client) scaledField(registers map[uint16]int, field string) (float64, bool) {
	raw, ok := c.rawField(registers, field)
	if !ok {
		return 0, false
	}
	return c.model.Decode(field, raw).(float64), true
}

func (c *Client) intField(registers map[uint16]int, field string) (int, bool) {
	v, ok := c.scaledField(registers, field)
	if !ok {
		return 0, false
	}
	return int(v), true
}

func (c *Client) materializeBattery(snap *models.Snapshot, registers map[uint16]int) {
	voltage, vok := c.scaledField(registers, "battery_voltage")
	current, cok := c.scaledField(registers, "battery_current")
	power, pok := c.intField(registers, "battery_power")
	soc, sok := c.intField(registers, "battery_soc")
	temp, tok := c.intField(registers, "battery_temperature")
	if !(vok && cok && pok && sok && tok) {
		return
	}
	snap.Battery = &models.Battery{
		Voltage:     voltage,
		Current:     current,
		Power:       power,
		SOC:         soc,
		Temperature: temp,
	}
}

func (c *Client) materializePV(snap *models.Snapshot, registers map[uint16]int) {
	totalPower, totalOK := c.intField(registers, "pv_total_power")
	pv1Voltage, pv1OK := c.scaledField(registers, "pv1_voltage")
	pv2Voltage, pv2OK := c.scaledField(registers, "pv2_voltage")
	if !totalOK && !pv1OK && !pv2OK {
		return
	}

	pv := &models.PV{}
	if totalOK {
		pv.TotalPower = intPtr(totalPower)
	}
	if v, ok := c.intField(registers, "pv_charging_power"); ok {
		pv.ChargingPower = intPtr(v)
	}
	if v, ok := c.scaledField(registers, "pv_charging_current"); ok {
		pv.ChargingCurrent = floatPtr(v)
	}
	if v, ok := c.intField(registers, "pv_temperature"); ok {
		pv.Temperature = intPtr(v)
	}
	if pv1OK {
		pv.PV1Voltage = floatPtr(pv1Voltage)
	}
	if v, ok := c.scaledField(registers, "pv1_current"); ok {
		pv.PV1Current = floatPtr(v)
	}
	if v, ok := c.intField(registers, "pv1_power"); ok {
		pv.PV1Power = intPtr(v)
	}
	if pv2OK {
		pv.PV2Voltage = floatPtr(pv2Voltage)
	}
	if v, ok := c.scaledField(registers, "pv2_current"); ok {
		pv.PV2Current = floatPtr(v)
	}
	if v, ok := c.intField(registers, "pv2_power"); ok {
		pv.PV2Power = intPtr(v)
	}
	if v, ok := c.scaledField(registers, "pv_energy_today"); ok {
		pv.EnergyToday = floatPtr(v)
	}
	if v, ok := c.scaledField(registers, "pv_energy_total"); ok {
		pv.EnergyTotal = floatPtr(v)
	}
	snap.PV = pv
}

func (c *Client) materializeGrid(snap *models.Snapshot, registers map[uint16]int) {
	voltage, vok := c.scaledField(registers, "grid_voltage")
	power, pok := c.intField(registers, "grid_power")
	freq, fok := c.intField(registers, "grid_frequency")
	if !vok && !pok && !fok {
		return
	}
	grid := &models.Grid{}
	if vok {
		grid.Voltage = floatPtr(voltage)
	}
	if pok {
		grid.Power = intPtr(power)
	}
	if fok {
		grid.Frequency = intPtr(freq)
	}
	if v, ok := c.scaledField(registers, "grid_current"); ok {
		grid.Current = floatPtr(v)
	}
	snap.Grid = grid
}

func (c *Client) materializeOutput(snap *models.Snapshot, registers map[uint16]int) {
	voltage, vok := c.scaledField(registers, "output_voltage")
	power, pok := c.intField(registers, "output_power")
	if !vok && !pok {
		return
	}
	out := &models.Output{}
	if vok {
		out.Voltage = floatPtr(voltage)
	}
	if v, ok := c.scaledField(registers, "output_current"); ok {
		out.Current = floatPtr(v)
	}
	if pok {
		out.Power = intPtr(power)
	}
	if v, ok := c.intField(registers, "output_apparent_power"); ok {
		out.ApparentPower = intPtr(v)
	}
	if v, ok := c.intField(registers, "output_load_percentage"); ok {
		out.LoadPercentage = intPtr(v)
	}
	if v, ok := c.intField(registers, "output_frequency"); ok {
		out.Frequency = intPtr(v)
	}
	snap.Output = out
}

// operatingModeFromRaw maps the raw operation_mode register to the closed
// SUB/SBU/FAULT set. Any value outside {2,3} decodes to FAULT rather than
// being rejected — the firmware is known to report values the documented
// enum doesn't cover.
func operatingModeFromRaw(raw int) models.OperatingMode {
	switch raw {
	case 2:
		return models.ModeSUB
	case 3:
		return models.ModeSBU
	default:
		return models.ModeFault
	}
}

func (c *Client) materializeSystemStatus(snap *models.Snapshot, registers map[uint16]int) {
	raw, ok := c.rawField(registers, "operation_mode")
	if !ok {
		return
	}
	mode := operatingModeFromRaw(raw)
	status := &models.SystemStatus{OperatingMode: mode, ModeName: mode.String()}
	if raw != 2 && raw != 3 {
		status.ModeName = fmt.Sprintf("UNKNOWN(%d)", raw)
	}
	status.InverterTime = c.decodeInverterTime(registers)
	snap.SystemStatus = status
}

// decodeInverterTime builds a calendar timestamp from the six time
// registers only when all six are present and form a valid date; an
// implausible combination (e.g. month 0 or day 32) yields no timestamp
// rather than a garbage one.
func (c *Client) decodeInverterTime(registers map[uint16]int) *time.Time {
	fields := []string{"time_register_0", "time_register_1", "time_register_2", "time_register_3", "time_register_4", "time_register_5"}
	parts := make([]int, 6)
	for i, f := range fields {
		v, ok := c.rawField(registers, f)
		if !ok {
			return nil
		}
		parts[i] = v
	}
	year, month, day, hour, minute, second := 2000+parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		// time.Date normalized an out-of-range day (e.g. February 30).
		return nil
	}
	return &t
}

// materializeSerialNumber decodes the 13-register ASCII-packed serial
// number (two characters per register, trimmed of trailing NULs), only
// when every register in the span was read successfully.
func (c *Client) materializeSerialNumber(snap *models.Snapshot, registers map[uint16]int) {
	cfg := c.model.Registers["serial_number"]
	if cfg.Unsupported() {
		return
	}
	span := cfg.span()
	var sb strings.Builder
	for a := cfg.Address; a < cfg.Address+span; a++ {
		v, ok := registers[a]
		if !ok {
			return
		}
		sb.WriteByte(byte(v >> 8))
		sb.WriteByte(byte(v))
	}
	snap.SerialNumber = strings.TrimRight(sb.String(), "\x00")
}

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }
