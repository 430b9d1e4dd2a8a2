// Package models holds the typed, immutable telemetry produced by one poll
// of the inverter.
package models

import "time"

// OperatingMode is the closed set of operating modes the SMG-II firmware
// reports on the operation_mode register. Any raw value outside this set
// decodes to FAULT, never rejected.
type OperatingMode int

const (
	ModeFault OperatingMode = iota
	ModeSUB
	ModeSBU
)

func (m OperatingMode) String() string {
	switch m {
	case ModeSUB:
		return "SUB"
	case ModeSBU:
		return "SBU"
	default:
		return "FAULT"
	}
}

// Battery is the decoded battery bank telemetry. Materialized only when all
// five fields are present.
type Battery struct {
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Power       int     `json:"power"`
	SOC         int     `json:"soc"`
	Temperature int     `json:"temperature"`
}

// PV is the decoded PV string telemetry. Any field may be absent; the
// record is materialized if any of pv_total_power, pv1_voltage or
// pv2_voltage is present.
type PV struct {
	TotalPower      *int     `json:"total_power,omitempty"`
	ChargingPower   *int     `json:"charging_power,omitempty"`
	ChargingCurrent *float64 `json:"charging_current,omitempty"`
	Temperature     *int     `json:"temperature,omitempty"`

	PV1Voltage *float64 `json:"pv1_voltage,omitempty"`
	PV1Current *float64 `json:"pv1_current,omitempty"`
	PV1Power   *int     `json:"pv1_power,omitempty"`

	PV2Voltage *float64 `json:"pv2_voltage,omitempty"`
	PV2Current *float64 `json:"pv2_current,omitempty"`
	PV2Power   *int     `json:"pv2_power,omitempty"`

	EnergyToday *float64 `json:"energy_today_kwh,omitempty"`
	EnergyTotal *float64 `json:"energy_total_kwh,omitempty"`
}

// Grid is the decoded grid-side telemetry. Materialized if any of voltage,
// power or frequency is present; current is independent of that gate.
type Grid struct {
	Voltage   *float64 `json:"voltage,omitempty"`
	Power     *int     `json:"power,omitempty"`
	Frequency *int     `json:"frequency_centihz,omitempty"`
	Current   *float64 `json:"current,omitempty"`
}

// Output is the decoded inverter-output telemetry. Materialized if either
// voltage or power is present.
type Output struct {
	Voltage        *float64 `json:"voltage,omitempty"`
	Current        *float64 `json:"current,omitempty"`
	Power          *int     `json:"power,omitempty"`
	ApparentPower  *int     `json:"apparent_power,omitempty"`
	LoadPercentage *int     `json:"load_percentage,omitempty"`
	Frequency      *int     `json:"frequency_centihz,omitempty"`
}

// SystemStatus is the decoded operating mode, present iff operation_mode
// was read. InverterTime is attached only when all six time registers
// formed a valid calendar timestamp.
type SystemStatus struct {
	OperatingMode OperatingMode `json:"operating_mode"`
	ModeName      string        `json:"mode_name"`
	InverterTime  *time.Time    `json:"inverter_time,omitempty"`
}

// Snapshot is the immutable, typed result of one poll. Any of the five
// records may be nil; a partially-populated snapshot is valid.
type Snapshot struct {
	Time time.Time `json:"time"`

	Battery      *Battery      `json:"battery,omitempty"`
	PV           *PV           `json:"pv,omitempty"`
	Grid         *Grid         `json:"grid,omitempty"`
	Output       *Output       `json:"output,omitempty"`
	SystemStatus *SystemStatus `json:"system_status,omitempty"`

	// SerialNumber is read once per poll from the model's serial_number
	// registers, when the model supports them.
	SerialNumber string `json:"serial_number,omitempty"`
}

// Empty reports whether all five optional records are nil — the "all five
// null" condition the poll coordinator treats as EmptyPoll.
func (s *Snapshot) Empty() bool {
	return s.Battery == nil && s.PV == nil && s.Grid == nil && s.Output == nil && s.SystemStatus == nil
}
