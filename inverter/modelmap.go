package inverter

import "sort"

// RegisterConfig describes how to read and interpret one logical telemetry
// field: which holding register holds it, the scale to apply to the raw
// signed/unsigned word, and an optional decoder for values that aren't a
// plain scaled number (e.g. packed ASCII, a calendar field). Address 0
// marks a field as unsupported on that model.
type RegisterConfig struct {
	Address uint16
	Scale   float64
	Decoder func(raw int) any
	// Count is how many consecutive registers this field spans. Zero means
	// one — only multi-register fields like serial_number set this.
	Count uint16
}

// Unsupported reports whether this field has no register on the model.
func (r RegisterConfig) Unsupported() bool {
	return r.Address == 0
}

// span returns the number of registers this field occupies, defaulting to 1.
func (r RegisterConfig) span() uint16 {
	if r.Count == 0 {
		return 1
	}
	return r.Count
}

// ModelConfig is a named register map for one inverter firmware variant.
type ModelConfig struct {
	Name      string
	Registers map[string]RegisterConfig
}

// RegisterGroup is a contiguous run of registers to read in a single
// holding-register request.
type RegisterGroup struct {
	Start uint16
	Count uint16
}

// maxGroupGap is the largest address gap two logical fields may have and
// still be merged into the same read request.
const maxGroupGap = 10

// Groups computes the minimal set of contiguous register reads covering
// every supported (non-zero-address) field in the model, merging runs
// whose gap is at most maxGroupGap apart.
func (m ModelConfig) Groups() []RegisterGroup {
	addrSet := make(map[uint16]struct{})
	for _, cfg := range m.Registers {
		if cfg.Unsupported() {
			continue
		}
		for a := cfg.Address; a < cfg.Address+cfg.span(); a++ {
			addrSet[a] = struct{}{}
		}
	}
	if len(addrSet) == 0 {
		return nil
	}

	addrs := make([]uint16, 0, len(addrSet))
	for a := range addrSet {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var groups []RegisterGroup
	start := addrs[0]
	end := addrs[0]
	for _, a := range addrs[1:] {
		if int(a)-int(end) <= maxGroupGap {
			end = a
			continue
		}
		groups = append(groups, RegisterGroup{Start: start, Count: end - start + 1})
		start, end = a, a
	}
	groups = append(groups, RegisterGroup{Start: start, Count: end - start + 1})
	return groups
}

// Decode applies a field's configured decoder, or its scale factor when no
// decoder is set, to one raw register value.
func (m ModelConfig) Decode(field string, raw int) any {
	cfg := m.Registers[field]
	if cfg.Decoder != nil {
		return cfg.Decoder(raw)
	}
	if cfg.Scale == 0 {
		return float64(raw)
	}
	return float64(raw) * cfg.Scale
}

// Models is the set of known inverter firmware variants, keyed by the
// model name used in configuration.
var Models = map[string]*ModelConfig{
	ISOLAR_SMG_II_11K.Name: ISOLAR_SMG_II_11K,
	ISOLAR_SMG_II_6K.Name:  ISOLAR_SMG_II_6K,
}

// ISOLAR_SMG_II_11K is the register map for the 11kW SMG-II firmware.
var ISOLAR_SMG_II_11K = &ModelConfig{
	Name: "ISOLAR_SMG_II_11K",
	Registers: map[string]RegisterConfig{
		"operation_mode":     {Address: 201, Scale: 1},
		"battery_voltage":    {Address: 277, Scale: 0.1},
		"battery_current":    {Address: 278, Scale: 0.1},
		"battery_power":      {Address: 279, Scale: 1},
		"battery_soc":        {Address: 280, Scale: 1},
		"battery_temperature": {Address: 281, Scale: 1},

		"pv_total_power":       {Address: 302, Scale: 1},
		"pv_charging_power":    {Address: 303, Scale: 1},
		"pv_charging_current":  {Address: 304, Scale: 0.1},
		"pv_temperature":       {Address: 305, Scale: 1},
		"pv1_voltage":          {Address: 351, Scale: 0.1},
		"pv1_current":          {Address: 352, Scale: 0.1},
		"pv1_power":            {Address: 353, Scale: 1},
		"pv2_voltage":          {Address: 389, Scale: 0.1},
		"pv2_current":          {Address: 390, Scale: 0.1},
		"pv2_power":            {Address: 391, Scale: 1},
		"pv_energy_today":      {Address: 702, Scale: 0.01},
		"pv_energy_total":      {Address: 703, Scale: 0.01},

		"grid_voltage":   {Address: 338, Scale: 0.1},
		"grid_current":   {Address: 339, Scale: 0.1},
		"grid_power":     {Address: 340, Scale: 1},
		"grid_frequency": {Address: 607, Scale: 1},

		"output_voltage":         {Address: 346, Scale: 0.1},
		"output_current":         {Address: 347, Scale: 0.1},
		"output_power":           {Address: 348, Scale: 1},
		"output_apparent_power":  {Address: 349, Scale: 1},
		"output_load_percentage": {Address: 350, Scale: 1},
		"output_frequency":       {Address: 607, Scale: 1},

		"time_register_0": {Address: 696, Scale: 1},
		"time_register_1": {Address: 697, Scale: 1},
		"time_register_2": {Address: 698, Scale: 1},
		"time_register_3": {Address: 699, Scale: 1},
		"time_register_4": {Address: 700, Scale: 1},
		"time_register_5": {Address: 701, Scale: 1},

		"serial_number": {Address: 186, Scale: 1, Count: 13},
	},
}

// ISOLAR_SMG_II_6K is the register map for the 6kW SMG-II firmware. PV2,
// grid current and energy counters are unsupported on this model (address
// 0); pv_total_power and pv1_power intentionally share register 223.
var ISOLAR_SMG_II_6K = &ModelConfig{
	Name: "ISOLAR_SMG_II_6K",
	Registers: map[string]RegisterConfig{
		"operation_mode":      {Address: 201, Scale: 1},
		"battery_voltage":     {Address: 215, Scale: 0.1},
		"battery_current":     {Address: 216, Scale: 0.1},
		"battery_power":       {Address: 217, Scale: 1},
		"battery_soc":         {Address: 229, Scale: 1},
		"battery_temperature": {Address: 226, Scale: 1},

		"pv_total_power":      {Address: 223, Scale: 1},
		"pv_charging_power":   {Address: 224, Scale: 1},
		"pv_charging_current": {Address: 234, Scale: 0.1},
		"pv_temperature":      {Address: 227, Scale: 1},
		"pv1_voltage":         {Address: 219, Scale: 0.1},
		"pv1_current":         {Address: 220, Scale: 0.1},
		"pv1_power":           {Address: 223, Scale: 1},
		"pv2_voltage":         {Address: 0},
		"pv2_current":         {Address: 0},
		"pv2_power":           {Address: 0},
		"pv_energy_today":     {Address: 0},
		"pv_energy_total":     {Address: 0},

		"grid_voltage":   {Address: 202, Scale: 0.1},
		"grid_current":   {Address: 0},
		"grid_power":     {Address: 204, Scale: 1},
		"grid_frequency": {Address: 203, Scale: 1},

		"output_voltage":         {Address: 210, Scale: 0.1},
		"output_current":         {Address: 211, Scale: 0.1},
		"output_power":           {Address: 213, Scale: 1},
		"output_apparent_power":  {Address: 214, Scale: 1},
		"output_load_percentage": {Address: 225, Scale: 0.01},
		"output_frequency":       {Address: 212, Scale: 1},

		"time_register_0": {Address: 696, Scale: 1},
		"time_register_1": {Address: 697, Scale: 1},
		"time_register_2": {Address: 698, Scale: 1},
		"time_register_3": {Address: 699, Scale: 1},
		"time_register_4": {Address: 700, Scale: 1},
		"time_register_5": {Address: 701, Scale: 1},

		"serial_number": {Address: 0},
	},
}
