package acquisition

import (
	"fmt"
)

// Input identifies one of the two analog inputs
type Input int

const (
	InputA Input = iota
	InputB
)

// Inputs lists the analog inputs in configuration order
var Inputs = []Input{InputA, InputB}

// ID returns the channel id the driver uses for the input
func (i Input) ID() uint8 {
	return uint8(i) + 1 //nolint:gosec // Input is 0 or 1
}

func (i Input) valid() bool {
	return i == InputA || i == InputB
}

// Registry holds every configurable board parameter with its pending state.
// Fields are typed; name-based access serves configuration files and tools.
type Registry struct {
	ClockSource *Field[ClockSource]
	SampleRate  *Field[SampleRate]
	ClockEdge   *Field[ClockEdge]
	Decimation  *Field[uint32]

	Coupling  [2]*Field[Coupling]
	Range     [2]*Field[InputRange]
	Impedance [2]*Field[Impedance]
	BWLimit   [2]*Field[bool]

	TriggerOperation *Field[TriggerOperation]
	TriggerEngine    [2]*Field[TriggerEngine]
	TriggerSource    [2]*Field[TriggerSource]
	TriggerSlope     [2]*Field[TriggerSlope]
	TriggerLevel     [2]*Field[uint32]

	ExternalTriggerCoupling *Field[Coupling]
	ExternalTriggerRange    *Field[ExternalTriggerRange]
	TriggerDelay            *Field[uint32]
	TimeoutTicks            *Field[uint32]

	Mode                  *Field[Mode]
	SamplesPerRecord      *Field[uint32]
	RecordsPerBuffer      *Field[uint32]
	BuffersPerAcquisition *Field[uint32]
	ChannelSelection      *Field[ChannelSelection]
	TransferOffset        *Field[int32]

	flags map[Flag]*Field[bool]

	order  []field
	byName map[string]field
}

// FieldState is a point-in-time view of one field
type FieldState struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
	Code  uint32 `yaml:"code"`
	Set   bool   `yaml:"set"`
	Stale bool   `yaml:"stale"`
}

// NewRegistry creates a registry with every field unset
func NewRegistry() *Registry {
	r := &Registry{
		ClockSource: newField("clock_source", Domain[ClockSource](clockSourceDomain)),
		SampleRate:  newField("sample_rate", Domain[SampleRate](sampleRateDomain)),
		ClockEdge:   newField("clock_edge", Domain[ClockEdge](clockEdgeDomain)),
		Decimation:  newField("decimation", Domain[uint32](decimationDomain)),

		TriggerOperation: newField("trigger_operation", Domain[TriggerOperation](triggerOperationDomain)),

		ExternalTriggerCoupling: newField("external_trigger_coupling", Domain[Coupling](couplingDomain)),
		ExternalTriggerRange:    newField("trigger_range", Domain[ExternalTriggerRange](externalTriggerRangeDomain)),
		TriggerDelay:            newField("trigger_delay", Domain[uint32](uint32Domain)),
		TimeoutTicks:            newField("timeout_ticks", Domain[uint32](uint32Domain)),

		Mode:                  newField("mode", Domain[Mode](modeDomain)),
		SamplesPerRecord:      newField("samples_per_record", Domain[uint32](countDomain)),
		RecordsPerBuffer:      newField("records_per_buffer", Domain[uint32](countDomain)),
		BuffersPerAcquisition: newField("buffers_per_acquisition", Domain[uint32](countDomain)),
		ChannelSelection:      newField("channel_selection", Domain[ChannelSelection](channelSelectionDomain)),
		TransferOffset:        newField("transfer_offset", Domain[int32](offsetDomain)),

		flags:  make(map[Flag]*Field[bool], len(Flags)),
		byName: make(map[string]field),
	}

	for _, in := range Inputs {
		n := in.ID()
		r.Coupling[in] = newField(fmt.Sprintf("coupling%d", n), Domain[Coupling](couplingDomain))
		r.Range[in] = newField(fmt.Sprintf("range%d", n), Domain[InputRange](inputRangeDomain))
		r.Impedance[in] = newField(fmt.Sprintf("impedance%d", n), Domain[Impedance](impedanceDomain))
		r.BWLimit[in] = newField(fmt.Sprintf("bwlimit%d", n), Domain[bool](bwLimitDomain))
	}
	for i := range 2 {
		n := i + 1
		r.TriggerEngine[i] = newField(fmt.Sprintf("trigger_engine%d", n), Domain[TriggerEngine](triggerEngineDomain))
		r.TriggerSource[i] = newField(fmt.Sprintf("trigger_source%d", n), Domain[TriggerSource](triggerSourceDomain))
		r.TriggerSlope[i] = newField(fmt.Sprintf("trigger_slope%d", n), Domain[TriggerSlope](triggerSlopeDomain))
		r.TriggerLevel[i] = newField(fmt.Sprintf("trigger_level%d", n), Domain[uint32](triggerLevelDomain))
	}
	for _, f := range Flags {
		r.flags[f] = newField(string(f), flagDomain(f))
	}

	r.register(r.ClockSource, r.SampleRate, r.ClockEdge, r.Decimation)
	for _, in := range Inputs {
		r.register(r.Coupling[in], r.Range[in], r.Impedance[in], r.BWLimit[in])
	}
	r.register(r.TriggerOperation)
	for i := range 2 {
		r.register(r.TriggerEngine[i], r.TriggerSource[i], r.TriggerSlope[i], r.TriggerLevel[i])
	}
	r.register(r.ExternalTriggerCoupling, r.ExternalTriggerRange, r.TriggerDelay, r.TimeoutTicks)
	r.register(r.Mode, r.SamplesPerRecord, r.RecordsPerBuffer, r.BuffersPerAcquisition,
		r.ChannelSelection, r.TransferOffset)
	for _, f := range Flags {
		r.register(r.flags[f])
	}
	return r
}

func (r *Registry) register(fields ...field) {
	for _, f := range fields {
		r.order = append(r.order, f)
		r.byName[f.Name()] = f
	}
}

func (r *Registry) lookup(name string) (field, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, &ConfigurationError{Field: name, Value: name, Reason: "unknown field"}
	}
	return f, nil
}

// Flag returns the field of a transfer flag
func (r *Registry) Flag(f Flag) *Field[bool] {
	return r.flags[f]
}

// SetField validates value against the named field and stores it as
// pending. No device call is made.
func (r *Registry) SetField(name string, value any) error {
	f, err := r.lookup(name)
	if err != nil {
		return err
	}
	return f.setAny(value)
}

// DeviceCode returns the code of the named field, or *UnsetFieldError
func (r *Registry) DeviceCode(name string) (uint32, error) {
	f, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return f.Code()
}

// Commit clears the staleness of the named fields. The engine calls it only
// after the device call consuming them succeeded.
func (r *Registry) Commit(names ...string) error {
	fields := make([]field, 0, len(names))
	for _, name := range names {
		f, err := r.lookup(name)
		if err != nil {
			return err
		}
		fields = append(fields, f)
	}
	for _, f := range fields {
		f.commit()
	}
	return nil
}

// Stale reports whether the named field holds a code not yet applied
func (r *Registry) Stale(name string) (bool, error) {
	f, err := r.lookup(name)
	if err != nil {
		return false, err
	}
	return f.Stale(), nil
}

// Value returns the current value of the named field
func (r *Registry) Value(name string) (any, bool) {
	f, err := r.lookup(name)
	if err != nil {
		return nil, false
	}
	return f.valueAny()
}

// Names returns all field names in device call order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, f := range r.order {
		names[i] = f.Name()
	}
	return names
}

// Describe returns the accepted values of the named field
func (r *Registry) Describe(name string) (string, error) {
	f, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return f.describe(), nil
}

// Fields returns the state of every field in device call order
func (r *Registry) Fields() []FieldState {
	out := make([]FieldState, 0, len(r.order))
	for _, f := range r.order {
		state := FieldState{Name: f.Name(), Stale: f.Stale(), Set: f.IsSet()}
		if v, ok := f.valueAny(); ok {
			state.Value = v
		}
		if code, err := f.Code(); err == nil {
			state.Code = code
		}
		out = append(out, state)
	}
	return out
}

// Snapshot returns the field states keyed by name
func (r *Registry) Snapshot() map[string]FieldState {
	fields := r.Fields()
	out := make(map[string]FieldState, len(fields))
	for _, f := range fields {
		out[f.Name] = f
	}
	return out
}

// StaleFields returns the names of fields with pending codes
func (r *Registry) StaleFields() []string {
	var names []string
	for _, f := range r.Fields() {
		if f.Stale {
			names = append(names, f.Name)
		}
	}
	return names
}

// ApplyDefaults sets the board power-on defaults. All fields end up stale.
func (r *Registry) ApplyDefaults() error {
	return r.Apply(DefaultSettings()...)
}

// Apply runs settings in order and stops at the first failure
func (r *Registry) Apply(settings ...Setting) error {
	for _, s := range settings {
		if s == nil {
			continue
		}
		if err := s(r); err != nil {
			return err
		}
	}
	return nil
}
