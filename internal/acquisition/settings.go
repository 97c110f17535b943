package acquisition

import "fmt"

// Setting changes pending registry state. Settings are applied in order by
// Configure and Acquire before any device call.
type Setting func(*Registry) error

// SetField sets a field by name, for values read from configuration
func SetField(name string, value any) Setting {
	return func(r *Registry) error {
		return r.SetField(name, value)
	}
}

// SetClock sets the capture clock source, rate and edge
func SetClock(source ClockSource, rate SampleRate, edge ClockEdge) Setting {
	return func(r *Registry) error {
		if err := r.ClockSource.Set(source); err != nil {
			return err
		}
		if err := r.SampleRate.Set(rate); err != nil {
			return err
		}
		return r.ClockEdge.Set(edge)
	}
}

// SetClockSource sets the capture clock source
func SetClockSource(v ClockSource) Setting {
	return func(r *Registry) error { return r.ClockSource.Set(v) }
}

// SetSampleRate sets the internal clock rate
func SetSampleRate(v SampleRate) Setting {
	return func(r *Registry) error { return r.SampleRate.Set(v) }
}

// SetDecimation sets the clock decimation factor
func SetDecimation(v uint32) Setting {
	return func(r *Registry) error { return r.Decimation.Set(v) }
}

// SetInput sets coupling, range, impedance and bandwidth limit of one input
func SetInput(in Input, coupling Coupling, inputRange InputRange, impedance Impedance, bwLimit bool) Setting {
	return func(r *Registry) error {
		if !in.valid() {
			return &ConfigurationError{Field: "input", Value: int(in), Reason: "must be 0 (A) or 1 (B)"}
		}
		if err := r.Coupling[in].Set(coupling); err != nil {
			return err
		}
		if err := r.Range[in].Set(inputRange); err != nil {
			return err
		}
		if err := r.Impedance[in].Set(impedance); err != nil {
			return err
		}
		return r.BWLimit[in].Set(bwLimit)
	}
}

// SetInputRange sets the full scale of one input
func SetInputRange(in Input, v InputRange) Setting {
	return func(r *Registry) error {
		if !in.valid() {
			return &ConfigurationError{Field: "input", Value: int(in), Reason: "must be 0 (A) or 1 (B)"}
		}
		return r.Range[in].Set(v)
	}
}

// SetTriggerOperation sets how trigger engines J and K combine
func SetTriggerOperation(v TriggerOperation) Setting {
	return func(r *Registry) error { return r.TriggerOperation.Set(v) }
}

// SetTrigger sets trigger slot 1 or 2
func SetTrigger(slot int, engine TriggerEngine, source TriggerSource, slope TriggerSlope, level uint32) Setting {
	return func(r *Registry) error {
		if slot != 1 && slot != 2 {
			return &ConfigurationError{
				Field:  fmt.Sprintf("trigger_engine%d", slot),
				Value:  slot,
				Reason: "trigger slot must be 1 or 2",
			}
		}
		i := slot - 1
		if err := r.TriggerEngine[i].Set(engine); err != nil {
			return err
		}
		if err := r.TriggerSource[i].Set(source); err != nil {
			return err
		}
		if err := r.TriggerSlope[i].Set(slope); err != nil {
			return err
		}
		return r.TriggerLevel[i].Set(level)
	}
}

// SetExternalTrigger sets the external trigger input
func SetExternalTrigger(coupling Coupling, rng ExternalTriggerRange) Setting {
	return func(r *Registry) error {
		if err := r.ExternalTriggerCoupling.Set(coupling); err != nil {
			return err
		}
		return r.ExternalTriggerRange.Set(rng)
	}
}

// SetTriggerDelay sets the delay between trigger and capture in samples
func SetTriggerDelay(v uint32) Setting {
	return func(r *Registry) error { return r.TriggerDelay.Set(v) }
}

// SetTriggerTimeout sets the auto-trigger timeout in 10 µs ticks; 0 waits
// forever
func SetTriggerTimeout(ticks uint32) Setting {
	return func(r *Registry) error { return r.TimeoutTicks.Set(ticks) }
}

// SetMode sets the acquisition mode
func SetMode(v Mode) Setting {
	return func(r *Registry) error { return r.Mode.Set(v) }
}

// SetGeometry sets samples per record, records per buffer and buffers per
// acquisition
func SetGeometry(samplesPerRecord, recordsPerBuffer, buffersPerAcquisition uint32) Setting {
	return func(r *Registry) error {
		if err := r.SamplesPerRecord.Set(samplesPerRecord); err != nil {
			return err
		}
		if err := r.RecordsPerBuffer.Set(recordsPerBuffer); err != nil {
			return err
		}
		return r.BuffersPerAcquisition.Set(buffersPerAcquisition)
	}
}

// SetChannelSelection sets the channels transferred to the host
func SetChannelSelection(v ChannelSelection) Setting {
	return func(r *Registry) error { return r.ChannelSelection.Set(v) }
}

// SetTransferOffset sets the first sample transferred relative to the
// trigger
func SetTransferOffset(v int32) Setting {
	return func(r *Registry) error { return r.TransferOffset.Set(v) }
}

// SetFlag turns one transfer flag on or off
func SetFlag(f Flag, on bool) Setting {
	return func(r *Registry) error {
		field := r.Flag(f)
		if field == nil {
			return &ConfigurationError{Field: string(f), Value: on, Reason: "unknown flag"}
		}
		return field.Set(on)
	}
}

// DefaultSettings returns the board power-on configuration
func DefaultSettings() []Setting {
	settings := []Setting{
		SetClock(ClockInternal, SampleRate100M, EdgeRising),
		SetDecimation(0),
	}
	for _, in := range Inputs {
		settings = append(settings, SetInput(in, CouplingAC, 4, Impedance50, false))
	}
	settings = append(settings,
		SetTriggerOperation(TriggerJ),
		SetTrigger(1, EngineJ, SourceExternal, SlopePositive, TriggerLevelZero),
		SetTrigger(2, EngineK, SourceDisable, SlopePositive, TriggerLevelZero),
		SetExternalTrigger(CouplingAC, ExtTrigger5V),
		SetTriggerDelay(0),
		SetTriggerTimeout(0),
		SetMode(ModeNPT),
		SetGeometry(1024, 1, 1),
		SetChannelSelection(ChannelBoth),
		SetTransferOffset(0),
	)
	for _, f := range Flags {
		settings = append(settings, SetFlag(f, f == FlagExternalStartCapture))
	}
	return settings
}
