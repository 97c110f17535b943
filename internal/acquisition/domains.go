package acquisition

import (
	"fmt"
	"math"
	"strings"
)

// Domain maps the values a field accepts to device codes and back
type Domain[T comparable] interface {
	// Code returns the device code of v, or an error naming why v is rejected
	Code(v T) (uint32, error)
	// Value returns the value a device code stands for
	Value(code uint32) (T, bool)
	// Samples returns representative accepted values, every one for enums
	Samples() []T
	// Describe returns a short human-readable form of the accepted values
	Describe() string
}

type enumEntry[T comparable] struct {
	value T
	code  uint32
}

// enumDomain is a finite value set with a fixed code per value
type enumDomain[T comparable] struct {
	entries []enumEntry[T]
	byValue map[T]uint32
	byCode  map[uint32]T
}

func newEnum[T comparable](entries ...enumEntry[T]) *enumDomain[T] {
	d := &enumDomain[T]{
		entries: entries,
		byValue: make(map[T]uint32, len(entries)),
		byCode:  make(map[uint32]T, len(entries)),
	}
	for _, e := range entries {
		d.byValue[e.value] = e.code
		d.byCode[e.code] = e.value
	}
	return d
}

func (d *enumDomain[T]) Code(v T) (uint32, error) {
	code, ok := d.byValue[v]
	if !ok {
		return 0, fmt.Errorf("must be one of %s", d.Describe())
	}
	return code, nil
}

func (d *enumDomain[T]) Value(code uint32) (T, bool) {
	v, ok := d.byCode[code]
	return v, ok
}

func (d *enumDomain[T]) Samples() []T {
	out := make([]T, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.value
	}
	return out
}

func (d *enumDomain[T]) Describe() string {
	parts := make([]string, len(d.entries))
	for i, e := range d.entries {
		parts[i] = fmt.Sprint(e.value)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// rangeDomain accepts an inclusive integer range. The code is the value
// itself, bit-cast to 32 bits for signed types.
type rangeDomain[T ~int32 | ~uint32] struct {
	lo, hi T
}

func newRange[T ~int32 | ~uint32](lo, hi T) *rangeDomain[T] {
	return &rangeDomain[T]{lo: lo, hi: hi}
}

func (d *rangeDomain[T]) Code(v T) (uint32, error) {
	if v < d.lo || v > d.hi {
		return 0, fmt.Errorf("must be within %s", d.Describe())
	}
	return uint32(v), nil //nolint:gosec // signed values are passed to the driver bit-cast
}

func (d *rangeDomain[T]) Value(code uint32) (T, bool) {
	v := T(code) //nolint:gosec // inverse of the bit-cast in Code
	if v < d.lo || v > d.hi {
		return v, false
	}
	return v, true
}

func (d *rangeDomain[T]) Samples() []T {
	mid := T((int64(d.lo) + int64(d.hi)) / 2)
	if mid == d.lo || mid == d.hi {
		return []T{d.lo, d.hi}
	}
	return []T{d.lo, mid, d.hi}
}

func (d *rangeDomain[T]) Describe() string {
	return fmt.Sprintf("[%v, %v]", d.lo, d.hi)
}

// ClockSource selects the sample clock
type ClockSource string

const (
	ClockInternal     ClockSource = "internal"
	ClockFastExternal ClockSource = "fast_external"
	ClockExternal10M  ClockSource = "external_10mhz_ref"
)

// SampleRate is the internal clock rate in samples per second. Zero selects
// the rate of an external clock.
type SampleRate uint64

// Common sample rates
const (
	SampleRateExternal SampleRate = 0
	SampleRate1K       SampleRate = 1_000
	SampleRate1M       SampleRate = 1_000_000
	SampleRate100M     SampleRate = 100_000_000
	SampleRate1G       SampleRate = 1_000_000_000
)

// ClockEdge selects the sampling edge of the clock
type ClockEdge string

const (
	EdgeRising  ClockEdge = "rising"
	EdgeFalling ClockEdge = "falling"
)

// Coupling selects AC or DC input coupling
type Coupling string

const (
	CouplingAC Coupling = "ac"
	CouplingDC Coupling = "dc"
)

// InputRange is the full scale of an input channel in volts, as ±range
type InputRange float64

// Impedance is the input impedance in ohms
type Impedance uint32

const (
	Impedance1M Impedance = 1_000_000
	Impedance50 Impedance = 50
)

// TriggerOperation combines trigger engines J and K
type TriggerOperation string

const (
	TriggerJ        TriggerOperation = "J"
	TriggerK        TriggerOperation = "K"
	TriggerJOrK     TriggerOperation = "J_OR_K"
	TriggerJAndK    TriggerOperation = "J_AND_K"
	TriggerJXorK    TriggerOperation = "J_XOR_K"
	TriggerJAndNotK TriggerOperation = "J_AND_NOT_K"
	TriggerNotJAndK TriggerOperation = "NOT_J_AND_K"
)

// TriggerEngine names one of the two trigger engines
type TriggerEngine string

const (
	EngineJ TriggerEngine = "J"
	EngineK TriggerEngine = "K"
)

// TriggerSource selects the signal a trigger engine watches
type TriggerSource string

const (
	SourceChannelA TriggerSource = "channel_a"
	SourceChannelB TriggerSource = "channel_b"
	SourceExternal TriggerSource = "external"
	SourceDisable  TriggerSource = "disable"
)

// TriggerSlope selects the crossing direction of a trigger
type TriggerSlope string

const (
	SlopePositive TriggerSlope = "positive"
	SlopeNegative TriggerSlope = "negative"
)

// ExternalTriggerRange is the full scale of the external trigger input
type ExternalTriggerRange string

const (
	ExtTrigger5V ExternalTriggerRange = "5V"
	ExtTrigger1V ExternalTriggerRange = "1V"
)

// Mode is the acquisition topology
type Mode string

const (
	ModeTraditional Mode = "traditional"
	ModeCR          Mode = "cr"
	ModeNPT         Mode = "npt"
	ModeTS          Mode = "ts"
)

// Supported reports whether the engine can capture in this mode
func (m Mode) Supported() bool {
	return m == ModeNPT || m == ModeTS
}

// ChannelSelection selects the channels transferred to host memory
type ChannelSelection string

const (
	ChannelA    ChannelSelection = "A"
	ChannelB    ChannelSelection = "B"
	ChannelBoth ChannelSelection = "AB"
)

// Count returns the number of channels selected
func (c ChannelSelection) Count() int {
	if c == ChannelBoth {
		return 2
	}
	return 1
}

// Flag names one of the asynchronous transfer option bits
type Flag string

const (
	FlagExternalStartCapture Flag = "external_startcapture"
	FlagEnableRecordHeaders  Flag = "enable_record_headers"
	FlagAllocBuffers         Flag = "alloc_buffers"
	FlagFIFOOnlyStreaming    Flag = "fifo_only_streaming"
	FlagInterleaveSamples    Flag = "interleave_samples"
	FlagGetProcessedData     Flag = "get_processed_data"
)

// Flags lists the transfer flags in their bit order
var Flags = []Flag{
	FlagExternalStartCapture,
	FlagEnableRecordHeaders,
	FlagAllocBuffers,
	FlagFIFOOnlyStreaming,
	FlagInterleaveSamples,
	FlagGetProcessedData,
}

var flagBits = map[Flag]uint32{
	FlagExternalStartCapture: 0x1,
	FlagEnableRecordHeaders:  0x8,
	FlagAllocBuffers:         0x20,
	FlagFIFOOnlyStreaming:    0x800,
	FlagInterleaveSamples:    0x1000,
	FlagGetProcessedData:     0x2000,
}

// Board limits
const (
	MaxDecimation    uint32 = 100_000
	MaxTriggerLevel  uint32 = 255
	TriggerLevelZero uint32 = 128
)

func entry[T comparable](v T, code uint32) enumEntry[T] {
	return enumEntry[T]{value: v, code: code}
}

var (
	clockSourceDomain = newEnum(
		entry(ClockInternal, 1),
		entry(ClockFastExternal, 2),
		entry(ClockExternal10M, 7),
	)

	sampleRateDomain = newEnum(
		entry(SampleRate(1_000), 0x1),
		entry(SampleRate(2_000), 0x2),
		entry(SampleRate(5_000), 0x4),
		entry(SampleRate(10_000), 0x8),
		entry(SampleRate(20_000), 0xA),
		entry(SampleRate(50_000), 0xC),
		entry(SampleRate(100_000), 0xE),
		entry(SampleRate(200_000), 0x10),
		entry(SampleRate(500_000), 0x12),
		entry(SampleRate(1_000_000), 0x14),
		entry(SampleRate(2_000_000), 0x18),
		entry(SampleRate(5_000_000), 0x1A),
		entry(SampleRate(10_000_000), 0x1C),
		entry(SampleRate(20_000_000), 0x1E),
		entry(SampleRate(50_000_000), 0x22),
		entry(SampleRate(100_000_000), 0x24),
		entry(SampleRate(250_000_000), 0x2B),
		entry(SampleRate(500_000_000), 0x30),
		entry(SampleRate(1_000_000_000), 0x35),
		entry(SampleRateExternal, 0x40),
	)

	clockEdgeDomain = newEnum(
		entry(EdgeRising, 0),
		entry(EdgeFalling, 1),
	)

	couplingDomain = newEnum(
		entry(CouplingAC, 1),
		entry(CouplingDC, 2),
	)

	inputRangeDomain = newEnum(
		entry(InputRange(0.04), 0x2),
		entry(InputRange(0.05), 0x3),
		entry(InputRange(0.08), 0x4),
		entry(InputRange(0.1), 0x5),
		entry(InputRange(0.2), 0x6),
		entry(InputRange(0.4), 0x7),
		entry(InputRange(0.5), 0x8),
		entry(InputRange(0.8), 0x9),
		entry(InputRange(1), 0xA),
		entry(InputRange(2), 0xB),
		entry(InputRange(4), 0xC),
	)

	impedanceDomain = newEnum(
		entry(Impedance1M, 1),
		entry(Impedance50, 2),
	)

	bwLimitDomain = newEnum(
		entry(false, 0),
		entry(true, 1),
	)

	triggerOperationDomain = newEnum(
		entry(TriggerJ, 0),
		entry(TriggerK, 1),
		entry(TriggerJOrK, 2),
		entry(TriggerJAndK, 3),
		entry(TriggerJXorK, 4),
		entry(TriggerJAndNotK, 5),
		entry(TriggerNotJAndK, 6),
	)

	triggerEngineDomain = newEnum(
		entry(EngineJ, 0),
		entry(EngineK, 1),
	)

	triggerSourceDomain = newEnum(
		entry(SourceChannelA, 0),
		entry(SourceChannelB, 1),
		entry(SourceExternal, 2),
		entry(SourceDisable, 3),
	)

	triggerSlopeDomain = newEnum(
		entry(SlopePositive, 1),
		entry(SlopeNegative, 2),
	)

	triggerLevelDomain = newRange(uint32(0), MaxTriggerLevel)

	externalTriggerRangeDomain = newEnum(
		entry(ExtTrigger5V, 0),
		entry(ExtTrigger1V, 1),
	)

	decimationDomain = newRange(uint32(0), MaxDecimation)
	uint32Domain     = newRange(uint32(0), math.MaxUint32)
	countDomain      = newRange(uint32(1), math.MaxUint32)
	offsetDomain     = newRange(int32(math.MinInt32), math.MaxInt32)

	modeDomain = newEnum(
		entry(ModeTraditional, 0x0),
		entry(ModeCR, 0x100),
		entry(ModeNPT, 0x200),
		entry(ModeTS, 0x400),
	)

	channelSelectionDomain = newEnum(
		entry(ChannelA, 1),
		entry(ChannelB, 2),
		entry(ChannelBoth, 3),
	)
)

func flagDomain(f Flag) Domain[bool] {
	return newEnum(entry(false, 0), entry(true, flagBits[f]))
}

// ToVolts converts an unsigned 8-bit sample code to volts for a channel
// with the given input range. Code 128 is zero volts.
func ToVolts(code uint8, r InputRange) float64 {
	return (float64(code) - 128) / 128 * float64(r)
}
