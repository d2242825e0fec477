// Package timing provides the integer-cycle discrete-event engine that lets
// several clock domains advance in lockstep.
//
// Every clock registered with a FrequencyRegistry contributes to a global
// cycle resolution equal to the least common multiple of all registered
// frequencies. Each domain then ticks on an integral stride of that global
// cycle, so edges of unrelated clocks are ordered exactly, without floating
// point drift.
package timing

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// FreqInHz defines frequency in the unit of Hertz (cycles per second).
type FreqInHz uint64

// Frequency units.
const (
	Hz  = FreqInHz(1)
	KHz = FreqInHz(1000 * Hz)
	MHz = FreqInHz(1000 * KHz)
	GHz = FreqInHz(1000 * MHz)
)

// String prints the frequency with the largest unit that keeps it integral
// up to three decimals.
func (f FreqInHz) String() string {
	switch {
	case f >= GHz:
		return trimUnit(float64(f)/float64(GHz), "GHz")
	case f >= MHz:
		return trimUnit(float64(f)/float64(MHz), "MHz")
	case f >= KHz:
		return trimUnit(float64(f)/float64(KHz), "kHz")
	default:
		return fmt.Sprintf("%dHz", uint64(f))
	}
}

func trimUnit(v float64, unit string) string {
	s := fmt.Sprintf("%.3f", v)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}

	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}

	return s + unit
}

// VTimeInCycle is the canonical time quantum used by the engine. All
// timestamps are expressed in global cycles.
type VTimeInCycle uint64

// VTimeInSec is a duration in simulated seconds. It is only used at the
// edges of the system (CLI flags, reports).
type VTimeInSec float64

var (
	// ErrZeroFrequency indicates that a domain attempted to register a clock
	// with a zero frequency.
	ErrZeroFrequency = errors.New("timing: frequency must be greater than zero")

	// ErrFrequencyOverflow indicates that the least common multiple of the
	// registered frequencies does not fit in 64 bits.
	ErrFrequencyOverflow = errors.New("timing: global frequency overflow")

	// ErrNoFrequencyDomains indicates that no domains have been registered yet
	// so conversions between cycles and seconds cannot be performed.
	ErrNoFrequencyDomains = errors.New("timing: no frequency domains registered")

	// ErrTickPrecisionLoss indicates that a conversion from seconds to cycles
	// would require precision beyond the global cycle resolution.
	ErrTickPrecisionLoss = errors.New("timing: duration is not aligned with cycle resolution")

	// ErrTickOverflow indicates that the computed number of cycles exceeds the
	// representable range of VTimeInCycle.
	ErrTickOverflow = errors.New("timing: cycle value overflow")
)

// FreqDomain represents a registered clock. It aligns global cycle counts
// with the clock's own edges.
type FreqDomain struct {
	freq     FreqInHz
	registry *FrequencyRegistry
}

// FrequencyHz returns the frequency associated with the domain.
func (d *FreqDomain) FrequencyHz() FreqInHz {
	if d == nil {
		return 0
	}

	return d.freq
}

// Stride returns the number of global cycles contained in a single cycle of
// this domain.
func (d *FreqDomain) Stride() VTimeInCycle {
	return d.stride()
}

// Cycle returns how many edges of this domain have happened at or before the
// given global time, not counting the edge at time 0.
func (d *FreqDomain) Cycle(now VTimeInCycle) uint64 {
	stride := d.stride()
	if stride == 0 {
		return 0
	}

	return uint64(now / stride)
}

// ThisTick aligns the provided global cycle to the earliest domain edge that
// is not earlier than the input.
func (d *FreqDomain) ThisTick(now VTimeInCycle) VTimeInCycle {
	stride := d.stride()
	if stride == 0 {
		return 0
	}

	tick, ok := roundUpToStride(now, stride)
	if !ok {
		return maxCycleValue
	}

	return tick
}

// NextTick advances to the next domain edge strictly after the provided
// cycle count.
func (d *FreqDomain) NextTick(now VTimeInCycle) VTimeInCycle {
	stride := d.stride()
	if stride == 0 {
		return 0
	}

	tick, ok := roundUpToStride(now, stride)
	if !ok {
		return maxCycleValue
	}

	if tick == now {
		next, ok := addCycles(now, stride)
		if !ok {
			return maxCycleValue
		}

		return next
	}

	return tick
}

// NTicksLater advances the provided cycle count by the specified number of
// domain edges.
func (d *FreqDomain) NTicksLater(now, ticks VTimeInCycle) VTimeInCycle {
	stride := d.stride()
	if stride == 0 {
		return 0
	}

	if ticks == 0 {
		return d.ThisTick(now)
	}

	offset, ok := mulCycles(ticks, stride)
	if !ok {
		return maxCycleValue
	}

	future, ok := addCycles(now, offset)
	if !ok {
		return maxCycleValue
	}

	tick, ok := roundUpToStride(future, stride)
	if !ok {
		return maxCycleValue
	}

	return tick
}

const maxCycleValue = VTimeInCycle(math.MaxUint64)

func (d *FreqDomain) stride() VTimeInCycle {
	if d == nil || d.registry == nil {
		return 0
	}

	stride, ok := d.registry.CycleStride(d.freq)
	if !ok {
		return 0
	}

	return stride
}

func roundUpToStride(value, stride VTimeInCycle) (VTimeInCycle, bool) {
	remainder := value % stride
	if remainder == 0 {
		return value, true
	}

	return addCycles(value, stride-remainder)
}

func addCycles(a, b VTimeInCycle) (VTimeInCycle, bool) {
	if uint64(a) > math.MaxUint64-uint64(b) {
		return maxCycleValue, false
	}

	return a + b, true
}

func mulCycles(a, b VTimeInCycle) (VTimeInCycle, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 {
		return maxCycleValue, false
	}

	return VTimeInCycle(lo), true
}

func cycleAlignmentTolerance(value float64) float64 {
	// Scales with magnitude to absorb float64 rounding noise.
	const ulpFactor = 1e-9

	v := math.Abs(value)
	if v < 1 {
		return ulpFactor
	}

	return v * ulpFactor
}

func lcmFreq(a, b FreqInHz) (FreqInHz, error) {
	g := gcdFreq(a, b)
	if g == 0 {
		return 0, ErrZeroFrequency
	}

	quotient := uint64(a / g)
	if quotient > math.MaxUint64/uint64(b) {
		return 0, ErrFrequencyOverflow
	}

	return FreqInHz(quotient * uint64(b)), nil
}

func gcdFreq(a, b FreqInHz) FreqInHz {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}
