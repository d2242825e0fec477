package timing

import (
	"fmt"
	"math"
	"sort"
)

// FrequencyRegistry coordinates multiple clock domains by deriving a single
// cycle resolution that preserves deterministic ordering.
//
// All clocks must be registered before the engine starts running: adding a
// frequency may change the global resolution and therefore every stride.
type FrequencyRegistry struct {
	global  FreqInHz
	domains map[FreqInHz]*FreqDomain
}

// NewFrequencyRegistry builds an empty registry ready to accept clocks.
func NewFrequencyRegistry() *FrequencyRegistry {
	return &FrequencyRegistry{
		domains: make(map[FreqInHz]*FreqDomain),
	}
}

// RegisterFrequency adds a clock and returns its descriptor. Registering the
// same frequency twice returns the same descriptor.
func (r *FrequencyRegistry) RegisterFrequency(
	freq FreqInHz,
) (*FreqDomain, error) {
	if freq == 0 {
		return nil, ErrZeroFrequency
	}

	if domain, exists := r.domains[freq]; exists {
		return domain, nil
	}

	if r.global == 0 {
		r.global = freq
	} else {
		newGlobal, err := lcmFreq(r.global, freq)
		if err != nil {
			return nil, fmt.Errorf("registering %s: %w", freq, err)
		}

		r.global = newGlobal
	}

	domain := &FreqDomain{
		freq:     freq,
		registry: r,
	}
	r.domains[freq] = domain

	return domain, nil
}

// GlobalFrequency returns the resolution of one global cycle.
func (r *FrequencyRegistry) GlobalFrequency() FreqInHz {
	return r.global
}

// Frequencies lists the registered frequencies in ascending order.
func (r *FrequencyRegistry) Frequencies() []FreqInHz {
	freqs := make([]FreqInHz, 0, len(r.domains))
	for f := range r.domains {
		freqs = append(freqs, f)
	}

	sort.Slice(freqs, func(i, j int) bool { return freqs[i] < freqs[j] })

	return freqs
}

// CycleStride returns how many global cycles make up one cycle of freq.
func (r *FrequencyRegistry) CycleStride(freq FreqInHz) (VTimeInCycle, bool) {
	if _, ok := r.domains[freq]; !ok {
		return 0, false
	}

	if r.global == 0 || r.global%freq != 0 {
		return 0, false
	}

	return VTimeInCycle(r.global / freq), true
}

// CyclesToSeconds converts a global cycle count into simulated seconds.
func (r *FrequencyRegistry) CyclesToSeconds(cycles VTimeInCycle) VTimeInSec {
	if r.global == 0 {
		return 0
	}

	return VTimeInSec(float64(cycles) / float64(r.global))
}

// SecondsToCycles converts simulated seconds into global cycles. The
// duration must land on a global cycle boundary.
func (r *FrequencyRegistry) SecondsToCycles(
	sec VTimeInSec,
) (VTimeInCycle, error) {
	if r.global == 0 {
		return 0, ErrNoFrequencyDomains
	}

	if sec < 0 {
		return 0, fmt.Errorf(
			"timing: negative durations are not supported: %.12g",
			float64(sec),
		)
	}

	scaled := float64(sec) * float64(r.global)
	rounded := math.Round(scaled)
	tickDuration := 1.0 / float64(r.global)

	if math.Abs(scaled-rounded) > cycleAlignmentTolerance(scaled) {
		return 0, fmt.Errorf(
			"%w: duration %.12g s exceeds cycle %.12g s",
			ErrTickPrecisionLoss,
			float64(sec),
			tickDuration,
		)
	}

	if rounded > float64(math.MaxUint64) {
		return 0, ErrTickOverflow
	}

	return VTimeInCycle(rounded), nil
}
