package clock

import (
	"fmt"

	"github.com/sarchlab/crg/timing"
)

// Output is one clock produced for a domain. It is driven by a PLL output
// divider, taken directly from a reference source or divided down from the
// clock of another domain.
type Output struct {
	Domain string

	// Requested frequency, phase (degrees) and relative tolerance.
	Freq   timing.FreqInHz
	Phase  float64
	Margin float64

	// Reference is the oscillator at the root of this clock tree.
	Reference string

	// PLL is the name of the owning PLL; empty for a direct reference clock.
	PLL string

	// Parent is the domain a derived clock is divided from, by Divide.
	Parent string
	Divide int

	// Realized values, filled in by the planner.
	Divider       int
	RealizedHz    float64
	RealizedPhase float64
}

// Direct builds an output that forwards a reference clock unchanged.
func Direct(domain string, src Source) *Output {
	return &Output{
		Domain:     domain,
		Freq:       src.NominalFreq,
		Reference:  src.Name,
		Divider:    1,
		RealizedHz: float64(src.NominalFreq),
	}
}

// IsDirect reports whether the output bypasses any PLL.
func (o *Output) IsDirect() bool {
	return o.PLL == ""
}

// Error returns the relative frequency error of the realized clock.
func (o *Output) Error() float64 {
	if o.Freq == 0 {
		return 0
	}

	diff := o.RealizedHz - float64(o.Freq)
	if diff < 0 {
		diff = -diff
	}

	return diff / float64(o.Freq)
}

func (o *Output) String() string {
	owner := o.PLL
	if owner == "" {
		owner = o.Reference
	}

	if o.Parent != "" {
		owner = fmt.Sprintf("%s/%d", o.Parent, o.Divide)
	}

	return fmt.Sprintf("%s <- %s (%s @ %g°)", o.Domain, owner, o.Freq, o.Phase)
}
