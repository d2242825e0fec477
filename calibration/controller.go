// Package calibration models the IDELAYCTRL-style delay calibration block
// that must report ready before DRAM PHY training starts.
package calibration

import (
	"errors"
	"fmt"

	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// ErrReferenceOutOfRange is returned when the calibration clock is outside
// the range the delay lines are characterized for.
var ErrReferenceOutOfRange = errors.New("calibration: reference clock out of range")

// Spec configures a calibration controller.
type Spec struct {
	// ResetPulseCycles is the length of the internal reset pulse issued
	// once the calibration domain leaves reset.
	ResetPulseCycles uint64

	// CalibrationCycles is the number of reference cycles between the end of
	// the reset pulse and ready.
	CalibrationCycles uint64

	// MinFreq and MaxFreq bound the reference clock.
	MinFreq, MaxFreq timing.FreqInHz
}

// DefaultSpec returns a 16-cycle reset pulse and a 200-400 MHz reference
// window. Calibration takes 640 cycles, about 3.2 us at 200 MHz.
func DefaultSpec() Spec {
	return Spec{
		ResetPulseCycles:  16,
		CalibrationCycles: 640,
		MinFreq:           200 * timing.MHz,
		MaxFreq:           400 * timing.MHz,
	}
}

// Validate checks the spec itself.
func (s Spec) Validate() error {
	if s.ResetPulseCycles == 0 {
		return fmt.Errorf("calibration: reset pulse must be at least one cycle")
	}

	if s.MinFreq > s.MaxFreq {
		return fmt.Errorf("calibration: min frequency %s above max %s",
			s.MinFreq, s.MaxFreq)
	}

	return nil
}

// ValidateClock checks that f can serve as the calibration reference.
func (s Spec) ValidateClock(f timing.FreqInHz) error {
	if f < s.MinFreq || f > s.MaxFreq {
		return fmt.Errorf("%w: %s not in [%s, %s]",
			ErrReferenceOutOfRange, f, s.MinFreq, s.MaxFreq)
	}

	return nil
}

// Controller runs in the calibration domain. While the domain is held it
// keeps the delay lines in reset. After release it issues a reset pulse,
// calibrates and raises Ready. Holding the domain again clears Ready.
type Controller struct {
	*timing.TickingComponent

	Spec Spec

	domainReset *signal.Wire
	calReset    *signal.Wire
	ready       *signal.Wire

	pulseLeft uint64
	calLeft   uint64
}

// Ready returns the calibration ready output.
func (c *Controller) Ready() *signal.Wire {
	return c.ready
}

// CalibrationReset returns the internal reset driven into the delay lines.
func (c *Controller) CalibrationReset() *signal.Wire {
	return c.calReset
}

// Tick advances the controller by one reference cycle.
func (c *Controller) Tick() bool {
	if c.domainReset.Value() {
		return c.hold()
	}

	switch {
	case c.pulseLeft > 0:
		c.pulseLeft--
		if c.pulseLeft == 0 {
			c.calReset.Set(false)
			c.calLeft = c.Spec.CalibrationCycles
			c.ready.Set(c.calLeft == 0)
		}

		return true
	case c.calLeft > 0:
		c.calLeft--
		if c.calLeft == 0 {
			c.ready.Set(true)
		}

		return true
	}

	return false
}

func (c *Controller) hold() bool {
	progress := c.ready.Value() || !c.calReset.Value() ||
		c.pulseLeft != c.Spec.ResetPulseCycles

	c.pulseLeft = c.Spec.ResetPulseCycles
	c.calLeft = 0
	c.calReset.Set(true)
	c.ready.Set(false)

	return progress
}

// Builder builds calibration controllers.
type Builder struct {
	engine      timing.EventScheduler
	clock       *timing.FreqDomain
	domainReset *signal.Wire
	spec        Spec
}

// MakeBuilder returns a builder with the default spec.
func MakeBuilder() Builder {
	return Builder{spec: DefaultSpec()}
}

// WithEngine sets the engine.
func (b Builder) WithEngine(e timing.EventScheduler) Builder {
	b.engine = e
	return b
}

// WithClock sets the calibration reference clock.
func (b Builder) WithClock(d *timing.FreqDomain) Builder {
	b.clock = d
	return b
}

// WithDomainReset sets the reset output of the calibration domain.
func (b Builder) WithDomainReset(w *signal.Wire) Builder {
	b.domainReset = w
	return b
}

// WithSpec sets the spec.
func (b Builder) WithSpec(spec Spec) Builder {
	b.spec = spec
	return b
}

// Build creates the controller.
func (b Builder) Build(name string) (*Controller, error) {
	if err := b.spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if b.engine == nil || b.clock == nil || b.domainReset == nil {
		return nil, fmt.Errorf("%s: engine, clock and domain reset are required", name)
	}

	if err := b.spec.ValidateClock(b.clock.FrequencyHz()); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	c := &Controller{
		Spec:        b.spec,
		domainReset: b.domainReset,
		calReset:    signal.NewWire(name+".rst", true),
		ready:       signal.NewWire(name+".ready", false),
		pulseLeft:   b.spec.ResetPulseCycles,
	}
	c.TickingComponent = timing.NewTickingComponent(name, b.engine, b.clock, c)

	b.domainReset.Observe(c)

	return c, nil
}
