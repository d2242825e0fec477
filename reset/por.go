package reset

import (
	"fmt"

	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// PORSpec configures a power-on-reset counter.
type PORSpec struct {
	// Width is the counter width in bits.
	Width int

	// ResetValue is loaded into the counter at power up.
	ResetValue uint64
}

// DefaultPORSpec returns the 16-bit, all-ones counter used on most boards.
func DefaultPORSpec() PORSpec {
	return PORSpec{Width: 16, ResetValue: 1<<16 - 1}
}

// Validate checks that the reset value fits in the counter.
func (s PORSpec) Validate() error {
	if s.Width <= 0 || s.Width > 63 {
		return fmt.Errorf("por width %d out of range", s.Width)
	}

	if s.ResetValue >= 1<<uint(s.Width) {
		return fmt.Errorf("por reset value %d does not fit in %d bits",
			s.ResetValue, s.Width)
	}

	return nil
}

// POR is a free-running down-counter on a reference clock. Its done output
// is registered: it rises on the edge after the counter reaches zero, so a
// reset value of N asserts done on cycle N+1.
type POR struct {
	*timing.TickingComponent

	Spec PORSpec

	count uint64
	done  *signal.Wire
}

// Done returns the por_done wire.
func (p *POR) Done() *signal.Wire {
	return p.done
}

// Remaining returns the current counter value.
func (p *POR) Remaining() uint64 {
	return p.count
}

// Tick counts down by one.
func (p *POR) Tick() bool {
	if p.done.Value() {
		return false
	}

	if p.count == 0 {
		p.done.Set(true)
		return true
	}

	p.count--

	return true
}

// PORBuilder builds power-on-reset counters.
type PORBuilder struct {
	engine timing.EventScheduler
	clock  *timing.FreqDomain
	spec   PORSpec
}

// MakePORBuilder returns a builder with the default spec.
func MakePORBuilder() PORBuilder {
	return PORBuilder{spec: DefaultPORSpec()}
}

// WithEngine sets the engine.
func (b PORBuilder) WithEngine(e timing.EventScheduler) PORBuilder {
	b.engine = e
	return b
}

// WithClock sets the reference clock the counter runs on.
func (b PORBuilder) WithClock(d *timing.FreqDomain) PORBuilder {
	b.clock = d
	return b
}

// WithSpec sets the counter configuration.
func (b PORBuilder) WithSpec(spec PORSpec) PORBuilder {
	b.spec = spec
	return b
}

// Build creates the counter.
func (b PORBuilder) Build(name string) (*POR, error) {
	if err := b.spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if b.engine == nil || b.clock == nil {
		return nil, fmt.Errorf("%s: engine and clock are required", name)
	}

	p := &POR{
		Spec:  b.spec,
		count: b.spec.ResetValue,
		done:  signal.NewWire(name+".done", false),
	}
	p.TickingComponent = timing.NewTickingComponent(name, b.engine, b.clock, p)

	return p, nil
}
