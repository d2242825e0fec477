package clock

import (
	"fmt"

	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// Derived builds the output of a domain clocked by another domain's clock
// divided by divide.
func Derived(domain string, parent *Output, divide int) *Output {
	return &Output{
		Domain:     domain,
		Freq:       parent.Freq / timing.FreqInHz(divide),
		Reference:  parent.Reference,
		PLL:        parent.PLL,
		Parent:     parent.Domain,
		Divide:     divide,
		Divider:    divide,
		RealizedHz: parent.RealizedHz / float64(divide),
	}
}

// Divider simulates a gated clock divider such as an ECP5 ECLKSYNCB
// feeding a CLKDIVF. It is clocked by the parent domain. While a stop or
// reset condition is met the divided clock does not toggle; once all clear
// it runs after one full divided period.
type Divider struct {
	*timing.TickingComponent

	divide  int
	stops   []signal.Condition
	resets  []signal.Condition
	running *signal.Wire
	counter int
	since   timing.VTimeInCycle
}

// Running is high while the divided clock toggles.
func (d *Divider) Running() *signal.Wire {
	return d.running
}

// RunningSince returns the global cycle the clock last started.
func (d *Divider) RunningSince() timing.VTimeInCycle {
	return d.since
}

// Divide returns the division ratio.
func (d *Divider) Divide() int {
	return d.divide
}

// Held reports whether a stop or reset condition is met.
func (d *Divider) Held() bool {
	for _, c := range d.stops {
		if c.Met() {
			return true
		}
	}

	for _, c := range d.resets {
		if c.Met() {
			return true
		}
	}

	return false
}

// Tick counts one parent edge.
func (d *Divider) Tick() bool {
	if d.Held() {
		progress := d.counter != 0 || d.running.Value()
		d.counter = 0
		d.running.Set(false)

		return progress
	}

	if d.running.Value() {
		return false
	}

	d.counter++
	if d.counter >= d.divide {
		d.since = d.Now()
		d.running.Set(true)
	}

	return true
}

// DividerBuilder builds clock dividers.
type DividerBuilder struct {
	engine timing.EventScheduler
	parent *timing.FreqDomain
	divide int
	stops  []signal.Condition
	resets []signal.Condition
}

// MakeDividerBuilder returns a builder dividing by one.
func MakeDividerBuilder() DividerBuilder {
	return DividerBuilder{divide: 1}
}

// WithEngine sets the engine.
func (b DividerBuilder) WithEngine(e timing.EventScheduler) DividerBuilder {
	b.engine = e
	return b
}

// WithParent sets the clock being divided.
func (b DividerBuilder) WithParent(d *timing.FreqDomain) DividerBuilder {
	b.parent = d
	return b
}

// WithDivide sets the division ratio.
func (b DividerBuilder) WithDivide(n int) DividerBuilder {
	b.divide = n
	return b
}

// WithStopConditions sets the conditions that gate the input clock.
func (b DividerBuilder) WithStopConditions(c ...signal.Condition) DividerBuilder {
	b.stops = append([]signal.Condition(nil), c...)
	return b
}

// WithResetConditions sets the conditions that reset the divider.
func (b DividerBuilder) WithResetConditions(c ...signal.Condition) DividerBuilder {
	b.resets = append([]signal.Condition(nil), c...)
	return b
}

// Build creates the divider of the named domain.
func (b DividerBuilder) Build(domain string) (*Divider, error) {
	if b.engine == nil || b.parent == nil {
		return nil, fmt.Errorf("%s: engine and parent clock are required", domain)
	}

	if b.divide < 1 {
		return nil, fmt.Errorf("%s: divide by %d", domain, b.divide)
	}

	d := &Divider{
		divide:  b.divide,
		stops:   b.stops,
		resets:  b.resets,
		running: signal.NewWire(domain+".running", false),
	}
	d.TickingComponent = timing.NewTickingComponent(
		domain+".div", b.engine, b.parent, d)

	for _, c := range append(append([]signal.Condition(nil), b.stops...), b.resets...) {
		if c.Wire == nil {
			return nil, fmt.Errorf("%s: condition without wire", domain)
		}

		c.Wire.Observe(d)
	}

	return d, nil
}
