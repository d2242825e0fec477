package pll

import (
	"fmt"

	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// ModelSpec holds the lock behaviour of a simulated PLL.
type ModelSpec struct {
	// LockCycles is the number of reference cycles between reset release
	// and lock.
	LockCycles uint64

	// NeverLock keeps the PLL unlocked forever.
	NeverLock bool
}

// DefaultModelSpec returns a lock time of 256 reference cycles.
func DefaultModelSpec() ModelSpec {
	return ModelSpec{LockCycles: 256}
}

// Validate checks the spec.
func (s ModelSpec) Validate() error {
	if s.LockCycles == 0 && !s.NeverLock {
		return fmt.Errorf("lock cycles must be > 0")
	}

	return nil
}

// Model simulates the lock indicator of a PLL. It is clocked by the PLL's
// reference input. While any reset condition is met the PLL is unlocked;
// once all are released it locks after LockCycles reference cycles.
type Model struct {
	*timing.TickingComponent

	Instance *Instance
	Spec     ModelSpec

	resets  []signal.Condition
	locked  *signal.Wire
	counter uint64
}

// Locked returns the lock indicator.
func (m *Model) Locked() *signal.Wire {
	return m.locked
}

// InReset reports whether any reset condition of the PLL is met.
func (m *Model) InReset() bool {
	for _, c := range m.resets {
		if c.Met() {
			return true
		}
	}

	return false
}

// Tick advances the lock counter by one reference cycle.
func (m *Model) Tick() bool {
	if m.InReset() {
		progress := m.counter != 0 || m.locked.Value()
		m.counter = 0
		m.locked.Set(false)

		return progress
	}

	if m.locked.Value() || m.Spec.NeverLock {
		return false
	}

	m.counter++
	if m.counter >= m.Spec.LockCycles {
		m.locked.Set(true)
	}

	return true
}

// ModelBuilder builds PLL models.
type ModelBuilder struct {
	engine timing.EventScheduler
	domain *timing.FreqDomain
	spec   ModelSpec
	resets []signal.Condition
}

// MakeModelBuilder returns a builder with the default spec.
func MakeModelBuilder() ModelBuilder {
	return ModelBuilder{spec: DefaultModelSpec()}
}

// WithEngine sets the engine.
func (b ModelBuilder) WithEngine(e timing.EventScheduler) ModelBuilder {
	b.engine = e
	return b
}

// WithReference sets the clock of the reference input.
func (b ModelBuilder) WithReference(d *timing.FreqDomain) ModelBuilder {
	b.domain = d
	return b
}

// WithSpec sets the lock behaviour.
func (b ModelBuilder) WithSpec(spec ModelSpec) ModelBuilder {
	b.spec = spec
	return b
}

// WithResetConditions sets the conditions that hold the PLL in reset.
func (b ModelBuilder) WithResetConditions(c ...signal.Condition) ModelBuilder {
	b.resets = append([]signal.Condition(nil), c...)
	return b
}

// Build creates the model of inst.
func (b ModelBuilder) Build(inst *Instance) (*Model, error) {
	if err := b.spec.Validate(); err != nil {
		return nil, fmt.Errorf("pll %q: %w", inst.Name(), err)
	}

	m := &Model{
		Instance: inst,
		Spec:     b.spec,
		resets:   b.resets,
		locked:   signal.NewWire(inst.Name()+".locked", false),
	}
	m.TickingComponent = timing.NewTickingComponent(
		inst.Name(), b.engine, b.domain, m)

	for _, c := range b.resets {
		c.Wire.Observe(m)
	}

	return m, nil
}
