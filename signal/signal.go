// Package signal models the single-bit status wires that cross between clock
// domains: PLL locked, POR done, domain released, calibration ready and the
// external reset request lines.
package signal

// A Waker is anything that wants to re-evaluate its inputs when a wire it
// observes changes. Ticking components implement it by scheduling a tick.
type Waker interface {
	Wake()
}

// Wire is a named single-bit signal with exactly one driver. Observers are
// woken whenever the value changes.
type Wire struct {
	name      string
	value     bool
	observers []Waker
}

// NewWire creates a wire with an initial value.
func NewWire(name string, initial bool) *Wire {
	return &Wire{name: name, value: initial}
}

// Name returns the name of the wire.
func (w *Wire) Name() string {
	return w.name
}

// Value returns the current value of the wire.
func (w *Wire) Value() bool {
	return w.value
}

// Set drives the wire. Observers are only woken on a change.
func (w *Wire) Set(v bool) {
	if w.value == v {
		return
	}

	w.value = v

	for _, o := range w.observers {
		o.Wake()
	}
}

// Observe registers a waker to be notified of changes.
func (w *Wire) Observe(o Waker) {
	w.observers = append(w.observers, o)
}

// Polarity tells which level of a wire means "condition met".
type Polarity int

// Polarities.
const (
	ActiveHigh Polarity = iota
	ActiveLow
)

func (p Polarity) String() string {
	if p == ActiveLow {
		return "active-low"
	}

	return "active-high"
}

// Condition is a (wire, polarity) pair gating a reset release.
type Condition struct {
	Wire     *Wire
	Polarity Polarity
}

// High returns a condition met when w is 1.
func High(w *Wire) Condition {
	return Condition{Wire: w, Polarity: ActiveHigh}
}

// Low returns a condition met when w is 0.
func Low(w *Wire) Condition {
	return Condition{Wire: w, Polarity: ActiveLow}
}

// Met reports whether the condition currently holds on the raw wire.
func (c Condition) Met() bool {
	return Level(c.Wire.Value(), c.Polarity)
}

// Level converts a wire value into "asserted" according to polarity.
func Level(v bool, p Polarity) bool {
	if p == ActiveLow {
		return !v
	}

	return v
}
