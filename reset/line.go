package reset

import (
	"fmt"

	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// lineEvent drives a reset line at a scheduled time.
type lineEvent struct {
	assert bool
}

// Line is an external reset request: a push button, a watchdog or a
// software-controlled register. The pin level that requests reset depends on
// the polarity of the line.
type Line struct {
	name     string
	polarity signal.Polarity
	pin      *signal.Wire
	engine   timing.EventScheduler
}

// NewLine creates a deasserted reset line.
func NewLine(
	name string,
	polarity signal.Polarity,
	engine timing.EventScheduler,
) *Line {
	return &Line{
		name:     name,
		polarity: polarity,
		pin:      signal.NewWire(name, polarity == signal.ActiveLow),
		engine:   engine,
	}
}

// Name returns the name of the line.
func (l *Line) Name() string {
	return l.name
}

// Polarity returns the level that requests reset.
func (l *Line) Polarity() signal.Polarity {
	return l.polarity
}

// Pin returns the raw pin wire.
func (l *Line) Pin() *signal.Wire {
	return l.pin
}

// Condition returns a condition met while the line requests reset.
func (l *Line) Condition() signal.Condition {
	return signal.Condition{Wire: l.pin, Polarity: l.polarity}
}

// Asserted reports whether the line currently requests reset.
func (l *Line) Asserted() bool {
	return l.Condition().Met()
}

// Assert requests reset now.
func (l *Line) Assert() {
	l.drive(true)
}

// Deassert withdraws the reset request now.
func (l *Line) Deassert() {
	l.drive(false)
}

func (l *Line) drive(assert bool) {
	l.pin.Set(signal.Level(assert, l.polarity))
}

// AssertAt schedules a reset request at the given global cycle.
func (l *Line) AssertAt(t timing.VTimeInCycle) {
	l.engine.Schedule(timing.ScheduledEvent{
		Event: lineEvent{assert: true}, Time: t, Handler: l,
	})
}

// DeassertAt schedules the release of the line at the given global cycle.
func (l *Line) DeassertAt(t timing.VTimeInCycle) {
	l.engine.Schedule(timing.ScheduledEvent{
		Event: lineEvent{assert: false}, Time: t, Handler: l,
	})
}

// Handle applies scheduled stimuli.
func (l *Line) Handle(event any) error {
	switch e := event.(type) {
	case lineEvent:
		l.drive(e.assert)
	default:
		return fmt.Errorf("%s: unknown event type: %T", l.name, event)
	}

	return nil
}
