// Package reset releases the reset of every clock domain once power-on reset
// has finished, the domain's PLLs are locked and all upstream domains are
// live.
package reset

import (
	"fmt"

	"github.com/sarchlab/crg/hooking"
	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// State is the reset state of one domain.
type State int

// States, in release order.
const (
	StateHeld State = iota
	StateWaitingPOR
	StateWaitingLock
	StateWaitingUpstream
	StateReleased
)

var stateNames = [...]string{
	"HELD", "WAITING_POR", "WAITING_LOCK", "WAITING_UPSTREAM", "RELEASED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}

	return stateNames[s]
}

// Transition is the item of a HookPosStateChange hook.
type Transition struct {
	Domain   string
	From, To State
	Cycle    uint64
	Time     timing.VTimeInCycle
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s @ cycle %d", t.Domain, t.From, t.To, t.Cycle)
}

// HookPosStateChange fires after every state transition.
var HookPosStateChange = &hooking.HookPos{Name: "StateChange"}

// syncedCondition is a gating condition sampled into the domain.
type syncedCondition struct {
	sync     *signal.Synchronizer
	polarity signal.Polarity
}

func (c syncedCondition) met() bool {
	return signal.Level(c.sync.Value(), c.polarity)
}

// Sequencer is the reset state machine of one domain. It runs on the
// domain's own clock and makes at most one transition per edge.
//
// Every input comes from another clock domain and is read through a
// two-stage synchronizer. External reset lines are the exception on assert:
// an asserted line forces HELD on the next edge and presets the line's
// synchronizer, while its release still has to ripple through both stages.
type Sequencer struct {
	*timing.TickingComponent
	*hooking.HookableBase

	state State

	por      *signal.Synchronizer
	locks    []*signal.Synchronizer
	upstream []*signal.Synchronizer
	gates    []syncedCondition
	lines    []*Line
	lineSync []*signal.Synchronizer

	reset    *signal.Wire
	released *signal.Wire
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Reset returns the domain reset output, high while the domain is held.
func (s *Sequencer) Reset() *signal.Wire {
	return s.reset
}

// Released returns the released flag, the inverse of Reset.
func (s *Sequencer) Released() *signal.Wire {
	return s.released
}

// Tick evaluates the inputs on one domain clock edge.
func (s *Sequencer) Tick() bool {
	progress := s.sample()

	next := s.next()
	if next != s.state {
		s.moveTo(next)
		progress = true
	}

	return progress || !s.settled()
}

func (s *Sequencer) sample() bool {
	changed := false

	for _, sync := range s.allSynchronizers() {
		if sync.Clock() {
			changed = true
		}
	}

	for i, l := range s.lines {
		if l.Asserted() {
			s.lineSync[i].Reset(l.Pin().Value())
		}
	}

	return changed
}

func (s *Sequencer) allSynchronizers() []*signal.Synchronizer {
	all := make([]*signal.Synchronizer, 0,
		1+len(s.locks)+len(s.upstream)+len(s.gates)+len(s.lineSync))

	if s.por != nil {
		all = append(all, s.por)
	}

	all = append(all, s.locks...)
	all = append(all, s.upstream...)

	for _, g := range s.gates {
		all = append(all, g.sync)
	}

	all = append(all, s.lineSync...)

	return all
}

func (s *Sequencer) settled() bool {
	for _, sync := range s.allSynchronizers() {
		if !sync.Settled() {
			return false
		}
	}

	return true
}

func (s *Sequencer) next() State {
	if s.externalReset() {
		return StateHeld
	}

	switch s.state {
	case StateHeld:
		return StateWaitingPOR
	case StateWaitingPOR:
		if s.porDone() {
			return StateWaitingLock
		}
	case StateWaitingLock:
		if s.locked() {
			return StateWaitingUpstream
		}
	case StateWaitingUpstream:
		if !s.locked() {
			return StateWaitingLock
		}

		if s.upstreamReady() {
			return StateReleased
		}
	case StateReleased:
		if !s.locked() {
			return StateWaitingLock
		}

		if !s.upstreamReady() {
			return StateWaitingUpstream
		}
	}

	return s.state
}

func (s *Sequencer) externalReset() bool {
	for i, l := range s.lines {
		if signal.Level(s.lineSync[i].Value(), l.Polarity()) {
			return true
		}
	}

	return false
}

func (s *Sequencer) porDone() bool {
	return s.por == nil || s.por.Value()
}

func (s *Sequencer) locked() bool {
	for _, l := range s.locks {
		if !l.Value() {
			return false
		}
	}

	return true
}

func (s *Sequencer) upstreamReady() bool {
	for _, u := range s.upstream {
		if !u.Value() {
			return false
		}
	}

	for _, g := range s.gates {
		if !g.met() {
			return false
		}
	}

	return true
}

func (s *Sequencer) moveTo(next State) {
	t := Transition{
		Domain: s.Name(),
		From:   s.state,
		To:     next,
		Cycle:  s.Cycle(),
		Time:   s.Now(),
	}

	s.state = next
	s.reset.Set(next != StateReleased)
	s.released.Set(next == StateReleased)

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosStateChange,
		Item:   t,
	})
}

// Builder builds reset sequencers.
type Builder struct {
	engine   timing.EventScheduler
	clock    *timing.FreqDomain
	porDone  *signal.Wire
	locks    []*signal.Wire
	upstream []*signal.Wire
	gates    []signal.Condition
	lines    []*Line
}

// MakeBuilder returns a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithEngine sets the engine.
func (b Builder) WithEngine(e timing.EventScheduler) Builder {
	b.engine = e
	return b
}

// WithClock sets the domain clock.
func (b Builder) WithClock(d *timing.FreqDomain) Builder {
	b.clock = d
	return b
}

// WithPORDone sets the por_done wire of the domain's clock tree. Without one
// the domain does not wait for power-on reset.
func (b Builder) WithPORDone(w *signal.Wire) Builder {
	b.porDone = w
	return b
}

// WithLocks sets the locked wires of every PLL feeding the domain.
func (b Builder) WithLocks(w ...*signal.Wire) Builder {
	b.locks = append([]*signal.Wire(nil), w...)
	return b
}

// WithUpstream sets the released wires of the domain's dependencies.
func (b Builder) WithUpstream(w ...*signal.Wire) Builder {
	b.upstream = append([]*signal.Wire(nil), w...)
	return b
}

// WithGates adds conditions that must hold before release.
func (b Builder) WithGates(c ...signal.Condition) Builder {
	b.gates = append([]signal.Condition(nil), c...)
	return b
}

// WithLines sets the external reset lines.
func (b Builder) WithLines(l ...*Line) Builder {
	b.lines = append([]*Line(nil), l...)
	return b
}

// Build creates the sequencer of the named domain.
func (b Builder) Build(domain string) (*Sequencer, error) {
	if b.engine == nil || b.clock == nil {
		return nil, fmt.Errorf("%s: engine and clock are required", domain)
	}

	s := &Sequencer{
		HookableBase: hooking.NewHookableBase(),
		state:        StateHeld,
		lines:        b.lines,
		reset:        signal.NewWire(domain+".rst", true),
		released:     signal.NewWire(domain+".released", false),
	}
	s.TickingComponent = timing.NewTickingComponent(domain, b.engine, b.clock, s)

	if b.porDone != nil {
		s.por = s.observe(b.porDone, false)
	}

	for _, w := range b.locks {
		s.locks = append(s.locks, s.observe(w, false))
	}

	for _, w := range b.upstream {
		s.upstream = append(s.upstream, s.observe(w, false))
	}

	for _, c := range b.gates {
		if c.Wire == nil {
			return nil, fmt.Errorf("%s: gating condition without wire", domain)
		}

		s.gates = append(s.gates, syncedCondition{
			sync:     s.observe(c.Wire, c.Polarity == signal.ActiveLow),
			polarity: c.Polarity,
		})
	}

	for i, l := range b.lines {
		s.lineSync = append(s.lineSync,
			signal.NewSynchronizer(l.Pin(), signal.Level(true, l.Polarity())))
		l.Pin().Observe(lineWatcher{s: s, index: i})
	}

	return s, nil
}

func (s *Sequencer) observe(w *signal.Wire, resetValue bool) *signal.Synchronizer {
	w.Observe(s)
	return signal.NewSynchronizer(w, resetValue)
}

// lineWatcher presets a line's synchronizer the moment the line asserts, so
// even a pulse shorter than one domain cycle resets the domain.
type lineWatcher struct {
	s     *Sequencer
	index int
}

func (w lineWatcher) Wake() {
	l := w.s.lines[w.index]
	if l.Asserted() {
		w.s.lineSync[w.index].Reset(l.Pin().Value())
	}

	w.s.TickLater()
}
