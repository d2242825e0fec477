package timing

import (
	"fmt"
	"sync"
)

// TickEvent is delivered to a ticking component on each edge of its clock.
type TickEvent struct{}

// A Ticker is an object that updates its state on clock edges. Tick reports
// whether any state changed; a component whose tick made no progress stops
// ticking until it is woken up again.
type Ticker interface {
	Tick() bool
}

// TickScheduler schedules tick events on the edges of one clock domain.
type TickScheduler struct {
	lock      sync.Mutex
	handler   Handler
	Domain    *FreqDomain
	Engine    EventScheduler
	secondary bool

	hasScheduled bool
	nextTickTime VTimeInCycle
}

// NewTickScheduler creates a scheduler for tick events.
func NewTickScheduler(
	handler Handler,
	engine EventScheduler,
	domain *FreqDomain,
) *TickScheduler {
	return &TickScheduler{
		handler: handler,
		Engine:  engine,
		Domain:  domain,
	}
}

// NewSecondaryTickScheduler creates a scheduler whose ticks run after all
// primary events of the same cycle.
func NewSecondaryTickScheduler(
	handler Handler,
	engine EventScheduler,
	domain *FreqDomain,
) *TickScheduler {
	ts := NewTickScheduler(handler, engine, domain)
	ts.secondary = true

	return ts
}

// TickNow schedules a tick at the current edge, or the next one if the
// current time is not on an edge of this domain.
func (t *TickScheduler) TickNow() {
	t.schedule(t.Domain.ThisTick(t.Now()))
}

// TickLater schedules a tick at the first edge strictly after now.
func (t *TickScheduler) TickLater() {
	t.schedule(t.Domain.NextTick(t.Now()))
}

func (t *TickScheduler) schedule(time VTimeInCycle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.hasScheduled && t.nextTickTime >= time {
		return
	}

	t.hasScheduled = true
	t.nextTickTime = time

	t.Engine.Schedule(ScheduledEvent{
		Event:       TickEvent{},
		Time:        time,
		Handler:     t.handler,
		IsSecondary: t.secondary,
	})
}

// Now returns the current global cycle.
func (t *TickScheduler) Now() VTimeInCycle {
	return t.Engine.CurrentTime()
}

// Cycle returns the number of edges of this domain that have elapsed.
func (t *TickScheduler) Cycle() uint64 {
	return t.Domain.Cycle(t.Now())
}

// TickingComponent updates its state from cycle to cycle. A component only
// needs to implement Ticker.
type TickingComponent struct {
	*TickScheduler

	name   string
	ticker Ticker
}

// NewTickingComponent creates a new ticking component.
func NewTickingComponent(
	name string,
	engine EventScheduler,
	domain *FreqDomain,
	ticker Ticker,
) *TickingComponent {
	tc := &TickingComponent{name: name, ticker: ticker}
	tc.TickScheduler = NewTickScheduler(tc, engine, domain)

	return tc
}

// Name returns the name of the component.
func (c *TickingComponent) Name() string {
	return c.name
}

// Handle triggers the tick function of the component.
func (c *TickingComponent) Handle(event any) error {
	if _, ok := event.(TickEvent); !ok {
		return fmt.Errorf("%s: unknown event type: %T", c.name, event)
	}

	if c.ticker.Tick() {
		c.TickLater()
	}

	return nil
}

// Wake makes a sleeping component evaluate its inputs on the next edge.
func (c *TickingComponent) Wake() {
	c.TickLater()
}
