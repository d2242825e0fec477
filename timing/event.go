package timing

import "github.com/sarchlab/crg/hooking"

// Handler processes events of various types. Events are plain data;
// handlers type-switch on them:
//
//	func (c *Comp) Handle(event any) error {
//	    switch e := event.(type) {
//	    case TickEvent:
//	        ...
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	    return nil
//	}
type Handler interface {
	Handle(event any) error
}

// TimeTeller exposes the current simulation cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events in the simulation timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// An Engine keeps the discrete event simulation running.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run processes events until no event is left.
	Run() error

	// RunUntil processes every event scheduled at or before the given cycle
	// and leaves later events in the queue.
	RunUntil(limit VTimeInCycle) error

	// Pause stops the engine from dispatching events until Continue.
	Pause()

	// Continue resumes a paused engine.
	Continue()
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
type ScheduledEvent struct {
	// Event is the payload delivered to the handler.
	Event any

	// Time is the global cycle when the event should be processed.
	Time VTimeInCycle

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary events run after all primary events of the same cycle.
	IsSecondary bool

	seq uint64
}

// HookPosBeforeEvent is a hook position that triggers before handling an
// event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}
