package timing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/crg/hooking"
)

// SerialEngine processes scheduled events one after another in time order.
type SerialEngine struct {
	*hooking.HookableBase

	timeLock sync.RWMutex
	now      VTimeInCycle

	queueLock      sync.Mutex
	nextSeq        uint64
	queue          *eventQueue
	secondaryQueue *eventQueue

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		HookableBase:   hooking.NewHookableBase(),
		queue:          newEventQueue(),
		secondaryQueue: newEventQueue(),
	}
}

// Schedule registers an event to be handled in the future. Scheduling an
// event in the past is a programming error and panics.
func (e *SerialEngine) Schedule(evt ScheduledEvent) {
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot schedule event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	e.nextSeq++
	eventCopy := evt
	eventCopy.seq = e.nextSeq

	if evt.IsSecondary {
		e.secondaryQueue.Push(&eventCopy)
		return
	}

	e.queue.Push(&eventCopy)
}

func (e *SerialEngine) readNow() VTimeInCycle {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInCycle) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Run processes all scheduled events until completion.
func (e *SerialEngine) Run() error {
	return e.run(maxCycleValue)
}

// RunUntil processes all events scheduled at or before limit. The engine
// time is advanced to limit afterwards so that later stimuli can be
// scheduled relative to it.
func (e *SerialEngine) RunUntil(limit VTimeInCycle) error {
	err := e.run(limit)
	if err != nil {
		return err
	}

	if e.readNow() < limit {
		e.writeNow(limit)
	}

	return nil
}

func (e *SerialEngine) run(limit VTimeInCycle) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		e.pauseLock.Lock()

		evt := e.nextEvent(limit)
		if evt == nil {
			e.pauseLock.Unlock()
			return nil
		}

		now := e.readNow()
		if evt.Time < now {
			panic(fmt.Sprintf(
				"timing: cannot run event in the past, evt %s @ %d, now %d",
				reflect.TypeOf(evt.Event), evt.Time, now,
			))
		}

		e.writeNow(evt.Time)

		hookCtx := hooking.HookCtx{
			Domain: e,
			Pos:    HookPosBeforeEvent,
			Item:   evt,
		}
		e.InvokeHook(hookCtx)

		if evt.Handler != nil {
			if err := evt.Handler.Handle(evt.Event); err != nil {
				e.pauseLock.Unlock()
				return fmt.Errorf("timing: handling %s @ %d: %w",
					reflect.TypeOf(evt.Event), evt.Time, err)
			}
		}

		hookCtx.Pos = HookPosAfterEvent
		e.InvokeHook(hookCtx)

		e.pauseLock.Unlock()
	}
}

// nextEvent pops the earliest event not later than limit. Primary events
// win ties against secondary events.
func (e *SerialEngine) nextEvent(limit VTimeInCycle) *ScheduledEvent {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	var chosen *eventQueue

	switch {
	case primary == nil && secondary == nil:
		return nil
	case primary == nil:
		chosen = e.secondaryQueue
	case secondary == nil:
		chosen = e.queue
	case primary.Time <= secondary.Time:
		chosen = e.queue
	default:
		chosen = e.secondaryQueue
	}

	if chosen.Peek().Time > limit {
		return nil
	}

	return chosen.Pop()
}

// Pending returns the number of events waiting in the queues.
func (e *SerialEngine) Pending() int {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	return e.queue.Len() + e.secondaryQueue.Len()
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue resumes event processing after a Pause.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// CurrentTime returns the cycle of the most recently executed event.
func (e *SerialEngine) CurrentTime() VTimeInCycle {
	return e.readNow()
}

var _ Engine = (*SerialEngine)(nil)
