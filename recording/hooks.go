package recording

import (
	"log"

	"github.com/sarchlab/crg/hooking"
	"github.com/sarchlab/crg/reset"
	"github.com/sarchlab/crg/timing"
)

// TransitionTable is the table the TransitionRecorder writes into.
const TransitionTable = "transitions"

// TransitionEntry is one row of the transition table.
type TransitionEntry struct {
	Domain    string
	FromState string
	ToState   string
	Cycle     uint64
	Time      uint64
}

// TransitionRecorder is a hook that stores every reset transition.
type TransitionRecorder struct {
	recorder Recorder
}

// NewTransitionRecorder creates the transition table and returns the hook.
func NewTransitionRecorder(r Recorder) *TransitionRecorder {
	r.CreateTable(TransitionTable, TransitionEntry{})

	return &TransitionRecorder{recorder: r}
}

// Func records a transition.
func (h *TransitionRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != reset.HookPosStateChange {
		return
	}

	t, ok := ctx.Item.(reset.Transition)
	if !ok {
		return
	}

	h.recorder.InsertData(TransitionTable, TransitionEntry{
		Domain:    t.Domain,
		FromState: t.From.String(),
		ToState:   t.To.String(),
		Cycle:     t.Cycle,
		Time:      uint64(t.Time),
	})
}

// TransitionLogger is a hook that prints every reset transition.
type TransitionLogger struct {
	logger *log.Logger
	freq   *timing.FrequencyRegistry
}

// NewTransitionLogger returns a hook writing into logger. If freq is given
// the simulated time is printed in seconds as well.
func NewTransitionLogger(
	logger *log.Logger,
	freq *timing.FrequencyRegistry,
) *TransitionLogger {
	return &TransitionLogger{logger: logger, freq: freq}
}

// Func writes the transition into the logger.
func (h *TransitionLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != reset.HookPosStateChange {
		return
	}

	t, ok := ctx.Item.(reset.Transition)
	if !ok {
		return
	}

	if h.freq == nil {
		h.logger.Printf("%d, %s", t.Time, t)
		return
	}

	h.logger.Printf("%d (%.9fs), %s",
		t.Time, float64(h.freq.CyclesToSeconds(t.Time)), t)
}
