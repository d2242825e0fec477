package signal

// SyncStages is the depth of the synchronizer chain used for every signal
// entering a clock domain.
const SyncStages = 2

// Synchronizer is a chain of flip-flops clocked by the receiving domain. A
// change on the source wire becomes visible at the output SyncStages edges
// later, never earlier.
type Synchronizer struct {
	source *Wire
	stages [SyncStages]bool
}

// NewSynchronizer creates a synchronizer on the source wire. All stages
// start at the given reset value.
func NewSynchronizer(source *Wire, resetValue bool) *Synchronizer {
	s := &Synchronizer{source: source}
	s.Reset(resetValue)

	return s
}

// Source returns the wire being synchronized.
func (s *Synchronizer) Source() *Wire {
	return s.source
}

// Reset forces every stage to v.
func (s *Synchronizer) Reset(v bool) {
	for i := range s.stages {
		s.stages[i] = v
	}
}

// Clock samples the source on a clock edge. It reports whether any stage
// changed.
func (s *Synchronizer) Clock() bool {
	changed := false
	in := s.source.Value()

	for i := range s.stages {
		if s.stages[i] != in {
			changed = true
		}

		s.stages[i], in = in, s.stages[i]
	}

	return changed
}

// Value returns the synchronized value, the last stage of the chain.
func (s *Synchronizer) Value() bool {
	return s.stages[SyncStages-1]
}

// Settled reports whether every stage already holds the source value, so
// further edges cannot change the output.
func (s *Synchronizer) Settled() bool {
	for _, v := range s.stages {
		if v != s.source.Value() {
			return false
		}
	}

	return true
}
