// Package clock holds the reference oscillators of a board and the clock
// outputs derived from them.
package clock

import (
	"errors"
	"fmt"

	"github.com/sarchlab/crg/timing"
)

var (
	// ErrDuplicateSource is returned when a reference name is registered
	// twice.
	ErrDuplicateSource = errors.New("clock: duplicate reference source")

	// ErrSourceNotFound is returned when looking up an unknown reference.
	ErrSourceNotFound = errors.New("clock: reference source not found")

	// ErrInvalidSource is returned for a source without a name or frequency.
	ErrInvalidSource = errors.New("clock: invalid reference source")
)

// Source is an input oscillator. It is immutable once registered.
type Source struct {
	Name         string
	NominalFreq  timing.FreqInHz
	Differential bool
}

// String prints the source as "name@freq".
func (s Source) String() string {
	return fmt.Sprintf("%s@%s", s.Name, s.NominalFreq)
}

// Registry records the available reference oscillators of one build.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a reference source.
func (r *Registry) Register(s Source) error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSource)
	}

	if s.NominalFreq == 0 {
		return fmt.Errorf("%w: %q has zero frequency", ErrInvalidSource, s.Name)
	}

	if _, found := r.sources[s.Name]; found {
		return fmt.Errorf("%w: %q", ErrDuplicateSource, s.Name)
	}

	r.sources[s.Name] = s
	r.order = append(r.order, s.Name)

	return nil
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, error) {
	s, found := r.sources[name]
	if !found {
		return Source{}, fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}

	return s, nil
}

// Sources returns every source in registration order.
func (r *Registry) Sources() []Source {
	list := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.sources[name])
	}

	return list
}
