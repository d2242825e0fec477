package pll

import (
	"errors"
	"fmt"

	"github.com/sarchlab/crg/clock"
)

var (
	// ErrOutputOwned is returned when an output already belongs to a PLL.
	ErrOutputOwned = errors.New("pll: output already belongs to a PLL")

	// ErrAlreadyConfigured is returned when changing a configured PLL.
	ErrAlreadyConfigured = errors.New("pll: already configured")
)

// Instance is one PLL primitive of a design. It takes one reference input,
// owns its outputs, and is configured exactly once at elaboration time.
type Instance struct {
	name    string
	family  Family
	input   clock.Source
	outputs []*clock.Output
	config  *Config
}

// NewInstance creates an unconfigured PLL fed by input.
func NewInstance(name string, family Family, input clock.Source) *Instance {
	return &Instance{name: name, family: family, input: input}
}

// Name returns the name of the PLL.
func (i *Instance) Name() string {
	return i.name
}

// Family returns the primitive family of the PLL.
func (i *Instance) Family() Family {
	return i.family
}

// Input returns the reference source feeding the PLL.
func (i *Instance) Input() clock.Source {
	return i.input
}

// AddOutput attaches an output. An output can only ever have one owner.
func (i *Instance) AddOutput(o *clock.Output) error {
	if i.config != nil {
		return fmt.Errorf("%w: cannot add %q to %q", ErrAlreadyConfigured, o.Domain, i.name)
	}

	if o.PLL != "" {
		return fmt.Errorf("%w: %q is owned by %q", ErrOutputOwned, o.Domain, o.PLL)
	}

	o.PLL = i.name
	o.Reference = i.input.Name
	i.outputs = append(i.outputs, o)

	return nil
}

// Outputs returns the outputs in the order they were added.
func (i *Instance) Outputs() []*clock.Output {
	return i.outputs
}

// Requests converts the outputs into planner requests.
func (i *Instance) Requests() []Request {
	reqs := make([]Request, 0, len(i.outputs))
	for _, o := range i.outputs {
		reqs = append(reqs, Request{
			Domain: o.Domain,
			Freq:   o.Freq,
			Phase:  o.Phase,
			Margin: o.Margin,
		})
	}

	return reqs
}

// Configure plans the PLL and writes the realized values back into its
// outputs.
func (i *Instance) Configure() (*Config, error) {
	if i.config != nil {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyConfigured, i.name)
	}

	cfg, err := NewPlanner(i.family).Plan(i.name, i.input.NominalFreq, i.Requests())
	if err != nil {
		return nil, err
	}

	for _, o := range i.outputs {
		oc, _ := cfg.Output(o.Domain)
		o.Divider = oc.Divider
		o.RealizedHz = oc.RealizedHz
		o.RealizedPhase = oc.RealizedPhase
	}

	i.config = cfg

	return cfg, nil
}

// Config returns the configuration, or nil before Configure.
func (i *Instance) Config() *Config {
	return i.config
}
