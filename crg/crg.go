// Package crg elaborates a board table into a clock and reset generator.
//
// Elaboration plans every PLL, builds the domain graph and orders it before
// a single simulation component exists. Only a fully consistent board
// reaches the second phase, which instantiates power-on-reset counters, PLL
// lock models, reset sequencers and calibration controllers on one engine.
package crg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sarchlab/crg/board"
	"github.com/sarchlab/crg/calibration"
	"github.com/sarchlab/crg/clock"
	"github.com/sarchlab/crg/graph"
	"github.com/sarchlab/crg/hooking"
	"github.com/sarchlab/crg/platform"
	"github.com/sarchlab/crg/pll"
	"github.com/sarchlab/crg/reset"
	"github.com/sarchlab/crg/timing"
)

// ErrNotFound is returned when looking up a component the CRG does not
// have.
var ErrNotFound = errors.New("crg: not found")

// CRG is an elaborated clock and reset generator.
type CRG struct {
	cfg       board.Config
	platform  *platform.Platform
	conflicts []platform.PinConflict
	sources   *clock.Registry
	graph     *graph.Graph
	order     []string

	plls     []*pll.Instance
	pllIndex map[string]*pll.Instance

	freq         *timing.FrequencyRegistry
	sourceClocks map[string]*timing.FreqDomain
	domainClocks map[string]*timing.FreqDomain

	porSpecs   map[string]reset.PORSpec
	modelSpecs map[string]pll.ModelSpec
	calSpecs   map[string]calibration.Spec

	engine       timing.Engine
	pors         map[string]*reset.POR
	lines        map[string]*reset.Line
	lineOrder    []string
	models       map[string]*pll.Model
	sequencers   map[string]*reset.Sequencer
	dividers     map[string]*clock.Divider
	calibrations map[string]*calibration.Controller
}

// Name returns the name of the board.
func (c *CRG) Name() string {
	return c.cfg.Name
}

// Config returns the board table the CRG was built from.
func (c *CRG) Config() board.Config {
	return c.cfg
}

// Platform returns the board's platform.
func (c *CRG) Platform() *platform.Platform {
	return c.platform
}

// PinConflicts returns the package pins shared by enabled ports.
func (c *CRG) PinConflicts() []platform.PinConflict {
	return append([]platform.PinConflict(nil), c.conflicts...)
}

// Sources returns the reference oscillators.
func (c *CRG) Sources() []clock.Source {
	return c.sources.Sources()
}

// Graph returns the domain graph.
func (c *CRG) Graph() *graph.Graph {
	return c.graph
}

// Order returns the domains in dependency order.
func (c *CRG) Order() []string {
	return append([]string(nil), c.order...)
}

// Plans returns the configuration of every PLL in board order.
func (c *CRG) Plans() []*pll.Config {
	plans := make([]*pll.Config, 0, len(c.plls))
	for _, p := range c.plls {
		plans = append(plans, p.Config())
	}

	return plans
}

// Output returns the clock of a domain.
func (c *CRG) Output(domain string) (*clock.Output, error) {
	d, err := c.graph.Domain(domain)
	if err != nil {
		return nil, err
	}

	return d.Clock, nil
}

// Clock returns the simulated clock of a domain.
func (c *CRG) Clock(domain string) (*timing.FreqDomain, error) {
	d, found := c.domainClocks[domain]
	if !found {
		return nil, fmt.Errorf("%w: domain %q", ErrNotFound, domain)
	}

	return d, nil
}

// Frequencies returns the frequency registry of the simulation.
func (c *CRG) Frequencies() *timing.FrequencyRegistry {
	return c.freq
}

// Engine returns the engine running the simulation.
func (c *CRG) Engine() timing.Engine {
	return c.engine
}

// Sequencer returns the reset sequencer of a domain. Reset-less domains
// have none.
func (c *CRG) Sequencer(domain string) (*reset.Sequencer, error) {
	s, found := c.sequencers[domain]
	if !found {
		return nil, fmt.Errorf("%w: sequencer of domain %q", ErrNotFound, domain)
	}

	return s, nil
}

// Sequencers returns every sequencer in dependency order.
func (c *CRG) Sequencers() []*reset.Sequencer {
	list := []*reset.Sequencer{}

	for _, name := range c.order {
		if s, found := c.sequencers[name]; found {
			list = append(list, s)
		}
	}

	return list
}

// Line returns an external reset line.
func (c *CRG) Line(name string) (*reset.Line, error) {
	l, found := c.lines[name]
	if !found {
		return nil, fmt.Errorf("%w: reset line %q", ErrNotFound, name)
	}

	return l, nil
}

// Lines returns the reset lines in board order.
func (c *CRG) Lines() []*reset.Line {
	list := make([]*reset.Line, 0, len(c.lineOrder))
	for _, name := range c.lineOrder {
		list = append(list, c.lines[name])
	}

	return list
}

// POR returns a power-on-reset counter.
func (c *CRG) POR(name string) (*reset.POR, error) {
	p, found := c.pors[name]
	if !found {
		return nil, fmt.Errorf("%w: por %q", ErrNotFound, name)
	}

	return p, nil
}

// PLL returns the lock model of a PLL.
func (c *CRG) PLL(name string) (*pll.Model, error) {
	m, found := c.models[name]
	if !found {
		return nil, fmt.Errorf("%w: pll %q", ErrNotFound, name)
	}

	return m, nil
}

// Divider returns the clock divider of a derived domain.
func (c *CRG) Divider(domain string) (*clock.Divider, error) {
	d, found := c.dividers[domain]
	if !found {
		return nil, fmt.Errorf("%w: divider of domain %q", ErrNotFound, domain)
	}

	return d, nil
}

// Calibration returns a calibration controller.
func (c *CRG) Calibration(name string) (*calibration.Controller, error) {
	ctrl, found := c.calibrations[name]
	if !found {
		return nil, fmt.Errorf("%w: calibration %q", ErrNotFound, name)
	}

	return ctrl, nil
}

// AcceptHook registers a hook on every sequencer.
func (c *CRG) AcceptHook(hook hooking.Hook) {
	for _, s := range c.sequencers {
		s.AcceptHook(hook)
	}
}

// Run runs the simulation until nothing is left to do. A domain stuck
// waiting for a PLL that never locks does not keep the engine busy.
func (c *CRG) Run() error {
	return c.engine.Run()
}

// RunUntil runs the simulation up to and including the given global cycle.
func (c *CRG) RunUntil(cycle timing.VTimeInCycle) error {
	return c.engine.RunUntil(cycle)
}

// CycleAt converts a simulated time into a global cycle.
func (c *CRG) CycleAt(sec timing.VTimeInSec) (timing.VTimeInCycle, error) {
	return c.freq.SecondsToCycles(sec)
}

// Now returns the current simulated time.
func (c *CRG) Now() timing.VTimeInSec {
	return c.freq.CyclesToSeconds(c.engine.CurrentTime())
}

// AllReleased reports whether every domain with a reset is released.
func (c *CRG) AllReleased() bool {
	for _, s := range c.sequencers {
		if s.State() != reset.StateReleased {
			return false
		}
	}

	return true
}

// DomainStatus is a snapshot of one domain.
type DomainStatus struct {
	Domain    string
	Clock     *clock.Output
	ResetLess bool
	State     reset.State
	InReset   bool
	Cycle     uint64
}

func (s DomainStatus) String() string {
	if s.ResetLess {
		return fmt.Sprintf("%-12s %-10s reset-less", s.Domain, s.Clock.Freq)
	}

	return fmt.Sprintf("%-12s %-10s %-16s cycle %d",
		s.Domain, s.Clock.Freq, s.State, s.Cycle)
}

// Status returns the state of every domain in dependency order.
func (c *CRG) Status() []DomainStatus {
	status := make([]DomainStatus, 0, len(c.order))

	for _, name := range c.order {
		d, _ := c.graph.Domain(name)
		st := DomainStatus{
			Domain:    name,
			Clock:     d.Clock,
			ResetLess: d.ResetLess,
		}

		if s, found := c.sequencers[name]; found {
			st.State = s.State()
			st.InReset = s.Reset().Value()
			st.Cycle = s.Cycle()
		}

		status = append(status, st)
	}

	return status
}

// Report prints the plan of every PLL followed by the domain order.
func (c *CRG) Report() string {
	var sb strings.Builder

	for _, p := range c.Plans() {
		sb.WriteString(p.Describe())
	}

	for _, name := range c.order {
		if d, _ := c.graph.Domain(name); d.Clock.Parent != "" {
			fmt.Fprintf(&sb, "derive %s = %s / %d (%s)\n",
				name, d.Clock.Parent, d.Clock.Divide, d.Clock.Freq)
		}
	}

	fmt.Fprintf(&sb, "order: %s\n", strings.Join(c.order, " -> "))

	return sb.String()
}
