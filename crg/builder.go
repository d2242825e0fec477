package crg

import (
	"fmt"
	"log"

	"github.com/sarchlab/crg/board"
	"github.com/sarchlab/crg/calibration"
	"github.com/sarchlab/crg/clock"
	"github.com/sarchlab/crg/graph"
	"github.com/sarchlab/crg/platform"
	"github.com/sarchlab/crg/pll"
	"github.com/sarchlab/crg/reset"
	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

// Builder builds a CRG from a board table.
type Builder struct {
	engine    timing.Engine
	logger    *log.Logger
	modelSpec pll.ModelSpec
	calSpec   calibration.Spec
	neverLock map[string]bool
}

// MakeBuilder creates a builder with default lock and calibration timing.
func MakeBuilder() Builder {
	return Builder{
		modelSpec: pll.DefaultModelSpec(),
		calSpec:   calibration.DefaultSpec(),
	}
}

// WithEngine sets the engine. By default a serial engine is created.
func (b Builder) WithEngine(e timing.Engine) Builder {
	b.engine = e
	return b
}

// WithLogger sets the logger that receives elaboration messages.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// WithModelSpec sets the lock behaviour of PLLs that do not configure
// their own lock time.
func (b Builder) WithModelSpec(spec pll.ModelSpec) Builder {
	b.modelSpec = spec
	return b
}

// WithCalibrationSpec sets the timing of calibration controllers.
func (b Builder) WithCalibrationSpec(spec calibration.Spec) Builder {
	b.calSpec = spec
	return b
}

// WithNeverLock makes the named PLLs never acquire lock.
func (b Builder) WithNeverLock(plls ...string) Builder {
	neverLock := make(map[string]bool, len(b.neverLock)+len(plls))
	for name := range b.neverLock {
		neverLock[name] = true
	}

	for _, name := range plls {
		neverLock[name] = true
	}

	b.neverLock = neverLock

	return b
}

// Build elaborates the board. Every configuration error is reported before
// any simulation component is created.
func (b Builder) Build(cfg board.Config) (*CRG, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &CRG{
		cfg:          cfg,
		pllIndex:     make(map[string]*pll.Instance),
		sourceClocks: make(map[string]*timing.FreqDomain),
		domainClocks: make(map[string]*timing.FreqDomain),
		porSpecs:     make(map[string]reset.PORSpec),
		modelSpecs:   make(map[string]pll.ModelSpec),
		calSpecs:     make(map[string]calibration.Spec),
		pors:         make(map[string]*reset.POR),
		lines:        make(map[string]*reset.Line),
		models:       make(map[string]*pll.Model),
		sequencers:   make(map[string]*reset.Sequencer),
		dividers:     make(map[string]*clock.Divider),
		calibrations: make(map[string]*calibration.Controller),
	}

	steps := []func(*CRG) error{
		b.buildPlatform,
		b.registerSources,
		b.planPLLs,
		b.buildGraph,
		b.registerClocks,
		b.resolveSpecs,
	}

	for _, step := range steps {
		if err := step(c); err != nil {
			return nil, fmt.Errorf("board %q: %w", cfg.Name, err)
		}
	}

	if err := b.instantiate(c); err != nil {
		return nil, fmt.Errorf("board %q: %w", cfg.Name, err)
	}

	b.logf("%s: %d domains, %d plls, global clock %s",
		cfg.Name, len(c.order), len(c.plls), c.freq.GlobalFrequency())

	return c, nil
}

func (b Builder) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

func (b Builder) buildPlatform(c *CRG) error {
	pc := c.cfg.Platform

	toolchain, err := platform.LookupToolchain(pc.Toolchain)
	if err != nil {
		return err
	}

	io, err := platform.NewIOTable()
	if err != nil {
		return err
	}

	for _, p := range pc.Ports {
		desc := platform.PortDescriptor{
			Name:       platform.PortName(p.Name),
			Pins:       p.Pins,
			IOStandard: p.IOStandard,
			Inverted:   p.Inverted,
		}

		for _, s := range p.Subsignals {
			desc.Subsignals = append(desc.Subsignals,
				platform.Subsignal{Name: s.Name, Pins: s.Pins})
		}

		if err := io.Add(desc); err != nil {
			return err
		}
	}

	c.platform = platform.New(
		c.cfg.Name, io, platform.NewConnectorTable(pc.Connectors), toolchain)

	enabled := make([]platform.PortName, 0, len(pc.Enabled))
	for _, name := range pc.Enabled {
		enabled = append(enabled, platform.PortName(name))
	}

	c.conflicts, err = c.platform.PinConflicts(enabled)
	if err != nil {
		return err
	}

	for _, conflict := range c.conflicts {
		b.logf("warning: %s: %s", c.cfg.Name, conflict)
	}

	return nil
}

func (b Builder) registerSources(c *CRG) error {
	c.sources = clock.NewRegistry()

	for _, s := range c.cfg.Sources {
		err := c.sources.Register(clock.Source{
			Name:         s.Name,
			NominalFreq:  s.Freq,
			Differential: s.Differential,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (b Builder) planPLLs(c *CRG) error {
	for _, pc := range c.cfg.PLLs {
		family, err := b.family(c, pc)
		if err != nil {
			return fmt.Errorf("pll %q: %w", pc.Name, err)
		}

		input, err := c.sources.Get(pc.Input)
		if err != nil {
			return fmt.Errorf("pll %q: %w", pc.Name, err)
		}

		inst := pll.NewInstance(pc.Name, family, input)
		c.plls = append(c.plls, inst)
		c.pllIndex[pc.Name] = inst
	}

	for _, d := range c.cfg.Domains {
		if d.PLL == "" {
			continue
		}

		err := c.pllIndex[d.PLL].AddOutput(&clock.Output{
			Domain: d.Name,
			Freq:   d.Freq,
			Phase:  d.Phase,
			Margin: d.MarginOrDefault(),
		})
		if err != nil {
			return err
		}
	}

	for _, inst := range c.plls {
		if _, err := inst.Configure(); err != nil {
			return err
		}
	}

	return nil
}

func (b Builder) family(c *CRG, pc board.PLLConfig) (pll.Family, error) {
	if pc.Family != "" {
		return pll.LookupFamily(pc.Family)
	}

	return c.platform.DefaultPLLFamily()
}

func (b Builder) buildGraph(c *CRG) error {
	c.graph = graph.New(graph.Config{Name: c.cfg.Name})

	outputs := make(map[string]*clock.Output)

	for _, inst := range c.plls {
		for _, o := range inst.Outputs() {
			outputs[o.Domain] = o
		}
	}

	var outputOf func(d board.DomainConfig) (*clock.Output, error)
	outputOf = func(d board.DomainConfig) (*clock.Output, error) {
		if out, found := outputs[d.Name]; found {
			return out, nil
		}

		switch {
		case d.Source != "":
			src, err := c.sources.Get(d.Source)
			if err != nil {
				return nil, fmt.Errorf("domain %q: %w", d.Name, err)
			}

			outputs[d.Name] = clock.Direct(d.Name, src)
		case d.Derive != nil:
			parent, _ := c.cfg.Domain(d.Derive.From)

			po, err := outputOf(parent)
			if err != nil {
				return nil, err
			}

			outputs[d.Name] = clock.Derived(d.Name, po, d.Derive.Divide)
		}

		return outputs[d.Name], nil
	}

	for _, d := range c.cfg.Domains {
		out, err := outputOf(d)
		if err != nil {
			return err
		}

		if _, err := c.graph.AddDomain(d.Name, out); err != nil {
			return err
		}

		if d.ResetLess {
			if err := c.graph.SetResetLess(d.Name); err != nil {
				return err
			}
		}
	}

	for _, d := range c.cfg.Domains {
		if d.Derive != nil {
			if err := c.graph.SetParent(d.Name, d.Derive.From); err != nil {
				return err
			}
		}

		for _, up := range d.DependsOn {
			if err := c.graph.AddDependency(d.Name, up); err != nil {
				return err
			}
		}
	}

	for _, cal := range c.cfg.Calibration {
		if err := c.graph.MarkCalibration(cal.Domain); err != nil {
			return err
		}

		for _, client := range cal.Clients {
			if err := c.graph.AddDependency(client, cal.Domain); err != nil {
				return fmt.Errorf("calibration %q: %w", cal.Name, err)
			}
		}
	}

	c.order = c.graph.TopologicalOrder()

	return nil
}

// registerClocks derives the global cycle resolution. Domains run at their
// requested frequency; the realized one differs by at most the margin.
func (b Builder) registerClocks(c *CRG) error {
	c.freq = timing.NewFrequencyRegistry()

	for _, s := range c.sources.Sources() {
		fd, err := c.freq.RegisterFrequency(s.NominalFreq)
		if err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}

		c.sourceClocks[s.Name] = fd
	}

	for _, name := range c.order {
		d, _ := c.graph.Domain(name)

		fd, err := c.freq.RegisterFrequency(d.Clock.Freq)
		if err != nil {
			return fmt.Errorf("domain %q: %w", name, err)
		}

		c.domainClocks[name] = fd
	}

	return nil
}

func (b Builder) resolveSpecs(c *CRG) error {
	for _, p := range c.cfg.PORs {
		spec := reset.DefaultPORSpec()
		if p.Width != 0 {
			spec.Width = p.Width
			spec.ResetValue = 1<<uint(p.Width) - 1
		}

		if p.ResetValue != nil {
			spec.ResetValue = *p.ResetValue
		}

		if err := spec.Validate(); err != nil {
			return fmt.Errorf("por %q: %w", p.Name, err)
		}

		c.porSpecs[p.Name] = spec
	}

	for _, p := range c.cfg.PLLs {
		spec := b.modelSpec
		if p.LockCycles != 0 {
			spec.LockCycles = p.LockCycles
		}

		if b.neverLock[p.Name] {
			spec.NeverLock = true
		}

		if err := spec.Validate(); err != nil {
			return fmt.Errorf("pll %q: %w", p.Name, err)
		}

		c.modelSpecs[p.Name] = spec
	}

	for name := range b.neverLock {
		if _, found := c.pllIndex[name]; !found {
			return fmt.Errorf("%w: pll %q", ErrNotFound, name)
		}
	}

	for _, cal := range c.cfg.Calibration {
		spec := b.calSpec
		if cal.ResetPulseCycles != 0 {
			spec.ResetPulseCycles = cal.ResetPulseCycles
		}

		if cal.CalibrationCycles != 0 {
			spec.CalibrationCycles = cal.CalibrationCycles
		}

		if err := spec.Validate(); err != nil {
			return fmt.Errorf("calibration %q: %w", cal.Name, err)
		}

		err := spec.ValidateClock(c.domainClocks[cal.Domain].FrequencyHz())
		if err != nil {
			return fmt.Errorf("calibration %q on domain %q: %w",
				cal.Name, cal.Domain, err)
		}

		c.calSpecs[cal.Name] = spec
	}

	return nil
}

func (b Builder) instantiate(c *CRG) error {
	c.engine = b.engine
	if c.engine == nil {
		c.engine = timing.NewSerialEngine()
	}

	b.buildLines(c)

	if err := b.buildPORs(c); err != nil {
		return err
	}

	if err := b.buildModels(c); err != nil {
		return err
	}

	for _, name := range c.order {
		if err := b.buildDivider(c, name); err != nil {
			return err
		}

		if err := b.buildSequencer(c, name); err != nil {
			return err
		}
	}

	b.start(c)

	return nil
}

func (b Builder) buildLines(c *CRG) {
	for _, l := range c.cfg.ResetLines {
		polarity := signal.ActiveHigh
		if l.ActiveLow {
			polarity = signal.ActiveLow
		}

		c.lines[l.Name] = reset.NewLine(l.Name, polarity, c.engine)
		c.lineOrder = append(c.lineOrder, l.Name)
	}
}

func (b Builder) buildPORs(c *CRG) error {
	for _, p := range c.cfg.PORs {
		por, err := reset.MakePORBuilder().
			WithEngine(c.engine).
			WithClock(c.sourceClocks[p.Source]).
			WithSpec(c.porSpecs[p.Name]).
			Build(p.Name)
		if err != nil {
			return err
		}

		c.pors[p.Name] = por
	}

	return nil
}

func (b Builder) buildModels(c *CRG) error {
	for _, p := range c.cfg.PLLs {
		conds := []signal.Condition{}

		if por, found := c.porOf(p.Input); found {
			conds = append(conds, signal.Low(por.Done()))
		}

		if !p.IgnoreResetLines {
			for _, l := range c.linesNamed(p.Resets) {
				conds = append(conds, l.Condition())
			}
		}

		m, err := pll.MakeModelBuilder().
			WithEngine(c.engine).
			WithReference(c.sourceClocks[p.Input]).
			WithSpec(c.modelSpecs[p.Name]).
			WithResetConditions(conds...).
			Build(c.pllIndex[p.Name])
		if err != nil {
			return err
		}

		c.models[p.Name] = m
	}

	return nil
}

// buildDivider gates a derived clock. The divided clock stops with its
// parent clock and restarts a full period after every stop or reset clears.
func (b Builder) buildDivider(c *CRG, name string) error {
	d, _ := c.cfg.Domain(name)
	if d.Derive == nil {
		return nil
	}

	stops := []signal.Condition{}
	resets := []signal.Condition{}

	if d.Derive.Stop != "" {
		stops = append(stops, c.lines[d.Derive.Stop].Condition())
	}

	if d.Derive.Reset != "" {
		resets = append(resets, c.lines[d.Derive.Reset].Condition())
	}

	if parent, found := c.dividers[d.Derive.From]; found {
		stops = append(stops, signal.Low(parent.Running()))
	} else if root := c.cfg.Root(d); root.PLL != "" {
		stops = append(stops, signal.Low(c.models[root.PLL].Locked()))
	}

	if s, found := c.sequencers[d.Derive.From]; found {
		resets = append(resets, signal.High(s.Reset()))
	}

	div, err := clock.MakeDividerBuilder().
		WithEngine(c.engine).
		WithParent(c.domainClocks[d.Derive.From]).
		WithDivide(d.Derive.Divide).
		WithStopConditions(stops...).
		WithResetConditions(resets...).
		Build(name)
	if err != nil {
		return err
	}

	c.dividers[name] = div

	return nil
}

func (b Builder) buildSequencer(c *CRG, name string) error {
	d, _ := c.cfg.Domain(name)
	if d.ResetLess {
		return nil
	}

	lines := c.linesNamed(d.ResetLines)
	if d.Derive != nil && d.Derive.Reset != "" && !contains(lines, d.Derive.Reset) {
		lines = append(lines, c.lines[d.Derive.Reset])
	}

	sb := reset.MakeBuilder().
		WithEngine(c.engine).
		WithClock(c.domainClocks[name]).
		WithLines(lines...)

	if por, found := c.porOf(c.cfg.ReferenceOf(d)); found {
		sb = sb.WithPORDone(por.Done())
	}

	if root := c.cfg.Root(d); root.PLL != "" {
		sb = sb.WithLocks(c.models[root.PLL].Locked())
	}

	upstream := []*signal.Wire{}
	for _, dep := range c.graph.Dependencies(name) {
		upstream = append(upstream, c.sequencers[dep].Released())
	}

	sb = sb.WithUpstream(upstream...)

	gates := []signal.Condition{}

	if div, found := c.dividers[name]; found {
		gates = append(gates, signal.High(div.Running()))
	}

	for _, cal := range c.cfg.Calibration {
		for _, client := range cal.Clients {
			if client == name {
				gates = append(gates, signal.High(c.calibrations[cal.Name].Ready()))
			}
		}
	}

	s, err := sb.WithGates(gates...).Build(name)
	if err != nil {
		return err
	}

	c.sequencers[name] = s

	for _, cal := range c.cfg.Calibration {
		if cal.Domain != name {
			continue
		}

		ctrl, err := calibration.MakeBuilder().
			WithEngine(c.engine).
			WithClock(c.domainClocks[name]).
			WithDomainReset(s.Reset()).
			WithSpec(c.calSpecs[cal.Name]).
			Build(cal.Name)
		if err != nil {
			return err
		}

		c.calibrations[cal.Name] = ctrl
	}

	return nil
}

// start schedules the first edge of every component in board order.
func (b Builder) start(c *CRG) {
	for _, p := range c.cfg.PORs {
		c.pors[p.Name].TickLater()
	}

	for _, p := range c.cfg.PLLs {
		c.models[p.Name].TickLater()
	}

	for _, name := range c.order {
		if div, found := c.dividers[name]; found {
			div.TickLater()
		}
	}

	for _, s := range c.Sequencers() {
		s.TickLater()
	}

	for _, cal := range c.cfg.Calibration {
		c.calibrations[cal.Name].TickLater()
	}
}

func (c *CRG) porOf(source string) (*reset.POR, bool) {
	p, found := c.cfg.PORFor(source)
	if !found {
		return nil, false
	}

	return c.pors[p.Name], true
}

// linesNamed returns the named lines, or every non-control line when names
// is empty.
func (c *CRG) linesNamed(names []string) []*reset.Line {
	if len(names) == 0 {
		names = c.cfg.LineNames()
	}

	lines := make([]*reset.Line, 0, len(names))
	for _, n := range names {
		lines = append(lines, c.lines[n])
	}

	return lines
}

func contains(lines []*reset.Line, name string) bool {
	for _, l := range lines {
		if l.Name() == name {
			return true
		}
	}

	return false
}
