// Package board holds per-board clocking tables: which oscillators exist,
// which PLLs derive which domains, and how the domains depend on each other.
package board

import (
	"errors"
	"fmt"

	"github.com/sarchlab/crg/pll"
	"github.com/sarchlab/crg/timing"
)

// ErrInvalidConfig is wrapped by every structural error of a board table.
var ErrInvalidConfig = errors.New("board: invalid configuration")

// Config is the clocking table of one board.
type Config struct {
	Name        string              `yaml:"name"`
	Platform    PlatformConfig      `yaml:"platform"`
	Sources     []SourceConfig      `yaml:"sources"`
	PORs        []PORConfig         `yaml:"pors,omitempty"`
	ResetLines  []ResetLineConfig   `yaml:"reset_lines,omitempty"`
	PLLs        []PLLConfig         `yaml:"plls,omitempty"`
	Domains     []DomainConfig      `yaml:"domains"`
	Calibration []CalibrationConfig `yaml:"calibration,omitempty"`
}

// PlatformConfig describes the board's IO capabilities.
type PlatformConfig struct {
	Toolchain  string            `yaml:"toolchain"`
	Ports      []PortConfig      `yaml:"ports,omitempty"`
	Connectors map[string]string `yaml:"connectors,omitempty"`

	// Enabled lists the ports in use; they are checked for shared pins.
	Enabled []string `yaml:"enabled,omitempty"`
}

// PortConfig is one IO resource.
type PortConfig struct {
	Name       string            `yaml:"name"`
	Pins       []string          `yaml:"pins,omitempty"`
	Subsignals []SubsignalConfig `yaml:"subsignals,omitempty"`
	IOStandard string            `yaml:"io_standard,omitempty"`
	Inverted   bool              `yaml:"inverted,omitempty"`
}

// SubsignalConfig is a named pin group of a port.
type SubsignalConfig struct {
	Name string   `yaml:"name"`
	Pins []string `yaml:"pins"`
}

// SourceConfig is an input oscillator.
type SourceConfig struct {
	Name         string          `yaml:"name"`
	Freq         timing.FreqInHz `yaml:"freq_hz"`
	Differential bool            `yaml:"differential,omitempty"`
	Port         string          `yaml:"port,omitempty"`
}

// PORConfig is a power-on-reset counter on one reference source.
type PORConfig struct {
	Name       string  `yaml:"name"`
	Source     string  `yaml:"source"`
	Width      int     `yaml:"width,omitempty"`
	ResetValue *uint64 `yaml:"reset_value,omitempty"`
}

// ResetLineConfig is an external reset request.
type ResetLineConfig struct {
	Name      string `yaml:"name"`
	ActiveLow bool   `yaml:"active_low,omitempty"`
	Port      string `yaml:"port,omitempty"`

	// Control lines are driven by logic rather than a pin. They only act
	// where named and never join the every-line defaults.
	Control bool `yaml:"control,omitempty"`
}

// PLLConfig is one PLL primitive.
type PLLConfig struct {
	Name string `yaml:"name"`

	// Family defaults to the toolchain's PLL family.
	Family string `yaml:"family,omitempty"`
	Input  string `yaml:"input"`

	// Resets names the reset lines feeding the PLL reset. Empty means every
	// non-control line of the board, unless IgnoreResetLines is set.
	Resets           []string `yaml:"resets,omitempty"`
	IgnoreResetLines bool     `yaml:"ignore_reset_lines,omitempty"`

	// LockCycles is the simulated lock time in input cycles.
	LockCycles uint64 `yaml:"lock_cycles,omitempty"`
}

// DomainConfig is one clock domain.
type DomainConfig struct {
	Name string `yaml:"name"`

	// Exactly one of PLL, Source and Derive is set.
	PLL    string        `yaml:"pll,omitempty"`
	Source string        `yaml:"source,omitempty"`
	Derive *DeriveConfig `yaml:"derive,omitempty"`

	Freq   timing.FreqInHz `yaml:"freq_hz,omitempty"`
	Phase  float64         `yaml:"phase,omitempty"`
	Margin *float64        `yaml:"margin,omitempty"`

	DependsOn []string `yaml:"depends_on,omitempty"`
	ResetLess bool     `yaml:"reset_less,omitempty"`

	// ResetLines defaults to every non-control line of the board.
	ResetLines []string `yaml:"reset_lines,omitempty"`
}

// DeriveConfig clocks a domain from another domain's clock through a
// divider, the way an ECLKSYNCB/CLKDIVF pair feeds a DDR PHY.
type DeriveConfig struct {
	From   string `yaml:"from"`
	Divide int    `yaml:"divide"`

	// Stop gates the divided clock while the line is asserted.
	Stop string `yaml:"stop,omitempty"`

	// Reset holds the divider while the line is asserted.
	Reset string `yaml:"reset,omitempty"`
}

// MarginOrDefault returns the configured margin or pll.DefaultMargin.
func (d DomainConfig) MarginOrDefault() float64 {
	if d.Margin == nil {
		return pll.DefaultMargin
	}

	return *d.Margin
}

// CalibrationConfig is a delay calibration controller.
type CalibrationConfig struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`

	// Clients are the DRAM PHY domains waiting for calibration.
	Clients []string `yaml:"clients"`

	ResetPulseCycles  uint64 `yaml:"reset_pulse_cycles,omitempty"`
	CalibrationCycles uint64 `yaml:"calibration_cycles,omitempty"`
}

// Exact returns a pointer to a zero margin.
func Exact() *float64 {
	return Margin(0)
}

// Margin returns a pointer to m.
func Margin(m float64) *float64 {
	return &m
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Source returns the named source.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}

	return SourceConfig{}, false
}

// PLL returns the named PLL.
func (c *Config) PLL(name string) (PLLConfig, bool) {
	for _, p := range c.PLLs {
		if p.Name == name {
			return p, true
		}
	}

	return PLLConfig{}, false
}

// Domain returns the named domain.
func (c *Config) Domain(name string) (DomainConfig, bool) {
	for _, d := range c.Domains {
		if d.Name == name {
			return d, true
		}
	}

	return DomainConfig{}, false
}

// Root follows the derivation chain of d up to the domain that a PLL or a
// source clocks directly.
func (c *Config) Root(d DomainConfig) DomainConfig {
	for i := 0; d.Derive != nil && i <= len(c.Domains); i++ {
		parent, ok := c.Domain(d.Derive.From)
		if !ok {
			break
		}

		d = parent
	}

	return d
}

// ReferenceOf returns the oscillator at the root of a domain's clock tree.
func (c *Config) ReferenceOf(d DomainConfig) string {
	d = c.Root(d)

	if d.Source != "" {
		return d.Source
	}

	p, _ := c.PLL(d.PLL)

	return p.Input
}

// FreqOf returns the frequency a domain runs at once its PLL is planned.
// Derived domains divide their parent's frequency.
func (c *Config) FreqOf(d DomainConfig) timing.FreqInHz {
	if d.Derive != nil {
		parent, ok := c.Domain(d.Derive.From)
		if !ok || d.Derive.Divide < 1 || parent.Name == d.Name {
			return 0
		}

		return c.FreqOf(parent) / timing.FreqInHz(d.Derive.Divide)
	}

	if d.Source != "" && d.Freq == 0 {
		s, _ := c.Source(d.Source)
		return s.Freq
	}

	return d.Freq
}

// LineNames returns the reset lines that act by default, leaving out
// control lines.
func (c *Config) LineNames() []string {
	names := []string{}

	for _, l := range c.ResetLines {
		if !l.Control {
			names = append(names, l.Name)
		}
	}

	return names
}

// PORFor returns the power-on-reset counter running on a reference source.
func (c *Config) PORFor(source string) (PORConfig, bool) {
	for _, p := range c.PORs {
		if p.Source == source {
			return p, true
		}
	}

	return PORConfig{}, false
}

// Validate checks the table for structural errors. It does not plan PLLs.
func (c *Config) Validate() error {
	if c.Name == "" {
		return invalid("board without name")
	}

	checks := []func() error{
		c.validateSources,
		c.validatePORs,
		c.validateLines,
		c.validatePLLs,
		c.validateDomains,
		c.validateCalibration,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("board %q: %w", c.Name, err)
		}
	}

	return nil
}

func unique(kind string, names []string) error {
	seen := make(map[string]bool)

	for _, n := range names {
		if n == "" {
			return invalid("%s without name", kind)
		}

		if seen[n] {
			return invalid("%s %q declared twice", kind, n)
		}

		seen[n] = true
	}

	return nil
}

func (c *Config) validateSources() error {
	if len(c.Sources) == 0 {
		return invalid("no reference sources")
	}

	names := []string{}

	for _, s := range c.Sources {
		if s.Freq == 0 {
			return invalid("source %q has no frequency", s.Name)
		}

		names = append(names, s.Name)
	}

	return unique("source", names)
}

func (c *Config) validatePORs() error {
	names := []string{}
	trees := make(map[string]string)

	for _, p := range c.PORs {
		if _, ok := c.Source(p.Source); !ok {
			return invalid("por %q on unknown source %q", p.Name, p.Source)
		}

		if other, dup := trees[p.Source]; dup {
			return invalid("source %q has two por counters, %q and %q",
				p.Source, other, p.Name)
		}

		trees[p.Source] = p.Name
		names = append(names, p.Name)
	}

	return unique("por", names)
}

func (c *Config) validateLines() error {
	names := []string{}
	for _, l := range c.ResetLines {
		names = append(names, l.Name)
	}

	return unique("reset line", names)
}

func (c *Config) hasLine(name string) bool {
	for _, l := range c.ResetLines {
		if l.Name == name {
			return true
		}
	}

	return false
}

func (c *Config) validatePLLs() error {
	names := []string{}

	for _, p := range c.PLLs {
		if _, ok := c.Source(p.Input); !ok {
			return invalid("pll %q fed by unknown source %q", p.Name, p.Input)
		}

		if p.Family != "" {
			if _, err := pll.LookupFamily(p.Family); err != nil {
				return fmt.Errorf("pll %q: %w", p.Name, err)
			}
		}

		if p.IgnoreResetLines && len(p.Resets) > 0 {
			return invalid("pll %q both names and ignores reset lines", p.Name)
		}

		for _, r := range p.Resets {
			if !c.hasLine(r) {
				return invalid("pll %q reset by unknown line %q", p.Name, r)
			}
		}

		names = append(names, p.Name)
	}

	return unique("pll", names)
}

func (c *Config) validateDomains() error {
	names := []string{}

	for _, d := range c.Domains {
		if err := c.validateDomain(d); err != nil {
			return err
		}

		names = append(names, d.Name)
	}

	if err := unique("domain", names); err != nil {
		return err
	}

	for _, d := range c.Domains {
		for _, dep := range d.DependsOn {
			if _, ok := c.Domain(dep); !ok {
				return invalid("domain %q depends on unknown domain %q", d.Name, dep)
			}
		}

		if d.Derive != nil {
			if err := c.validateDerive(d); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Config) validateDerive(d DomainConfig) error {
	seen := map[string]bool{d.Name: true}

	for p := d; p.Derive != nil; {
		parent, ok := c.Domain(p.Derive.From)
		if !ok {
			return invalid("domain %q derived from unknown domain %q", p.Name, p.Derive.From)
		}

		if seen[parent.Name] {
			return invalid("domain %q derives its clock from itself", d.Name)
		}

		seen[parent.Name] = true
		p = parent
	}

	parent, _ := c.Domain(d.Derive.From)

	if f := c.FreqOf(parent); f%timing.FreqInHz(d.Derive.Divide) != 0 {
		return invalid("domain %q cannot divide %s by %d", d.Name, f, d.Derive.Divide)
	}

	if d.Freq != 0 && d.Freq != c.FreqOf(d) {
		return invalid("domain %q asks %s but %q / %d is %s",
			d.Name, d.Freq, parent.Name, d.Derive.Divide, c.FreqOf(d))
	}

	return nil
}

func (c *Config) validateDomain(d DomainConfig) error {
	switch {
	case d.PLL != "" && d.Source != "":
		return invalid("domain %q has both a pll and a source", d.Name)
	case d.Derive != nil && (d.PLL != "" || d.Source != ""):
		return invalid("domain %q is derived and has its own clock", d.Name)
	case d.Derive != nil:
		if err := c.validateDivider(d); err != nil {
			return err
		}
	case d.PLL != "":
		if _, ok := c.PLL(d.PLL); !ok {
			return invalid("domain %q on unknown pll %q", d.Name, d.PLL)
		}

		if d.Freq == 0 {
			return invalid("domain %q has no frequency", d.Name)
		}
	case d.Source != "":
		s, ok := c.Source(d.Source)
		if !ok {
			return invalid("domain %q on unknown source %q", d.Name, d.Source)
		}

		if d.Freq != 0 && d.Freq != s.Freq {
			return invalid("domain %q asks %s from %q (%s) without a pll",
				d.Name, d.Freq, s.Name, s.Freq)
		}

		if d.Phase != 0 {
			return invalid("domain %q shifts phase without a pll", d.Name)
		}
	default:
		return invalid("domain %q has neither pll nor source", d.Name)
	}

	if m := d.MarginOrDefault(); m < 0 || m >= 1 {
		return invalid("domain %q margin %g not in [0, 1)", d.Name, m)
	}

	if d.ResetLess && len(d.DependsOn) > 0 {
		return invalid("reset-less domain %q cannot depend on other domains", d.Name)
	}

	for _, l := range d.ResetLines {
		if !c.hasLine(l) {
			return invalid("domain %q reset by unknown line %q", d.Name, l)
		}
	}

	return nil
}

func (c *Config) validateDivider(d DomainConfig) error {
	div := d.Derive

	if div.From == d.Name {
		return invalid("domain %q derives its clock from itself", d.Name)
	}

	if div.Divide < 1 {
		return invalid("domain %q divides by %d", d.Name, div.Divide)
	}

	if d.Phase != 0 {
		return invalid("domain %q shifts phase through a divider", d.Name)
	}

	for _, l := range []string{div.Stop, div.Reset} {
		if l != "" && !c.hasLine(l) {
			return invalid("domain %q divider on unknown line %q", d.Name, l)
		}
	}

	return nil
}

func (c *Config) validateCalibration() error {
	names := []string{}

	for _, cal := range c.Calibration {
		d, ok := c.Domain(cal.Domain)
		if !ok {
			return invalid("calibration %q on unknown domain %q", cal.Name, cal.Domain)
		}

		if d.ResetLess {
			return invalid("calibration %q on reset-less domain %q", cal.Name, cal.Domain)
		}

		for _, client := range cal.Clients {
			if _, ok := c.Domain(client); !ok {
				return invalid("calibration %q serves unknown domain %q", cal.Name, client)
			}
		}

		names = append(names, cal.Name)
	}

	return unique("calibration", names)
}
