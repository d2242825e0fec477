// Package pll computes PLL configurations at elaboration time and models
// PLL lock behaviour during simulation.
package pll

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"

	"github.com/sarchlab/crg/timing"
)

// DefaultMargin is the relative frequency tolerance used when a request does
// not specify one.
const DefaultMargin = 1e-2

// ErrUnsatisfiable is wrapped by every UnsatisfiableConfiguration.
var ErrUnsatisfiable = errors.New("pll: unsatisfiable configuration")

// Reason classifies why a configuration cannot be realized.
type Reason string

// Failure reasons.
const (
	ReasonInvalidRequest      Reason = "invalid request"
	ReasonTooManyOutputs      Reason = "too many outputs"
	ReasonInputOutOfRange     Reason = "input frequency out of range"
	ReasonFrequencyOutOfRange Reason = "frequency out of range"
	ReasonUnsupportedPhase    Reason = "unsupported phase"
	ReasonNoCommonVCO         Reason = "no common VCO frequency"
)

// UnsatisfiableConfiguration names the PLL, the offending output domain(s)
// and the reason no configuration exists.
type UnsatisfiableConfiguration struct {
	PLL    string
	Domain string
	Reason Reason
	Detail string
}

func (e *UnsatisfiableConfiguration) Error() string {
	msg := fmt.Sprintf("pll %q", e.PLL)
	if e.Domain != "" {
		msg += fmt.Sprintf(", output %q", e.Domain)
	}

	msg += ": " + string(e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

// Unwrap makes errors.Is(err, ErrUnsatisfiable) hold.
func (e *UnsatisfiableConfiguration) Unwrap() error {
	return ErrUnsatisfiable
}

// Request asks for one output clock.
type Request struct {
	Domain string
	Freq   timing.FreqInHz

	// Phase in degrees, relative to the other outputs of the same PLL.
	Phase float64

	// Margin is the relative frequency tolerance. Zero means exact.
	Margin float64
}

// OutputConfig is the realized setting of one output.
type OutputConfig struct {
	Domain        string
	Requested     timing.FreqInHz
	Divider       int
	RealizedHz    float64
	Phase         float64
	PhaseTaps     int
	RealizedPhase float64
}

// Error returns the relative frequency error of the output.
func (o OutputConfig) Error() float64 {
	return math.Abs(o.RealizedHz-float64(o.Requested)) / float64(o.Requested)
}

// Config is a concrete parameter set for one PLL.
type Config struct {
	PLL         string
	Family      string
	InputFreq   timing.FreqInHz
	InputDiv    int
	FeedbackMul int
	VCOHz       float64
	Outputs     []OutputConfig
}

// Output returns the configuration of the named domain's output.
func (c *Config) Output(domain string) (OutputConfig, bool) {
	for _, o := range c.Outputs {
		if o.Domain == domain {
			return o, true
		}
	}

	return OutputConfig{}, false
}

// Describe renders the configuration in a human-readable form.
func (c *Config) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%s): fin=%s div=%d mul=%d vco=%.3fMHz\n",
		c.PLL, c.Family, c.InputFreq, c.InputDiv, c.FeedbackMul, c.VCOHz/1e6)

	for _, o := range c.Outputs {
		fmt.Fprintf(&b, "  %-12s %s -> %.6fMHz div=%d phase=%g° (err %.2e)\n",
			o.Domain, o.Requested, o.RealizedHz/1e6, o.Divider,
			o.RealizedPhase, o.Error())
	}

	return b.String()
}

// Planner searches the configuration space of one PLL family.
type Planner struct {
	family Family
}

// NewPlanner creates a planner for the family.
func NewPlanner(family Family) *Planner {
	return &Planner{family: family}
}

// Family returns the family the planner targets.
func (p *Planner) Family() Family {
	return p.family
}

// Plan finds one VCO setting and per-output dividers realizing every
// request. All outputs share the VCO, so the search is joint: a VCO is only
// accepted if every request can be met from it.
func (p *Planner) Plan(
	name string,
	fin timing.FreqInHz,
	requests []Request,
) (*Config, error) {
	if err := p.validate(name, fin, requests); err != nil {
		return nil, err
	}

	cfg, found := p.search(name, fin, requests, true)
	if found {
		return cfg, nil
	}

	return nil, p.diagnose(name, fin, requests)
}

func (p *Planner) validate(
	name string,
	fin timing.FreqInHz,
	requests []Request,
) error {
	if len(requests) == 0 {
		return &UnsatisfiableConfiguration{
			PLL: name, Reason: ReasonInvalidRequest, Detail: "no outputs requested",
		}
	}

	if len(requests) > p.family.MaxOutputs {
		return &UnsatisfiableConfiguration{
			PLL: name, Reason: ReasonTooManyOutputs,
			Detail: fmt.Sprintf("%d requested, %s has %d",
				len(requests), p.family.Name, p.family.MaxOutputs),
		}
	}

	if !p.family.InputFreq.ContainsHz(float64(fin)) {
		return &UnsatisfiableConfiguration{
			PLL: name, Reason: ReasonInputOutOfRange,
			Detail: fmt.Sprintf("%s outside [%s, %s]",
				fin, p.family.InputFreq.Min, p.family.InputFreq.Max),
		}
	}

	seen := make(map[string]bool)

	for _, r := range requests {
		switch {
		case r.Domain == "":
			return &UnsatisfiableConfiguration{
				PLL: name, Reason: ReasonInvalidRequest, Detail: "output without domain",
			}
		case seen[r.Domain]:
			return &UnsatisfiableConfiguration{
				PLL: name, Domain: r.Domain, Reason: ReasonInvalidRequest,
				Detail: "domain requested twice",
			}
		case r.Freq == 0:
			return &UnsatisfiableConfiguration{
				PLL: name, Domain: r.Domain, Reason: ReasonInvalidRequest,
				Detail: "zero frequency",
			}
		case r.Margin < 0 || r.Margin >= 1 || math.IsNaN(r.Margin):
			return &UnsatisfiableConfiguration{
				PLL: name, Domain: r.Domain, Reason: ReasonInvalidRequest,
				Detail: fmt.Sprintf("margin %g not in [0, 1)", r.Margin),
			}
		case math.IsNaN(r.Phase) || math.IsInf(r.Phase, 0):
			return &UnsatisfiableConfiguration{
				PLL: name, Domain: r.Domain, Reason: ReasonInvalidRequest,
				Detail: "phase is not a number",
			}
		}

		if float64(r.Freq)*(1-r.Margin) > float64(p.family.OutputFreq.Max) {
			return &UnsatisfiableConfiguration{
				PLL: name, Domain: r.Domain, Reason: ReasonFrequencyOutOfRange,
				Detail: fmt.Sprintf("%s above the %s output maximum %s",
					r.Freq, p.family.Name, p.family.OutputFreq.Max),
			}
		}

		seen[r.Domain] = true
	}

	return nil
}

// search walks input dividers ascending and feedback multipliers descending,
// preferring the highest VCO frequency for the smallest pre-divider. When
// withPhase is false, phases are ignored; diagnose uses this to tell
// frequency failures from phase failures.
func (p *Planner) search(
	name string,
	fin timing.FreqInHz,
	requests []Request,
	withPhase bool,
) (*Config, bool) {
	f := p.family

	vcoMin := float64(f.VCOFreq.Min) * (1 + f.VCOMargin)
	vcoMax := float64(f.VCOFreq.Max) * (1 - f.VCOMargin)

	for div := f.InputDiv.Min; div <= f.InputDiv.Max; div++ {
		pfd := float64(fin) / float64(div)
		if !f.PFDFreq.ContainsHz(pfd) {
			continue
		}

		for mul := f.FeedbackMul.Max; mul >= f.FeedbackMul.Min; mul-- {
			vco := float64(fin) * float64(mul) / float64(div)
			if vco < vcoMin || vco > vcoMax {
				continue
			}

			outputs, ok := p.fitOutputs(fin, div, mul, requests, withPhase)
			if !ok {
				continue
			}

			return &Config{
				PLL:         name,
				Family:      f.Name,
				InputFreq:   fin,
				InputDiv:    div,
				FeedbackMul: mul,
				VCOHz:       vco,
				Outputs:     outputs,
			}, true
		}
	}

	return nil, false
}

func (p *Planner) fitOutputs(
	fin timing.FreqInHz,
	div, mul int,
	requests []Request,
	withPhase bool,
) ([]OutputConfig, bool) {
	outputs := make([]OutputConfig, 0, len(requests))

	for _, r := range requests {
		out, ok := p.fitOutput(fin, div, mul, r, withPhase)
		if !ok {
			return nil, false
		}

		outputs = append(outputs, out)
	}

	return outputs, true
}

// fitOutput picks the divider realizing r closest to its target frequency.
// The frequency check is done on integers: the output is
// fin*mul/(div*d), which is within margin of f iff
// |fin*mul - f*div*d| <= f*div*d*margin. Products that do not fit in 64
// bits never match.
func (p *Planner) fitOutput(
	fin timing.FreqInHz,
	div, mul int,
	r Request,
	withPhase bool,
) (OutputConfig, bool) {
	num, ok := mulUint64(uint64(fin), uint64(mul))
	if !ok {
		return OutputConfig{}, false
	}

	best := OutputConfig{}
	bestErr := math.Inf(1)

	for _, d := range p.candidateDividers(float64(num)/float64(div), r) {
		den, ok := mulUint64(uint64(r.Freq), uint64(div))
		if ok {
			den, ok = mulUint64(den, uint64(d))
		}

		if !ok {
			continue
		}

		var diff uint64
		if num > den {
			diff = num - den
		} else {
			diff = den - num
		}

		if float64(diff) > float64(den)*r.Margin {
			continue
		}

		realized := float64(num) / float64(div) / float64(d)
		if !p.family.OutputFreq.ContainsHz(realized) {
			continue
		}

		taps, phase, ok := p.fitPhase(d, r.Phase)
		if withPhase && !ok {
			continue
		}

		relErr := float64(diff) / float64(den)
		if relErr >= bestErr {
			continue
		}

		bestErr = relErr
		best = OutputConfig{
			Domain:        r.Domain,
			Requested:     r.Freq,
			Divider:       d,
			RealizedHz:    realized,
			Phase:         r.Phase,
			PhaseTaps:     taps,
			RealizedPhase: phase,
		}
	}

	return best, !math.IsInf(bestErr, 1)
}

func mulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// candidateDividers returns every legal divider whose output may fall within
// the request's margin, with one extra divider of slack on each side to
// absorb float rounding. The exact check happens in fitOutput.
func (p *Planner) candidateDividers(vco float64, r Request) []int {
	target := float64(r.Freq)
	lo := int(math.Floor(vco/(target*(1+r.Margin)))) - 1
	hi := int(math.Ceil(vco/(target*(1-r.Margin)))) + 1

	if divs := p.family.dividers(); divs != nil {
		list := make([]int, 0, len(divs))

		for _, d := range divs {
			if d >= lo && d <= hi {
				list = append(list, d)
			}
		}

		return list
	}

	if lo < p.family.OutputDiv.Min {
		lo = p.family.OutputDiv.Min
	}

	if hi > p.family.OutputDiv.Max {
		hi = p.family.OutputDiv.Max
	}

	list := make([]int, 0, 3)
	for d := lo; d <= hi; d++ {
		list = append(list, d)
	}

	return list
}

// fitPhase expresses the requested phase as a whole number of phase taps of
// an output divided by d. The phase must be realized exactly.
func (p *Planner) fitPhase(d int, phase float64) (int, float64, bool) {
	phase = math.Mod(phase, 360)
	if phase < 0 {
		phase += 360
	}

	if phase == 0 {
		return 0, 0, true
	}

	step := p.family.PhaseStep(d)
	if step == 0 {
		return 0, 0, false
	}

	taps := phase / step
	rounded := math.Round(taps)

	if math.Abs(taps-rounded) > 1e-9*math.Max(1, rounded) {
		return 0, 0, false
	}

	return int(rounded), rounded * step, true
}

// diagnose explains a failed joint search. An output that cannot be realized
// even on its own is named with its own reason; otherwise the outputs are
// individually fine but share no VCO frequency.
func (p *Planner) diagnose(
	name string,
	fin timing.FreqInHz,
	requests []Request,
) error {
	for _, r := range requests {
		single := []Request{r}

		if _, ok := p.search(name, fin, single, true); ok {
			continue
		}

		if _, ok := p.search(name, fin, single, false); ok {
			return &UnsatisfiableConfiguration{
				PLL: name, Domain: r.Domain, Reason: ReasonUnsupportedPhase,
				Detail: fmt.Sprintf("%g° is not a multiple of any phase step of %s at %s",
					r.Phase, p.family.Name, r.Freq),
			}
		}

		return &UnsatisfiableConfiguration{
			PLL: name, Domain: r.Domain, Reason: ReasonFrequencyOutOfRange,
			Detail: fmt.Sprintf("%s within %g of %s not reachable by %s",
				r.Freq, r.Margin, fin, p.family.Name),
		}
	}

	domains := make([]string, 0, len(requests))
	for _, r := range requests {
		domains = append(domains, r.Domain)
	}

	sort.Strings(domains)

	return &UnsatisfiableConfiguration{
		PLL: name, Domain: strings.Join(domains, ","), Reason: ReasonNoCommonVCO,
		Detail: fmt.Sprintf("outputs are individually feasible from %s but share no VCO", fin),
	}
}
