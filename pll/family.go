package pll

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sarchlab/crg/timing"
)

// ErrUnknownFamily is returned when looking up a PLL primitive that is not
// described.
var ErrUnknownFamily = errors.New("pll: unknown family")

// Range is an inclusive integer range.
type Range struct {
	Min, Max int
}

// Contains reports whether v is inside the range.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// FreqRange is an inclusive frequency range. A zero Max means unbounded.
type FreqRange struct {
	Min, Max timing.FreqInHz
}

// ContainsHz reports whether the frequency (in Hz, possibly fractional) is
// inside the range.
func (r FreqRange) ContainsHz(f float64) bool {
	if f < float64(r.Min) {
		return false
	}

	return r.Max == 0 || f <= float64(r.Max)
}

// Family describes the legal configuration space of one PLL primitive.
//
// The synthesized VCO frequency is Fin * FeedbackMul / InputDiv and each
// output runs at VCO / OutputDiv.
type Family struct {
	Name string

	InputFreq   FreqRange
	PFDFreq     FreqRange
	VCOFreq     FreqRange
	OutputFreq  FreqRange
	InputDiv    Range
	FeedbackMul Range

	// OutputDiv is the divider range of every output. OutputDivs, if set,
	// replaces it with an explicit list of legal dividers.
	OutputDiv  Range
	OutputDivs []int

	// VCOMargin shrinks the VCO range on both ends.
	VCOMargin float64

	MaxOutputs int

	// PhaseSteps is the number of phase positions per VCO period. An output
	// divided by d can therefore shift in steps of 360/(d*PhaseSteps)
	// degrees. Zero means the primitive cannot shift phase.
	PhaseSteps int
}

// dividers lists the legal output dividers in ascending order.
func (f Family) dividers() []int {
	if len(f.OutputDivs) > 0 {
		return f.OutputDivs
	}

	return nil
}

// PhaseStep returns the phase resolution in degrees of an output divided by
// d, or 0 when phase shifting is unsupported.
func (f Family) PhaseStep(d int) float64 {
	if f.PhaseSteps == 0 || d <= 0 {
		return 0
	}

	return 360 / float64(d*f.PhaseSteps)
}

func (f Family) String() string {
	return f.Name
}

// Built-in families, with ranges taken from the vendor clocking cores.
var (
	ECP5PLL = Family{
		Name:        "ECP5PLL",
		InputFreq:   FreqRange{8 * timing.MHz, 400 * timing.MHz},
		PFDFreq:     FreqRange{3125 * timing.KHz, 400 * timing.MHz},
		VCOFreq:     FreqRange{400 * timing.MHz, 800 * timing.MHz},
		OutputFreq:  FreqRange{3125 * timing.KHz, 400 * timing.MHz},
		InputDiv:    Range{1, 128},
		FeedbackMul: Range{1, 128},
		OutputDiv:   Range{1, 128},
		MaxOutputs:  4,
		PhaseSteps:  8,
	}

	S7PLL = Family{
		Name:        "S7PLL",
		InputFreq:   FreqRange{19 * timing.MHz, 800 * timing.MHz},
		PFDFreq:     FreqRange{19 * timing.MHz, 450 * timing.MHz},
		VCOFreq:     FreqRange{800 * timing.MHz, 1600 * timing.MHz},
		OutputFreq:  FreqRange{6250 * timing.KHz, 800 * timing.MHz},
		InputDiv:    Range{1, 56},
		FeedbackMul: Range{2, 64},
		OutputDiv:   Range{1, 128},
		MaxOutputs:  6,
		PhaseSteps:  8,
	}

	S7MMCM = Family{
		Name:        "S7MMCM",
		InputFreq:   FreqRange{10 * timing.MHz, 800 * timing.MHz},
		PFDFreq:     FreqRange{10 * timing.MHz, 450 * timing.MHz},
		VCOFreq:     FreqRange{600 * timing.MHz, 1440 * timing.MHz},
		OutputFreq:  FreqRange{4690 * timing.KHz, 800 * timing.MHz},
		InputDiv:    Range{1, 106},
		FeedbackMul: Range{2, 64},
		OutputDiv:   Range{1, 128},
		MaxOutputs:  7,
		PhaseSteps:  8,
	}

	USMMCM = Family{
		Name:        "USMMCM",
		InputFreq:   FreqRange{10 * timing.MHz, 800 * timing.MHz},
		PFDFreq:     FreqRange{10 * timing.MHz, 500 * timing.MHz},
		VCOFreq:     FreqRange{800 * timing.MHz, 1600 * timing.MHz},
		OutputFreq:  FreqRange{6250 * timing.KHz, 850 * timing.MHz},
		InputDiv:    Range{1, 106},
		FeedbackMul: Range{2, 128},
		OutputDiv:   Range{1, 128},
		MaxOutputs:  7,
		PhaseSteps:  8,
	}

	CycloneIVPLL = Family{
		Name:        "CycloneIVPLL",
		InputFreq:   FreqRange{5 * timing.MHz, 472500 * timing.KHz},
		PFDFreq:     FreqRange{5 * timing.MHz, 325 * timing.MHz},
		VCOFreq:     FreqRange{600 * timing.MHz, 1300 * timing.MHz},
		OutputFreq:  FreqRange{0, 472500 * timing.KHz},
		InputDiv:    Range{1, 512},
		FeedbackMul: Range{1, 512},
		OutputDiv:   Range{1, 512},
		MaxOutputs:  5,
		PhaseSteps:  8,
	}

	ICE40PLL = Family{
		Name:        "ICE40PLL",
		InputFreq:   FreqRange{10 * timing.MHz, 133 * timing.MHz},
		PFDFreq:     FreqRange{10 * timing.MHz, 133 * timing.MHz},
		VCOFreq:     FreqRange{533 * timing.MHz, 1066 * timing.MHz},
		OutputFreq:  FreqRange{16 * timing.MHz, 275 * timing.MHz},
		InputDiv:    Range{1, 16},
		FeedbackMul: Range{1, 128},
		OutputDivs:  []int{2, 4, 8, 16, 32, 64},
		MaxOutputs:  1,
	}
)

var families = map[string]Family{}

func init() {
	for _, f := range []Family{
		ECP5PLL, S7PLL, S7MMCM, USMMCM, CycloneIVPLL, ICE40PLL,
	} {
		families[strings.ToLower(f.Name)] = f
	}
}

// LookupFamily finds a built-in family by name, ignoring case.
func LookupFamily(name string) (Family, error) {
	f, found := families[strings.ToLower(name)]
	if !found {
		return Family{}, fmt.Errorf("%w: %q", ErrUnknownFamily, name)
	}

	return f, nil
}

// FamilyNames lists the built-in families.
func FamilyNames() []string {
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.Name)
	}

	sort.Strings(names)

	return names
}
