package clock_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/clock"
	"github.com/sarchlab/crg/timing"
)

var _ = Describe("Registry", func() {
	var r *clock.Registry

	BeforeEach(func() {
		r = clock.NewRegistry()
	})

	It("should register and look up sources", func() {
		Expect(r.Register(clock.Source{Name: "clk200", NominalFreq: 200 * timing.MHz, Differential: true})).To(Succeed())
		Expect(r.Register(clock.Source{Name: "clk25", NominalFreq: 25 * timing.MHz})).To(Succeed())

		s, err := r.Get("clk200")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Differential).To(BeTrue())
		Expect(s.String()).To(Equal("clk200@200MHz"))

		names := []string{}
		for _, s := range r.Sources() {
			names = append(names, s.Name)
		}
		Expect(names).To(Equal([]string{"clk200", "clk25"}))
	})

	It("should reject duplicates", func() {
		Expect(r.Register(clock.Source{Name: "clk", NominalFreq: timing.MHz})).To(Succeed())

		err := r.Register(clock.Source{Name: "clk", NominalFreq: 2 * timing.MHz})
		Expect(err).To(MatchError(clock.ErrDuplicateSource))

		s, _ := r.Get("clk")
		Expect(s.NominalFreq).To(Equal(timing.MHz))
	})

	It("should reject invalid sources", func() {
		Expect(r.Register(clock.Source{NominalFreq: timing.MHz})).To(MatchError(clock.ErrInvalidSource))
		Expect(r.Register(clock.Source{Name: "x"})).To(MatchError(clock.ErrInvalidSource))
	})

	It("should report unknown sources", func() {
		_, err := r.Get("missing")
		Expect(err).To(MatchError(clock.ErrSourceNotFound))
	})
})

var _ = Describe("Output", func() {
	It("should forward a reference directly", func() {
		o := clock.Direct("por", clock.Source{Name: "clk48", NominalFreq: 48 * timing.MHz})

		Expect(o.IsDirect()).To(BeTrue())
		Expect(o.Error()).To(BeZero())
		Expect(o.String()).To(Equal("por <- clk48 (48MHz @ 0°)"))
	})

	It("should compute the relative error", func() {
		o := &clock.Output{Freq: 100 * timing.MHz, RealizedHz: 99e6, PLL: "pll"}

		Expect(o.IsDirect()).To(BeFalse())
		Expect(o.Error()).To(BeNumerically("~", 0.01, 1e-12))
	})
})
