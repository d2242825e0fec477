package pll_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/clock"
	"github.com/sarchlab/crg/pll"
	"github.com/sarchlab/crg/timing"
)

var _ = Describe("Instance", func() {
	var (
		clk25 clock.Source
		inst  *pll.Instance
	)

	BeforeEach(func() {
		clk25 = clock.Source{Name: "clk25", NominalFreq: 25 * timing.MHz}
		inst = pll.NewInstance("sys_pll", pll.ECP5PLL, clk25)
	})

	It("should own its outputs", func() {
		sys := &clock.Output{Domain: "sys", Freq: 125 * timing.MHz, Margin: pll.DefaultMargin}
		Expect(inst.AddOutput(sys)).To(Succeed())

		Expect(sys.PLL).To(Equal("sys_pll"))
		Expect(sys.Reference).To(Equal("clk25"))
		Expect(sys.IsDirect()).To(BeFalse())

		other := pll.NewInstance("other", pll.ECP5PLL, clk25)
		Expect(other.AddOutput(sys)).To(MatchError(pll.ErrOutputOwned))
		Expect(other.Outputs()).To(BeEmpty())
	})

	It("should write realized values back into the outputs", func() {
		sys := &clock.Output{Domain: "sys", Freq: 125 * timing.MHz, Margin: pll.DefaultMargin}
		ps := &clock.Output{Domain: "sys_ps", Freq: 125 * timing.MHz, Phase: 180, Margin: pll.DefaultMargin}
		Expect(inst.AddOutput(sys)).To(Succeed())
		Expect(inst.AddOutput(ps)).To(Succeed())

		cfg, err := inst.Configure()
		Expect(err).NotTo(HaveOccurred())
		Expect(inst.Config()).To(BeIdenticalTo(cfg))

		Expect(sys.Divider).To(Equal(6))
		Expect(sys.RealizedHz).To(Equal(125e6))
		Expect(ps.RealizedPhase).To(Equal(180.0))
		Expect(ps.Error()).To(BeZero())
	})

	It("should be configured only once", func() {
		Expect(inst.AddOutput(&clock.Output{Domain: "sys", Freq: 50 * timing.MHz})).To(Succeed())
		_, err := inst.Configure()
		Expect(err).NotTo(HaveOccurred())

		_, err = inst.Configure()
		Expect(err).To(MatchError(pll.ErrAlreadyConfigured))

		err = inst.AddOutput(&clock.Output{Domain: "late", Freq: 25 * timing.MHz})
		Expect(err).To(MatchError(pll.ErrAlreadyConfigured))
	})

	It("should report an unsatisfiable output", func() {
		Expect(inst.AddOutput(&clock.Output{Domain: "sys", Freq: timing.GHz})).To(Succeed())

		_, err := inst.Configure()
		Expect(err).To(MatchError(pll.ErrUnsatisfiable))
		Expect(err.Error()).To(ContainSubstring(`output "sys"`))
		Expect(inst.Config()).To(BeNil())
	})
})
