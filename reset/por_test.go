package reset_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/reset"
	"github.com/sarchlab/crg/timing"
)

var _ = Describe("POR", func() {
	var (
		engine *timing.SerialEngine
		clk30  *timing.FreqDomain
	)

	BeforeEach(func() {
		registry := timing.NewFrequencyRegistry()

		var err error
		clk30, err = registry.RegisterFrequency(30 * timing.MHz)
		Expect(err).NotTo(HaveOccurred())
		_, err = registry.RegisterFrequency(48 * timing.MHz)
		Expect(err).NotTo(HaveOccurred())

		engine = timing.NewSerialEngine()
	})

	It("should assert done on cycle 65536 for a reset value of 65535", func() {
		por, err := reset.MakePORBuilder().
			WithEngine(engine).
			WithClock(clk30).
			Build("por")
		Expect(err).NotTo(HaveOccurred())
		Expect(por.Spec.ResetValue).To(Equal(uint64(65535)))

		probe := &timeProbe{engine: engine}
		por.Done().Observe(probe)

		por.TickLater()

		Expect(engine.RunUntil(65535 * clk30.Stride())).To(Succeed())
		Expect(por.Remaining()).To(BeZero())
		Expect(por.Done().Value()).To(BeFalse())

		Expect(engine.Run()).To(Succeed())
		Expect(por.Done().Value()).To(BeTrue())
		Expect(probe.times).To(Equal([]timing.VTimeInCycle{65536 * clk30.Stride()}))
		Expect(clk30.Cycle(probe.times[0])).To(Equal(uint64(65536)))
	})

	It("should support short counters", func() {
		por, err := reset.MakePORBuilder().
			WithEngine(engine).
			WithClock(clk30).
			WithSpec(reset.PORSpec{Width: 4, ResetValue: 15}).
			Build("por")
		Expect(err).NotTo(HaveOccurred())

		probe := &timeProbe{engine: engine}
		por.Done().Observe(probe)

		por.TickLater()
		Expect(engine.Run()).To(Succeed())
		Expect(probe.times).To(Equal([]timing.VTimeInCycle{16 * clk30.Stride()}))
	})

	It("should reject a reset value wider than the counter", func() {
		_, err := reset.MakePORBuilder().
			WithEngine(engine).
			WithClock(clk30).
			WithSpec(reset.PORSpec{Width: 4, ResetValue: 16}).
			Build("por")
		Expect(err).To(HaveOccurred())
	})
})
