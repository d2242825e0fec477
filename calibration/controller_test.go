package calibration_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/calibration"
	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

type release struct {
	wire  *signal.Wire
	value bool
}

type releaser struct{}

func (releaser) Handle(event any) error {
	r := event.(release)
	r.wire.Set(r.value)

	return nil
}

type edgeProbe struct {
	engine timing.TimeTeller
	wire   *signal.Wire
	rises  []timing.VTimeInCycle
	falls  []timing.VTimeInCycle
}

func (p *edgeProbe) Wake() {
	if p.wire.Value() {
		p.rises = append(p.rises, p.engine.CurrentTime())
		return
	}

	p.falls = append(p.falls, p.engine.CurrentTime())
}

var _ = Describe("Controller", func() {
	var (
		engine   *timing.SerialEngine
		registry *timing.FrequencyRegistry
		clk200   *timing.FreqDomain
		rst      *signal.Wire
	)

	BeforeEach(func() {
		registry = timing.NewFrequencyRegistry()

		var err error
		clk200, err = registry.RegisterFrequency(200 * timing.MHz)
		Expect(err).NotTo(HaveOccurred())

		engine = timing.NewSerialEngine()
		rst = signal.NewWire("idelay.rst", true)
	})

	set := func(t timing.VTimeInCycle, v bool) {
		engine.Schedule(timing.ScheduledEvent{
			Event: release{wire: rst, value: v}, Time: t, Handler: releaser{},
		})
	}

	build := func() *calibration.Controller {
		spec := calibration.DefaultSpec()
		spec.CalibrationCycles = 8

		c, err := calibration.MakeBuilder().
			WithEngine(engine).
			WithClock(clk200).
			WithDomainReset(rst).
			WithSpec(spec).
			Build("idelayctrl")
		Expect(err).NotTo(HaveOccurred())

		return c
	}

	It("should stay idle while the domain is held", func() {
		c := build()

		c.TickLater()
		Expect(engine.Run()).To(Succeed())

		Expect(c.CalibrationReset().Value()).To(BeTrue())
		Expect(c.Ready().Value()).To(BeFalse())
		Expect(engine.Pending()).To(BeZero())
	})

	It("should pulse reset for 16 cycles, then calibrate", func() {
		c := build()
		calReset := &edgeProbe{engine: engine, wire: c.CalibrationReset()}
		c.CalibrationReset().Observe(calReset)
		ready := &edgeProbe{engine: engine, wire: c.Ready()}
		c.Ready().Observe(ready)

		c.TickLater()
		set(10, false)
		Expect(engine.Run()).To(Succeed())

		Expect(calReset.falls).To(Equal([]timing.VTimeInCycle{26}))
		Expect(ready.rises).To(Equal([]timing.VTimeInCycle{34}))
		Expect(c.Ready().Value()).To(BeTrue())
	})

	It("should clear ready when the domain is reset", func() {
		c := build()

		c.TickLater()
		set(10, false)
		set(100, true)
		Expect(engine.RunUntil(99)).To(Succeed())
		Expect(c.Ready().Value()).To(BeTrue())

		Expect(engine.Run()).To(Succeed())
		Expect(c.Ready().Value()).To(BeFalse())
		Expect(c.CalibrationReset().Value()).To(BeTrue())

		set(engine.CurrentTime()+5, false)
		Expect(engine.Run()).To(Succeed())
		Expect(c.Ready().Value()).To(BeTrue())
	})

	It("should refuse a reference clock outside 200-400 MHz", func() {
		clk100, err := registry.RegisterFrequency(100 * timing.MHz)
		Expect(err).NotTo(HaveOccurred())

		_, err = calibration.MakeBuilder().
			WithEngine(engine).
			WithClock(clk100).
			WithDomainReset(rst).
			Build("idelayctrl")
		Expect(err).To(MatchError(calibration.ErrReferenceOutOfRange))

		Expect(calibration.DefaultSpec().ValidateClock(400 * timing.MHz)).To(Succeed())
	})
})
