package reset_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/crg/hooking"
	"github.com/sarchlab/crg/reset"
	"github.com/sarchlab/crg/signal"
	"github.com/sarchlab/crg/timing"
)

var _ = Describe("Sequencer", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *timing.SerialEngine
		clk100   *timing.FreqDomain
		clk30    *timing.FreqDomain
		porDone  *signal.Wire
		locked   *signal.Wire
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		registry := timing.NewFrequencyRegistry()

		var err error
		clk100, err = registry.RegisterFrequency(100 * timing.MHz)
		Expect(err).NotTo(HaveOccurred())
		clk30, err = registry.RegisterFrequency(30 * timing.MHz)
		Expect(err).NotTo(HaveOccurred())

		engine = timing.NewSerialEngine()
		porDone = signal.NewWire("por_done", false)
		locked = signal.NewWire("pll.locked", false)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func(name string, b reset.Builder) *reset.Sequencer {
		s, err := b.WithEngine(engine).WithClock(clk100).Build(name)
		Expect(err).NotTo(HaveOccurred())

		return s
	}

	It("should walk through every state, one per edge", func() {
		s := build("sys", reset.MakeBuilder().
			WithPORDone(porDone).
			WithLocks(locked))

		var got []reset.Transition

		hook := NewMockHook(mockCtrl)
		hook.EXPECT().
			Func(gomock.Any()).
			Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(Equal(reset.HookPosStateChange))
				got = append(got, ctx.Item.(reset.Transition))
			}).
			Times(4)
		s.AcceptHook(hook)

		porDone.Set(true)
		locked.Set(true)
		s.TickLater()
		Expect(engine.Run()).To(Succeed())

		stride := clk100.Stride()
		Expect(got).To(Equal([]reset.Transition{
			{Domain: "sys", From: reset.StateHeld, To: reset.StateWaitingPOR, Cycle: 1, Time: stride},
			{Domain: "sys", From: reset.StateWaitingPOR, To: reset.StateWaitingLock, Cycle: 2, Time: 2 * stride},
			{Domain: "sys", From: reset.StateWaitingLock, To: reset.StateWaitingUpstream, Cycle: 3, Time: 3 * stride},
			{Domain: "sys", From: reset.StateWaitingUpstream, To: reset.StateReleased, Cycle: 4, Time: 4 * stride},
		}))
		Expect(s.Reset().Value()).To(BeFalse())
		Expect(s.Released().Value()).To(BeTrue())
		Expect(engine.Pending()).To(BeZero())
	})

	It("should not release before por_done", func() {
		s := build("sys", reset.MakeBuilder().
			WithPORDone(porDone).
			WithLocks(locked))

		locked.Set(true)
		s.TickLater()
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateWaitingPOR))
		Expect(s.Reset().Value()).To(BeTrue())

		drive(engine, engine.CurrentTime()+100, porDone, true)
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))
	})

	It("should hold within one cycle of an external reset", func() {
		line := reset.NewLine("rst", signal.ActiveHigh, engine)
		s := build("sys", reset.MakeBuilder().
			WithPORDone(porDone).
			WithLocks(locked).
			WithLines(line))

		var held []timing.VTimeInCycle
		s.AcceptHook(&hooking.HookFunc{F: func(ctx hooking.HookCtx) {
			if ctx.Item.(reset.Transition).To == reset.StateHeld {
				held = append(held, ctx.Item.(reset.Transition).Time)
			}
		}})

		porDone.Set(true)
		locked.Set(true)
		s.TickLater()
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))

		assertAt := engine.CurrentTime() + 10*clk100.Stride() + 1
		line.AssertAt(assertAt)
		Expect(engine.RunUntil(assertAt + clk100.Stride())).To(Succeed())

		Expect(s.State()).To(Equal(reset.StateHeld))
		Expect(s.Reset().Value()).To(BeTrue())
		Expect(held).To(HaveLen(1))
		Expect(held[0]).To(BeNumerically("<=", assertAt+clk100.Stride()))
	})

	It("should catch a reset pulse shorter than a cycle", func() {
		line := reset.NewLine("rst_n", signal.ActiveLow, engine)
		s := build("sys", reset.MakeBuilder().WithLines(line))

		s.TickLater()
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))

		start := clk100.ThisTick(engine.CurrentTime()+1) + 1
		line.AssertAt(start)
		line.DeassertAt(start + 1)
		Expect(engine.RunUntil(clk100.NextTick(start))).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateHeld))

		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))
	})

	It("should release a reset through the synchronizer", func() {
		line := reset.NewLine("rst", signal.ActiveHigh, engine)
		s := build("sys", reset.MakeBuilder().WithLines(line))

		var first reset.Transition
		s.AcceptHook(&hooking.HookFunc{F: func(ctx hooking.HookCtx) {
			if first.Domain == "" {
				first = ctx.Item.(reset.Transition)
			}
		}})

		line.Assert()
		s.TickLater()
		line.DeassertAt(10 * clk100.Stride())
		Expect(engine.Run()).To(Succeed())

		Expect(first.From).To(Equal(reset.StateHeld))
		Expect(first.To).To(Equal(reset.StateWaitingPOR))
		Expect(first.Cycle).To(Equal(uint64(12)))
	})

	It("should fall back when the PLL loses lock", func() {
		s := build("sys", reset.MakeBuilder().
			WithPORDone(porDone).
			WithLocks(locked))

		porDone.Set(true)
		locked.Set(true)
		s.TickLater()
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))

		locked.Set(false)
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateWaitingLock))
		Expect(s.Released().Value()).To(BeFalse())

		locked.Set(true)
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))
	})

	It("should wait for gating conditions", func() {
		ready := signal.NewWire("cal.ready", false)
		s := build("dram", reset.MakeBuilder().WithGates(signal.High(ready)))

		s.TickLater()
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateWaitingUpstream))

		ready.Set(true)
		Expect(engine.Run()).To(Succeed())
		Expect(s.State()).To(Equal(reset.StateReleased))
	})

	It("should keep a dependent domain waiting while upstream never locks", func() {
		sysLock := signal.NewWire("sys_pll.locked", false)
		ethLock := signal.NewWire("eth_pll.locked", false)

		sys := build("sys", reset.MakeBuilder().
			WithPORDone(porDone).
			WithLocks(sysLock))
		eth, err := reset.MakeBuilder().
			WithEngine(engine).
			WithClock(clk30).
			WithPORDone(porDone).
			WithLocks(ethLock).
			WithUpstream(sys.Released()).
			Build("eth")
		Expect(err).NotTo(HaveOccurred())

		porDone.Set(true)
		ethLock.Set(true)
		sys.TickLater()
		eth.TickLater()

		Expect(engine.RunUntil(1_000_000)).To(Succeed())

		Expect(sys.State()).To(Equal(reset.StateWaitingLock))
		Expect(eth.State()).To(Equal(reset.StateWaitingUpstream))
		Expect(eth.Reset().Value()).To(BeTrue())
		Expect(engine.Pending()).To(BeZero())
	})

	It("should release every domain strictly after its dependencies", func() {
		registry := timing.NewFrequencyRegistry()
		c100, _ := registry.RegisterFrequency(100 * timing.MHz)
		c125, _ := registry.RegisterFrequency(125 * timing.MHz)
		c75, _ := registry.RegisterFrequency(75 * timing.MHz)
		engine = timing.NewSerialEngine()

		line := reset.NewLine("rst", signal.ActiveHigh, engine)
		locks := map[string]*signal.Wire{
			"sys":   signal.NewWire("sys.locked", false),
			"eth":   signal.NewWire("eth.locked", false),
			"video": signal.NewWire("video.locked", false),
		}

		mk := func(name string, clk *timing.FreqDomain, up ...*reset.Sequencer) *reset.Sequencer {
			released := []*signal.Wire{}
			for _, u := range up {
				released = append(released, u.Released())
			}

			s, err := reset.MakeBuilder().
				WithEngine(engine).
				WithClock(clk).
				WithLocks(locks[name]).
				WithUpstream(released...).
				WithLines(line).
				Build(name)
			Expect(err).NotTo(HaveOccurred())

			return s
		}

		sys := mk("sys", c100)
		eth := mk("eth", c125, sys)
		video := mk("video", c75, sys, eth)
		deps := map[string][]string{"eth": {"sys"}, "video": {"sys", "eth"}}
		strides := map[string]timing.VTimeInCycle{
			"sys": c100.Stride(), "eth": c125.Stride(), "video": c75.Stride(),
		}

		lastReleased := map[string]timing.VTimeInCycle{}
		isReleased := map[string]bool{}
		heldAfterReset := map[string]timing.VTimeInCycle{}
		const resetAt = 5003

		recorder := &hooking.HookFunc{F: func(ctx hooking.HookCtx) {
			t := ctx.Item.(reset.Transition)

			if t.To == reset.StateReleased {
				for _, d := range deps[t.Domain] {
					Expect(isReleased[d]).To(BeTrue(), "%s released before %s", t.Domain, d)
					Expect(lastReleased[d]).To(BeNumerically("<", t.Time))
				}

				lastReleased[t.Domain] = t.Time
			}

			if t.To == reset.StateHeld && t.Time >= resetAt {
				if _, found := heldAfterReset[t.Domain]; !found {
					heldAfterReset[t.Domain] = t.Time
				}
			}

			isReleased[t.Domain] = t.To == reset.StateReleased
		}}

		for _, s := range []*reset.Sequencer{sys, eth, video} {
			s.AcceptHook(recorder)
			s.TickLater()
		}

		drive(engine, 40, locks["video"], true)
		drive(engine, 90, locks["eth"], true)
		drive(engine, 300, locks["sys"], true)
		drive(engine, 2000, locks["sys"], false)
		drive(engine, 2300, locks["sys"], true)
		line.AssertAt(resetAt)
		line.DeassertAt(resetAt + 100)
		drive(engine, 7000, locks["eth"], false)
		drive(engine, 7005, locks["eth"], true)

		Expect(engine.RunUntil(20000)).To(Succeed())

		for name, stride := range strides {
			Expect(heldAfterReset).To(HaveKey(name))
			Expect(heldAfterReset[name]).To(BeNumerically("<=", resetAt+stride))
		}

		Expect(sys.State()).To(Equal(reset.StateReleased))
		Expect(eth.State()).To(Equal(reset.StateReleased))
		Expect(video.State()).To(Equal(reset.StateReleased))
	})
})
