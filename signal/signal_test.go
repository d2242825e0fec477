package signal_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/signal"
)

type wakeCounter struct {
	n int
}

func (w *wakeCounter) Wake() { w.n++ }

var _ = Describe("Wire", func() {
	It("should only wake observers on a change", func() {
		w := signal.NewWire("locked", false)
		obs := &wakeCounter{}
		w.Observe(obs)

		w.Set(false)
		Expect(obs.n).To(Equal(0))

		w.Set(true)
		w.Set(true)
		Expect(obs.n).To(Equal(1))
		Expect(w.Value()).To(BeTrue())
		Expect(w.Name()).To(Equal("locked"))
	})

	It("should evaluate conditions with polarity", func() {
		w := signal.NewWire("rst_n", true)

		Expect(signal.High(w).Met()).To(BeTrue())
		Expect(signal.Low(w).Met()).To(BeFalse())

		w.Set(false)
		Expect(signal.Low(w).Met()).To(BeTrue())
		Expect(signal.ActiveLow.String()).To(Equal("active-low"))
	})
})

var _ = Describe("Synchronizer", func() {
	var (
		w    *signal.Wire
		sync *signal.Synchronizer
	)

	BeforeEach(func() {
		w = signal.NewWire("released", false)
		sync = signal.NewSynchronizer(w, false)
	})

	It("should delay a rising edge by two clocks", func() {
		w.Set(true)
		Expect(sync.Settled()).To(BeFalse())

		Expect(sync.Clock()).To(BeTrue())
		Expect(sync.Value()).To(BeFalse())

		Expect(sync.Clock()).To(BeTrue())
		Expect(sync.Value()).To(BeTrue())
		Expect(sync.Settled()).To(BeTrue())

		Expect(sync.Clock()).To(BeFalse())
	})

	It("should carry a sampled one-cycle pulse two edges later", func() {
		w.Set(true)
		sync.Clock()
		w.Set(false)
		sync.Clock()

		Expect(sync.Value()).To(BeTrue())

		sync.Clock()
		Expect(sync.Value()).To(BeFalse())
	})

	It("should reset every stage", func() {
		w.Set(true)
		sync.Clock()
		sync.Clock()
		sync.Reset(false)

		Expect(sync.Value()).To(BeFalse())
		Expect(sync.Source()).To(BeIdenticalTo(w))
	})
})
