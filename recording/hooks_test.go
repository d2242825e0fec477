package recording_test

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/crg/hooking"
	"github.com/sarchlab/crg/recording"
	"github.com/sarchlab/crg/reset"
	"github.com/sarchlab/crg/timing"
)

var _ = Describe("Hooks", func() {
	var (
		mockCtrl   *gomock.Controller
		transition reset.Transition
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		transition = reset.Transition{
			Domain: "sys",
			From:   reset.StateWaitingUpstream,
			To:     reset.StateReleased,
			Cycle:  5,
			Time:   20,
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should record state changes", func() {
		recorder := NewMockRecorder(mockCtrl)
		recorder.EXPECT().
			CreateTable(recording.TransitionTable, recording.TransitionEntry{})
		recorder.EXPECT().
			InsertData(recording.TransitionTable, recording.TransitionEntry{
				Domain:    "sys",
				FromState: "WAITING_UPSTREAM",
				ToState:   "RELEASED",
				Cycle:     5,
				Time:      20,
			})

		hook := recording.NewTransitionRecorder(recorder)

		hook.Func(hooking.HookCtx{Pos: reset.HookPosStateChange, Item: transition})
		hook.Func(hooking.HookCtx{Pos: timing.HookPosBeforeEvent, Item: transition})
	})

	It("should log state changes", func() {
		var buf bytes.Buffer

		registry := timing.NewFrequencyRegistry()
		_, err := registry.RegisterFrequency(4 * timing.Hz)
		Expect(err).NotTo(HaveOccurred())

		hook := recording.NewTransitionLogger(log.New(&buf, "", 0), registry)
		hook.Func(hooking.HookCtx{Pos: reset.HookPosStateChange, Item: transition})

		Expect(buf.String()).To(Equal(
			"20 (5.000000000s), sys: WAITING_UPSTREAM -> RELEASED @ cycle 5\n"))
	})

	It("should log without a frequency registry", func() {
		var buf bytes.Buffer

		hook := recording.NewTransitionLogger(log.New(&buf, "", 0), nil)
		hook.Func(hooking.HookCtx{Pos: reset.HookPosStateChange, Item: transition})
		hook.Func(hooking.HookCtx{Pos: reset.HookPosStateChange, Item: "other"})

		Expect(buf.String()).To(Equal(
			"20, sys: WAITING_UPSTREAM -> RELEASED @ cycle 5\n"))
	})
})
