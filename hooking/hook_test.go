package hooking_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/hooking"
)

var _ = Describe("HookableBase", func() {
	var (
		base *hooking.HookableBase
		pos  *hooking.HookPos
	)

	BeforeEach(func() {
		base = hooking.NewHookableBase()
		pos = &hooking.HookPos{Name: "Test"}
	})

	It("should invoke hooks in registration order", func() {
		calls := []string{}
		first := &hooking.HookFunc{F: func(ctx hooking.HookCtx) {
			calls = append(calls, "first:"+ctx.Pos.Name)
		}}
		second := &hooking.HookFunc{F: func(ctx hooking.HookCtx) {
			calls = append(calls, "second:"+ctx.Item.(string))
		}}

		base.AcceptHook(first)
		base.AcceptHook(second)
		base.InvokeHook(hooking.HookCtx{Domain: base, Pos: pos, Item: "x"})

		Expect(base.NumHooks()).To(Equal(2))
		Expect(calls).To(Equal([]string{"first:Test", "second:x"}))
	})

	It("should panic on a duplicated hook", func() {
		hook := &hooking.HookFunc{F: func(hooking.HookCtx) {}}
		base.AcceptHook(hook)

		Expect(func() { base.AcceptHook(hook) }).To(Panic())
	})
})
