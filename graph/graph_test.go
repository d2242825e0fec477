package graph_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/clock"
	"github.com/sarchlab/crg/graph"
	"github.com/sarchlab/crg/timing"
)

var _ = Describe("Graph", func() {
	var g *graph.Graph

	add := func(names ...string) {
		for _, n := range names {
			_, err := g.AddDomain(n, &clock.Output{Domain: n, Freq: 100 * timing.MHz})
			Expect(err).NotTo(HaveOccurred())
		}
	}

	snapshot := func() map[string][]string {
		s := map[string][]string{}
		for _, n := range g.Names() {
			s[n] = g.Dependencies(n)
		}

		return s
	}

	BeforeEach(func() {
		g = graph.New(graph.Config{Name: "board"})
	})

	It("should keep its configuration", func() {
		Expect(g.Config().Name).To(Equal("board"))
	})

	It("should reject duplicate domains", func() {
		add("sys")

		_, err := g.AddDomain("sys", &clock.Output{Domain: "sys"})
		Expect(err).To(MatchError(graph.ErrDuplicateDomain))
		Expect(g.Len()).To(Equal(1))
	})

	It("should reject edges to unknown domains", func() {
		add("sys")

		Expect(g.AddDependency("eth", "sys")).To(MatchError(graph.ErrUnknownDomain))
		Expect(g.AddDependency("sys", "eth")).To(MatchError(graph.ErrUnknownDomain))
	})

	It("should treat a repeated edge as a no-op", func() {
		add("sys", "eth")

		Expect(g.AddDependency("eth", "sys")).To(Succeed())
		Expect(g.AddDependency("eth", "sys")).To(Succeed())
		Expect(g.Dependencies("eth")).To(Equal([]string{"sys"}))
		Expect(g.Dependents("sys")).To(Equal([]string{"eth"}))
	})

	It("should reject a self dependency", func() {
		add("sys")

		err := g.AddDependency("sys", "sys")
		Expect(err).To(MatchError(graph.ErrCyclicDependency))
		Expect(g.Dependencies("sys")).To(BeEmpty())
	})

	It("should reject a cycle and leave the graph unmodified", func() {
		add("por", "sys", "sys4x", "dram")
		Expect(g.AddDependency("sys", "por")).To(Succeed())
		Expect(g.AddDependency("sys4x", "sys")).To(Succeed())
		Expect(g.AddDependency("dram", "sys4x")).To(Succeed())

		before := snapshot()
		orderBefore := g.TopologicalOrder()

		err := g.AddDependency("por", "dram")
		Expect(err).To(MatchError(graph.ErrCyclicDependency))

		var cycle *graph.CycleError
		Expect(errors.As(err, &cycle)).To(BeTrue())
		Expect(cycle.Path).To(Equal([]string{"por", "dram", "sys4x", "sys", "por"}))
		Expect(err.Error()).To(ContainSubstring("por -> dram -> sys4x -> sys -> por"))

		Expect(snapshot()).To(Equal(before))
		Expect(g.TopologicalOrder()).To(Equal(orderBefore))
	})

	It("should order domains after their dependencies, ties by name", func() {
		add("video", "sys", "eth", "dram", "idelay", "usb")
		Expect(g.AddDependency("eth", "sys")).To(Succeed())
		Expect(g.AddDependency("dram", "sys")).To(Succeed())
		Expect(g.AddDependency("dram", "idelay")).To(Succeed())

		order := g.TopologicalOrder()
		Expect(order).To(Equal([]string{"idelay", "sys", "dram", "eth", "usb", "video"}))

		for i := 0; i < 10; i++ {
			Expect(g.TopologicalOrder()).To(Equal(order))
		}
	})

	It("should produce the same order regardless of insertion order", func() {
		add("c", "b", "a")
		Expect(g.AddDependency("a", "c")).To(Succeed())
		first := g.TopologicalOrder()

		g = graph.New(graph.Config{})
		add("a", "b", "c")
		Expect(g.AddDependency("a", "c")).To(Succeed())

		Expect(g.TopologicalOrder()).To(Equal(first))
		Expect(first).To(Equal([]string{"b", "c", "a"}))
	})

	It("should list transitive dependencies", func() {
		add("por", "sys", "eth", "video")
		Expect(g.AddDependency("sys", "por")).To(Succeed())
		Expect(g.AddDependency("eth", "sys")).To(Succeed())

		Expect(g.TransitiveDependencies("eth")).To(Equal([]string{"por", "sys"}))
		Expect(g.TransitiveDependencies("video")).To(BeEmpty())
	})

	It("should keep reset-less domains out of dependency edges", func() {
		add("sys", "sys4x", "dram")
		Expect(g.SetResetLess("sys4x")).To(Succeed())

		d, err := g.Domain("sys4x")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.ResetLess).To(BeTrue())

		Expect(g.AddDependency("dram", "sys4x")).To(MatchError(graph.ErrResetLessDependency))

		Expect(g.AddDependency("dram", "sys")).To(Succeed())
		Expect(g.SetResetLess("sys")).To(MatchError(graph.ErrResetLessDependency))
	})

	It("should mark calibration domains", func() {
		add("idelay", "sys4x")
		Expect(g.MarkCalibration("idelay")).To(Succeed())

		d, _ := g.Domain("idelay")
		Expect(d.Calibration).To(BeTrue())

		Expect(g.SetResetLess("sys4x")).To(Succeed())
		Expect(g.MarkCalibration("sys4x")).To(MatchError(graph.ErrResetLessDependency))
		Expect(g.MarkCalibration("nope")).To(MatchError(graph.ErrUnknownDomain))
	})

	It("should order derived clocks after their parent", func() {
		add("a_sys", "sys2x", "sys2x_i")
		Expect(g.SetResetLess("sys2x_i")).To(Succeed())
		Expect(g.SetResetLess("sys2x")).To(Succeed())

		Expect(g.SetParent("sys2x", "sys2x_i")).To(Succeed())
		Expect(g.SetParent("a_sys", "sys2x")).To(Succeed())
		Expect(g.SetParent("a_sys", "sys2x")).To(Succeed())

		d, err := g.Domain("a_sys")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Parent).To(Equal("sys2x"))
		Expect(g.Dependencies("a_sys")).To(BeEmpty())

		Expect(g.TopologicalOrder()).To(Equal([]string{"sys2x_i", "sys2x", "a_sys"}))
	})

	It("should reject a derivation cycle and keep the parent", func() {
		add("a_sys", "sys2x", "sys2x_i")
		Expect(g.SetParent("sys2x", "sys2x_i")).To(Succeed())
		Expect(g.SetParent("a_sys", "sys2x")).To(Succeed())

		err := g.SetParent("sys2x_i", "a_sys")

		var cycle *graph.CycleError
		Expect(errors.As(err, &cycle)).To(BeTrue())
		Expect(cycle.Path).To(Equal([]string{"sys2x_i", "a_sys", "sys2x", "sys2x_i"}))

		d, _ := g.Domain("sys2x_i")
		Expect(d.Parent).To(BeEmpty())

		Expect(g.AddDependency("sys2x", "a_sys")).To(MatchError(graph.ErrCyclicDependency))
	})

	It("should not move a derived clock to another parent", func() {
		add("sys", "sys2x", "init")
		Expect(g.SetParent("sys", "sys2x")).To(Succeed())

		Expect(g.SetParent("sys", "init")).To(HaveOccurred())
		Expect(g.SetParent("sys", "nope")).To(MatchError(graph.ErrUnknownDomain))
	})
})
