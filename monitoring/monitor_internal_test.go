package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/crg/board"
	"github.com/sarchlab/crg/crg"
	"github.com/sarchlab/crg/reset"
)

var _ = Describe("Monitor", func() {
	var (
		c *crg.CRG
		m *Monitor
		h http.Handler
	)

	BeforeEach(func() {
		cfg, err := board.Lookup("digilent_arty")
		Expect(err).NotTo(HaveOccurred())

		c, err = crg.MakeBuilder().Build(cfg)
		Expect(err).NotTo(HaveOccurred())

		m = NewMonitor().WithProfileTime(10 * time.Millisecond)
		m.RegisterCRG(c)
		h = m.Handler()
	})

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		return rec
	}

	domains := func() map[string]domainRsp {
		rec := get("/api/domains")
		Expect(rec.Code).To(Equal(http.StatusOK))

		list := []domainRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(Succeed())

		byName := make(map[string]domainRsp)
		for _, d := range list {
			byName[d.Domain] = d
		}

		return byName
	}

	It("should list the domains", func() {
		d := domains()

		Expect(d).To(HaveLen(5))
		Expect(d["sys"].State).To(Equal("HELD"))
		Expect(d["sys"].Freq).To(Equal("100MHz"))
		Expect(d["sys4x"].ResetLess).To(BeTrue())
		Expect(d["sys4x"].State).To(BeEmpty())
		Expect(d["sys4x_dqs"].Phase).To(Equal(90.0))

		Expect(c.Run()).To(Succeed())

		Expect(domains()["eth"].State).To(Equal("RELEASED"))
	})

	It("should report the current time", func() {
		Expect(c.RunUntil(400)).To(Succeed())

		rec := get("/api/now")

		rsp := nowRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Now).To(Equal(uint64(400)))
		Expect(rsp.Seconds).To(BeNumerically("~", 1e-6, 1e-12))
	})

	It("should dump a sequencer", func() {
		rec := get("/api/domain/sys")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should not dump a reset-less domain", func() {
		Expect(get("/api/domain/sys4x").Code).To(Equal(http.StatusNotFound))
	})

	It("should print the PLL plans", func() {
		rec := get("/api/plans")

		Expect(rec.Body.String()).To(ContainSubstring("pll (S7PLL)"))
		Expect(rec.Body.String()).To(ContainSubstring("order: idelay -> sys"))
	})

	It("should drive a reset line", func() {
		Expect(c.Run()).To(Succeed())

		rec := get("/api/reset/cpu_reset/assert")
		Expect(rec.Code).To(Equal(http.StatusOK))

		Expect(c.RunUntil(c.Engine().CurrentTime() + 16)).To(Succeed())

		sys, err := c.Sequencer("sys")
		Expect(err).NotTo(HaveOccurred())
		Expect(sys.State()).To(Equal(reset.StateHeld))

		Expect(get("/api/reset/cpu_reset/deassert").Code).To(Equal(http.StatusOK))
		Expect(c.Run()).To(Succeed())
		Expect(c.AllReleased()).To(BeTrue())
	})

	It("should drive a reset line while the simulation runs", func() {
		Expect(get("/api/run").Code).To(Equal(http.StatusOK))

		for i := 0; i < 20; i++ {
			Expect(get("/api/reset/cpu_reset/assert").Code).To(Equal(http.StatusOK))
			Expect(get("/api/domains").Code).To(Equal(http.StatusOK))
			Expect(get("/api/domain/sys").Code).To(Equal(http.StatusOK))
		}

		Expect(get("/api/reset/cpu_reset/deassert").Code).To(Equal(http.StatusOK))

		Eventually(func() bool {
			m.runLock.Lock()
			defer m.runLock.Unlock()

			return m.running
		}).Should(BeFalse())

		Expect(c.Run()).To(Succeed())
		Expect(c.AllReleased()).To(BeTrue())
	})

	It("should stay paused after driving a line", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(get("/api/reset/cpu_reset/assert").Code).To(Equal(http.StatusOK))
		Expect(get("/api/domains").Code).To(Equal(http.StatusOK))

		done := make(chan error, 1)
		go func() { done <- c.Run() }()

		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

		Expect(get("/api/reset/cpu_reset/deassert").Code).To(Equal(http.StatusOK))
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))

		Eventually(done).Should(Receive(BeNil()))
		Expect(c.AllReleased()).To(BeTrue())
	})

	It("should reject unknown lines and actions", func() {
		Expect(get("/api/reset/nope/assert").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/reset/cpu_reset/toggle").Code).To(Equal(http.StatusNotFound))
	})

	It("should run the simulation in the background", func() {
		Expect(get("/api/run").Code).To(Equal(http.StatusOK))

		Eventually(func() bool {
			m.runLock.Lock()
			defer m.runLock.Unlock()

			return m.running
		}).Should(BeFalse())

		Expect(c.AllReleased()).To(BeTrue())
	})

	It("should track progress", func() {
		bar := m.CreateProgressBar("simulate", 1000)
		c.Engine().AcceptHook(&TimeProgress{Bar: bar})

		Expect(c.RunUntil(800)).To(Succeed())

		rec := get("/api/progress")
		bars := []*ProgressBar{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("simulate"))
		Expect(bars[0].Finished).To(BeNumerically(">", 0))
		Expect(bars[0].Finished).To(BeNumerically("<=", 800))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should report resource usage", func() {
		rec := get("/api/resource")

		rsp := resourceRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a CPU profile", func() {
		rec := get("/api/profile")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(rec.Body.Bytes())).To(BeTrue())
	})

	It("should serve the status page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("CRG Monitor"))
	})
})
