// Package monitoring turns a running CRG simulation into a web server that
// reports domain states and lets a user pause, resume and reset it.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/crg/crg"
	"github.com/sarchlab/crg/monitoring/web"
	"github.com/sarchlab/crg/timing"
)

// Monitor serves the state of one CRG over HTTP.
type Monitor struct {
	crg         *crg.CRG
	portNumber  int
	openBrowser bool
	profileTime time.Duration

	runLock sync.Mutex
	running bool

	pauseLock sync.Mutex
	paused    bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{profileTime: time.Second}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser opens the monitoring page in a browser once the server runs.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// WithProfileTime sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileTime(d time.Duration) *Monitor {
	m.profileTime = d
	return m
}

// RegisterCRG registers the CRG to monitor.
func (m *Monitor) RegisterCRG(c *crg.CRG) {
	m.crg = c
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router serving the monitoring API and the web page.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/domains", m.listDomains)
	r.HandleFunc("/api/domain/{name}", m.domainDetails)
	r.HandleFunc("/api/domain/{name}/{field}", m.domainField)
	r.HandleFunc("/api/plans", m.listPlans)
	r.HandleFunc("/api/reset/{line}/{action:assert|deassert}", m.driveLine)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		dieOnErr(http.Serve(listener, m.Handler()))
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return url, nil
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.pauseLock.Lock()
	m.crg.Engine().Pause()
	m.paused = true
	m.pauseLock.Unlock()

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.pauseLock.Lock()
	m.crg.Engine().Continue()
	m.paused = false
	m.pauseLock.Unlock()

	_, err := w.Write(nil)
	dieOnErr(err)
}

// whilePaused runs f with no event in flight. A pause requested through
// /api/pause outlasts f.
func (m *Monitor) whilePaused(f func()) {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if !m.paused {
		m.crg.Engine().Pause()
		defer m.crg.Engine().Continue()
	}

	f()
}

type nowRsp struct {
	Now     uint64  `json:"now"`
	Seconds float64 `json:"seconds"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, nowRsp{
		Now:     uint64(m.crg.Engine().CurrentTime()),
		Seconds: float64(m.crg.Now()),
	})
}

// run starts the engine in the background unless it already runs.
func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	m.runLock.Lock()
	defer m.runLock.Unlock()

	if m.running {
		w.WriteHeader(http.StatusConflict)
		return
	}

	m.running = true

	go func() {
		dieOnErr(m.crg.Run())

		m.runLock.Lock()
		m.running = false
		m.runLock.Unlock()
	}()
}

type domainRsp struct {
	Domain    string  `json:"domain"`
	Freq      string  `json:"freq"`
	Phase     float64 `json:"phase"`
	PLL       string  `json:"pll,omitempty"`
	ResetLess bool    `json:"reset_less"`
	State     string  `json:"state,omitempty"`
	InReset   bool    `json:"in_reset"`
	Cycle     uint64  `json:"cycle"`
}

func (m *Monitor) listDomains(w http.ResponseWriter, _ *http.Request) {
	rsp := []domainRsp{}

	var status []crg.DomainStatus
	m.whilePaused(func() { status = m.crg.Status() })

	for _, st := range status {
		d := domainRsp{
			Domain:    st.Domain,
			Freq:      st.Clock.Freq.String(),
			Phase:     st.Clock.Phase,
			PLL:       st.Clock.PLL,
			ResetLess: st.ResetLess,
			InReset:   st.InReset,
			Cycle:     st.Cycle,
		}

		if !st.ResetLess {
			d.State = st.State.String()
		}

		rsp = append(rsp, d)
	}

	writeJSON(w, rsp)
}

func (m *Monitor) domainDetails(w http.ResponseWriter, r *http.Request) {
	m.serializeDomain(w, mux.Vars(r)["name"], nil)
}

// domainField dumps one field of a sequencer, given as a dot separated path.
func (m *Monitor) domainField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m.serializeDomain(w, vars["name"], strings.Split(vars["field"], "."))
}

func (m *Monitor) serializeDomain(
	w http.ResponseWriter,
	name string,
	fields []string,
) {
	s, err := m.crg.Sequencer(name)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		_, err = w.Write([]byte(err.Error()))
		dieOnErr(err)

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(s)
	serializer.SetMaxDepth(1)

	if fields != nil {
		if err := serializer.SetEntryPoint(fields); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: %s", err)

			return
		}
	}

	var buf bytes.Buffer

	m.whilePaused(func() { err = serializer.Serialize(&buf) })
	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

func (m *Monitor) listPlans(w http.ResponseWriter, _ *http.Request) {
	_, err := w.Write([]byte(m.crg.Report()))
	dieOnErr(err)
}

// driveLine asserts or deasserts a reset line at the current time. The
// engine is held between events while the time is read and the change is
// scheduled.
func (m *Monitor) driveLine(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	line, err := m.crg.Line(vars["line"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		_, err = w.Write([]byte(err.Error()))
		dieOnErr(err)

		return
	}

	var now timing.VTimeInCycle

	m.whilePaused(func() {
		now = m.crg.Engine().CurrentTime()

		switch vars["action"] {
		case "assert":
			line.AssertAt(now)
		case "deassert":
			line.DeassertAt(now)
		}
	})

	writeJSON(w, map[string]any{"line": line.Name(), "asserted_at": uint64(now)})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	process, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(m.profileTime)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
