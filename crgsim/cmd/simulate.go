package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/crg/crg"
	"github.com/sarchlab/crg/monitoring"
	"github.com/sarchlab/crg/recording"
	"github.com/sarchlab/crg/timing"
)

type simulateOptions struct {
	untilUS     float64
	resetAtUS   float64
	resetForUS  float64
	resetLine   string
	record      bool
	recordFile  string
	monitor     bool
	openBrowser bool
	neverLock   []string
}

func newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate [board]",
		Short: "Simulate the reset sequence of a board.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.untilUS, "until-us", 0,
		"Stop after this many microseconds; 0 runs until every domain settles")
	flags.Float64Var(&opts.resetAtUS, "reset-at-us", -1,
		"Assert a reset line at this time in microseconds")
	flags.Float64Var(&opts.resetForUS, "reset-for-us", 1,
		"How long the reset line stays asserted, in microseconds")
	flags.StringVar(&opts.resetLine, "reset-line", "",
		"The reset line to assert; defaults to the first line of the board")
	flags.BoolVar(&opts.record, "record", false,
		"Record every reset transition into an SQLite database")
	flags.StringVar(&opts.recordFile, "record-file", "",
		"The database to record into, without the .sqlite3 suffix")
	flags.BoolVar(&opts.monitor, "monitor", false,
		"Serve the simulation state over HTTP and wait for an interrupt")
	flags.BoolVar(&opts.openBrowser, "open-browser", false,
		"Open the monitoring page in a browser")
	flags.StringSliceVar(&opts.neverLock, "never-lock", nil,
		"PLLs that never report lock")

	return cmd
}

func runSimulate(
	cmd *cobra.Command,
	args []string,
	opts *simulateOptions,
) error {
	cfg, err := loadBoard(cmd, args)
	if err != nil {
		return err
	}

	logger := log.New(cmd.ErrOrStderr(), "", 0)
	engine := timing.NewSerialEngine()

	c, err := crg.MakeBuilder().
		WithEngine(engine).
		WithLogger(logger).
		WithNeverLock(opts.neverLock...).
		Build(cfg)
	if err != nil {
		return err
	}

	if strings.EqualFold(os.Getenv(envLog), "debug") {
		engine.AcceptHook(timing.NewEventLogger(logger))
	}

	c.AcceptHook(recording.NewTransitionLogger(logger, c.Frequencies()))

	var recorder *recording.SQLiteRecorder

	if opts.record {
		recorder, err = startRecording(c, opts.recordFile)
		if err != nil {
			return err
		}

		logger.Printf("recording into %s", recorder.FileName())
	}

	if err := scheduleReset(c, opts); err != nil {
		return err
	}

	var monitor *monitoring.Monitor

	if opts.monitor {
		monitor, err = startMonitor(c, opts)
		if err != nil {
			return err
		}
	}

	if err := runFor(c, opts.untilUS, monitor); err != nil {
		return err
	}

	if recorder != nil {
		recorder.Flush()
	}

	out := cmd.OutOrStdout()
	for _, st := range c.Status() {
		fmt.Fprintln(out, st)
	}

	if !c.AllReleased() {
		fmt.Fprintln(out, "not every domain is released")
	}

	if monitor != nil {
		waitForInterrupt(logger)
	}

	return nil
}

func startRecording(
	c *crg.CRG,
	path string,
) (*recording.SQLiteRecorder, error) {
	if path == "" {
		path = recording.DefaultFileName()
	}

	recorder, err := recording.New(path)
	if err != nil {
		return nil, err
	}

	c.AcceptHook(recording.NewTransitionRecorder(recorder))

	return recorder, nil
}

func scheduleReset(c *crg.CRG, opts *simulateOptions) error {
	if opts.resetAtUS < 0 {
		return nil
	}

	lines := c.Lines()
	if len(lines) == 0 {
		return fmt.Errorf("board %q has no reset line", c.Name())
	}

	line := lines[0]

	if opts.resetLine != "" {
		var err error

		line, err = c.Line(opts.resetLine)
		if err != nil {
			return err
		}
	}

	assertAt, err := c.CycleAt(microseconds(opts.resetAtUS))
	if err != nil {
		return err
	}

	deassertAt, err := c.CycleAt(microseconds(opts.resetAtUS + opts.resetForUS))
	if err != nil {
		return err
	}

	line.AssertAt(assertAt)
	line.DeassertAt(deassertAt)

	return nil
}

func startMonitor(
	c *crg.CRG,
	opts *simulateOptions,
) (*monitoring.Monitor, error) {
	m := monitoring.NewMonitor().WithPortNumber(monitorPort())
	if opts.openBrowser {
		m = m.WithBrowser()
	}

	m.RegisterCRG(c)

	if _, err := m.StartServer(); err != nil {
		return nil, err
	}

	return m, nil
}

func runFor(c *crg.CRG, untilUS float64, m *monitoring.Monitor) error {
	if untilUS <= 0 {
		return c.Run()
	}

	limit, err := c.CycleAt(microseconds(untilUS))
	if err != nil {
		return err
	}

	if m != nil {
		bar := m.CreateProgressBar("simulate", uint64(limit))
		defer m.CompleteProgressBar(bar)

		c.Engine().AcceptHook(&monitoring.TimeProgress{Bar: bar})
	}

	return c.RunUntil(limit)
}

func microseconds(us float64) timing.VTimeInSec {
	return timing.VTimeInSec(us * 1e-6)
}

func waitForInterrupt(logger *log.Logger) {
	logger.Printf("simulation done, press Ctrl+C to stop monitoring")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch
}
