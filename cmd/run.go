package cmd

import (
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/plenum/components"
	"github.com/pthm-cable/plenum/config"
	"github.com/pthm-cable/plenum/fluid"
	"github.com/pthm-cable/plenum/scenario"
	"github.com/pthm-cable/plenum/sim"
	"github.com/pthm-cable/plenum/telemetry"
)

var (
	runScenario string
	runTicks    int64
	runOutput   string
	runWorkers  int
)

// runCmd steps a scenario headless, streaming windowed telemetry to the log
// and optionally to CSV.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario headless and stream telemetry",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("loading config: %v", err)
		}
		if runWorkers > 0 {
			cfg.Solver.Workers = runWorkers
		}
		sc, err := scenario.Load(runScenario)
		if err != nil {
			logrus.Fatalf("loading scenario: %v", err)
		}
		s, err := sc.Build(cfg)
		if err != nil {
			logrus.Fatalf("building scenario: %v", err)
		}
		defer s.Close()

		out, err := telemetry.NewOutputManager(runOutput)
		if err != nil {
			logrus.Fatalf("opening output: %v", err)
		}
		defer out.Close()
		if err := out.WriteConfig(cfg); err != nil {
			logrus.Fatalf("writing config snapshot: %v", err)
		}
		if dir := out.Dir(); dir != "" {
			if err := sc.WriteYAML(filepath.Join(dir, "scenario.yaml")); err != nil {
				logrus.Fatalf("writing scenario snapshot: %v", err)
			}
		}

		vessels, ducts := s.Counts()
		logrus.Infof("starting %s: %d vessels, %d ducts, %d fluid types, dt=%gs, %d ticks",
			sc.Name, vessels, ducts, s.Table().Len(), cfg.Solver.DT, runTicks)

		r := newRunner(s, out)
		start := time.Now()
		for i := int64(0); i < runTicks; i++ {
			s.Step()
			r.handleEvents()
			if s.Collector().ShouldFlush(s.Tick()) {
				if err := r.flushWindow(); err != nil {
					logrus.Fatalf("writing telemetry: %v", err)
				}
			}
		}
		logrus.Infof("completed %d ticks (%.1f sim-seconds) in %s",
			s.Tick(), float64(s.Tick())*cfg.Solver.DT, time.Since(start).Round(time.Millisecond))
		if dir := out.Dir(); dir != "" {
			logrus.Infof("telemetry written to %s", dir)
		}
	},
}

// runner carries the per-run telemetry plumbing around the tick loop: event
// logging, window flushes, and the reusable row buffers behind them.
type runner struct {
	s     *sim.Simulation
	out   *telemetry.OutputManager
	marks *telemetry.BookmarkDetector

	pressures  []float64
	typeTotals []float64
	initial    []float64
	vesselRows []telemetry.VesselRow
	typeRows   []telemetry.TypeRow
}

func newRunner(s *sim.Simulation, out *telemetry.OutputManager) *runner {
	return &runner{
		s:       s,
		out:     out,
		marks:   telemetry.NewBookmarkDetector(1e-6, 1e-6),
		initial: s.TotalMassByType(nil),
	}
}

func (r *runner) handleEvents() {
	events := r.s.DrainEvents()
	if len(events) == 0 {
		return
	}
	rows := make([]telemetry.Event, 0, len(events))
	for _, ev := range events {
		logrus.Warnf("[tick %07d] vessel %q ruptured at pressure %.3f, severed %d ducts",
			ev.Tick, ev.Name, ev.Pressure, ev.SeveredDucts)
		rows = append(rows, telemetry.NewExplosionEvent(ev.Tick, ev.Name, ev.Pressure, ev.Mixture.Total(), ev.SeveredDucts))
	}
	if err := r.out.WriteEvents(rows); err != nil {
		logrus.Errorf("writing events: %v", err)
	}
}

func (r *runner) flushWindow() error {
	s := r.s
	tick := s.Tick()
	vessels, ducts := s.Counts()
	r.pressures = s.Pressures(r.pressures[:0])
	r.typeTotals = s.TotalMassByType(r.typeTotals)
	total := 0.0
	for _, m := range r.typeTotals {
		total += m
	}

	stats := s.Collector().Flush(tick, vessels, ducts, r.pressures, total)
	stats.LogStats()
	if err := r.out.WriteTelemetry(stats); err != nil {
		return err
	}

	r.vesselRows = r.vesselRows[:0]
	s.EachVessel(func(v components.Vessel, st components.FluidState, streak int32, mix fluid.Mixture) {
		r.vesselRows = append(r.vesselRows, telemetry.VesselRow{
			Tick:      tick,
			Vessel:    v.Name,
			Phase:     st.Phase.String(),
			Volume:    st.Volume,
			Pressure:  st.Pressure,
			Streak:    streak,
			TotalMass: mix.Total(),
		})
	})
	if err := r.out.WriteVessels(r.vesselRows); err != nil {
		return err
	}

	r.typeRows = r.typeRows[:0]
	table := s.Table()
	for i, m := range r.typeTotals {
		r.typeRows = append(r.typeRows, telemetry.TypeRow{
			Tick:      tick,
			Type:      table.Def(fluid.ID(i)).Name,
			TotalMass: m,
			Drift:     m - r.initial[i],
		})
	}
	if err := r.out.WriteTypes(r.typeRows); err != nil {
		return err
	}

	for _, b := range r.marks.Check(stats) {
		logrus.Infof("[tick %07d] bookmark: %s (%s)", b.Tick, b.Kind, b.Note)
		if err := r.out.WriteEvents([]telemetry.Event{telemetry.NewBookmarkEvent(b)}); err != nil {
			return err
		}
	}

	if err := r.out.WritePerf(s.Perf().Row(tick)); err != nil {
		return err
	}
	s.Perf().LogStats()
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "Scenario YAML (empty = embedded default)")
	runCmd.Flags().Int64Var(&runTicks, "ticks", 6000, "Number of ticks to run")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Directory for CSV telemetry (empty = log only)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Compute workers (0 = config setting)")
	rootCmd.AddCommand(runCmd)
}
