package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Phase names for per-tick performance tracking.
const (
	PhaseDrives     = "drives"
	PhaseSnapshot   = "snapshot"
	PhaseCompute    = "compute"
	PhaseCommit     = "commit"
	PhaseClassify   = "classify"
	PhaseExplosions = "explosions"
)

// PerfSample times one tick, split by phase.
type PerfSample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector keeps a rolling window of tick timings.
type PerfCollector struct {
	windowSize int
	samples    []PerfSample
	cursor     int
	count      int

	tickStart  time.Time
	phaseName  string
	phaseStart time.Time
	current    map[string]time.Duration
}

// NewPerfCollector sizes the rolling window.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 1
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
	}
}

// StartTick begins timing a tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.phaseName = ""
	p.current = make(map[string]time.Duration)
}

// StartPhase closes the running phase, if any, and opens the named one.
func (p *PerfCollector) StartPhase(name string) {
	now := time.Now()
	if p.phaseName != "" {
		p.current[p.phaseName] += now.Sub(p.phaseStart)
	}
	p.phaseName = name
	p.phaseStart = now
}

// EndTick closes the tick and records its sample.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	if p.phaseName != "" {
		p.current[p.phaseName] += now.Sub(p.phaseStart)
		p.phaseName = ""
	}
	p.samples[p.cursor] = PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Phases:       p.current,
	}
	p.cursor = (p.cursor + 1) % p.windowSize
	if p.count < p.windowSize {
		p.count++
	}
	p.current = nil
}

// PerfStats summarizes the rolling window.
type PerfStats struct {
	Samples     int
	AvgTick     time.Duration
	MinTick     time.Duration
	MaxTick     time.Duration
	TicksPerSec float64
	PhaseAvg    map[string]time.Duration
}

// Stats computes the window summary.
func (p *PerfCollector) Stats() PerfStats {
	if p.count == 0 {
		return PerfStats{}
	}
	var total, min, max time.Duration
	phaseTotals := make(map[string]time.Duration)
	for i := 0; i < p.count; i++ {
		s := p.samples[i]
		total += s.TickDuration
		if i == 0 || s.TickDuration < min {
			min = s.TickDuration
		}
		if s.TickDuration > max {
			max = s.TickDuration
		}
		for name, d := range s.Phases {
			phaseTotals[name] += d
		}
	}
	avg := total / time.Duration(p.count)
	stats := PerfStats{
		Samples:  p.count,
		AvgTick:  avg,
		MinTick:  min,
		MaxTick:  max,
		PhaseAvg: make(map[string]time.Duration, len(phaseTotals)),
	}
	if avg > 0 {
		stats.TicksPerSec = float64(time.Second) / float64(avg)
	}
	for name, d := range phaseTotals {
		stats.PhaseAvg[name] = d / time.Duration(p.count)
	}
	return stats
}

// PerfRow is one perf summary as a CSV row.
type PerfRow struct {
	Tick         int64   `csv:"tick"`
	AvgTickMs    float64 `csv:"avg_tick_ms"`
	MinTickMs    float64 `csv:"min_tick_ms"`
	MaxTickMs    float64 `csv:"max_tick_ms"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	DrivesMs     float64 `csv:"drives_ms"`
	SnapshotMs   float64 `csv:"snapshot_ms"`
	ComputeMs    float64 `csv:"compute_ms"`
	CommitMs     float64 `csv:"commit_ms"`
	ClassifyMs   float64 `csv:"classify_ms"`
	ExplosionsMs float64 `csv:"explosions_ms"`
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Row flattens the window summary into a CSV row stamped with tick.
func (p *PerfCollector) Row(tick int64) PerfRow {
	s := p.Stats()
	return PerfRow{
		Tick:         tick,
		AvgTickMs:    ms(s.AvgTick),
		MinTickMs:    ms(s.MinTick),
		MaxTickMs:    ms(s.MaxTick),
		TicksPerSec:  s.TicksPerSec,
		DrivesMs:     ms(s.PhaseAvg[PhaseDrives]),
		SnapshotMs:   ms(s.PhaseAvg[PhaseSnapshot]),
		ComputeMs:    ms(s.PhaseAvg[PhaseCompute]),
		CommitMs:     ms(s.PhaseAvg[PhaseCommit]),
		ClassifyMs:   ms(s.PhaseAvg[PhaseClassify]),
		ExplosionsMs: ms(s.PhaseAvg[PhaseExplosions]),
	}
}

// LogStats emits the perf summary at debug level.
func (p *PerfCollector) LogStats() {
	s := p.Stats()
	if s.Samples == 0 {
		return
	}
	logrus.Debugf("perf: avg=%.3fms min=%.3fms max=%.3fms ticks/s=%.0f compute=%.3fms commit=%.3fms",
		ms(s.AvgTick), ms(s.MinTick), ms(s.MaxTick), s.TicksPerSec,
		ms(s.PhaseAvg[PhaseCompute]), ms(s.PhaseAvg[PhaseCommit]))
}
