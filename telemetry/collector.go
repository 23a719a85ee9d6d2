// Package telemetry collects windowed statistics, discrete events, and
// per-phase timings from a running simulation and streams them to CSV.
package telemetry

// Collector accumulates per-window counters during simulation. The runner
// checks ShouldFlush once per tick and calls Flush at window boundaries.
type Collector struct {
	windowTicks int64
	dt          float64

	windowStart int64

	explosions       int
	ductsSevered     int
	clampedTransfers int
	scaledCommits    int
	massMoved        float64
}

// NewCollector sizes the stats window. windowTicks is clamped to at least
// one tick.
func NewCollector(windowTicks int64, dt float64) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: windowTicks, dt: dt}
}

// RecordExplosion counts one vessel rupture.
func (c *Collector) RecordExplosion() { c.explosions++ }

// RecordDuctsSevered counts ducts cut this window.
func (c *Collector) RecordDuctsSevered(n int) { c.ductsSevered += n }

// RecordClampedTransfers counts per-duct deltas clamped at their source.
func (c *Collector) RecordClampedTransfers(n int) { c.clampedTransfers += n }

// RecordScaledCommits counts vessel/type slots whose aggregate outflow had
// to be scaled down at commit.
func (c *Collector) RecordScaledCommits(n int) { c.scaledCommits += n }

// RecordMassMoved accumulates the absolute mass carried across ducts.
func (c *Collector) RecordMassMoved(m float64) { c.massMoved += m }

// ShouldFlush reports whether the current window ends at tick.
func (c *Collector) ShouldFlush(tick int64) bool {
	return tick-c.windowStart >= c.windowTicks
}

// Flush builds the closing window's stats and resets counters for the next
// window. pressures is a sample of every vessel's current pressure.
func (c *Collector) Flush(tick int64, vessels, ducts int, pressures []float64, totalMass float64) WindowStats {
	stats := WindowStats{
		WindowStartTick:  c.windowStart,
		Tick:             tick,
		SimTime:          float64(tick) * c.dt,
		Vessels:          vessels,
		Ducts:            ducts,
		Explosions:       c.explosions,
		DuctsSevered:     c.ductsSevered,
		ClampedTransfers: c.clampedTransfers,
		ScaledCommits:    c.scaledCommits,
		MassMoved:        c.massMoved,
		TotalMass:        totalMass,
	}
	p := ComputePressureStats(pressures)
	stats.PressureMean = p.Mean
	stats.PressureP10 = p.P10
	stats.PressureP50 = p.P50
	stats.PressureP90 = p.P90
	stats.PressureMax = p.Max

	c.explosions = 0
	c.ductsSevered = 0
	c.clampedTransfers = 0
	c.scaledCommits = 0
	c.massMoved = 0
	c.windowStart = tick
	return stats
}
