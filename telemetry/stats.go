package telemetry

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// WindowStats is one row of windowed telemetry, CSV-serialized by the
// output manager.
type WindowStats struct {
	WindowStartTick int64 `csv:"-"`

	Tick    int64   `csv:"tick"`
	SimTime float64 `csv:"sim_time"`
	Vessels int     `csv:"vessels"`
	Ducts   int     `csv:"ducts"`

	Explosions       int     `csv:"explosions"`
	DuctsSevered     int     `csv:"ducts_severed"`
	ClampedTransfers int     `csv:"clamped_transfers"`
	ScaledCommits    int     `csv:"scaled_commits"`
	MassMoved        float64 `csv:"mass_moved"`
	TotalMass        float64 `csv:"total_mass"`

	PressureMean float64 `csv:"pressure_mean"`
	PressureP10  float64 `csv:"pressure_p10"`
	PressureP50  float64 `csv:"pressure_p50"`
	PressureP90  float64 `csv:"pressure_p90"`
	PressureMax  float64 `csv:"pressure_max"`
}

// LogStats emits the window summary to the process log.
func (s WindowStats) LogStats() {
	logrus.Infof("[tick %07d] vessels=%d ducts=%d p_mean=%.3f p_p90=%.3f p_max=%.3f mass=%.3f moved=%.4f explosions=%d severed=%d",
		s.Tick, s.Vessels, s.Ducts, s.PressureMean, s.PressureP90, s.PressureMax,
		s.TotalMass, s.MassMoved, s.Explosions, s.DuctsSevered)
}

// VesselRow is one vessel's state sampled at a window boundary.
type VesselRow struct {
	Tick      int64   `csv:"tick"`
	Vessel    string  `csv:"vessel"`
	Phase     string  `csv:"phase"`
	Volume    float64 `csv:"volume"`
	Pressure  float64 `csv:"pressure"`
	Streak    int32   `csv:"overpressure_streak"`
	TotalMass float64 `csv:"total_mass"`
}

// TypeRow tracks one fluid type's global mass at a window boundary: the
// conservation audit trail.
type TypeRow struct {
	Tick      int64   `csv:"tick"`
	Type      string  `csv:"type"`
	TotalMass float64 `csv:"total_mass"`
	Drift     float64 `csv:"drift"` // change since the start of the run
}

// PressureStats summarizes a pressure sample.
type PressureStats struct {
	Mean float64
	P10  float64
	P50  float64
	P90  float64
	Max  float64
}

// ComputePressureStats summarizes pressures across vessels. An empty sample
// produces zeros.
func ComputePressureStats(values []float64) PressureStats {
	if len(values) == 0 {
		return PressureStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return PressureStats{
		Mean: sum / float64(len(sorted)),
		P10:  Percentile(sorted, 10),
		P50:  Percentile(sorted, 50),
		P90:  Percentile(sorted, 90),
		Max:  sorted[len(sorted)-1],
	}
}

// Percentile returns the pth percentile of sorted values using linear
// interpolation between the two nearest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
