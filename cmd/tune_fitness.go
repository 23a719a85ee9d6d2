package cmd

import (
	"math"
	"sync"

	"github.com/pthm-cable/plenum/config"
	"github.com/pthm-cable/plenum/scenario"
)

// Trial scoring: settle time is measured in ticks, and the penalty weights
// push the optimum away from parameter sets that oscillate, leak mass, or
// rupture vessels on the way to equilibrium.
const (
	settleEpsilon   = 0.01
	overshootWeight = 5e3
	driftWeight     = 1e6
	explosionWeight = 1e3
)

// tuneFitness scores solver parameter vectors by relaxing a scenario to
// pressure equilibrium. Lower is better.
type tuneFitness struct {
	sc       *scenario.Scenario
	params   *paramVector
	base     *config.Config
	maxTicks int

	mu     sync.Mutex
	best   float64
	bestAt []float64
}

func newTuneFitness(sc *scenario.Scenario, params *paramVector, base *config.Config, maxTicks int) *tuneFitness {
	return &tuneFitness{
		sc:       sc,
		params:   params,
		base:     base,
		maxTicks: maxTicks,
		best:     math.Inf(1),
	}
}

// Best returns the lowest score seen and the raw parameters that scored it.
func (f *tuneFitness) Best() (float64, []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.best, f.bestAt
}

// Evaluate runs one trial with the raw parameter values.
func (f *tuneFitness) Evaluate(raw []float64) float64 {
	cfg := *f.base
	if err := f.params.apply(&cfg, raw); err != nil {
		return math.Inf(1)
	}
	score := f.runTrial(&cfg)

	f.mu.Lock()
	if score < f.best {
		f.best = score
		f.bestAt = append([]float64(nil), raw...)
	}
	f.mu.Unlock()
	return score
}

// runTrial relaxes the scenario under cfg and scores the trajectory: ticks
// to settle (or twice the cap when it never does), plus penalties for
// pressure-spread overshoot, explosions, and per-type mass drift.
func (f *tuneFitness) runTrial(cfg *config.Config) float64 {
	s, err := f.sc.Build(cfg)
	if err != nil {
		return math.Inf(1)
	}
	defer s.Close()

	initial := s.TotalMassByType(nil)
	var pressures []float64
	prevSpread := math.Inf(1)
	overshoot := 0.0
	explosions := 0
	settled := -1

	for tick := 1; tick <= f.maxTicks; tick++ {
		s.Step()
		explosions += len(s.DrainEvents())

		pressures = s.Pressures(pressures[:0])
		spread := pressureSpread(pressures)
		if spread > prevSpread+1e-9 {
			overshoot += spread - prevSpread
		}
		prevSpread = spread
		if spread < settleEpsilon {
			settled = tick
			break
		}
	}

	score := float64(2 * f.maxTicks)
	if settled > 0 {
		score = float64(settled)
	}
	score += overshoot * overshootWeight
	score += float64(explosions) * explosionWeight

	final := s.TotalMassByType(nil)
	drift := 0.0
	for i := range initial {
		if d := math.Abs(final[i] - initial[i]); d > drift {
			drift = d
		}
	}
	score += drift * driftWeight
	return score
}

func pressureSpread(pressures []float64) float64 {
	if len(pressures) == 0 {
		return 0
	}
	min, max := pressures[0], pressures[0]
	for _, p := range pressures[1:] {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return max - min
}
