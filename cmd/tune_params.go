package cmd

import (
	"github.com/pthm-cable/plenum/config"
)

// tuneParam is one solver parameter the tuner may vary: its search bounds
// and the setter that lands it in a config.
type tuneParam struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
	Apply   func(*config.Config, float64)
}

// paramVector holds the set of tunable parameters.
type paramVector struct {
	specs []tuneParam
}

func newParamVector() *paramVector {
	return &paramVector{specs: []tuneParam{
		{
			Name: "solver.dt", Min: 0.005, Max: 0.2, Default: 0.05,
			Apply: func(c *config.Config, v float64) { c.Solver.DT = v },
		},
		{
			Name: "solver.diffusion_coefficient", Min: 0, Max: 0.2, Default: 0.02,
			Apply: func(c *config.Config, v float64) { c.Solver.DiffusionCoefficient = v },
		},
	}}
}

// defaultVector returns the default raw values.
func (pv *paramVector) defaultVector() []float64 {
	v := make([]float64, len(pv.specs))
	for i, spec := range pv.specs {
		v[i] = spec.Default
	}
	return v
}

// normalize maps raw values onto [0,1] within the search bounds.
func (pv *paramVector) normalize(raw []float64) []float64 {
	out := make([]float64, len(pv.specs))
	for i, spec := range pv.specs {
		out[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return out
}

// denormalize maps [0,1] values back to raw parameter space.
func (pv *paramVector) denormalize(norm []float64) []float64 {
	out := make([]float64, len(pv.specs))
	for i, spec := range pv.specs {
		out[i] = spec.Min + norm[i]*(spec.Max-spec.Min)
	}
	return out
}

// clamp bounds raw values to the search box; CMA-ES proposals can land
// outside it.
func (pv *paramVector) clamp(raw []float64) []float64 {
	out := make([]float64, len(pv.specs))
	for i, spec := range pv.specs {
		v := raw[i]
		if v < spec.Min {
			v = spec.Min
		}
		if v > spec.Max {
			v = spec.Max
		}
		out[i] = v
	}
	return out
}

// apply writes raw values into cfg and refreshes its derived values.
func (pv *paramVector) apply(cfg *config.Config, raw []float64) error {
	for i, spec := range pv.specs {
		spec.Apply(cfg, raw[i])
	}
	return cfg.Finalize()
}
