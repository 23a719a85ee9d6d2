// Package components defines the ECS components of the fluid network:
// vessels that hold mixtures and ducts that move them.
package components

import (
	"github.com/pthm-cable/plenum/fluid"
)

// Vessel is the static identity and capacity of one fluid container.
type Vessel struct {
	ID   uint32
	Name string
	// VolumeLimit is the hard capacity in volume units.
	VolumeLimit float64
	// PressureLimit is the over-pressure threshold; pressure sustained above
	// it trips the explosion monitor.
	PressureLimit float64
}

// Contents is the mixture a vessel currently holds. The transfer solver
// mutates it exactly once per tick, at commit.
type Contents struct {
	Mix fluid.Mixture
}

// FluidState is the derived physical state, recomputed from Contents at the
// end of every tick.
type FluidState struct {
	Phase    fluid.Phase
	Volume   float64
	Pressure float64
}

// Overpressure counts consecutive ticks spent above the pressure limit. It
// resets to zero the moment pressure drops back to the limit or below.
type Overpressure struct {
	Streak int32
}
