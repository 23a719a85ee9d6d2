package sim

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plenum/fluid"
)

// ExplosionEvent records a vessel rupture: the tick it happened on, the
// pressure that tripped the monitor, a snapshot of the contents at rupture
// time, and how many ducts were severed.
type ExplosionEvent struct {
	Tick         int64
	Vessel       ecs.Entity
	VesselID     uint32
	Name         string
	Pressure     float64
	Mixture      fluid.Mixture
	SeveredDucts int
}

// DrainEvents returns the explosion events accumulated since the last call
// and clears the queue. The caller owns the returned slice.
func (s *Simulation) DrainEvents() []ExplosionEvent {
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}
