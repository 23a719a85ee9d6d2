package sim

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plenum/systems"
	"github.com/pthm-cable/plenum/telemetry"
)

// Step advances the network one tick. Events raised during the tick are
// queued for DrainEvents.
func (s *Simulation) Step() {
	s.perf.StartTick()
	s.tick++

	// 1. Refresh duct drives from the external source.
	s.perf.StartPhase(telemetry.PhaseDrives)
	s.refreshDrives()

	// 2. Freeze vessel states and duct parameters.
	s.perf.StartPhase(telemetry.PhaseSnapshot)
	s.buildSnapshots()

	// 3. Compute per-duct transfer deltas against the frozen view.
	s.perf.StartPhase(telemetry.PhaseCompute)
	s.computeTransfers()

	// 4. Apply deltas to the live mixtures, scaling down aggregate overdraw.
	s.perf.StartPhase(telemetry.PhaseCommit)
	s.commitTransfers()

	// 5. Re-derive phase, volume, and pressure from the new mixtures.
	s.perf.StartPhase(telemetry.PhaseClassify)
	s.reclassifyAll()

	// 6. Advance over-pressure streaks and rupture vessels at the threshold.
	s.perf.StartPhase(telemetry.PhaseExplosions)
	s.checkOverpressure()

	s.perf.EndTick()
}

func (s *Simulation) refreshDrives() {
	if s.drives == nil {
		return
	}
	query := s.ductFilter.Query()
	for query.Next() {
		duct, drive := query.Get()
		force, mult := s.drives.Drive(s.tick, duct.ID)
		if mult < 0 {
			mult = 0
		}
		drive.Force = force
		drive.FieldMultiplier = mult
	}
}

func (s *Simulation) reclassifyAll() {
	query := s.vesselFilter.Query()
	for query.Next() {
		v, contents, st, _ := query.Get()
		cs := s.classifier.Classify(contents.Mix, v.VolumeLimit)
		st.Phase = cs.Phase
		st.Volume = cs.Volume
		st.Pressure = cs.Pressure
	}
}

type rupture struct {
	entity   ecs.Entity
	id       uint32
	name     string
	pressure float64
}

// checkOverpressure advances every vessel's streak and ruptures those that
// held above their limit for the configured run of ticks. A rupture severs
// all incident ducts and leaves the vessel in place, streak cleared, so a
// still-pressurized vessel can rupture again.
func (s *Simulation) checkOverpressure() {
	threshold := int32(s.cfg.Explosion.StreakThreshold)
	var ruptured []rupture

	query := s.vesselFilter.Query()
	for query.Next() {
		v, _, st, over := query.Get()
		streak, exploded := systems.OverpressureStep(over.Streak, st.Pressure, v.PressureLimit, threshold)
		over.Streak = streak
		if exploded {
			ruptured = append(ruptured, rupture{
				entity:   query.Entity(),
				id:       v.ID,
				name:     v.Name,
				pressure: st.Pressure,
			})
		}
	}

	for _, r := range ruptured {
		cut := s.incidentDucts(r.entity)
		for _, d := range cut {
			s.world.RemoveEntity(d)
		}
		s.overMap.Get(r.entity).Streak = 0
		s.pending = append(s.pending, ExplosionEvent{
			Tick:         s.tick,
			Vessel:       r.entity,
			VesselID:     r.id,
			Name:         r.name,
			Pressure:     r.pressure,
			Mixture:      s.contentsMap.Get(r.entity).Mix.Clone(),
			SeveredDucts: len(cut),
		})
		s.collector.RecordExplosion()
		s.collector.RecordDuctsSevered(len(cut))
	}
}
