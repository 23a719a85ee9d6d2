// Package sim owns the vessel/duct world and advances it tick by tick:
// snapshot, parallel per-duct transfer, sequential commit, re-classification,
// and the over-pressure monitor.
package sim

import (
	"fmt"
	"runtime"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plenum/components"
	"github.com/pthm-cable/plenum/config"
	"github.com/pthm-cable/plenum/fluid"
	"github.com/pthm-cable/plenum/telemetry"
)

// DriveSource supplies per-tick transport inputs for ducts: pump force and
// the ambient field's resistance multiplier. Drive is called once per duct
// per tick and must be cheap.
type DriveSource interface {
	Drive(tick int64, ductID uint32) (force, fieldMultiplier float64)
}

// Options configure a Simulation.
type Options struct {
	Config *config.Config
	Table  *fluid.Table
	// Drives refreshes duct inputs at the start of every tick; nil leaves
	// SetDrive values in place.
	Drives DriveSource
	// Workers overrides config solver.workers when positive.
	Workers int
}

// Simulation holds the fluid network. Structural methods must not be called
// while Step runs; the expected usage is single-threaded, with structural
// edits between ticks.
type Simulation struct {
	world      ecs.World
	cfg        *config.Config
	table      *fluid.Table
	classifier *fluid.Classifier
	drives     DriveSource

	vessels      ecs.Map4[components.Vessel, components.Contents, components.FluidState, components.Overpressure]
	vesselFilter *ecs.Filter4[components.Vessel, components.Contents, components.FluidState, components.Overpressure]
	ducts        ecs.Map2[components.Duct, components.Drive]
	ductFilter   *ecs.Filter2[components.Duct, components.Drive]

	vesselMap   ecs.Map1[components.Vessel]
	contentsMap ecs.Map1[components.Contents]
	stateMap    ecs.Map1[components.FluidState]
	overMap     ecs.Map1[components.Overpressure]
	ductMap     ecs.Map1[components.Duct]
	driveMap    ecs.Map1[components.Drive]

	byName map[string]ecs.Entity

	tick         int64
	nextVesselID uint32
	nextDuctID   uint32

	pending   []ExplosionEvent
	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	par       *parallelState
}

// NewSimulation builds an empty world from frozen configuration.
func NewSimulation(opts Options) (*Simulation, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("nil config")
	}
	if opts.Table == nil || opts.Table.Len() == 0 {
		return nil, fmt.Errorf("empty fluid table")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = opts.Config.Solver.Workers
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := &Simulation{
		world:      ecs.NewWorld(),
		cfg:        opts.Config,
		table:      opts.Table,
		classifier: fluid.NewClassifier(opts.Table, opts.Config.Phase.SaturationGamma),
		drives:     opts.Drives,
		byName:     make(map[string]ecs.Entity),
		collector:  telemetry.NewCollector(opts.Config.Derived.TicksPerWindow, opts.Config.Solver.DT),
		perf:       telemetry.NewPerfCollector(opts.Config.Telemetry.PerfWindow),
	}
	s.vessels = ecs.NewMap4[components.Vessel, components.Contents, components.FluidState, components.Overpressure](&s.world)
	s.vesselFilter = ecs.NewFilter4[components.Vessel, components.Contents, components.FluidState, components.Overpressure](&s.world)
	s.ducts = ecs.NewMap2[components.Duct, components.Drive](&s.world)
	s.ductFilter = ecs.NewFilter2[components.Duct, components.Drive](&s.world)
	s.vesselMap = ecs.NewMap1[components.Vessel](&s.world)
	s.contentsMap = ecs.NewMap1[components.Contents](&s.world)
	s.stateMap = ecs.NewMap1[components.FluidState](&s.world)
	s.overMap = ecs.NewMap1[components.Overpressure](&s.world)
	s.ductMap = ecs.NewMap1[components.Duct](&s.world)
	s.driveMap = ecs.NewMap1[components.Drive](&s.world)

	s.par = newParallelState(workers)
	s.par.startWorkers(s)
	return s, nil
}

// Close stops the compute workers. The simulation is unusable afterwards.
func (s *Simulation) Close() {
	s.par.stopWorkers()
}

// AddVessel creates an empty vessel. Limits must be positive and the name
// unique.
func (s *Simulation) AddVessel(name string, volumeLimit, pressureLimit float64) (ecs.Entity, error) {
	if name == "" {
		return ecs.Entity{}, fmt.Errorf("vessel name must not be empty")
	}
	if _, ok := s.byName[name]; ok {
		return ecs.Entity{}, fmt.Errorf("duplicate vessel name %q", name)
	}
	if !(volumeLimit > 0) {
		return ecs.Entity{}, fmt.Errorf("vessel %q: volume_limit must be positive, got %v", name, volumeLimit)
	}
	if !(pressureLimit > 0) {
		return ecs.Entity{}, fmt.Errorf("vessel %q: pressure_limit must be positive, got %v", name, pressureLimit)
	}
	s.nextVesselID++
	e := s.vessels.NewEntity(
		&components.Vessel{ID: s.nextVesselID, Name: name, VolumeLimit: volumeLimit, PressureLimit: pressureLimit},
		&components.Contents{Mix: fluid.NewMixture(s.table.Len())},
		&components.FluidState{Phase: fluid.PhaseVacuum},
		&components.Overpressure{},
	)
	s.byName[name] = e
	return e, nil
}

// Lookup resolves a vessel by name.
func (s *Simulation) Lookup(name string) (ecs.Entity, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Deposit places mass of one type into a vessel and refreshes its state, so
// FluidState is current when the next tick starts.
func (s *Simulation) Deposit(vessel ecs.Entity, id fluid.ID, mass float64) error {
	if mass < 0 {
		return fmt.Errorf("deposit mass must be non-negative, got %v", mass)
	}
	if int(id) >= s.table.Len() {
		return fmt.Errorf("unknown fluid type id %d", id)
	}
	if !s.world.Alive(vessel) {
		return fmt.Errorf("vessel is not alive")
	}
	contents := s.contentsMap.Get(vessel)
	if contents == nil {
		return fmt.Errorf("entity is not a vessel")
	}
	contents.Mix.Add(id, mass)
	s.reclassifyOne(vessel)
	return nil
}

// Connect creates a duct between two distinct live vessels. Radius zero is
// legal: a permanently blocked duct.
func (s *Simulation) Connect(alpha, beta ecs.Entity, kind components.DuctKind, length, radius float64) (ecs.Entity, error) {
	if alpha == beta {
		return ecs.Entity{}, fmt.Errorf("duct endpoints must differ")
	}
	if !s.world.Alive(alpha) || !s.world.Alive(beta) {
		return ecs.Entity{}, fmt.Errorf("duct endpoint is not alive")
	}
	if s.vesselMap.Get(alpha) == nil || s.vesselMap.Get(beta) == nil {
		return ecs.Entity{}, fmt.Errorf("duct endpoints must be vessels")
	}
	if radius < 0 {
		return ecs.Entity{}, fmt.Errorf("duct radius must be non-negative, got %v", radius)
	}
	if kind == components.DuctCorridor && !(length > 0) {
		return ecs.Entity{}, fmt.Errorf("corridor duct length must be positive, got %v", length)
	}
	s.nextDuctID++
	e := s.ducts.NewEntity(
		&components.Duct{ID: s.nextDuctID, Kind: kind, Length: length, Radius: radius, Alpha: alpha, Beta: beta},
		&components.Drive{FieldMultiplier: 1},
	)
	return e, nil
}

// DuctID returns the stable ID of a duct entity.
func (s *Simulation) DuctID(duct ecs.Entity) (uint32, bool) {
	if !s.world.Alive(duct) {
		return 0, false
	}
	d := s.ductMap.Get(duct)
	if d == nil {
		return 0, false
	}
	return d.ID, true
}

// SetDrive sets a duct's transport inputs directly. A negative field
// multiplier is clamped to zero.
func (s *Simulation) SetDrive(duct ecs.Entity, force, fieldMultiplier float64) {
	if !s.world.Alive(duct) {
		return
	}
	d := s.driveMap.Get(duct)
	if d == nil {
		return
	}
	if fieldMultiplier < 0 {
		fieldMultiplier = 0
	}
	d.Force = force
	d.FieldMultiplier = fieldMultiplier
}

// Sever removes a duct.
func (s *Simulation) Sever(duct ecs.Entity) {
	if !s.world.Alive(duct) || s.ductMap.Get(duct) == nil {
		return
	}
	s.world.RemoveEntity(duct)
}

// RemoveVessel severs all incident ducts, then removes the vessel.
func (s *Simulation) RemoveVessel(vessel ecs.Entity) {
	if !s.world.Alive(vessel) {
		return
	}
	v := s.vesselMap.Get(vessel)
	if v == nil {
		return
	}
	for _, d := range s.incidentDucts(vessel) {
		s.world.RemoveEntity(d)
	}
	delete(s.byName, v.Name)
	s.world.RemoveEntity(vessel)
}

// incidentDucts collects the ducts touching a vessel. Queries lock the
// world, so removal happens after collection.
func (s *Simulation) incidentDucts(vessel ecs.Entity) []ecs.Entity {
	var cut []ecs.Entity
	query := s.ductFilter.Query()
	for query.Next() {
		duct, _ := query.Get()
		if duct.Alpha == vessel || duct.Beta == vessel {
			cut = append(cut, query.Entity())
		}
	}
	return cut
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int64 { return s.tick }

// Counts returns the live vessel and duct counts.
func (s *Simulation) Counts() (vessels, ducts int) {
	vq := s.vesselFilter.Query()
	for vq.Next() {
		vessels++
	}
	dq := s.ductFilter.Query()
	for dq.Next() {
		ducts++
	}
	return vessels, ducts
}

// State returns a copy of the vessel's derived state.
func (s *Simulation) State(vessel ecs.Entity) (components.FluidState, bool) {
	if !s.world.Alive(vessel) {
		return components.FluidState{}, false
	}
	st := s.stateMap.Get(vessel)
	if st == nil {
		return components.FluidState{}, false
	}
	return *st, true
}

// Mass returns the vessel's mass of one type.
func (s *Simulation) Mass(vessel ecs.Entity, id fluid.ID) float64 {
	if !s.world.Alive(vessel) {
		return 0
	}
	contents := s.contentsMap.Get(vessel)
	if contents == nil {
		return 0
	}
	return contents.Mix.Mass(id)
}

// Mixture returns a copy of the vessel's contents.
func (s *Simulation) Mixture(vessel ecs.Entity) fluid.Mixture {
	if !s.world.Alive(vessel) {
		return nil
	}
	contents := s.contentsMap.Get(vessel)
	if contents == nil {
		return nil
	}
	return contents.Mix.Clone()
}

// Streak returns the vessel's current over-pressure streak.
func (s *Simulation) Streak(vessel ecs.Entity) int32 {
	if !s.world.Alive(vessel) {
		return 0
	}
	over := s.overMap.Get(vessel)
	if over == nil {
		return 0
	}
	return over.Streak
}

// TotalMassByType sums each type's mass across all vessels into out,
// allocating when out is too small.
func (s *Simulation) TotalMassByType(out []float64) []float64 {
	n := s.table.Len()
	if cap(out) < n {
		out = make([]float64, n)
	}
	out = out[:n]
	for i := range out {
		out[i] = 0
	}
	query := s.vesselFilter.Query()
	for query.Next() {
		_, contents, _, _ := query.Get()
		for i, mass := range contents.Mix {
			out[i] += mass
		}
	}
	return out
}

// TotalMass sums all mass in the network.
func (s *Simulation) TotalMass() float64 {
	total := 0.0
	query := s.vesselFilter.Query()
	for query.Next() {
		_, contents, _, _ := query.Get()
		total += contents.Mix.Total()
	}
	return total
}

// Pressures appends every vessel's pressure to out.
func (s *Simulation) Pressures(out []float64) []float64 {
	query := s.vesselFilter.Query()
	for query.Next() {
		_, _, st, _ := query.Get()
		out = append(out, st.Pressure)
	}
	return out
}

// EachVessel visits every vessel. The mixture argument aliases live storage
// and must not be modified or retained.
func (s *Simulation) EachVessel(fn func(v components.Vessel, st components.FluidState, streak int32, mix fluid.Mixture)) {
	query := s.vesselFilter.Query()
	for query.Next() {
		v, contents, st, over := query.Get()
		fn(*v, *st, over.Streak, contents.Mix)
	}
}

// Collector returns the telemetry collector fed by Step.
func (s *Simulation) Collector() *telemetry.Collector { return s.collector }

// Perf returns the per-phase timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Config returns the frozen configuration.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Table returns the fluid type table.
func (s *Simulation) Table() *fluid.Table { return s.table }

func (s *Simulation) reclassifyOne(vessel ecs.Entity) {
	v := s.vesselMap.Get(vessel)
	contents := s.contentsMap.Get(vessel)
	st := s.stateMap.Get(vessel)
	cs := s.classifier.Classify(contents.Mix, v.VolumeLimit)
	st.Phase = cs.Phase
	st.Volume = cs.Volume
	st.Pressure = cs.Pressure
}
