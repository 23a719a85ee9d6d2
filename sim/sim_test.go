package sim

import (
	"fmt"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/plenum/components"
	"github.com/pthm-cable/plenum/config"
	"github.com/pthm-cable/plenum/fluid"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func singleType(t *testing.T, crit float64) *fluid.Table {
	t.Helper()
	table, err := fluid.NewTable([]fluid.Def{
		{Name: "air", VacuumDensity: 1, CriticalPressure: crit, Viscosity: 1},
	})
	require.NoError(t, err)
	return table
}

func newSim(t *testing.T, cfg *config.Config, table *fluid.Table, workers int) *Simulation {
	t.Helper()
	s, err := NewSimulation(Options{Config: cfg, Table: table, Workers: workers})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// Two full vessels joined by one corridor drain toward equal pressure
// without ever overshooting or reversing.
func TestEquilibration(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Solver.DiffusionCoefficient = 0
	s := newSim(t, cfg, singleType(t, 10), 1)

	a, err := s.AddVessel("tank-a", 40, 100)
	require.NoError(t, err)
	b, err := s.AddVessel("tank-b", 40, 100)
	require.NoError(t, err)
	require.NoError(t, s.Deposit(a, 0, 80))
	require.NoError(t, s.Deposit(b, 0, 40))
	_, err = s.Connect(a, b, components.DuctCorridor, 2, 1)
	require.NoError(t, err)

	sa, ok := s.State(a)
	require.True(t, ok)
	sb, ok := s.State(b)
	require.True(t, ok)
	gap := sa.Pressure - sb.Pressure
	require.InDelta(t, 1.0, gap, 1e-12)

	for i := 0; i < 3000; i++ {
		s.Step()
		sa, _ = s.State(a)
		sb, _ = s.State(b)
		next := sa.Pressure - sb.Pressure
		require.GreaterOrEqual(t, next, 0.0, "tick %d: flow overshot equilibrium", s.Tick())
		require.LessOrEqual(t, next, gap+1e-12, "tick %d: pressure gap widened", s.Tick())
		gap = next
	}
	assert.Less(t, gap, 0.05)
	assert.InDelta(t, 120.0, s.TotalMass(), 1e-9)
	assert.Empty(t, s.DrainEvents())
}

// A mixed network with pumps and diffusion conserves every type's total
// mass over a long run.
func TestConservationNetwork(t *testing.T) {
	cfg := loadConfig(t)
	table, err := fluid.NewTable([]fluid.Def{
		{Name: "oxygen", VacuumDensity: 1, CriticalPressure: 2, Viscosity: 1},
		{Name: "carbon-dioxide", VacuumDensity: 1.5, CriticalPressure: 1.5, Viscosity: 1.2},
		{Name: "nitrogen", VacuumDensity: 1.1, CriticalPressure: 2.5, Viscosity: 0.9},
	})
	require.NoError(t, err)
	s := newSim(t, cfg, table, 1)

	vessels := make([]ecs.Entity, 5)
	for i := range vessels {
		v, err := s.AddVessel(fmt.Sprintf("room-%d", i), 20+float64(i)*15, 1000)
		require.NoError(t, err)
		vessels[i] = v
	}
	require.NoError(t, s.Deposit(vessels[0], 0, 60))
	require.NoError(t, s.Deposit(vessels[0], 2, 30))
	require.NoError(t, s.Deposit(vessels[1], 1, 12))
	require.NoError(t, s.Deposit(vessels[3], 0, 5))
	require.NoError(t, s.Deposit(vessels[4], 1, 0.5))

	type edge struct {
		a, b int
		kind components.DuctKind
	}
	edges := []edge{
		{0, 1, components.DuctCorridor},
		{1, 2, components.DuctCorridor},
		{2, 3, components.DuctInterBuilding},
		{3, 4, components.DuctCorridor},
		{4, 0, components.DuctInterBuilding},
		{1, 3, components.DuctCorridor},
	}
	ducts := make([]ecs.Entity, len(edges))
	for i, e := range edges {
		d, err := s.Connect(vessels[e.a], vessels[e.b], e.kind, 1+float64(i)*0.5, 0.5+float64(i%2)*0.5)
		require.NoError(t, err)
		ducts[i] = d
	}
	s.SetDrive(ducts[0], 0.02, 1)
	s.SetDrive(ducts[3], -0.01, 1)

	initial := s.TotalMassByType(nil)
	for i := 0; i < 500; i++ {
		s.Step()
	}
	final := s.TotalMassByType(nil)
	for i := range initial {
		assert.InDelta(t, initial[i], final[i], 1e-6, "type %d drifted", i)
	}
	assert.Empty(t, s.DrainEvents())
}

// A vessel pinned above its pressure limit ruptures on the third
// consecutive over-limit tick, loses its ducts, and can rupture again.
func TestExplosionSeversDucts(t *testing.T) {
	cfg := loadConfig(t)
	s := newSim(t, cfg, singleType(t, 10), 1)

	boiler, err := s.AddVessel("boiler", 40, 1.2)
	require.NoError(t, err)
	relief, err := s.AddVessel("relief", 40, 100)
	require.NoError(t, err)
	require.NoError(t, s.Deposit(boiler, 0, 50))
	// Radius zero blocks the duct, so the pressure cannot bleed off.
	duct, err := s.Connect(boiler, relief, components.DuctCorridor, 1, 0)
	require.NoError(t, err)

	s.Step()
	s.Step()
	require.Empty(t, s.DrainEvents())
	require.EqualValues(t, 2, s.Streak(boiler))

	s.Step()
	events := s.DrainEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, int64(3), ev.Tick)
	assert.Equal(t, "boiler", ev.Name)
	assert.InDelta(t, 1.25, ev.Pressure, 1e-9)
	require.Len(t, ev.Mixture, 1)
	assert.InDelta(t, 50.0, ev.Mixture[0], 1e-9)
	assert.Equal(t, 1, ev.SeveredDucts)
	assert.EqualValues(t, 0, s.Streak(boiler))
	_, ok := s.DuctID(duct)
	assert.False(t, ok)
	vesselCount, ductCount := s.Counts()
	assert.Equal(t, 2, vesselCount)
	assert.Equal(t, 0, ductCount)

	// Still over the limit with nothing left to sever: the monitor refires
	// after another full streak.
	s.Step()
	s.Step()
	require.Empty(t, s.DrainEvents())
	s.Step()
	events = s.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, int64(6), events[0].Tick)
	assert.Equal(t, 0, events[0].SeveredDucts)
}

func TestExplosionThreshold(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Explosion.StreakThreshold = 2
	s := newSim(t, cfg, singleType(t, 10), 1)

	v, err := s.AddVessel("pod", 40, 1.2)
	require.NoError(t, err)
	require.NoError(t, s.Deposit(v, 0, 50))

	s.Step()
	require.Empty(t, s.DrainEvents())
	s.Step()
	events := s.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Tick)
	assert.Equal(t, 0, events[0].SeveredDucts)
}

// A dip back to the limit clears the streak entirely; over-limit ticks do
// not accumulate across the dip.
func TestStreakResetsOnRelief(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Explosion.StreakThreshold = 1000
	s := newSim(t, cfg, singleType(t, 10), 1)

	hot, err := s.AddVessel("hot", 40, 1.2)
	require.NoError(t, err)
	vent, err := s.AddVessel("vent", 1000, 100)
	require.NoError(t, err)
	require.NoError(t, s.Deposit(hot, 0, 50))

	s.Step()
	s.Step()
	require.EqualValues(t, 2, s.Streak(hot))

	_, err = s.Connect(hot, vent, components.DuctCorridor, 1, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		s.Step()
	}
	st, _ := s.State(hot)
	assert.LessOrEqual(t, st.Pressure, 1.2)
	assert.EqualValues(t, 0, s.Streak(hot))
	assert.Empty(t, s.DrainEvents())
}

// Three pumps pulling 0.25 each from a vessel holding 0.3 split the
// available mass proportionally instead of racing for it.
func TestMultiDuctDrainScalesOutflow(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Solver.DiffusionCoefficient = 0
	s := newSim(t, cfg, singleType(t, 10), 1)

	center, err := s.AddVessel("center", 40, 100)
	require.NoError(t, err)
	require.NoError(t, s.Deposit(center, 0, 0.3))
	spokes := make([]ecs.Entity, 3)
	for i := range spokes {
		v, err := s.AddVessel(fmt.Sprintf("spoke-%d", i), 40, 100)
		require.NoError(t, err)
		spokes[i] = v
		d, err := s.Connect(center, v, components.DuctCorridor, 1, 1)
		require.NoError(t, err)
		// Field multiplier zero turns the gradient term off; only the pump
		// moves mass.
		s.SetDrive(d, 5, 0)
	}

	s.Step()
	assert.InDelta(t, 0.0, s.Mass(center, 0), 1e-12)
	for i, sp := range spokes {
		assert.InDelta(t, 0.1, s.Mass(sp, 0), 1e-12, "spoke %d", i)
	}
	assert.InDelta(t, 0.3, s.TotalMass(), 1e-12)

	stats := s.Collector().Flush(s.Tick(), 4, 3, nil, s.TotalMass())
	assert.Equal(t, 1, stats.ScaledCommits)
	assert.Equal(t, 0, stats.ClampedTransfers)
}

func buildGrid(t *testing.T, workers int) *Simulation {
	t.Helper()
	cfg := loadConfig(t)
	table, err := fluid.NewTable([]fluid.Def{
		{Name: "oxygen", VacuumDensity: 1, CriticalPressure: 2, Viscosity: 1},
		{Name: "nitrogen", VacuumDensity: 1.1, CriticalPressure: 2.5, Viscosity: 0.9},
	})
	require.NoError(t, err)
	s := newSim(t, cfg, table, workers)

	vessels := make([]ecs.Entity, 70)
	for i := range vessels {
		v, err := s.AddVessel(fmt.Sprintf("cell-%02d", i), 30+float64(i%5)*10, 1000)
		require.NoError(t, err)
		vessels[i] = v
		require.NoError(t, s.Deposit(v, 0, 10+float64(i)*0.37))
		if i%3 == 0 {
			require.NoError(t, s.Deposit(v, 1, 5))
		}
	}
	var ducts []ecs.Entity
	for i := 0; i+1 < len(vessels); i++ {
		d, err := s.Connect(vessels[i], vessels[i+1], components.DuctCorridor, 1+float64(i%4), 0.5+float64(i%3)*0.25)
		require.NoError(t, err)
		ducts = append(ducts, d)
	}
	for i := 5; i < len(vessels); i += 5 {
		d, err := s.Connect(vessels[i], vessels[0], components.DuctInterBuilding, 0, 0.75)
		require.NoError(t, err)
		ducts = append(ducts, d)
	}
	for i, d := range ducts {
		if i%7 == 0 {
			s.SetDrive(d, 0.005*float64(i%11), 1)
		}
	}
	return s
}

// The commit order is the duct order regardless of how compute chunks are
// scheduled, so any worker count produces bit-identical results.
func TestWorkerDeterminism(t *testing.T) {
	serial := buildGrid(t, 1)
	parallel := buildGrid(t, 4)

	for i := 0; i < 50; i++ {
		serial.Step()
		parallel.Step()
	}
	for i := 0; i < 70; i++ {
		name := fmt.Sprintf("cell-%02d", i)
		v1, ok := serial.Lookup(name)
		require.True(t, ok)
		v4, ok := parallel.Lookup(name)
		require.True(t, ok)
		require.Equal(t, serial.Mixture(v1), parallel.Mixture(v4), "vessel %s diverged", name)
	}
	require.Equal(t, serial.TotalMass(), parallel.TotalMass())
}

func TestStructuralOps(t *testing.T) {
	cfg := loadConfig(t)
	s := newSim(t, cfg, singleType(t, 10), 1)

	_, err := s.AddVessel("", 10, 10)
	assert.ErrorContains(t, err, "name")
	a, err := s.AddVessel("tank-a", 10, 10)
	require.NoError(t, err)
	_, err = s.AddVessel("tank-a", 10, 10)
	assert.ErrorContains(t, err, "duplicate")
	_, err = s.AddVessel("bad", -1, 10)
	assert.ErrorContains(t, err, "volume_limit")
	_, err = s.AddVessel("bad", 10, 0)
	assert.ErrorContains(t, err, "pressure_limit")
	b, err := s.AddVessel("tank-b", 10, 10)
	require.NoError(t, err)

	_, err = s.Connect(a, a, components.DuctCorridor, 1, 1)
	assert.ErrorContains(t, err, "differ")
	_, err = s.Connect(a, b, components.DuctCorridor, 0, 1)
	assert.ErrorContains(t, err, "length")
	_, err = s.Connect(a, b, components.DuctCorridor, 1, -0.5)
	assert.ErrorContains(t, err, "radius")
	_, err = s.Connect(a, b, components.DuctInterBuilding, 0, 1)
	require.NoError(t, err)
	d2, err := s.Connect(a, b, components.DuctCorridor, 2, 0.5)
	require.NoError(t, err)

	assert.Error(t, s.Deposit(a, 7, 1))
	assert.Error(t, s.Deposit(a, 0, -1))

	// Deposits refresh the derived state immediately.
	require.NoError(t, s.Deposit(a, 0, 8))
	st, ok := s.State(a)
	require.True(t, ok)
	assert.Equal(t, fluid.PhaseVacuum, st.Phase)
	assert.InDelta(t, 8.0, st.Volume, 1e-12)
	assert.InDelta(t, 0.8, st.Pressure, 1e-12)

	vesselCount, ductCount := s.Counts()
	assert.Equal(t, 2, vesselCount)
	assert.Equal(t, 2, ductCount)

	s.RemoveVessel(a)
	vesselCount, ductCount = s.Counts()
	assert.Equal(t, 1, vesselCount)
	assert.Equal(t, 0, ductCount)
	_, ok = s.Lookup("tank-a")
	assert.False(t, ok)
	assert.Error(t, s.Deposit(a, 0, 1))
	_, err = s.Connect(a, b, components.DuctCorridor, 1, 1)
	assert.ErrorContains(t, err, "alive")
	s.Sever(d2)

	// The name is free again once the vessel is gone.
	_, err = s.AddVessel("tank-a", 10, 10)
	require.NoError(t, err)
}

type scriptedDrive struct {
	force float64
	mult  float64
	first int64
	calls int
}

func (d *scriptedDrive) Drive(tick int64, ductID uint32) (float64, float64) {
	if d.first == 0 {
		d.first = tick
	}
	d.calls++
	return d.force, d.mult
}

func TestDriveSourceControlsFlow(t *testing.T) {
	build := func(drive *scriptedDrive) (*Simulation, ecs.Entity, ecs.Entity) {
		cfg := loadConfig(t)
		cfg.Solver.DiffusionCoefficient = 0
		s, err := NewSimulation(Options{Config: cfg, Table: singleType(t, 10), Drives: drive, Workers: 1})
		require.NoError(t, err)
		t.Cleanup(s.Close)
		a, err := s.AddVessel("tank-a", 40, 100)
		require.NoError(t, err)
		b, err := s.AddVessel("tank-b", 40, 100)
		require.NoError(t, err)
		require.NoError(t, s.Deposit(a, 0, 1))
		_, err = s.Connect(a, b, components.DuctCorridor, 1, 1)
		require.NoError(t, err)
		return s, a, b
	}

	// Force and field multiplier both zero: the duct is inert even with a
	// pressure gradient across it.
	inert := &scriptedDrive{}
	s, a, b := build(inert)
	for i := 0; i < 5; i++ {
		s.Step()
	}
	assert.Equal(t, 1.0, s.Mass(a, 0))
	assert.Equal(t, 0.0, s.Mass(b, 0))
	assert.Equal(t, int64(1), inert.first)
	assert.Equal(t, 5, inert.calls)

	// A pure pump moves force*dt per tick no matter the gradient.
	pump := &scriptedDrive{force: 0.5}
	s, a, b = build(pump)
	for i := 0; i < 4; i++ {
		s.Step()
	}
	assert.InDelta(t, 0.9, s.Mass(a, 0), 1e-9)
	assert.InDelta(t, 0.1, s.Mass(b, 0), 1e-9)
}
