package fluid

import (
	"math"
	"testing"
)

const testGamma = 65536.0

func singleTypeTable(t *testing.T, density, critical float64) *Table {
	t.Helper()
	table, err := NewTable([]Def{{Name: "air", VacuumDensity: density, CriticalPressure: critical, Viscosity: 1}})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestClassifyScenarios(t *testing.T) {
	table := singleTypeTable(t, 1.0, 2.0)
	c := NewClassifier(table, testGamma)

	tests := []struct {
		name      string
		mass      float64
		limit     float64
		wantPhase Phase
		wantVol   float64
		wantPress float64
	}{
		{"empty", 0, 40, PhaseVacuum, 0, 0},
		{"vacuum", 20, 40, PhaseVacuum, 20, 0.5},
		{"vacuum boundary is full", 40, 40, PhaseCompression, 40, 1.0},
		{"compression", 50, 40, PhaseCompression, 40, 1.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mix := NewMixture(table.Len())
			mix[0] = tt.mass
			got := c.Classify(mix, tt.limit)
			if got.Phase != tt.wantPhase {
				t.Errorf("Classify phase = %v, want %v", got.Phase, tt.wantPhase)
			}
			if math.Abs(got.Volume-tt.wantVol) > 1e-9 {
				t.Errorf("Classify volume = %v, want %v", got.Volume, tt.wantVol)
			}
			if math.Abs(got.Pressure-tt.wantPress) > 1e-9 {
				t.Errorf("Classify pressure = %v, want %v", got.Pressure, tt.wantPress)
			}
		})
	}
}

func TestClassifySaturation(t *testing.T) {
	table := singleTypeTable(t, 1.0, 1.0)
	c := NewClassifier(table, testGamma)

	// q = 50/40 = 1.25 over critical 1.0:
	// 1.25*65536 + 1.0*(1-65536)*1 = 81920 - 65535 = 16385.
	got := c.Classify(Mixture{50}, 40)
	if got.Phase != PhaseSaturation {
		t.Errorf("phase = %v, want saturation", got.Phase)
	}
	if math.Abs(got.Pressure-16385) > 1e-6 {
		t.Errorf("pressure = %v, want 16385", got.Pressure)
	}
	if got.Volume != 40 {
		t.Errorf("volume = %v, want 40", got.Volume)
	}
}

func TestClassifyMixedSaturation(t *testing.T) {
	table := MustTable([]Def{
		{Name: "dense", VacuumDensity: 1, CriticalPressure: 1, Viscosity: 1},
		{Name: "thin", VacuumDensity: 1, CriticalPressure: 10, Viscosity: 1},
	})
	c := NewClassifier(table, testGamma)

	// dense saturates (q=1.25 > 1), thin does not (q=0.25 <= 10):
	// 1.25*65536 + 1*(1-65536)*(50/60) + 0.25 = 27307.75.
	got := c.Classify(Mixture{50, 10}, 40)
	if got.Phase != PhaseSaturation {
		t.Errorf("phase = %v, want saturation", got.Phase)
	}
	if math.Abs(got.Pressure-27307.75) > 1e-6 {
		t.Errorf("pressure = %v, want 27307.75", got.Pressure)
	}
}

func TestClassifyContinuityAtVacuumBoundary(t *testing.T) {
	table := singleTypeTable(t, 1.0, 2.0)
	c := NewClassifier(table, testGamma)

	below := c.Classify(Mixture{40 - 1e-9}, 40)
	above := c.Classify(Mixture{40 + 1e-9}, 40)
	if below.Phase != PhaseVacuum || above.Phase != PhaseCompression {
		t.Fatalf("phases = %v/%v, want vacuum/compression", below.Phase, above.Phase)
	}
	if math.Abs(above.Pressure-below.Pressure) > 1e-6 {
		t.Errorf("pressure jumps across vacuum boundary: %v vs %v", below.Pressure, above.Pressure)
	}
}

func TestClassifyContinuityAtSaturationBoundary(t *testing.T) {
	table := singleTypeTable(t, 0.5, 1.0)
	c := NewClassifier(table, testGamma)

	// Critical partial density is crossed at mass 40 in a limit of 40.
	below := c.Classify(Mixture{40 - 1e-9}, 40)
	above := c.Classify(Mixture{40 + 1e-9}, 40)
	if below.Phase != PhaseCompression || above.Phase != PhaseSaturation {
		t.Fatalf("phases = %v/%v, want compression/saturation", below.Phase, above.Phase)
	}
	if math.Abs(above.Pressure-below.Pressure) > 1e-4 {
		t.Errorf("pressure jumps across saturation boundary: %v vs %v", below.Pressure, above.Pressure)
	}
}

func TestClassifyPressureMonotonicInTotalMass(t *testing.T) {
	table := MustTable([]Def{
		{Name: "a", VacuumDensity: 1, CriticalPressure: 1.5, Viscosity: 1},
		{Name: "b", VacuumDensity: 2, CriticalPressure: 0.8, Viscosity: 1},
	})
	c := NewClassifier(table, testGamma)

	// Fixed 70/30 composition, total mass swept through all three phases.
	prev := -1.0
	for total := 1.0; total <= 200; total += 0.5 {
		got := c.Classify(Mixture{0.7 * total, 0.3 * total}, 40)
		if got.Pressure < prev-1e-12 {
			t.Fatalf("pressure fell from %v to %v at total mass %v", prev, got.Pressure, total)
		}
		if got.Pressure < 0 {
			t.Fatalf("negative pressure %v at total mass %v", got.Pressure, total)
		}
		prev = got.Pressure
	}
}

func TestClassifyPure(t *testing.T) {
	table := singleTypeTable(t, 1.0, 1.0)
	c := NewClassifier(table, testGamma)

	mix := Mixture{50}
	before := mix.Clone()
	first := c.Classify(mix, 40)
	second := c.Classify(mix, 40)
	if first != second {
		t.Errorf("Classify not idempotent: %+v vs %+v", first, second)
	}
	if mix[0] != before[0] {
		t.Errorf("Classify modified the mixture: %v -> %v", before[0], mix[0])
	}
}

func TestVacuumVolume(t *testing.T) {
	table := MustTable([]Def{
		{Name: "a", VacuumDensity: 1, CriticalPressure: 1, Viscosity: 1},
		{Name: "b", VacuumDensity: 2, CriticalPressure: 1, Viscosity: 1},
	})
	c := NewClassifier(table, testGamma)
	got := c.VacuumVolume(Mixture{10, 10})
	if math.Abs(got-15) > 1e-9 {
		t.Errorf("VacuumVolume = %v, want 15", got)
	}
}
