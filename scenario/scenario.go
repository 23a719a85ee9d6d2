// Package scenario loads declarative network descriptions: fluid types,
// vessels, ducts, pumps, and the ambient resistance field, in YAML. A
// scenario validates as a whole and instantiates into a live simulation.
package scenario

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/plenum/components"
	"github.com/pthm-cable/plenum/config"
	"github.com/pthm-cable/plenum/fluid"
	"github.com/pthm-cable/plenum/sim"
)

//go:embed default.yaml
var defaultYAML []byte

// VesselSpec declares one vessel and its starting contents, keyed by fluid
// type name.
type VesselSpec struct {
	Name          string             `yaml:"name"`
	VolumeLimit   float64            `yaml:"volume_limit"`
	PressureLimit float64            `yaml:"pressure_limit"`
	Contents      map[string]float64 `yaml:"contents,omitempty"`
}

// DuctSpec declares one duct between two named vessels. Length only matters
// for corridor ducts.
type DuctSpec struct {
	Alpha  string  `yaml:"alpha"`
	Beta   string  `yaml:"beta"`
	Kind   string  `yaml:"kind"`
	Length float64 `yaml:"length,omitempty"`
	Radius float64 `yaml:"radius"`
}

// PumpSpec applies a constant directed force to the duct at the given index,
// optionally only inside a tick window. Until zero means forever.
type PumpSpec struct {
	Duct  int     `yaml:"duct"`
	Force float64 `yaml:"force"`
	From  int64   `yaml:"from,omitempty"`
	Until int64   `yaml:"until,omitempty"`
}

// FieldSpec parameterizes the ambient resistance field sampled per duct per
// tick. Amplitude zero disables the field entirely.
type FieldSpec struct {
	Amplitude float64 `yaml:"amplitude"`
	Scale     float64 `yaml:"scale,omitempty"`
	TimeSpeed float64 `yaml:"time_speed,omitempty"`
	Floor     float64 `yaml:"floor,omitempty"`
	Seed      int64   `yaml:"seed,omitempty"`
}

// Scenario is a complete network description.
type Scenario struct {
	Name    string       `yaml:"name"`
	Types   []fluid.Def  `yaml:"types"`
	Vessels []VesselSpec `yaml:"vessels"`
	Ducts   []DuctSpec   `yaml:"ducts,omitempty"`
	Pumps   []PumpSpec   `yaml:"pumps,omitempty"`
	Field   FieldSpec    `yaml:"field,omitempty"`
}

// Default returns the embedded default scenario.
func Default() (*Scenario, error) {
	return parse(defaultYAML, "embedded default scenario")
}

// Load reads a scenario file; an empty path falls back to the embedded
// default.
func Load(path string) (*Scenario, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, label string) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", label, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return &sc, nil
}

// Validate checks the scenario's internal consistency: the type table
// stands on its own, vessels are well-formed and uniquely named, ducts
// reference existing vessels, and pumps reference existing ducts.
func (sc *Scenario) Validate() error {
	table, err := fluid.NewTable(sc.Types)
	if err != nil {
		return err
	}
	if len(sc.Vessels) == 0 {
		return fmt.Errorf("scenario has no vessels")
	}
	names := make(map[string]bool, len(sc.Vessels))
	for i, v := range sc.Vessels {
		if v.Name == "" {
			return fmt.Errorf("vessel %d has no name", i)
		}
		if names[v.Name] {
			return fmt.Errorf("duplicate vessel name %q", v.Name)
		}
		names[v.Name] = true
		if !(v.VolumeLimit > 0) {
			return fmt.Errorf("vessel %q: volume_limit must be positive, got %v", v.Name, v.VolumeLimit)
		}
		if !(v.PressureLimit > 0) {
			return fmt.Errorf("vessel %q: pressure_limit must be positive, got %v", v.Name, v.PressureLimit)
		}
		for typeName, mass := range v.Contents {
			if _, ok := table.ByName(typeName); !ok {
				return fmt.Errorf("vessel %q: unknown fluid type %q", v.Name, typeName)
			}
			if mass < 0 {
				return fmt.Errorf("vessel %q: mass of %q must be non-negative, got %v", v.Name, typeName, mass)
			}
		}
	}
	for i, d := range sc.Ducts {
		if !names[d.Alpha] {
			return fmt.Errorf("duct %d: unknown vessel %q", i, d.Alpha)
		}
		if !names[d.Beta] {
			return fmt.Errorf("duct %d: unknown vessel %q", i, d.Beta)
		}
		if d.Alpha == d.Beta {
			return fmt.Errorf("duct %d: endpoints must differ", i)
		}
		kind, err := components.ParseDuctKind(d.Kind)
		if err != nil {
			return fmt.Errorf("duct %d: %w", i, err)
		}
		if d.Radius < 0 {
			return fmt.Errorf("duct %d: radius must be non-negative, got %v", i, d.Radius)
		}
		if kind == components.DuctCorridor && !(d.Length > 0) {
			return fmt.Errorf("duct %d: corridor length must be positive, got %v", i, d.Length)
		}
	}
	for i, p := range sc.Pumps {
		if p.Duct < 0 || p.Duct >= len(sc.Ducts) {
			return fmt.Errorf("pump %d: duct index %d out of range", i, p.Duct)
		}
		if p.From < 0 {
			return fmt.Errorf("pump %d: from must be non-negative, got %d", i, p.From)
		}
		if p.Until != 0 && p.Until < p.From {
			return fmt.Errorf("pump %d: until %d precedes from %d", i, p.Until, p.From)
		}
	}
	f := sc.Field
	if f.Amplitude < 0 || f.Scale < 0 || f.TimeSpeed < 0 || f.Floor < 0 {
		return fmt.Errorf("field parameters must be non-negative")
	}
	return nil
}

// Build instantiates the scenario into a live simulation under cfg.
func (sc *Scenario) Build(cfg *config.Config) (*sim.Simulation, error) {
	table, err := fluid.NewTable(sc.Types)
	if err != nil {
		return nil, err
	}
	drives := newDriveSource(sc.Pumps, sc.Field)
	s, err := sim.NewSimulation(sim.Options{Config: cfg, Table: table, Drives: drives})
	if err != nil {
		return nil, err
	}
	for _, spec := range sc.Vessels {
		v, err := s.AddVessel(spec.Name, spec.VolumeLimit, spec.PressureLimit)
		if err != nil {
			s.Close()
			return nil, err
		}
		for typeName, mass := range spec.Contents {
			id, _ := table.ByName(typeName)
			if err := s.Deposit(v, id, mass); err != nil {
				s.Close()
				return nil, err
			}
		}
	}
	for i, spec := range sc.Ducts {
		kind, _ := components.ParseDuctKind(spec.Kind)
		alpha, _ := s.Lookup(spec.Alpha)
		beta, _ := s.Lookup(spec.Beta)
		duct, err := s.Connect(alpha, beta, kind, spec.Length, spec.Radius)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("duct %d: %w", i, err)
		}
		if id, ok := s.DuctID(duct); ok {
			drives.bind(id, i)
		}
	}
	return s, nil
}

// WriteYAML writes the scenario to path, so a run's inputs can be
// reproduced later.
func (sc *Scenario) WriteYAML(path string) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshaling scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing scenario to %s: %w", path, err)
	}
	return nil
}
