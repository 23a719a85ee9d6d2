// Package fluid defines the fluid type system and the phase classifier:
// the pure state model underneath vessels and ducts.
package fluid

import (
	"fmt"
	"math"
)

// ID indexes a fluid type within a Table. IDs are dense and stable for the
// lifetime of the table; mixtures and per-type scratch buffers use them as
// slice indices.
type ID uint8

// MaxTypes is the largest number of fluid types one table can hold.
const MaxTypes = 256

// Def holds the immutable physical constants of one fluid type.
type Def struct {
	Name    string `yaml:"name"`
	Summary string `yaml:"summary,omitempty"`

	// VacuumDensity is the density the fluid settles at when it has room to
	// spare, in mass per volume. Divides mass into occupied volume in the
	// vacuum phase.
	VacuumDensity float64 `yaml:"vacuum_density"`
	// CriticalPressure is the partial pressure above which the fluid stops
	// compressing linearly and the saturation penalty takes over.
	CriticalPressure float64 `yaml:"critical_pressure"`
	// Viscosity scales transfer resistance on ducts.
	Viscosity float64 `yaml:"viscosity"`
}

// Validate checks the positivity constraints on the type constants.
func (d *Def) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("fluid type name must not be empty")
	}
	if !positiveFinite(d.VacuumDensity) {
		return fmt.Errorf("fluid type %q: vacuum_density must be positive, got %v", d.Name, d.VacuumDensity)
	}
	if !positiveFinite(d.CriticalPressure) {
		return fmt.Errorf("fluid type %q: critical_pressure must be positive, got %v", d.Name, d.CriticalPressure)
	}
	if !positiveFinite(d.Viscosity) {
		return fmt.Errorf("fluid type %q: viscosity must be positive, got %v", d.Name, d.Viscosity)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Table is the immutable set of fluid types for one simulation. Vessels and
// ducts reference types by ID; the table is shared by reference and never
// mutated after construction.
type Table struct {
	defs   []Def
	byName map[string]ID
}

// NewTable validates defs and builds the lookup table.
func NewTable(defs []Def) (*Table, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("no fluid types defined")
	}
	if len(defs) > MaxTypes {
		return nil, fmt.Errorf("too many fluid types: %d (limit %d)", len(defs), MaxTypes)
	}
	t := &Table{
		defs:   append([]Def(nil), defs...),
		byName: make(map[string]ID, len(defs)),
	}
	for i := range t.defs {
		d := &t.defs[i]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := t.byName[d.Name]; ok {
			return nil, fmt.Errorf("duplicate fluid type name %q", d.Name)
		}
		t.byName[d.Name] = ID(i)
	}
	return t, nil
}

// MustTable is NewTable for fixtures where a bad definition is a programming
// error.
func MustTable(defs []Def) *Table {
	t, err := NewTable(defs)
	if err != nil {
		panic(fmt.Sprintf("fluid: %v", err))
	}
	return t
}

// Len returns the number of fluid types.
func (t *Table) Len() int { return len(t.defs) }

// Def returns the definition of one type. The pointer aliases table storage
// and must not be written through.
func (t *Table) Def(id ID) *Def { return &t.defs[id] }

// ByName resolves a type name to its ID.
func (t *Table) ByName(name string) (ID, bool) {
	id, ok := t.byName[name]
	return id, ok
}
