package components

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"
)

// DuctKind selects the shape-resistance model of a duct.
type DuctKind uint8

const (
	// DuctCorridor is a pipe run through a corridor: resistance grows with
	// length and falls with the fourth power of radius.
	DuctCorridor DuctKind = iota
	// DuctInterBuilding connects two structures directly; the structure
	// radius stands in for both length and bore.
	DuctInterBuilding
)

func (k DuctKind) String() string {
	switch k {
	case DuctCorridor:
		return "corridor"
	case DuctInterBuilding:
		return "inter_building"
	}
	return "unknown"
}

// ParseDuctKind maps scenario strings onto duct kinds.
func ParseDuctKind(s string) (DuctKind, error) {
	switch s {
	case "corridor":
		return DuctCorridor, nil
	case "inter_building":
		return DuctInterBuilding, nil
	}
	return 0, fmt.Errorf("unknown duct kind %q", s)
}

// Duct is the static geometry of one transfer link between two vessels.
// Alpha/beta order is arbitrary; it only fixes the sign of flow (positive
// moves mass alpha to beta).
type Duct struct {
	ID     uint32
	Kind   DuctKind
	Length float64
	Radius float64 // zero blocks the duct entirely
	Alpha  ecs.Entity
	Beta   ecs.Entity
}

// Drive carries the per-tick transport inputs supplied from outside the
// solver: pump force and the ambient field's resistance multiplier.
type Drive struct {
	Force           float64
	FieldMultiplier float64
}
