package telemetry

import (
	"fmt"
	"math"
)

// Bookmark flags a stats window worth revisiting in the output.
type Bookmark struct {
	Tick int64
	Kind EventType
	Note string
}

// BookmarkDetector watches flushed windows for notable conditions: the
// first explosion, the network settling into equilibrium, and total-mass
// drift beyond tolerance. Mass drift is a correctness alarm; the solver is
// supposed to conserve mass to rounding error.
type BookmarkDetector struct {
	driftTolerance float64
	flowEpsilon    float64

	baselineMass  float64
	baselineSet   bool
	sawExplosion  bool
	inEquilibrium bool
}

// NewBookmarkDetector builds a detector. driftTolerance bounds acceptable
// total-mass drift; flowEpsilon is the mass-moved level below which a
// window counts as settled.
func NewBookmarkDetector(driftTolerance, flowEpsilon float64) *BookmarkDetector {
	return &BookmarkDetector{driftTolerance: driftTolerance, flowEpsilon: flowEpsilon}
}

// Check inspects one flushed window and returns any bookmarks it triggers.
func (d *BookmarkDetector) Check(s WindowStats) []Bookmark {
	var marks []Bookmark

	if !d.baselineSet {
		d.baselineMass = s.TotalMass
		d.baselineSet = true
	}

	if s.Explosions > 0 && !d.sawExplosion {
		d.sawExplosion = true
		marks = append(marks, Bookmark{
			Tick: s.Tick,
			Kind: EventExplosion,
			Note: fmt.Sprintf("first explosion window (%d ruptures)", s.Explosions),
		})
	}

	if drift := math.Abs(s.TotalMass - d.baselineMass); drift > d.driftTolerance {
		marks = append(marks, Bookmark{
			Tick: s.Tick,
			Kind: EventMassDrift,
			Note: fmt.Sprintf("total mass drifted by %g", drift),
		})
		// Re-arm on the new level so one excursion logs once.
		d.baselineMass = s.TotalMass
	}

	if s.MassMoved <= d.flowEpsilon && s.Explosions == 0 {
		if !d.inEquilibrium {
			d.inEquilibrium = true
			marks = append(marks, Bookmark{Tick: s.Tick, Kind: EventEquilibrium, Note: "flow settled"})
		}
	} else {
		d.inEquilibrium = false
	}

	return marks
}
