package fluid

// Phase labels the physical regime of a vessel's contents.
type Phase uint8

const (
	// PhaseVacuum: the mixture at vacuum density does not fill the vessel.
	PhaseVacuum Phase = iota
	// PhaseCompression: the vessel is full and every component sits at or
	// below its critical pressure.
	PhaseCompression
	// PhaseSaturation: the vessel is full and at least one component is
	// squeezed past its critical pressure.
	PhaseSaturation
)

func (p Phase) String() string {
	switch p {
	case PhaseVacuum:
		return "vacuum"
	case PhaseCompression:
		return "compression"
	case PhaseSaturation:
		return "saturation"
	}
	return "unknown"
}

// State is the physical state derived from a mixture inside a volume limit.
type State struct {
	Phase    Phase
	Volume   float64 // occupied volume, never above the vessel's limit
	Pressure float64
}

// Classifier derives phase, volume, and pressure from mixtures. It is pure:
// the same mixture and limit always yield the same state, and the mixture is
// never modified.
type Classifier struct {
	table *Table
	gamma float64
}

// NewClassifier binds a classifier to a type table. gamma is the saturation
// steepness constant applied past critical pressure.
func NewClassifier(table *Table, gamma float64) *Classifier {
	return &Classifier{table: table, gamma: gamma}
}

// VacuumVolume returns the volume the mixture occupies when every component
// rests at its vacuum density.
func (c *Classifier) VacuumVolume(mix Mixture) float64 {
	vol := 0.0
	for id, mass := range mix {
		if mass <= 0 {
			continue
		}
		vol += mass / c.table.defs[id].VacuumDensity
	}
	return vol
}

// Classify derives the state of mix inside volumeLimit.
//
// If the mixture at vacuum density leaves slack, the phase is vacuum: volume
// is the vacuum volume and each type contributes mass/volumeLimit of
// pressure. Otherwise the vessel is full: a type at partial density
// q = mass/volume contributes q up to its critical pressure and
// q*gamma + critical*(1-gamma)*mass/total past it, which pins the
// contribution to exactly the critical pressure at the boundary and climbs
// steeply beyond.
func (c *Classifier) Classify(mix Mixture, volumeLimit float64) State {
	total := 0.0
	vacuumVol := 0.0
	for id, mass := range mix {
		if mass <= 0 {
			continue
		}
		total += mass
		vacuumVol += mass / c.table.defs[id].VacuumDensity
	}
	if total <= 0 {
		return State{Phase: PhaseVacuum}
	}
	if vacuumVol < volumeLimit {
		return State{
			Phase:    PhaseVacuum,
			Volume:   vacuumVol,
			Pressure: total / volumeLimit,
		}
	}

	pressure := 0.0
	saturated := false
	for id, mass := range mix {
		if mass <= 0 {
			continue
		}
		q := mass / volumeLimit
		crit := c.table.defs[id].CriticalPressure
		if q <= crit {
			pressure += q
			continue
		}
		saturated = true
		pressure += q*c.gamma + crit*(1-c.gamma)*mass/total
	}
	phase := PhaseCompression
	if saturated {
		phase = PhaseSaturation
	}
	return State{Phase: phase, Volume: volumeLimit, Pressure: pressure}
}
