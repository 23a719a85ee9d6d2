package telemetry

// EventType tags one discrete occurrence worth a row in events.csv.
type EventType uint8

const (
	EventExplosion EventType = iota
	EventEquilibrium
	EventMassDrift
)

func (e EventType) String() string {
	switch e {
	case EventExplosion:
		return "explosion"
	case EventEquilibrium:
		return "equilibrium"
	case EventMassDrift:
		return "mass_drift"
	}
	return "unknown"
}

// Event is one row of the event log.
type Event struct {
	Tick int64  `csv:"tick"`
	Type string `csv:"type"`
	// Optional fields depending on event type.
	Vessel    string  `csv:"vessel"`
	Pressure  float64 `csv:"pressure"`
	TotalMass float64 `csv:"total_mass"`
	Severed   int     `csv:"severed"`
	Note      string  `csv:"note"`
}

// NewExplosionEvent records a vessel rupturing at pressure with totalMass
// aboard, severing n ducts.
func NewExplosionEvent(tick int64, vessel string, pressure, totalMass float64, severed int) Event {
	return Event{
		Tick:      tick,
		Type:      EventExplosion.String(),
		Vessel:    vessel,
		Pressure:  pressure,
		TotalMass: totalMass,
		Severed:   severed,
	}
}

// NewBookmarkEvent records a bookmark as an event row.
func NewBookmarkEvent(b Bookmark) Event {
	return Event{Tick: b.Tick, Type: b.Kind.String(), Note: b.Note}
}
