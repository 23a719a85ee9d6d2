package systems

// OverpressureStep advances a vessel's consecutive over-limit streak using
// the pressure committed this tick. The streak resets the moment pressure
// is back at or below the limit. Reaching threshold reports a rupture; the
// caller resets the streak after handling it.
func OverpressureStep(streak int32, pressure, limit float64, threshold int32) (int32, bool) {
	if pressure <= limit {
		return 0, false
	}
	streak++
	return streak, streak >= threshold
}
