package fluid

// Mixture is a dense per-type mass vector indexed by ID. A zero entry and an
// absent type mean the same thing; the slice always spans the full table, so
// a transfer can deposit a previously-absent type without reallocating.
type Mixture []float64

// NewMixture returns an empty mixture sized for a table of n types.
func NewMixture(n int) Mixture { return make(Mixture, n) }

// Mass returns the mass of type id, zero when the mixture does not track it.
func (m Mixture) Mass(id ID) float64 {
	if int(id) >= len(m) {
		return 0
	}
	return m[id]
}

// Add deposits dm mass of type id.
func (m Mixture) Add(id ID, dm float64) { m[id] += dm }

// Total returns the summed mass across all types.
func (m Mixture) Total() float64 {
	total := 0.0
	for _, mass := range m {
		total += mass
	}
	return total
}

// Clone returns an independent copy.
func (m Mixture) Clone() Mixture {
	return append(Mixture(nil), m...)
}
