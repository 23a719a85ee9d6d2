// Package systems holds the pure per-tick math of the transfer solver:
// duct resistance, per-type flow rates, and the over-pressure streak.
package systems

import (
	"math"

	"github.com/pthm-cable/plenum/components"
	"github.com/pthm-cable/plenum/fluid"
)

// EndpointState is a read-only snapshot of one duct endpoint at tick start.
type EndpointState struct {
	Pressure float64
	Volume   float64
	Mix      fluid.Mixture
}

// DuctParams are the per-tick transfer parameters of one duct.
type DuctParams struct {
	ShapeResistance float64
	Force           float64
	FieldMultiplier float64
}

// ShapeResistance returns the geometric part of a duct's resistance.
// Corridor ducts: length / radius^4. Inter-building ducts: 1 / radius^3.
// A non-positive radius yields infinite resistance: the duct is blocked.
func ShapeResistance(kind components.DuctKind, length, radius float64) float64 {
	if radius <= 0 {
		return math.Inf(1)
	}
	r2 := radius * radius
	if kind == components.DuctInterBuilding {
		return 1 / (r2 * radius)
	}
	return length / (r2 * r2)
}

// gradientFlow converts a pressure gradient into a mass rate. Resistance
// that is not strictly positive and finite contributes nothing rather than
// a division fault.
func gradientFlow(gradient, resistance float64) float64 {
	if !(resistance > 0) || math.IsInf(resistance, 1) {
		return 0
	}
	return gradient / resistance
}

// concentration is mass per occupied volume, zero for empty vessels.
func concentration(mass, volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	return mass / volume
}

// DuctTransfer computes the per-type mass moved across one duct in dt,
// positive alpha to beta, into out (which must span the fluid table).
// The rate per type is
//
//	rate[t] = gradient/resistance[t] + force + diffusion[t]
//
// with resistance[t] = shape * viscosity[t] * fieldMultiplier, gradient the
// endpoint pressure difference, and diffusion proportional to the
// concentration gap. Each combined delta is clamped so this duct alone
// cannot overdraw its source endpoint; the return value counts the types
// that hit the clamp. A blocked duct (infinite shape resistance) moves
// nothing at all.
func DuctTransfer(table *fluid.Table, alpha, beta EndpointState, p DuctParams, diffusionCoeff, dt float64, out []float64) int {
	for i := range out {
		out[i] = 0
	}
	if !(p.ShapeResistance > 0) || math.IsInf(p.ShapeResistance, 1) {
		return 0
	}

	gradient := alpha.Pressure - beta.Pressure
	clamped := 0
	for i := range out {
		id := fluid.ID(i)
		ma := alpha.Mix.Mass(id)
		mb := beta.Mix.Mass(id)
		if ma <= 0 && mb <= 0 {
			continue
		}
		resistance := p.ShapeResistance * table.Def(id).Viscosity * p.FieldMultiplier
		rate := gradientFlow(gradient, resistance) + p.Force
		if diffusionCoeff > 0 {
			rate += diffusionCoeff * (concentration(ma, alpha.Volume) - concentration(mb, beta.Volume))
		}
		d := rate * dt
		if d > ma {
			d = ma
			clamped++
		} else if d < -mb {
			d = -mb
			clamped++
		}
		out[i] = d
	}
	return clamped
}
