package scenario

import (
	"math"
	"math/rand"
)

const (
	defaultFieldScale     = 10.0
	defaultFieldTimeSpeed = 0.01
	defaultFieldFloor     = 0.25
)

func (f FieldSpec) withDefaults() FieldSpec {
	if f.Amplitude <= 0 {
		return f
	}
	if f.Scale <= 0 {
		f.Scale = defaultFieldScale
	}
	if f.TimeSpeed <= 0 {
		f.TimeSpeed = defaultFieldTimeSpeed
	}
	if f.Floor <= 0 {
		f.Floor = defaultFieldFloor
	}
	return f
}

// driveSource feeds pump forces and the ambient field multiplier to the
// simulation. Pumps are declared against scenario duct indices and bound to
// live duct IDs as the ducts are created.
type driveSource struct {
	specs  []PumpSpec
	byDuct map[uint32][]PumpSpec
	field  FieldSpec
	noise  *fieldNoise
}

func newDriveSource(pumps []PumpSpec, field FieldSpec) *driveSource {
	d := &driveSource{
		specs:  pumps,
		byDuct: make(map[uint32][]PumpSpec),
		field:  field.withDefaults(),
	}
	if d.field.Amplitude > 0 {
		d.noise = newFieldNoise(d.field.Seed)
	}
	return d
}

// bind attaches the pumps declared against scenario duct index to a live
// duct ID.
func (d *driveSource) bind(ductID uint32, index int) {
	for _, p := range d.specs {
		if p.Duct == index {
			d.byDuct[ductID] = append(d.byDuct[ductID], p)
		}
	}
}

// Drive sums the pumps active on the duct this tick and samples the field
// multiplier, coherent across neighboring ticks and distinct per duct.
func (d *driveSource) Drive(tick int64, ductID uint32) (float64, float64) {
	force := 0.0
	for _, p := range d.byDuct[ductID] {
		if tick < p.From {
			continue
		}
		if p.Until > 0 && tick > p.Until {
			continue
		}
		force += p.Force
	}
	mult := 1.0
	if d.noise != nil {
		n := d.noise.sample(float64(ductID)*d.field.Scale, float64(tick)*d.field.TimeSpeed)
		mult = 1 + d.field.Amplitude*n
		if mult < d.field.Floor {
			mult = d.field.Floor
		}
		if mult < 0 {
			mult = 0
		}
	}
	return force, mult
}

// fieldNoise is seeded 2D Perlin noise. The same seed always produces the
// same field, which keeps scenario runs reproducible.
type fieldNoise struct {
	perm [512]int
}

func newFieldNoise(seed int64) *fieldNoise {
	n := &fieldNoise{}
	rng := rand.New(rand.NewSource(seed))

	var perm [256]int
	for i := range perm {
		perm[i] = i
	}
	for i := len(perm) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	for i := 0; i < 256; i++ {
		n.perm[i] = perm[i]
		n.perm[i+256] = perm[i]
	}
	return n
}

// sample returns coherent noise at (x, y), roughly in [-1, 1].
func (n *fieldNoise) sample(x, y float64) float64 {
	xi := int(math.Floor(x)) & 255
	yi := int(math.Floor(y)) & 255
	x -= math.Floor(x)
	y -= math.Floor(y)
	u := fade(x)
	v := fade(y)

	a := n.perm[xi] + yi
	b := n.perm[xi+1] + yi

	return lerp(v,
		lerp(u, grad2(n.perm[a], x, y), grad2(n.perm[b], x-1, y)),
		lerp(u, grad2(n.perm[a+1], x, y-1), grad2(n.perm[b+1], x-1, y-1)))
}

func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(t, a, b float64) float64 {
	return a + t*(b-a)
}

func grad2(hash int, x, y float64) float64 {
	switch hash & 7 {
	case 0:
		return x + y
	case 1:
		return x - y
	case 2:
		return -x + y
	case 3:
		return -x - y
	case 4:
		return x
	case 5:
		return -x
	case 6:
		return y
	default:
		return -y
	}
}
