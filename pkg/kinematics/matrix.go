package kinematics

import (
	"github.com/matthewSorensen/printipi/pkg/config"
)

// Transform is the bed-leveling transform applied to (x, y, z) before
// inverse kinematics. The matrix is stored as integer numerators over a
// shared denominator so repeated application never drifts; the float
// inverse is computed once for the reverse mapping.
type Transform struct {
	num   [9]int64
	denom int64
	inv   [9]float64
	ident bool
}

// NewTransform builds a Transform from a configured bed matrix.
func NewTransform(m config.BedMatrix) *Transform {
	t := &Transform{num: m.Num, denom: m.Denom, ident: m.Identity()}
	if !t.ident {
		t.inv = invert3(m)
	}
	return t
}

// Apply maps a point through the matrix.
func (t *Transform) Apply(x, y, z float64) (float64, float64, float64) {
	if t.ident {
		return x, y, z
	}
	d := float64(t.denom)
	ax := (float64(t.num[0])*x + float64(t.num[1])*y + float64(t.num[2])*z) / d
	ay := (float64(t.num[3])*x + float64(t.num[4])*y + float64(t.num[5])*z) / d
	az := (float64(t.num[6])*x + float64(t.num[7])*y + float64(t.num[8])*z) / d
	return ax, ay, az
}

// ApplyInverse maps a point through the matrix inverse.
func (t *Transform) ApplyInverse(x, y, z float64) (float64, float64, float64) {
	if t.ident {
		return x, y, z
	}
	ax := t.inv[0]*x + t.inv[1]*y + t.inv[2]*z
	ay := t.inv[3]*x + t.inv[4]*y + t.inv[5]*z
	az := t.inv[6]*x + t.inv[7]*y + t.inv[8]*z
	return ax, ay, az
}

// invert3 computes the float inverse of the integer-ratio matrix by
// cofactor expansion. Leveling matrices are near-identity rotations, so
// the determinant is never near zero in practice.
func invert3(m config.BedMatrix) [9]float64 {
	d := float64(m.Denom)
	a := [9]float64{}
	for i, n := range m.Num {
		a[i] = float64(n) / d
	}

	c00 := a[4]*a[8] - a[5]*a[7]
	c01 := a[5]*a[6] - a[3]*a[8]
	c02 := a[3]*a[7] - a[4]*a[6]
	det := a[0]*c00 + a[1]*c01 + a[2]*c02

	return [9]float64{
		c00 / det, (a[2]*a[7] - a[1]*a[8]) / det, (a[1]*a[5] - a[2]*a[4]) / det,
		c01 / det, (a[0]*a[8] - a[2]*a[6]) / det, (a[2]*a[3] - a[0]*a[5]) / det,
		c02 / det, (a[1]*a[6] - a[0]*a[7]) / det, (a[0]*a[4] - a[1]*a[3]) / det,
	}
}
