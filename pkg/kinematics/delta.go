package kinematics

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/config"
)

// Tower angles in degrees. A and B flank the front of the machine, C is
// at the rear, matching the usual linear-delta convention.
var deltaAngles = [3]float64{210, 330, 90}

// DeltaMap is the CoordMap for a linear-delta machine: three towers at
// radius R from the center, rods of length L joining each carriage to
// the effector, carriages homing to endstops at column height H.
type DeltaMap struct {
	radius      float64
	rodLength   float64
	arm2        float64 // rodLength squared
	height      float64
	buildRad2   float64
	stepsPerMM  float64 // tower carriage steps
	extSteps    float64 // extruder steps
	towers      [3][2]float64
	transform   *Transform
	homingAxes  []int
	homePos     Position
}

// NewDelta builds a DeltaMap from configured geometry.
func NewDelta(g config.DeltaGeometry, extStepsPerMM float64, level config.BedMatrix) *DeltaMap {
	d := &DeltaMap{
		radius:     g.Radius,
		rodLength:  g.RodLength,
		arm2:       g.RodLength * g.RodLength,
		height:     g.Height,
		buildRad2:  g.BuildRadius * g.BuildRadius,
		stepsPerMM: g.StepsPerMM,
		extSteps:   extStepsPerMM,
		transform:  NewTransform(level),
		homingAxes: []int{AxisA, AxisB, AxisC},
	}
	for i, deg := range deltaAngles {
		rad := deg * math.Pi / 180
		d.towers[i] = [2]float64{g.Radius * math.Cos(rad), g.Radius * math.Sin(rad)}
	}
	homeSteps := roundSteps(g.Height, g.StepsPerMM)
	d.homePos = Position{homeSteps, homeSteps, homeSteps, 0}
	return d
}

// Towers returns the tower base XY positions.
func (d *DeltaMap) Towers() [3][2]float64 {
	return d.towers
}

// StepsPerMM returns the carriage steps-per-mm for a tower axis, or the
// extruder scale for AxisE.
func (d *DeltaMap) StepsPerMM(axis int) float64 {
	if axis == AxisE {
		return d.extSteps
	}
	return d.stepsPerMM
}

// RodLengthSquared returns L².
func (d *DeltaMap) RodLengthSquared() float64 {
	return d.arm2
}

// Transform returns the bed-leveling transform.
func (d *DeltaMap) Transform() *Transform {
	return d.transform
}

// CarriageHeight solves the rod constraint for one tower: the carriage
// height (mm) that places the effector at the leveled point (x, y, z).
// Returns NaN when the point is out of the tower's reach.
func (d *DeltaMap) CarriageHeight(tower int, x, y, z float64) float64 {
	dx := x - d.towers[tower][0]
	dy := y - d.towers[tower][1]
	return z + math.Sqrt(d.arm2-dx*dx-dy*dy)
}

// CartesianToMechanical maps (x, y, z, e) to tower carriage heights and
// extruder advance, in steps.
func (d *DeltaMap) CartesianToMechanical(x, y, z, e float64) (Position, error) {
	if x*x+y*y > d.buildRad2 || z < 0 || z > d.height {
		return Position{}, unreachable(x, y, z)
	}
	lx, ly, lz := d.transform.Apply(x, y, z)
	var pos Position
	for i := 0; i < 3; i++ {
		h := d.CarriageHeight(i, lx, ly, lz)
		if math.IsNaN(h) || h < 0 || h > d.height {
			return Position{}, unreachable(x, y, z)
		}
		pos[i] = roundSteps(h, d.stepsPerMM)
	}
	pos[AxisE] = roundSteps(e, d.extSteps)
	return pos, nil
}

// MechanicalToCartesian recovers the effector position from carriage
// heights by intersecting the three rod spheres. An empty intersection
// yields NaN coordinates.
func (d *DeltaMap) MechanicalToCartesian(pos Position) (x, y, z, e float64) {
	heights := [3]float64{
		float64(pos[AxisA]) / d.stepsPerMM,
		float64(pos[AxisB]) / d.stepsPerMM,
		float64(pos[AxisC]) / d.stepsPerMM,
	}
	lx, ly, lz := d.trilaterate(heights)
	x, y, z = d.transform.ApplyInverse(lx, ly, lz)
	e = float64(pos[AxisE]) / d.extSteps
	return x, y, z, e
}

// HomePosition returns all carriages at the column top, extruder at zero.
func (d *DeltaMap) HomePosition() Position {
	return d.homePos
}

// HomingAxes returns the tower axes.
func (d *DeltaMap) HomingAxes() []int {
	return d.homingAxes
}

// trilaterate finds the point at distance L from each carriage, taking
// the solution below the carriages.
func (d *DeltaMap) trilaterate(heights [3]float64) (float64, float64, float64) {
	p1 := [3]float64{d.towers[0][0], d.towers[0][1], heights[0]}
	p2 := [3]float64{d.towers[1][0], d.towers[1][1], heights[1]}
	p3 := [3]float64{d.towers[2][0], d.towers[2][1], heights[2]}

	s21 := sub3(p2, p1)
	s31 := sub3(p3, p1)

	dist := math.Sqrt(dot3(s21, s21))
	ex := scale3(s21, 1/dist)
	i := dot3(ex, s31)
	vey := sub3(s31, scale3(ex, i))
	ey := scale3(vey, 1/math.Sqrt(dot3(vey, vey)))
	ez := cross3(ex, ey)
	j := dot3(ey, s31)

	// Equal rod lengths on all towers collapse the usual trilateration
	// radicals: the x offset is simply half the tower-1/tower-2 spacing.
	x := dist / 2
	y := (i*i + j*j - 2*i*x) / (2 * j)
	z := -math.Sqrt(d.arm2 - x*x - y*y)

	return p1[0] + ex[0]*x + ey[0]*y + ez[0]*z,
		p1[1] + ex[1]*x + ey[1]*y + ez[1]*z,
		p1[2] + ex[2]*x + ey[2]*y + ez[2]*z
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func scale3(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
