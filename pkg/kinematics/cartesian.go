package kinematics

import (
	"math"

	"github.com/matthewSorensen/printipi/pkg/config"
)

// CartesianMap is the CoordMap for a cartesian machine: each mechanical
// axis is a cartesian axis scaled by its steps-per-mm. Axes home to
// their minimum position.
type CartesianMap struct {
	stepsPerMM [3]float64
	extSteps   float64
	axisMax    [3]float64
	transform  *Transform
	homingAxes []int
}

// NewCartesian builds a CartesianMap. axisMax bounds each axis in mm;
// a zero entry leaves that axis unbounded.
func NewCartesian(stepsPerMM [3]float64, extStepsPerMM float64, axisMax [3]float64, level config.BedMatrix) *CartesianMap {
	return &CartesianMap{
		stepsPerMM: stepsPerMM,
		extSteps:   extStepsPerMM,
		axisMax:    axisMax,
		transform:  NewTransform(level),
		homingAxes: []int{AxisA, AxisB, AxisC},
	}
}

// StepsPerMM returns the scale for one mechanical axis.
func (c *CartesianMap) StepsPerMM(axis int) float64 {
	if axis == AxisE {
		return c.extSteps
	}
	return c.stepsPerMM[axis]
}

// Transform returns the bed-leveling transform.
func (c *CartesianMap) Transform() *Transform {
	return c.transform
}

// CartesianToMechanical scales each leveled coordinate by its axis pitch.
func (c *CartesianMap) CartesianToMechanical(x, y, z, e float64) (Position, error) {
	lx, ly, lz := c.transform.Apply(x, y, z)
	coords := [3]float64{lx, ly, lz}
	var pos Position
	for i, v := range coords {
		if math.IsNaN(v) || v < 0 || (c.axisMax[i] > 0 && v > c.axisMax[i]) {
			return Position{}, unreachable(x, y, z)
		}
		pos[i] = roundSteps(v, c.stepsPerMM[i])
	}
	pos[AxisE] = roundSteps(e, c.extSteps)
	return pos, nil
}

// MechanicalToCartesian divides out the axis pitches.
func (c *CartesianMap) MechanicalToCartesian(pos Position) (x, y, z, e float64) {
	lx := float64(pos[AxisA]) / c.stepsPerMM[0]
	ly := float64(pos[AxisB]) / c.stepsPerMM[1]
	lz := float64(pos[AxisC]) / c.stepsPerMM[2]
	x, y, z = c.transform.ApplyInverse(lx, ly, lz)
	e = float64(pos[AxisE]) / c.extSteps
	return x, y, z, e
}

// HomePosition is the axis minimum on every axis.
func (c *CartesianMap) HomePosition() Position {
	return Position{}
}

// HomingAxes returns the three linear axes.
func (c *CartesianMap) HomingAxes() []int {
	return c.homingAxes
}
