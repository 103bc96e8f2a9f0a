package motion

import (
	"math"
)

// AccelerationProfile shapes the velocity of a move. The planner runs
// every move start-zero to end-zero, so the profile reduces to choosing
// the constant cruise velocity the move can sustain over its distance.
type AccelerationProfile interface {
	// CruiseVelocity returns the velocity to use for a move of the
	// given cartesian length at commanded velocity vCmd.
	CruiseVelocity(vCmd, dist float64) float64
}

// ConstantAcceleration caps the cruise velocity at the speed reachable
// by accelerating at maxAccel over the first half of the move and
// decelerating over the second: sqrt(maxAccel * dist).
type ConstantAcceleration struct {
	maxAccel float64 // mm/s^2
}

// NewConstantAcceleration creates the profile.
func NewConstantAcceleration(maxAccel float64) *ConstantAcceleration {
	return &ConstantAcceleration{maxAccel: maxAccel}
}

// CruiseVelocity returns min(vCmd, sqrt(maxAccel * dist)).
func (p *ConstantAcceleration) CruiseVelocity(vCmd, dist float64) float64 {
	reachable := math.Sqrt(p.maxAccel * dist)
	return math.Min(vCmd, reachable)
}

// NoAcceleration passes the commanded velocity through unchanged.
type NoAcceleration struct{}

// CruiseVelocity returns vCmd.
func (NoAcceleration) CruiseVelocity(vCmd, _ float64) float64 {
	return vCmd
}
