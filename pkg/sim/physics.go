/*
	Copyright 2026 OpenVelo
*/

// Package sim generates realistic sensor streams for development and
// load testing without any hardware attached.
package sim

import "math"

// physical constants for the flat-road cycling model
const (
	gravity    = 9.81
	airDensity = 1.225 // kg/m^3 at sea level
	dragArea   = 0.32  // CdA of a rider on the hoods
	rollingCrr = 0.005
	drivetrain = 0.96 // efficiency
)

// Physics converts power and grade into road speed for the simulated
// rider.
type Physics struct {
	RiderKg float64
	BikeKg  float64
}

// Speed returns the steady-state road speed in m/s for the given power
// output and grade. Solved by bisection: the power-speed relation has
// no closed form once aero drag enters.
func (p Physics) Speed(watts, gradePercent float64) float64 {
	totalMass := p.RiderKg + p.BikeKg
	powerWheel := watts * drivetrain

	theta := math.Atan(gradePercent / 100.0)
	forceLinear := totalMass*gravity*math.Sin(theta) +
		totalMass*gravity*math.Cos(theta)*rollingCrr
	constAero := 0.5 * airDensity * dragArea

	// speed search range 0..40 m/s; 20 bisection rounds are plenty and
	// can never divide by zero
	low, high := 0.0, 40.0
	for i := 0; i < 20; i++ {
		mid := (low + high) / 2
		powerRequired := constAero*math.Pow(mid, 3) + forceLinear*mid
		if powerRequired < powerWheel {
			low = mid
		} else {
			high = mid
		}
		if high-low < 0.01 {
			break
		}
	}
	v := (low + high) / 2
	if v < 0 {
		return 0
	}
	return v
}
