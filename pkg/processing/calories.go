/*
	Copyright 2026 OpenVelo
*/

package processing

import (
	"math"
	"time"
)

// CalorieEstimator turns the current effort into a calorie increment.
// power and heartRate are NaN when the session has no such data yet.
// The estimate formula is a configuration choice, not fixed arithmetic.
type CalorieEstimator interface {
	Name() string
	Estimate(power, heartRate float64, dt time.Duration) float64
}

// PowerBased derives calories from mechanical work. With a gross
// efficiency around 24% the kJ->kcal conversion roughly cancels out,
// so kcal ~= kJ of work.
type PowerBased struct {
	// GrossEfficiency defaults to 0.24 when zero.
	GrossEfficiency float64
}

func (PowerBased) Name() string { return "power" }

func (e PowerBased) Estimate(power, _ float64, dt time.Duration) float64 {
	if math.IsNaN(power) || power <= 0 {
		return 0
	}
	eff := e.GrossEfficiency
	if eff <= 0 {
		eff = 0.24
	}
	kj := power * dt.Seconds() / 1000.0
	return kj / 4.184 / eff
}

// HeartRateBased uses the Keytel regression (male coefficients) as an
// estimate when no power meter is present.
type HeartRateBased struct {
	WeightKg float64
	Age      int
}

func (HeartRateBased) Name() string { return "heartrate" }

func (e HeartRateBased) Estimate(_, heartRate float64, dt time.Duration) float64 {
	if math.IsNaN(heartRate) || heartRate <= 0 {
		return 0
	}
	kcalPerMin := (-55.0969 + 0.6309*heartRate + 0.1988*e.WeightKg + 0.2017*float64(e.Age)) / 4.184
	if kcalPerMin < 0 {
		return 0
	}
	return kcalPerMin * dt.Minutes()
}

// chainEstimator prefers the power estimate and falls back to heart
// rate when no power data exists.
type chainEstimator struct {
	power PowerBased
	hr    HeartRateBased
}

func (chainEstimator) Name() string { return "auto" }

func (e chainEstimator) Estimate(power, heartRate float64, dt time.Duration) float64 {
	if !math.IsNaN(power) {
		return e.power.Estimate(power, heartRate, dt)
	}
	return e.hr.Estimate(power, heartRate, dt)
}

// DefaultEstimator returns the power-first, heart-rate-fallback chain.
func DefaultEstimator(weightKg float64, age int) CalorieEstimator {
	return chainEstimator{hr: HeartRateBased{WeightKg: weightKg, Age: age}}
}
