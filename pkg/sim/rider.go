/*
	Copyright 2026 OpenVelo
*/

package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/profile"
)

// Sink receives the generated readings. The session engine satisfies
// this.
type Sink interface {
	Submit(ev model.SensorEvent)
	SetTargetPower(watts float64) error
}

const (
	defaultSampleInterval = time.Second
	restingHR             = 62.0
	hrTimeConstant        = 30.0 // seconds to close ~63% of the HR gap
)

// Rider simulates an athlete following a workout: power tracks the
// step target with noise, heart rate lags the effort, speed follows the
// flat-road physics model.
type Rider struct {
	athlete profile.Athlete
	physics Physics
	rng     *rand.Rand
	logger  *log.Logger

	sampleInterval time.Duration
	gradePercent   float64
	now            func() time.Time
}

type Option func(*Rider)

// WithSeed makes the generated stream reproducible.
func WithSeed(seed int64) Option {
	return func(r *Rider) { r.rng = rand.New(rand.NewSource(seed)) }
}

func WithSampleInterval(d time.Duration) Option {
	return func(r *Rider) {
		if d > 0 {
			r.sampleInterval = d
		}
	}
}

// WithGrade sets the simulated road grade in percent.
func WithGrade(pct float64) Option {
	return func(r *Rider) { r.gradePercent = pct }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Rider) { r.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Rider) { r.logger = l }
}

func NewRider(athlete profile.Athlete, opts ...Option) *Rider {
	ret := &Rider{
		athlete:        athlete,
		physics:        Physics{RiderKg: athlete.WeightKg, BikeKg: athlete.BikeKg},
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:         log.GetLogger("sim"),
		sampleInterval: defaultSampleInterval,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run feeds the sink until the workout ends or the context is
// cancelled.
func (r *Rider) Run(ctx context.Context, sink Sink, w *Workout) error {
	start := r.now()
	hr := restingHR
	lastTarget := -1.0

	ticker := time.NewTicker(r.sampleInterval)
	defer ticker.Stop()

	r.logger.Info("simulated ride started",
		log.String("workout", w.Name),
		log.Duration("duration", w.TotalDuration()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := r.now()
			target, running := w.TargetAt(r.athlete.FTP, now.Sub(start))
			if !running {
				r.logger.Info("workout complete")
				return nil
			}
			if target != lastTarget {
				if err := sink.SetTargetPower(target); err != nil {
					r.logger.Warn("setting target failed", log.ErrorField(err))
				}
				lastTarget = target
			}

			power := r.noisy(target, 0.04)
			cadence := r.cadenceFor(target)
			hr = r.nextHR(hr, power)
			speed := r.physics.Speed(power, r.gradePercent)

			sink.Submit(model.SensorEvent{
				Channel: model.ChannelPower, Value: power, Timestamp: now})
			sink.Submit(model.SensorEvent{
				Channel: model.ChannelCadence, Value: cadence, Timestamp: now})
			sink.Submit(model.SensorEvent{
				Channel: model.ChannelHeartRate, Value: hr, Timestamp: now})
			sink.Submit(model.SensorEvent{
				Channel: model.ChannelSpeed, Value: speed, Timestamp: now})
		}
	}
}

func (r *Rider) noisy(v, stddev float64) float64 {
	ret := v + r.rng.NormFloat64()*stddev*v
	if ret < 0 {
		return 0
	}
	return ret
}

func (r *Rider) cadenceFor(target float64) float64 {
	base := 85.0
	if target < 0.6*r.athlete.FTP {
		base = 78.0
	}
	return r.noisy(base, 0.03)
}

// nextHR closes part of the gap to the steady-state heart rate for the
// current effort, first-order lag like a real cardiovascular response.
func (r *Rider) nextHR(current, power float64) float64 {
	intensity := power / r.athlete.FTP
	steady := restingHR + (r.athlete.MaxHR-restingHR)*0.9*intensity
	if steady > r.athlete.MaxHR {
		steady = r.athlete.MaxHR
	}
	alpha := r.sampleInterval.Seconds() / hrTimeConstant
	if alpha > 1 {
		alpha = 1
	}
	return current + (steady-current)*alpha + r.rng.NormFloat64()*0.5
}
