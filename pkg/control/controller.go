/*
	Copyright 2026 OpenVelo
*/

// Package control implements the predictive resistance controller that
// translates a power target and live cadence into machine resistance
// commands.
package control

import (
	"math"
	"time"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/buffer"
	"github.com/openvelo/ride-engine/pkg/model"
)

const (
	defaultSmoothingWindow = 5 * time.Second
	defaultMinCadence      = 20.0 // rpm
	defaultMaxRampRate     = 10.0 // resistance units per second
	historySize            = 10
	// minimum elapsed time used for rate limiting, guards against
	// division blow-up on rapid repeated calls
	minRateInterval = 100 * time.Millisecond
)

// HistoryEntry is one emitted resistance value.
type HistoryEntry struct {
	Resistance float64
	Timestamp  time.Time
}

// Controller owns the resistance state for exactly one machine
// connection. It never returns an error: missing cadence or device
// information is covered by fallback paths, because the machine keeps
// moving under the athlete.
type Controller struct {
	machine     model.MachineClass
	calibration model.Calibration
	rng         model.ResistanceRange

	smoothingWindow time.Duration
	minCadence      float64
	maxRampRate     float64

	cadence *buffer.RollingBuffer
	history [historySize]HistoryEntry
	histLen int
	histPos int

	logger *log.Logger
}

type Option func(c *Controller)

// WithResistanceRange sets the range advertised by the device. Without
// it the default 0..100 applies.
func WithResistanceRange(rng model.ResistanceRange) Option {
	return func(c *Controller) {
		if rng.Max > rng.Min {
			c.rng = rng
		}
	}
}

// WithMaxRampRate limits the resistance change to rate units/second.
func WithMaxRampRate(rate float64) Option {
	return func(c *Controller) {
		if rate > 0 {
			c.maxRampRate = rate
		}
	}
}

// WithMinCadence sets the cadence threshold below which the fallback
// path is used.
func WithMinCadence(rpm float64) Option {
	return func(c *Controller) { c.minCadence = rpm }
}

// WithSmoothingWindow sets the cadence smoothing window.
func WithSmoothingWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.smoothingWindow = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller for one machine connection.
func New(machine model.MachineClass, opts ...Option) *Controller {
	ret := &Controller{
		machine:         machine,
		calibration:     machine.Calibration(),
		rng:             model.DefaultResistanceRange,
		smoothingWindow: defaultSmoothingWindow,
		minCadence:      defaultMinCadence,
		maxRampRate:     defaultMaxRampRate,
		cadence:         buffer.New(buffer.DefaultCapacity),
		logger:          log.GetLogger("control"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// PushCadence records a raw cadence reading without emitting a command.
func (c *Controller) PushCadence(rpm float64, ts time.Time) {
	c.cadence.Add(rpm, ts)
}

// Update records the cadence reading and returns the next resistance
// command for the given power target.
func (c *Controller) Update(targetPower, cadenceRPM float64, now time.Time) float64 {
	c.cadence.Add(cadenceRPM, now)
	return c.Target(targetPower, now)
}

// Target computes the resistance command for the power target from the
// cadence samples recorded so far.
//
// Power = (2*pi/60) * cadence * torque, inverted to
// Torque = (power * 60) / (2*pi * cadence), then mapped to the device
// resistance unit via the calibration constant.
func (c *Controller) Target(targetPower float64, now time.Time) float64 {
	smoothed := c.smoothedCadenceAt(now)

	var resistance float64
	switch {
	case smoothed < c.minCadence && c.histLen > 0:
		// sensor dropout or rider stopped pedaling: hold the last command
		resistance = c.lastEntry().Resistance
	case smoothed < c.minCadence:
		// nothing emitted yet: assume the standard cadence of the device
		resistance = c.resistanceFor(targetPower, c.calibration.StandardCadence)
	default:
		resistance = c.resistanceFor(targetPower, smoothed)
	}

	resistance = c.clampRange(resistance)
	resistance = c.rateLimit(resistance, now)
	c.record(resistance, now)
	return resistance
}

// SmoothedCadence returns the linearly weighted moving average over the
// smoothing window.
func (c *Controller) SmoothedCadence() float64 {
	return buffer.WeightedAverage(c.cadence.SamplesWithin(c.smoothingWindow))
}

// smoothedCadenceAt applies a staleness cutoff on top of the moving
// average: when the newest sample is older than the smoothing window
// relative to now, the sensor counts as dropped out. Without this a
// silently dead sensor would replay its last average forever.
func (c *Controller) smoothedCadenceAt(now time.Time) float64 {
	last, ok := c.cadence.Last()
	if !ok || now.Sub(last.Timestamp) > c.smoothingWindow {
		return 0
	}
	return c.SmoothedCadence()
}

// History returns the emitted values, oldest first.
func (c *Controller) History() []HistoryEntry {
	ret := make([]HistoryEntry, 0, c.histLen)
	start := (c.histPos - c.histLen + historySize) % historySize
	for i := 0; i < c.histLen; i++ {
		ret = append(ret, c.history[(start+i)%historySize])
	}
	return ret
}

// Reset clears buffer and history. Required on machine reconnect or
// control-mode switch so that stale rate-limit baselines do not apply.
func (c *Controller) Reset() {
	c.cadence.Clear()
	c.histLen = 0
	c.histPos = 0
}

func (c *Controller) resistanceFor(targetPower, cadence float64) float64 {
	if cadence <= 0 {
		cadence = c.calibration.StandardCadence
	}
	torque := (targetPower * 60.0) / (2.0 * math.Pi * cadence)
	return torque / c.calibration.TorquePerLevel
}

func (c *Controller) clampRange(v float64) float64 {
	return math.Min(math.Max(v, c.rng.Min), c.rng.Max)
}

// rateLimit clamps the change against the previous emission to at most
// maxRampRate * elapsed. This is the anti-oscillation guarantee.
func (c *Controller) rateLimit(v float64, now time.Time) float64 {
	if c.histLen == 0 {
		return v
	}
	last := c.lastEntry()
	dt := now.Sub(last.Timestamp)
	if dt < minRateInterval {
		dt = minRateInterval
	}
	maxDelta := c.maxRampRate * dt.Seconds()
	delta := v - last.Resistance
	if delta > maxDelta {
		return last.Resistance + maxDelta
	}
	if delta < -maxDelta {
		return last.Resistance - maxDelta
	}
	return v
}

func (c *Controller) record(v float64, now time.Time) {
	c.history[c.histPos] = HistoryEntry{Resistance: v, Timestamp: now}
	c.histPos = (c.histPos + 1) % historySize
	if c.histLen < historySize {
		c.histLen++
	}
}

func (c *Controller) lastEntry() HistoryEntry {
	return c.history[(c.histPos-1+historySize)%historySize]
}
