/*
	Copyright 2026 OpenVelo
*/

// Package processing implements the live metrics aggregator: the single
// authority for what is true right now about the in-progress session.
package processing

import (
	"math"
	"slices"
	"time"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/processing/channel"
	"github.com/openvelo/ride-engine/pkg/utils/broadcast"
)

const (
	defaultReorderWindow = 250 * time.Millisecond
	notifyBuffer         = 16
)

// Processor consumes sensor events and maintains the per-channel
// aggregates, zone histograms and session totals. It is single-writer:
// all mutating calls must come from one goroutine (the session loop).
type Processor struct {
	logger   *log.Logger
	channels map[model.Channel]*channel.Processor

	powerZones *model.ZoneTable
	hrZones    *model.ZoneTable

	// short re-sort window for out-of-order sensor delivery
	reorderWindow time.Duration
	pending       []model.SensorEvent
	watermark     time.Time
	numLate       int

	started  time.Time
	lastTick time.Time
	paused   bool
	moving   time.Duration

	distance    float64
	lastSpeed   float64
	lastSpeedTS time.Time
	lastPos     *model.GeoPoint
	lastPosTS   time.Time
	useGPS      bool

	estimator CalorieEstimator
	calories  float64

	lapIndex         int
	lapStart         time.Time
	lapStartMoving   time.Duration
	lapStartDistance float64

	sensorSrc  chan model.SensorEvent
	statsSrc   chan model.Snapshot
	sensorBcst broadcast.Server[model.SensorEvent]
	statsBcst  broadcast.Server[model.Snapshot]
}

type Option func(*Processor)

// WithPowerZones enables the power zone histogram.
func WithPowerZones(zt model.ZoneTable) Option {
	return func(p *Processor) { p.powerZones = &zt }
}

// WithHRZones enables the heart-rate zone histogram.
func WithHRZones(zt model.ZoneTable) Option {
	return func(p *Processor) { p.hrZones = &zt }
}

// WithCalorieEstimator replaces the default estimator chain.
func WithCalorieEstimator(est CalorieEstimator) Option {
	return func(p *Processor) { p.estimator = est }
}

// WithReorderWindow sets how long events are held back to re-sort
// out-of-order arrivals. 0 disables re-sorting.
func WithReorderWindow(d time.Duration) Option {
	return func(p *Processor) { p.reorderWindow = d }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

func NewProcessor(opts ...Option) *Processor {
	ret := &Processor{
		logger:        log.GetLogger("processing"),
		channels:      make(map[model.Channel]*channel.Processor),
		reorderWindow: defaultReorderWindow,
		estimator:     DefaultEstimator(75, 0),
		sensorSrc:     make(chan model.SensorEvent, notifyBuffer),
		statsSrc:      make(chan model.Snapshot, notifyBuffer),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.sensorBcst = broadcast.NewServer("sensor", ret.sensorSrc)
	ret.statsBcst = broadcast.NewServer("stats", ret.statsSrc)
	return ret
}

// SensorUpdates is the high-frequency notification tier: every raw
// reading, suitable for live gauges.
func (p *Processor) SensorUpdates() broadcast.Server[model.SensorEvent] {
	return p.sensorBcst
}

// StatsUpdates is the low-frequency tier: one snapshot per tick,
// suitable for chart and summary redraws.
func (p *Processor) StatsUpdates() broadcast.Server[model.Snapshot] {
	return p.statsBcst
}

// Start marks the beginning of the recording.
func (p *Processor) Start(now time.Time) {
	p.started = now
	p.lastTick = now
	p.lapStart = now
}

// Process admits one sensor event. Ignored while paused.
func (p *Processor) Process(ev model.SensorEvent) {
	if p.paused {
		return
	}
	// first tier: notify raw reading right away
	select {
	case p.sensorSrc <- ev:
	default:
	}

	p.pending = append(p.pending, ev)
	slices.SortStableFunc(p.pending, func(a, b model.SensorEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	newest := p.pending[len(p.pending)-1].Timestamp
	for len(p.pending) > 0 &&
		newest.Sub(p.pending[0].Timestamp) >= p.reorderWindow {
		p.admit(p.pending[0])
		p.pending = p.pending[1:]
	}
}

// Tick advances the session clock by one aggregation interval. It
// drains the re-sort window, accumulates moving time and calories and
// emits a stats update.
func (p *Processor) Tick(now time.Time) {
	if p.paused {
		return
	}
	p.drainPending()
	if !p.lastTick.IsZero() {
		dt := now.Sub(p.lastTick)
		if dt > 0 {
			p.moving += dt
			p.calories += p.estimator.Estimate(
				p.currentOrNaN(model.ChannelPower),
				p.currentOrNaN(model.ChannelHeartRate),
				dt)
		}
	}
	p.lastTick = now

	snap := p.Snapshot()
	select {
	case p.statsSrc <- snap:
	default:
	}
}

// Pause stops admission of samples and duration accumulation.
func (p *Processor) Pause(now time.Time) {
	if p.paused {
		return
	}
	p.drainPending()
	p.Tick(now)
	p.paused = true
}

// Resume continues a paused session. The paused span is excluded from
// duration, zone and average computation entirely.
func (p *Processor) Resume(now time.Time) {
	if !p.paused {
		return
	}
	p.paused = false
	p.lastTick = now
	p.watermark = now
	p.lastSpeedTS = time.Time{}
	p.lastPos = nil
	p.lastPosTS = time.Time{}
	for _, cp := range p.channels {
		cp.Break()
	}
}

// Paused reports whether the processor currently rejects samples.
func (p *Processor) Paused() bool { return p.paused }

// StartLap closes the running lap and returns its summary.
func (p *Processor) StartLap(now time.Time) model.LapSummary {
	p.drainPending()
	aggregates := make(map[model.Channel]model.ChannelAggregates)
	for ch, cp := range p.channels {
		agg, count := cp.FinishLap()
		if count > 0 {
			aggregates[ch] = agg
		}
	}
	ret := model.LapSummary{
		Index:      p.lapIndex,
		Start:      p.lapStart,
		End:        now,
		Duration:   p.moving - p.lapStartMoving,
		Distance:   p.distance - p.lapStartDistance,
		Aggregates: aggregates,
	}
	p.lapIndex++
	p.lapStart = now
	p.lapStartMoving = p.moving
	p.lapStartDistance = p.distance
	return ret
}

// Snapshot returns an immutable view of the current state. Snapshots
// taken without state change in between are value-equal.
func (p *Processor) Snapshot() model.Snapshot {
	current := make(map[model.Channel]float64, len(p.channels))
	lastSample := make(map[model.Channel]time.Time, len(p.channels)+1)
	advanced := make(map[model.Channel]model.ChannelAggregates, len(p.channels))
	for ch, cp := range p.channels {
		stats := cp.Stats()
		current[ch] = stats.Current
		advanced[ch] = stats.Aggregates()
		if ts := cp.LastSample(); !ts.IsZero() {
			lastSample[ch] = ts
		}
	}
	if !p.lastPosTS.IsZero() {
		lastSample[model.ChannelGPS] = p.lastPosTS
	}
	var pos *model.GeoPoint
	if p.lastPos != nil {
		cp := *p.lastPos
		pos = &cp
	}
	return model.Snapshot{
		Current:    current,
		LastSample: lastSample,
		Position:   pos,
		Totals: model.Totals{
			DistanceMeters: p.distance,
			Duration:       p.moving,
			Calories:       p.calories,
		},
		Zones: model.ZoneTimes{
			Power:     p.zoneSeconds(model.ChannelPower),
			HeartRate: p.zoneSeconds(model.ChannelHeartRate),
		},
		Advanced: advanced,
	}
}

// SetZoneTables swaps the zone tables, e.g. after a profile reload.
func (p *Processor) SetZoneTables(power, hr model.ZoneTable) {
	p.powerZones = &power
	p.hrZones = &hr
	if cp, ok := p.channels[model.ChannelPower]; ok {
		cp.SetZoneTable(power)
	}
	if cp, ok := p.channels[model.ChannelHeartRate]; ok {
		cp.SetZoneTable(hr)
	}
}

// Close shuts down the notification tiers.
func (p *Processor) Close() {
	p.sensorBcst.Close()
	p.statsBcst.Close()
}

func (p *Processor) drainPending() {
	for _, ev := range p.pending {
		p.admit(ev)
	}
	p.pending = p.pending[:0]
}

func (p *Processor) admit(ev model.SensorEvent) {
	if ev.Timestamp.Before(p.watermark) {
		// arrived too late for the re-sort window
		p.numLate++
		p.logger.Debug("dropping late sensor event",
			log.String("channel", ev.Channel.String()),
			log.Time("ts", ev.Timestamp))
		return
	}
	p.watermark = ev.Timestamp

	switch ev.Channel {
	case model.ChannelGPS:
		if ev.Position == nil {
			return
		}
		p.useGPS = true
		if p.lastPos != nil {
			p.distance += haversineMeters(*p.lastPos, *ev.Position)
		}
		cp := *ev.Position
		p.lastPos = &cp
		p.lastPosTS = ev.Timestamp
		return
	case model.ChannelSpeed:
		// speed integration only applies while no GPS is present
		if !p.useGPS && !p.lastSpeedTS.IsZero() {
			dt := ev.Timestamp.Sub(p.lastSpeedTS).Seconds()
			p.distance += (p.lastSpeed + ev.Value) / 2.0 * dt
		}
		p.lastSpeed = ev.Value
		p.lastSpeedTS = ev.Timestamp
	}
	p.channelProcessor(ev.Channel).Process(ev.Value, ev.Timestamp)
}

func (p *Processor) channelProcessor(ch model.Channel) *channel.Processor {
	if cp, ok := p.channels[ch]; ok {
		return cp
	}
	var opts []channel.Option
	if ch == model.ChannelPower && p.powerZones != nil {
		opts = append(opts, channel.WithZoneTable(*p.powerZones))
	}
	if ch == model.ChannelHeartRate && p.hrZones != nil {
		opts = append(opts, channel.WithZoneTable(*p.hrZones))
	}
	cp := channel.New(ch, opts...)
	p.channels[ch] = cp
	return cp
}

func (p *Processor) zoneSeconds(ch model.Channel) []float64 {
	if cp, ok := p.channels[ch]; ok {
		if zs := cp.ZoneSeconds(); zs != nil {
			return zs
		}
	}
	return []float64{}
}

func (p *Processor) currentOrNaN(ch model.Channel) float64 {
	if cp, ok := p.channels[ch]; ok && cp.Stats().Count() > 0 {
		return cp.Stats().Current
	}
	return math.NaN()
}

const earthRadiusMeters = 6371000.0

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
