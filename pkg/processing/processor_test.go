//nolint:thelper,funlen // ok for tests
package processing

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/openvelo/ride-engine/pkg/model"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestProcessor(opts ...Option) *Processor {
	powerZones, _ := model.NewZoneTable([]float64{0, 110, 152, 182, 212, 242, 302})
	hrZones, _ := model.NewZoneTable([]float64{0, 112, 138, 156, 174})
	base := []Option{
		WithPowerZones(powerZones),
		WithHRZones(hrZones),
		WithReorderWindow(0),
	}
	return NewProcessor(append(base, opts...)...)
}

func feed(p *Processor, ch model.Channel, value float64, at time.Time) {
	p.Process(model.SensorEvent{Channel: ch, Value: value, Timestamp: at})
}

func TestProcessor_MovingTimeExcludesPause(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)

	// 10s riding
	for i := 1; i <= 10; i++ {
		feed(p, model.ChannelPower, 200, t0.Add(time.Duration(i)*time.Second))
		p.Tick(t0.Add(time.Duration(i) * time.Second))
	}
	p.Pause(t0.Add(10 * time.Second))

	// events during the 5s pause are rejected
	feed(p, model.ChannelPower, 500, t0.Add(12*time.Second))
	p.Tick(t0.Add(13 * time.Second))

	p.Resume(t0.Add(15 * time.Second))
	for i := 16; i <= 25; i++ {
		feed(p, model.ChannelPower, 200, t0.Add(time.Duration(i)*time.Second))
		p.Tick(t0.Add(time.Duration(i) * time.Second))
	}

	snap := p.Snapshot()
	assert.Equal(t, 20*time.Second, snap.Totals.Duration)
	// the paused 500 W spike never entered the aggregates
	assert.Equal(t, 200.0, snap.Advanced[model.ChannelPower].Max)
}

func TestProcessor_ZoneTimeMatchesMovingTime(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)

	for i := 1; i <= 60; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		feed(p, model.ChannelPower, 200, at)
		p.Tick(at)
	}
	snap := p.Snapshot()

	var zoneSum float64
	for _, s := range snap.Zones.Power {
		zoneSum += s
	}
	// zone time lags moving time by the first baseline interval only
	assert.InDelta(t, snap.Totals.Duration.Seconds(), zoneSum, 1.01)
	// 200 W sits in zone 3 of the 7-zone table
	assert.InDelta(t, 59.0, snap.Zones.Power[3], 1e-9)
}

func TestProcessor_SnapshotsAreValueEqual(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)
	feed(p, model.ChannelPower, 200, t0.Add(time.Second))
	feed(p, model.ChannelHeartRate, 140, t0.Add(time.Second))
	p.Tick(t0.Add(2 * time.Second))

	a := p.Snapshot()
	b := p.Snapshot()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("snapshots differ without state change (-a +b):\n%s", diff)
	}
}

func TestProcessor_DistanceFromSpeed(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)

	// constant 10 m/s for 10s -> 100 m via trapezoid integration
	for i := 0; i <= 10; i++ {
		feed(p, model.ChannelSpeed, 10, t0.Add(time.Duration(i)*time.Second))
	}
	p.Tick(t0.Add(10 * time.Second))
	assert.InDelta(t, 100.0, p.Snapshot().Totals.DistanceMeters, 1e-6)
}

func TestProcessor_GPSDisablesSpeedIntegration(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)

	// ~111 m of northward movement
	pos1 := &model.GeoPoint{Lat: 47.0, Lon: 8.0}
	pos2 := &model.GeoPoint{Lat: 47.001, Lon: 8.0}
	p.Process(model.SensorEvent{
		Channel: model.ChannelGPS, Position: pos1, Timestamp: t0.Add(time.Second)})
	p.Process(model.SensorEvent{
		Channel: model.ChannelGPS, Position: pos2, Timestamp: t0.Add(11 * time.Second)})

	// speed readings must not double-count distance once GPS is present
	feed(p, model.ChannelSpeed, 10, t0.Add(12*time.Second))
	feed(p, model.ChannelSpeed, 10, t0.Add(13*time.Second))
	p.Tick(t0.Add(13 * time.Second))

	snap := p.Snapshot()
	assert.InDelta(t, 111.2, snap.Totals.DistanceMeters, 1.0)
	assert.NotNil(t, snap.Position)
	assert.InDelta(t, 47.001, snap.Position.Lat, 1e-9)
}

func TestProcessor_ReorderWindow(t *testing.T) {
	p := NewProcessor(WithReorderWindow(500 * time.Millisecond))
	defer p.Close()
	p.Start(t0)

	// out-of-order within the window: both admitted in timestamp order
	feed(p, model.ChannelPower, 100, t0.Add(200*time.Millisecond))
	feed(p, model.ChannelPower, 90, t0.Add(100*time.Millisecond))
	feed(p, model.ChannelPower, 110, t0.Add(900*time.Millisecond))
	p.Tick(t0.Add(time.Second))

	snap := p.Snapshot()
	assert.Equal(t, int64(0), int64(p.numLate))
	assert.Equal(t, 110.0, snap.Current[model.ChannelPower])
	assert.Equal(t, 90.0, snap.Advanced[model.ChannelPower].Min)
}

func TestProcessor_LateEventsDropped(t *testing.T) {
	p := NewProcessor(WithReorderWindow(0))
	defer p.Close()
	p.Start(t0)

	feed(p, model.ChannelPower, 100, t0.Add(2*time.Second))
	// older than the watermark with no window: dropped
	feed(p, model.ChannelPower, 900, t0.Add(time.Second))
	p.Tick(t0.Add(3 * time.Second))

	snap := p.Snapshot()
	assert.Equal(t, 1, p.numLate)
	assert.Equal(t, 100.0, snap.Advanced[model.ChannelPower].Max)
}

func TestProcessor_Laps(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)

	for i := 1; i <= 10; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		feed(p, model.ChannelPower, 150, at)
		feed(p, model.ChannelSpeed, 10, at)
		p.Tick(at)
	}
	lap1 := p.StartLap(t0.Add(10 * time.Second))
	assert.Equal(t, 0, lap1.Index)
	assert.Equal(t, 10*time.Second, lap1.Duration)
	assert.InDelta(t, 90.0, lap1.Distance, 1e-6)
	assert.InDelta(t, 150.0, lap1.Aggregates[model.ChannelPower].Avg, 1e-9)

	for i := 11; i <= 15; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		feed(p, model.ChannelPower, 250, at)
		p.Tick(at)
	}
	lap2 := p.StartLap(t0.Add(15 * time.Second))
	assert.Equal(t, 1, lap2.Index)
	assert.Equal(t, 5*time.Second, lap2.Duration)
	// second lap aggregates start fresh
	assert.InDelta(t, 250.0, lap2.Aggregates[model.ChannelPower].Avg, 1e-9)
}

func TestProcessor_CaloriesFromPower(t *testing.T) {
	p := newTestProcessor(WithCalorieEstimator(PowerBased{}))
	defer p.Close()
	p.Start(t0)

	// 200 W for 100s = 20 kJ -> 20/4.184/0.24 ~= 19.9 kcal
	for i := 1; i <= 100; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		feed(p, model.ChannelPower, 200, at)
		p.Tick(at)
	}
	assert.InDelta(t, 19.9, p.Snapshot().Totals.Calories, 0.3)
}

func TestProcessor_SnapshotTracksLastSample(t *testing.T) {
	p := newTestProcessor()
	defer p.Close()
	p.Start(t0)

	feed(p, model.ChannelHeartRate, 142, t0.Add(time.Second))
	p.Process(model.SensorEvent{
		Channel:   model.ChannelGPS,
		Position:  &model.GeoPoint{Lat: 48.1, Lon: 11.5},
		Timestamp: t0.Add(2 * time.Second),
	})
	p.Tick(t0.Add(3 * time.Second))

	snap := p.Snapshot()
	assert.Equal(t, t0.Add(time.Second), snap.LastSample[model.ChannelHeartRate])
	assert.Equal(t, t0.Add(2*time.Second), snap.LastSample[model.ChannelGPS])

	// the strap goes silent: Current keeps the reading, LastSample
	// keeps standing still so consumers can spot the dropout
	for i := 4; i <= 120; i++ {
		p.Tick(t0.Add(time.Duration(i) * time.Second))
	}
	snap = p.Snapshot()
	assert.Equal(t, 142.0, snap.Current[model.ChannelHeartRate])
	assert.Equal(t, t0.Add(time.Second), snap.LastSample[model.ChannelHeartRate])
}
