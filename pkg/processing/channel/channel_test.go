//nolint:thelper,funlen // ok for tests
package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openvelo/ride-engine/pkg/model"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func powerZones() model.ZoneTable {
	zt, _ := model.NewZoneTable([]float64{0, 110, 152, 182})
	return zt
}

func TestProcessor_Aggregates(t *testing.T) {
	p := New(model.ChannelPower)
	for i, v := range []float64{100, 250, 130} {
		p.Process(v, t0.Add(time.Duration(i)*time.Second))
	}
	stats := p.Stats()
	assert.Equal(t, 130.0, stats.Current)
	assert.Equal(t, 100.0, stats.Min)
	assert.Equal(t, 250.0, stats.Max)
	assert.InDelta(t, 160.0, stats.Avg(), 1e-9)
	assert.Equal(t, int64(3), stats.Count())
}

func TestProcessor_ZoneCredit(t *testing.T) {
	p := New(model.ChannelPower, WithZoneTable(powerZones()))
	// first sample establishes the baseline, no credit yet
	p.Process(100, t0)
	// 2s at 100 W -> zone 0 gets 2s (credited to the zone of the
	// arriving sample)
	p.Process(100, t0.Add(2*time.Second))
	// 3s later at 160 W -> zone 2 gets 3s
	p.Process(160, t0.Add(5*time.Second))

	zs := p.ZoneSeconds()
	assert.InDelta(t, 2.0, zs[0], 1e-9)
	assert.InDelta(t, 0.0, zs[1], 1e-9)
	assert.InDelta(t, 3.0, zs[2], 1e-9)
}

func TestProcessor_DropoutCapped(t *testing.T) {
	p := New(model.ChannelPower, WithZoneTable(powerZones()))
	p.Process(100, t0)
	// 90s dropout: credit is capped at the max gap, not booked in full
	p.Process(100, t0.Add(90*time.Second))
	zs := p.ZoneSeconds()
	assert.InDelta(t, defaultMaxGap.Seconds(), zs[0], 1e-9)
}

func TestProcessor_BreakStopsCredit(t *testing.T) {
	p := New(model.ChannelPower, WithZoneTable(powerZones()))
	p.Process(100, t0)
	p.Break()
	// the first sample after a break is a new baseline
	p.Process(100, t0.Add(3*time.Second))
	zs := p.ZoneSeconds()
	assert.InDelta(t, 0.0, zs[0], 1e-9)
}

func TestProcessor_SetZoneTable(t *testing.T) {
	p := New(model.ChannelPower, WithZoneTable(powerZones()))
	p.Process(100, t0)
	p.Process(100, t0.Add(2*time.Second))

	// same zone count: accumulated time stays
	zt, _ := model.NewZoneTable([]float64{0, 120, 160, 200})
	p.SetZoneTable(zt)
	assert.InDelta(t, 2.0, p.ZoneSeconds()[0], 1e-9)

	// different zone count: counters restart
	zt2, _ := model.NewZoneTable([]float64{0, 150})
	p.SetZoneTable(zt2)
	assert.Equal(t, []float64{0, 0}, p.ZoneSeconds())
}

func TestProcessor_FinishLap(t *testing.T) {
	p := New(model.ChannelPower)
	p.Process(100, t0)
	p.Process(200, t0.Add(time.Second))
	agg, count := p.FinishLap()
	assert.Equal(t, int64(2), count)
	assert.InDelta(t, 150.0, agg.Avg, 1e-9)

	// lap stats restart, session stats continue
	p.Process(300, t0.Add(2*time.Second))
	agg2, count2 := p.FinishLap()
	assert.Equal(t, int64(1), count2)
	assert.InDelta(t, 300.0, agg2.Avg, 1e-9)
	assert.Equal(t, int64(3), p.Stats().Count())
}
