/*
	Copyright 2026 OpenVelo
*/

// Package channel maintains the incremental statistics and zone times
// of a single sensor channel.
package channel

import (
	"time"

	"github.com/openvelo/ride-engine/pkg/model"
)

// credit for zone time is capped at this gap, so a sensor dropout does
// not book minutes into the zone of the next reading
const defaultMaxGap = 5 * time.Second

// Stats holds incrementally maintained aggregates. No history replay is
// needed to keep them current.
type Stats struct {
	Current float64
	Min     float64
	Max     float64
	sum     float64
	count   int64
}

func (s *Stats) update(v float64) {
	if s.count == 0 {
		s.Min = v
		s.Max = v
	} else {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Current = v
	s.sum += v
	s.count++
}

// Avg returns the running average, 0 without samples.
func (s Stats) Avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Count returns the number of processed samples.
func (s Stats) Count() int64 { return s.count }

// Aggregates converts to the snapshot representation.
func (s Stats) Aggregates() model.ChannelAggregates {
	return model.ChannelAggregates{Min: s.Min, Max: s.Max, Avg: s.Avg()}
}

// Processor is the single-writer state of one channel.
type Processor struct {
	ch          model.Channel
	zones       *model.ZoneTable
	zoneSeconds []float64
	stats       Stats
	lapStats    Stats
	lastSample  time.Time
	maxGap      time.Duration
}

type Option func(*Processor)

// WithZoneTable enables time-in-zone scoring for the channel.
func WithZoneTable(zt model.ZoneTable) Option {
	return func(p *Processor) {
		p.zones = &zt
		p.zoneSeconds = make([]float64, zt.NumZones())
	}
}

// WithMaxGap overrides the dropout cap for zone credit.
func WithMaxGap(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.maxGap = d
		}
	}
}

func New(ch model.Channel, opts ...Option) *Processor {
	ret := &Processor{ch: ch, maxGap: defaultMaxGap}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Process admits one sample. Samples must arrive in timestamp order;
// the aggregator re-sorts before calling this.
func (p *Processor) Process(v float64, ts time.Time) {
	if p.zones != nil && !p.lastSample.IsZero() {
		elapsed := ts.Sub(p.lastSample)
		if elapsed > p.maxGap {
			elapsed = p.maxGap
		}
		if elapsed > 0 {
			p.zoneSeconds[p.zones.ZoneOf(v)] += elapsed.Seconds()
		}
	}
	p.lastSample = ts
	p.stats.update(v)
	p.lapStats.update(v)
}

// Break forgets the last sample time. Called on resume so that the
// paused span is not credited to any zone.
func (p *Processor) Break() {
	p.lastSample = time.Time{}
}

// Stats returns the session statistics.
func (p *Processor) Stats() Stats { return p.stats }

// LastSample returns the timestamp of the most recent sample, zero
// before the first sample and after Break.
func (p *Processor) LastSample() time.Time { return p.lastSample }

// ZoneSeconds returns a copy of the accumulated per-zone seconds, nil
// when the channel has no zone table.
func (p *Processor) ZoneSeconds() []float64 {
	if p.zoneSeconds == nil {
		return nil
	}
	ret := make([]float64, len(p.zoneSeconds))
	copy(ret, p.zoneSeconds)
	return ret
}

// SetZoneTable swaps the zone table, e.g. after a profile reload.
// Accumulated zone time is preserved when the zone count matches.
func (p *Processor) SetZoneTable(zt model.ZoneTable) {
	if p.zones == nil || zt.NumZones() != p.zones.NumZones() {
		p.zoneSeconds = make([]float64, zt.NumZones())
	}
	p.zones = &zt
}

// FinishLap returns the aggregates since the previous lap boundary and
// starts a new lap interval.
func (p *Processor) FinishLap() (model.ChannelAggregates, int64) {
	agg := p.lapStats.Aggregates()
	count := p.lapStats.count
	p.lapStats = Stats{}
	return agg, count
}
