/*
	Copyright 2026 OpenVelo
*/

// Package buffer provides the fixed-capacity, time-windowed sample buffer
// that the smoothing code builds on.
package buffer

import "time"

// Sample is one timestamped scalar reading. Immutable once recorded.
type Sample struct {
	Value     float64
	Timestamp time.Time
}

const DefaultCapacity = 100

// RollingBuffer keeps the most recent samples in a ring. When the
// capacity is exceeded the oldest entry is evicted, so memory stays
// bounded under sustained high-frequency input even if nobody queries.
type RollingBuffer struct {
	samples []Sample
	head    int // index of oldest entry
	size    int
}

// New creates a buffer; capacity <= 0 selects DefaultCapacity.
func New(capacity int) *RollingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RollingBuffer{samples: make([]Sample, capacity)}
}

// Add appends a sample, evicting the oldest entry when full. O(1).
func (b *RollingBuffer) Add(value float64, ts time.Time) {
	idx := (b.head + b.size) % len(b.samples)
	b.samples[idx] = Sample{Value: value, Timestamp: ts}
	if b.size < len(b.samples) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.samples)
	}
}

// Len returns the number of stored samples.
func (b *RollingBuffer) Len() int { return b.size }

// Last returns the most recent sample.
func (b *RollingBuffer) Last() (Sample, bool) {
	if b.size == 0 {
		return Sample{}, false
	}
	idx := (b.head + b.size - 1) % len(b.samples)
	return b.samples[idx], true
}

// SamplesWithin returns the samples whose timestamp is within window of
// the most recent sample, ordered oldest to newest. The result is
// computed fresh on every call; an empty buffer yields an empty slice.
func (b *RollingBuffer) SamplesWithin(window time.Duration) []Sample {
	ret := make([]Sample, 0, b.size)
	if b.size == 0 {
		return ret
	}
	newest, _ := b.Last()
	cutoff := newest.Timestamp.Add(-window)
	for i := 0; i < b.size; i++ {
		s := b.samples[(b.head+i)%len(b.samples)]
		if !s.Timestamp.Before(cutoff) {
			ret = append(ret, s)
		}
	}
	return ret
}

// Clear resets the buffer to empty.
func (b *RollingBuffer) Clear() {
	b.head = 0
	b.size = 0
}

// WeightedAverage computes a linearly weighted moving average over the
// given samples: the oldest sample gets weight 1/n, the newest n/n.
// Returns 0 for an empty slice.
func WeightedAverage(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum, weightSum float64
	for i, s := range samples {
		w := float64(i+1) / float64(len(samples))
		sum += s.Value * w
		weightSum += w
	}
	return sum / weightSum
}
