//nolint:thelper,funlen // ok for tests
package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func TestRollingBuffer_Eviction(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(float64(i), ts(i))
	}
	assert.Equal(t, 3, b.Len())
	last, ok := b.Last()
	assert.True(t, ok)
	assert.Equal(t, 4.0, last.Value)

	// oldest two were evicted
	samples := b.SamplesWithin(time.Hour)
	assert.Len(t, samples, 3)
	assert.Equal(t, 2.0, samples[0].Value)
	assert.Equal(t, 4.0, samples[2].Value)
}

func TestRollingBuffer_SamplesWithin(t *testing.T) {
	b := New(10)
	for i := 0; i < 10; i++ {
		b.Add(float64(i), ts(i))
	}
	tests := []struct {
		name   string
		window time.Duration
		want   int
	}{
		{"all", time.Hour, 10},
		{"last 3s", 3 * time.Second, 4},
		{"newest only", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.SamplesWithin(tt.window)
			assert.Len(t, got, tt.want)
			// recomputed per call, oldest first
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
			}
		})
	}
}

func TestRollingBuffer_Empty(t *testing.T) {
	b := New(4)
	_, ok := b.Last()
	assert.False(t, ok)
	assert.Empty(t, b.SamplesWithin(time.Minute))
}

func TestRollingBuffer_Clear(t *testing.T) {
	b := New(4)
	b.Add(1, ts(0))
	b.Clear()
	assert.Equal(t, 0, b.Len())
	_, ok := b.Last()
	assert.False(t, ok)
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    float64
	}{
		{"empty", nil, 0},
		{"single", []Sample{{Value: 90}}, 90},
		// weights 1,2,3 -> (60*1 + 90*2 + 120*3)/6 = 100
		{"newer dominates", []Sample{{Value: 60}, {Value: 90}, {Value: 120}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WeightedAverage(tt.samples), 1e-9)
		})
	}
}
