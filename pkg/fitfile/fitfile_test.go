//nolint:thelper,funlen // ok for tests
package fitfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvelo/ride-engine/pkg/model"
)

// activity timestamps carry 1-second resolution on disk
var start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleTick(offset int) TickRecord {
	return TickRecord{
		Timestamp:    start.Add(time.Duration(offset) * time.Second),
		Power:        uint16Ptr(200),
		HeartRate:    uint8Ptr(142),
		Cadence:      uint8Ptr(88),
		SpeedMps:     float64Ptr(9.5),
		DistanceM:    float64Ptr(float64(offset) * 9.5),
		TemperatureC: int8Ptr(21),
	}
}

func TestEncoder_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	enc, err := Create(path, start)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, enc.WriteTick(sampleTick(i)))
	}
	lap := LapRecord{
		Start:     start,
		End:       start.Add(5 * time.Second),
		Duration:  5 * time.Second,
		DistanceM: 47.5,
		AvgPower:  uint16Ptr(200),
		MaxPower:  uint16Ptr(200),
	}
	require.NoError(t, enc.WriteLap(lap, 0))

	sum := SessionSummary{
		Start:          start,
		End:            start.Add(6 * time.Second),
		TotalElapsed:   6 * time.Second,
		MovingDuration: 5 * time.Second,
		DistanceM:      47.5,
		Calories:       12,
		AvgPower:       uint16Ptr(200),
		MaxPower:       uint16Ptr(200),
		NumLaps:        1,
	}
	require.NoError(t, enc.Close(sum))
	assert.NoError(t, enc.Err())

	got, err := ReadActivity(path)
	require.NoError(t, err)
	assert.True(t, got.Created.Equal(start))
	require.Len(t, got.Ticks, 5)

	first := got.Ticks[0]
	assert.True(t, first.Timestamp.Equal(start.Add(time.Second)))
	require.NotNil(t, first.Power)
	assert.Equal(t, uint16(200), *first.Power)
	require.NotNil(t, first.HeartRate)
	assert.Equal(t, uint8(142), *first.HeartRate)
	require.NotNil(t, first.SpeedMps)
	assert.InDelta(t, 9.5, *first.SpeedMps, 0.001)
	require.NotNil(t, first.TemperatureC)
	assert.Equal(t, int8(21), *first.TemperatureC)

	require.Len(t, got.Laps, 1)
	assert.Equal(t, 5*time.Second, got.Laps[0].Duration)
	assert.InDelta(t, 47.5, got.Laps[0].DistanceM, 0.01)

	require.NotNil(t, got.Summary)
	assert.Equal(t, 5*time.Second, got.Summary.MovingDuration)
	assert.Equal(t, 1, got.Summary.NumLaps)
	require.NotNil(t, got.Summary.AvgPower)
	assert.Equal(t, uint16(200), *got.Summary.AvgPower)
}

func TestEncoder_AbsentFieldsStayAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	enc, err := Create(path, start)
	require.NoError(t, err)

	// power-only tick: no heart rate strap connected
	require.NoError(t, enc.WriteTick(TickRecord{
		Timestamp: start.Add(time.Second),
		Power:     uint16Ptr(180),
	}))
	require.NoError(t, enc.Close(SessionSummary{
		Start: start, End: start.Add(2 * time.Second),
	}))

	got, err := ReadActivity(path)
	require.NoError(t, err)
	require.Len(t, got.Ticks, 1)
	require.NotNil(t, got.Ticks[0].Power)
	// absent is absent, not zero
	assert.Nil(t, got.Ticks[0].HeartRate)
	assert.Nil(t, got.Ticks[0].SpeedMps)
	assert.Nil(t, got.Ticks[0].Position)
}

func TestEncoder_PositionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	enc, err := Create(path, start)
	require.NoError(t, err)

	tick := TickRecord{
		Timestamp: start.Add(time.Second),
		Position:  &model.GeoPoint{Lat: 47.3769, Lon: 8.5417},
	}
	require.NoError(t, enc.WriteTick(tick))
	require.NoError(t, enc.Close(SessionSummary{
		Start: start, End: start.Add(2 * time.Second),
	}))

	got, err := ReadActivity(path)
	require.NoError(t, err)
	require.NotNil(t, got.Ticks[0].Position)
	assert.InDelta(t, 47.3769, got.Ticks[0].Position.Lat, 1e-6)
	assert.InDelta(t, 8.5417, got.Ticks[0].Position.Lon, 1e-6)
}

func TestEncoder_RejectsOutOfOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	enc, err := Create(path, start)
	require.NoError(t, err)
	defer enc.Discard()

	require.NoError(t, enc.WriteTick(sampleTick(2)))
	// same timestamp
	assert.ErrorIs(t, enc.WriteTick(sampleTick(2)), ErrOutOfOrder)
	// older timestamp
	assert.ErrorIs(t, enc.WriteTick(sampleTick(1)), ErrOutOfOrder)
	// moving forward works again
	assert.NoError(t, enc.WriteTick(sampleTick(3)))
}

func TestEncoder_ClosedRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	enc, err := Create(path, start)
	require.NoError(t, err)
	require.NoError(t, enc.Close(SessionSummary{
		Start: start, End: start.Add(time.Second),
	}))

	assert.ErrorIs(t, enc.WriteTick(sampleTick(5)), ErrClosed)
	assert.ErrorIs(t, enc.Close(SessionSummary{}), ErrClosed)
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()

	// complete recording
	complete := filepath.Join(dir, "complete.fit")
	enc, err := Create(complete, start)
	require.NoError(t, err)
	require.NoError(t, enc.WriteTick(sampleTick(1)))
	require.NoError(t, enc.Close(SessionSummary{
		Start: start, End: start.Add(2 * time.Second),
	}))

	// orphan from an unclean shutdown: data intact, never finalized
	orphan := filepath.Join(dir, "orphan.fit")
	enc2, err := Create(orphan, start)
	require.NoError(t, err)
	require.NoError(t, enc2.WriteTick(sampleTick(1)))
	require.NoError(t, enc2.WriteTick(sampleTick(2)))
	enc2.Discard()

	// garbage that only shares the extension
	junk := filepath.Join(dir, "junk.fit")
	require.NoError(t, os.WriteFile(junk, []byte("not a recording"), 0o644))

	// non-activity files are none of our business
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("keep me"), 0o644))

	result, err := Sweep(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{complete}, result.Complete)
	assert.Equal(t, []string{orphan}, result.Recovered)
	assert.Equal(t, []string{junk}, result.Removed)

	_, err = os.Stat(junk)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	assert.NoError(t, err)

	// the recovered orphan reads back with its ticks intact
	got, err := ReadActivity(orphan)
	require.NoError(t, err)
	assert.Len(t, got.Ticks, 2)
	// no finalization trailer was ever written
	assert.Nil(t, got.Summary)

	// a second sweep finds only complete files
	again, err := Sweep(dir, nil)
	require.NoError(t, err)
	assert.Len(t, again.Complete, 2)
	assert.Empty(t, again.Recovered)
	assert.Empty(t, again.Removed)
}
