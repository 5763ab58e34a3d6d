//nolint:thelper,funlen // ok for tests
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvelo/ride-engine/pkg/fitfile"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/profile"
)

type captureLink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureLink) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureLink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEngine_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(
		WithRecordDir(dir),
		WithTickInterval(20*time.Millisecond),
	)
	require.NoError(t, engine.Start(context.Background()))
	assert.ErrorIs(t, engine.Start(context.Background()), ErrAlreadyRunning)

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			engine.Submit(model.SensorEvent{
				Channel:   model.ChannelPower,
				Value:     200,
				Timestamp: time.Now(),
			})
			engine.Submit(model.SensorEvent{
				Channel:   model.ChannelHeartRate,
				Value:     145,
				Timestamp: time.Now(),
			})
			time.Sleep(10 * time.Millisecond)
			if i > 1000 {
				return
			}
		}
	}()

	waitFor(t, func() bool {
		snap := engine.Snapshot()
		return snap.Current[model.ChannelPower] > 0 && snap.Totals.Duration > 0
	}, "no snapshot with data")

	require.NoError(t, engine.Lap())
	require.NoError(t, engine.Stop())
	<-engine.Done()
	assert.ErrorIs(t, engine.Stop(), ErrNotRunning)
	stop <- struct{}{}
	<-stop

	snap := engine.Snapshot()
	assert.Equal(t, 200.0, snap.Current[model.ChannelPower])
	assert.Greater(t, snap.Totals.Calories, 0.0)

	// exactly one finalized file, readable by an independent decoder
	sweep, err := fitfile.Sweep(dir, nil)
	require.NoError(t, err)
	require.Len(t, sweep.Complete, 1)
	assert.Empty(t, sweep.Recovered)

	got, err := fitfile.ReadActivity(sweep.Complete[0])
	require.NoError(t, err)
	assert.NotEmpty(t, got.Ticks)
	assert.Len(t, got.Laps, 1)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.NumLaps)
	require.NotNil(t, got.Summary.AvgPower)
	assert.Equal(t, uint16(200), *got.Summary.AvgPower)
}

func TestEngine_PauseExcludesReadings(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(
		WithRecordDir(dir),
		WithTickInterval(10*time.Millisecond),
	)
	require.NoError(t, engine.Start(context.Background()))

	engine.Submit(model.SensorEvent{
		Channel: model.ChannelPower, Value: 200, Timestamp: time.Now()})
	waitFor(t, func() bool {
		return engine.Snapshot().Current[model.ChannelPower] == 200
	}, "first reading not processed")

	require.NoError(t, engine.Pause())
	engine.Submit(model.SensorEvent{
		Channel: model.ChannelPower, Value: 900, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, engine.Resume())

	require.NoError(t, engine.Stop())
	<-engine.Done()

	// the spike during the pause never reached the aggregates
	assert.Equal(t, 200.0, engine.Snapshot().Advanced[model.ChannelPower].Max)
}

func TestEngine_ErgModeSendsResistance(t *testing.T) {
	dir := t.TempDir()
	link := &captureLink{}
	engine := NewEngine(
		WithRecordDir(dir),
		WithTickInterval(10*time.Millisecond),
		WithTrainerLink(link),
	)
	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.SetTargetPower(200))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			engine.Submit(model.SensorEvent{
				Channel:   model.ChannelCadence,
				Value:     90,
				Timestamp: time.Now(),
			})
			time.Sleep(5 * time.Millisecond)
		}
	}()

	waitFor(t, link.countPositive, "no resistance frame sent")
	<-done
	require.NoError(t, engine.Stop())
	<-engine.Done()

	link.mu.Lock()
	defer link.mu.Unlock()
	frame := link.frames[0]
	assert.Equal(t, byte(0xA4), frame[0])
	assert.Equal(t, byte(48), frame[4]) // basic resistance page
}

func (c *captureLink) countPositive() bool { return c.count() > 0 }

func TestEngine_ManualResistancePassthrough(t *testing.T) {
	dir := t.TempDir()
	link := &captureLink{}
	engine := NewEngine(
		WithRecordDir(dir),
		WithTickInterval(10*time.Millisecond),
		WithTrainerLink(link),
	)
	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.SetResistance(42))
	require.NoError(t, engine.Stop())
	<-engine.Done()

	require.Equal(t, 1, link.count())
	// 42 % at 0.5 % resolution
	assert.Equal(t, byte(84), link.frames[0][11])
}

func TestEngine_SetAthleteSwapsZones(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(
		WithRecordDir(dir),
		WithTickInterval(10*time.Millisecond),
	)
	require.NoError(t, engine.Start(context.Background()))

	stronger := profile.Default()
	stronger.FTP = 400
	require.NoError(t, engine.SetAthlete(stronger))

	require.NoError(t, engine.Stop())
	<-engine.Done()
}

func TestEngine_EmptySessionDiscarded(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(
		WithRecordDir(dir),
		WithTickInterval(time.Hour), // no tick fires
	)
	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Stop())
	<-engine.Done()

	sweep, err := fitfile.Sweep(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, sweep.Complete)
	assert.Empty(t, sweep.Recovered)
	assert.Empty(t, sweep.Removed)
}
