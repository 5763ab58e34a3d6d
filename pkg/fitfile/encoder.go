/*
	Copyright 2026 OpenVelo
*/

package fitfile

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/openvelo/ride-engine/log"
)

// degrees -> semicircles (FIT position encoding)
const degreesToSemicircles = 2147483648.0 / 180.0

const defaultQueueSize = 256

var (
	// ErrOutOfOrder is returned when a tick is older than the last one
	// written. Ticks must be strictly increasing in timestamp.
	ErrOutOfOrder = errors.New("fitfile: tick out of order")
	// ErrQueueFull means the write queue is saturated (slow disk). The
	// tick is dropped, recording continues.
	ErrQueueFull = errors.New("fitfile: write queue full")
	// ErrClosed is returned for writes after Close.
	ErrClosed = errors.New("fitfile: encoder closed")
)

// Encoder appends tick and lap records to an open activity file. The
// actual file I/O runs on a drain goroutine behind a bounded queue so a
// slow disk cannot stall the sensor loop. Write failures never abort
// the session: they are kept for the caller to inspect via Err.
type Encoder struct {
	path   string
	f      *os.File
	stream *encoder.StreamEncoder
	logger *log.Logger

	queue chan proto.Message
	wg    sync.WaitGroup

	mu       sync.Mutex
	writeErr error
	onError  func(error)

	lastTick time.Time
	start    time.Time
	closed   bool
}

type Option func(*Encoder)

// WithErrorHandler registers a callback invoked on asynchronous write
// failures (e.g. storage full).
func WithErrorHandler(fn func(error)) Option {
	return func(e *Encoder) { e.onError = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Encoder) { e.logger = l }
}

// Create opens the activity file and writes the file header plus the
// timer-start event. One encoder owns exactly one file handle for the
// whole session.
func Create(path string, start time.Time, opts ...Option) (*Encoder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating activity file: %w", err)
	}
	enc := encoder.New(f, encoder.WithProtocolVersion(proto.V2))
	stream, err := enc.StreamEncoder()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating stream encoder: %w", err)
	}

	ret := &Encoder{
		path:   path,
		f:      f,
		stream: stream,
		logger: log.GetLogger("fitfile"),
		queue:  make(chan proto.Message, defaultQueueSize),
		start:  start,
	}
	for _, opt := range opts {
		opt(ret)
	}

	fileID := mesgdef.NewFileId(nil).
		SetType(typedef.FileActivity).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(1).
		SetSerialNumber(1).
		SetTimeCreated(start)
	startEvent := mesgdef.NewEvent(nil).
		SetTimestamp(start).
		SetEvent(typedef.EventTimer).
		SetEventType(typedef.EventTypeStart)

	ret.enqueueBlocking(fileID.ToMesg(nil))
	ret.enqueueBlocking(startEvent.ToMesg(nil))

	ret.wg.Add(1)
	go ret.drain()
	return ret, nil
}

// Path returns the file being written.
func (e *Encoder) Path() string { return e.path }

// WriteTick appends one tick record. Out-of-order ticks are rejected,
// never written out of sequence.
func (e *Encoder) WriteTick(rec TickRecord) error {
	if e.closed {
		return ErrClosed
	}
	if !e.lastTick.IsZero() && !rec.Timestamp.After(e.lastTick) {
		return fmt.Errorf("%w: %s not after %s",
			ErrOutOfOrder, rec.Timestamp.Format(time.RFC3339), e.lastTick.Format(time.RFC3339))
	}
	e.lastTick = rec.Timestamp
	return e.enqueue(recordMesg(rec))
}

// WriteLap appends a lap summary record.
func (e *Encoder) WriteLap(lap LapRecord, index int) error {
	if e.closed {
		return ErrClosed
	}
	return e.enqueue(lapMesg(lap, index))
}

// Err returns the sticky asynchronous write error, if any. The error is
// recoverable at the session level: metrics aggregation and resistance
// control are unaffected by encoder health.
func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeErr
}

// Close flushes the queue, writes the session summary trailer and
// finalizes header and checksum, making the file immutable.
func (e *Encoder) Close(sum SessionSummary) error {
	if e.closed {
		return ErrClosed
	}
	e.closed = true

	stopEvent := mesgdef.NewEvent(nil).
		SetTimestamp(sum.End).
		SetEvent(typedef.EventTimer).
		SetEventType(typedef.EventTypeStopAll)
	e.enqueueBlocking(stopEvent.ToMesg(nil))
	e.enqueueBlocking(sessionMesg(sum))

	close(e.queue)
	e.wg.Wait()

	var errs []error
	if err := e.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := e.stream.SequenceCompleted(); err != nil {
		errs = append(errs, fmt.Errorf("finalizing activity file: %w", err))
	}
	if err := e.f.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Discard aborts the encoder without finalizing; the orphaned file is
// left for the startup sweep.
func (e *Encoder) Discard() {
	if e.closed {
		return
	}
	e.closed = true
	close(e.queue)
	e.wg.Wait()
	e.f.Close()
}

func (e *Encoder) enqueue(mesg proto.Message) error {
	select {
	case e.queue <- mesg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Encoder) enqueueBlocking(mesg proto.Message) {
	e.queue <- mesg
}

func (e *Encoder) drain() {
	defer e.wg.Done()
	for mesg := range e.queue {
		if err := e.stream.WriteMessage(&mesg); err != nil {
			e.recordError(fmt.Errorf("writing activity record: %w", err))
		}
	}
}

func (e *Encoder) recordError(err error) {
	e.mu.Lock()
	e.writeErr = err
	onError := e.onError
	e.mu.Unlock()
	e.logger.Warn("activity file write failed", log.ErrorField(err))
	if onError != nil {
		onError(err)
	}
}

func recordMesg(t TickRecord) proto.Message {
	rec := mesgdef.NewRecord(nil).SetTimestamp(t.Timestamp)
	if t.Power != nil {
		rec.SetPower(*t.Power)
	}
	if t.HeartRate != nil {
		rec.SetHeartRate(*t.HeartRate)
	}
	if t.Cadence != nil {
		rec.SetCadence(*t.Cadence)
	}
	if t.SpeedMps != nil {
		rec.SetEnhancedSpeed(uint32(*t.SpeedMps * 1000)) // mm/s
	}
	if t.DistanceM != nil {
		rec.SetDistance(uint32(*t.DistanceM * 100)) // cm
	}
	if t.AltitudeM != nil {
		// scale 5, offset 500 allows negative elevation
		rec.SetEnhancedAltitude(uint32((*t.AltitudeM + 500.0) * 5.0))
	}
	if t.TemperatureC != nil {
		rec.SetTemperature(*t.TemperatureC)
	}
	if t.Position != nil {
		rec.SetPositionLat(int32(t.Position.Lat * degreesToSemicircles))
		rec.SetPositionLong(int32(t.Position.Lon * degreesToSemicircles))
	}
	return rec.ToMesg(nil)
}

func lapMesg(lap LapRecord, index int) proto.Message {
	l := mesgdef.NewLap(nil).
		SetMessageIndex(typedef.MessageIndex(index)).
		SetTimestamp(lap.End).
		SetStartTime(lap.Start).
		SetTotalElapsedTime(uint32(lap.Duration.Milliseconds())).
		SetTotalTimerTime(uint32(lap.Duration.Milliseconds())).
		SetTotalDistance(uint32(lap.DistanceM * 100)).
		SetEvent(typedef.EventLap).
		SetEventType(typedef.EventTypeStop)
	if lap.AvgPower != nil {
		l.SetAvgPower(*lap.AvgPower)
	}
	if lap.MaxPower != nil {
		l.SetMaxPower(*lap.MaxPower)
	}
	if lap.AvgHeartRate != nil {
		l.SetAvgHeartRate(*lap.AvgHeartRate)
	}
	if lap.MaxHeartRate != nil {
		l.SetMaxHeartRate(*lap.MaxHeartRate)
	}
	if lap.AvgCadence != nil {
		l.SetAvgCadence(*lap.AvgCadence)
	}
	if lap.MaxCadence != nil {
		l.SetMaxCadence(*lap.MaxCadence)
	}
	return l.ToMesg(nil)
}

func sessionMesg(sum SessionSummary) proto.Message {
	s := mesgdef.NewSession(nil).
		SetTimestamp(sum.End).
		SetStartTime(sum.Start).
		SetTotalElapsedTime(uint32(sum.TotalElapsed.Milliseconds())).
		SetTotalTimerTime(uint32(sum.MovingDuration.Milliseconds())).
		SetTotalDistance(uint32(sum.DistanceM * 100)).
		SetTotalCalories(uint16(sum.Calories)).
		SetNumLaps(uint16(sum.NumLaps)).
		SetSport(typedef.SportCycling).
		SetSubSport(typedef.SubSportVirtualActivity).
		SetEvent(typedef.EventSession).
		SetEventType(typedef.EventTypeStop).
		SetTrigger(typedef.SessionTriggerActivityEnd)
	if sum.AvgPower != nil {
		s.SetAvgPower(*sum.AvgPower)
	}
	if sum.MaxPower != nil {
		s.SetMaxPower(*sum.MaxPower)
	}
	if sum.AvgHeartRate != nil {
		s.SetAvgHeartRate(*sum.AvgHeartRate)
	}
	if sum.MaxHeartRate != nil {
		s.SetMaxHeartRate(*sum.MaxHeartRate)
	}
	return s.ToMesg(nil)
}
