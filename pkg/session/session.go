/*
	Copyright 2026 OpenVelo
*/

// Package session runs the recording lifecycle: it owns the metrics
// aggregator, the resistance controller and the activity encoder and
// serializes all access to them on one event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/control"
	"github.com/openvelo/ride-engine/pkg/control/fec"
	"github.com/openvelo/ride-engine/pkg/fitfile"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/processing"
	"github.com/openvelo/ride-engine/pkg/profile"
	"github.com/openvelo/ride-engine/pkg/upload"
	"github.com/openvelo/ride-engine/pkg/utils/broadcast"
)

const (
	defaultTickInterval = time.Second
	eventBuffer         = 64
)

var (
	ErrNotRunning     = errors.New("session: not running")
	ErrAlreadyRunning = errors.New("session: already running")
)

// TrainerLink delivers control frames to the physical machine.
type TrainerLink interface {
	Send(frame []byte) error
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdLap
	cmdTargetPower
	cmdResistance
	cmdProfile
	cmdStop
)

type command struct {
	kind    cmdKind
	value   float64
	athlete profile.Athlete
	reply   chan error
}

// Engine drives one recording session from start to finalized file.
type Engine struct {
	logger       *log.Logger
	athlete      profile.Athlete
	machine      model.MachineClass
	recordDir    string
	tickInterval time.Duration
	now          func() time.Time

	proc     *processing.Processor
	ctrl     *control.Controller
	enc      *fitfile.Encoder
	uploader *upload.Coordinator
	link     TrainerLink

	events chan model.SensorEvent
	cmds   chan command
	done   chan struct{}

	mu       sync.Mutex
	running  bool
	lastSnap model.Snapshot

	ctrlOpts []control.Option

	// loop-local state, never touched outside run()
	started       time.Time
	ergTarget     float64
	lastCommanded float64
	lapIdx        int
}

type Option func(*Engine)

// WithAthlete supplies the profile used for zones and calories.
func WithAthlete(a profile.Athlete) Option {
	return func(e *Engine) { e.athlete = a }
}

func WithMachine(m model.MachineClass) Option {
	return func(e *Engine) { e.machine = m }
}

// WithRecordDir sets where activity files are written (default ".").
func WithRecordDir(dir string) Option {
	return func(e *Engine) { e.recordDir = dir }
}

// WithUploader hands finalized files to the upload queue.
func WithUploader(u *upload.Coordinator) Option {
	return func(e *Engine) { e.uploader = u }
}

// WithTrainerLink connects the resistance command output.
func WithTrainerLink(l TrainerLink) Option {
	return func(e *Engine) { e.link = l }
}

func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithControlOptions(opts ...control.Option) Option {
	return func(e *Engine) { e.ctrlOpts = opts }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(opts ...Option) *Engine {
	ret := &Engine{
		logger:       log.GetLogger("session"),
		athlete:      profile.Default(),
		machine:      model.MachineBike,
		recordDir:    ".",
		tickInterval: defaultTickInterval,
		now:          time.Now,
		events:       make(chan model.SensorEvent, eventBuffer),
		cmds:         make(chan command),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.ctrl = control.New(ret.machine, ret.ctrlOpts...)
	ret.proc = processing.NewProcessor(
		processing.WithPowerZones(ret.athlete.PowerZones()),
		processing.WithHRZones(ret.athlete.HRZones()),
		processing.WithCalorieEstimator(
			processing.DefaultEstimator(ret.athlete.WeightKg, ret.athlete.Age)),
		processing.WithLogger(ret.logger.Named("processing")),
	)
	return ret
}

// SensorUpdates exposes the raw reading tier for live displays.
func (e *Engine) SensorUpdates() broadcast.Server[model.SensorEvent] {
	return e.proc.SensorUpdates()
}

// StatsUpdates exposes the per-tick snapshot tier.
func (e *Engine) StatsUpdates() broadcast.Server[model.Snapshot] {
	return e.proc.StatsUpdates()
}

// Start opens the activity file and launches the session loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	start := e.now()
	path := filepath.Join(e.recordDir,
		fmt.Sprintf("activity_%s.fit", start.UTC().Format("20060102_150405")))
	enc, err := fitfile.Create(path, start,
		fitfile.WithLogger(e.logger.Named("fitfile")))
	if err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}
	e.enc = enc
	e.started = start
	e.proc.Start(start)
	e.logger.Info("session started",
		log.String("file", path),
		log.String("machine", e.machine.String()))

	go e.run(ctx)
	return nil
}

// Submit feeds one sensor event into the session. Non-blocking: when
// the loop is saturated the event is dropped.
func (e *Engine) Submit(ev model.SensorEvent) {
	select {
	case e.events <- ev:
	case <-e.done:
	default:
		e.logger.Warn("event queue full, dropping reading",
			log.String("channel", ev.Channel.String()))
	}
}

// Pause suspends sample admission and duration accumulation.
func (e *Engine) Pause() error { return e.send(command{kind: cmdPause}) }

// Resume continues a paused session.
func (e *Engine) Resume() error { return e.send(command{kind: cmdResume}) }

// Lap closes the running lap and records its summary.
func (e *Engine) Lap() error { return e.send(command{kind: cmdLap}) }

// SetTargetPower enables erg mode: the controller tracks the wattage
// through cadence changes. 0 disables erg mode.
func (e *Engine) SetTargetPower(watts float64) error {
	return e.send(command{kind: cmdTargetPower, value: watts})
}

// SetResistance sends a manual resistance level and disables erg mode.
func (e *Engine) SetResistance(level float64) error {
	return e.send(command{kind: cmdResistance, value: level})
}

// SetAthlete applies a changed profile to the running session. Zone
// time already accumulated stays with its zone index.
func (e *Engine) SetAthlete(a profile.Athlete) error {
	return e.send(command{kind: cmdProfile, athlete: a})
}

// Stop finalizes the activity file and hands it to the uploader. It is
// idempotent: concurrent and repeated calls beyond the first return
// ErrNotRunning.
func (e *Engine) Stop() error { return e.send(command{kind: cmdStop}) }

// Snapshot returns the state as of the last tick.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSnap
}

// Done is closed when the session loop has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) send(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case e.cmds <- cmd:
		return <-cmd.reply
	case <-e.done:
		return ErrNotRunning
	}
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.finalize(e.now())
			return
		case <-ticker.C:
			e.tick(e.now())
		case ev := <-e.events:
			e.handleEvent(ev)
		case cmd := <-e.cmds:
			if e.handleCommand(cmd) {
				return
			}
		}
	}
}

func (e *Engine) handleEvent(ev model.SensorEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	e.proc.Process(ev)
	if ev.Channel == model.ChannelCadence && !e.proc.Paused() {
		e.ctrl.PushCadence(ev.Value, ev.Timestamp)
	}
}

func (e *Engine) handleCommand(cmd command) (stopped bool) {
	var err error
	switch cmd.kind {
	case cmdPause:
		e.proc.Pause(e.now())
	case cmdResume:
		e.proc.Resume(e.now())
		e.ctrl.Reset()
	case cmdLap:
		err = e.lap(e.now())
	case cmdTargetPower:
		e.ergTarget = cmd.value
		if cmd.value <= 0 {
			e.ctrl.Reset()
		}
	case cmdResistance:
		e.ergTarget = 0
		e.ctrl.Reset()
		err = e.sendFrame(fec.BasicResistance(cmd.value))
	case cmdProfile:
		e.athlete = cmd.athlete
		e.proc.SetZoneTables(cmd.athlete.PowerZones(), cmd.athlete.HRZones())
		e.logger.Info("athlete profile updated",
			log.Float64("ftp", cmd.athlete.FTP))
	case cmdStop:
		err = e.finalize(e.now())
		stopped = true
	}
	cmd.reply <- err
	return stopped
}

func (e *Engine) tick(now time.Time) {
	if e.proc.Paused() {
		return
	}
	e.proc.Tick(now)
	snap := e.proc.Snapshot()
	e.mu.Lock()
	e.lastSnap = snap
	e.mu.Unlock()

	// two silent intervals mark a channel as no-data; one interval
	// alone would drop 1 Hz sensors on ordinary jitter
	tick := tickFromSnapshot(snap, now, 2*e.tickInterval)
	if err := e.enc.WriteTick(tick); err != nil {
		e.logger.Warn("tick not recorded", log.ErrorField(err))
	}
	if e.ergTarget > 0 {
		e.steerResistance(now)
	}
}

// steerResistance emits the next resistance command for the erg target.
// Commands identical to the last emission are suppressed.
func (e *Engine) steerResistance(now time.Time) {
	level := e.ctrl.Target(e.ergTarget, now)
	if math.Abs(level-e.lastCommanded) < 0.25 {
		return
	}
	if err := e.sendFrame(fec.BasicResistance(level)); err != nil {
		e.logger.Warn("resistance command failed", log.ErrorField(err))
		return
	}
	e.lastCommanded = level
}

func (e *Engine) sendFrame(frame []byte) error {
	if e.link == nil {
		return nil
	}
	return e.link.Send(frame)
}

func (e *Engine) lap(now time.Time) error {
	sum := e.proc.StartLap(now)
	e.logger.Info("lap recorded",
		log.Int("index", sum.Index),
		log.Duration("duration", sum.Duration),
		log.Float64("distance", sum.Distance))
	e.lapIdx = sum.Index + 1
	return e.enc.WriteLap(lapFromSummary(sum), sum.Index)
}

func (e *Engine) finalize(now time.Time) error {
	defer close(e.done)
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.proc.Tick(now)
	snap := e.proc.Snapshot()
	e.mu.Lock()
	e.lastSnap = snap
	e.mu.Unlock()

	path := e.enc.Path()
	err := e.enc.Close(summaryFromSnapshot(snap, e.started, now, e.lapIdx))
	e.proc.Close()
	if err != nil {
		e.logger.Error("finalizing activity failed", log.ErrorField(err))
		return err
	}
	e.logger.Info("session finalized",
		log.String("file", path),
		log.Duration("moving", snap.Totals.Duration),
		log.Float64("distance", snap.Totals.DistanceMeters))

	if len(snap.Current) == 0 {
		// no data beyond the envelope, nothing worth keeping
		e.logger.Info("discarding empty recording", log.String("file", path))
		return os.Remove(path)
	}
	if e.uploader != nil {
		if _, err := e.uploader.Enqueue(path); err != nil {
			e.logger.Warn("upload enqueue failed", log.ErrorField(err))
		}
	}
	return nil
}
