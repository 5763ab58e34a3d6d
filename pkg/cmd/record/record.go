/*
	Copyright 2026 OpenVelo
*/

// Package record implements the live recording command. Sensor readings
// arrive as JSON lines on stdin, control verbs as /-prefixed lines.
package record

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // bound to localhost below
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/config"
	"github.com/openvelo/ride-engine/pkg/control"
	"github.com/openvelo/ride-engine/pkg/fitfile"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/profile"
	"github.com/openvelo/ride-engine/pkg/session"
	"github.com/openvelo/ride-engine/pkg/session/natspub"
	"github.com/openvelo/ride-engine/pkg/upload"
)

func NewRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "record a session from sensor input on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.MachineClass,
		"machine",
		"bike",
		"machine type (bike, rower, elliptical, treadmill)")
	cmd.Flags().StringVar(&config.UploadURL,
		"upload-url",
		"",
		"endpoint that receives finished activities (empty = keep local)")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"NATS server for live data mirroring (empty = off)")
	cmd.Flags().StringVar(&config.TickInterval,
		"tick-interval",
		"1s",
		"aggregation interval")
	cmd.Flags().Float64Var(&config.MaxRampRate,
		"max-ramp-rate",
		10.0,
		"resistance units per second the controller may change")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"",
		"Endpoint that receives open telemetry data")
	cmd.Flags().BoolVar(&config.KeepUploaded,
		"keep-uploaded",
		false,
		"keep local files after successful upload")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

func setupLogger() *log.Logger {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogFilter != "" {
		logger = logger.WithFilterRules(config.LogFilter)
	}
	log.ResetDefault(logger)
	return logger
}

//nolint:funlen,cyclop // by design
func runRecord(ctx context.Context) error {
	logger := setupLogger()

	var telemetry *config.Telemetry
	if config.EnableTelemetry {
		logger.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(ctx); err != nil {
			logger.Warn("Could not setup telemetry", log.ErrorField(err))
		}
	}

	if config.ProfilingPort > 0 {
		logger.Info("Starting profiling server on port",
			log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // localhost only
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				logger.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	machine := model.ParseMachineClass(config.MachineClass)
	tickInterval, err := time.ParseDuration(config.TickInterval)
	if err != nil {
		return fmt.Errorf("invalid tick interval: %w", err)
	}

	// never let a crashed recording shadow the new one
	sweepResult, err := fitfile.Sweep(config.RecordDir, logger.Named("sweep"))
	if err != nil {
		return err
	}
	logger.Info("startup sweep done",
		log.Int("complete", len(sweepResult.Complete)),
		log.Int("recovered", len(sweepResult.Recovered)),
		log.Int("removed", len(sweepResult.Removed)))

	athlete := profile.Default()
	if config.ProfilePath != "" {
		if athlete, err = profile.Load(config.ProfilePath); err != nil {
			logger.Warn("profile not loaded, using defaults", log.ErrorField(err))
		}
	}

	var uploader *upload.Coordinator
	if config.UploadURL != "" {
		var uploadOpts []upload.Option
		if config.KeepUploaded {
			uploadOpts = append(uploadOpts, upload.WithKeepFiles())
		}
		uploader = upload.NewCoordinator(config.UploadURL, uploadOpts...)
	}

	engine := session.NewEngine(
		session.WithAthlete(athlete),
		session.WithMachine(machine),
		session.WithRecordDir(config.RecordDir),
		session.WithTickInterval(tickInterval),
		session.WithUploader(uploader),
		session.WithControlOptions(control.WithMaxRampRate(config.MaxRampRate)),
		session.WithLogger(logger.Named("session")),
	)
	if err := engine.Start(ctx); err != nil {
		return err
	}

	if config.ProfilePath != "" {
		if err := profile.Watch(ctx, config.ProfilePath, func(a profile.Athlete) {
			//nolint:errcheck // session may be gone already
			engine.SetAthlete(a)
		}); err != nil {
			logger.Warn("profile watcher not started", log.ErrorField(err))
		}
	}

	var pub *natspub.Publisher
	if config.NatsURL != "" {
		nc, ncErr := nats.Connect(config.NatsURL)
		if ncErr != nil {
			logger.Warn("NATS not available, live mirror off", log.ErrorField(ncErr))
		} else {
			defer nc.Close()
			pub = natspub.NewPublisher(nc,
				time.Now().UTC().Format("20060102150405"),
				engine.SensorUpdates(), engine.StatsUpdates())
			defer pub.Close()
		}
	}

	go readInput(os.Stdin, engine, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case v := <-sigChan:
		logger.Debug("Got signal", log.Any("signal", v))
		//nolint:errcheck // already stopped via /stop
		engine.Stop()
	case <-engine.Done():
	}
	<-engine.Done()

	if uploader != nil {
		uploader.Wait()
		uploader.Close()
	}
	if telemetry != nil {
		telemetry.Shutdown()
	}
	//nolint:errcheck // stderr sync is best effort
	logger.Sync()
	return nil
}

type inputLine struct {
	Channel string          `json:"channel"`
	Value   float64         `json:"value"`
	Pos     *model.GeoPoint `json:"position,omitempty"`
}

// readInput consumes JSON sensor lines and /-prefixed control verbs
// until stdin closes or the session stops.
func readInput(r io.Reader, engine *session.Engine, logger *log.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if stop := handleVerb(line, engine, logger); stop {
				return
			}
			continue
		}
		var in inputLine
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			logger.Warn("unparsable input line", log.ErrorField(err))
			continue
		}
		ch, ok := channelByName(in.Channel)
		if !ok {
			logger.Warn("unknown channel", log.String("channel", in.Channel))
			continue
		}
		engine.Submit(model.SensorEvent{
			Channel:   ch,
			Value:     in.Value,
			Position:  in.Pos,
			Timestamp: time.Now(),
		})
	}
}

func handleVerb(line string, engine *session.Engine, logger *log.Logger) bool {
	fields := strings.Fields(line)
	var err error
	switch fields[0] {
	case "/pause":
		err = engine.Pause()
	case "/resume":
		err = engine.Resume()
	case "/lap":
		err = engine.Lap()
	case "/target":
		if len(fields) < 2 {
			logger.Warn("usage: /target <watts>")
			return false
		}
		var watts float64
		if watts, err = strconv.ParseFloat(fields[1], 64); err == nil {
			err = engine.SetTargetPower(watts)
		}
	case "/resistance":
		if len(fields) < 2 {
			logger.Warn("usage: /resistance <level>")
			return false
		}
		var level float64
		if level, err = strconv.ParseFloat(fields[1], 64); err == nil {
			err = engine.SetResistance(level)
		}
	case "/stop":
		//nolint:errcheck // main loop handles shutdown
		engine.Stop()
		return true
	default:
		logger.Warn("unknown verb", log.String("verb", fields[0]))
		return false
	}
	if err != nil {
		logger.Warn("command failed",
			log.String("verb", fields[0]), log.ErrorField(err))
	}
	return false
}

func channelByName(name string) (model.Channel, bool) {
	for _, ch := range model.Channels {
		if strings.EqualFold(ch.String(), name) {
			return ch, true
		}
	}
	return 0, false
}
