/*
	Copyright 2026 OpenVelo
*/

// Package simulate records a session from a generated rider instead of
// real hardware.
package simulate

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/config"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/profile"
	"github.com/openvelo/ride-engine/pkg/session"
	"github.com/openvelo/ride-engine/pkg/sim"
	"github.com/openvelo/ride-engine/pkg/upload"
)

var (
	workoutFile  string
	seed         int64
	gradePercent float64
	sampleMillis int
)

func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "record a session driven by a simulated rider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&workoutFile,
		"workout",
		"",
		"workout definition (YAML), built-in sweet spot session if empty")
	cmd.Flags().Int64Var(&seed,
		"seed",
		0,
		"random seed (0 = time based)")
	cmd.Flags().Float64Var(&gradePercent,
		"grade",
		0,
		"simulated road grade in percent")
	cmd.Flags().IntVar(&sampleMillis,
		"sample-millis",
		1000,
		"sensor sample interval in milliseconds")
	cmd.Flags().StringVar(&config.UploadURL,
		"upload-url",
		"",
		"endpoint that receives finished activities (empty = keep local)")
	cmd.Flags().StringVar(&config.TickInterval,
		"tick-interval",
		"1s",
		"aggregation interval")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

//nolint:funlen // by design
func runSimulate(ctx context.Context) error {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel))
	default:
		logger = log.DevLogger(os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel))
	}
	log.ResetDefault(logger)

	tickInterval, err := time.ParseDuration(config.TickInterval)
	if err != nil {
		return fmt.Errorf("invalid tick interval: %w", err)
	}

	athlete := profile.Default()
	if config.ProfilePath != "" {
		if athlete, err = profile.Load(config.ProfilePath); err != nil {
			logger.Warn("profile not loaded, using defaults", log.ErrorField(err))
		}
	}

	workout := sim.DefaultWorkout()
	if workoutFile != "" {
		if workout, err = sim.LoadWorkout(workoutFile); err != nil {
			return err
		}
	}

	var uploader *upload.Coordinator
	if config.UploadURL != "" {
		uploader = upload.NewCoordinator(config.UploadURL)
	}

	engine := session.NewEngine(
		session.WithAthlete(athlete),
		session.WithMachine(model.MachineBike),
		session.WithRecordDir(config.RecordDir),
		session.WithTickInterval(tickInterval),
		session.WithUploader(uploader),
		session.WithLogger(logger.Named("session")),
	)
	if err := engine.Start(ctx); err != nil {
		return err
	}

	riderOpts := []sim.Option{
		sim.WithGrade(gradePercent),
		sim.WithSampleInterval(time.Duration(sampleMillis) * time.Millisecond),
	}
	if seed != 0 {
		riderOpts = append(riderOpts, sim.WithSeed(seed))
	}
	rider := sim.NewRider(athlete, riderOpts...)

	rideCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rideDone := make(chan error, 1)
	go func() { rideDone <- rider.Run(rideCtx, engine, workout) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case v := <-sigChan:
		logger.Debug("Got signal", log.Any("signal", v))
		cancel()
		<-rideDone
	case err := <-rideDone:
		if err != nil {
			logger.Warn("rider stopped early", log.ErrorField(err))
		}
	}
	if err := engine.Stop(); err != nil {
		return err
	}
	<-engine.Done()

	snap := engine.Snapshot()
	logger.Info("ride summary",
		log.Duration("moving", snap.Totals.Duration),
		log.Float64("distance", snap.Totals.DistanceMeters),
		log.Float64("calories", snap.Totals.Calories))

	if uploader != nil {
		uploader.Wait()
		uploader.Close()
	}
	//nolint:errcheck // stderr sync is best effort
	logger.Sync()
	return nil
}
