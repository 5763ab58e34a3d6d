/*
	Copyright 2026 OpenVelo
*/

// Package sweep checks the recording directory for orphaned activity
// files and repairs or removes them.
package sweep

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/config"
	"github.com/openvelo/ride-engine/pkg/fitfile"
)

func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "repair or remove orphaned activity files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep()
		},
	}
	return cmd
}

func runSweep() error {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.DevLogger(os.Stderr, level)
	log.ResetDefault(logger)

	result, err := fitfile.Sweep(config.RecordDir, logger)
	if err != nil {
		return err
	}
	logger.Info("sweep finished",
		log.Int("complete", len(result.Complete)),
		log.Int("recovered", len(result.Recovered)),
		log.Int("removed", len(result.Removed)))
	return nil
}
