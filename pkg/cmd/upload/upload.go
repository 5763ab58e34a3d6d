/*
	Copyright 2026 OpenVelo
*/

// Package upload pushes finished activity files from the recording
// directory to the backend.
package upload

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/config"
	"github.com/openvelo/ride-engine/pkg/fitfile"
	"github.com/openvelo/ride-engine/pkg/upload"
)

func NewUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "upload finished activities (default: all in the record dir)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(args)
		},
	}
	cmd.Flags().StringVar(&config.UploadURL,
		"upload-url",
		"",
		"endpoint that receives the activities")
	cmd.Flags().BoolVar(&config.KeepUploaded,
		"keep-uploaded",
		false,
		"keep local files after successful upload")
	return cmd
}

func runUpload(args []string) error {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.DevLogger(os.Stderr, level)
	log.ResetDefault(logger)

	if config.UploadURL == "" {
		return fmt.Errorf("no upload URL configured")
	}

	files := args
	if len(files) == 0 {
		// only push files that pass the integrity check; orphans belong
		// to the sweep command
		result, sweepErr := fitfile.Sweep(config.RecordDir, logger.Named("sweep"))
		if sweepErr != nil {
			return sweepErr
		}
		files = append(result.Complete, result.Recovered...)
	}
	if len(files) == 0 {
		logger.Info("nothing to upload")
		return nil
	}

	var uploadOpts []upload.Option
	if config.KeepUploaded {
		uploadOpts = append(uploadOpts, upload.WithKeepFiles())
	}
	coordinator := upload.NewCoordinator(config.UploadURL, uploadOpts...)
	for _, file := range files {
		if _, err := coordinator.Enqueue(file); err != nil {
			logger.Warn("not queued",
				log.String("file", file), log.ErrorField(err))
		}
	}
	coordinator.Wait()

	failed := 0
	for _, job := range coordinator.Jobs() {
		if job.State != upload.StateDone {
			failed++
			logger.Error("upload failed",
				log.String("file", job.Path),
				log.Int("attempts", job.Attempts),
				log.ErrorField(job.Err))
		}
	}
	coordinator.Close()
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	logger.Info("all uploads complete", log.Int("count", len(files)))
	return nil
}
