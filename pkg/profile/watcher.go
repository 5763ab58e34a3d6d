/*
	Copyright 2026 OpenVelo
*/

package profile

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/openvelo/ride-engine/log"
)

// Watch reloads the profile whenever the file changes and delivers the
// result to onChange. Runs until the context is canceled. Editors often
// replace files via rename, so the parent directory is watched.
func Watch(ctx context.Context, path string, onChange func(Athlete)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	logger := log.GetLogger("profile")
	abs, _ := filepath.Abs(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				athlete, err := Load(path)
				if err != nil {
					logger.Warn("profile reload failed", log.ErrorField(err))
					continue
				}
				logger.Info("profile reloaded",
					log.Float64("ftp", athlete.FTP),
					log.Float64("maxHr", athlete.MaxHR))
				onChange(athlete)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("profile watcher error", log.ErrorField(err))
			}
		}
	}()
	return nil
}
