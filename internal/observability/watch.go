package observability

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/logging"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 200 * time.Millisecond

// Watch runs Generate once, then again every time the config file is
// written or replaced, until ctx is done. onResult receives every
// generation outcome; a failed generation does not stop the watch.
func Watch(ctx context.Context, opts GenerateOptions, onResult func([]Artefact, error)) error {
	opts.withDefaults()
	logger := logging.OrNop(opts.Logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory and filter.
	configDir := filepath.Dir(opts.ConfigPath)
	configBase := filepath.Base(opts.ConfigPath)
	if err := watcher.Add(configDir); err != nil {
		return fmt.Errorf("watch %s: %w", configDir, err)
	}

	onResult(Generate(opts))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != configBase {
				continue
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 && event.Op&fsnotify.Rename == 0 {
				continue
			}
			logger.Debug("config changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onResult(Generate(opts))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}
