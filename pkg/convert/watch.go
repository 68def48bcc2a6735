package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Options

	// Debounce delays a conversion until a file has been quiet for this
	// long, so a document written in several chunks converts once.
	Debounce time.Duration

	// OnResult, if set, is called after every conversion attempt.
	OnResult func(path string, res *Result, err error)
}

// IsDocument reports whether path looks like a PSSG XML document.
func IsDocument(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}

// Watch converts documents in dir whenever they are created or written,
// until ctx is cancelled. Conversions run one at a time on the calling
// goroutine.
func Watch(ctx context.Context, dir string, opts WatchOptions) error {
	log := opts.logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	log.Info("watching directory", zap.String("dir", dir))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(tickInterval(opts.Debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsDocument(e.Name) {
				continue
			}
			pending[e.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", zap.Error(err))

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < opts.Debounce {
					continue
				}
				delete(pending, path)

				res, err := File(path, opts.Options)
				if err != nil {
					log.Error("conversion failed", zap.String("path", path), zap.Error(err))
				}
				if opts.OnResult != nil {
					opts.OnResult(path, res, err)
				}
			}
		}
	}
}

func tickInterval(debounce time.Duration) time.Duration {
	if d := debounce / 4; d > 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}
