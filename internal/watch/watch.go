// Package watch re-runs analysis whenever the capture artifact changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/internal/logging"
)

// DefaultDebounce is how long the artifact must stay quiet before a run.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc performs one analysis pass.
type RunFunc func(ctx context.Context) error

// Watcher runs a RunFunc once up front and then after every burst of
// writes to a single file.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Log      logrus.FieldLogger
	Run      RunFunc
}

// Watch blocks until ctx is done. The parent directory is watched rather
// than the file so an artifact that does not exist yet, or is replaced by
// rename, is still picked up. Errors from Run are logged, never fatal.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.Run == nil {
		return errors.New("watch: run func is nil")
	}
	log := w.Log
	if log == nil {
		log = logging.Discard()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("resolve artifact path: %w", err)
	}
	log = log.WithField("path", target)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	w.runOnce(ctx, log)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, target) {
				continue
			}
			log.WithField("op", ev.Op.String()).Debug("artifact changed")
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("watch error")
		case <-timer.C:
			w.runOnce(ctx, log)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context, log logrus.FieldLogger) {
	start := time.Now()
	if err := w.Run(ctx); err != nil {
		log.WithError(err).Error("analysis failed")
		return
	}
	log.WithField("duration", time.Since(start)).Info("analysis refreshed")
}

func relevant(ev fsnotify.Event, target string) bool {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != target {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
