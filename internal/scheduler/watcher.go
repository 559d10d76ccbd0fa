package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher reports settled changes in one flat directory
type watcher struct {
	dir       string
	fs        *fsnotify.Watcher
	debouncer *debouncer
	ignore    func(name string) bool
	logger    *zap.Logger
}

func newWatcher(dir string, delay time.Duration, ignore func(string) bool, onChange func(), logger *zap.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &watcher{
		dir:       dir,
		fs:        fsw,
		debouncer: newDebouncer(delay, onChange),
		ignore:    ignore,
		logger:    logger,
	}, nil
}

func (w *watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (w *watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Base(event.Name)
	if shouldIgnore(name) || (w.ignore != nil && w.ignore(name)) {
		return
	}

	w.logger.Debug("File event",
		zap.String("path", event.Name),
		zap.String("op", event.Op.String()),
	)
	w.debouncer.trigger()
}

func (w *watcher) close() {
	w.debouncer.stop()
	if err := w.fs.Close(); err != nil {
		w.logger.Warn("Error closing watcher", zap.Error(err))
	}
}

// shouldIgnore returns true for hidden, temporary and partial files
func shouldIgnore(name string) bool {
	if name == "" || name[0] == '.' {
		return true
	}
	for _, suffix := range []string{".tmp", ".temp", ".swp", "~", ".part", ".lifesync-tmp"} {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// debouncer coalesces rapid changes into one callback
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

func newDebouncer(delay time.Duration, callback func()) *debouncer {
	return &debouncer{
		delay:    delay,
		callback: callback,
	}
}

// trigger schedules or resets the timer
func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()

		d.callback()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
