package authority

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Scorer when its config file changes on disk. The
// parent directory is watched rather than the file itself, so editors
// that replace the file via rename are still observed.
type Watcher struct {
	scorer  *Scorer
	window  time.Duration
	fsw     *fsnotify.Watcher
	doneCh  chan struct{}
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewWatcher creates a watcher for the scorer's config path. window <= 0
// falls back to DefaultDebounce.
func NewWatcher(scorer *Scorer, window time.Duration) *Watcher {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Watcher{
		scorer: scorer,
		window: window,
		doneCh: make(chan struct{}),
	}
}

// Start begins watching. Returns immediately; reloads happen on a
// background goroutine until Stop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.scorer.Path())); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.scorer.Path())
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("authority config watcher error", slog.String("error", err.Error()))
		case <-w.doneCh:
			return
		}
	}
}

// scheduleReload re-arms the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.reload)
}

func (w *Watcher) reload() {
	if err := w.scorer.Reload(); err != nil {
		slog.Warn("authority config reload failed",
			slog.String("path", w.scorer.Path()),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("authority config reloaded", slog.String("path", w.scorer.Path()))
}

// Stop halts watching. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.doneCh)
	w.mu.Unlock()

	if w.fsw != nil {
		w.fsw.Close()
	}
}
