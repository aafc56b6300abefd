// Package watcher keeps a library directory and the catalog in step.
//
// A Watcher observes a root recursively through fsnotify, coalesces the
// raw event stream through a debounce window, filters it down to
// markdown files that survive the exclusion rules, and hands batched
// changes to an Applier. Writes become re-ingests; removals become soft
// deletes. A removed directory only drops its watch; run a directory
// ingest to reconcile bulk deletions.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/gitignore"
)

// DefaultWindow is the debounce window when none is configured. Editors
// save in bursts; one window folds a burst into one re-ingest.
const DefaultWindow = 500 * time.Millisecond

// Op classifies a coalesced change.
type Op int

const (
	// OpWrite covers created, modified, and renamed-into-place files.
	OpWrite Op = iota
	// OpRemove covers deleted and renamed-away files.
	OpRemove
)

func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one coalesced change to a markdown file. Paths are absolute.
type Event struct {
	Path string
	Op   Op
}

// Applier consumes one debounced batch. Failures are logged by the
// watcher and never stop the watch.
type Applier interface {
	Apply(ctx context.Context, batch []Event) error
}

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string

	// Window is the debounce window. Zero takes DefaultWindow.
	Window time.Duration

	// ExcludePatterns are path substrings skipped entirely, the same
	// contract directory ingestion uses.
	ExcludePatterns []string
}

// Watcher wires fsnotify to an Applier. Start begins the watch and
// Stop waits for the loop to drain; both are safe to call once each
// from any goroutine.
type Watcher struct {
	root    string
	window  time.Duration
	exclude []string
	apply   Applier

	ignore *gitignore.Matcher
	fsw    *fsnotify.Watcher

	cancel   context.CancelFunc
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// New validates the configuration. The filesystem is not touched until
// Start.
func New(cfg Config, apply Applier) (*Watcher, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.InputInvalid("watch root is required", nil)
	}
	if apply == nil {
		return nil, errors.InputInvalid("watch applier is required", nil)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.InputInvalid("resolve watch root: "+cfg.Root, err)
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Watcher{
		root:    root,
		window:  window,
		exclude: cfg.ExcludePatterns,
		apply:   apply,
		doneCh:  make(chan struct{}),
	}, nil
}

// Start loads the root's ignore file, registers the directory tree with
// fsnotify, and launches the event loop. The context bounds the loop's
// lifetime alongside Stop.
func (w *Watcher) Start(ctx context.Context) error {
	ignore, err := gitignore.Load(filepath.Join(w.root, gitignore.IgnoreFile))
	if err != nil {
		return err
	}
	w.ignore = ignore

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.StoreFailed("failed to create file watcher", err)
	}
	w.fsw = fsw

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	go w.loop(ctx)
	slog.Info("library watch started", slog.String("root", w.root))
	return nil
}

// Stop ends the watch and waits for the loop to exit. A pending batch
// is dropped; the next directory ingest reconciles anything missed.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
	if w.started {
		<-w.doneCh
	}
}

// loop folds raw fsnotify events into a pending set and applies it one
// debounce window after the last event.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer func() { _ = w.fsw.Close() }()

	pending := make(map[string]Op)
	timer := time.NewTimer(w.window)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.fold(ev, pending) {
				timer.Reset(w.window)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("library watch error", slog.String("error", err.Error()))

		case <-timer.C:
			batch := drain(pending)
			if len(batch) == 0 {
				continue
			}
			if err := w.apply.Apply(ctx, batch); err != nil && ctx.Err() == nil {
				slog.Warn("watch batch apply failed",
					slog.Int("events", len(batch)),
					slog.String("error", err.Error()))
			}
		}
	}
}

// fold merges one raw event into the pending set and reports whether
// anything changed. The newest operation per path wins: a create
// followed by a delete nets out to a remove of a file that was never
// ingested, which the applier treats as a no-op.
func (w *Watcher) fold(ev fsnotify.Event, pending map[string]Op) bool {
	path := ev.Name
	if w.excluded(path) {
		return false
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// A directory moved into place arrives as one create;
			// register its tree and pick up any markdown inside.
			if err := w.addRecursive(path); err != nil {
				slog.Warn("watch new directory failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return false
			}
			return w.foldTree(path, pending)
		}
		if !isMarkdown(path) {
			return false
		}
		pending[path] = OpWrite
		return true

	case ev.Op&fsnotify.Write != 0:
		if !isMarkdown(path) {
			return false
		}
		pending[path] = OpWrite
		return true

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if !isMarkdown(path) {
			return false
		}
		pending[path] = OpRemove
		return true

	default:
		return false
	}
}

// foldTree queues a write for every markdown file under dir.
func (w *Watcher) foldTree(dir string, pending map[string]Op) bool {
	added := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if w.excluded(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if isMarkdown(path) && !w.excluded(path) {
			pending[path] = OpWrite
			added = true
		}
		return nil
	})
	if err != nil {
		slog.Warn("watch tree scan failed",
			slog.String("path", dir),
			slog.String("error", err.Error()))
	}
	return added
}

// addRecursive registers dir and every non-excluded subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.StoreFailed("walk watch root", err).WithDetail("path", path)
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return errors.StoreFailed("watch directory", err).WithDetail("path", path)
		}
		return nil
	})
}

// excluded applies the substring patterns and the root ignore file.
func (w *Watcher) excluded(path string) bool {
	for _, pattern := range w.exclude {
		if pattern != "" && strings.Contains(path, pattern) {
			return true
		}
	}
	if w.ignore == nil || w.ignore.Empty() {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	info, statErr := os.Stat(path)
	isDir := statErr == nil && info.IsDir()
	return w.ignore.Match(rel, isDir)
}

func isMarkdown(path string) bool {
	return strings.HasSuffix(path, ".md")
}

// drain empties the pending set into a path-ordered batch.
func drain(pending map[string]Op) []Event {
	if len(pending) == 0 {
		return nil
	}
	batch := make([]Event, 0, len(pending))
	for path, op := range pending {
		batch = append(batch, Event{Path: path, Op: op})
	}
	clear(pending)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch
}
