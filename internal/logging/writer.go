package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultMaxSizeMB = 10
	defaultKeep      = 5
)

// RotatingWriter is an io.Writer that caps the live log at a byte limit
// and keeps a numbered chain of predecessors beside it: maktaba.log,
// maktaba.log.1 (newest rotated), up to maktaba.log.<keep>.
type RotatingWriter struct {
	path    string
	maxSize int64
	keep    int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating the directory if
// needed. Non-positive limits take the defaults (10 MB, 5 files).
func NewRotatingWriter(path string, maxSizeMB, keep int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if keep <= 0 {
		keep = defaultKeep
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	w := &RotatingWriter{
		path:    path,
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		keep:    keep,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first when it would push the live file past
// the limit. Every write is synced so a tailed log shows events as they
// land. A failed rotation falls back to the oversized live file rather
// than dropping the record.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		return 0, os.ErrClosed
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes the live file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the live file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// rotate shifts the numbered chain up by one, drops the oldest, moves
// the live file to .1 and reopens a fresh one. Missing links in the
// chain are skipped. The live file is reopened even when the shift
// fails, so callers keep a writable target.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	link := func(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }
	_ = os.Remove(link(w.keep))
	for n := w.keep - 1; n >= 1; n-- {
		_ = os.Rename(link(n), link(n+1))
	}
	renameErr := os.Rename(w.path, link(1))
	if renameErr != nil && os.IsNotExist(renameErr) {
		renameErr = nil
	}

	if err := w.open(); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("rotate log file: %w", renameErr)
	}
	return nil
}
