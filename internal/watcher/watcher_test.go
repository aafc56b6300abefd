package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/gitignore"
)

// recordingApplier captures applied batches.
type recordingApplier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingApplier) Apply(_ context.Context, batch []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, batch...)
	return nil
}

// lastOp returns the most recent operation applied for path.
func (r *recordingApplier) lastOp(path string) (Op, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var op Op
	found := false
	for _, ev := range r.events {
		if ev.Path == path {
			op = ev.Op
			found = true
		}
	}
	return op, found
}

func (r *recordingApplier) seen(path string) bool {
	_, ok := r.lastOp(path)
	return ok
}

func startWatcher(t *testing.T, root string) (*Watcher, *recordingApplier) {
	t.Helper()
	applier := &recordingApplier{}
	w, err := New(Config{
		Root:            root,
		Window:          30 * time.Millisecond,
		ExcludePatterns: []string{"drafts"},
	}, applier)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, applier
}

func waitSeen(t *testing.T, applier *recordingApplier, path string) {
	t.Helper()
	require.Eventually(t, func() bool { return applier.seen(path) },
		2*time.Second, 10*time.Millisecond)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// TS01: New validates its inputs.
func TestNew_Validates(t *testing.T) {
	_, err := New(Config{}, &recordingApplier{})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInputInvalid))

	_, err = New(Config{Root: t.TempDir()}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInputInvalid))
}

// TS02: a written markdown file reaches the applier as a write.
func TestWatcher_WriteApplies(t *testing.T) {
	root := t.TempDir()
	_, applier := startWatcher(t, root)

	path := filepath.Join(root, "note.md")
	write(t, path, "A first paragraph.")

	waitSeen(t, applier, path)
	op, _ := applier.lastOp(path)
	assert.Equal(t, OpWrite, op)
}

// TS03: a removed markdown file reaches the applier as a remove.
func TestWatcher_RemoveApplies(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	write(t, path, "Here and gone.")

	_, applier := startWatcher(t, root)
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		op, ok := applier.lastOp(path)
		return ok && op == OpRemove
	}, 2*time.Second, 10*time.Millisecond)
}

// TS04: a directory created after Start is watched, and markdown
// already inside it is picked up.
func TestWatcher_NewDirectoryJoinsWatch(t *testing.T) {
	root := t.TempDir()
	_, applier := startWatcher(t, root)

	inner := filepath.Join(root, "books", "gleanings.md")
	write(t, inner, "Content inside a new subtree.")

	waitSeen(t, applier, inner)

	// Later writes inside the subtree are seen directly.
	later := filepath.Join(root, "books", "iqan.md")
	write(t, later, "A second file.")
	waitSeen(t, applier, later)
}

// TS05: exclude patterns and the root ignore file keep paths out of
// the stream.
func TestWatcher_Exclusions(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, gitignore.IgnoreFile), "archive/\n")
	_, applier := startWatcher(t, root)

	write(t, filepath.Join(root, "drafts", "wip.md"), "Excluded by pattern.")
	write(t, filepath.Join(root, "archive", "old.md"), "Excluded by ignore file.")
	write(t, filepath.Join(root, "note.txt"), "Not markdown.")
	control := filepath.Join(root, "kept.md")
	write(t, control, "Watched.")

	waitSeen(t, applier, control)
	assert.False(t, applier.seen(filepath.Join(root, "drafts", "wip.md")))
	assert.False(t, applier.seen(filepath.Join(root, "archive", "old.md")))
	assert.False(t, applier.seen(filepath.Join(root, "note.txt")))
}

// TS06: fold coalesces by path with the newest operation winning.
func TestFold_Coalesces(t *testing.T) {
	w := &Watcher{root: "/lib"}
	pending := make(map[string]Op)

	assert.True(t, w.fold(fsnotify.Event{Name: "/lib/a.md", Op: fsnotify.Write}, pending))
	assert.True(t, w.fold(fsnotify.Event{Name: "/lib/a.md", Op: fsnotify.Write}, pending))
	assert.True(t, w.fold(fsnotify.Event{Name: "/lib/a.md", Op: fsnotify.Remove}, pending))
	assert.True(t, w.fold(fsnotify.Event{Name: "/lib/b.md", Op: fsnotify.Write}, pending))
	assert.False(t, w.fold(fsnotify.Event{Name: "/lib/c.txt", Op: fsnotify.Write}, pending))
	assert.False(t, w.fold(fsnotify.Event{Name: "/lib/a.md", Op: fsnotify.Chmod}, pending))

	batch := drain(pending)
	require.Len(t, batch, 2)
	assert.Equal(t, Event{Path: "/lib/a.md", Op: OpRemove}, batch[0])
	assert.Equal(t, Event{Path: "/lib/b.md", Op: OpWrite}, batch[1])
	assert.Empty(t, drain(pending))
}

// TS07: Stop is safe before Start and after it, repeatedly.
func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()}, &recordingApplier{})
	require.NoError(t, err)
	w.Stop()

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
