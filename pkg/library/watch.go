package library

import (
	"context"
	"log/slog"

	"github.com/maktaba-dev/maktaba/internal/ingest"
	"github.com/maktaba-dev/maktaba/internal/watcher"
)

// Watch starts a recursive watch on root that re-ingests changed
// markdown and soft-deletes removed files, using the library's exclude
// patterns and the root's ignore file. The caller owns the returned
// watcher and stops it by cancelling ctx or calling Stop. Removals
// match documents by their stored source path, so watch roots that were
// first loaded with IngestDir should use the same absolute paths.
func (l *Library) Watch(ctx context.Context, root string, opts ingest.Options) (*watcher.Watcher, error) {
	w, err := watcher.New(watcher.Config{
		Root:            root,
		ExcludePatterns: l.cfg.Ingest.ExcludePatterns,
	}, &watchApplier{lib: l, opts: opts})
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// watchApplier lands watcher batches in the catalog. Per-file failures
// are logged and skipped; the first one is reported back so the watcher
// can surface the batch.
type watchApplier struct {
	lib  *Library
	opts ingest.Options
}

func (a *watchApplier) Apply(ctx context.Context, batch []watcher.Event) error {
	var firstErr error
	for _, ev := range batch {
		var err error
		switch ev.Op {
		case watcher.OpWrite:
			_, err = a.lib.IngestFile(ctx, ev.Path, a.opts)
		case watcher.OpRemove:
			err = a.remove(ctx, ev.Path)
		}
		if err != nil {
			slog.Warn("watched change failed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Op.String()),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// remove soft-deletes the document stored for path. A path that never
// ingested, or was already deleted, is a no-op.
func (a *watchApplier) remove(ctx context.Context, path string) error {
	doc, err := a.lib.catalog.GetDocumentBySourcePath(ctx, path)
	if err != nil || doc == nil {
		return err
	}
	return a.lib.catalog.SoftDeleteDocument(ctx, doc.ID)
}
