// Package syncer pushes pending catalog rows to the search store in the
// background. The catalog is the truth and every search row is derived from
// it, so a failed push never loses data; the rows stay flagged and the next
// sweep tries again.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/searchstore"
)

const (
	// DefaultInterval is the sweep cadence.
	DefaultInterval = 15 * time.Second

	// DefaultBatchSize caps the pending rows pulled per sweep.
	DefaultBatchSize = 200

	// maxBackoff caps the sweep delay while the engine is unreachable.
	maxBackoff = 5 * time.Minute
)

// Catalog is the truth-store surface the worker reads and acknowledges.
// Satisfied by *catalog.Store; tests substitute fakes.
type Catalog interface {
	ListUnsynced(ctx context.Context, limit int) ([]catalog.Paragraph, error)
	GetDocument(ctx context.Context, id string) (*catalog.Document, error)
	ListParagraphs(ctx context.Context, documentID string) ([]catalog.Paragraph, error)
	MarkSynced(ctx context.Context, ids []string) error
}

// Config carries the worker options. Zero values fall back to defaults.
type Config struct {
	Interval  time.Duration
	BatchSize int

	// DocumentIndex and ParagraphIndex name the engine indexes for
	// metadata-only partial updates.
	DocumentIndex  string
	ParagraphIndex string
}

// Worker runs the background sweep loop.
type Worker struct {
	catalog Catalog
	search  searchstore.Store

	interval  time.Duration
	batch     int
	docIndex  string
	paraIndex string

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// New creates a sync worker over the given stores.
func New(cat Catalog, search searchstore.Store, cfg Config) (*Worker, error) {
	if cat == nil {
		return nil, errors.InputInvalid("syncer requires a catalog store", nil)
	}
	if search == nil {
		return nil, errors.InputInvalid("syncer requires a search store", nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.DocumentIndex == "" {
		cfg.DocumentIndex = "documents"
	}
	if cfg.ParagraphIndex == "" {
		cfg.ParagraphIndex = "paragraphs"
	}
	return &Worker{
		catalog:   cat,
		search:    search,
		interval:  cfg.Interval,
		batch:     cfg.BatchSize,
		docIndex:  cfg.DocumentIndex,
		paraIndex: cfg.ParagraphIndex,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start launches the sweep loop. Returns immediately; the loop runs until
// Stop or context cancellation.
func (w *Worker) Start(ctx context.Context) {
	w.started = true
	go w.loop(ctx)
}

// Stop halts the loop and waits for the in-flight sweep to finish. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	if w.started {
		<-w.doneCh
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)

	wait := w.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-timer.C:
		}

		n, err := w.Sweep(ctx)
		if err != nil {
			// Leave the rows flagged; back off so a down engine is not
			// hammered every interval.
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
			slog.Warn("sync sweep failed",
				slog.Int("documents_synced", n),
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()))
		} else {
			wait = w.interval
		}
		timer.Reset(wait)
	}
}

// Sweep pulls one batch of pending rows and pushes them grouped by
// document. One failing document does not block the others; the first
// error is returned after the batch is attempted. Returns the number of
// documents brought up to date.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	rows, err := w.catalog.ListUnsynced(ctx, w.batch)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	synced := 0
	var firstErr error
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].DocumentID == rows[start].DocumentID {
			end++
		}
		docID := rows[start].DocumentID

		if err := w.syncDocument(ctx, docID, rows[start:end]); err != nil {
			slog.Warn("document sync failed",
				slog.String("document_id", docID),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return synced, firstErr
			}
		} else {
			synced++
		}
		start = end
	}

	if synced > 0 {
		slog.Info("documents synced", slog.Int("count", synced))
	}
	return synced, firstErr
}

// syncDocument reconciles the engine with the catalog for one document.
// Deleted documents are evicted; pending rows older than the document row
// mean only denormalized metadata moved, which a partial update covers;
// anything else is a wholesale replace of the document's search rows.
func (w *Worker) syncDocument(ctx context.Context, docID string, pulled []catalog.Paragraph) error {
	doc, err := w.catalog.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	if doc == nil || doc.Deleted() {
		if err := w.search.DeleteDocument(ctx, docID); err != nil {
			return err
		}
		return w.catalog.MarkSynced(ctx, ids(pulled))
	}

	if metadataOnly(doc, pulled) {
		if err := w.search.UpdatePartial(ctx, w.docIndex, searchstore.DocumentPartial(doc)); err != nil {
			return err
		}
		parts := make([]searchstore.PartialUpdate, len(pulled))
		for i := range pulled {
			parts[i] = searchstore.ParagraphPartial(doc, pulled[i].ID)
		}
		if err := w.search.UpdatePartial(ctx, w.paraIndex, parts...); err != nil {
			return err
		}
		return w.catalog.MarkSynced(ctx, ids(pulled))
	}

	// Full replace pushes every live row, not just the pulled ones, so a
	// batch cut mid-document still converges in one pass.
	live, err := w.catalog.ListParagraphs(ctx, docID)
	if err != nil {
		return err
	}
	paraRows := make([]searchstore.ParagraphRow, len(live))
	for i := range live {
		paraRows[i] = searchstore.NewParagraphRow(doc, &live[i])
	}
	if err := w.search.IndexDocument(ctx, searchstore.NewDocumentRow(doc), paraRows); err != nil {
		return err
	}
	return w.catalog.MarkSynced(ctx, ids(live))
}

// metadataOnly reports whether every pending row predates the document's
// last write. Content edits bump the touched rows' updated_at alongside the
// document, so strictly-older rows mean their text and placement are
// already in the engine. Ties choose the full replace, which is always
// safe.
func metadataOnly(doc *catalog.Document, rows []catalog.Paragraph) bool {
	for i := range rows {
		if !rows[i].UpdatedAt.Before(doc.UpdatedAt) {
			return false
		}
	}
	return true
}

func ids(rows []catalog.Paragraph) []string {
	out := make([]string, len(rows))
	for i := range rows {
		out[i] = rows[i].ID
	}
	return out
}
