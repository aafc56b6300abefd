package jobs

import (
	"context"
	"fmt"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/chunk"
	"github.com/maktaba-dev/maktaba/internal/embed"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/segment"
)

// migrateBatch bounds one embedding call during migration. Stale sets can
// span the whole catalog, so rows go to the provider in slices rather than
// one giant request.
const migrateBatch = 64

// Catalog is the slice of the catalog store the built-in handlers touch.
// Satisfied by *catalog.Store.
type Catalog interface {
	GetDocument(ctx context.Context, id string) (*catalog.Document, error)
	ListParagraphs(ctx context.Context, documentID string) ([]catalog.Paragraph, error)
	ListStaleEmbeddings(ctx context.Context, model string) ([]catalog.Paragraph, error)
	UpdateParagraphText(ctx context.Context, id, newText, newHash string) error
	UpdateParagraphEmbedding(ctx context.Context, id string, vector []float32, model string) error
}

// Segmenter recomputes sentence markers over canonical text.
type Segmenter interface {
	Segment(ctx context.Context, text, lang string) (string, error)
}

// targetMissing marks a job whose document vanished after enqueue.
func targetMissing(documentID string) error {
	return fmt.Errorf("%s: document %s", TargetMissing, documentID)
}

// ResegmentHandler re-runs the sentence segmenter over every paragraph of
// the job's document. Markers move but the words do not, so the canonical
// text, the content hash and the stored vector all stay fixed; only the
// marked text is rewritten.
func ResegmentHandler(q *Queue, cat Catalog, seg Segmenter) Handler {
	return func(ctx context.Context, job *Job) error {
		if job.DocumentID == "" {
			return errors.InputInvalid("re-segmentation requires a document id", nil)
		}
		doc, err := cat.GetDocument(ctx, job.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil || doc.Deleted() {
			return targetMissing(job.DocumentID)
		}
		rows, err := cat.ListParagraphs(ctx, job.DocumentID)
		if err != nil {
			return err
		}

		total := len(rows)
		_ = q.ReportProgress(ctx, job.ID, 0, total)
		for i := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := &rows[i]
			if resegmentable(row.BlockType) {
				canonical := segment.Canonical(row.Text)
				if canonical != "" {
					marked, err := seg.Segment(ctx, canonical, doc.Language)
					if err != nil {
						return err
					}
					if marked != row.Text {
						if err := cat.UpdateParagraphText(ctx, row.ID, marked, row.ContentHash); err != nil {
							return err
						}
					}
				}
			}
			// Progress is advisory; a failed write never fails the run.
			_ = q.ReportProgress(ctx, job.ID, i+1, total)
		}
		return nil
	}
}

// resegmentable mirrors the ingest rule: headings and noise blocks never
// carry markers.
func resegmentable(blockType string) bool {
	switch blockType {
	case string(chunk.BlockHeading), string(chunk.BlockNoise):
		return false
	}
	return true
}

// EmbeddingMigrationHandler re-embeds paragraphs whose vector came from a
// model other than the active one. A document-scoped job migrates that
// document; a job with no document sweeps every stale row in the catalog.
// Rewritten rows come back unsynced, so the sync worker pushes the new
// vectors on its next sweep.
func EmbeddingMigrationHandler(q *Queue, cat Catalog, embedder embed.Embedder) Handler {
	return func(ctx context.Context, job *Job) error {
		model := embedder.ModelName()
		var stale []catalog.Paragraph
		if job.DocumentID != "" {
			doc, err := cat.GetDocument(ctx, job.DocumentID)
			if err != nil {
				return err
			}
			if doc == nil || doc.Deleted() {
				return targetMissing(job.DocumentID)
			}
			rows, err := cat.ListParagraphs(ctx, job.DocumentID)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if row.EmbeddingModel != model {
					stale = append(stale, row)
				}
			}
		} else {
			var err error
			stale, err = cat.ListStaleEmbeddings(ctx, model)
			if err != nil {
				return err
			}
		}

		total := len(stale)
		_ = q.ReportProgress(ctx, job.ID, 0, total)
		done := 0
		for start := 0; start < total; start += migrateBatch {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch := stale[start:min(start+migrateBatch, total)]
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = segment.Canonical(batch[i].Text)
			}
			vectors, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return errors.ProviderPermanent(fmt.Sprintf(
					"embedder returned %d vectors for %d paragraphs", len(vectors), len(batch)), nil)
			}
			for i := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := cat.UpdateParagraphEmbedding(ctx, batch[i].ID, vectors[i], model); err != nil {
					return err
				}
				done++
			}
			_ = q.ReportProgress(ctx, job.ID, done, total)
		}
		return nil
	}
}
