package library

import (
	"context"
	"log/slog"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// refreshPage bounds one catalog read during an authority sweep.
const refreshPage = 200

// RefreshAuthority re-scores every live document against the current
// authority rules and returns how many changed. Changed documents are
// rewritten in the catalog and their paragraphs flagged for re-sync;
// embeddings and text are never touched. The rule watcher only reloads
// the table, so stored scores catch up here or on the next re-ingest.
func (l *Library) RefreshAuthority(ctx context.Context) (int, error) {
	changed := 0
	after := ""
	for {
		docs, err := l.catalog.ListDocumentsAfter(ctx, after, refreshPage)
		if err != nil {
			return changed, err
		}
		if len(docs) == 0 {
			break
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return changed, errors.Wrap(errors.KindCancelled, err)
			}
			score := l.scorer.Score(doc.Author, doc.Religion, doc.Collection)
			if score == doc.Authority {
				continue
			}
			doc.Authority = score
			if err := l.catalog.UpsertDocument(ctx, doc); err != nil {
				return changed, err
			}
			// Paragraph rows denormalize the score, so they re-sync too.
			if err := l.catalog.MarkUnsynced(ctx, doc.ID); err != nil {
				return changed, err
			}
			changed++
		}
		after = docs[len(docs)-1].ID
	}
	if changed > 0 {
		slog.Info("authority scores refreshed", slog.Int("documents", changed))
	}
	return changed, nil
}
