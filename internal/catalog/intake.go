package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

const intakeColumns = `id, kind, source, status, analysis, recommendation,
	document_id, created_by, error, created_at, updated_at`

// EnqueueIntake writes one review-queue entry. A missing status defaults to
// awaiting_review.
func (s *Store) EnqueueIntake(ctx context.Context, entry *IntakeEntry) error {
	if entry == nil || entry.ID == "" {
		return errors.InputInvalid("intake id is required", nil)
	}
	switch entry.Kind {
	case IntakeKindFile, IntakeKindInlineText, IntakeKindURL:
	default:
		return errors.InputInvalid(fmt.Sprintf("unknown intake kind: %s", entry.Kind), nil)
	}
	if entry.Source == "" {
		return errors.InputInvalid("intake source is required", nil)
	}

	status := entry.Status
	if status == "" {
		status = IntakeAwaitingReview
	}

	return s.withRetry(ctx, "enqueue intake", func() error {
		ts := toMillis(now())
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO intake (
				id, kind, source, status, analysis, recommendation,
				document_id, created_by, error, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.ID, string(entry.Kind), entry.Source, string(status),
			entry.Analysis, string(entry.Recommendation), entry.DocumentID,
			entry.CreatedBy, entry.Error, ts, ts)
		return err
	})
}

// GetIntake returns one review-queue entry. Returns (nil, nil) when absent.
func (s *Store) GetIntake(ctx context.Context, id string) (*IntakeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+intakeColumns+` FROM intake WHERE id = ?`, id)
	entry, err := scanIntake(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get intake", err)
	}
	return entry, nil
}

// UpdateIntakeStatus moves an entry through its review lifecycle. errMsg is
// recorded verbatim; pass empty on success paths.
func (s *Store) UpdateIntakeStatus(ctx context.Context, id string, status IntakeStatus, errMsg string) error {
	return s.withRetry(ctx, "update intake status", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE intake SET status = ?, error = ?, updated_at = ? WHERE id = ?
		`, string(status), errMsg, toMillis(now()), id)
		if err != nil {
			return err
		}
		return requireIntakeRow(res, id)
	})
}

// SetIntakeAnalysis records the automated analysis verdict on an entry.
func (s *Store) SetIntakeAnalysis(ctx context.Context, id, analysis string, recommendation IntakeRecommendation) error {
	return s.withRetry(ctx, "set intake analysis", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE intake SET analysis = ?, recommendation = ?, updated_at = ? WHERE id = ?
		`, analysis, string(recommendation), toMillis(now()), id)
		if err != nil {
			return err
		}
		return requireIntakeRow(res, id)
	})
}

// SetIntakeDocument binds a processed entry to the document it produced.
func (s *Store) SetIntakeDocument(ctx context.Context, id, documentID string) error {
	return s.withRetry(ctx, "set intake document", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE intake SET document_id = ?, updated_at = ? WHERE id = ?
		`, documentID, toMillis(now()), id)
		if err != nil {
			return err
		}
		return requireIntakeRow(res, id)
	})
}

// ListIntakeByStatus returns entries in a given status, oldest first.
func (s *Store) ListIntakeByStatus(ctx context.Context, status IntakeStatus, limit int) ([]*IntakeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+intakeColumns+` FROM intake
		 WHERE status = ? ORDER BY created_at, id LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, classify("list intake", err)
	}
	defer rows.Close()

	var entries []*IntakeEntry
	for rows.Next() {
		entry, err := scanIntake(rows)
		if err != nil {
			return nil, classify("scan intake", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list intake", err)
	}
	return entries, nil
}

// requireIntakeRow turns a zero-row update into an error.
func requireIntakeRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return errors.StoreFailed(fmt.Sprintf("intake entry not found: %s", id), nil)
	}
	return nil
}

// scanIntake reads one intake row in intakeColumns order.
func scanIntake(row rowScanner) (*IntakeEntry, error) {
	var entry IntakeEntry
	var kind, status, recommendation string
	var createdAt, updatedAt int64

	err := row.Scan(
		&entry.ID, &kind, &entry.Source, &status, &entry.Analysis,
		&recommendation, &entry.DocumentID, &entry.CreatedBy, &entry.Error,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Kind = IntakeKind(kind)
	entry.Status = IntakeStatus(status)
	entry.Recommendation = IntakeRecommendation(recommendation)
	entry.CreatedAt = fromMillis(createdAt)
	entry.UpdatedAt = fromMillis(updatedAt)
	return &entry, nil
}
