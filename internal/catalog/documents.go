package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// documentColumns is the fixed column order shared by every document scan.
const documentColumns = `id, title, author, religion, collection, language, year, description,
	authority, paragraph_count, file_hash, body_hash, source_path,
	created_at, updated_at, deleted_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// UpsertDocument merges a document row by id. created_at is filled on first
// write and preserved afterwards; updated_at moves on every write.
// paragraph_count is owned by the content operations and never overwritten
// here. Upserting a soft-deleted document revives it.
func (s *Store) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return errors.InputInvalid("document id is required", nil)
	}
	return s.withRetry(ctx, "upsert document", func() error {
		_, err := s.upsertDocument(ctx, s.db, doc)
		return err
	})
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertDocument writes the document row on the given connection so
// ApplyChangeSet can reuse it inside a transaction.
func (s *Store) upsertDocument(ctx context.Context, ex execer, doc *Document) (sql.Result, error) {
	// Zero values fall back to the neutral defaults the schema declares.
	language := doc.Language
	if language == "" {
		language = "en"
	}
	authority := doc.Authority
	if authority == 0 {
		authority = 5
	}

	ts := toMillis(now())
	return ex.ExecContext(ctx, `
		INSERT INTO documents (
			id, title, author, religion, collection, language, year, description,
			authority, paragraph_count, file_hash, body_hash, source_path,
			created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			religion = excluded.religion,
			collection = excluded.collection,
			language = excluded.language,
			year = excluded.year,
			description = excluded.description,
			authority = excluded.authority,
			file_hash = excluded.file_hash,
			body_hash = excluded.body_hash,
			source_path = excluded.source_path,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`,
		doc.ID, doc.Title, doc.Author, doc.Religion, doc.Collection, language,
		doc.Year, doc.Description, authority, doc.ParagraphCount,
		doc.FileHash, doc.BodyHash, doc.SourcePath, ts, ts,
	)
}

// GetDocument returns the document row by id, including soft-deleted rows.
// Returns (nil, nil) when no row exists.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get document", err)
	}
	return doc, nil
}

// GetDocumentBySourcePath returns the live document for a source path.
// Soft-deleted rows are excluded so a re-ingested file goes through the
// creation path, which revives the row. Returns (nil, nil) when absent.
func (s *Store) GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE source_path = ? AND deleted_at IS NULL`, sourcePath)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get document by source path", err)
	}
	return doc, nil
}

// ListDocuments returns live documents ordered by id. Soft-deleted rows are
// excluded.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]*Document, error) {
	return s.ListDocumentsAfter(ctx, "", limit)
}

// ListDocumentsAfter pages live documents by id: rows strictly greater than
// afterID, ordered by id. Pass "" to start and the last id of the previous
// batch to continue; a short batch ends the walk.
func (s *Store) ListDocumentsAfter(ctx context.Context, afterID string, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE deleted_at IS NULL AND id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, classify("list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, classify("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list documents", err)
	}
	return docs, nil
}

// SoftDeleteDocument marks a document deleted and flags its paragraphs
// unsynced so the sync worker removes them from the search store. The rows
// themselves stay. Deleting an already-deleted document keeps the original
// deletion time.
func (s *Store) SoftDeleteDocument(ctx context.Context, id string) error {
	return s.withRetry(ctx, "soft delete document", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		ts := toMillis(now())
		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET deleted_at = COALESCE(deleted_at, ?), updated_at = ?
			WHERE id = ?
		`, ts, ts, id)
		if err != nil {
			return fmt.Errorf("mark document deleted: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return errors.StoreFailed(fmt.Sprintf("document not found: %s", id), nil)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE content SET synced = 0, updated_at = ? WHERE document_id = ?
		`, ts, id); err != nil {
			return fmt.Errorf("flag paragraphs unsynced: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// recountDocument refreshes paragraph_count from the live content rows.
// Runs inside the transaction that changed the rows so the invariant holds
// at commit.
func recountDocument(ctx context.Context, tx *sql.Tx, documentID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET paragraph_count = (SELECT COUNT(*) FROM content WHERE document_id = ?),
		    updated_at = ?
		WHERE id = ?
	`, documentID, toMillis(now()), documentID)
	if err != nil {
		return fmt.Errorf("recount paragraphs: %w", err)
	}
	return nil
}

// scanDocument reads one document row in documentColumns order.
func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Author, &doc.Religion, &doc.Collection,
		&doc.Language, &doc.Year, &doc.Description, &doc.Authority,
		&doc.ParagraphCount, &doc.FileHash, &doc.BodyHash, &doc.SourcePath,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	doc.DeletedAt = timePtr(deletedAt)
	return &doc, nil
}
