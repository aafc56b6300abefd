package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// paragraphColumns is the fixed column order shared by every content scan.
const paragraphColumns = `id, document_id, paragraph_index, text, content_hash,
	heading, blocktype, embedding, embedding_model, synced, created_at, updated_at`

const insertParagraphSQL = `
	INSERT INTO content (
		id, document_id, paragraph_index, text, content_hash,
		heading, blocktype, embedding, embedding_model, synced,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`

// GetParagraph returns one content row by id. Returns (nil, nil) when no
// row exists.
func (s *Store) GetParagraph(ctx context.Context, id string) (*Paragraph, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paragraphColumns+` FROM content WHERE id = ?`, id)
	p, err := scanParagraph(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get paragraph", err)
	}
	return p, nil
}

// ListParagraphs returns every content row for a document in paragraph
// order. The reconcile matches incoming chunks against this set.
func (s *Store) ListParagraphs(ctx context.Context, documentID string) ([]Paragraph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paragraphColumns+` FROM content
		 WHERE document_id = ? ORDER BY paragraph_index`, documentID)
	if err != nil {
		return nil, classify("list paragraphs", err)
	}
	defer rows.Close()
	return collectParagraphs(rows)
}

// InsertParagraph writes one new content row, unsynced, and refreshes the
// document's paragraph count. The document row must already exist.
func (s *Store) InsertParagraph(ctx context.Context, p *Paragraph) error {
	if p == nil || p.ID == "" || p.DocumentID == "" {
		return errors.InputInvalid("paragraph id and document id are required", nil)
	}
	return s.withRetry(ctx, "insert paragraph", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := execInsertParagraph(ctx, tx, p); err != nil {
			return err
		}
		if err := recountDocument(ctx, tx, p.DocumentID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// UpdateParagraphText rewrites a paragraph's text and content hash, leaving
// the embedding column untouched. Re-segmentation passes rely on this: the
// markers change, the words do not, so the vector stays valid.
func (s *Store) UpdateParagraphText(ctx context.Context, id, newText, newHash string) error {
	return s.withRetry(ctx, "update paragraph text", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE content
			SET text = ?, content_hash = ?, synced = 0, updated_at = ?
			WHERE id = ?
		`, newText, newHash, toMillis(now()), id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// UpdateParagraphEmbedding swaps a paragraph's vector and model tag.
// Migration jobs call this once per row when the active embedder changes.
func (s *Store) UpdateParagraphEmbedding(ctx context.Context, id string, vector []float32, model string) error {
	return s.withRetry(ctx, "update paragraph embedding", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE content
			SET embedding = ?, embedding_model = ?, synced = 0, updated_at = ?
			WHERE id = ?
		`, EncodeVector(vector), model, toMillis(now()), id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// UpdateParagraphPlacement repositions a reused paragraph: index, heading
// and blocktype move, text and embedding stay.
func (s *Store) UpdateParagraphPlacement(ctx context.Context, u PlacementUpdate) error {
	return s.withRetry(ctx, "update paragraph placement", func() error {
		res, err := s.db.ExecContext(ctx, updatePlacementSQL,
			u.ParagraphIndex, u.Heading, u.BlockType, toMillis(now()), u.ID)
		if err != nil {
			return err
		}
		return requireRow(res, u.ID)
	})
}

const updatePlacementSQL = `
	UPDATE content
	SET paragraph_index = ?, heading = ?, blocktype = ?, synced = 0, updated_at = ?
	WHERE id = ?`

// DeleteParagraph removes one content row and refreshes the document's
// paragraph count.
func (s *Store) DeleteParagraph(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete paragraph", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var documentID string
		err = tx.QueryRowContext(ctx,
			`SELECT document_id FROM content WHERE id = ?`, id).Scan(&documentID)
		if err == sql.ErrNoRows {
			return errors.StoreFailed(fmt.Sprintf("paragraph not found: %s", id), nil)
		}
		if err != nil {
			return fmt.Errorf("locate paragraph: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete paragraph: %w", err)
		}
		if err := recountDocument(ctx, tx, documentID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ReplaceParagraphs transactionally rewrites a document's entire content
// set. Used only for full rewrites; incremental edits go through
// ApplyChangeSet so embeddings survive. The document row must already exist.
func (s *Store) ReplaceParagraphs(ctx context.Context, documentID string, paragraphs []Paragraph) error {
	if documentID == "" {
		return errors.InputInvalid("document id is required", nil)
	}
	return s.withRetry(ctx, "replace paragraphs", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM content WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("clear existing paragraphs: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, insertParagraphSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		ts := toMillis(now())
		for i := range paragraphs {
			if err := execInsertParagraphStmt(ctx, stmt, &paragraphs[i], ts); err != nil {
				return err
			}
		}

		if err := recountDocument(ctx, tx, documentID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetCachedEmbeddings returns vectors keyed by incoming paragraph index for
// probes whose content hash matches a stored row under the given model.
// Rows failing either check are silently absent, which is what makes a
// cache miss: the caller embeds whatever is not in the map.
func (s *Store) GetCachedEmbeddings(ctx context.Context, documentID string, probes []EmbeddingProbe, model string) (map[int][]float32, error) {
	result := make(map[int][]float32)
	if len(probes) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content_hash, embedding FROM content
		WHERE document_id = ? AND embedding_model = ? AND embedding IS NOT NULL
	`, documentID, model)
	if err != nil {
		return nil, classify("get cached embeddings", err)
	}
	defer rows.Close()

	byHash := make(map[string][]byte)
	for rows.Next() {
		var hash string
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, classify("scan cached embedding", err)
		}
		byHash[hash] = blob
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get cached embeddings", err)
	}

	for _, probe := range probes {
		blob, ok := byHash[probe.ContentHash]
		if !ok {
			continue
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, errors.StoreFailed(
				fmt.Sprintf("corrupt embedding for hash %s", probe.ContentHash), err)
		}
		result[probe.ParagraphIndex] = vec
	}
	return result, nil
}

// MarkUnsynced flags every paragraph of a document for the sync worker.
// updated_at is left alone: the rows' content did not change, and the sync
// worker reads rows-older-than-document as a metadata-only push.
func (s *Store) MarkUnsynced(ctx context.Context, documentID string) error {
	return s.withRetry(ctx, "mark unsynced", func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE content SET synced = 0 WHERE document_id = ?
		`, documentID)
		return err
	})
}

// MarkSynced clears the sync flag on the given rows after the search store
// acknowledged them.
func (s *Store) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, toMillis(now()))
	for _, id := range ids {
		args = append(args, id)
	}
	return s.withRetry(ctx, "mark synced", func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE content SET synced = 1, updated_at = ? WHERE id IN (`+placeholders+`)`,
			args...)
		return err
	})
}

// ListUnsynced returns up to limit pending rows ordered by document then
// paragraph index, so the sync worker sees whole documents grouped together.
func (s *Store) ListUnsynced(ctx context.Context, limit int) ([]Paragraph, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paragraphColumns+` FROM content
		 WHERE synced = 0 ORDER BY document_id, paragraph_index LIMIT ?`, limit)
	if err != nil {
		return nil, classify("list unsynced", err)
	}
	defer rows.Close()
	return collectParagraphs(rows)
}

// ListStaleEmbeddings returns content rows of live documents whose vector
// was produced by a different model than the one given. Migration jobs
// drain this set; soft-deleted documents are skipped because their rows are
// on the way out of the search store anyway.
func (s *Store) ListStaleEmbeddings(ctx context.Context, model string) ([]Paragraph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paragraphColumns+` FROM content
		 WHERE embedding_model != ?
		   AND document_id IN (SELECT id FROM documents WHERE deleted_at IS NULL)
		 ORDER BY document_id, paragraph_index`, model)
	if err != nil {
		return nil, classify("list stale embeddings", err)
	}
	defer rows.Close()
	return collectParagraphs(rows)
}

// ApplyChangeSet commits one reconcile outcome atomically: the document row
// is upserted, then content rows are flushed in DELETE, UPDATE, INSERT
// order, then paragraph_count is recounted. Updated and inserted rows come
// out unsynced; a change set with deletes marks the whole document unsynced.
// Any failure rolls the whole document back.
func (s *Store) ApplyChangeSet(ctx context.Context, doc *Document, cs *ChangeSet) error {
	if doc == nil || doc.ID == "" {
		return errors.InputInvalid("document id is required", nil)
	}
	if cs == nil {
		cs = &ChangeSet{}
	}
	return s.withRetry(ctx, "apply change set", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := s.upsertDocument(ctx, tx, doc); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}

		// Deletes flush first so an evicted row cannot collide with a
		// reused id.
		if len(cs.Deletes) > 0 {
			stmt, err := tx.PrepareContext(ctx, `DELETE FROM content WHERE id = ?`)
			if err != nil {
				return fmt.Errorf("prepare delete: %w", err)
			}
			defer stmt.Close()
			for _, id := range cs.Deletes {
				res, err := stmt.ExecContext(ctx, id)
				if err != nil {
					return fmt.Errorf("delete paragraph %s: %w", id, err)
				}
				if err := requireRow(res, id); err != nil {
					return err
				}
			}
			// A deleted row leaves nothing behind to carry synced=false, so
			// the document's surviving rows re-sync wholesale and the search
			// store evicts the dead ones.
			if _, err := tx.ExecContext(ctx,
				`UPDATE content SET synced = 0 WHERE document_id = ?`, doc.ID); err != nil {
				return fmt.Errorf("flag document unsynced: %w", err)
			}
		}

		if len(cs.Updates) > 0 {
			stmt, err := tx.PrepareContext(ctx, updatePlacementSQL)
			if err != nil {
				return fmt.Errorf("prepare update: %w", err)
			}
			defer stmt.Close()
			ts := toMillis(now())
			for _, u := range cs.Updates {
				res, err := stmt.ExecContext(ctx,
					u.ParagraphIndex, u.Heading, u.BlockType, ts, u.ID)
				if err != nil {
					return fmt.Errorf("update paragraph %s: %w", u.ID, err)
				}
				if err := requireRow(res, u.ID); err != nil {
					return err
				}
			}
		}

		if len(cs.Inserts) > 0 {
			stmt, err := tx.PrepareContext(ctx, insertParagraphSQL)
			if err != nil {
				return fmt.Errorf("prepare insert: %w", err)
			}
			defer stmt.Close()
			ts := toMillis(now())
			for i := range cs.Inserts {
				if err := execInsertParagraphStmt(ctx, stmt, &cs.Inserts[i], ts); err != nil {
					return err
				}
			}
		}

		if err := recountDocument(ctx, tx, doc.ID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// execInsertParagraph writes one row outside a prepared-statement loop.
func execInsertParagraph(ctx context.Context, tx *sql.Tx, p *Paragraph) error {
	blockType := p.BlockType
	if blockType == "" {
		blockType = "paragraph"
	}
	ts := toMillis(now())
	_, err := tx.ExecContext(ctx, insertParagraphSQL,
		p.ID, p.DocumentID, p.ParagraphIndex, p.Text, p.ContentHash,
		p.Heading, blockType, EncodeVector(p.Embedding), p.EmbeddingModel,
		ts, ts)
	if err != nil {
		return fmt.Errorf("insert paragraph %s: %w", p.ID, err)
	}
	return nil
}

// execInsertParagraphStmt writes one row through a shared prepared
// statement with a shared timestamp.
func execInsertParagraphStmt(ctx context.Context, stmt *sql.Stmt, p *Paragraph, ts int64) error {
	blockType := p.BlockType
	if blockType == "" {
		blockType = "paragraph"
	}
	_, err := stmt.ExecContext(ctx,
		p.ID, p.DocumentID, p.ParagraphIndex, p.Text, p.ContentHash,
		p.Heading, blockType, EncodeVector(p.Embedding), p.EmbeddingModel,
		ts, ts)
	if err != nil {
		return fmt.Errorf("insert paragraph %s: %w", p.ID, err)
	}
	return nil
}

// requireRow turns a zero-row write into an error: the reconcile computed
// this id from rows it just read, so a miss means the document was mutated
// outside its writer lock.
func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return errors.StoreFailed(fmt.Sprintf("paragraph not found: %s", id), nil)
	}
	return nil
}

// collectParagraphs drains a result set in paragraphColumns order.
func collectParagraphs(rows *sql.Rows) ([]Paragraph, error) {
	var out []Paragraph
	for rows.Next() {
		p, err := scanParagraph(rows)
		if err != nil {
			return nil, classify("scan paragraph", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("collect paragraphs", err)
	}
	return out, nil
}

// scanParagraph reads one content row in paragraphColumns order.
func scanParagraph(row rowScanner) (*Paragraph, error) {
	var p Paragraph
	var blob []byte
	var createdAt, updatedAt int64

	err := row.Scan(
		&p.ID, &p.DocumentID, &p.ParagraphIndex, &p.Text, &p.ContentHash,
		&p.Heading, &p.BlockType, &blob, &p.EmbeddingModel, &p.Synced,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", p.ID, err)
	}
	p.Embedding = vec
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}
