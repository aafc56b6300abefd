package catalog

import (
	"fmt"
	"strconv"
)

// schemaVersion is the current catalog schema. Opening a catalog written by
// a newer build fails rather than guessing at unknown columns.
const schemaVersion = 1

// initSchema creates the catalog tables. All timestamps are Unix
// milliseconds (INTEGER) so values are stable across platforms and drivers.
func (s *Store) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- One row per catalogued source text. Soft-deleted rows keep their
	-- content; deleted_at marks them for reaping.
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		religion TEXT NOT NULL DEFAULT '',
		collection TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		year INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		authority INTEGER NOT NULL DEFAULT 5,
		paragraph_count INTEGER NOT NULL DEFAULT 0,
		file_hash TEXT NOT NULL DEFAULT '',
		body_hash TEXT NOT NULL DEFAULT '',
		source_path TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);

	-- One row per paragraph. text carries sentence markers; embedding is a
	-- little-endian float32 blob, NULL until embedded.
	CREATE TABLE IF NOT EXISTS content (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		paragraph_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		heading TEXT NOT NULL DEFAULT '',
		blocktype TEXT NOT NULL DEFAULT 'paragraph',
		embedding BLOB,
		embedding_model TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_content_doc_index ON content(document_id, paragraph_index);
	CREATE INDEX IF NOT EXISTS idx_content_synced ON content(synced);
	CREATE INDEX IF NOT EXISTS idx_content_doc_hash ON content(document_id, content_hash);

	-- Durable job queue. Claimed by status flip; stale heartbeats are
	-- reclaimed; cancel_requested is the cooperative-cancel flag.
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 0,
		params TEXT NOT NULL DEFAULT '{}',
		document_id TEXT NOT NULL DEFAULT '',
		worker_id TEXT NOT NULL DEFAULT '',
		progress_done INTEGER NOT NULL DEFAULT 0,
		progress_total INTEGER NOT NULL DEFAULT 0,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		last_heartbeat INTEGER,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		finished_at INTEGER,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, priority DESC, created_at);

	-- Ingestion review queue. source holds a path, inline text, or URL
	-- depending on kind.
	CREATE TABLE IF NOT EXISTS intake (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'awaiting_review',
		analysis TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT '',
		document_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_intake_status ON intake(status, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create catalog schema: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(schemaVersion),
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	var stored string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&stored); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("malformed schema version %q: %w", stored, err)
	}
	if version > schemaVersion {
		return fmt.Errorf("catalog schema version %d is newer than supported version %d", version, schemaVersion)
	}

	return nil
}
