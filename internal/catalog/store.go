// Package catalog implements the truth store: a SQLite database holding
// documents, their content rows, the ingestion review queue, and job rows.
// The catalog is the durable record; the search store is a projection that
// the sync worker reconciles from rows flagged synced=false.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// lockSuffix is appended to the database path to form the process lock file.
const lockSuffix = ".lock"

// busyMarkers identify SQLite lock contention in driver error text. modernc
// surfaces SQLITE_BUSY and SQLITE_LOCKED as plain errors, not sentinel values.
var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
}

// Store is the SQLite-backed catalog. A single Store owns the database for
// the life of the process; the flock beside the file keeps a second process
// from opening it for writing.
type Store struct {
	db    *sql.DB
	path  string
	lock  *flock.Flock
	retry errors.RetryConfig
}

// Open opens (or creates) the catalog database at path and acquires the
// process lock beside it. An empty path opens an in-memory catalog for
// testing, with no lock.
func Open(path string) (*Store, error) {
	var dsn string
	var lock *flock.Flock

	if path == "" {
		// In-memory catalog for testing
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.StoreFailed(fmt.Sprintf("cannot create catalog directory %s", dir), err)
		}

		lock = flock.New(path + lockSuffix)
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, errors.StoreFailed("cannot acquire catalog lock", err)
		}
		if !acquired {
			return nil, errors.StoreBusy(fmt.Sprintf("catalog at %s is locked by another process", path), nil).
				WithSuggestion("stop the other maktaba process or point paths.catalog_db elsewhere")
		}

		if err := validateIntegrity(path); err != nil {
			_ = lock.Unlock()
			return nil, errors.StoreFailed(fmt.Sprintf("catalog at %s failed integrity check", path), err).
				WithSuggestion("restore the catalog from backup; the search store can be rebuilt from it afterwards")
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, errors.StoreFailed("cannot open catalog database", err)
	}

	// Single writer to prevent lock contention; readers share the connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Set pragmas via statements (DSN params may be ignored by modernc.org/sqlite)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // WAL mode for concurrent readers
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for lock contention
		"PRAGMA synchronous = NORMAL", // Balance durability and performance
		"PRAGMA foreign_keys = ON",    // content.document_id references documents.id
		"PRAGMA cache_size = -65536",  // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",  // Keep temp tables in memory
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, errors.StoreFailed("cannot set catalog pragma", err)
		}
	}

	s := &Store{
		db:    db,
		path:  path,
		lock:  lock,
		retry: errors.StoreRetryConfig(),
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, errors.StoreFailed("cannot initialize catalog schema", err)
	}

	slog.Info("catalog_opened",
		slog.String("path", path))

	return s, nil
}

// validateIntegrity runs a quick corruption check before opening for real.
// A missing file is fine; it will be created.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

// Close closes the database and releases the process lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	if err != nil {
		return errors.StoreFailed("cannot close catalog", err)
	}
	return nil
}

// DB exposes the shared connection for stores layered on the same database,
// such as the job queue. The schema is already initialized.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, empty for in-memory catalogs.
func (s *Store) Path() string {
	return s.path
}

// classify maps a raw database error to a catalog error kind. Lock
// contention becomes store_busy (retryable); context expiry keeps its own
// kind; everything else is store_failed.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if kind := errors.KindOf(err); kind != "" {
		return err
	}
	msg := err.Error()
	for _, marker := range busyMarkers {
		if strings.Contains(msg, marker) {
			return errors.StoreBusy(op+": "+msg, err)
		}
	}
	return errors.StoreFailed(op+": "+msg, err)
}

// withRetry runs a write operation, classifying its error and retrying
// store_busy with backoff up to the store budget. The closure must be safe
// to re-run from scratch: each attempt opens its own transaction.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	return errors.Retry(ctx, s.retry, func() error {
		return classify(op, fn())
	})
}

// now returns the write timestamp. Stored as Unix milliseconds so rows are
// byte-stable across platforms and drivers.
func now() time.Time {
	return time.Now().UTC()
}

// toMillis converts a time to its stored integer form.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts a stored integer back to UTC time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullMillis converts an optional time for a nullable column.
func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// timePtr converts a nullable column back to an optional time.
func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
