package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// jobColumns is the fixed column order shared by every job scan.
const jobColumns = `id, type, status, priority, params, document_id, worker_id,
	progress_done, progress_total, cancel_requested, last_heartbeat,
	created_at, started_at, finished_at, error`

// Queue reads and writes the jobs table. It shares the catalog's connection
// pool, so claims serialize against catalog writes on the same single
// connection and never see a half-committed row.
type Queue struct {
	db *sql.DB
}

// NewQueue wraps an already-migrated catalog database handle.
func NewQueue(db *sql.DB) (*Queue, error) {
	if db == nil {
		return nil, errors.InputInvalid("job queue requires a database handle", nil)
	}
	return &Queue{db: db}, nil
}

// Enqueue inserts a pending job and returns its id. Params must be a JSON
// object or empty; documentID may be empty for catalog-wide jobs.
func (q *Queue) Enqueue(ctx context.Context, jobType, params string, priority int, documentID string) (string, error) {
	if jobType == "" {
		return "", errors.InputInvalid("job type is required", nil)
	}
	if params == "" {
		params = "{}"
	}
	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, priority, params, document_id, created_at)
		VALUES (?, ?, 'pending', ?, ?, ?, ?)
	`, id, jobType, priority, params, documentID, toMillis(now()))
	if err != nil {
		return "", storeErr("enqueue job", err)
	}
	return id, nil
}

// Get returns one job by id. Returns (nil, nil) when no row exists.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get job", err)
	}
	return job, nil
}

// List returns jobs in one status, newest first.
func (q *Queue) List(ctx context.Context, status Status, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? ORDER BY created_at DESC, id LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, storeErr("list jobs", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeErr("scan job", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list jobs", err)
	}
	return out, nil
}

// Claim flips the best pending job to processing for the given worker and
// returns it. Returns (nil, nil) when the queue is empty. Best means highest
// priority, then oldest; the conditional update loses cleanly when another
// claimer got there first, and the loop just picks again.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Job, error) {
	if workerID == "" {
		return nil, errors.InputInvalid("worker id is required", nil)
	}
	for {
		var id string
		err := q.db.QueryRowContext(ctx, `
			SELECT id FROM jobs WHERE status = 'pending'
			ORDER BY priority DESC, created_at, id LIMIT 1
		`).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, storeErr("claim job", err)
		}

		ts := toMillis(now())
		res, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'processing', worker_id = ?,
				started_at = ?, last_heartbeat = ?
			WHERE id = ? AND status = 'pending'
		`, workerID, ts, ts, id)
		if err != nil {
			return nil, storeErr("claim job", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, storeErr("claim job", err)
		}
		if affected == 1 {
			return q.Get(ctx, id)
		}
	}
}

// Heartbeat refreshes a processing job's liveness stamp. Failing here means
// the job was reclaimed or finished elsewhere; the caller should stop
// working on it.
func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET last_heartbeat = ?
		WHERE id = ? AND status = 'processing'
	`, toMillis(now()), id)
	if err != nil {
		return storeErr("heartbeat job", err)
	}
	return requireJob(res, id, "is not processing")
}

// ReportProgress records how far a running job has come. Advisory only:
// progress is for operators watching the queue, not for correctness.
func (q *Queue) ReportProgress(ctx context.Context, id string, done, total int) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET progress_done = ?, progress_total = ?
		WHERE id = ?
	`, done, total, id)
	if err != nil {
		return storeErr("report progress", err)
	}
	return requireJob(res, id, "not found")
}

// Complete moves a processing job to a terminal status. The status guard in
// the update keeps a reclaimed job's original worker from overwriting the
// outcome written by its second claimer.
func (q *Queue) Complete(ctx context.Context, id string, status Status, errMsg string) error {
	if !status.Terminal() {
		return errors.InputInvalid(fmt.Sprintf("status %s is not terminal", status), nil)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = 'processing'
	`, string(status), errMsg, toMillis(now()), id)
	if err != nil {
		return storeErr("complete job", err)
	}
	return requireJob(res, id, "is not processing")
}

// RequestCancel raises the cooperative cancel flag on a live job. The worker
// polls the flag between paragraphs and winds down on its own schedule; a
// pending job keeps the flag and is cancelled right after claim.
func (q *Queue) RequestCancel(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = 1
		WHERE id = ? AND status IN ('pending', 'processing')
	`, id)
	if err != nil {
		return storeErr("request cancel", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("request cancel", err)
	}
	if affected == 0 {
		return errors.InputInvalid(fmt.Sprintf("job not cancellable: %s", id), nil)
	}
	return nil
}

// CancelRequested reads the cancel flag.
func (q *Queue) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := q.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, errors.StoreFailed(fmt.Sprintf("job not found: %s", id), nil)
	}
	if err != nil {
		return false, storeErr("read cancel flag", err)
	}
	return flag != 0, nil
}

// ReclaimStale returns processing jobs whose worker stopped heartbeating to
// the pending pool and reports how many moved. Progress and the cancel flag
// survive the reclaim, so a half-done job resumes where its rows left off.
func (q *Queue) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := toMillis(now().Add(-olderThan))
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', worker_id = '',
			started_at = NULL, last_heartbeat = NULL
		WHERE status = 'processing'
		  AND (last_heartbeat IS NULL OR last_heartbeat < ?)
	`, cutoff)
	if err != nil {
		return 0, storeErr("reclaim stale jobs", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("reclaim stale jobs", err)
	}
	return int(affected), nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		status    string
		cancel    int
		heartbeat sql.NullInt64
		created   int64
		started   sql.NullInt64
		finished  sql.NullInt64
	)
	err := row.Scan(&job.ID, &job.Type, &status, &job.Priority, &job.Params,
		&job.DocumentID, &job.WorkerID, &job.ProgressDone, &job.ProgressTotal,
		&cancel, &heartbeat, &created, &started, &finished, &job.Error)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.CancelRequested = cancel != 0
	job.LastHeartbeat = optMillis(heartbeat)
	job.CreatedAt = fromMillis(created)
	job.StartedAt = optMillis(started)
	job.FinishedAt = optMillis(finished)
	return &job, nil
}

// requireJob turns a zero-row update into an error naming the guard that
// rejected it.
func requireJob(res sql.Result, id, why string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if affected == 0 {
		return errors.StoreFailed(fmt.Sprintf("job %s %s", id, why), nil)
	}
	return nil
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.KindOf(err) != "" {
		return err
	}
	return errors.StoreFailed(op+": "+err.Error(), err)
}

func now() time.Time {
	return time.Now().UTC()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func optMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
