package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

const (
	DefaultPoll         = 5 * time.Second
	DefaultHeartbeat    = 10 * time.Second
	DefaultReclaimAfter = 2 * time.Minute
)

// Handler runs one claimed job. The context is cancelled when an operator
// requests cancellation, the row is lost to reclaim, or the worker shuts
// down; handlers poll it between paragraphs and return ctx.Err() to stop
// cleanly mid-sweep.
type Handler func(ctx context.Context, job *Job) error

// Config tunes one worker. Zero values take the defaults above; an empty
// WorkerID gets a generated one.
type Config struct {
	WorkerID     string
	Poll         time.Duration
	Heartbeat    time.Duration
	ReclaimAfter time.Duration
}

// Worker polls the queue, claims one job at a time and dispatches it to the
// handler registered for its type. While a job runs, a watcher goroutine
// heartbeats the row and mirrors the cancel flag into the job's context.
type Worker struct {
	queue        *Queue
	id           string
	handlers     map[string]Handler
	poll         time.Duration
	heartbeat    time.Duration
	reclaimAfter time.Duration

	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewWorker builds a worker around the queue. Handlers are registered
// separately before Start.
func NewWorker(q *Queue, cfg Config) (*Worker, error) {
	if q == nil {
		return nil, errors.InputInvalid("worker requires a job queue", nil)
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.ReclaimAfter <= 0 {
		cfg.ReclaimAfter = DefaultReclaimAfter
	}
	return &Worker{
		queue:        q,
		id:           cfg.WorkerID,
		handlers:     make(map[string]Handler),
		poll:         cfg.Poll,
		heartbeat:    cfg.Heartbeat,
		reclaimAfter: cfg.ReclaimAfter,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Register binds a handler to a job type. Call before Start; the map is not
// locked afterwards.
func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Start launches the poll loop. Stop (or cancelling ctx) winds it down.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	go w.loop(ctx)
}

// Stop cancels the running job's context and waits for the loop to exit.
// Safe to call more than once or before Start. A job interrupted this way
// stays processing and is reclaimed once its heartbeat goes stale.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.cancel != nil {
			w.cancel()
		}
	})
	if w.started {
		<-w.doneCh
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if n, err := w.queue.ReclaimStale(ctx, w.reclaimAfter); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("stale job reclaim failed", slog.String("error", err.Error()))
		} else if n > 0 {
			slog.Info("stale jobs reclaimed", slog.Int("count", n))
		}

		job, err := w.queue.Claim(ctx, w.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("job claim failed", slog.String("error", err.Error()))
			if !w.sleep(ctx) {
				return
			}
			continue
		}
		if job == nil {
			if !w.sleep(ctx) {
				return
			}
			continue
		}
		w.run(ctx, job)
	}
}

// sleep waits one poll interval, returning false when the worker should
// exit instead of polling again.
func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) run(ctx context.Context, job *Job) {
	if job.CancelRequested {
		// Raised while the job was still pending.
		w.complete(ctx, job, StatusCancelled, "")
		return
	}
	h, ok := w.handlers[job.Type]
	if !ok {
		w.complete(ctx, job, StatusFailed, "no handler registered for job type "+job.Type)
		return
	}

	slog.Info("job started",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
		slog.String("document_id", job.DocumentID))

	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelled, lost atomic.Bool
	watcherDone := make(chan struct{})
	go w.watch(jctx, job.ID, cancel, &cancelled, &lost, watcherDone)

	start := time.Now()
	err := h(jctx, job)
	cancel()
	<-watcherDone

	switch {
	case cancelled.Load():
		w.complete(ctx, job, StatusCancelled, "")
		slog.Info("job cancelled", slog.String("job_id", job.ID))
	case lost.Load():
		slog.Warn("job lost to reclaim", slog.String("job_id", job.ID))
	case err == nil:
		w.complete(ctx, job, StatusSucceeded, "")
		slog.Info("job succeeded",
			slog.String("job_id", job.ID),
			slog.Duration("elapsed", time.Since(start)))
	case ctx.Err() != nil:
		// Shutdown mid-run. The row stays processing; its heartbeat goes
		// stale and the next claimer resumes it.
		slog.Info("job interrupted by shutdown", slog.String("job_id", job.ID))
	default:
		w.complete(ctx, job, StatusFailed, err.Error())
		slog.Warn("job failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

// watch heartbeats the claimed row and mirrors its cancel flag into the run
// context. A heartbeat rejection means the row was reclaimed, so the run no
// longer owns it.
func (w *Worker) watch(ctx context.Context, jobID string, cancel context.CancelFunc, cancelled, lost *atomic.Bool, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := w.queue.Heartbeat(ctx, jobID); err != nil {
			if ctx.Err() != nil {
				return
			}
			lost.Store(true)
			cancel()
			return
		}
		flagged, err := w.queue.CancelRequested(ctx, jobID)
		if err == nil && flagged {
			cancelled.Store(true)
			cancel()
			return
		}
	}
}

// complete writes the terminal status on a context that survives shutdown,
// so a job finishing during Stop still records its outcome.
func (w *Worker) complete(ctx context.Context, job *Job, status Status, msg string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.queue.Complete(cctx, job.ID, status, msg); err != nil {
		slog.Warn("job completion write failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}
