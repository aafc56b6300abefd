// Package jobs is the durable background queue layered on the catalog
// database. Long mutations (re-segmentation sweeps, embedding migrations,
// translations) are enqueued as rows, claimed by a polling worker, and
// survive process restarts: a job whose worker dies stops heartbeating and
// is reclaimed for the next claimer.
package jobs

import "time"

// Job types the queue accepts. Translation rows are stored and claimed like
// any other but no built-in handler ships for them; a provider integration
// registers one at startup.
const (
	TypeTranslation        = "translation"
	TypeResegmentation     = "re-segmentation"
	TypeEmbeddingMigration = "embedding-migration"
)

// TargetMissing prefixes the recorded error when a job's document was
// deleted between enqueue and execution.
const TargetMissing = "target_missing"

// Status is a job's lifecycle state. Pending rows are claimable; the three
// terminal states never change again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one queue row. Params is an opaque JSON object interpreted by the
// handler for the job's type; DocumentID scopes document-bound work and is
// empty for catalog-wide sweeps.
type Job struct {
	ID              string
	Type            string
	Status          Status
	Priority        int
	Params          string
	DocumentID      string
	WorkerID        string
	ProgressDone    int
	ProgressTotal   int
	CancelRequested bool
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	Error           string
}
