// Package errors provides structured error handling for maktaba.
//
// Every failure that crosses a component boundary carries a machine-readable
// Kind plus a free-text message. Kinds, not concrete types, drive retry and
// propagation decisions:
//   - input_invalid, provider_permanent, store_failed, search_failed,
//     validation_failed: surface, do not retry
//   - provider_transient, store_busy, deadline_exceeded: retry with
//     exponential backoff while attempts remain
//   - cancelled: terminal, not an operator-facing error
package errors

// Kind classifies a failure for retry and propagation decisions.
type Kind string

const (
	// KindInputInvalid indicates malformed frontmatter, an empty body, or an
	// unreadable source file.
	KindInputInvalid Kind = "input_invalid"
	// KindProviderTransient indicates an embedding or LLM 5xx/timeout.
	KindProviderTransient Kind = "provider_transient"
	// KindProviderPermanent indicates an embedding or LLM 4xx (bad request, auth).
	KindProviderPermanent Kind = "provider_permanent"
	// KindStoreBusy indicates catalog lock contention.
	KindStoreBusy Kind = "store_busy"
	// KindStoreFailed indicates a catalog failure; the per-document
	// transaction has been aborted so no partial state exists.
	KindStoreFailed Kind = "store_failed"
	// KindSearchFailed indicates a search-store write failure; affected rows
	// stay unsynced and the sync worker retries them.
	KindSearchFailed Kind = "search_failed"
	// KindValidationFailed indicates a sentence-marker round-trip mismatch;
	// paragraph-local, ingestion continues.
	KindValidationFailed Kind = "validation_failed"
	// KindDeadlineExceeded indicates a call exceeded its deadline.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindCancelled indicates cooperative cancellation of a job.
	KindCancelled Kind = "cancelled"
)

// String returns the wire form of the kind.
func (k Kind) String() string {
	return string(k)
}

// kindRetryable reports whether a kind is retryable by default.
func kindRetryable(k Kind) bool {
	switch k {
	case KindProviderTransient, KindStoreBusy, KindDeadlineExceeded:
		return true
	default:
		return false
	}
}
