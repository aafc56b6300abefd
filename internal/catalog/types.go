package catalog

import "time"

// Document is one catalogued source text. The catalog row is the durable
// record; the search store holds a projection of it.
type Document struct {
	ID             string
	Title          string
	Author         string
	Religion       string
	Collection     string
	Language       string
	Year           int
	Description    string
	Authority      int
	ParagraphCount int
	FileHash       string
	BodyHash       string
	SourcePath     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}

// Paragraph is one content row. Text carries sentence markers when
// segmentation succeeded; ContentHash is computed over the marker-stripped
// text plus its heading context, so it survives re-segmentation.
type Paragraph struct {
	ID             string
	DocumentID     string
	ParagraphIndex int
	Text           string
	ContentHash    string
	Heading        string
	BlockType      string
	Embedding      []float32
	EmbeddingModel string
	Synced         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PlacementUpdate repositions a reused paragraph. Text, content hash and
// embedding stay untouched; only index and derived fields move.
type PlacementUpdate struct {
	ID             string
	ParagraphIndex int
	Heading        string
	BlockType      string
}

// ChangeSet is the outcome of one document reconcile. ApplyChangeSet flushes
// it in DELETE, UPDATE, INSERT order inside a single transaction so an
// evicted paragraph can never collide with a reused id.
type ChangeSet struct {
	Deletes []string
	Updates []PlacementUpdate
	Inserts []Paragraph
}

// Empty reports whether the change set would write nothing.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Deletes) == 0 && len(cs.Updates) == 0 && len(cs.Inserts) == 0
}

// EmbeddingProbe identifies one incoming chunk during the cached-embedding
// lookup. The stored row must match both the content hash and the configured
// embedding model to count as a hit.
type EmbeddingProbe struct {
	ParagraphIndex int
	ContentHash    string
}

// IntakeKind classifies where an ingestion-queue entry came from.
type IntakeKind string

const (
	IntakeKindFile       IntakeKind = "file"
	IntakeKindInlineText IntakeKind = "inline-text"
	IntakeKindURL        IntakeKind = "url"
)

// IntakeStatus is the review lifecycle of an ingestion-queue entry.
type IntakeStatus string

const (
	IntakeAwaitingReview IntakeStatus = "awaiting_review"
	IntakeApproved       IntakeStatus = "approved"
	IntakeProcessing     IntakeStatus = "processing"
	IntakeCompleted      IntakeStatus = "completed"
	IntakeFailed         IntakeStatus = "failed"
	IntakeRejected       IntakeStatus = "rejected"
)

// IntakeRecommendation is the automated verdict attached by intake analysis.
type IntakeRecommendation string

const (
	RecommendApprove IntakeRecommendation = "approve"
	RecommendReview  IntakeRecommendation = "review"
	RecommendReject  IntakeRecommendation = "reject"
)

// IntakeEntry is one row of the ingestion review queue. Source holds the
// path, the inline text, or the URL depending on Kind.
type IntakeEntry struct {
	ID             string
	Kind           IntakeKind
	Source         string
	Status         IntakeStatus
	Analysis       string
	Recommendation IntakeRecommendation
	DocumentID     string
	CreatedBy      string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
