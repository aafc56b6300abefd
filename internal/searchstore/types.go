// Package searchstore adapts the catalog to a Meilisearch-compatible
// engine: document and paragraph indexes, filterable metadata, user-provided
// vectors, and task-based asynchronous writes. The catalog stays the truth;
// everything here can be rebuilt from it.
package searchstore

import (
	"context"
	"time"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/language"
)

const (
	// DefaultBatchBytes keeps one upload comfortably under the engine's
	// 100 MiB payload cap.
	DefaultBatchBytes = 5 * 1024 * 1024

	// DefaultAuthorityPosition slots authority:desc after proximity:
	// authority is a strong signal but must not override textual match
	// quality.
	DefaultAuthorityPosition = 4

	// DefaultTaskTimeout bounds waiting for one engine task.
	DefaultTaskTimeout = 120 * time.Second

	// DefaultPollInterval is the task status poll cadence.
	DefaultPollInterval = 250 * time.Millisecond

	// EmbedderName is the engine-side name of the user-provided embedder.
	EmbedderName = "default"
)

// Store is the engine-facing surface the sync worker uses.
// There is one production implementation; tests substitute fakes.
type Store interface {
	EnsureIndexes(ctx context.Context) error
	IndexDocument(ctx context.Context, doc DocumentRow, paragraphs []ParagraphRow) error
	DeleteDocument(ctx context.Context, id string) error
	UpdatePartial(ctx context.Context, indexUID string, rows ...PartialUpdate) error
	Close() error
}

// PartialUpdate patches the named fields on one row, leaving the rest of the
// row (vectors included) in place.
type PartialUpdate struct {
	ID     string
	Fields map[string]any
}

// Config carries the explicit adapter options.
type Config struct {
	// Host is the engine base URL, e.g. http://localhost:7700.
	Host string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// DocumentIndex and ParagraphIndex are the engine index names.
	DocumentIndex  string
	ParagraphIndex string

	// Dimensions is the vector size of the configured embedding model.
	Dimensions int

	// AuthorityPosition is the 1-based slot for authority:desc in the
	// ranking rules. Out-of-range values clamp to the default.
	AuthorityPosition int

	// BatchBytes caps the estimated serialized size of one upload batch.
	BatchBytes int

	// TaskTimeout bounds waiting for one task acknowledgement.
	TaskTimeout time.Duration

	// PollInterval is the task status poll cadence.
	PollInterval time.Duration
}

// DocumentRow is the engine projection of a catalog document.
type DocumentRow struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	Religion       string `json:"religion"`
	Collection     string `json:"collection"`
	Language       string `json:"language"`
	Year           int    `json:"year"`
	Description    string `json:"description"`
	Authority      int    `json:"authority"`
	ParagraphCount int    `json:"paragraph_count"`
	IsRTL          bool   `json:"is_rtl"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// ParagraphRow is the engine projection of a content row. Document metadata
// is denormalized onto it so paragraph hits filter and rank without joins;
// the vector rides under _vectors for the user-provided embedder.
type ParagraphRow struct {
	ID             string               `json:"id"`
	DocumentID     string               `json:"document_id"`
	ParagraphIndex int                  `json:"paragraph_index"`
	Text           string               `json:"text"`
	Heading        string               `json:"heading"`
	BlockType      string               `json:"blocktype"`
	Title          string               `json:"title"`
	Author         string               `json:"author"`
	Religion       string               `json:"religion"`
	Collection     string               `json:"collection"`
	Language       string               `json:"language"`
	Year           int                  `json:"year"`
	Authority      int                  `json:"authority"`
	IsRTL          bool                 `json:"is_rtl"`
	CreatedAt      int64                `json:"created_at"`
	Vectors        map[string][]float32 `json:"_vectors,omitempty"`
}

// NewDocumentRow projects a catalog document for upload.
func NewDocumentRow(doc *catalog.Document) DocumentRow {
	return DocumentRow{
		ID:             doc.ID,
		Title:          doc.Title,
		Author:         doc.Author,
		Religion:       doc.Religion,
		Collection:     doc.Collection,
		Language:       doc.Language,
		Year:           doc.Year,
		Description:    doc.Description,
		Authority:      doc.Authority,
		ParagraphCount: doc.ParagraphCount,
		IsRTL:          language.IsRTL(doc.Language),
		CreatedAt:      doc.CreatedAt.UnixMilli(),
		UpdatedAt:      doc.UpdatedAt.UnixMilli(),
	}
}

// NewParagraphRow projects a content row with its document's metadata.
func NewParagraphRow(doc *catalog.Document, p *catalog.Paragraph) ParagraphRow {
	row := ParagraphRow{
		ID:             p.ID,
		DocumentID:     p.DocumentID,
		ParagraphIndex: p.ParagraphIndex,
		Text:           p.Text,
		Heading:        p.Heading,
		BlockType:      p.BlockType,
		Title:          doc.Title,
		Author:         doc.Author,
		Religion:       doc.Religion,
		Collection:     doc.Collection,
		Language:       doc.Language,
		Year:           doc.Year,
		Authority:      doc.Authority,
		IsRTL:          language.IsRTL(doc.Language),
		CreatedAt:      p.CreatedAt.UnixMilli(),
	}
	if len(p.Embedding) > 0 {
		row.Vectors = map[string][]float32{EmbedderName: p.Embedding}
	}
	return row
}

// DocumentPartial is the metadata-only patch for a document row.
func DocumentPartial(doc *catalog.Document) PartialUpdate {
	return PartialUpdate{
		ID: doc.ID,
		Fields: map[string]any{
			"title":       doc.Title,
			"author":      doc.Author,
			"religion":    doc.Religion,
			"collection":  doc.Collection,
			"language":    doc.Language,
			"year":        doc.Year,
			"description": doc.Description,
			"authority":   doc.Authority,
			"is_rtl":      language.IsRTL(doc.Language),
			"updated_at":  doc.UpdatedAt.UnixMilli(),
		},
	}
}

// ParagraphPartial refreshes the document metadata denormalized onto one
// paragraph row. Text, placement and vectors stay untouched.
func ParagraphPartial(doc *catalog.Document, paragraphID string) PartialUpdate {
	return PartialUpdate{
		ID: paragraphID,
		Fields: map[string]any{
			"title":      doc.Title,
			"author":     doc.Author,
			"religion":   doc.Religion,
			"collection": doc.Collection,
			"language":   doc.Language,
			"year":       doc.Year,
			"authority":  doc.Authority,
			"is_rtl":     language.IsRTL(doc.Language),
		},
	}
}
