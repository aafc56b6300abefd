// Package ingest reconciles markdown sources into the catalog. Each run is
// an incremental reconcile: unchanged files exit early, frontmatter-only
// edits touch no content, and changed bodies reuse every paragraph whose
// words survived, so embeddings are only computed for genuinely new text.
package ingest

import "context"

// Status summarizes what one ingestion did.
type Status string

const (
	// StatusUnchanged means the file bytes matched the stored file hash.
	StatusUnchanged Status = "unchanged"

	// StatusMetadataOnly means only frontmatter changed; content rows were
	// flagged for re-sync but not rewritten.
	StatusMetadataOnly Status = "metadata_only"

	// StatusReingested means the body changed and content was reconciled.
	StatusReingested Status = "reingested"

	// StatusCreated means no document existed for the source path.
	StatusCreated Status = "created"
)

// ReuseMode controls content-hash paragraph matching.
type ReuseMode string

const (
	// ReuseByHash matches new chunks against stored rows by content hash,
	// carrying embeddings across edits. The default.
	ReuseByHash ReuseMode = "hash"

	// ReuseNone rewrites every paragraph and re-embeds the document.
	ReuseNone ReuseMode = "none"
)

// Options are the caller-supplied overrides for one ingestion.
type Options struct {
	// LanguageOverride forces the document language, skipping script
	// detection and the frontmatter tag.
	LanguageOverride string

	// AuthorityOverride forces the authority score (1..10). Zero means
	// score from the authority rules.
	AuthorityOverride int

	// SkipSegmentation stores paragraphs without sentence markers.
	SkipSegmentation bool

	// ReuseMode defaults to ReuseByHash when empty.
	ReuseMode ReuseMode
}

// Result reports one ingestion back to the caller.
type Result struct {
	DocumentID     string `json:"document_id"`
	Status         Status `json:"status"`
	ParagraphCount int    `json:"paragraph_count"`
	Reused         int    `json:"reused"`
	New            int    `json:"new"`
	Deleted        int    `json:"deleted"`
}

// Segmenter wraps paragraph text in sentence markers. Satisfied by
// segment.Segmenter; tests substitute fakes.
type Segmenter interface {
	Segment(ctx context.Context, text, lang string) (string, error)
}

// Scorer resolves an authority score from document metadata. Satisfied by
// authority.Scorer.
type Scorer interface {
	Score(author, religion, collection string) int
}
