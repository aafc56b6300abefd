package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// TS01: First Write Creates
func TestDocuments_Upsert_CreatesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// When: upserting a new document
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))

	// Then: the row exists with timestamps filled
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Baha'u'llah", doc.Author)
	assert.False(t, doc.CreatedAt.IsZero())
	assert.False(t, doc.UpdatedAt.IsZero())
	assert.Nil(t, doc.DeletedAt)
	assert.False(t, doc.Deleted())
}

// TS02: Upsert Merges, created_at Is Stable
func TestDocuments_Upsert_PreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))
	first, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)

	// When: upserting again with changed metadata
	time.Sleep(10 * time.Millisecond)
	updated := testDocument("doc-1")
	updated.Title = "The Hidden Words (rev. ed.)"
	require.NoError(t, s.UpsertDocument(ctx, updated))

	// Then: created_at is untouched, updated_at moved, metadata merged
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, doc.CreatedAt)
	assert.True(t, doc.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, "The Hidden Words (rev. ed.)", doc.Title)
}

// TS03: Upsert Never Touches paragraph_count
func TestDocuments_Upsert_PreservesParagraphCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))
	require.NoError(t, s.InsertParagraph(ctx, testParagraph("doc-1", "doc-1-aaa", 0)))

	// When: a metadata upsert carries a stale zero count
	stale := testDocument("doc-1")
	stale.ParagraphCount = 0
	require.NoError(t, s.UpsertDocument(ctx, stale))

	// Then: the count maintained by the content ops survives
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ParagraphCount)
}

// TS04: Zero Values Get Neutral Defaults
func TestDocuments_Upsert_DefaultsLanguageAndAuthority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{ID: "doc-1"}
	require.NoError(t, s.UpsertDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, 5, got.Authority)
}

// TS05: Missing Document
func TestDocuments_Get_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.GetDocument(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

// TS06: Lookup By Source Path
func TestDocuments_GetBySourcePath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))

	doc, err := s.GetDocumentBySourcePath(ctx, "/library/doc-1.md")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-1", doc.ID)

	missing, err := s.GetDocumentBySourcePath(ctx, "/library/other.md")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TS07: Soft Delete Hides The Path, Keeps The Row
func TestDocuments_SoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))
	require.NoError(t, s.InsertParagraph(ctx, testParagraph("doc-1", "doc-1-aaa", 0)))
	require.NoError(t, s.MarkSynced(ctx, []string{"doc-1-aaa"}))

	// When: soft-deleting
	require.NoError(t, s.SoftDeleteDocument(ctx, "doc-1"))

	// Then: the id still resolves, the path does not
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, doc.Deleted())

	byPath, err := s.GetDocumentBySourcePath(ctx, "/library/doc-1.md")
	require.NoError(t, err)
	assert.Nil(t, byPath)

	// And: paragraphs are flagged for the sync worker to remove
	pending, err := s.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "doc-1-aaa", pending[0].ID)
}

// TS08: Soft Delete Is Idempotent
func TestDocuments_SoftDelete_KeepsOriginalDeletionTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))

	require.NoError(t, s.SoftDeleteDocument(ctx, "doc-1"))
	first, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, first.DeletedAt)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.SoftDeleteDocument(ctx, "doc-1"))

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc.DeletedAt)
	assert.Equal(t, *first.DeletedAt, *doc.DeletedAt)
}

// TS09: Soft Delete Requires The Row
func TestDocuments_SoftDelete_MissingFails(t *testing.T) {
	s := newTestStore(t)
	err := s.SoftDeleteDocument(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindStoreFailed))
}

// TS10: Upsert Revives A Soft-Deleted Document
func TestDocuments_Upsert_RevivesSoftDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))
	require.NoError(t, s.SoftDeleteDocument(ctx, "doc-1"))

	// When: the file comes back and is re-ingested
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))

	// Then: the document is live again
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.Deleted())

	byPath, err := s.GetDocumentBySourcePath(ctx, "/library/doc-1.md")
	require.NoError(t, err)
	require.NotNil(t, byPath)
}

// TS11: Listing Skips Soft-Deleted Rows
func TestDocuments_List_ExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-1")))
	require.NoError(t, s.UpsertDocument(ctx, testDocument("doc-2")))
	require.NoError(t, s.SoftDeleteDocument(ctx, "doc-1"))

	docs, err := s.ListDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-2", docs[0].ID)
}

// TS12: Validation
func TestDocuments_Upsert_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertDocument(context.Background(), &Document{})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInputInvalid))
}

// TS13: Keyset Paging Walks Every Live Row Once
func TestDocuments_ListAfter_Pages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"doc-a", "doc-b", "doc-c", "doc-d", "doc-e"} {
		require.NoError(t, s.UpsertDocument(ctx, testDocument(id)))
	}
	require.NoError(t, s.SoftDeleteDocument(ctx, "doc-c"))

	var seen []string
	after := ""
	for {
		page, err := s.ListDocumentsAfter(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, doc := range page {
			seen = append(seen, doc.ID)
		}
		after = page[len(page)-1].ID
	}
	assert.Equal(t, []string{"doc-a", "doc-b", "doc-d", "doc-e"}, seen)
}
