package ingest

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/config"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/fingerprint"
	"github.com/maktaba-dev/maktaba/internal/gitignore"
)

// fakeEmbedder returns deterministic vectors and records every batch.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	fail    error
}

func vecFor(text string) []float32 {
	var sum float32
	for _, b := range []byte(text) {
		sum += float32(b)
	}
	return []float32{sum, float32(len(text)), 1, 0}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vecFor(text)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 4 }
func (f *fakeEmbedder) ModelName() string { return "fake-embed-001" }
func (f *fakeEmbedder) Close() error      { return nil }

// embedded flattens every batch into one ordered list of texts.
func (f *fakeEmbedder) embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []string
	for _, batch := range f.batches {
		all = append(all, batch...)
	}
	return all
}

// fakeSegmenter wraps whole paragraphs in a single sentence marker.
type fakeSegmenter struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (s *fakeSegmenter) Segment(ctx context.Context, text, lang string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return "", s.fail
	}
	return "⁅s1⁆" + text + "⁅/s1⁆", nil
}

func (s *fakeSegmenter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	in    *Ingestor
	store *catalog.Store
	emb   *fakeEmbedder
	seg   *fakeSegmenter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := catalog.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.NewConfig().Ingest
	cfg.MinChunk = 1 // test paragraphs are short

	emb := &fakeEmbedder{}
	seg := &fakeSegmenter{}
	in, err := New(Deps{Catalog: store, Embedder: emb, Segmenter: seg}, cfg)
	require.NoError(t, err)
	return &fixture{in: in, store: store, emb: emb, seg: seg}
}

func writeSource(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const twoParagraphs = "---\ntitle: X\nauthor: Y\n---\n\nPara one.\n\nPara two.\n"

// TS01: First Ingestion Creates Document And Paragraphs
func TestIngestFileFirstCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, "hidden-words", res.DocumentID)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, 2, res.ParagraphCount)
	assert.Equal(t, 0, res.Reused)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 0, res.Deleted)

	doc, err := f.store.GetDocument(ctx, "hidden-words")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "X", doc.Title)
	assert.Equal(t, "Y", doc.Author)
	assert.Equal(t, 2, doc.ParagraphCount)
	assert.Equal(t, path, doc.SourcePath)

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "⁅s1⁆Para one.⁅/s1⁆", rows[0].Text)
	assert.Equal(t, "⁅s1⁆Para two.⁅/s1⁆", rows[1].Text)
	assert.Equal(t, 0, rows[0].ParagraphIndex)
	assert.Equal(t, 1, rows[1].ParagraphIndex)
	assert.Equal(t, fingerprint.ParagraphID("hidden-words", "Para one."), rows[0].ID)
	assert.Equal(t, vecFor("Para one."), rows[0].Embedding)
	assert.Equal(t, "fake-embed-001", rows[0].EmbeddingModel)
	assert.False(t, rows[0].Synced)

	// Markers are stripped before embedding.
	assert.Equal(t, []string{"Para one.", "Para two."}, f.emb.embedded())
}

// TS02: Unchanged File Short-Circuits
func TestIngestFileUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, res.Status)
	assert.Equal(t, 2, res.ParagraphCount)
	assert.Len(t, f.emb.embedded(), 2, "no further embedding calls")
}

// TS03: Frontmatter-Only Edit Touches No Content
func TestIngestFileMetadataOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	before, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.NoError(t, f.store.MarkSynced(ctx, []string{before[0].ID, before[1].ID}))

	writeSource(t, path, "---\ntitle: X2\nauthor: Y\n---\n\nPara one.\n\nPara two.\n")
	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusMetadataOnly, res.Status)
	assert.Equal(t, 2, res.ParagraphCount)

	doc, err := f.store.GetDocument(ctx, "hidden-words")
	require.NoError(t, err)
	assert.Equal(t, "X2", doc.Title)

	after, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.Len(t, after, 2)
	for i := range after {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Text, after[i].Text)
		assert.False(t, after[i].Synced, "metadata change re-flags every row")
	}
	assert.Len(t, f.emb.embedded(), 2, "no further embedding calls")
}

// TS04: Insert In Middle Reuses Neighbors
func TestIngestFileInsertInMiddle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)
	before, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)

	writeSource(t, path, "---\ntitle: X\nauthor: Y\n---\n\nPara one.\n\nPara middle.\n\nPara two.\n")
	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusReingested, res.Status)
	assert.Equal(t, 3, res.ParagraphCount)
	assert.Equal(t, 2, res.Reused)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 0, res.Deleted)

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, before[0].ID, rows[0].ID)
	assert.Equal(t, "⁅s1⁆Para middle.⁅/s1⁆", rows[1].Text)
	assert.Equal(t, before[1].ID, rows[2].ID)
	assert.Equal(t, 2, rows[2].ParagraphIndex)
	assert.Equal(t, before[1].Embedding, rows[2].Embedding, "kept row keeps its vector")

	assert.Equal(t, []string{"Para one.", "Para two.", "Para middle."}, f.emb.embedded())
}

// TS05: Reorder Updates Placement Without Re-Embedding
func TestIngestFileReorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)
	before, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)

	writeSource(t, path, "---\ntitle: X\nauthor: Y\n---\n\nPara two.\n\nPara one.\n")
	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusReingested, res.Status)
	assert.Equal(t, 2, res.Reused)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 0, res.Deleted)

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, before[1].ID, rows[0].ID, "para two moved to the front")
	assert.Equal(t, before[0].ID, rows[1].ID)
	assert.Equal(t, before[0].Embedding, rows[1].Embedding)
	assert.Len(t, f.emb.embedded(), 2, "no further embedding calls")
}

// TS06: Arabic Script Beats The Frontmatter Language Tag
func TestIngestFileArabicDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "المكنونة.md")
	writeSource(t, path,
		"---\ntitle: الكلمات المكنونة\nlanguage: en\n---\n\n"+
			"يا ابن الروح خلقتك غنيا كيف تفتقر.\n\nيا ابن الإنسان كنت في قدم ذاتي.\n")

	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	doc, err := f.store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ar", doc.Language)
}

// TS07: Removed Paragraph Is Deleted
func TestIngestFileDeleteParagraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, "---\ntitle: X\n---\n\nPara one.\n\nPara middle.\n\nPara two.\n")

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	writeSource(t, path, "---\ntitle: X\n---\n\nPara one.\n\nPara two.\n")
	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Reused)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 1, res.Deleted)

	doc, err := f.store.GetDocument(ctx, "hidden-words")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ParagraphCount)

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

// TS08: Empty Body Is Rejected
func TestIngestFileEmptyBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blank.md")
	writeSource(t, path, "---\ntitle: X\n---\n\n   \n")

	_, err := f.in.IngestFile(ctx, path, Options{})

	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInputInvalid))

	doc, err := f.store.GetDocumentBySourcePath(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

// TS09: Provider Failure Writes Nothing
func TestIngestFileProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	f.emb.fail = stderrors.New("quota exhausted")
	_, err := f.in.IngestFile(ctx, path, Options{})

	require.Error(t, err)
	assert.ErrorContains(t, err, "quota exhausted")

	doc, err := f.store.GetDocumentBySourcePath(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, doc, "aborted ingestion leaves no document")

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TS10: Segmentation Failure Stores Plain Text
func TestIngestFileSegmenterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	f.seg.fail = stderrors.New("llm unavailable")
	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, 2, res.New)

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Para one.", rows[0].Text, "unmarked text is stored")
	assert.NotEmpty(t, rows[0].Embedding)
}

// TS11: SkipSegmentation Bypasses The Segmenter
func TestIngestFileSkipSegmentation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{SkipSegmentation: true})
	require.NoError(t, err)

	assert.Equal(t, 0, f.seg.callCount())

	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	assert.Equal(t, "Para one.", rows[0].Text)
}

// TS12: ReuseNone Forces A Full Re-Embed
func TestIngestFileReuseNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)
	before, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)

	res, err := f.in.IngestFile(ctx, path, Options{ReuseMode: ReuseNone})
	require.NoError(t, err)

	assert.Equal(t, StatusReingested, res.Status)
	assert.Equal(t, 0, res.Reused)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 2, res.Deleted)
	assert.Len(t, f.emb.embedded(), 4, "every paragraph re-embedded")

	after, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, before[0].ID, after[0].ID, "derived ids are stable")
	assert.Equal(t, before[1].ID, after[1].ID)
}

// TS13: Inline Text Uses The Source ID As Identity
func TestIngestText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.in.IngestText(ctx, "notes/daily-reflections", "Some body text for the note.", Options{})
	require.NoError(t, err)
	assert.Equal(t, "daily-reflections", res.DocumentID)
	assert.Equal(t, StatusCreated, res.Status)

	res, err = f.in.IngestText(ctx, "notes/daily-reflections", "Some body text for the note.", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, res.Status)

	_, err = f.in.IngestText(ctx, "  ", "body", Options{})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInputInvalid))
}

// TS14: Directory Walk Skips Excluded Paths And Non-Markdown
func TestIngestDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := t.TempDir()

	writeSource(t, filepath.Join(root, "a.md"), "Alpha paragraph content.")
	writeSource(t, filepath.Join(root, "b.md"), "Beta paragraph content.")
	writeSource(t, filepath.Join(root, "sub", "c.md"), "Gamma paragraph content.")
	writeSource(t, filepath.Join(root, "notes.txt"), "Not markdown.")
	writeSource(t, filepath.Join(root, "drafts", "d.md"), "Draft content.")
	writeSource(t, filepath.Join(root, ".git", "e.md"), "Repo internals.")

	results, err := f.in.IngestDir(ctx, root, Options{})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].DocumentID)
	assert.Equal(t, "b", results[1].DocumentID)
	assert.Equal(t, "c", results[2].DocumentID)
}

// TS15: Directory Walk Surfaces A Missing Root
func TestIngestDirMissingRoot(t *testing.T) {
	f := newFixture(t)

	_, err := f.in.IngestDir(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})

	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInputInvalid))
}

// TS16: Repeated Paragraphs Get Ordinal Ids
func TestIngestFileDuplicateParagraphs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "litany.md")
	writeSource(t, path, "Same words again.\n\nSame words again.")

	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)

	rows, err := f.store.ListParagraphs(ctx, "litany")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	base := fingerprint.ParagraphID("litany", "Same words again.")
	assert.Equal(t, base, rows[0].ID)
	assert.Equal(t, base+"-2", rows[1].ID)

	// Dropping one occurrence keeps the first id.
	writeSource(t, path, "Same words again.")
	res, err = f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reused)
	assert.Equal(t, 1, res.Deleted)

	rows, err = f.store.ListParagraphs(ctx, "litany")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, base, rows[0].ID)
}

// TS17: Re-Ingesting A Soft-Deleted Source Revives It
func TestIngestFileRevivesSoftDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hidden_words.md")
	writeSource(t, path, twoParagraphs)

	_, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)
	require.NoError(t, f.store.SoftDeleteDocument(ctx, "hidden-words"))

	res, err := f.in.IngestFile(ctx, path, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, 2, res.Reused, "surviving rows keep their embeddings")
	assert.Equal(t, 0, res.New)
	assert.Len(t, f.emb.embedded(), 2, "no further embedding calls")

	doc, err := f.store.GetDocument(ctx, "hidden-words")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Nil(t, doc.DeletedAt)

	// The search store dropped the document on deletion; every row must
	// go back out.
	rows, err := f.store.ListParagraphs(ctx, "hidden-words")
	require.NoError(t, err)
	for _, row := range rows {
		assert.False(t, row.Synced)
	}
}

// TS18: A Root-Level Ignore File Narrows The Directory Walk
func TestIngestDirIgnoreFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := t.TempDir()

	writeSource(t, filepath.Join(root, gitignore.IgnoreFile), "archive/\n*.draft.md\n!keep.draft.md\n")
	writeSource(t, filepath.Join(root, "a.md"), "Alpha paragraph content.")
	writeSource(t, filepath.Join(root, "b.draft.md"), "Unfinished content.")
	writeSource(t, filepath.Join(root, "keep.draft.md"), "Re-included content.")
	writeSource(t, filepath.Join(root, "archive", "old.md"), "Archived content.")

	results, err := f.in.IngestDir(ctx, root, Options{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].DocumentID)
	assert.Equal(t, "keep-draft", results[1].DocumentID)
}
