package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/chunk"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/fingerprint"
	"github.com/maktaba-dev/maktaba/internal/segment"
)

// draft is one chunk on its way to becoming a content row.
type draft struct {
	index     int
	text      string // marked when segmentation succeeded
	canonical string // marker-free, whitespace-collapsed
	hash      string
	heading   string
	blocktype string
	id        string // assigned during matching
}

// plan is the reconcile outcome before vectors are attached.
type plan struct {
	deletes []string
	updates []catalog.PlacementUpdate
	inserts []draft
	reused  int
}

// reconcile runs the incremental ingest for one source. Nothing is written
// until the single ApplyChangeSet transaction at the end, so any failure
// before that leaves the catalog exactly as it was.
func (in *Ingestor) reconcile(ctx context.Context, sourcePath string, raw []byte, frontmatter map[string]string, body string, opts Options) (*Result, error) {
	fileHash := fingerprint.File(raw)

	existing, err := in.store.GetDocumentBySourcePath(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	// ReuseNone is a forced rewrite; the short-circuits would make it a
	// no-op on an unchanged file.
	force := opts.ReuseMode == ReuseNone

	if existing != nil && existing.FileHash == fileHash && !force {
		return &Result{
			DocumentID:     existing.ID,
			Status:         StatusUnchanged,
			ParagraphCount: existing.ParagraphCount,
		}, nil
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.InputInvalid("document body is empty", nil).
			WithDetail("source_path", sourcePath)
	}
	bodyHash := fingerprint.Body(body)

	docID := documentID(frontmatter, sourcePath)
	if existing != nil {
		docID = existing.ID
	}

	doc := in.buildDocument(docID, sourcePath, frontmatter, body, opts)
	doc.FileHash = fileHash
	doc.BodyHash = bodyHash

	// Same body, different file: only frontmatter changed. The document row
	// is rewritten and every paragraph re-syncs its denormalized metadata;
	// no content row is touched and nothing is embedded.
	if existing != nil && existing.BodyHash == bodyHash && !force {
		if err := in.store.UpsertDocument(ctx, doc); err != nil {
			return nil, err
		}
		if err := in.store.MarkUnsynced(ctx, docID); err != nil {
			return nil, err
		}
		slog.Info("ingest_complete",
			slog.String("document_id", docID),
			slog.String("status", string(StatusMetadataOnly)))
		return &Result{
			DocumentID:     docID,
			Status:         StatusMetadataOnly,
			ParagraphCount: existing.ParagraphCount,
		}, nil
	}

	chunks := in.chunker.Chunk(body)
	if len(chunks) == 0 {
		return nil, errors.InputInvalid("body produced no indexable paragraphs", nil).
			WithDetail("source_path", sourcePath).
			WithSuggestion("check the file for content below the minimum chunk size")
	}

	drafts, err := in.prepare(ctx, docID, doc.Language, chunks, opts)
	if err != nil {
		return nil, err
	}

	old, err := in.store.ListParagraphs(ctx, docID)
	if err != nil {
		return nil, err
	}

	// A revived document was evicted from the search store, so every kept
	// row must be rewritten and re-pushed, not just the moved ones.
	revival := existing == nil && len(old) > 0

	p := matchParagraphs(docID, drafts, old, opts.ReuseMode, revival)

	inserts, err := in.embedInserts(ctx, docID, p.inserts, !force)
	if err != nil {
		return nil, err
	}

	cs := &catalog.ChangeSet{
		Deletes: p.deletes,
		Updates: p.updates,
		Inserts: inserts,
	}
	if err := in.store.ApplyChangeSet(ctx, doc, cs); err != nil {
		return nil, err
	}

	// The document row changed but no content row carries the pending
	// flag, so the denormalized search fields would never refresh.
	if cs.Empty() {
		if err := in.store.MarkUnsynced(ctx, docID); err != nil {
			return nil, err
		}
	}

	status := StatusReingested
	if existing == nil {
		status = StatusCreated
	}
	slog.Info("ingest_complete",
		slog.String("document_id", docID),
		slog.String("status", string(status)),
		slog.Int("reused", p.reused),
		slog.Int("new", len(p.inserts)),
		slog.Int("deleted", len(p.deletes)))

	return &Result{
		DocumentID:     docID,
		Status:         status,
		ParagraphCount: len(drafts),
		Reused:         p.reused,
		New:            len(p.inserts),
		Deleted:        len(p.deletes),
	}, nil
}

// prepare turns chunks into drafts: sentence markers go in where configured,
// and each draft gets its canonical form and content hash. A paragraph whose
// marking fails is kept unmarked; only a dead parent context aborts.
func (in *Ingestor) prepare(ctx context.Context, docID, lang string, chunks []chunk.Chunk, opts Options) ([]draft, error) {
	drafts := make([]draft, 0, len(chunks))
	for _, ch := range chunks {
		text := ch.Text
		if in.segmenter != nil && !opts.SkipSegmentation && segmentable(ch.BlockType) {
			marked, err := in.segmenter.Segment(ctx, text, lang)
			switch {
			case err == nil:
				text = marked
			case ctx.Err() != nil:
				return nil, errors.Wrap(errors.KindCancelled, err)
			default:
				slog.Warn("paragraph stored without sentence markers",
					slog.String("document_id", docID),
					slog.Int("paragraph_index", ch.Index),
					slog.String("error", err.Error()))
			}
		}

		canonical := segment.Canonical(text)
		drafts = append(drafts, draft{
			index:     ch.Index,
			text:      text,
			canonical: canonical,
			hash:      fingerprint.Content(canonical, docID),
			heading:   ch.Heading,
			blocktype: string(ch.BlockType),
		})
	}
	return drafts, nil
}

// segmentable excludes block shapes where sentence markers carry no
// information.
func segmentable(bt chunk.BlockType) bool {
	switch bt {
	case chunk.BlockHeading, chunk.BlockNoise:
		return false
	}
	return true
}

// matchParagraphs pairs drafts with stored rows by content hash. A matched
// row keeps its id and embedding; when its placement moved, or rewriteAll
// is set, it becomes an UPDATE. Unmatched drafts become INSERTs with fresh
// ids, unmatched rows become DELETEs. Duplicate texts match one-to-one in
// index order.
func matchParagraphs(docID string, drafts []draft, old []catalog.Paragraph, mode ReuseMode, rewriteAll bool) plan {
	var p plan

	byHash := make(map[string][]*catalog.Paragraph)
	if mode != ReuseNone {
		for i := range old {
			byHash[old[i].ContentHash] = append(byHash[old[i].ContentHash], &old[i])
		}
	}

	matched := make(map[string]bool)
	for _, d := range drafts {
		queue := byHash[d.hash]
		if len(queue) == 0 {
			p.inserts = append(p.inserts, d)
			continue
		}
		row := queue[0]
		byHash[d.hash] = queue[1:]
		matched[row.ID] = true
		p.reused++

		moved := row.ParagraphIndex != d.index || row.Heading != d.heading || row.BlockType != d.blocktype
		if moved || rewriteAll {
			p.updates = append(p.updates, catalog.PlacementUpdate{
				ID:             row.ID,
				ParagraphIndex: d.index,
				Heading:        d.heading,
				BlockType:      d.blocktype,
			})
		}
	}

	for i := range old {
		if !matched[old[i].ID] {
			p.deletes = append(p.deletes, old[i].ID)
		}
	}

	// Ids derive from the canonical text; a repeated paragraph takes the
	// first free ordinal so it cannot collide with a kept row.
	for i := range p.inserts {
		base := fingerprint.ParagraphID(docID, p.inserts[i].canonical)
		id := base
		for n := 2; matched[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		matched[id] = true
		p.inserts[i].id = id
	}
	return p
}

// embedInserts attaches vectors to the insert drafts: stored embeddings are
// reused by content hash, the rest go to the provider in one batch. A
// provider failure aborts before anything was written. useCache false skips
// the lookup so a forced rewrite really re-embeds.
func (in *Ingestor) embedInserts(ctx context.Context, docID string, inserts []draft, useCache bool) ([]catalog.Paragraph, error) {
	if len(inserts) == 0 {
		return nil, nil
	}

	model := in.embedder.ModelName()
	cached := map[int][]float32{}
	if useCache {
		probes := make([]catalog.EmbeddingProbe, len(inserts))
		for i, d := range inserts {
			probes[i] = catalog.EmbeddingProbe{ParagraphIndex: d.index, ContentHash: d.hash}
		}
		var err error
		cached, err = in.store.GetCachedEmbeddings(ctx, docID, probes, model)
		if err != nil {
			return nil, err
		}
	}

	vectors := make([][]float32, len(inserts))
	var missTexts []string
	var missAt []int
	for i, d := range inserts {
		if v, ok := cached[d.index]; ok {
			vectors[i] = v
			continue
		}
		missTexts = append(missTexts, d.canonical)
		missAt = append(missAt, i)
	}

	if len(missTexts) > 0 {
		embedded, err := in.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(embedded) != len(missTexts) {
			return nil, errors.ProviderPermanent(
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(embedded), len(missTexts)), nil)
		}
		for k, i := range missAt {
			vectors[i] = embedded[k]
		}
	}

	rows := make([]catalog.Paragraph, len(inserts))
	for i, d := range inserts {
		rows[i] = catalog.Paragraph{
			ID:             d.id,
			DocumentID:     docID,
			ParagraphIndex: d.index,
			Text:           d.text,
			ContentHash:    d.hash,
			Heading:        d.heading,
			BlockType:      d.blocktype,
			Embedding:      vectors[i],
		}
		if len(vectors[i]) > 0 {
			rows[i].EmbeddingModel = model
		}
	}
	return rows, nil
}
