package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/language"
	"github.com/maktaba-dev/maktaba/internal/markdown"
)

// shortBodyChars is the length below which a document is flagged for human
// review rather than auto-approval.
const shortBodyChars = 200

// Analysis is the automated verdict on an intake entry. It is stored as JSON
// on the entry; the recommendation lives in its own column.
type Analysis struct {
	TitlePresent   bool   `json:"title_present"`
	AuthorPresent  bool   `json:"author_present"`
	BodyChars      int    `json:"body_chars"`
	ParagraphCount int    `json:"paragraph_count"`
	Language       string `json:"language"`
	Reason         string `json:"reason"`

	Recommendation catalog.IntakeRecommendation `json:"-"`
}

// Enqueue adds a source to the review queue and returns the new entry id.
func (in *Ingestor) Enqueue(ctx context.Context, kind catalog.IntakeKind, source, createdBy string) (string, error) {
	entry := &catalog.IntakeEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    source,
		CreatedBy: createdBy,
	}
	if err := in.store.EnqueueIntake(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// AnalyzeIntake inspects a queued entry and records a recommendation for the
// reviewer. An unreadable or empty source is a reject verdict, not an error;
// the call fails only when the entry is missing or the catalog write fails.
func (in *Ingestor) AnalyzeIntake(ctx context.Context, id string) (*Analysis, error) {
	entry, err := in.store.GetIntake(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.InputInvalid(fmt.Sprintf("intake entry not found: %s", id), nil)
	}

	a := in.analyze(entry)
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, errors.InputInvalid("encode intake analysis", err)
	}
	if err := in.store.SetIntakeAnalysis(ctx, id, string(payload), a.Recommendation); err != nil {
		return nil, err
	}
	return a, nil
}

func (in *Ingestor) analyze(entry *catalog.IntakeEntry) *Analysis {
	var content string
	switch entry.Kind {
	case catalog.IntakeKindFile:
		raw, err := os.ReadFile(entry.Source)
		if err != nil {
			return &Analysis{
				Reason:         fmt.Sprintf("source not readable: %v", err),
				Recommendation: catalog.RecommendReject,
			}
		}
		content = string(raw)
	case catalog.IntakeKindInlineText:
		content = entry.Source
	default:
		// Remote sources are not fetched here; a human decides.
		return &Analysis{
			Reason:         "remote source not fetched, review manually",
			Recommendation: catalog.RecommendReview,
		}
	}

	frontmatter, body := markdown.Split(content)
	body = strings.TrimSpace(body)

	detected, _ := language.Detect(body)
	a := &Analysis{
		TitlePresent:  strings.TrimSpace(frontmatter["title"]) != "",
		AuthorPresent: strings.TrimSpace(frontmatter["author"]) != "",
		BodyChars:     utf8.RuneCountInString(body),
		Language:      language.Resolve(frontmatter["language"], detected),
	}
	if body == "" {
		a.Reason = "document body is empty"
		a.Recommendation = catalog.RecommendReject
		return a
	}
	a.ParagraphCount = len(in.chunker.Chunk(body))

	var gaps []string
	if !a.TitlePresent {
		gaps = append(gaps, "no title")
	}
	if !a.AuthorPresent {
		gaps = append(gaps, "no author")
	}
	if a.BodyChars < shortBodyChars {
		gaps = append(gaps, fmt.Sprintf("short body (%d chars)", a.BodyChars))
	}
	if len(gaps) > 0 {
		a.Reason = strings.Join(gaps, ", ")
		a.Recommendation = catalog.RecommendReview
		return a
	}
	a.Reason = "frontmatter complete, body substantial"
	a.Recommendation = catalog.RecommendApprove
	return a
}

// ProcessIntake runs an approved entry through ingestion. The entry moves to
// processing for the duration and lands on completed or failed; the produced
// document id is recorded on success.
func (in *Ingestor) ProcessIntake(ctx context.Context, id string, opts Options) (*Result, error) {
	entry, err := in.store.GetIntake(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.InputInvalid(fmt.Sprintf("intake entry not found: %s", id), nil)
	}
	if entry.Status != catalog.IntakeApproved {
		return nil, errors.InputInvalid(
			fmt.Sprintf("intake entry %s is %s, only approved entries can be processed", id, entry.Status), nil)
	}

	if err := in.store.UpdateIntakeStatus(ctx, id, catalog.IntakeProcessing, ""); err != nil {
		return nil, err
	}

	var res *Result
	switch entry.Kind {
	case catalog.IntakeKindFile:
		res, err = in.IngestFile(ctx, entry.Source, opts)
	case catalog.IntakeKindInlineText:
		res, err = in.IngestText(ctx, entry.ID, entry.Source, opts)
	default:
		err = errors.InputInvalid(
			fmt.Sprintf("intake kind %s has no ingestion path, download the source and requeue as a file", entry.Kind), nil)
	}
	if err != nil {
		if serr := in.store.UpdateIntakeStatus(ctx, id, catalog.IntakeFailed, err.Error()); serr != nil {
			return nil, serr
		}
		return nil, err
	}

	if err := in.store.SetIntakeDocument(ctx, id, res.DocumentID); err != nil {
		return nil, err
	}
	if err := in.store.UpdateIntakeStatus(ctx, id, catalog.IntakeCompleted, ""); err != nil {
		return nil, err
	}
	return res, nil
}
