package segment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/language"
)

// Segmenter produces marked paragraph text. English and punctuated RTL
// text is segmented locally; unpunctuated Arabic and Persian goes through
// the boundary model when one is configured.
type Segmenter struct {
	model BoundaryModel
}

// New creates a segmenter. model may be nil, in which case unpunctuated
// RTL text falls back to single-sentence marking.
func New(model BoundaryModel) *Segmenter {
	return &Segmenter{model: model}
}

// Segment wraps each sentence of a paragraph in markers and verifies the
// round-trip invariant before returning. A verification failure rejects
// the paragraph with a validation_failed error.
func (s *Segmenter) Segment(ctx context.Context, text, lang string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.InputInvalid("cannot segment an empty paragraph", nil)
	}

	var marked string
	if language.IsRTL(lang) && !hasTerminals(trimmed) && s.model != nil {
		var err error
		marked, err = s.segmentWithModel(ctx, trimmed)
		if err != nil {
			return "", err
		}
	} else {
		marked = markSentences(s.split(trimmed, lang))
	}

	if err := Verify(text, marked); err != nil {
		slog.Warn("sentence marking failed round-trip verification",
			slog.String("language", lang),
			slog.Int("text_chars", len(text)))
		return "", err
	}
	return marked, nil
}

// split picks the local splitter for the language.
func (s *Segmenter) split(text, lang string) []string {
	if language.IsRTL(lang) {
		return splitTerminals(text)
	}
	sentences, err := splitProse(text)
	if err != nil || len(sentences) == 0 {
		slog.Debug("prose tokenizer unavailable, using terminal splitter",
			slog.Int("text_chars", len(text)))
		return splitTerminals(text)
	}
	return sentences
}

// markSentences wraps each sentence in numbered markers.
func markSentences(sentences []string) string {
	var b strings.Builder
	for i, sentence := range sentences {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(wrapSentence(i+1, sentence))
	}
	return b.String()
}

// segmentWithModel runs the staged boundary protocol: words to phrases,
// phrases to sentences. Phrase markers are nested inside the sentence
// markers and numbered continuously across the paragraph.
func (s *Segmenter) segmentWithModel(ctx context.Context, text string) (string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", errors.InputInvalid("cannot segment an empty paragraph", nil)
	}

	phraseEnds, err := s.model.PhraseBoundaries(ctx, words)
	if err != nil {
		return "", err
	}
	phrases := joinSpans(words, closeBoundaries(phraseEnds, len(words)))

	sentenceEnds, err := s.model.SentenceBoundaries(ctx, phrases)
	if err != nil {
		return "", err
	}
	sentenceEnds = closeBoundaries(sentenceEnds, len(phrases))

	var b strings.Builder
	phraseNum := 0
	start := 0
	for si, end := range sentenceEnds {
		if end <= start || end > len(phrases) {
			continue
		}
		if si > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "⁅s%d⁆", si+1)
		for pi := start; pi < end; pi++ {
			phraseNum++
			if pi > start {
				b.WriteString(" ")
			}
			b.WriteString(wrapPhrase(phraseNum, phrases[pi]))
		}
		fmt.Fprintf(&b, "⁅/s%d⁆", si+1)
		start = end
	}
	return b.String(), nil
}

// GroupParagraphs asks the boundary model which sentences begin new
// paragraphs. Used during full re-ingestion to rebuild paragraph breaks
// in texts that were digitized as one continuous block. Without a model
// all sentences form a single paragraph.
func (s *Segmenter) GroupParagraphs(ctx context.Context, sentences []string) ([][]string, error) {
	if len(sentences) == 0 {
		return nil, nil
	}
	if s.model == nil {
		return [][]string{sentences}, nil
	}

	starts, err := s.model.ParagraphStarts(ctx, sentences)
	if err != nil {
		return nil, err
	}
	// The first paragraph starts at sentence 1 regardless of the reply.
	if len(starts) == 0 || starts[0] != 1 {
		starts = append([]int{1}, starts...)
	}

	var groups [][]string
	for i, start := range starts {
		end := len(sentences)
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		if start-1 >= end {
			continue
		}
		groups = append(groups, sentences[start-1:end])
	}
	return groups, nil
}
