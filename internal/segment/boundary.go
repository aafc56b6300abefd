package segment

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// BoundaryModel supplies linguistic boundaries for text that lacks
// sentence-ending punctuation. All indices are 1-based. Replies are
// cleaned with parseIndexList, so implementations may return them in any
// order with stray prose around the numbers.
type BoundaryModel interface {
	// PhraseBoundaries returns the indices of words that end a phrase.
	PhraseBoundaries(ctx context.Context, words []string) ([]int, error)

	// SentenceBoundaries returns the indices of phrases that end a sentence.
	SentenceBoundaries(ctx context.Context, phrases []string) ([]int, error)

	// ParagraphStarts returns the indices of sentences that begin a new
	// paragraph. The first paragraph always starts at sentence 1.
	ParagraphStarts(ctx context.Context, sentences []string) ([]int, error)
}

// subscriptDigits render word numbers without colliding with digits that
// appear in the text itself.
var subscriptDigits = [10]rune{'₀', '₁', '₂', '₃', '₄', '₅', '₆', '₇', '₈', '₉'}

var indexRunPattern = regexp.MustCompile(`\d+`)

// subscript renders n in Unicode subscript digits.
func subscript(n int) string {
	var b strings.Builder
	for _, d := range strconv.Itoa(n) {
		b.WriteRune(subscriptDigits[d-'0'])
	}
	return b.String()
}

// numberWords attaches a subscript index to every word: "قال₁ الله₂ …".
func numberWords(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(w)
		b.WriteString(subscript(i + 1))
	}
	return b.String()
}

// numberLines renders items as a 1-based numbered list.
func numberLines(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

// parseIndexList extracts a clean boundary list from a model reply:
// digit runs become integers, out-of-range values are dropped, duplicates
// removed, and the result sorted ascending.
func parseIndexList(reply string, max int) []int {
	seen := map[int]bool{}
	var out []int
	for _, run := range indexRunPattern.FindAllString(reply, -1) {
		n, err := strconv.Atoi(run)
		if err != nil || n < 1 || n > max || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// closeBoundaries guarantees that a boundary list ends the final span.
func closeBoundaries(ends []int, max int) []int {
	if max == 0 {
		return nil
	}
	if len(ends) == 0 || ends[len(ends)-1] != max {
		ends = append(ends, max)
	}
	return ends
}

// joinSpans groups units into span strings at the given 1-based end
// indices. Boundaries must be sorted; the last must equal len(units).
func joinSpans(units []string, ends []int) []string {
	var spans []string
	start := 0
	for _, end := range ends {
		if end <= start || end > len(units) {
			continue
		}
		spans = append(spans, strings.Join(units[start:end], " "))
		start = end
	}
	return spans
}
