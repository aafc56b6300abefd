// Package segment wraps paragraph sentences in stable Unicode markers so
// search results and audio playback can anchor to individual sentences.
//
// Marked text must round-trip: stripping every marker and collapsing
// whitespace yields the original paragraph under the same normalization.
// Segmentation output is verified against that invariant before it is
// accepted.
package segment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

var (
	// Matches any sentence or phrase marker: ⁅s3⁆, ⁅/s3⁆, ⁅ph12⁆, ⁅/ph12⁆.
	markerPattern = regexp.MustCompile(`⁅/?(?:s|ph)\d+⁆`)

	// Matches a sentence span and captures its number and inner text.
	sentenceSpanPattern = regexp.MustCompile(`(?s)⁅s(\d+)⁆(.*?)⁅/s\d+⁆`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Strip removes all sentence and phrase markers from a marked string.
func Strip(marked string) string {
	return markerPattern.ReplaceAllString(marked, "")
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// Canonical is the marker-free, whitespace-collapsed form of a text.
// Texts with equal canonical forms carry the same words.
func Canonical(s string) string {
	return Normalize(Strip(s))
}

// Verify checks the round-trip invariant: the marked string must reduce to
// the original text once markers are stripped and whitespace collapsed.
func Verify(original, marked string) error {
	want := Normalize(original)
	got := Canonical(marked)
	if want != got {
		return errors.ValidationFailed("sentence markers corrupt the paragraph text", nil).
			WithDetail("expected_chars", strconv.Itoa(len(want))).
			WithDetail("actual_chars", strconv.Itoa(len(got)))
	}
	return nil
}

// Sentences returns the sentence texts of a marked string in order, with
// phrase markers removed.
func Sentences(marked string) []string {
	var out []string
	for _, m := range sentenceSpanPattern.FindAllStringSubmatch(marked, -1) {
		out = append(out, Normalize(Strip(m[2])))
	}
	return out
}

func wrapSentence(n int, text string) string {
	return fmt.Sprintf("⁅s%d⁆%s⁅/s%d⁆", n, text, n)
}

func wrapPhrase(n int, text string) string {
	return fmt.Sprintf("⁅ph%d⁆%s⁅/ph%d⁆", n, text, n)
}
