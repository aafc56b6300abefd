package segment

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
)

// terminalRunes end a sentence in Latin or Arabic script.
const terminalRunes = ".!?…؟۔"

// Matches a sentence terminator (closers attached) followed by whitespace.
var sentenceEndPattern = regexp.MustCompile(`([.!?…؟۔]['"’”)\]»]*)[ \t\n]+`)

// splitProse segments text with the prose sentence tokenizer. Tagging,
// entity extraction, and word tokenization are disabled; only the sentence
// segmenter runs.
func splitProse(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false))
	if err != nil {
		return nil, err
	}
	var sentences []string
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			sentences = append(sentences, t)
		}
	}
	return sentences, nil
}

// splitTerminals cuts text after sentence-ending punctuation. It is the
// primary splitter for punctuated Arabic and Persian and the fallback when
// the prose tokenizer fails.
func splitTerminals(text string) []string {
	var sentences []string
	start := 0
	for _, m := range sentenceEndPattern.FindAllStringSubmatchIndex(text, -1) {
		if sentence := strings.TrimSpace(text[start:m[3]]); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = m[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// hasTerminals reports whether the text contains any sentence-ending
// punctuation at all.
func hasTerminals(text string) bool {
	return strings.ContainsAny(text, terminalRunes)
}
