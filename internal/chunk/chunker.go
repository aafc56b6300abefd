// Package chunk splits document bodies into paragraph-level chunks kept
// within configurable character bounds, tracking the nearest preceding
// heading and classifying each block's shape.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker implements blank-line chunking with sentence-boundary splitting
// for oversize blocks.
type Chunker struct {
	options Options
}

// Regex patterns for body parsing
var (
	// Matches runs of two-or-more newlines separating blocks
	blockSeparatorPattern = regexp.MustCompile(`\n[ \t]*\n+`)

	// Matches headings: # Title, ## Title, etc.
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

	// Matches a sentence terminator (Latin or Arabic, closers attached)
	// followed by whitespace.
	sentenceEndPattern = regexp.MustCompile(`([.!?…؟۔]['"’”)\]»]*)[ \t\n]+`)

	// Runes that end a sentence when they close a line.
	terminalRunes = ".!?…؟۔"
)

// New creates a chunker with default options.
func New() *Chunker {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a chunker with custom options. Zero-valued
// fields fall back to the defaults.
func NewWithOptions(opts Options) *Chunker {
	if opts.MaxChunk == 0 {
		opts.MaxChunk = DefaultMaxChunk
	}
	if opts.MinChunk == 0 {
		opts.MinChunk = DefaultMinChunk
	}
	if opts.Overlap == 0 {
		opts.Overlap = DefaultOverlap
	}
	return &Chunker{options: opts}
}

// Chunk splits a body into an ordered chunk sequence. Blocks shorter than
// MinChunk are dropped (headings still update the heading context); blocks
// longer than MaxChunk are split at sentence boundaries with an overlap
// tail carried into the next piece.
func (c *Chunker) Chunk(body string) []Chunk {
	var chunks []Chunk
	heading := ""

	for _, block := range splitBlocks(body) {
		heading = leadingHeading(block, heading)
		if utf8.RuneCountInString(block) < c.options.MinChunk {
			continue
		}
		blockType := classifyBlock(block)
		for _, text := range c.splitOversize(block) {
			chunks = append(chunks, Chunk{
				Text:      text,
				Index:     len(chunks),
				Heading:   heading,
				BlockType: blockType,
			})
		}
	}
	return chunks
}

// splitBlocks cuts a body at blank lines and trims each block.
func splitBlocks(body string) []string {
	var blocks []string
	for _, block := range blockSeparatorPattern.Split(body, -1) {
		if block = strings.TrimSpace(block); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// leadingHeading returns the title of the last heading line at the start
// of the block, or the current heading when the block has none.
func leadingHeading(block, current string) string {
	for _, line := range strings.Split(block, "\n") {
		m := headingPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			break
		}
		current = strings.TrimSpace(m[2])
	}
	return current
}

func (c *Chunker) splitOversize(block string) []string {
	if utf8.RuneCountInString(block) <= c.options.MaxChunk {
		return []string{block}
	}
	return c.packSentences(splitSentences(block))
}

// splitSentences cuts text after sentence-ending punctuation. Terminators
// and trailing closers stay with their sentence.
func splitSentences(text string) []string {
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

// packSentences greedily fills chunks up to MaxChunk. Each emitted chunk
// leaves a whole-word overlap tail for the next one. Sentences that alone
// exceed MaxChunk are hard-split at character boundaries, preferring the
// last word break before the cut.
func (c *Chunker) packSentences(sentences []string) []string {
	var out []string
	current := ""
	fresh := false

	emit := func() {
		if fresh && current != "" {
			out = append(out, current)
			current = overlapTail(current, c.options.Overlap)
			fresh = false
		}
	}

	for _, sentence := range sentences {
		size := utf8.RuneCountInString(sentence)
		if size > c.options.MaxChunk {
			emit()
			pieces := hardSplit(sentence, c.options.MaxChunk)
			out = append(out, pieces[:len(pieces)-1]...)
			current, fresh = pieces[len(pieces)-1], true
			continue
		}
		if !c.fits(current, size) && fresh {
			emit()
		}
		if !c.fits(current, size) {
			// the overlap tail alone crowds this sentence out
			current = ""
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
		fresh = true
	}

	if fresh && current != "" {
		// Sentence boundaries beat the size floor: the final remnant is
		// kept even when it lands under MinChunk.
		out = append(out, current)
	}
	return out
}

func (c *Chunker) fits(current string, size int) bool {
	if current == "" {
		return true
	}
	return utf8.RuneCountInString(current)+1+size <= c.options.MaxChunk
}

// overlapTail returns the trailing overlap window of an emitted chunk,
// advanced to a whole-word start. Returns "" when no word boundary falls
// inside the window.
func overlapTail(s string, overlap int) string {
	runes := []rune(s)
	if len(runes) <= overlap {
		return s
	}
	tail := runes[len(runes)-overlap:]
	if unicode.IsSpace(runes[len(runes)-overlap-1]) {
		return strings.TrimSpace(string(tail))
	}
	for i, r := range tail {
		if unicode.IsSpace(r) {
			return strings.TrimLeftFunc(string(tail[i:]), unicode.IsSpace)
		}
	}
	return ""
}

// hardSplit cuts an oversize sentence into max-character pieces,
// backtracking to the last word break in the second half of the window.
func hardSplit(text string, max int) []string {
	var pieces []string
	runes := []rune(text)
	for len(runes) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}

// classifyBlock inspects a block's shape. Headings and quotes come from
// markdown syntax; verse is short unterminated lines; noise is mostly
// non-letter content such as page markers and separators.
func classifyBlock(text string) BlockType {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return BlockNoise
	}

	allHeadings, allQuoted := true, true
	for _, line := range lines {
		if !headingPattern.MatchString(line) {
			allHeadings = false
		}
		if !strings.HasPrefix(line, ">") {
			allQuoted = false
		}
	}
	if allHeadings {
		return BlockHeading
	}
	if allQuoted {
		return BlockQuote
	}

	var letters, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total > 0 && letters*4 < total {
		return BlockNoise
	}
	if isVerse(lines) {
		return BlockVerse
	}
	return BlockParagraph
}

// isVerse treats three or more short, mostly unterminated lines as poetry.
func isVerse(lines []string) bool {
	if len(lines) < 3 {
		return false
	}
	short, terminated := 0, 0
	for _, line := range lines {
		if utf8.RuneCountInString(line) <= 60 {
			short++
		}
		if r, _ := utf8.DecodeLastRuneInString(line); strings.ContainsRune(terminalRunes, r) {
			terminated++
		}
	}
	return short*3 >= len(lines)*2 && terminated*2 < len(lines)
}
