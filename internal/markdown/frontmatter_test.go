package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: basic frontmatter split.
func TestSplitFrontmatter(t *testing.T) {
	input := `---
title: The Hidden Words
author: Baha'u'llah
language: ar
---

O Son of Spirit!`

	meta, body := Split(input)

	require.Len(t, meta, 3)
	assert.Equal(t, "The Hidden Words", meta["title"])
	assert.Equal(t, "Baha'u'llah", meta["author"])
	assert.Equal(t, "ar", meta["language"])
	assert.Equal(t, "O Son of Spirit!", body)
}

func TestSplitNoFrontmatter(t *testing.T) {
	input := "Just a body with a --- dash line later.\n---\nnot frontmatter"

	meta, body := Split(input)

	require.NotNil(t, meta)
	assert.Empty(t, meta)
	assert.Equal(t, input, body)
}

// The delimiter must start on the very first line.
func TestSplitLeadingBlankLineDisablesFrontmatter(t *testing.T) {
	input := "\n---\ntitle: x\n---\nbody"

	meta, body := Split(input)

	assert.Empty(t, meta)
	assert.Equal(t, input, body)
}

// TS02: only the first block is frontmatter, the second stays in the body.
func TestSplitSecondBlockStaysInBody(t *testing.T) {
	input := `---
title: first
---
---
title: second
---
body text`

	meta, body := Split(input)

	assert.Equal(t, "first", meta["title"])
	assert.Contains(t, body, "title: second")
	assert.Contains(t, body, "body text")
}

func TestSplitStripsQuotes(t *testing.T) {
	input := "---\ntitle: \"Some Answered Questions\"\nauthor: 'Abdu'l-Baha\n---\nbody"

	meta, _ := Split(input)

	assert.Equal(t, "Some Answered Questions", meta["title"])
	// Mismatched quotes are kept verbatim.
	assert.Equal(t, "'Abdu'l-Baha", meta["author"])
}

// TS03: unrecognized lines are skipped, not fatal.
func TestSplitSkipsUnrecognizedLines(t *testing.T) {
	input := `---
title: Gleanings
- a stray list item
# a comment
123bad: key starts with digit
collection: gleanings
---
body`

	meta, body := Split(input)

	require.Len(t, meta, 2)
	assert.Equal(t, "Gleanings", meta["title"])
	assert.Equal(t, "gleanings", meta["collection"])
	assert.Equal(t, "body", body)
}

// Values may contain colons; only the first colon splits.
func TestSplitColonInValue(t *testing.T) {
	input := "---\nsource: https://example.org/texts\nnote: time: 12:30\n---\nbody"

	meta, _ := Split(input)

	assert.Equal(t, "https://example.org/texts", meta["source"])
	assert.Equal(t, "time: 12:30", meta["note"])
}

func TestSplitEmptyBody(t *testing.T) {
	input := "---\ntitle: only meta\n---\n"

	meta, body := Split(input)

	assert.Equal(t, "only meta", meta["title"])
	assert.Equal(t, "", body)
}

func TestSplitConsumesBlankLinesAfterBlock(t *testing.T) {
	input := "---\ntitle: x\n---\n\n\nfirst paragraph"

	_, body := Split(input)

	assert.Equal(t, "first paragraph", body)
}
