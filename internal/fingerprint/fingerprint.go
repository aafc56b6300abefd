// Package fingerprint computes the deterministic digests that drive change
// detection and embedding reuse.
//
// All digests are SHA-256 hex. They must be stable across runs, processes,
// and operating systems: no randomness, no timestamps, no locale-dependent
// normalization.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// contentSeparator joins text and context before hashing so that the pair
// (text, context) hashes differently from the concatenation alone.
const contentSeparator = "|||"

// idHashLen is the number of hex characters of the body digest carried in a
// paragraph row id.
const idHashLen = 12

// File returns the digest of a raw source file.
func File(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Body returns the digest of a markdown body (frontmatter excluded).
func Body(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Content returns the digest of a paragraph's text plus its disambiguating
// context. Both parts are trimmed first; a change to either changes the hash.
// This is the embedding cache key.
func Content(text, context string) string {
	payload := strings.TrimSpace(text) + contentSeparator + strings.TrimSpace(context)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ParagraphID derives the stable row id for a paragraph: the document id
// plus the first 12 hex characters of the canonical-text digest.
//
// canonicalText must be the paragraph text with sentence markers stripped
// and whitespace collapsed, so re-segmentation that preserves the words
// preserves the id.
func ParagraphID(documentID, canonicalText string) string {
	return documentID + "-" + Body(canonicalText)[:idHashLen]
}
