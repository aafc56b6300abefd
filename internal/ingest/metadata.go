package ingest

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/fingerprint"
	"github.com/maktaba-dev/maktaba/internal/language"
)

// neutralAuthority is the score of a document no rule covers.
const neutralAuthority = 5

// documentID derives the stable document identity: an explicit frontmatter
// id wins, otherwise the source path's file stem is slugified. The id must
// not change across re-ingestions of the same source.
func documentID(frontmatter map[string]string, sourcePath string) string {
	if id := strings.TrimSpace(frontmatter["id"]); id != "" {
		return slugify(id)
	}
	if slug := slugify(pathStem(sourcePath)); slug != "" {
		return slug
	}
	// Nothing sluggable in the name; fall back to a digest of the path.
	return "doc-" + fingerprint.Body(sourcePath)[:12]
}

// pathStem is the file name without directory or extension.
func pathStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// slugify lowercases and keeps letters and digits, collapsing everything
// else into single dashes. Non-Latin letters pass through so Arabic and
// Persian file names stay readable ids.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// titleFromPath turns a file stem into a display title: separators become
// spaces, casing is left alone.
func titleFromPath(path string) string {
	stem := pathStem(path)
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}

// collectionFromPath infers the collection from the parent directory name.
func collectionFromPath(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	switch dir {
	case ".", "..", "/", "":
		return ""
	}
	return dir
}

// buildDocument merges metadata in fixed priority: explicit caller
// overrides, then frontmatter, then path inference, then defaults. Language
// is the exception: non-English script detection beats the frontmatter tag.
func (in *Ingestor) buildDocument(docID, sourcePath string, frontmatter map[string]string, body string, opts Options) *catalog.Document {
	doc := &catalog.Document{
		ID:          docID,
		Title:       strings.TrimSpace(frontmatter["title"]),
		Author:      strings.TrimSpace(frontmatter["author"]),
		Religion:    strings.TrimSpace(frontmatter["religion"]),
		Collection:  strings.TrimSpace(frontmatter["collection"]),
		Description: strings.TrimSpace(frontmatter["description"]),
		SourcePath:  sourcePath,
	}

	if doc.Title == "" {
		doc.Title = titleFromPath(sourcePath)
	}
	if doc.Collection == "" {
		doc.Collection = collectionFromPath(sourcePath)
	}

	if raw := strings.TrimSpace(frontmatter["year"]); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			slog.Debug("frontmatter year ignored",
				slog.String("document_id", docID),
				slog.String("year", raw))
		} else {
			doc.Year = year
		}
	}

	detected, _ := language.Detect(body)
	switch {
	case opts.LanguageOverride != "":
		doc.Language = opts.LanguageOverride
	default:
		doc.Language = language.Resolve(frontmatter["language"], detected)
	}

	doc.Authority = in.resolveAuthority(doc, frontmatter, opts)
	return doc
}

// resolveAuthority picks the score: caller override, frontmatter override,
// then the rule scorer, clamped to 1..10.
func (in *Ingestor) resolveAuthority(doc *catalog.Document, frontmatter map[string]string, opts Options) int {
	if opts.AuthorityOverride != 0 {
		return clampAuthority(opts.AuthorityOverride)
	}
	if raw := strings.TrimSpace(frontmatter["authority"]); raw != "" {
		if score, err := strconv.Atoi(raw); err == nil {
			return clampAuthority(score)
		}
		slog.Debug("frontmatter authority ignored",
			slog.String("document_id", doc.ID),
			slog.String("authority", raw))
	}
	if in.scorer != nil {
		return clampAuthority(in.scorer.Score(doc.Author, doc.Religion, doc.Collection))
	}
	return neutralAuthority
}

func clampAuthority(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
