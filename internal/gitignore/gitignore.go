// Package gitignore matches relative paths against gitignore-style
// rules. A library root may carry an ignore file in this syntax;
// directory ingestion and the file watcher consult it through a shared
// Matcher.
package gitignore

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// IgnoreFile is the rule file name looked up at a library root.
const IgnoreFile = ".maktabaignore"

// Matcher holds compiled rules in file order; the last matching rule
// wins, so negations can re-include earlier matches. Build it fully
// before sharing: Add is not safe once Match is being called.
type Matcher struct {
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negation bool
	dirOnly  bool
}

// New returns a matcher with no rules; it ignores nothing.
func New() *Matcher {
	return &Matcher{}
}

// Load reads one rule file. A missing file yields an empty matcher.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.StoreFailed("failed to read ignore file", err).
			WithDetail("path", path)
	}
	defer f.Close()

	m := New()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.StoreFailed("failed to read ignore file", err).
			WithDetail("path", path)
	}
	return m, nil
}

// Add compiles one rule line. Blank lines and comments are dropped.
func (m *Matcher) Add(line string) {
	pattern := strings.TrimSpace(line)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	pattern = strings.TrimPrefix(pattern, "/")
	if !strings.Contains(pattern, "/") {
		// A bare name matches at any depth; a pattern with a slash is
		// anchored to the root.
		pattern = "**/" + pattern
	}

	r.re = compile(pattern)
	m.rules = append(m.rules, r)
}

// Match reports whether rel (slash- or OS-separated, relative to the
// rule file's directory) is ignored. Matching a directory also matches
// everything under it.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.ReplaceAll(rel, string(os.PathSeparator), "/")
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negation
		}
	}
	return ignored
}

// Empty reports whether the matcher holds no rules.
func (m *Matcher) Empty() bool {
	return len(m.rules) == 0
}

func (r rule) matches(rel string, isDir bool) bool {
	sub := r.re.FindStringSubmatch(rel)
	if sub == nil {
		return false
	}
	// An exact hit on a directory-only rule needs the path to be a
	// directory; a hit through the trailing child group does not.
	if sub[1] == "" && r.dirOnly && !isDir {
		return false
	}
	return true
}

// compile translates one gitignore pattern into an anchored regexp.
// `*` and `?` stay inside a path segment; `**` crosses segments. The
// trailing group captures descendants of a matched directory. Every
// non-glob character is quoted, so the result always compiles.
func compile(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString("(?:[^/]+/)*")
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			b.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}
	b.WriteString("(/.*)?$")
	return regexp.MustCompile(b.String())
}
