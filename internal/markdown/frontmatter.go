// Package markdown splits source files into YAML-style frontmatter and body.
//
// Only a leading block delimited by `---` lines on the very first line
// counts as frontmatter. A second consecutive block is left in the body.
package markdown

import (
	"regexp"
	"strings"
)

var (
	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Matches a recognizable metadata line: identifier key, colon, value.
	keyValuePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// Split separates a raw file into its frontmatter fields and its body.
// When no leading frontmatter block is present the whole input is the body
// and the returned map is empty, never nil.
func Split(input string) (map[string]string, string) {
	meta := map[string]string{}
	match := frontmatterPattern.FindStringSubmatch(input)
	if match == nil {
		return meta, input
	}
	body := input[len(match[0]):]
	return parseBlock(match[1]), body
}

// parseBlock reads `key: value` lines from the frontmatter block interior.
// Lines that do not look like a key/value pair are skipped rather than
// failing the whole document; legacy files carry comments and stray dashes.
func parseBlock(block string) map[string]string {
	meta := map[string]string{}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if !keyValuePattern.MatchString(key) {
			continue
		}
		meta[key] = unquote(strings.TrimSpace(line[idx+1:]))
	}
	return meta
}

// unquote strips one layer of matching single or double quotes.
func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if first == last && (first == '"' || first == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
