// Package authority maps (author, religion, collection) onto an integer
// doctrinal weight used by the search ranking.
//
// Scores come from a YAML document listing per-religion defaults,
// per-collection overrides, and per-author overrides. The scorer is
// hot-reloadable; rescoring a library never touches embeddings.
package authority

import (
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// Score bounds. Unknown religions land on the neutral midpoint.
const (
	MinScore     = 1
	MaxScore     = 10
	NeutralScore = 5
)

// religionRules is one religion's entry in the config document.
type religionRules struct {
	Default     int            `yaml:"default"`
	Collections map[string]int `yaml:"collections"`
}

// ruleTable is the whole config document.
type ruleTable struct {
	Religions map[string]religionRules `yaml:"religions"`
	Authors   map[string]int           `yaml:"authors"`
}

// Scorer resolves authority scores against the loaded rule table.
// Safe for concurrent use; Reload swaps the table atomically.
type Scorer struct {
	path string

	mu    sync.RWMutex
	table ruleTable
}

// NewScorer loads the rule table at path. A missing file is not an
// error: every lookup then scores neutral until the file appears and
// Reload is called.
func NewScorer(path string) (*Scorer, error) {
	s := &Scorer{path: path}
	table, err := loadRules(path)
	if err != nil {
		return nil, err
	}
	s.table = table
	return s, nil
}

// Path returns the config file location the scorer reads from.
func (s *Scorer) Path() string {
	return s.path
}

// Score resolves the authority of a text. Precedence: author override,
// then (religion, collection) override, then religion default, then the
// neutral midpoint. Results are clamped into [MinScore, MaxScore].
func (s *Scorer) Score(author, religion, collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.table.Authors[normalize(author)]; ok && v != 0 {
		return clamp(v)
	}

	rules, ok := s.table.Religions[normalize(religion)]
	if !ok {
		return NeutralScore
	}
	if v, ok := rules.Collections[normalize(collection)]; ok && v != 0 {
		return clamp(v)
	}
	if rules.Default != 0 {
		return clamp(rules.Default)
	}
	return NeutralScore
}

// Reload re-reads the config file. On failure the previous table stays
// in effect.
func (s *Scorer) Reload() error {
	table, err := loadRules(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
	return nil
}

// loadRules parses the YAML rule table with all keys normalized for
// case-insensitive lookup. A missing file yields an empty table.
func loadRules(path string) (ruleTable, error) {
	var table ruleTable
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return table, errors.StoreFailed("failed to read authority config", err).
			WithDetail("path", path)
	}

	var raw ruleTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return table, errors.ValidationFailed("malformed authority config", err).
			WithDetail("path", path)
	}

	table.Religions = make(map[string]religionRules, len(raw.Religions))
	for religion, rules := range raw.Religions {
		normalized := religionRules{
			Default:     rules.Default,
			Collections: make(map[string]int, len(rules.Collections)),
		}
		for collection, score := range rules.Collections {
			normalized.Collections[normalize(collection)] = score
		}
		table.Religions[normalize(religion)] = normalized
	}
	table.Authors = make(map[string]int, len(raw.Authors))
	for author, score := range raw.Authors {
		table.Authors[normalize(author)] = score
	}
	return table, nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
