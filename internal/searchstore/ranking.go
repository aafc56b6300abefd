package searchstore

import "log/slog"

// baseRankingRules is the engine's stock rule order without authority.
var baseRankingRules = []string{
	"words",
	"typo",
	"proximity",
	"attribute",
	"sort",
	"exactness",
}

// authorityRule ranks higher-authority sources first.
const authorityRule = "authority:desc"

// RankingRules builds the rule list with authority:desc injected at the
// given 1-based position. Positions outside 1..7 clamp to the default slot
// with a warning; the base list always stays in order around the insertion.
func RankingRules(position int) []string {
	if position < 1 || position > len(baseRankingRules)+1 {
		slog.Warn("authority_position_out_of_range",
			slog.Int("position", position),
			slog.Int("default", DefaultAuthorityPosition))
		position = DefaultAuthorityPosition
	}

	rules := make([]string, 0, len(baseRankingRules)+1)
	rules = append(rules, baseRankingRules[:position-1]...)
	rules = append(rules, authorityRule)
	rules = append(rules, baseRankingRules[position-1:]...)
	return rules
}
