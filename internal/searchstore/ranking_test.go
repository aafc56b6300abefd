package searchstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Authority Rule Placement
func TestRankingRulesPlacesAuthorityAtPosition(t *testing.T) {
	// Given any valid slot
	for position := 1; position <= 7; position++ {
		t.Run(fmt.Sprintf("position %d", position), func(t *testing.T) {
			// When the rules are built
			rules := RankingRules(position)

			// Then authority:desc sits at the requested slot
			require.Len(t, rules, len(baseRankingRules)+1)
			assert.Equal(t, authorityRule, rules[position-1])

			// And the base rules keep their relative order
			var rest []string
			for _, rule := range rules {
				if rule != authorityRule {
					rest = append(rest, rule)
				}
			}
			assert.Equal(t, baseRankingRules, rest)
		})
	}
}

// TS02: Out Of Range Position Clamps To Default
func TestRankingRulesClampsInvalidPosition(t *testing.T) {
	for _, position := range []int{-1, 0, 8, 100} {
		t.Run(fmt.Sprintf("position %d", position), func(t *testing.T) {
			rules := RankingRules(position)

			require.Len(t, rules, len(baseRankingRules)+1)
			assert.Equal(t, authorityRule, rules[DefaultAuthorityPosition-1])
		})
	}
}

// TS03: Default Position Interleaves After Attribute
func TestRankingRulesDefaultShape(t *testing.T) {
	rules := RankingRules(DefaultAuthorityPosition)

	assert.Equal(t, []string{
		"words",
		"typo",
		"proximity",
		"authority:desc",
		"attribute",
		"sort",
		"exactness",
	}, rules)
}
