package searchstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Fresh Engine Gets Both Indexes
func TestEnsureIndexesCreatesAndConfigures(t *testing.T) {
	// Given an empty engine
	engine := newFakeEngine(t)
	c := engine.client(t, Config{Dimensions: 1536, PollInterval: time.Millisecond})

	// When indexes are ensured
	err := c.EnsureIndexes(context.Background())
	require.NoError(t, err)

	// Then both indexes exist with their settings applied
	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.True(t, engine.indexes["documents"])
	assert.True(t, engine.indexes["paragraphs"])

	docSettings := engine.settings["documents"]
	assert.Equal(t, []string{"title", "author", "description", "collection"}, docSettings.SearchableAttributes)
	assert.Contains(t, docSettings.FilterableAttributes, "authority")
	assert.Equal(t, RankingRules(DefaultAuthorityPosition), docSettings.RankingRules)
	assert.Empty(t, docSettings.Embedders)

	paraSettings := engine.settings["paragraphs"]
	assert.Equal(t, []string{"text", "heading", "title", "author"}, paraSettings.SearchableAttributes)
	assert.Contains(t, paraSettings.FilterableAttributes, "document_id")
	assert.Contains(t, paraSettings.SortableAttributes, "paragraph_index")
	require.Contains(t, paraSettings.Embedders, EmbedderName)
	assert.Equal(t, "userProvided", paraSettings.Embedders[EmbedderName].Source)
	assert.Equal(t, 1536, paraSettings.Embedders[EmbedderName].Dimensions)
}

// TS02: Repeat Call Leaves Existing Indexes Alone
func TestEnsureIndexesIdempotent(t *testing.T) {
	engine := newFakeEngine(t)
	c := engine.client(t, Config{Dimensions: 1536, PollInterval: time.Millisecond})

	require.NoError(t, c.EnsureIndexes(context.Background()))
	require.NoError(t, c.EnsureIndexes(context.Background()))

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Zero(t, engine.deleteCount)
	assert.True(t, engine.indexes["documents"])
	assert.True(t, engine.indexes["paragraphs"])
}

// TS03: Dimension Change Recreates The Paragraph Index
func TestEnsureIndexesRecreatesOnDimensionChange(t *testing.T) {
	// Given an engine whose paragraph index was built for 768-dim vectors
	engine := newFakeEngine(t)
	engine.indexes["documents"] = true
	engine.indexes["paragraphs"] = true
	engine.dims["paragraphs"] = 768

	// When a 1536-dim client ensures the indexes
	c := engine.client(t, Config{Dimensions: 1536, PollInterval: time.Millisecond})
	err := c.EnsureIndexes(context.Background())
	require.NoError(t, err)

	// Then only the paragraph index was dropped and rebuilt
	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, 1, engine.deleteCount)
	assert.True(t, engine.indexes["documents"])
	assert.True(t, engine.indexes["paragraphs"])
	assert.Equal(t, 1536, engine.dims["paragraphs"])
}

// TS04: Matching Dimensions Skip The Rebuild
func TestEnsureIndexesKeepsMatchingDimensions(t *testing.T) {
	engine := newFakeEngine(t)
	engine.indexes["documents"] = true
	engine.indexes["paragraphs"] = true
	engine.dims["paragraphs"] = 1536

	c := engine.client(t, Config{Dimensions: 1536, PollInterval: time.Millisecond})
	err := c.EnsureIndexes(context.Background())
	require.NoError(t, err)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Zero(t, engine.deleteCount)
}

// TS05: Configured Authority Position Reaches Both Indexes
func TestEnsureIndexesHonorsAuthorityPosition(t *testing.T) {
	engine := newFakeEngine(t)
	c := engine.client(t, Config{Dimensions: 4, AuthorityPosition: 2, PollInterval: time.Millisecond})

	err := c.EnsureIndexes(context.Background())
	require.NoError(t, err)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, authorityRule, engine.settings["documents"].RankingRules[1])
	assert.Equal(t, authorityRule, engine.settings["paragraphs"].RankingRules[1])
}
