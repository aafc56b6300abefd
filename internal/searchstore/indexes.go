package searchstore

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
)

// indexSettings is the engine settings payload. Applying it is idempotent.
type indexSettings struct {
	SearchableAttributes []string                `json:"searchableAttributes"`
	FilterableAttributes []string                `json:"filterableAttributes"`
	SortableAttributes   []string                `json:"sortableAttributes"`
	RankingRules         []string                `json:"rankingRules"`
	Embedders            map[string]embedderSpec `json:"embedders,omitempty"`
}

// embedderSpec declares the vector slot: vectors are computed here and
// handed to the engine, never computed engine-side.
type embedderSpec struct {
	Source     string `json:"source"`
	Dimensions int    `json:"dimensions"`
}

type createIndexRequest struct {
	UID        string `json:"uid"`
	PrimaryKey string `json:"primaryKey"`
}

// EnsureIndexes configures both indexes idempotently. If the engine already
// holds paragraph vectors of a different dimension, the paragraph index is
// dropped and recreated; the sync worker refills it from the catalog.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	if err := c.ensureIndex(ctx, c.docIndex); err != nil {
		return err
	}
	if err := c.applySettings(ctx, c.docIndex, c.documentSettings()); err != nil {
		return err
	}

	exists, err := c.indexExists(ctx, c.paraIndex)
	if err != nil {
		return err
	}
	if exists {
		current, err := c.embedderDimensions(ctx, c.paraIndex)
		if err != nil {
			return err
		}
		if current != 0 && current != c.dimensions {
			slog.Info("paragraph_index_recreated",
				slog.Int("stored_dimensions", current),
				slog.Int("configured_dimensions", c.dimensions))
			if err := c.deleteIndex(ctx, c.paraIndex); err != nil {
				return err
			}
			exists = false
		}
	}
	if !exists {
		if err := c.createIndex(ctx, c.paraIndex); err != nil {
			return err
		}
	}
	return c.applySettings(ctx, c.paraIndex, c.paragraphSettings())
}

// documentSettings mirrors the paragraph schema at document granularity.
func (c *Client) documentSettings() indexSettings {
	return indexSettings{
		SearchableAttributes: []string{"title", "author", "description", "collection"},
		FilterableAttributes: []string{"religion", "collection", "language", "year", "author", "authority"},
		SortableAttributes:   []string{"year", "created_at", "authority", "title"},
		RankingRules:         RankingRules(c.authorityPosition),
	}
}

// paragraphSettings carries the full-text fields, the filter surface and the
// user-provided vector slot.
func (c *Client) paragraphSettings() indexSettings {
	return indexSettings{
		SearchableAttributes: []string{"text", "heading", "title", "author"},
		FilterableAttributes: []string{
			"document_id", "religion", "collection", "language", "year",
			"paragraph_index", "blocktype", "author", "title", "authority",
		},
		SortableAttributes: []string{"year", "created_at", "paragraph_index", "authority"},
		RankingRules:       RankingRules(c.authorityPosition),
		Embedders: map[string]embedderSpec{
			EmbedderName: {Source: "userProvided", Dimensions: c.dimensions},
		},
	}
}

// ensureIndex creates an index when missing.
func (c *Client) ensureIndex(ctx context.Context, uid string) error {
	exists, err := c.indexExists(ctx, uid)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.createIndex(ctx, uid)
}

// indexExists probes the index without mutating anything.
func (c *Client) indexExists(ctx context.Context, uid string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/indexes/"+uid, nil, &struct{}{})
	if err == nil {
		return true, nil
	}
	var se *statusError
	if stderrors.As(err, &se) && se.status == http.StatusNotFound {
		return false, nil
	}
	return false, classifySearch(err)
}

// createIndex tolerates losing a creation race to another process.
func (c *Client) createIndex(ctx context.Context, uid string) error {
	var ref taskRef
	if err := c.do(ctx, http.MethodPost, "/indexes",
		createIndexRequest{UID: uid, PrimaryKey: "id"}, &ref); err != nil {
		return classifySearch(err)
	}
	return c.awaitTaskCode(ctx, ref.TaskUID, "index_already_exists")
}

// deleteIndex drops an index, tolerating one that is already gone.
func (c *Client) deleteIndex(ctx context.Context, uid string) error {
	var ref taskRef
	if err := c.do(ctx, http.MethodDelete, "/indexes/"+uid, nil, &ref); err != nil {
		return classifySearch(err)
	}
	return c.awaitTaskCode(ctx, ref.TaskUID, "index_not_found")
}

// applySettings patches the index configuration and waits for the task.
func (c *Client) applySettings(ctx context.Context, uid string, settings indexSettings) error {
	return c.submit(ctx, http.MethodPatch, "/indexes/"+uid+"/settings", settings)
}

// embedderDimensions reads the stored vector dimension, 0 when no embedder
// is configured yet.
func (c *Client) embedderDimensions(ctx context.Context, uid string) (int, error) {
	var embedders map[string]embedderSpec
	err := c.do(ctx, http.MethodGet, "/indexes/"+uid+"/settings/embedders", nil, &embedders)
	if err != nil {
		var se *statusError
		if stderrors.As(err, &se) && se.status == http.StatusNotFound {
			return 0, nil
		}
		return 0, classifySearch(err)
	}
	return embedders[EmbedderName].Dimensions, nil
}
