// Package preflight checks the environment a library needs before it
// opens: a usable catalog location, provider keys in the environment, a
// reachable search engine, and parseable authority rules. Checks never
// abort each other; the caller reads the full result list.
package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/maktaba-dev/maktaba/internal/authority"
	"github.com/maktaba-dev/maktaba/internal/config"
)

// Status classifies one check outcome.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result is one check outcome.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

// Critical reports whether any required check failed.
func Critical(results []Result) bool {
	for _, r := range results {
		if r.Required && r.Status == StatusFail {
			return true
		}
	}
	return false
}

// Checker runs the preflight checks for one configuration.
type Checker struct {
	cfg     *config.Config
	offline bool
	client  *http.Client
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline skips checks that need the network; they report WARN.
func WithOffline(offline bool) Option {
	return func(c *Checker) {
		c.offline = offline
	}
}

// New builds a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes every check and returns the results in a fixed order.
func (c *Checker) Run(ctx context.Context) []Result {
	return []Result{
		c.checkConfig(),
		c.checkCatalogPath(),
		c.checkEmbeddingKey(),
		c.checkSegmentationKey(),
		c.checkSearchEngine(ctx),
		c.checkAuthorityRules(),
	}
}

func (c *Checker) checkConfig() Result {
	r := Result{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		return r
	}
	r.Status = StatusPass
	r.Message = "configuration is valid"
	return r
}

// checkCatalogPath proves the catalog directory is writable with a
// probe file. It never opens the catalog itself, so a running library
// holding the lock does not fail preflight.
func (c *Checker) checkCatalogPath() Result {
	r := Result{Name: "catalog", Required: true}
	if c.cfg.Paths.CatalogDB == "" {
		r.Status = StatusFail
		r.Message = "paths.catalog_db is not set"
		return r
	}

	dir := filepath.Dir(c.cfg.Paths.CatalogDB)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("catalog directory not creatable: %v", err)
		return r
	}
	probe, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("catalog directory not writable: %v", err)
		return r
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	r.Status = StatusPass
	r.Message = "catalog directory is writable: " + dir
	return r
}

func (c *Checker) checkEmbeddingKey() Result {
	r := Result{Name: "embedding-key", Required: true}
	env := c.cfg.Embeddings.APIKeyEnv
	if c.cfg.EmbeddingAPIKey() == "" {
		r.Status = StatusFail
		r.Message = env + " is not set"
		return r
	}
	r.Status = StatusPass
	r.Message = env + " is set"
	return r
}

// checkSegmentationKey warns rather than fails: without a boundary
// model the segmenter still runs on local sentence detection.
func (c *Checker) checkSegmentationKey() Result {
	r := Result{Name: "segmentation-key"}
	if !c.cfg.Segmentation.Enabled {
		r.Status = StatusPass
		r.Message = "segmentation is disabled"
		return r
	}
	if c.cfg.SegmentationAPIKey() == "" {
		r.Status = StatusWarn
		r.Message = "no boundary-model key; unpunctuated text falls back to single-sentence markers"
		return r
	}
	r.Status = StatusPass
	r.Message = "boundary-model key is set"
	return r
}

// checkSearchEngine hits the engine health endpoint.
func (c *Checker) checkSearchEngine(ctx context.Context) Result {
	r := Result{Name: "search-engine", Required: true}
	if c.offline {
		r.Status = StatusWarn
		r.Message = "offline; skipped reaching " + c.cfg.Search.URL
		return r
	}

	url := c.cfg.Search.URL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("bad search url: %v", err)
		return r
	}
	resp, err := c.client.Do(req)
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("engine unreachable at %s: %v", c.cfg.Search.URL, err)
		return r
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("engine health returned %d", resp.StatusCode)
		return r
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Status != "" && health.Status != "available" {
		r.Status = StatusWarn
		r.Message = "engine health is " + health.Status
		return r
	}
	r.Status = StatusPass
	r.Message = "engine reachable at " + c.cfg.Search.URL
	return r
}

// checkAuthorityRules parses the configured rule table. No path is a
// pass; scoring just stays neutral.
func (c *Checker) checkAuthorityRules() Result {
	r := Result{Name: "authority-rules"}
	path := c.cfg.Paths.AuthorityConfig
	if path == "" {
		r.Status = StatusPass
		r.Message = "no rule table configured; all documents score neutral"
		return r
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.Status = StatusWarn
		r.Message = "rule table missing at " + path + "; scores stay neutral until it appears"
		return r
	}
	if _, err := authority.NewScorer(path); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("rule table unreadable: %v", err)
		return r
	}
	r.Status = StatusPass
	r.Message = "rule table loaded from " + path
	return r
}
