// Package config loads and validates maktaba configuration.
//
// Configuration is applied in order of increasing precedence: hardcoded
// defaults, a YAML config file, then MAKTABA_* environment variables.
// Secrets never live in the file; the file names the environment variable
// that holds them (api_key_env).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete maktaba configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	Paths        PathsConfig        `yaml:"paths" json:"paths"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	Segmentation SegmentationConfig `yaml:"segmentation" json:"segmentation"`
	Search       SearchConfig       `yaml:"search" json:"search"`
	Ingest       IngestConfig       `yaml:"ingest" json:"ingest"`
	Syncer       SyncerConfig       `yaml:"syncer" json:"syncer"`
	Jobs         JobsConfig         `yaml:"jobs" json:"jobs"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// CatalogDB is the SQLite truth-store path.
	CatalogDB string `yaml:"catalog_db" json:"catalog_db"`

	// AuthorityConfig is the authority scoring YAML. Empty uses built-in
	// neutral defaults and disables hot reload.
	AuthorityConfig string `yaml:"authority_config" json:"authority_config"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend. Only "gemini" ships today.
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model tag stored alongside each vector.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the vector dimension requested from the provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the number of texts per provider round-trip.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Timeout bounds a single provider call (Go duration string).
	Timeout string `yaml:"timeout" json:"timeout"`

	// MaxRetries bounds transient-failure retries per call.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// CacheSize is the in-memory LRU entry count layered over the
	// persistent content-hash cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SegmentationConfig configures sentence-marker segmentation.
type SegmentationConfig struct {
	// Enabled turns marker insertion on during ingestion.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Model is the boundary-detection LLM used for Arabic/Persian text.
	Model string `yaml:"model" json:"model"`

	// Timeout bounds a single boundary-detection call.
	Timeout string `yaml:"timeout" json:"timeout"`

	// APIKeyEnv names the environment variable holding the boundary-model
	// key. Empty falls back to the embeddings key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
}

// SearchConfig configures the external search engine adapter.
type SearchConfig struct {
	// URL is the engine base URL.
	URL string `yaml:"url" json:"url"`

	// APIKeyEnv names the environment variable holding the engine key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// AuthorityPosition is the 1-based slot where authority:desc is
	// injected into the base ranking rules (1-7).
	AuthorityPosition int `yaml:"authority_position" json:"authority_position"`

	// BatchBytes caps the estimated serialized size of one upload batch.
	BatchBytes int `yaml:"batch_bytes" json:"batch_bytes"`

	// DocumentIndex and ParagraphIndex are the engine index names.
	DocumentIndex  string `yaml:"document_index" json:"document_index"`
	ParagraphIndex string `yaml:"paragraph_index" json:"paragraph_index"`

	// TaskTimeout bounds waiting for one engine task acknowledgement.
	TaskTimeout string `yaml:"task_timeout" json:"task_timeout"`
}

// IngestConfig configures chunking and ingestion parallelism.
type IngestConfig struct {
	// MaxChunk/MinChunk/Overlap are the chunker bounds in characters.
	MaxChunk int `yaml:"max_chunk" json:"max_chunk"`
	MinChunk int `yaml:"min_chunk" json:"min_chunk"`
	Overlap  int `yaml:"overlap" json:"overlap"`

	// MaxParallel is the number of documents ingested concurrently.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel"`

	// ExcludePatterns are path substrings skipped during directory walks.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
}

// SyncerConfig configures the search-store sync worker.
type SyncerConfig struct {
	// Interval between sync polls.
	Interval string `yaml:"interval" json:"interval"`

	// BatchSize is the maximum unsynced rows pulled per poll.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// JobsConfig configures the durable job queue worker.
type JobsConfig struct {
	// Heartbeat is the interval between worker heartbeats on a claimed job.
	Heartbeat string `yaml:"heartbeat" json:"heartbeat"`

	// ReclaimAfter is how stale a heartbeat must be before a processing
	// job is handed back to pending.
	ReclaimAfter string `yaml:"reclaim_after" json:"reclaim_after"`

	// Poll is the idle interval between claim attempts.
	Poll string `yaml:"poll" json:"poll"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`

	// File is the log file path. Empty logs to stderr only.
	File string `yaml:"file" json:"file"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			CatalogDB:       defaultCatalogPath(),
			AuthorityConfig: "",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "gemini",
			Model:      "gemini-embedding-001",
			Dimensions: 1536,
			BatchSize:  32,
			Timeout:    "60s",
			MaxRetries: 3,
			APIKeyEnv:  "GEMINI_API_KEY",
			CacheSize:  1000,
		},
		Segmentation: SegmentationConfig{
			Enabled: true,
			Model:   "gemini-2.5-flash",
			Timeout: "90s",
		},
		Search: SearchConfig{
			URL:               "http://localhost:7700",
			APIKeyEnv:         "MEILI_MASTER_KEY",
			AuthorityPosition: 4,
			BatchBytes:        5 * 1024 * 1024, // ~5% of the engine's 100 MiB payload cap
			DocumentIndex:     "documents",
			ParagraphIndex:    "paragraphs",
			TaskTimeout:       "120s",
		},
		Ingest: IngestConfig{
			MaxChunk:        1500,
			MinChunk:        100,
			Overlap:         150,
			MaxParallel:     4,
			ExcludePatterns: []string{".git", ".obsidian", "drafts"},
		},
		Syncer: SyncerConfig{
			Interval:  "15s",
			BatchSize: 200,
		},
		Jobs: JobsConfig{
			Heartbeat:    "10s",
			ReclaimAfter: "2m",
			Poll:         "5s",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// defaultCatalogPath returns the default truth-store location.
func defaultCatalogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".maktaba", "catalog.db")
	}
	return filepath.Join(home, ".maktaba", "catalog.db")
}

// Load loads configuration from the given directory.
// It looks for maktaba.yaml then maktaba.yml; a missing file means defaults.
// Environment variables are applied last, then the result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir loads the first of maktaba.yaml or maktaba.yml found in
// dir. A missing file keeps the defaults.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{"maktaba.yaml", "maktaba.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return c.loadYAML(path)
	}
	return nil
}

// loadYAML layers one YAML file over the current values. Keys absent
// from the file keep their defaults; exclude patterns accumulate on top
// of the built-in list instead of replacing it.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	baseExcludes := c.Ingest.ExcludePatterns
	c.Ingest.ExcludePatterns = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		c.Ingest.ExcludePatterns = baseExcludes
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.Ingest.ExcludePatterns = append(baseExcludes, c.Ingest.ExcludePatterns...)
	return nil
}

// applyEnvOverrides applies MAKTABA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MAKTABA_CATALOG_DB"); v != "" {
		c.Paths.CatalogDB = v
	}
	if v := os.Getenv("MAKTABA_AUTHORITY_CONFIG"); v != "" {
		c.Paths.AuthorityConfig = v
	}
	if v := os.Getenv("MAKTABA_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MAKTABA_EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("MAKTABA_SEARCH_URL"); v != "" {
		c.Search.URL = v
	}
	if v := os.Getenv("MAKTABA_AUTHORITY_POSITION"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 1 && p <= 7 {
			c.Search.AuthorityPosition = p
		}
	}
	if v := os.Getenv("MAKTABA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Paths.CatalogDB == "" {
		return fmt.Errorf("paths.catalog_db must be set")
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Search.AuthorityPosition < 1 || c.Search.AuthorityPosition > 7 {
		return fmt.Errorf("search.authority_position must be in [1,7], got %d", c.Search.AuthorityPosition)
	}
	if c.Search.DocumentIndex == "" || c.Search.ParagraphIndex == "" {
		return fmt.Errorf("search index names must be set")
	}
	if c.Search.BatchBytes <= 0 {
		return fmt.Errorf("search.batch_bytes must be positive, got %d", c.Search.BatchBytes)
	}
	if c.Ingest.MinChunk >= c.Ingest.MaxChunk {
		return fmt.Errorf("ingest.min_chunk (%d) must be below ingest.max_chunk (%d)", c.Ingest.MinChunk, c.Ingest.MaxChunk)
	}
	if c.Ingest.Overlap >= c.Ingest.MaxChunk {
		return fmt.Errorf("ingest.overlap (%d) must be below ingest.max_chunk (%d)", c.Ingest.Overlap, c.Ingest.MaxChunk)
	}
	if c.Ingest.MaxParallel < 1 {
		return fmt.Errorf("ingest.max_parallel must be at least 1, got %d", c.Ingest.MaxParallel)
	}
	if c.Syncer.BatchSize < 1 {
		return fmt.Errorf("syncer.batch_size must be at least 1, got %d", c.Syncer.BatchSize)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"embeddings.timeout", c.Embeddings.Timeout},
		{"segmentation.timeout", c.Segmentation.Timeout},
		{"search.task_timeout", c.Search.TaskTimeout},
		{"syncer.interval", c.Syncer.Interval},
		{"jobs.heartbeat", c.Jobs.Heartbeat},
		{"jobs.reclaim_after", c.Jobs.ReclaimAfter},
		{"jobs.poll", c.Jobs.Poll},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", d.name, d.value)
		}
	}
	return nil
}

// EmbeddingAPIKey resolves the embedding provider API key from the
// configured environment variable.
func (c *Config) EmbeddingAPIKey() string {
	if c.Embeddings.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embeddings.APIKeyEnv)
}

// SearchAPIKey resolves the search engine API key from the configured
// environment variable.
func (c *Config) SearchAPIKey() string {
	if c.Search.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Search.APIKeyEnv)
}

// SegmentationAPIKey resolves the boundary-model API key, falling back to
// the embedding key when segmentation names no variable of its own.
func (c *Config) SegmentationAPIKey() string {
	if c.Segmentation.APIKeyEnv != "" {
		return os.Getenv(c.Segmentation.APIKeyEnv)
	}
	return c.EmbeddingAPIKey()
}

// durationOr parses a duration string, falling back on empty or bad input.
func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// EmbedTimeout returns the parsed embedding call timeout.
func (c *Config) EmbedTimeout() time.Duration {
	return durationOr(c.Embeddings.Timeout, 60*time.Second)
}

// SegmentTimeout returns the parsed boundary-LLM call timeout.
func (c *Config) SegmentTimeout() time.Duration {
	return durationOr(c.Segmentation.Timeout, 90*time.Second)
}

// TaskTimeout returns the parsed search-task wait timeout.
func (c *Config) TaskTimeout() time.Duration {
	return durationOr(c.Search.TaskTimeout, 120*time.Second)
}

// SyncInterval returns the parsed sync worker poll interval.
func (c *Config) SyncInterval() time.Duration {
	return durationOr(c.Syncer.Interval, 15*time.Second)
}

// JobHeartbeat returns the parsed job heartbeat interval.
func (c *Config) JobHeartbeat() time.Duration {
	return durationOr(c.Jobs.Heartbeat, 10*time.Second)
}

// JobReclaimAfter returns the parsed stale-job reclaim age.
func (c *Config) JobReclaimAfter() time.Duration {
	return durationOr(c.Jobs.ReclaimAfter, 2*time.Minute)
}

// JobPoll returns the parsed job worker poll interval.
func (c *Config) JobPoll() time.Duration {
	return durationOr(c.Jobs.Poll, 5*time.Second)
}
