// Package library assembles the maktaba pipeline behind one handle.
//
// Open wires the catalog, authority scoring, embedding, segmentation,
// the search-store adapter, ingestion, the sync worker and the job
// queue from a single Config. Nothing long-running starts until Start;
// Close tears everything down in reverse order. One Library per
// catalog: the catalog's file lock keeps second processes out.
package library

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maktaba-dev/maktaba/internal/authority"
	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/config"
	"github.com/maktaba-dev/maktaba/internal/embed"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/ingest"
	"github.com/maktaba-dev/maktaba/internal/jobs"
	"github.com/maktaba-dev/maktaba/internal/lifecycle"
	"github.com/maktaba-dev/maktaba/internal/logging"
	"github.com/maktaba-dev/maktaba/internal/preflight"
	"github.com/maktaba-dev/maktaba/internal/searchstore"
	"github.com/maktaba-dev/maktaba/internal/segment"
	"github.com/maktaba-dev/maktaba/internal/syncer"
	"github.com/maktaba-dev/maktaba/pkg/version"
)

// Library is the wired pipeline.
type Library struct {
	cfg      *config.Config
	logClose func()

	catalog   *catalog.Store
	scorer    *authority.Scorer
	watcher   *authority.Watcher
	embedder  embed.Embedder
	segmenter *segment.Segmenter
	search    searchstore.Store
	ingestor  *ingest.Ingestor
	syncer    *syncer.Worker
	queue     *jobs.Queue
	worker    *jobs.Worker
	manager   *lifecycle.Manager

	closeOnce sync.Once
	closeErr  error
}

// Open wires the full pipeline from cfg. A nil cfg takes the defaults;
// a cfg read from disk has already been validated by config.Load. Open
// makes no network calls: providers are checked lazily on first use,
// so call EnsureIndexes before the first sync against a fresh engine.
func Open(ctx context.Context, cfg *config.Config) (*Library, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}

	logClose, err := logging.SetupDefault(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("opening library", "version", version.Short(), "catalog", cfg.Paths.CatalogDB)

	lib := &Library{cfg: cfg, logClose: logClose}
	if err := lib.wire(ctx); err != nil {
		_ = lib.Close()
		return nil, err
	}
	return lib, nil
}

// wire builds every component in dependency order. On failure the
// caller closes the partially built Library; Close tolerates nil
// fields.
func (l *Library) wire(ctx context.Context) error {
	cfg := l.cfg

	store, err := catalog.Open(cfg.Paths.CatalogDB)
	if err != nil {
		return err
	}
	l.catalog = store

	scorer, err := authority.NewScorer(cfg.Paths.AuthorityConfig)
	if err != nil {
		return err
	}
	l.scorer = scorer
	if cfg.Paths.AuthorityConfig != "" {
		l.watcher = authority.NewWatcher(scorer, 0)
	}

	embedder, err := l.buildEmbedder(ctx)
	if err != nil {
		return err
	}
	l.embedder = embedder

	segmenter, err := l.buildSegmenter(ctx)
	if err != nil {
		return err
	}
	l.segmenter = segmenter

	search, err := searchstore.NewClient(searchstore.Config{
		Host:              cfg.Search.URL,
		APIKey:            cfg.SearchAPIKey(),
		DocumentIndex:     cfg.Search.DocumentIndex,
		ParagraphIndex:    cfg.Search.ParagraphIndex,
		Dimensions:        cfg.Embeddings.Dimensions,
		AuthorityPosition: cfg.Search.AuthorityPosition,
		BatchBytes:        cfg.Search.BatchBytes,
		TaskTimeout:       cfg.TaskTimeout(),
	})
	if err != nil {
		return err
	}
	l.search = search

	deps := ingest.Deps{Catalog: store, Embedder: embedder, Scorer: scorer}
	if segmenter != nil {
		// Assigned only when non-nil so the interface stays nil when
		// segmentation is off.
		deps.Segmenter = segmenter
	}
	ingestor, err := ingest.New(deps, cfg.Ingest)
	if err != nil {
		return err
	}
	l.ingestor = ingestor

	sweep, err := syncer.New(store, search, syncer.Config{
		Interval:       cfg.SyncInterval(),
		BatchSize:      cfg.Syncer.BatchSize,
		DocumentIndex:  cfg.Search.DocumentIndex,
		ParagraphIndex: cfg.Search.ParagraphIndex,
	})
	if err != nil {
		return err
	}
	l.syncer = sweep

	queue, err := jobs.NewQueue(store.DB())
	if err != nil {
		return err
	}
	l.queue = queue

	worker, err := jobs.NewWorker(queue, jobs.Config{
		Poll:         cfg.JobPoll(),
		Heartbeat:    cfg.JobHeartbeat(),
		ReclaimAfter: cfg.JobReclaimAfter(),
	})
	if err != nil {
		return err
	}
	worker.Register(jobs.TypeEmbeddingMigration, jobs.EmbeddingMigrationHandler(queue, store, embedder))
	if segmenter != nil {
		worker.Register(jobs.TypeResegmentation, jobs.ResegmentHandler(queue, store, segmenter))
	}
	l.worker = worker

	l.manager = l.buildManager()
	return nil
}

func (l *Library) buildEmbedder(ctx context.Context) (embed.Embedder, error) {
	cfg := l.cfg
	switch cfg.Embeddings.Provider {
	case "", "gemini":
		inner, err := embed.NewGeminiEmbedder(ctx, embed.GeminiConfig{
			APIKey:     cfg.EmbeddingAPIKey(),
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.EmbedTimeout(),
			MaxRetries: cfg.Embeddings.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
	default:
		return nil, errors.InputInvalid("unknown embeddings provider: "+cfg.Embeddings.Provider, nil).
			WithSuggestion("set embeddings provider to gemini")
	}
}

// buildSegmenter returns nil when segmentation is disabled; paragraphs
// are then stored without sentence markers. Without an API key the
// segmenter still runs on local sentence detection alone.
func (l *Library) buildSegmenter(ctx context.Context) (*segment.Segmenter, error) {
	cfg := l.cfg
	if !cfg.Segmentation.Enabled {
		return nil, nil
	}
	var model segment.BoundaryModel
	if key := cfg.SegmentationAPIKey(); key != "" && cfg.Segmentation.Model != "" {
		boundary, err := segment.NewGeminiBoundary(ctx, key, cfg.Segmentation.Model)
		if err != nil {
			return nil, err
		}
		model = boundary
	}
	return segment.New(model), nil
}

// buildManager registers the long-running components in start order:
// authority hot-reload first, then the sync worker, then the job
// worker. Stop runs the same list in reverse.
func (l *Library) buildManager() *lifecycle.Manager {
	manager := lifecycle.NewManager(0)
	if l.watcher != nil {
		watcher := l.watcher
		manager.Add(lifecycle.Component{
			Name:  "authority-watcher",
			Start: func(context.Context) error { return watcher.Start() },
			Stop:  func(context.Context) error { watcher.Stop(); return nil },
		})
	}
	sweep := l.syncer
	manager.Add(lifecycle.Component{
		Name:  "sync-worker",
		Start: func(ctx context.Context) error { sweep.Start(ctx); return nil },
		Stop:  func(context.Context) error { sweep.Stop(); return nil },
	})
	worker := l.worker
	manager.Add(lifecycle.Component{
		Name:  "job-worker",
		Start: func(ctx context.Context) error { worker.Start(ctx); return nil },
		Stop:  func(context.Context) error { worker.Stop(); return nil },
	})
	return manager
}

// Start launches the background workers. The context bounds their
// lifetime alongside Stop: cancelling it interrupts in-flight work.
func (l *Library) Start(ctx context.Context) error {
	return l.manager.Start(ctx)
}

// EnsureIndexes creates or updates the search engine indexes. Safe to
// call on every startup; it only issues writes when settings drift.
func (l *Library) EnsureIndexes(ctx context.Context) error {
	return l.search.EnsureIndexes(ctx)
}

// Preflight re-checks the environment the library depends on: catalog
// location, provider keys, search engine reachability, authority rules.
func (l *Library) Preflight(ctx context.Context) []preflight.Result {
	return preflight.New(l.cfg).Run(ctx)
}

// IngestFile ingests one markdown file into the library.
func (l *Library) IngestFile(ctx context.Context, path string, opts ingest.Options) (*ingest.Result, error) {
	return l.ingestor.IngestFile(ctx, path, opts)
}

// IngestText ingests markdown held in memory under a caller-chosen
// source id.
func (l *Library) IngestText(ctx context.Context, sourceID, text string, opts ingest.Options) (*ingest.Result, error) {
	return l.ingestor.IngestText(ctx, sourceID, text, opts)
}

// IngestDir walks root and ingests every markdown file that survives
// the exclude patterns.
func (l *Library) IngestDir(ctx context.Context, root string, opts ingest.Options) ([]*ingest.Result, error) {
	return l.ingestor.IngestDir(ctx, root, opts)
}

// Catalog exposes the truth store for read paths and tooling.
func (l *Library) Catalog() *catalog.Store {
	return l.catalog
}

// Queue exposes the background job queue for enqueueing and
// inspection.
func (l *Library) Queue() *jobs.Queue {
	return l.queue
}

// Ingestor exposes the full ingestion surface, including the intake
// review flow.
func (l *Library) Ingestor() *ingest.Ingestor {
	return l.ingestor
}

// Close stops the workers and releases every handle. Subsequent calls
// return the first call's error.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		var firstErr error
		if l.manager != nil {
			firstErr = l.manager.Stop()
		}
		if l.search != nil {
			if err := l.search.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if l.embedder != nil {
			if err := l.embedder.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if l.catalog != nil {
			if err := l.catalog.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if l.logClose != nil {
			l.logClose()
		}
		l.closeErr = firstErr
	})
	return l.closeErr
}
