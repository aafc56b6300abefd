package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maktaba-dev/maktaba/internal/catalog"
	"github.com/maktaba-dev/maktaba/internal/chunk"
	"github.com/maktaba-dev/maktaba/internal/config"
	"github.com/maktaba-dev/maktaba/internal/embed"
	"github.com/maktaba-dev/maktaba/internal/errors"
	"github.com/maktaba-dev/maktaba/internal/gitignore"
	"github.com/maktaba-dev/maktaba/internal/markdown"
)

// Ingestor drives the incremental reconcile from markdown source to catalog
// rows. One Ingestor serves many concurrent ingestions; writes to the same
// document are serialized through a keyed lock.
type Ingestor struct {
	store     *catalog.Store
	embedder  embed.Embedder
	segmenter Segmenter
	scorer    Scorer
	chunker   *chunk.Chunker

	maxParallel int
	exclude     []string

	locks keyedLocks
}

// Deps are the collaborators an Ingestor composes. Catalog and Embedder are
// required; a nil Segmenter disables sentence markers and a nil Scorer
// scores every document neutral.
type Deps struct {
	Catalog   *catalog.Store
	Embedder  embed.Embedder
	Segmenter Segmenter
	Scorer    Scorer
}

// New creates an Ingestor over the given collaborators.
func New(deps Deps, cfg config.IngestConfig) (*Ingestor, error) {
	if deps.Catalog == nil {
		return nil, errors.InputInvalid("ingestor requires a catalog store", nil)
	}
	if deps.Embedder == nil {
		return nil, errors.InputInvalid("ingestor requires an embedder", nil)
	}

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	return &Ingestor{
		store:     deps.Catalog,
		embedder:  deps.Embedder,
		segmenter: deps.Segmenter,
		scorer:    deps.Scorer,
		chunker: chunk.NewWithOptions(chunk.Options{
			MaxChunk: cfg.MaxChunk,
			MinChunk: cfg.MinChunk,
			Overlap:  cfg.Overlap,
		}),
		maxParallel: maxParallel,
		exclude:     cfg.ExcludePatterns,
	}, nil
}

// IngestFile reconciles one markdown file.
func (in *Ingestor) IngestFile(ctx context.Context, path string, opts Options) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InputInvalid("read source file: "+path, err)
	}
	return in.ingest(ctx, filepath.Clean(path), raw, opts)
}

// IngestText reconciles an inline markdown string. sourceID plays the role
// of the source path: it names the document across re-ingestions.
func (in *Ingestor) IngestText(ctx context.Context, sourceID, text string, opts Options) (*Result, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, errors.InputInvalid("source id is required", nil)
	}
	return in.ingest(ctx, sourceID, []byte(text), opts)
}

// IngestDir walks a directory tree and reconciles every markdown file,
// fanning out up to maxParallel documents at a time. A root-level
// .maktabaignore narrows the walk beyond the configured exclude
// patterns. The first failure cancels the remaining work; per-document
// transactions mean cancelled ingestions leave no partial state.
func (in *Ingestor) IngestDir(ctx context.Context, root string, opts Options) ([]*Result, error) {
	ignore, err := gitignore.Load(filepath.Join(root, gitignore.IgnoreFile))
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.maxParallel)

	var mu sync.Mutex
	var results []*Result

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if path != root && (in.excluded(path) || ignore.Match(rel, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if in.excluded(path) || ignore.Match(rel, false) || !strings.HasSuffix(path, ".md") {
			return nil
		}
		g.Go(func() error {
			res, err := in.IngestFile(ctx, path, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
		return nil
	})
	if walkErr != nil {
		_ = g.Wait()
		return nil, errors.InputInvalid("walk source directory: "+root, walkErr)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Goroutine completion order is arbitrary; report deterministically.
	sort.Slice(results, func(i, j int) bool { return results[i].DocumentID < results[j].DocumentID })
	return results, nil
}

// excluded reports whether a path matches any configured exclude pattern.
func (in *Ingestor) excluded(path string) bool {
	for _, pattern := range in.exclude {
		if pattern != "" && strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// ingest splits the raw source once, then runs the reconcile under the
// document's writer lock. The lock key is the derived document id, so two
// source paths declaring the same frontmatter id serialize too.
func (in *Ingestor) ingest(ctx context.Context, sourcePath string, raw []byte, opts Options) (*Result, error) {
	frontmatter, body := markdown.Split(string(raw))

	unlock := in.locks.lock(documentID(frontmatter, sourcePath))
	defer unlock()

	return in.reconcile(ctx, sourcePath, raw, frontmatter, body, opts)
}

// keyedLocks serializes writers per document. Entries are never evicted;
// the map is bounded by the number of distinct documents seen.
type keyedLocks struct {
	mu   sync.Mutex
	held map[string]*sync.Mutex
}

func (l *keyedLocks) lock(key string) func() {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*sync.Mutex)
	}
	m := l.held[key]
	if m == nil {
		m = &sync.Mutex{}
		l.held[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
