package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Key identifies a dataset in the registry.
type Key struct {
	Category string
	Source   string
}

// RegistryConfig holds configuration for the dataset registry.
type RegistryConfig struct {
	// Dir is the root directory of the yearly archive tree.
	Dir string

	// Sources are the archive sets to load. If empty, uses Catalog().
	Sources []Source

	// LoadWorkers bounds parallel archive loading. Default: 4.
	LoadWorkers int

	// MaxConcurrentCompute bounds in-flight heavy query computations
	// across all datasets. Default: 8.
	MaxConcurrentCompute int64

	// Logger for registry operations.
	Logger zerolog.Logger
}

// Registry is the process-wide cache of loaded datasets. Datasets are
// immutable once published; a reload builds a fresh instance and swaps the
// map entry under the write lock, so in-flight queries keep reading the old
// object. The registry also owns the single shared compute gate used to
// bound concurrent heavy array work.
type Registry struct {
	dir     string
	sources []Source
	workers int
	logger  zerolog.Logger

	mu       sync.RWMutex
	datasets map[Key]*Dataset
	loadedAt map[Key]time.Time

	gate *semaphore.Weighted
}

// NewRegistry creates an empty registry. Call LoadAll to warm it up.
func NewRegistry(cfg RegistryConfig) *Registry {
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = Catalog()
	}
	workers := cfg.LoadWorkers
	if workers <= 0 {
		workers = 4
	}
	maxCompute := cfg.MaxConcurrentCompute
	if maxCompute <= 0 {
		maxCompute = 8
	}

	return &Registry{
		dir:      cfg.Dir,
		sources:  sources,
		workers:  workers,
		logger:   cfg.Logger,
		datasets: make(map[Key]*Dataset),
		loadedAt: make(map[Key]time.Time),
		gate:     semaphore.NewWeighted(maxCompute),
	}
}

// Get returns the dataset for (category, source), or nil if it was never
// successfully loaded. Callers must treat nil as "temporarily unavailable",
// not as an error in the request.
func (r *Registry) Get(category, source string) *Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.datasets[Key{Category: category, Source: source}]
}

// LoadAll loads every configured source with bounded parallelism. A source
// whose archives are missing or malformed is logged and skipped so it never
// blocks the others; LoadAll returns an error only when the context is
// canceled. Calling it again reloads and atomically replaces entries.
func (r *Registry) LoadAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, src := range r.sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.load(src); err != nil {
				r.logger.Warn().
					Err(err).
					Str("category", src.Category).
					Str("source", src.Name).
					Msg("skipping source: load failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// Reload loads a single source and swaps it into the registry.
func (r *Registry) Reload(category, source string) error {
	for _, src := range r.sources {
		if src.Category == category && src.Name == source {
			return r.load(src)
		}
	}
	return &UnknownSourceError{Category: category, Source: source}
}

func (r *Registry) load(src Source) error {
	start := time.Now()
	ds, err := LoadSource(r.dir, src)
	if err != nil {
		return err
	}

	key := Key{Category: src.Category, Source: src.Name}
	r.mu.Lock()
	r.datasets[key] = ds
	r.loadedAt[key] = time.Now()
	r.mu.Unlock()

	first, last := ds.TimeRange()
	r.logger.Info().
		Str("category", src.Category).
		Str("source", src.Name).
		Str("variable", ds.Variable).
		Int("times", ds.NumTimes()).
		Int("lats", ds.NumLats()).
		Int("lons", ds.NumLons()).
		Time("first", first).
		Time("last", last).
		Dur("duration", time.Since(start)).
		Msg("dataset loaded")
	return nil
}

// Compute runs fn under the shared compute gate, bounding the number of
// concurrent heavy array operations across all queries and datasets.
func (r *Registry) Compute(ctx context.Context, fn func() error) error {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.gate.Release(1)
	return fn()
}

// SourceStatus describes one catalog entry for readiness reporting.
type SourceStatus struct {
	Category string    `json:"category"`
	Source   string    `json:"source"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Times    int       `json:"times,omitempty"`
}

// Status reports the load state of every configured source.
func (r *Registry) Status() []SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]SourceStatus, 0, len(r.sources))
	for _, src := range r.sources {
		key := Key{Category: src.Category, Source: src.Name}
		s := SourceStatus{Category: src.Category, Source: src.Name}
		if ds, ok := r.datasets[key]; ok {
			s.Loaded = true
			s.LoadedAt = r.loadedAt[key]
			s.Times = ds.NumTimes()
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// Close clears the cache. Safe to call more than once or before LoadAll;
// the compute gate simply drains as in-flight queries finish.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets = make(map[Key]*Dataset)
	r.loadedAt = make(map[Key]time.Time)
}

// UnknownSourceError is returned by Reload for a (category, source) pair
// that is not in the configured catalog.
type UnknownSourceError struct {
	Category string
	Source   string
}

func (e *UnknownSourceError) Error() string {
	return "unknown source " + e.Category + "/" + e.Source
}
