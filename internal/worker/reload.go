// Package worker provides background dataset reloading for the climate
// platform. Archives are appended on disk by external ingest pipelines; the
// worker republishes them into the in-memory registry without restarting the
// API.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/climabr/climabr/internal/dataset"
)

// ReloadConfig holds configuration for the reload job.
type ReloadConfig struct {
	// Interval is the periodic full-reload cadence. Default: 24 hours.
	Interval time.Duration

	// Concurrency is the number of sources reloaded at once during a full
	// pass. Default: 2.
	Concurrency int
}

// DefaultReloadConfig returns the default reload configuration.
func DefaultReloadConfig() ReloadConfig {
	return ReloadConfig{
		Interval:    24 * time.Hour,
		Concurrency: 2,
	}
}

// ReloadJob republishes datasets from disk into the registry, either on a
// periodic schedule or on demand via Pub/Sub.
type ReloadJob struct {
	config   ReloadConfig
	registry *dataset.Registry
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *ReloadMetrics
}

// ReloadMetrics tracks reload job statistics.
type ReloadMetrics struct {
	mu sync.RWMutex

	TotalPasses     int64
	SourcesReloaded int64
	SourcesFailed   int64

	LastPassAt       time.Time
	LastPassDuration time.Duration
}

// ReloadJobConfig holds configuration for creating a ReloadJob.
type ReloadJobConfig struct {
	Config   ReloadConfig
	Registry *dataset.Registry
	Logger   zerolog.Logger

	// Clock is injectable for tests. Nil uses the real clock.
	Clock clockwork.Clock
}

// NewReloadJob creates a new reload job.
func NewReloadJob(cfg ReloadJobConfig) *ReloadJob {
	config := cfg.Config
	if config.Interval <= 0 {
		config.Interval = DefaultReloadConfig().Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultReloadConfig().Concurrency
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &ReloadJob{
		config:   config,
		registry: cfg.Registry,
		clock:    clock,
		logger:   cfg.Logger,
		metrics:  &ReloadMetrics{},
	}
}

// ReloadResult contains the result of one full reload pass.
type ReloadResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Succeeded int
	Failed    int
	Errors    []ReloadError
}

// ReloadError records one failed source.
type ReloadError struct {
	Category string
	Source   string
	Error    string
}

// Run reloads every configured source. A failing source is recorded and the
// pass continues: the registry keeps serving the previous dataset for it.
func (j *ReloadJob) Run(ctx context.Context) *ReloadResult {
	startTime := j.clock.Now()
	statuses := j.registry.Status()
	result := &ReloadResult{
		StartTime: startTime,
		Total:     len(statuses),
	}

	j.logger.Info().
		Int("sources", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting dataset reload pass")

	keys := make(chan dataset.Key, len(statuses))
	results := make(chan ReloadError, len(statuses))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.reloadWorker(ctx, keys, results)
		}()
	}

	for _, s := range statuses {
		keys <- dataset.Key{Category: s.Category, Source: s.Source}
	}
	close(keys)

	go func() {
		wg.Wait()
		close(results)
	}()

	for re := range results {
		if re.Error == "" {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, re)
	}

	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(startTime)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("dataset reload pass completed")

	return result
}

func (j *ReloadJob) reloadWorker(ctx context.Context, keys <-chan dataset.Key, results chan<- ReloadError) {
	for key := range keys {
		select {
		case <-ctx.Done():
			results <- ReloadError{Category: key.Category, Source: key.Source, Error: ctx.Err().Error()}
		default:
			re := ReloadError{Category: key.Category, Source: key.Source}
			if err := j.registry.Reload(key.Category, key.Source); err != nil {
				re.Error = err.Error()
				j.logger.Warn().
					Err(err).
					Str("category", key.Category).
					Str("source", key.Source).
					Msg("source reload failed")
			}
			results <- re
		}
	}
}

// ReloadOne reloads a single source on demand.
func (j *ReloadJob) ReloadOne(_ context.Context, category, source string) error {
	err := j.registry.Reload(category, source)

	j.metrics.mu.Lock()
	if err != nil {
		j.metrics.SourcesFailed++
	} else {
		j.metrics.SourcesReloaded++
	}
	j.metrics.mu.Unlock()

	if err != nil {
		return err
	}
	j.logger.Info().
		Str("category", category).
		Str("source", source).
		Msg("source reloaded")
	return nil
}

// RunPeriodic runs full reload passes on the configured interval until the
// context is canceled.
func (j *ReloadJob) RunPeriodic(ctx context.Context) {
	ticker := j.clock.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("periodic reload stopped")
			return
		case <-ticker.Chan():
			j.Run(ctx)
		}
	}
}

func (j *ReloadJob) updateMetrics(result *ReloadResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalPasses++
	j.metrics.SourcesReloaded += int64(result.Succeeded)
	j.metrics.SourcesFailed += int64(result.Failed)
	j.metrics.LastPassAt = result.EndTime
	j.metrics.LastPassDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *ReloadJob) GetMetrics() ReloadMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return ReloadMetrics{
		TotalPasses:      j.metrics.TotalPasses,
		SourcesReloaded:  j.metrics.SourcesReloaded,
		SourcesFailed:    j.metrics.SourcesFailed,
		LastPassAt:       j.metrics.LastPassAt,
		LastPassDuration: j.metrics.LastPassDuration,
	}
}
