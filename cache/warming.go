package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WarmTarget is one key to pre-populate
type WarmTarget struct {
	Name    string
	Key     string
	Loader  Loader
	Options []FetchOption
}

// WarmupConfig configures cache warming.
type WarmupConfig struct {
	// Timeout bounds the whole warmup
	Timeout time.Duration

	// ContinueOnError keeps warming after a target fails (sequential mode)
	ContinueOnError bool

	// Parallel warms targets concurrently, at most Concurrency at a time
	Parallel    bool
	Concurrency int
}

// DefaultWarmupConfig returns sensible defaults for cache warming.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
		Concurrency:     4,
	}
}

// WarmupResult contains the result of warming a single target.
type WarmupResult struct {
	Target   string
	Duration time.Duration
	Err      error
}

// WarmupResults contains the aggregate results of a warmup.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors returns true if any target failed.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer refreshes a set of targets through a Fetcher.
type Warmer struct {
	fetcher *Fetcher
	logger  zerolog.Logger
	config  WarmupConfig
}

// NewWarmer creates a new cache warmer.
func NewWarmer(fetcher *Fetcher, logger zerolog.Logger, config WarmupConfig) *Warmer {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Warmer{fetcher: fetcher, logger: logger, config: config}
}

// Warmup refreshes every target and returns per-target results.
func (w *Warmer) Warmup(ctx context.Context, targets []WarmTarget) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{Results: make([]WarmupResult, 0, len(targets))}
	if len(targets) == 0 {
		results.TotalTime = time.Since(start)
		return results
	}

	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	if w.config.Parallel {
		results.Results = w.warmupParallel(ctx, targets)
	} else {
		results.Results = w.warmupSequential(ctx, targets)
	}

	for _, r := range results.Results {
		if r.Err != nil {
			results.Errors++
		}
	}
	results.TotalTime = time.Since(start)

	if results.Errors > 0 {
		w.logger.Warn().Int("errors", results.Errors).Int("targets", len(targets)).
			Dur("took", results.TotalTime).Msg("cache warmup completed with errors")
	} else {
		w.logger.Info().Int("targets", len(targets)).
			Dur("took", results.TotalTime).Msg("cache warmup completed")
	}
	return results
}

func (w *Warmer) warmupParallel(ctx context.Context, targets []WarmTarget) []WarmupResult {
	var (
		mu      sync.Mutex
		results = make([]WarmupResult, 0, len(targets))
	)

	// errgroup only bounds concurrency; failures are collected, not propagated
	var g errgroup.Group
	g.SetLimit(w.config.Concurrency)
	for _, t := range targets {
		g.Go(func() error {
			r := w.warmupTarget(ctx, t)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w *Warmer) warmupSequential(ctx context.Context, targets []WarmTarget) []WarmupResult {
	results := make([]WarmupResult, 0, len(targets))
	for _, t := range targets {
		r := w.warmupTarget(ctx, t)
		results = append(results, r)
		if r.Err != nil && !w.config.ContinueOnError {
			break
		}
	}
	return results
}

func (w *Warmer) warmupTarget(ctx context.Context, t WarmTarget) WarmupResult {
	start := time.Now()
	name := t.Name
	if name == "" {
		name = t.Key
	}

	_, err := w.fetcher.Refresh(ctx, t.Key, t.Loader, t.Options...)
	duration := time.Since(start)
	if err != nil {
		w.logger.Warn().Err(err).Str("target", name).Dur("took", duration).Msg("cache warmup failed")
	} else {
		w.logger.Debug().Str("target", name).Dur("took", duration).Msg("cache warmed")
	}
	return WarmupResult{Target: name, Duration: duration, Err: err}
}
