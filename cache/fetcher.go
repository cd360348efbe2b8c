package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is used when neither the fetcher nor the call sets a TTL
const DefaultTTL = 5 * time.Minute

// Loader produces the payload for a key on a cache miss, typically by
// calling an HTTP endpoint or a database
type Loader func(ctx context.Context) ([]byte, error)

// Result describes how a fetch was served
type Result struct {
	Value  []byte
	Hit    bool // served from the store
	Shared bool // the load was shared with concurrent callers
}

type fetchConfig struct {
	ttl               time.Duration
	version           string
	backgroundRefresh bool
	refreshAfter      time.Duration
	dedupe            bool
}

// FetchOption configures a single fetch
type FetchOption func(*fetchConfig)

// WithTTL sets how long the loaded value stays valid
func WithTTL(ttl time.Duration) FetchOption {
	return func(c *fetchConfig) { c.ttl = ttl }
}

// WithVersion requires a cached entry to carry version to be served, and
// stores loaded values under it
func WithVersion(version string) FetchOption {
	return func(c *fetchConfig) { c.version = version }
}

// WithBackgroundRefresh reloads the key without blocking the caller whenever
// a cached value at least refreshAfter old is served. Zero refreshes on
// every hit.
func WithBackgroundRefresh(refreshAfter time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.backgroundRefresh = true
		c.refreshAfter = refreshAfter
	}
}

// WithoutDedupe lets this call start its own load even if one is in flight
func WithoutDedupe() FetchOption {
	return func(c *fetchConfig) { c.dedupe = false }
}

// Fetcher serves values from a Store and loads misses through a Deduplicator
type Fetcher struct {
	store       Store
	clock       Clock
	dedup       *Deduplicator
	logger      zerolog.Logger
	defaultTTL  time.Duration
	dedupe      bool
	loadTimeout time.Duration

	wg         sync.WaitGroup
	refreshing sync.Map

	loads      atomic.Int64
	loadErrors atomic.Int64
	refreshes  atomic.Int64
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

func WithClock(c Clock) FetcherOption {
	return func(f *Fetcher) { f.clock = c }
}

func WithLogger(l zerolog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

func WithDefaultTTL(ttl time.Duration) FetcherOption {
	return func(f *Fetcher) { f.defaultTTL = ttl }
}

// WithDedupe sets whether fetches deduplicate by default
func WithDedupe(enabled bool) FetcherOption {
	return func(f *Fetcher) { f.dedupe = enabled }
}

// WithLoadTimeout bounds every loader call. Zero means no bound beyond the
// caller's context.
func WithLoadTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.loadTimeout = d }
}

// NewFetcher creates a fetcher over store
func NewFetcher(store Store, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		store:      store,
		clock:      SystemClock{},
		dedup:      NewDeduplicator(),
		logger:     zerolog.Nop(),
		defaultTTL: DefaultTTL,
		dedupe:     true,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Store returns the underlying store
func (f *Fetcher) Store() Store {
	return f.store
}

// Fetch returns the cached value for key if it is valid, otherwise loads,
// stores and returns it. Loader errors are returned unchanged and nothing is
// cached for them.
func (f *Fetcher) Fetch(ctx context.Context, key string, loader Loader, opts ...FetchOption) ([]byte, error) {
	res, err := f.Lookup(ctx, key, loader, opts...)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Lookup is Fetch that also reports whether the value came from the store
func (f *Fetcher) Lookup(ctx context.Context, key string, loader Loader, opts ...FetchOption) (Result, error) {
	cfg := f.config(opts)

	entry, err := f.store.Get(ctx, key, cfg.version)
	if err == nil {
		if cfg.backgroundRefresh && entry.Age(f.clock.Now()) >= cfg.refreshAfter {
			f.refreshAsync(ctx, key, loader, cfg)
		}
		return Result{Value: entry.Value, Hit: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		f.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, loading")
	}

	v, shared, err := f.load(ctx, key, loader, cfg, true)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Shared: shared}, nil
}

// Refresh loads key unconditionally and stores the result
func (f *Fetcher) Refresh(ctx context.Context, key string, loader Loader, opts ...FetchOption) ([]byte, error) {
	v, _, err := f.load(ctx, key, loader, f.config(opts), false)
	return v, err
}

// Invalidate removes every entry whose key contains pattern
func (f *Fetcher) Invalidate(ctx context.Context, pattern string) (int, error) {
	n, err := f.store.DeleteMatching(ctx, pattern)
	if err != nil {
		return n, fmt.Errorf("invalidate %q: %w", pattern, err)
	}
	f.logger.Debug().Str("pattern", pattern).Int("removed", n).Msg("cache invalidated")
	return n, nil
}

func (f *Fetcher) Delete(ctx context.Context, key string) error {
	return f.store.Delete(ctx, key)
}

func (f *Fetcher) Clear(ctx context.Context) error {
	return f.store.Clear(ctx)
}

// Wait blocks until all background refreshes started so far have finished
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

// Stats implements StatsReporter. Store counters are included when the store
// reports them.
func (f *Fetcher) Stats() Stats {
	var st Stats
	if r, ok := f.store.(StatsReporter); ok {
		st = r.Stats()
	} else if sizer, ok := f.store.(Sizer); ok {
		if n, err := sizer.Len(context.Background()); err == nil {
			st.Size = n
		}
	}
	st.Loads = f.loads.Load()
	st.LoadErrors = f.loadErrors.Load()
	st.Refreshes = f.refreshes.Load()
	st.Shared = f.dedup.Shared()
	st.InFlight = f.dedup.InFlight()
	return st
}

func (f *Fetcher) config(opts []FetchOption) fetchConfig {
	cfg := fetchConfig{ttl: f.defaultTTL, dedupe: f.dedupe}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// load runs loader and stores its result. With recheck, a load that finds a
// valid entry in the store returns it instead: a caller can miss while a load
// for the key is still running and only reach the deduplicator after it has
// settled.
func (f *Fetcher) load(ctx context.Context, key string, loader Loader, cfg fetchConfig, recheck bool) ([]byte, bool, error) {
	run := func(ctx context.Context) ([]byte, error) {
		if recheck {
			if entry, err := f.peek(ctx, key, cfg.version); err == nil {
				return entry.Value, nil
			}
		}

		if f.loadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.loadTimeout)
			defer cancel()
		}

		f.loads.Add(1)
		v, err := loader(ctx)
		if err != nil {
			f.loadErrors.Add(1)
			return nil, err
		}

		entry := &Entry{
			Key:        key,
			Value:      v,
			InsertedAt: f.clock.Now(),
			TTL:        cfg.ttl,
			Version:    cfg.version,
		}
		if err := f.store.Set(ctx, entry); err != nil {
			f.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return v, nil
	}

	if !cfg.dedupe {
		v, err := run(ctx)
		return v, false, err
	}

	flightKey := key
	if cfg.version != "" {
		flightKey = key + "\x00" + cfg.version
	}
	v, err, shared := f.dedup.Do(ctx, flightKey, run)
	return v, shared, err
}

// peek reads the store without touching hit and miss counters
func (f *Fetcher) peek(ctx context.Context, key, version string) (*Entry, error) {
	if is, ok := f.store.(*InstrumentedStore); ok {
		return is.Store.Get(ctx, key, version)
	}
	return f.store.Get(ctx, key, version)
}

// refreshAsync starts at most one background refresh per key
func (f *Fetcher) refreshAsync(ctx context.Context, key string, loader Loader, cfg fetchConfig) {
	if _, busy := f.refreshing.LoadOrStore(key, struct{}{}); busy {
		return
	}
	f.refreshes.Add(1)
	f.wg.Add(1)

	bg := context.WithoutCancel(ctx)
	go func() {
		defer f.wg.Done()
		defer f.refreshing.Delete(key)

		if _, _, err := f.load(bg, key, loader, cfg, false); err != nil {
			f.logger.Warn().Err(err).Str("key", key).Msg("background refresh failed")
		}
	}()
}

// FetchJSON fetches key and decodes the payload into T
func FetchJSON[T any](ctx context.Context, f *Fetcher, key string, loader Loader, opts ...FetchOption) (T, error) {
	var out T
	v, err := f.Fetch(ctx, key, loader, opts...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(v, &out); err != nil {
		return out, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}
