package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(opts ...FetcherOption) (*Fetcher, *InstrumentedStore, *fakeClock) {
	clock := newFakeClock()
	store := Instrument(NewMemoryStore(WithMemoryClock(clock)))
	f := NewFetcher(store, append([]FetcherOption{WithClock(clock)}, opts...)...)
	return f, store, clock
}

// countingLoader returns payload and counts invocations
func countingLoader(calls *atomic.Int64, payload string) Loader {
	return func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(payload), nil
	}
}

func TestFetchServesFreshEntryWithoutLoader(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()

	var calls atomic.Int64
	v, err := f.Fetch(ctx, "GET:/api/clients", countingLoader(&calls, `[1]`))
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(v))

	v, err = f.Fetch(ctx, "GET:/api/clients", countingLoader(&calls, `[2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(v))
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchTTLBoundary(t *testing.T) {
	ctx := context.Background()
	f, _, clock := newTestFetcher()
	ttl := 2 * time.Second

	var calls atomic.Int64
	load := countingLoader(&calls, "v")

	_, err := f.Fetch(ctx, "k", load, WithTTL(ttl))
	require.NoError(t, err)

	clock.Advance(ttl - time.Millisecond)
	_, err = f.Fetch(ctx, "k", load, WithTTL(ttl))
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "read before expiry must be served from cache")

	clock.Advance(2 * time.Millisecond)
	_, err = f.Fetch(ctx, "k", load, WithTTL(ttl))
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load(), "read after expiry must reload")
}

func TestFetchDedupesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()

	var calls atomic.Int64
	release := make(chan struct{})
	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`{"id":1}`), nil
	}

	const n = 20
	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Fetch(ctx, "GET:/api/clients", loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return f.Stats().InFlight == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for i := 1; i < n; i++ {
		require.Len(t, results[i], len(results[0]))
		assert.Same(t, &results[0][0], &results[i][0], "callers must share the same payload")
	}
	assert.Equal(t, int64(0), f.Stats().InFlight)
}

type holdKey struct{}

// holdingStore pauses the first Get made with a holdKey context after it has
// read the wrapped store, until resume is closed
type holdingStore struct {
	Store
	held   atomic.Bool
	missed chan struct{}
	resume chan struct{}
}

func (h *holdingStore) Get(ctx context.Context, key, version string) (*Entry, error) {
	e, err := h.Store.Get(ctx, key, version)
	if ctx.Value(holdKey{}) != nil && h.held.CompareAndSwap(false, true) {
		close(h.missed)
		<-h.resume
	}
	return e, err
}

func TestFetchMissThatJoinsAfterLoadSettledUsesStoredValue(t *testing.T) {
	ctx := context.Background()
	store := &holdingStore{Store: NewMemoryStore(), missed: make(chan struct{}), resume: make(chan struct{})}
	f := NewFetcher(store)

	var calls atomic.Int64
	loading := make(chan struct{})
	release := make(chan struct{})
	loader := func(context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(loading)
			<-release
		}
		return []byte("v"), nil
	}

	first := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, "GET:/api/clients", loader)
		first <- err
	}()
	<-loading

	// the second caller misses while the first load is running
	second := make(chan []byte, 1)
	go func() {
		v, err := f.Fetch(context.WithValue(ctx, holdKey{}, true), "GET:/api/clients", loader)
		assert.NoError(t, err)
		second <- v
	}()
	<-store.missed

	close(release)
	require.NoError(t, <-first)
	close(store.resume)

	assert.Equal(t, "v", string(<-second))
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchDedupeSharesErrors(t *testing.T) {
	ctx := context.Background()
	f, store, _ := newTestFetcher()

	loadErr := errors.New("upstream 502")
	var calls atomic.Int64
	release := make(chan struct{})
	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return nil, loadErr
	}

	errs := make([]error, 5)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.Fetch(ctx, "k", loader)
		}(i)
	}
	require.Eventually(t, func() bool { return f.Stats().InFlight == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, err := range errs {
		assert.Same(t, loadErr, err)
	}

	n, _ := store.Len(ctx)
	assert.Zero(t, n, "failed loads must not populate the cache")
	assert.Equal(t, int64(0), f.Stats().InFlight)
}

func TestFetchSharedLoadThenExpiry(t *testing.T) {
	ctx := context.Background()
	f, _, clock := newTestFetcher()
	ttl := 2000 * time.Millisecond

	var calls atomic.Int64
	release := make(chan struct{})
	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("clients"), nil
	}

	first := make(chan []byte, 1)
	go func() {
		v, _ := f.Fetch(ctx, "GET:/api/clients", loader, WithTTL(ttl))
		first <- v
	}()
	require.Eventually(t, func() bool { return f.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	second := make(chan []byte, 1)
	go func() {
		v, _ := f.Fetch(ctx, "GET:/api/clients", loader, WithTTL(ttl))
		second <- v
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	v1, v2 := <-first, <-second
	assert.Same(t, &v1[0], &v2[0])
	assert.Equal(t, int64(1), calls.Load())

	clock.Advance(2100 * time.Millisecond)
	_, err := f.Fetch(ctx, "GET:/api/clients", loader, WithTTL(ttl))
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetchLoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()

	loadErr := errors.New("boom")
	_, err := f.Fetch(ctx, "k", func(context.Context) ([]byte, error) { return nil, loadErr })
	require.ErrorIs(t, err, loadErr)

	var calls atomic.Int64
	v, err := f.Fetch(ctx, "k", countingLoader(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(v))
	assert.Equal(t, int64(1), calls.Load())

	st := f.Stats()
	assert.Equal(t, int64(2), st.Loads)
	assert.Equal(t, int64(1), st.LoadErrors)
}

func TestFetchVersionMismatchReloads(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()

	var calls atomic.Int64
	_, err := f.Fetch(ctx, "k", countingLoader(&calls, "v1"), WithVersion("1"))
	require.NoError(t, err)

	v, err := f.Fetch(ctx, "k", countingLoader(&calls, "v1-again"), WithVersion("1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	v, err = f.Fetch(ctx, "k", countingLoader(&calls, "v2"), WithVersion("2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(v))
	assert.Equal(t, int64(2), calls.Load())

	// no version at read time accepts whatever is stored
	v, err = f.Fetch(ctx, "k", countingLoader(&calls, "unused"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(v))
}

func TestFetchBackgroundRefresh(t *testing.T) {
	ctx := context.Background()
	f, _, clock := newTestFetcher()

	_, err := f.Fetch(ctx, "k", func(context.Context) ([]byte, error) { return []byte("old"), nil })
	require.NoError(t, err)

	var calls atomic.Int64
	refresh := countingLoader(&calls, "new")

	// younger than refreshAfter: no refresh
	v, err := f.Fetch(ctx, "k", refresh, WithBackgroundRefresh(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "old", string(v))
	f.Wait()
	assert.Equal(t, int64(0), calls.Load())

	clock.Advance(2 * time.Minute)
	v, err = f.Fetch(ctx, "k", refresh, WithBackgroundRefresh(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "old", string(v), "the stale value is served while refreshing")

	f.Wait()
	assert.Equal(t, int64(1), calls.Load())

	v, err = f.Fetch(ctx, "k", refresh)
	require.NoError(t, err)
	assert.Equal(t, "new", string(v))
	assert.Equal(t, int64(1), f.Stats().Refreshes)
}

func TestFetchBackgroundRefreshFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()

	_, err := f.Fetch(ctx, "k", func(context.Context) ([]byte, error) { return []byte("old"), nil })
	require.NoError(t, err)

	_, err = f.Fetch(ctx, "k", func(context.Context) ([]byte, error) { return nil, errBackend }, WithBackgroundRefresh(0))
	require.NoError(t, err)
	f.Wait()

	v, err := f.Fetch(ctx, "k", func(context.Context) ([]byte, error) { return nil, errBackend })
	require.NoError(t, err)
	assert.Equal(t, "old", string(v))
}

func TestFetchWithoutDedupeLoadsIndependently(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()

	var calls atomic.Int64
	release := make(chan struct{})
	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(ctx, "k", loader, WithoutDedupe())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
}

func TestFetchCallerCancellationDoesNotFailOthers(t *testing.T) {
	f, _, _ := newTestFetcher()

	release := make(chan struct{})
	loader := func(ctx context.Context) ([]byte, error) {
		<-release
		return []byte("v"), ctx.Err()
	}

	cancelled, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(cancelled, "k", loader)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	other := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), "k", loader)
		other <- err
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	assert.NoError(t, <-other)
}

func TestFetchStoreWriteFailureStillReturnsValue(t *testing.T) {
	f := NewFetcher(failingStore{err: errBackend})
	v, err := f.Fetch(context.Background(), "k", func(context.Context) ([]byte, error) { return []byte("v"), nil })
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestLookupReportsHit(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()
	load := func(context.Context) ([]byte, error) { return []byte("v"), nil }

	res, err := f.Lookup(ctx, "k", load)
	require.NoError(t, err)
	assert.False(t, res.Hit)

	res, err = f.Lookup(ctx, "k", load)
	require.NoError(t, err)
	assert.True(t, res.Hit)
}

func TestInvalidateByPattern(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()
	load := func(context.Context) ([]byte, error) { return []byte("v"), nil }

	for _, k := range []string{"GET:/api/clients", "GET:/api/clients?id=5", "GET:/api/assets"} {
		_, err := f.Fetch(ctx, k, load)
		require.NoError(t, err)
	}

	n, err := f.Invalidate(ctx, "clients")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := f.Lookup(ctx, "GET:/api/assets", load)
	require.NoError(t, err)
	assert.True(t, res.Hit)

	res, err = f.Lookup(ctx, "GET:/api/clients?id=5", load)
	require.NoError(t, err)
	assert.False(t, res.Hit)
}

func TestFetchJSON(t *testing.T) {
	f, _, _ := newTestFetcher()
	type client struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	got, err := FetchJSON[[]client](context.Background(), f, "GET:/api/clients", func(context.Context) ([]byte, error) {
		return []byte(`[{"id":1,"name":"Acme"}]`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []client{{ID: 1, Name: "Acme"}}, got)

	_, err = FetchJSON[[]client](context.Background(), f, "GET:/bad", func(context.Context) ([]byte, error) {
		return []byte(`not json`), nil
	})
	assert.Error(t, err)
}

func TestFetcherStats(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFetcher()
	load := func(context.Context) ([]byte, error) { return []byte("v"), nil }

	_, _ = f.Fetch(ctx, "a", load)
	_, _ = f.Fetch(ctx, "a", load)
	_, _ = f.Fetch(ctx, "a", load)
	_, _ = f.Fetch(ctx, "b", load)

	st := f.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
	assert.Equal(t, int64(2), st.Loads)
	assert.Equal(t, 2, st.Size)
	assert.InDelta(t, 0.5, st.HitRate, 0.0001)
}
