package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore rejects every operation
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string, string) (*Entry, error) { return nil, f.err }
func (f failingStore) Set(context.Context, *Entry) error                    { return f.err }
func (f failingStore) Delete(context.Context, string) error                 { return f.err }
func (f failingStore) DeleteMatching(context.Context, string) (int, error)  { return 0, f.err }
func (f failingStore) Clear(context.Context) error                          { return f.err }

var errBackend = errors.New("backend down")
