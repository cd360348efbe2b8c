// Package cache provides a response cache for REST endpoints with TTL and
// version based validity, pattern invalidation and request deduplication.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a cache entry is not found, expired or
	// stored under a different version
	ErrNotFound = errors.New("cache entry not found or expired")
)

// Entry represents a cached payload with metadata
type Entry struct {
	Key        string        `json:"key"`
	Value      []byte        `json:"value"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
	Version    string        `json:"version,omitempty"`
}

// Valid reports whether the entry may be served at now for the requested
// version. An empty version accepts any stored version. A non-positive TTL
// never expires.
func (e *Entry) Valid(now time.Time, version string) bool {
	if e == nil {
		return false
	}
	if version != "" && version != e.Version {
		return false
	}
	return !e.Expired(now)
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.InsertedAt) >= e.TTL
}

// Age returns how long ago the entry was inserted.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.InsertedAt)
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns the entry for key if it is valid for version.
	// Returns ErrNotFound on a miss.
	Get(ctx context.Context, key, version string) (*Entry, error)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Set stores an entry under entry.Key, replacing any previous one
	Set(ctx context.Context, entry *Entry) error
}

// Invalidator removes entries
type Invalidator interface {
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every entry whose key contains pattern and
	// returns how many were removed
	DeleteMatching(ctx context.Context, pattern string) (int, error)

	Clear(ctx context.Context) error
}

// Store is the main interface that combines all cache operations
type Store interface {
	Reader
	Writer
	Invalidator
}

// Sizer is implemented by stores that can count their entries
type Sizer interface {
	Len(ctx context.Context) (int, error)
}

// Clock abstracts time so expiry can be tested deterministically
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
