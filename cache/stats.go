package cache

import (
	"context"
	"errors"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of cache activity
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Invalidated int64   `json:"invalidated"`
	Loads       int64   `json:"loads"`
	LoadErrors  int64   `json:"load_errors"`
	Shared      int64   `json:"shared"`
	Refreshes   int64   `json:"background_refreshes"`
	InFlight    int64   `json:"in_flight"`
	Size        int     `json:"size"`
}

// StatsReporter is implemented by anything that can report Stats
type StatsReporter interface {
	Stats() Stats
}

// InstrumentedStore decorates a Store with hit/miss and write counters
type InstrumentedStore struct {
	Store

	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	invalidated atomic.Int64
}

// Instrument wraps store with counters
func Instrument(store Store) *InstrumentedStore {
	return &InstrumentedStore{Store: store}
}

// Get counts a hit or a miss around the wrapped Get. Backend errors other
// than ErrNotFound count as misses too.
func (s *InstrumentedStore) Get(ctx context.Context, key, version string) (*Entry, error) {
	entry, err := s.Store.Get(ctx, key, version)
	if err != nil {
		s.misses.Add(1)
		return nil, err
	}
	s.hits.Add(1)
	return entry, nil
}

func (s *InstrumentedStore) Set(ctx context.Context, entry *Entry) error {
	if err := s.Store.Set(ctx, entry); err != nil {
		return err
	}
	s.sets.Add(1)
	return nil
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	if err := s.Store.Delete(ctx, key); err != nil {
		return err
	}
	s.deletes.Add(1)
	return nil
}

func (s *InstrumentedStore) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	n, err := s.Store.DeleteMatching(ctx, pattern)
	s.invalidated.Add(int64(n))
	return n, err
}

// Stats implements StatsReporter
func (s *InstrumentedStore) Stats() Stats {
	st := Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Sets:        s.sets.Load(),
		Deletes:     s.deletes.Load(),
		Invalidated: s.invalidated.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	if sizer, ok := s.Store.(Sizer); ok {
		if n, err := sizer.Len(context.Background()); err == nil {
			st.Size = n
		}
	}
	return st
}

// Len implements Sizer when the wrapped store does
func (s *InstrumentedStore) Len(ctx context.Context) (int, error) {
	sizer, ok := s.Store.(Sizer)
	if !ok {
		return 0, errors.New("store cannot count entries")
	}
	return sizer.Len(ctx)
}
