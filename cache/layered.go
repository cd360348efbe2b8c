package cache

import (
	"context"
	"errors"
)

// LayeredStore implements a two-tier store (L1: memory, L2: shared, usually
// Redis). Reads go L1 then L2 with backfill; writes go to both.
type LayeredStore struct {
	l1 Store
	l2 Store
}

// NewLayeredStore creates a layered store. Either layer may be nil.
func NewLayeredStore(l1, l2 Store) *LayeredStore {
	return &LayeredStore{l1: l1, l2: l2}
}

// Get implements Reader
func (ls *LayeredStore) Get(ctx context.Context, key, version string) (*Entry, error) {
	if ls.l1 != nil {
		if entry, err := ls.l1.Get(ctx, key, version); err == nil {
			return entry, nil
		}
	}

	if ls.l2 != nil {
		entry, err := ls.l2.Get(ctx, key, version)
		if err != nil {
			return nil, err
		}
		// Backfill L1; the entry keeps its InsertedAt so it expires when
		// the L2 copy does
		if ls.l1 != nil {
			_ = ls.l1.Set(ctx, entry)
		}
		return entry, nil
	}

	return nil, ErrNotFound
}

// Set implements Writer. It fails only if every configured layer failed.
func (ls *LayeredStore) Set(ctx context.Context, entry *Entry) error {
	var l1Err, l2Err error
	if ls.l1 != nil {
		l1Err = ls.l1.Set(ctx, entry)
	}
	if ls.l2 != nil {
		l2Err = ls.l2.Set(ctx, entry)
	}

	switch {
	case ls.l1 != nil && ls.l2 != nil:
		if l1Err != nil && l2Err != nil {
			return errors.Join(l1Err, l2Err)
		}
		return nil
	case ls.l1 != nil:
		return l1Err
	default:
		return l2Err
	}
}

// Delete implements Invalidator
func (ls *LayeredStore) Delete(ctx context.Context, key string) error {
	var errs []error
	if ls.l1 != nil {
		errs = append(errs, ls.l1.Delete(ctx, key))
	}
	if ls.l2 != nil {
		errs = append(errs, ls.l2.Delete(ctx, key))
	}
	return errors.Join(errs...)
}

// DeleteMatching implements Invalidator. The reported count is the larger of
// the two layers, since L1 usually holds a subset of L2.
func (ls *LayeredStore) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	var n1, n2 int
	var errs []error
	if ls.l1 != nil {
		n, err := ls.l1.DeleteMatching(ctx, pattern)
		n1 = n
		errs = append(errs, err)
	}
	if ls.l2 != nil {
		n, err := ls.l2.DeleteMatching(ctx, pattern)
		n2 = n
		errs = append(errs, err)
	}
	return max(n1, n2), errors.Join(errs...)
}

// Clear implements Invalidator
func (ls *LayeredStore) Clear(ctx context.Context) error {
	var errs []error
	if ls.l1 != nil {
		errs = append(errs, ls.l1.Clear(ctx))
	}
	if ls.l2 != nil {
		errs = append(errs, ls.l2.Clear(ctx))
	}
	return errors.Join(errs...)
}

// Len implements Sizer, reporting the L2 size when available
func (ls *LayeredStore) Len(ctx context.Context) (int, error) {
	for _, s := range []Store{ls.l2, ls.l1} {
		if sizer, ok := s.(Sizer); ok && s != nil {
			return sizer.Len(ctx)
		}
	}
	return 0, errors.New("no layer can count entries")
}
