package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent loads of the same key into one call.
type Deduplicator struct {
	group    singleflight.Group
	inFlight atomic.Int64
	shared   atomic.Int64
}

// NewDeduplicator creates an empty deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Do runs fn once per key among concurrent callers. Every caller that joins
// before fn settles gets the same value and error; shared reports whether the
// result was handed to more than one caller.
//
// fn runs on a context detached from ctx's cancellation so one caller giving
// up does not fail the others. A caller whose ctx ends stops waiting and gets
// ctx.Err().
func (d *Deduplicator) Do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, error, bool) {
	loadCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		d.inFlight.Add(1)
		defer d.inFlight.Add(-1)
		return fn(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			d.shared.Add(1)
		}
		v, _ := res.Val.([]byte)
		return v, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

// InFlight returns the number of loads currently running
func (d *Deduplicator) InFlight() int64 {
	return d.inFlight.Load()
}

// Shared returns how many callers have received a shared result
func (d *Deduplicator) Shared() int64 {
	return d.shared.Load()
}
