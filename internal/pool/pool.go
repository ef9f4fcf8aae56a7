// Package pool runs independent work items with bounded parallelism.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	appLog "classfinder/internal/log"
)

// DefaultLimit is the number of items in flight when the caller does not
// configure one.
const DefaultLimit = 25

// Run calls worker once for every item with at most limit calls in flight.
// Completion order is unspecified. Run returns after every worker returned.
//
// Workers own their failure handling: nothing a worker does stops the
// remaining items from running. limit < 1 is treated as 1.
func Run[T any](ctx context.Context, items []T, limit int, worker func(context.Context, T)) {
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, item := range items {
		item := item
		g.Go(func() error {
			worker(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

// Progress counts completions and logs every Every items and at Total.
// It is safe for concurrent use; counts are approximate ordering-wise.
type Progress struct {
	Label string
	Total int
	Every int

	done atomic.Int64
}

// Done records one completion and returns the running count.
func (p *Progress) Done() int {
	n := int(p.done.Add(1))
	every := p.Every
	if every <= 0 {
		every = DefaultLimit
	}
	if n%every == 0 || n == p.Total {
		appLog.Info(p.Label+" progress", "completed", n, "total", p.Total)
	}
	return n
}

// Count returns completions so far.
func (p *Progress) Count() int {
	return int(p.done.Load())
}
