package celltrack

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach runs fn for every index in [0, n) with at most workers goroutines.
// It returns after all calls finished, so it acts as a stage barrier.
func forEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i := 0; i < n; i++ {
		if groupCtx.Err() != nil {
			break
		}
		i := i
		group.Go(func() error {
			return fn(groupCtx, i)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
