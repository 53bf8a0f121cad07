package finisher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/dexasm/constpool"
)

// FinishAll finishes independent units concurrently, at most limit at a
// time (no limit when limit <= 0). Units share nothing but r, which must be
// safe for concurrent use; a frozen constpool.Pool is. The results are in
// the order of units. The first failure cancels units not yet started.
func FinishAll(ctx context.Context, units []*Unit, r constpool.Resolver, limit int) ([]*InsnList, error) {
	out := make([]*InsnList, len(units))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, err := u.Finish(r)
			if err != nil {
				return fmt.Errorf("%s: %w", u.Name, err)
			}
			out[i] = l
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
