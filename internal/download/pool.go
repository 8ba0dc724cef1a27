package download

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"ineqmx/internal/dataset"
)

// FetchAll downloads sources with at most Workers transfers in flight.
// A failed source does not stop the others; all failures are joined in the
// returned error and results hold the successful fetches in input order.
func (c *Client) FetchAll(ctx context.Context, sources []dataset.Source, rawRoot string) ([]*Result, error) {
	results := make([]*Result, len(sources))
	var (
		mu   sync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			res, err := c.Fetch(ctx, src, rawRoot)
			if err != nil {
				c.logger.ErrorContext(ctx, "Download failed",
					slog.String("source", src.ID()),
					slog.String("error", err.Error()))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errors.Join(errs...)
}
