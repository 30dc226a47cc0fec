package sim

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ensemble runs one independent driver per parameter set, concurrently.
type Ensemble struct {
	params  []Params
	workers int
	log     *zap.Logger
}

// NewEnsemble bounds concurrency to workers; 0 means one goroutine per member.
func NewEnsemble(params []Params, workers int, log *zap.Logger) *Ensemble {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ensemble{params: params, workers: workers, log: log}
}

// Run returns results in the order of the parameter sets. The first failure
// cancels the remaining members.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, len(e.params))

	g, ctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i, p := range e.params {
		g.Go(func() error {
			d, err := New(p, e.log.With(zap.Int("member", i)))
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			res, err := d.Run(ctx)
			results[i] = res
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
