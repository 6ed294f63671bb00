package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunAll runs every target concurrently. Targets own disjoint store paths
// and attempt counters, so runs share no mutable state; one target's fatal
// error does not stop the others. The returned map always holds an entry per
// target; the error is the first fatal run error, if any.
func (e *Engine) RunAll(ctx context.Context, targets []Target, budget int) (map[string]*RunResult, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]*RunResult, len(targets))
	)

	for _, target := range targets {
		g.Go(func() error {
			res, err := e.Run(ctx, target, budget)
			mu.Lock()
			results[target.Name] = res
			mu.Unlock()
			return err
		})
	}

	err := g.Wait()
	return results, err
}
