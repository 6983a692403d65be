// Package runner implements course-level batch parallelism (spec.md §5):
// it runs a set of independent simulation requests concurrently, bounded by
// a worker limit, using errgroup the same way the wider example pack
// already does for fan-out work.
package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/ridesim/internal/engine"
	"github.com/banshee-data/ridesim/internal/kernel"
	"github.com/banshee-data/ridesim/internal/metrics"
)

// BatchItem pairs a label with a simulation request, so results can be
// matched back to their input after concurrent execution.
type BatchItem struct {
	Label   string
	Request engine.Request
}

// BatchResult is one completed (or failed) item from a batch run.
type BatchResult struct {
	Label  string
	Result kernel.SimulationResult
	Err    error
}

// RunBatch runs every item concurrently, bounded by maxConcurrency, and
// returns one BatchResult per item in the same order as the input. A
// per-item error is captured in that item's BatchResult rather than
// aborting the whole batch: one infeasible course should not sink the rest
// of a multi-rider comparison.
func RunBatch(ctx context.Context, items []BatchItem, maxConcurrency int) []BatchResult {
	results := make([]BatchResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			metrics.SimulationsStarted.Inc()
			result, err := engine.Simulate(gctx, item.Request)
			results[i] = BatchResult{Label: item.Label, Result: result, Err: err}
			if err != nil {
				metrics.SimulationsFailed.Inc()
			} else {
				metrics.SimulationsCompleted.Inc()
				metrics.SolverIterations.Observe(float64(result.Diagnostics.SolverIterations))
				if len(result.Samples) > 0 && hasBonked(result) {
					metrics.BonkCount.Inc()
				}
			}
			// RunBatch never aborts the group on a per-item failure; it always
			// returns nil here so errgroup keeps running the remaining items.
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func hasBonked(result kernel.SimulationResult) bool {
	for _, s := range result.Samples {
		if s.WPrimeJ <= 0 {
			return true
		}
	}
	return false
}
