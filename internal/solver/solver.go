// Package solver implements the Pacing Optimizer (spec.md §4.6): a binary
// search for the maximum base power a rider can hold over a full course
// without bonking and without exceeding their power-duration limit for the
// resulting finish time. It knows nothing about physics, pacing, or
// riders — it is handed an opaque RunTrialFunc and LimitPowerFunc, which
// keeps it free of the import cycle a direct dependency on the simulation
// engine would create.
package solver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/ridesim/internal/config"
)

// ErrDeadlineExceeded is returned when the context is canceled or its
// deadline elapses before the solver converges.
var ErrDeadlineExceeded = errors.New("solver: deadline exceeded")

// TrialResult is the outcome of one full forward pass of the course at a
// candidate base power.
type TrialResult struct {
	FinishTimeSec    float64
	NormalizedPowerW float64
	Bonked           bool
}

// Trial is one evaluated (base power, outcome) sample produced during a
// solve. EstimatedFinishSec is the finish-time estimate the pacing
// strategy used to produce this trial, recorded so the winning trial can
// be deterministically replayed for the final result.
type Trial struct {
	PowerW              float64
	FinishTimeSec       float64
	NormalizedPowerW    float64
	EstimatedFinishSec  float64
	Iterations          int
	Feasible            bool
}

// InfeasibleCourseError is returned when no base power within the
// configured bounds is feasible. ClosestTrial is the last trial evaluated
// before the search gave up, for diagnostics.
type InfeasibleCourseError struct {
	ClosestTrial Trial
}

func (e *InfeasibleCourseError) Error() string {
	return fmt.Sprintf("solver: course infeasible, closest trial %.1fW (NP %.1fW over %.0fs, feasible=%v)",
		e.ClosestTrial.PowerW, e.ClosestTrial.NormalizedPowerW, e.ClosestTrial.FinishTimeSec, e.ClosestTrial.Feasible)
}

// DeadlineExceededError is returned when the context's deadline elapses
// before the search converges. If a feasible trial was already found,
// BestTrial carries it and HasBestTrial is true; callers should treat that
// as a usable, preliminary result rather than a hard failure.
type DeadlineExceededError struct {
	BestTrial    Trial
	HasBestTrial bool
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("solver: deadline exceeded after %d iterations, has feasible trial: %v", e.BestTrial.Iterations, e.HasBestTrial)
}

func (e *DeadlineExceededError) Unwrap() error { return ErrDeadlineExceeded }

// RunTrialFunc runs one full forward pass of the course at a constant base
// power, using the given finish-time estimate to drive the pacing
// strategy's duration cap, and reports the resulting finish time,
// normalized power, and whether the rider ever bonked.
type RunTrialFunc func(ctx context.Context, baseWatts, estimatedFinishSec float64) (TrialResult, error)

// LimitPowerFunc returns the rider's power-duration limit for a given
// finish time, i.e. the PDC evaluated at that duration.
type LimitPowerFunc func(finishTimeSec float64) float64

// Solve performs spec.md §4.6's binary search for the maximum feasible
// base power over [SolverMinPowerW, SolverMaxPowerW]. A trial is feasible
// iff the rider never bonks and its normalized power does not exceed
// limitPower(finish time) by more than FeasibilityToleranceW. The
// finish-time estimate used to drive the duration cap starts at
// distanceM / DefaultCruiseKmh and is updated to the previous feasible
// trial's finish time on every feasible iteration.
func Solve(ctx context.Context, distanceM float64, runTrial RunTrialFunc, limitPower LimitPowerFunc, cfg *config.TuningConfig) (Trial, error) {
	lo, hi := cfg.GetSolverMinPowerW(), cfg.GetSolverMaxPowerW()
	tol := cfg.GetSolverConvergenceW()
	maxIter := cfg.GetSolverMaxIterations()
	feasTol := cfg.GetFeasibilityToleranceW()

	cruiseMPS := cfg.GetDefaultCruiseKmh() / 3.6
	estimatedFinishSec := distanceM / cruiseMPS

	var best Trial
	haveBest := false
	var last Trial

	for i := 0; i < maxIter && hi-lo > tol; i++ {
		select {
		case <-ctx.Done():
			return deadlineResult(best, haveBest, last)
		default:
		}

		mid := (lo + hi) / 2
		res, err := runTrial(ctx, mid, estimatedFinishSec)
		if err != nil {
			// A trial cut short by the context is discarded and ends the
			// search the same way a boundary check does.
			if ctx.Err() != nil {
				return deadlineResult(best, haveBest, last)
			}
			return Trial{}, err
		}

		limit := limitPower(res.FinishTimeSec)
		feasible := !res.Bonked && res.NormalizedPowerW <= limit+feasTol

		last = Trial{
			PowerW:             mid,
			FinishTimeSec:      res.FinishTimeSec,
			NormalizedPowerW:   res.NormalizedPowerW,
			EstimatedFinishSec: estimatedFinishSec,
			Iterations:         i + 1,
			Feasible:           feasible,
		}

		if feasible {
			best = last
			haveBest = true
			estimatedFinishSec = res.FinishTimeSec
			lo = mid
		} else {
			hi = mid
		}
	}

	if !haveBest {
		return Trial{}, &InfeasibleCourseError{ClosestTrial: last}
	}
	return best, nil
}

func deadlineResult(best Trial, haveBest bool, last Trial) (Trial, error) {
	if haveBest {
		return best, &DeadlineExceededError{BestTrial: best, HasBestTrial: true}
	}
	return Trial{}, &DeadlineExceededError{BestTrial: last, HasBestTrial: false}
}

// BracketItem is one independent course/rider solve to run as part of a
// Bracket call.
type BracketItem struct {
	DistanceM  float64
	RunTrial   RunTrialFunc
	LimitPower LimitPowerFunc
}

// Bracket solves several independent courses concurrently, using an
// errgroup-bounded worker pool so a batch of riders or route variants can
// be resolved in parallel (spec.md §5). Each item's search is otherwise
// identical to a standalone Solve call; results land at the same index as
// their input item.
func Bracket(ctx context.Context, items []BracketItem, cfg *config.TuningConfig) ([]Trial, error) {
	results := make([]Trial, len(items))
	g, gctx := errgroup.WithContext(ctx)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			trial, err := Solve(gctx, item.DistanceM, item.RunTrial, item.LimitPower, cfg)
			if err != nil {
				return err
			}
			results[i] = trial
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
