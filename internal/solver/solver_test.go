package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ridesim/internal/config"
)

// linearCourse models a course of the given distance where finish time is
// distance/power (a fixed speed-equivalent proportional to power) and
// normalized power always equals the commanded base power exactly, so
// feasibility is driven entirely by limitPower.
func linearCourse(distanceM float64) RunTrialFunc {
	return func(ctx context.Context, baseWatts, estimatedFinishSec float64) (TrialResult, error) {
		return TrialResult{FinishTimeSec: distanceM / baseWatts, NormalizedPowerW: baseWatts}, nil
	}
}

// flatLimit returns a LimitPowerFunc that allows any power up to limitW
// regardless of finish time.
func flatLimit(limitW float64) LimitPowerFunc {
	return func(finishTimeSec float64) float64 { return limitW }
}

func TestSolveConvergesOnMaxFeasiblePower(t *testing.T) {
	cfg := config.Empty()
	trial, err := Solve(context.Background(), 100000, linearCourse(100000), flatLimit(250), cfg)
	require.NoError(t, err)
	assert.InDelta(t, 250, trial.PowerW, 2)
	assert.True(t, trial.Feasible)
}

func TestSolveReturnsInfeasibleWhenEvenMinPowerExceedsLimit(t *testing.T) {
	cfg := config.Empty()
	_, err := Solve(context.Background(), 100000, linearCourse(100000), flatLimit(1), cfg)
	var infeasible *InfeasibleCourseError
	assert.True(t, errors.As(err, &infeasible))
}

func TestSolveTreatsBonkAsInfeasibleRegardlessOfPower(t *testing.T) {
	cfg := config.Empty()
	alwaysBonks := func(ctx context.Context, baseWatts, estimatedFinishSec float64) (TrialResult, error) {
		return TrialResult{FinishTimeSec: 100000 / baseWatts, NormalizedPowerW: baseWatts, Bonked: true}, nil
	}
	_, err := Solve(context.Background(), 100000, alwaysBonks, flatLimit(1500), cfg)
	var infeasible *InfeasibleCourseError
	assert.True(t, errors.As(err, &infeasible))
}

func TestSolvePropagatesTrialError(t *testing.T) {
	cfg := config.Empty()
	boom := errors.New("boom")
	failing := func(ctx context.Context, baseWatts, estimatedFinishSec float64) (TrialResult, error) {
		return TrialResult{}, boom
	}
	_, err := Solve(context.Background(), 100000, failing, flatLimit(250), cfg)
	assert.ErrorIs(t, err, boom)
}

func TestSolveRespectsCanceledContext(t *testing.T) {
	cfg := config.Empty()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Solve(ctx, 100000, linearCourse(100000), flatLimit(250), cfg)
	if err != nil {
		assert.ErrorIs(t, err, ErrDeadlineExceeded)
	}
}

func TestSolveUpdatesFinishTimeEstimateAcrossFeasibleIterations(t *testing.T) {
	cfg := config.Empty()
	var seenEstimates []float64
	_, err := Solve(context.Background(), 100000, func(ctx context.Context, baseWatts, estimatedFinishSec float64) (TrialResult, error) {
		seenEstimates = append(seenEstimates, estimatedFinishSec)
		return TrialResult{FinishTimeSec: 100000 / baseWatts, NormalizedPowerW: baseWatts}, nil
	}, flatLimit(250), cfg)
	require.NoError(t, err)
	require.Greater(t, len(seenEstimates), 2)
	// The seed estimate (distance / default cruise speed) only drives the
	// very first trial; once a feasible trial lands, later trials see its
	// finish time instead.
	seed := 100000 / (cfg.GetDefaultCruiseKmh() / 3.6)
	assert.Equal(t, seed, seenEstimates[0])
	assert.NotEqual(t, seed, seenEstimates[len(seenEstimates)-1])
}

func TestBracketSolvesMultipleCoursesConcurrently(t *testing.T) {
	cfg := config.Empty()
	items := []BracketItem{
		{DistanceM: 100000, RunTrial: linearCourse(100000), LimitPower: flatLimit(100)},
		{DistanceM: 100000, RunTrial: linearCourse(100000), LimitPower: flatLimit(200)},
		{DistanceM: 100000, RunTrial: linearCourse(100000), LimitPower: flatLimit(500)},
	}
	trials, err := Bracket(context.Background(), items, cfg)
	require.NoError(t, err)
	require.Len(t, trials, 3)
	assert.InDelta(t, 100, trials[0].PowerW, 2)
	assert.InDelta(t, 200, trials[1].PowerW, 2)
	assert.InDelta(t, 500, trials[2].PowerW, 2)
}

func TestBracketPropagatesFirstError(t *testing.T) {
	cfg := config.Empty()
	items := []BracketItem{{DistanceM: 100000, RunTrial: linearCourse(100000), LimitPower: flatLimit(1)}}
	_, err := Bracket(context.Background(), items, cfg)
	var infeasible *InfeasibleCourseError
	assert.True(t, errors.As(err, &infeasible))
}
