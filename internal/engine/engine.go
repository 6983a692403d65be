// Package engine is the simulation composition root (spec.md §2): it wires
// course, segment, rider, physics, pacing, solver, and aggregate together
// into the single Simulate entry point every other collaborator calls.
// None of those packages import engine; engine imports all of them.
package engine

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/banshee-data/ridesim/internal/aggregate"
	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/course"
	"github.com/banshee-data/ridesim/internal/kernel"
	"github.com/banshee-data/ridesim/internal/pacing"
	"github.com/banshee-data/ridesim/internal/physics"
	"github.com/banshee-data/ridesim/internal/rider"
	"github.com/banshee-data/ridesim/internal/segment"
	"github.com/banshee-data/ridesim/internal/solver"
)

// ErrStalled is returned when a single AtomicSegment step makes no forward
// progress at all, or when a trial produces no samples.
var ErrStalled = errors.New("engine: simulation stalled")

// Request describes one simulation to run. There is no "target duration"
// mode: the solver always searches for the maximum base power the rider
// can sustain (spec.md §4.6); power never comes from an externally chosen
// finish time.
type Request struct {
	Course       course.Source
	Profile      rider.Profile
	UserSegments []kernel.UserSegment
	Env          kernel.Environment

	Cfg *config.TuningConfig
}

// preparedCourse is the one-time course-dependent work shared across every
// solver trial for a given Request.
type preparedCourse struct {
	points      []kernel.TrackPoint
	segments    []kernel.AtomicSegment
	segEndDistM []float64
	totalDistM  float64
}

func prepareCourse(req Request) (*preparedCourse, error) {
	points, err := course.Load(req.Course, req.Cfg)
	if err != nil {
		return nil, err
	}
	segs, err := segment.Segment(points, req.Cfg)
	if err != nil {
		return nil, err
	}
	ends := make([]float64, len(segs))
	for i, s := range segs {
		ends[i] = points[s.EndIdx].Dist
	}
	return &preparedCourse{
		points:      points,
		segments:    segs,
		segEndDistM: ends,
		totalDistM:  points[len(points)-1].Dist,
	}, nil
}

// Simulate runs one full simulation per Request and returns the aggregated
// result. It always invokes the solver (spec.md §4.6): there is no path
// that skips feasibility checking.
func Simulate(ctx context.Context, req Request) (kernel.SimulationResult, error) {
	pc, err := prepareCourse(req)
	if err != nil {
		return kernel.SimulationResult{}, err
	}
	runID := uuid.NewString()

	runTrial := func(ctx context.Context, baseWatts, estimatedFinishSec float64) (solver.TrialResult, error) {
		samples, bonked, _, err := runOnce(ctx, pc, req, baseWatts, estimatedFinishSec)
		if err != nil {
			return solver.TrialResult{}, err
		}
		if len(samples) == 0 {
			return solver.TrialResult{}, ErrStalled
		}
		np := aggregate.NormalizedPower(samples, req.Cfg.GetNormalizedPowerWindowSec())
		return solver.TrialResult{
			FinishTimeSec:    samples[len(samples)-1].TimeSec,
			NormalizedPowerW: np,
			Bonked:           bonked,
		}, nil
	}
	limitPower := func(finishTimeSec float64) float64 {
		return req.Profile.PDC.PowerAt(finishTimeSec)
	}

	trial, solveErr := solver.Solve(ctx, pc.totalDistM, runTrial, limitPower, req.Cfg)

	replayCtx := ctx
	var infeasible *solver.InfeasibleCourseError
	var deadline *solver.DeadlineExceededError
	switch {
	case errors.As(solveErr, &infeasible):
		trial = infeasible.ClosestTrial
	case errors.As(solveErr, &deadline) && deadline.HasBestTrial:
		trial = deadline.BestTrial
		// ctx is already done here, so the best trial is replayed without
		// its cancellation to build the preliminary result.
		replayCtx = context.WithoutCancel(ctx)
	case solveErr != nil:
		return kernel.SimulationResult{}, solveErr
	}

	samples, _, diag, err := runOnce(replayCtx, pc, req, trial.PowerW, trial.EstimatedFinishSec)
	if err != nil {
		return kernel.SimulationResult{}, err
	}
	result := aggregate.Summarize(samples, req.UserSegments, req.Cfg)
	diag.RunID = runID
	diag.SolverIterations = trial.Iterations
	diag.Converged = solveErr == nil
	diag.Feasible = trial.Feasible
	diag.PreliminaryResult = solveErr != nil
	result.Diagnostics = diag
	return result, nil
}

// runOnce steps through the whole course exactly once, one physics.Advance
// call per AtomicSegment (spec.md §3, §6: one TrackSample per AtomicSegment
// boundary), at the given candidate base power and finish-time estimate.
func runOnce(ctx context.Context, pc *preparedCourse, req Request, baseWatts, estimatedFinishSec float64) ([]kernel.TrackSample, bool, kernel.Diagnostics, error) {
	wbal := rider.NewWPrimeBalance(req.Profile, req.Cfg)

	var (
		pos, v, t                  float64
		samples                    []kernel.TrackSample
		walkingDistM, brakingDistM float64
	)
	samples = make([]kernel.TrackSample, 0, len(pc.segments))

	for _, seg := range pc.segments {
		select {
		case <-ctx.Done():
			return nil, false, kernel.Diagnostics{}, ctx.Err()
		default:
		}

		userSeg := overrideFor(pos, req.UserSegments)
		headwind := headwindComponent(seg.AvgHeading, req.Env)
		decision := pacing.TargetPower(seg, userSeg, req.Profile, baseWatts, estimatedFinishSec, v*3.6, headwind, req.Env, req.Cfg)

		in := physics.Input{
			SpeedMPS:           v,
			PowerW:             decision.PowerW,
			Grade:              seg.AvgGrade,
			LengthM:            seg.Length,
			Crr:                seg.Crr,
			HeadwindMPS:        headwind,
			DistanceRemainingM: pc.totalDistM - pos,
			Bonked:             wbal.Bonked(),
			Profile:            req.Profile,
			Env:                req.Env,
			Cfg:                req.Cfg,
		}

		out, err := physics.Advance(in)
		if err != nil {
			return nil, false, kernel.Diagnostics{}, err
		}
		if out.DistanceM <= 0 {
			return nil, false, kernel.Diagnostics{}, ErrStalled
		}

		wbal.Update(out.PowerOutW, out.DtSec)
		t += out.DtSec
		pos += out.DistanceM
		v = out.SpeedMPS

		switch out.State {
		case physics.StateWalk:
			walkingDistM += out.DistanceM
		case physics.StateBraking:
			brakingDistM += out.DistanceM
		}

		samples = append(samples, kernel.TrackSample{
			DistKm:   pos / 1000,
			EleM:     elevationAt(pc.points, pos),
			SpeedKmh: v * 3.6,
			PowerW:   out.PowerOutW,
			TimeSec:  t,
			WPrimeJ:  wbal.Balance(),
			Walking:  out.State == physics.StateWalk,
		})
	}

	diag := kernel.Diagnostics{WalkingDistanceM: walkingDistM, BrakingDistanceM: brakingDistM}
	return samples, wbal.Bonked(), diag, nil
}

// overrideFor returns the user segment covering the given distance, if any.
func overrideFor(posM float64, segs []kernel.UserSegment) *kernel.UserSegment {
	for i := range segs {
		if posM >= segs[i].StartDistM && posM < segs[i].EndDistM {
			return &segs[i]
		}
	}
	return nil
}

// headwindComponent resolves the wind vector against a heading. WindBearingRad
// is the direction the wind blows FROM (kernel.Environment's documented
// convention): when it aligns with the rider's heading, the wind is coming
// from straight ahead, a headwind, so the component is positive. A wind
// blowing from behind (bearing opposite the heading) yields a negative,
// helping tailwind component.
func headwindComponent(headingRad float64, env kernel.Environment) float64 {
	if env.WindSpeedMPS == 0 {
		return 0
	}
	return env.WindSpeedMPS * math.Cos(headingRad-env.WindBearingRad)
}

// elevationAt interpolates course elevation at a given cumulative distance.
func elevationAt(points []kernel.TrackPoint, distM float64) float64 {
	idx := sort.Search(len(points), func(i int) bool { return points[i].Dist >= distM })
	if idx <= 0 {
		return points[0].Ele
	}
	if idx >= len(points) {
		return points[len(points)-1].Ele
	}
	prev, next := points[idx-1], points[idx]
	span := next.Dist - prev.Dist
	if span <= 0 {
		return prev.Ele
	}
	frac := (distM - prev.Dist) / span
	return prev.Ele + frac*(next.Ele-prev.Ele)
}
