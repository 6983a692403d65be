package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/course"
	"github.com/banshee-data/ridesim/internal/kernel"
	"github.com/banshee-data/ridesim/internal/rider"
)

func flatCourseSource(lengthM float64, stepM float64) course.Source {
	n := int(lengthM/stepM) + 1
	points := make([]course.RawPoint, n)
	degStep := stepM / 111000.0
	for i := 0; i < n; i++ {
		points[i] = course.RawPoint{Lat: float64(i) * degStep, Lon: 0, Ele: 0}
	}
	return course.RawSource{Points: points}
}

func testProfile() rider.Profile {
	anchors := []rider.PDCAnchor{
		{DurationSec: 300, PowerW: 320},
		{DurationSec: 1200, PowerW: 280},
		{DurationSec: 3600, PowerW: 250},
		{DurationSec: 7200, PowerW: 230},
	}
	pdc, _ := rider.NewPowerDurationCurve(anchors, 0.07)
	return rider.Profile{
		Name: "test", CPWatts: 250, WPrimeJ: 20000, PDC: pdc,
		CdA: 0.32, RiderMassKg: 70, BikeMassKg: 9, Drivetrain: rider.DrivetrainUltegra,
	}
}

func TestSimulateWithPacingPolicyFinishesFlatCourse(t *testing.T) {
	req := Request{
		Course:  flatCourseSource(10000, 10),
		Profile: testProfile(),
		Env:     kernel.DefaultEnvironment(),
		Cfg:     config.Empty(),
	}
	result, err := Simulate(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, result.TotalTimeSec, 0.0)
	assert.InDelta(t, 10, result.DistanceKm, 0.2)
	assert.NotEmpty(t, result.Diagnostics.RunID)
}

func TestSimulateSolverConvergesToFeasibleBasePower(t *testing.T) {
	req := Request{
		Course:  flatCourseSource(10000, 10),
		Profile: testProfile(),
		Env:     kernel.DefaultEnvironment(),
		Cfg:     config.Empty(),
	}
	result, err := Simulate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Diagnostics.Converged)
	assert.True(t, result.Diagnostics.Feasible)
	// The solver's realized normalized power should sit at or just under the
	// rider's power-duration limit for the resulting finish time, not far
	// below it: it searches for the maximum feasible base power.
	limit := testProfile().PDC.PowerAt(result.TotalTimeSec)
	assert.LessOrEqual(t, result.NormalizedPowerW, limit+req.Cfg.GetFeasibilityToleranceW()+1)
	assert.Greater(t, result.NormalizedPowerW, limit*0.8)
}

func TestSimulateHonorsUserSegmentOverride(t *testing.T) {
	overridePower := 400.0
	req := Request{
		Course:  flatCourseSource(5000, 10),
		Profile: testProfile(),
		Env:     kernel.DefaultEnvironment(),
		Cfg:     config.Empty(),
		UserSegments: []kernel.UserSegment{
			{ID: "surge", StartDistM: 0, EndDistM: 5000, TargetPowerW: &overridePower},
		},
	}
	result, err := Simulate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.PerUserSegment, 1)
	// The override is still clamped by the duration cap (1.2·CP for a ride
	// this short), so 400 W comes out as 300 W.
	expected := math.Min(overridePower, rider.DurationCapFactor(result.TotalTimeSec, req.Cfg)*req.Profile.CPWatts)
	assert.InDelta(t, expected, result.PerUserSegment[0].AvgPowerW, 5)
}
