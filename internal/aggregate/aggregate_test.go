package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/kernel"
)

func constantPowerSamples(n int, powerW, speedKmh float64) []kernel.TrackSample {
	samples := make([]kernel.TrackSample, n)
	distKm := 0.0
	for i := 0; i < n; i++ {
		samples[i] = kernel.TrackSample{
			DistKm: distKm,
			EleM:   0,
			SpeedKmh: speedKmh,
			PowerW: powerW,
			TimeSec: float64(i),
		}
		distKm += speedKmh / 3600
	}
	return samples
}

func TestNormalizedPowerEqualsAveragePowerWhenConstant(t *testing.T) {
	samples := constantPowerSamples(120, 250, 30)
	np := NormalizedPower(samples, 30)
	assert.InDelta(t, 250, np, 1)
}

func TestNormalizedPowerExceedsAverageWhenVariable(t *testing.T) {
	samples := constantPowerSamples(120, 250, 30)
	// Inject a hard surge: NP penalizes variability via the 4th power.
	for i := 50; i < 60; i++ {
		samples[i].PowerW = 600
	}
	avg := AvgPower(samples)
	np := NormalizedPower(samples, 30)
	assert.Greater(t, np, avg)
}

func TestAvgPowerIsTimeWeighted(t *testing.T) {
	samples := []kernel.TrackSample{
		{TimeSec: 0, PowerW: 100},
		{TimeSec: 10, PowerW: 200},
		{TimeSec: 20, PowerW: 300},
	}
	assert.InDelta(t, 250, AvgPower(samples), 1e-9)
}

func TestWorkKJIntegratesPowerOverTime(t *testing.T) {
	samples := []kernel.TrackSample{
		{TimeSec: 0, PowerW: 200},
		{TimeSec: 10, PowerW: 200},
	}
	assert.InDelta(t, 2.0, WorkKJ(samples), 1e-9) // 200W * 10s = 2000J = 2kJ
}

func TestElevationGainMIgnoresDescents(t *testing.T) {
	samples := []kernel.TrackSample{
		{EleM: 0}, {EleM: 10}, {EleM: 5}, {EleM: 20},
	}
	assert.Equal(t, 25.0, ElevationGainM(samples))
}

func TestRollupComputesWithinRange(t *testing.T) {
	samples := []kernel.TrackSample{
		{DistKm: 0, TimeSec: 0, PowerW: 200},
		{DistKm: 1, TimeSec: 120, PowerW: 220},
		{DistKm: 2, TimeSec: 240, PowerW: 240},
		{DistKm: 3, TimeSec: 360, PowerW: 260},
	}
	seg := kernel.UserSegment{ID: "climb", StartDistM: 1000, EndDistM: 3000}
	rollup := Rollup(seg, samples)
	assert.Equal(t, "climb", rollup.ID)
	assert.Equal(t, 240.0, rollup.DurationSec)
}

func TestSummarizePopulatesTopLineStats(t *testing.T) {
	cfg := config.Empty()
	samples := constantPowerSamples(100, 250, 30)
	result := Summarize(samples, nil, cfg)
	assert.Greater(t, result.TotalTimeSec, 0.0)
	assert.Greater(t, result.DistanceKm, 0.0)
	assert.InDelta(t, 250, result.AvgPowerW, 1)
}

func TestSummarizeEmptySamplesIsZeroValue(t *testing.T) {
	cfg := config.Empty()
	result := Summarize(nil, nil, cfg)
	assert.Equal(t, 0.0, result.TotalTimeSec)
}
