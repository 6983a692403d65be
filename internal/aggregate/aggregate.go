// Package aggregate implements the Result Aggregator (spec.md §4.7): it
// reduces a raw sample trace into the summary statistics a caller actually
// wants, including a rolling-window Normalized Power and per-user-segment
// rollups.
package aggregate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/kernel"
)

// interval is one sample-to-sample step, used for time-weighted statistics.
type interval struct {
	dtSec   float64
	powerW  float64
	distM   float64
}

func intervals(samples []kernel.TrackSample) []interval {
	if len(samples) < 2 {
		return nil
	}
	out := make([]interval, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		dt := samples[i].TimeSec - samples[i-1].TimeSec
		if dt <= 0 {
			continue
		}
		out = append(out, interval{
			dtSec:  dt,
			powerW: samples[i].PowerW,
			distM:  (samples[i].DistKm - samples[i-1].DistKm) * 1000,
		})
	}
	return out
}

// NormalizedPower computes the rolling-window Normalized Power over a
// sample trace: a time-weighted rolling mean of power over windowSec,
// raised to the 4th power, averaged, and 4th-rooted.
func NormalizedPower(samples []kernel.TrackSample, windowSec float64) float64 {
	ivals := intervals(samples)
	if len(ivals) == 0 {
		return 0
	}

	fourthPowers := make([]float64, len(ivals))
	weights := make([]float64, len(ivals))

	lo := 0
	var windowPowerDt, windowDt float64
	for hi := 0; hi < len(ivals); hi++ {
		windowPowerDt += ivals[hi].powerW * ivals[hi].dtSec
		windowDt += ivals[hi].dtSec

		for windowDt > windowSec && lo < hi {
			windowPowerDt -= ivals[lo].powerW * ivals[lo].dtSec
			windowDt -= ivals[lo].dtSec
			lo++
		}

		rollingMean := 0.0
		if windowDt > 0 {
			rollingMean = windowPowerDt / windowDt
		}
		fourthPowers[hi] = rollingMean * rollingMean * rollingMean * rollingMean
		weights[hi] = ivals[hi].dtSec
	}

	meanFourth := stat.Mean(fourthPowers, weights)
	if meanFourth <= 0 {
		return 0
	}
	return math.Pow(meanFourth, 0.25)
}

// AvgPower returns the time-weighted average power.
func AvgPower(samples []kernel.TrackSample) float64 {
	ivals := intervals(samples)
	if len(ivals) == 0 {
		return 0
	}
	powers := make([]float64, len(ivals))
	weights := make([]float64, len(ivals))
	for i, iv := range ivals {
		powers[i] = iv.powerW
		weights[i] = iv.dtSec
	}
	return stat.Mean(powers, weights)
}

// WorkKJ returns total mechanical work in kilojoules.
func WorkKJ(samples []kernel.TrackSample) float64 {
	total := 0.0
	for _, iv := range intervals(samples) {
		total += iv.powerW * iv.dtSec
	}
	return total / 1000
}

// ElevationGainM returns total positive elevation change across the trace.
func ElevationGainM(samples []kernel.TrackSample) float64 {
	gain := 0.0
	for i := 1; i < len(samples); i++ {
		d := samples[i].EleM - samples[i-1].EleM
		if d > 0 {
			gain += d
		}
	}
	return gain
}

// Rollup computes the finish statistics for one user segment from the
// samples whose distance falls within [StartDistM, EndDistM], both ends
// included, so the sample at the segment's end closes its duration.
func Rollup(seg kernel.UserSegment, samples []kernel.TrackSample) kernel.UserSegmentRollup {
	var within []kernel.TrackSample
	for _, s := range samples {
		distM := s.DistKm * 1000
		if distM >= seg.StartDistM && distM <= seg.EndDistM {
			within = append(within, s)
		}
	}
	if len(within) < 2 {
		return kernel.UserSegmentRollup{ID: seg.ID}
	}
	return kernel.UserSegmentRollup{
		ID:          seg.ID,
		DurationSec: within[len(within)-1].TimeSec - within[0].TimeSec,
		AvgPowerW:   AvgPower(within),
		AvgSpeedKmh: avgSpeedKmh(within),
	}
}

func avgSpeedKmh(samples []kernel.TrackSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	distKm := samples[len(samples)-1].DistKm - samples[0].DistKm
	timeH := (samples[len(samples)-1].TimeSec - samples[0].TimeSec) / 3600
	if timeH <= 0 {
		return 0
	}
	return distKm / timeH
}

// Summarize reduces a full sample trace and the course's user segments into
// a SimulationResult's statistical fields. It does not populate Diagnostics;
// the caller (the simulation composition root) owns that.
func Summarize(samples []kernel.TrackSample, userSegs []kernel.UserSegment, cfg *config.TuningConfig) kernel.SimulationResult {
	result := kernel.SimulationResult{Samples: samples}
	if len(samples) == 0 {
		return result
	}

	last := samples[len(samples)-1]
	result.TotalTimeSec = last.TimeSec
	result.DistanceKm = last.DistKm
	result.ElevationGainM = ElevationGainM(samples)
	result.AvgPowerW = AvgPower(samples)
	result.NormalizedPowerW = NormalizedPower(samples, cfg.GetNormalizedPowerWindowSec())
	result.WorkKJ = WorkKJ(samples)
	if result.TotalTimeSec > 0 {
		result.AvgSpeedKmh = result.DistanceKm / (result.TotalTimeSec / 3600)
	}

	for _, seg := range userSegs {
		result.PerUserSegment = append(result.PerUserSegment, Rollup(seg, samples))
	}
	return result
}
