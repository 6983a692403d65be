// Package resultio encodes and decodes SimulationResult values as JSON,
// using the field names spec.md §6 documents for the external interface,
// and the fsutil abstraction so callers can be tested against an in-memory
// filesystem instead of touching disk.
package resultio

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/ridesim/internal/fsutil"
	"github.com/banshee-data/ridesim/internal/kernel"
)

// wireResult mirrors kernel.SimulationResult with the external JSON field
// names from spec.md §6. Keeping this as a separate type means the
// internal struct's field names can evolve without breaking the wire
// format, and vice versa.
type wireResult struct {
	TotalTimeSec     float64                  `json:"total_time_sec"`
	AvgSpeedKmh      float64                  `json:"avg_speed_kmh"`
	AvgPowerW        float64                  `json:"avg_power_w"`
	NormalizedPowerW float64                  `json:"normalized_power_w"`
	WorkKJ           float64                  `json:"work_kj"`
	DistanceKm       float64                  `json:"distance_km"`
	ElevationGainM   float64                  `json:"elevation_gain_m"`
	PerUserSegment   []wireUserSegmentRollup  `json:"per_user_segment,omitempty"`
	Samples          []wireTrackSample        `json:"samples,omitempty"`
	Diagnostics      wireDiagnostics          `json:"diagnostics"`
}

type wireUserSegmentRollup struct {
	ID          string  `json:"id"`
	DurationSec float64 `json:"duration_sec"`
	AvgPowerW   float64 `json:"avg_power_w"`
	AvgSpeedKmh float64 `json:"avg_speed_kmh"`
}

type wireTrackSample struct {
	DistKm   float64 `json:"dist_km"`
	EleM     float64 `json:"ele_m"`
	SpeedKmh float64 `json:"speed_kmh"`
	PowerW   float64 `json:"power_w"`
	TimeSec  float64 `json:"time_sec"`
	WPrimeJ  float64 `json:"w_prime_j"`
	Walking  bool    `json:"walking"`
}

type wireDiagnostics struct {
	RunID             string  `json:"run_id"`
	SolverIterations  int     `json:"solver_iterations"`
	Converged         bool    `json:"converged"`
	Feasible          bool    `json:"feasible"`
	WalkingDistanceM  float64 `json:"walking_distance_m"`
	BrakingDistanceM  float64 `json:"braking_distance_m"`
	PreliminaryResult bool    `json:"preliminary_result"`
}

func toWire(r kernel.SimulationResult) wireResult {
	w := wireResult{
		TotalTimeSec:     r.TotalTimeSec,
		AvgSpeedKmh:      r.AvgSpeedKmh,
		AvgPowerW:        r.AvgPowerW,
		NormalizedPowerW: r.NormalizedPowerW,
		WorkKJ:           r.WorkKJ,
		DistanceKm:       r.DistanceKm,
		ElevationGainM:   r.ElevationGainM,
		Diagnostics: wireDiagnostics{
			RunID:             r.Diagnostics.RunID,
			SolverIterations:  r.Diagnostics.SolverIterations,
			Converged:         r.Diagnostics.Converged,
			Feasible:          r.Diagnostics.Feasible,
			WalkingDistanceM:  r.Diagnostics.WalkingDistanceM,
			BrakingDistanceM:  r.Diagnostics.BrakingDistanceM,
			PreliminaryResult: r.Diagnostics.PreliminaryResult,
		},
	}
	for _, rollup := range r.PerUserSegment {
		w.PerUserSegment = append(w.PerUserSegment, wireUserSegmentRollup{
			ID: rollup.ID, DurationSec: rollup.DurationSec, AvgPowerW: rollup.AvgPowerW, AvgSpeedKmh: rollup.AvgSpeedKmh,
		})
	}
	for _, s := range r.Samples {
		w.Samples = append(w.Samples, wireTrackSample{
			DistKm: s.DistKm, EleM: s.EleM, SpeedKmh: s.SpeedKmh, PowerW: s.PowerW,
			TimeSec: s.TimeSec, WPrimeJ: s.WPrimeJ, Walking: s.Walking,
		})
	}
	return w
}

func fromWire(w wireResult) kernel.SimulationResult {
	r := kernel.SimulationResult{
		TotalTimeSec:     w.TotalTimeSec,
		AvgSpeedKmh:      w.AvgSpeedKmh,
		AvgPowerW:        w.AvgPowerW,
		NormalizedPowerW: w.NormalizedPowerW,
		WorkKJ:           w.WorkKJ,
		DistanceKm:       w.DistanceKm,
		ElevationGainM:   w.ElevationGainM,
		Diagnostics: kernel.Diagnostics{
			RunID:             w.Diagnostics.RunID,
			SolverIterations:  w.Diagnostics.SolverIterations,
			Converged:         w.Diagnostics.Converged,
			Feasible:          w.Diagnostics.Feasible,
			WalkingDistanceM:  w.Diagnostics.WalkingDistanceM,
			BrakingDistanceM:  w.Diagnostics.BrakingDistanceM,
			PreliminaryResult: w.Diagnostics.PreliminaryResult,
		},
	}
	for _, rollup := range w.PerUserSegment {
		r.PerUserSegment = append(r.PerUserSegment, kernel.UserSegmentRollup{
			ID: rollup.ID, DurationSec: rollup.DurationSec, AvgPowerW: rollup.AvgPowerW, AvgSpeedKmh: rollup.AvgSpeedKmh,
		})
	}
	for _, s := range w.Samples {
		r.Samples = append(r.Samples, kernel.TrackSample{
			DistKm: s.DistKm, EleM: s.EleM, SpeedKmh: s.SpeedKmh, PowerW: s.PowerW,
			TimeSec: s.TimeSec, WPrimeJ: s.WPrimeJ, Walking: s.Walking,
		})
	}
	return r
}

// Encode marshals a SimulationResult to indented JSON using spec.md §6's
// field names.
func Encode(r kernel.SimulationResult) ([]byte, error) {
	return json.MarshalIndent(toWire(r), "", "  ")
}

// Decode unmarshals a SimulationResult from JSON.
func Decode(data []byte) (kernel.SimulationResult, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return kernel.SimulationResult{}, fmt.Errorf("resultio: decode: %w", err)
	}
	return fromWire(w), nil
}

// WriteFile encodes a SimulationResult and writes it to path via the given
// filesystem.
func WriteFile(fs fsutil.FileSystem, path string, r kernel.SimulationResult) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return fs.WriteFile(path, data, 0o644)
}

// ReadFile reads and decodes a SimulationResult from path via the given
// filesystem.
func ReadFile(fs fsutil.FileSystem, path string) (kernel.SimulationResult, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return kernel.SimulationResult{}, fmt.Errorf("resultio: read %s: %w", path, err)
	}
	return Decode(data)
}
