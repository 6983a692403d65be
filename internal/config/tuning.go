// Package config provides the typed, JSON-backed configuration for the
// simulation kernel's numeric safety constants. It replaces the "heterogeneous
// keyword bag" pattern the kernel was distilled from (spec.md §9, Design
// Note "Dynamic configuration") with an explicit record.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/ridesim.defaults.json"

// TuningConfig is the root configuration for kernel tuning parameters.
// Every field is optional; omitted fields fall back to the values named in
// spec.md. Partial configs (only overriding one or two constants) are safe.
type TuningConfig struct {
	// Course Loader & Cleaner (spec.md §4.1)
	MinPointSpacingM      *float64 `json:"min_point_spacing_m,omitempty"`
	ElevationSmoothWindow *int     `json:"elevation_smooth_window,omitempty"`
	GradeClamp            *float64 `json:"grade_clamp,omitempty"`

	// Adaptive Segmenter (spec.md §4.2)
	AtomicChunkM        *float64 `json:"atomic_chunk_m,omitempty"`
	GradeChangeTrigger  *float64 `json:"grade_change_trigger,omitempty"`
	HeadingChangeDeg    *float64 `json:"heading_change_deg,omitempty"`
	ShortTailMergeM     *float64 `json:"short_tail_merge_m,omitempty"`

	// Rider Model (spec.md §4.3)
	RiegelExponent *float64           `json:"riegel_exponent,omitempty"`
	DurationCapAnchorsH *[]float64    `json:"duration_cap_anchor_hours,omitempty"`
	DurationCapFactors  *[]float64    `json:"duration_cap_factors,omitempty"`
	SkibaTauBase   *float64 `json:"skiba_tau_base,omitempty"`
	SkibaTauScale  *float64 `json:"skiba_tau_scale,omitempty"`
	SkibaTauDecay  *float64 `json:"skiba_tau_decay,omitempty"`
	RecoveryEMAAlpha *float64 `json:"recovery_ema_alpha,omitempty"`

	// Physics Kernel (spec.md §4.4, §6)
	GravityMPS2         *float64 `json:"gravity_mps2,omitempty"`
	AddedMassKg         *float64 `json:"added_mass_kg,omitempty"`
	EpsilonMPS          *float64 `json:"epsilon_mps,omitempty"`
	ForceMaxGMultiplier *float64 `json:"force_max_g_multiplier,omitempty"`
	ColdStartThresholdKmh *float64 `json:"cold_start_threshold_kmh,omitempty"`
	NewtonMaxIterations   *int     `json:"newton_max_iterations,omitempty"`
	NewtonToleranceMPS    *float64 `json:"newton_tolerance_mps,omitempty"`
	NewtonInitialGuessKmh *float64 `json:"newton_initial_guess_kmh,omitempty"`
	WalkingClampKmh       *float64 `json:"walking_clamp_kmh,omitempty"`
	WalkingMetabolicW     *float64 `json:"walking_metabolic_w,omitempty"`
	HighSpeedBrakeThresholdKmh *float64 `json:"high_speed_brake_threshold_kmh,omitempty"`
	DefaultVBrakeKmh      *float64 `json:"default_v_brake_kmh,omitempty"`
	VMaxKmh               *float64 `json:"v_max_kmh,omitempty"`

	// Pacing Strategy (spec.md §4.5)
	AggressiveUphillAlpha *float64 `json:"aggressive_uphill_alpha,omitempty"`
	MomentumGradeFloor    *float64 `json:"momentum_grade_floor,omitempty"`
	MomentumMinFraction   *float64 `json:"momentum_min_fraction,omitempty"`
	MomentumTargetKmh     *float64 `json:"momentum_target_kmh,omitempty"`

	// Solver (spec.md §4.6)
	SolverMinPowerW       *float64 `json:"solver_min_power_w,omitempty"`
	SolverMaxPowerW       *float64 `json:"solver_max_power_w,omitempty"`
	SolverMaxIterations   *int     `json:"solver_max_iterations,omitempty"`
	SolverConvergenceW    *float64 `json:"solver_convergence_w,omitempty"`
	FeasibilityToleranceW *float64 `json:"feasibility_tolerance_w,omitempty"`
	DefaultCruiseKmh      *float64 `json:"default_cruise_kmh,omitempty"`

	// Result Aggregator (spec.md §4.7)
	NormalizedPowerWindowSec *float64 `json:"normalized_power_window_sec,omitempty"`
}

// Empty returns a TuningConfig with every field unset.
func Empty() *TuningConfig {
	return &TuningConfig{}
}

// Load reads a TuningConfig from a JSON file on disk. The path must end in
// .json and the file must be under 1MB; both checks exist to keep a
// malformed or oversized config from being silently accepted.
func Load(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefault loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and a few parent directories so it works
// whether invoked from the repository root or from a package test directory.
// Panics if the file cannot be found; intended for tests and for binaries
// that have already validated config availability.
func MustLoadDefault() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from the repository root or adjust candidates")
}

// Validate checks that any set fields hold sane values.
func (c *TuningConfig) Validate() error {
	if c.GradeClamp != nil && (*c.GradeClamp <= 0 || *c.GradeClamp > 1) {
		return fmt.Errorf("grade_clamp must be in (0, 1], got %f", *c.GradeClamp)
	}
	if c.AtomicChunkM != nil && *c.AtomicChunkM <= 0 {
		return fmt.Errorf("atomic_chunk_m must be positive, got %f", *c.AtomicChunkM)
	}
	if c.SolverMinPowerW != nil && c.SolverMaxPowerW != nil && *c.SolverMinPowerW >= *c.SolverMaxPowerW {
		return fmt.Errorf("solver_min_power_w (%f) must be less than solver_max_power_w (%f)", *c.SolverMinPowerW, *c.SolverMaxPowerW)
	}
	if c.DurationCapAnchorsH != nil && c.DurationCapFactors != nil && len(*c.DurationCapAnchorsH) != len(*c.DurationCapFactors) {
		return fmt.Errorf("duration_cap_anchor_hours and duration_cap_factors must have equal length")
	}
	return nil
}

func (c *TuningConfig) f(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (c *TuningConfig) i(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Get* accessors apply the spec.md-documented default when a field is unset.

func (c *TuningConfig) GetMinPointSpacingM() float64      { return c.f(c.MinPointSpacingM, 5) }
func (c *TuningConfig) GetElevationSmoothWindow() int     { return c.i(c.ElevationSmoothWindow, 10) }
func (c *TuningConfig) GetGradeClamp() float64            { return c.f(c.GradeClamp, 0.25) }
func (c *TuningConfig) GetAtomicChunkM() float64          { return c.f(c.AtomicChunkM, 20) }
func (c *TuningConfig) GetGradeChangeTrigger() float64    { return c.f(c.GradeChangeTrigger, 0.005) }
func (c *TuningConfig) GetHeadingChangeDeg() float64      { return c.f(c.HeadingChangeDeg, 15) }
func (c *TuningConfig) GetShortTailMergeM() float64       { return c.f(c.ShortTailMergeM, 5) }
func (c *TuningConfig) GetRiegelExponent() float64        { return c.f(c.RiegelExponent, 0.07) }

func (c *TuningConfig) GetDurationCapAnchorsH() []float64 {
	if c.DurationCapAnchorsH != nil {
		return *c.DurationCapAnchorsH
	}
	return []float64{1, 3, 5, 8}
}

func (c *TuningConfig) GetDurationCapFactors() []float64 {
	if c.DurationCapFactors != nil {
		return *c.DurationCapFactors
	}
	return []float64{1.20, 1.10, 1.05, 0.95}
}

func (c *TuningConfig) GetSkibaTauBase() float64       { return c.f(c.SkibaTauBase, 316) }
func (c *TuningConfig) GetSkibaTauScale() float64      { return c.f(c.SkibaTauScale, 546) }
func (c *TuningConfig) GetSkibaTauDecay() float64      { return c.f(c.SkibaTauDecay, 0.01) }
func (c *TuningConfig) GetRecoveryEMAAlpha() float64   { return c.f(c.RecoveryEMAAlpha, 0.2) }

func (c *TuningConfig) GetGravityMPS2() float64 { return c.f(c.GravityMPS2, 9.798) }
func (c *TuningConfig) GetAddedMassKg() float64 { return c.f(c.AddedMassKg, 1.0) }
func (c *TuningConfig) GetEpsilonMPS() float64  { return c.f(c.EpsilonMPS, 0.2) }
func (c *TuningConfig) GetForceMaxGMultiplier() float64 { return c.f(c.ForceMaxGMultiplier, 1.5) }
func (c *TuningConfig) GetColdStartThresholdKmh() float64 { return c.f(c.ColdStartThresholdKmh, 3) }
func (c *TuningConfig) GetNewtonMaxIterations() int       { return c.i(c.NewtonMaxIterations, 10) }
func (c *TuningConfig) GetNewtonToleranceMPS() float64    { return c.f(c.NewtonToleranceMPS, 0.05) }
func (c *TuningConfig) GetNewtonInitialGuessKmh() float64 { return c.f(c.NewtonInitialGuessKmh, 20) }
func (c *TuningConfig) GetWalkingClampKmh() float64       { return c.f(c.WalkingClampKmh, 5) }
func (c *TuningConfig) GetWalkingMetabolicW() float64     { return c.f(c.WalkingMetabolicW, 30) }
func (c *TuningConfig) GetHighSpeedBrakeThresholdKmh() float64 {
	return c.f(c.HighSpeedBrakeThresholdKmh, 50)
}
func (c *TuningConfig) GetDefaultVBrakeKmh() float64 { return c.f(c.DefaultVBrakeKmh, 65) }
func (c *TuningConfig) GetVMaxKmh() float64          { return c.f(c.VMaxKmh, 100) }

func (c *TuningConfig) GetAggressiveUphillAlpha() float64 { return c.f(c.AggressiveUphillAlpha, 2.5) }
func (c *TuningConfig) GetMomentumGradeFloor() float64    { return c.f(c.MomentumGradeFloor, -0.02) }
func (c *TuningConfig) GetMomentumMinFraction() float64   { return c.f(c.MomentumMinFraction, 0.8) }
func (c *TuningConfig) GetMomentumTargetKmh() float64     { return c.f(c.MomentumTargetKmh, 35) }

func (c *TuningConfig) GetSolverMinPowerW() float64     { return c.f(c.SolverMinPowerW, 10) }
func (c *TuningConfig) GetSolverMaxPowerW() float64     { return c.f(c.SolverMaxPowerW, 1500) }
func (c *TuningConfig) GetSolverMaxIterations() int     { return c.i(c.SolverMaxIterations, 30) }
func (c *TuningConfig) GetSolverConvergenceW() float64  { return c.f(c.SolverConvergenceW, 0.1) }
func (c *TuningConfig) GetFeasibilityToleranceW() float64 { return c.f(c.FeasibilityToleranceW, 0.5) }
func (c *TuningConfig) GetDefaultCruiseKmh() float64    { return c.f(c.DefaultCruiseKmh, 25) }

func (c *TuningConfig) GetNormalizedPowerWindowSec() float64 {
	return c.f(c.NormalizedPowerWindowSec, 30)
}
