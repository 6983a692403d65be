// Package pacing implements the Pacing Strategy (spec.md §4.5): it turns
// the solver's current candidate base power, the current segment's
// terrain, and the solver's running finish-time estimate into a target
// power for that segment, choosing between an aggressive-uphill, momentum,
// or recovery regime and respecting any explicit user-segment power
// override.
package pacing

import (
	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/kernel"
	"github.com/banshee-data/ridesim/internal/physics"
	"github.com/banshee-data/ridesim/internal/rider"
)

// Regime names which pacing rule produced a target power.
type Regime string

const (
	RegimeOverride         Regime = "OVERRIDE"
	RegimeAggressiveUphill Regime = "AGGRESSIVE_UPHILL"
	RegimeMomentum         Regime = "MOMENTUM"
	RegimeRecovery         Regime = "RECOVERY"
)

// Decision is the pacing output for one segment evaluation.
type Decision struct {
	PowerW float64
	Regime Regime
}

// TargetPower chooses a target power for the given segment from the
// solver's current candidate base power pBase. estimatedFinishSec is the
// solver's running estimate of total event finish time, used only to look
// up the duration-cap factor that bounds the result from above.
// currentSpeedKmh is the rider's speed entering the segment; headwindMPS
// and env feed the Momentum regime's local force balance.
func TargetPower(seg kernel.AtomicSegment, userSeg *kernel.UserSegment, profile rider.Profile, pBase, estimatedFinishSec, currentSpeedKmh, headwindMPS float64, env kernel.Environment, cfg *config.TuningConfig) Decision {
	if userSeg != nil && userSeg.TargetPowerW != nil {
		return Decision{PowerW: capToDurationLimit(*userSeg.TargetPowerW, estimatedFinishSec, profile, cfg), Regime: RegimeOverride}
	}

	var d Decision
	switch {
	case seg.AvgGrade > 0:
		d = Decision{
			PowerW: pBase * (1 + cfg.GetAggressiveUphillAlpha()*seg.AvgGrade),
			Regime: RegimeAggressiveUphill,
		}
	case seg.AvgGrade >= cfg.GetMomentumGradeFloor():
		targetMPS := cfg.GetMomentumTargetKmh() / 3.6
		needed := physics.PowerForSpeed(targetMPS, seg.AvgGrade, seg.Crr, headwindMPS, profile, env, cfg)
		floor := cfg.GetMomentumMinFraction() * pBase
		p := needed
		if floor > p {
			p = floor
		}
		d = Decision{PowerW: p, Regime: RegimeMomentum}
	default:
		d = Decision{PowerW: 0, Regime: RegimeRecovery}
	}

	d.PowerW = capToDurationLimit(d.PowerW, estimatedFinishSec, profile, cfg)
	return d
}

// capToDurationLimit clamps a positive target power above by the
// duration-cap factor applied to the rider's CP, preserving 0 (coast) as
// a distinct freewheeling signal rather than a below-minimum power.
func capToDurationLimit(powerW, estimatedFinishSec float64, profile rider.Profile, cfg *config.TuningConfig) float64 {
	if powerW <= 0 {
		return 0
	}
	limit := rider.DurationCapFactor(estimatedFinishSec, cfg) * profile.CPWatts
	if powerW > limit {
		return limit
	}
	return powerW
}
