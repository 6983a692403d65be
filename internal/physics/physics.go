// Package physics implements the distance-driven force-balance simulation
// kernel (spec.md §4.4): a pure, stateless Advance step that turns a
// rider's power output and an AtomicSegment's length, grade, and rolling
// resistance into a work-energy speed update, applying the safeguards
// (traction limit, cold-start recovery, walking clamp, high-speed soft
// brake, absolute speed cap) that keep the simulation numerically and
// physically sane.
package physics

import (
	"errors"
	"math"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/kernel"
	"github.com/banshee-data/ridesim/internal/rider"
)

// ErrNumericalInstability is returned when a computed speed is non-finite.
// Cold-start non-convergence is not numerical instability: it recovers
// locally to v_final = 0, per spec.md §4.4 and §7.
var ErrNumericalInstability = errors.New("physics: numerical instability")

// State names the regime Advance operated in for a given step.
type State string

const (
	StateColdStart   State = "COLD_START"
	StateCruise      State = "CRUISE"
	StateWalk        State = "WALK"
	StateBraking     State = "BRAKING"
	StateBonk        State = "BONK"
	StateEndOfCourse State = "END_OF_COURSE"
)

// AirDensity computes rho from altitude and temperature per spec.md §6:
// rho = (1.293 - 0.00426*T_c) * exp(-0.709*altitude_m/7000).
func AirDensity(env kernel.Environment) float64 {
	return (1.293 - 0.00426*env.TempC) * math.Exp(-0.709*env.AltitudeM/7000)
}

// Input is everything Advance needs to compute one AtomicSegment step.
type Input struct {
	SpeedMPS           float64
	PowerW             float64
	Grade              float64
	LengthM            float64 // AtomicSegment length d, the distance driver of the step
	Crr                float64
	HeadwindMPS        float64 // positive slows the rider, negative (tailwind) helps
	DistanceRemainingM float64
	Bonked             bool
	Profile            rider.Profile
	Env                kernel.Environment
	Cfg                *config.TuningConfig
}

// Output is the result of one Advance step.
type Output struct {
	SpeedMPS  float64
	DistanceM float64
	DtSec     float64 // time elapsed covering DistanceM, may be truncated at end of course
	State     State
	PowerOutW float64 // actual power re-derived from the capped propulsive force, not the commanded input
}

// resistance holds the three resistive force components at a representative
// speed, plus their sum, so callers can both net them against propulsion and
// average them afterward for the actual-power re-derivation (spec.md §4.4
// step 8).
type resistance struct {
	gravity, rolling, aero, total float64
}

func resistanceAt(v, grade, crr, headwind, m, g, rho float64, cdA float64) resistance {
	denom := math.Sqrt(1 + grade*grade)
	sinTheta := grade / denom
	cosTheta := 1 / denom

	fGrav := m * g * sinTheta
	fRoll := m * g * cosTheta * crr
	vRel := v + headwind
	fAero := 0.5 * rho * cdA * vRel * math.Abs(vRel)

	return resistance{gravity: fGrav, rolling: fRoll, aero: fAero, total: fGrav + fRoll + fAero}
}

// propulsiveForce computes F_prop = eta(P)*P / max(v, eps), torque-limited
// to F_MAX = forceMaxGMultiplier * m * g (spec.md §4.4 steps 2-3).
func propulsiveForce(v, power float64, profile rider.Profile, m, g float64, cfg *config.TuningConfig) float64 {
	eps := cfg.GetEpsilonMPS()
	vForProp := v
	if vForProp < eps {
		vForProp = eps
	}
	eta := profile.Drivetrain.Efficiency(power)
	fProp := eta * power / vForProp

	fMax := cfg.GetForceMaxGMultiplier() * m * g
	if fProp > fMax {
		fProp = fMax
	}
	return fProp
}

// PowerForSpeed returns the power needed to sustain speed v (m/s) against
// the given grade, rolling resistance, and headwind, accounting for
// drivetrain efficiency. Used by the Momentum pacing regime (spec.md §4.5)
// to find the power that holds a target speed on gently rolling terrain.
// Efficiency depends weakly on power, so this fixed-points it in a handful
// of iterations rather than solving it exactly.
func PowerForSpeed(v, grade, crr, headwind float64, profile rider.Profile, env kernel.Environment, cfg *config.TuningConfig) float64 {
	m := profile.TotalMassKg() + cfg.GetAddedMassKg()
	g := cfg.GetGravityMPS2()
	rho := AirDensity(env)
	res := resistanceAt(v, grade, crr, headwind, m, g, rho, profile.CdA)
	if res.total <= 0 {
		return 0
	}

	power := res.total * v
	for i := 0; i < 5; i++ {
		eta := profile.Drivetrain.Efficiency(power)
		if eta <= 0 {
			break
		}
		power = res.total * v / eta
	}
	return power
}

// Advance computes the rider's speed and distance covered over one
// AtomicSegment from a commanded power output, applying the physics
// kernel's state machine and safeguards.
func Advance(in Input) (Output, error) {
	cfg := in.Cfg
	m := in.Profile.TotalMassKg() + cfg.GetAddedMassKg()
	g := cfg.GetGravityMPS2()
	rho := AirDensity(in.Env)

	coldThreshold := cfg.GetColdStartThresholdKmh() / 3.6
	walkThreshold := cfg.GetWalkingClampKmh() / 3.6
	brakeThreshold := cfg.GetHighSpeedBrakeThresholdKmh() / 3.6
	brakeTarget := cfg.GetDefaultVBrakeKmh() / 3.6
	vMax := cfg.GetVMaxKmh() / 3.6

	d := in.LengthM
	v0 := in.SpeedMPS

	var vFinal, dt, fProp float64
	var resAvg resistance
	var state State

	if v0 < coldThreshold {
		vFinal = solveColdStart(in, m, g, rho, cfg)
		state = StateColdStart
		fProp = propulsiveForce(vFinal, in.PowerW, in.Profile, m, g, cfg)
		resAvg = resistanceAt(vFinal, in.Grade, in.Crr, in.HeadwindMPS, m, g, rho, in.Profile.CdA)
		if vFinal+v0 > 0 {
			dt = 2 * d / (v0 + vFinal)
		}
	} else {
		res := resistanceAt(v0, in.Grade, in.Crr, in.HeadwindMPS, m, g, rho, in.Profile.CdA)
		fProp = propulsiveForce(v0, in.PowerW, in.Profile, m, g, cfg)
		a := (fProp - res.total) / m

		vFinal = math.Sqrt(math.Max(0, v0*v0+2*a*d))
		if math.IsNaN(vFinal) || math.IsInf(vFinal, 0) {
			return Output{}, ErrNumericalInstability
		}
		if v0+vFinal > 0 {
			dt = 2 * d / (v0 + vFinal)
		}
		resAvg = res
		state = StateCruise
	}

	if in.Bonked {
		state = StateBonk
	}

	powerOut := in.PowerW

	switch {
	case vFinal < walkThreshold && in.Grade > 0:
		vFinal = walkThreshold
		if v0+vFinal > 0 {
			dt = 2 * d / (v0 + vFinal)
		}
		powerOut = cfg.GetWalkingMetabolicW()
		state = StateWalk
	case vFinal > brakeThreshold && in.Grade < 0 && in.PowerW == 0:
		if vFinal > brakeTarget {
			vFinal = brakeTarget
			if v0+vFinal > 0 {
				dt = 2 * d / (v0 + vFinal)
			}
		}
		state = StateBraking
	}

	if vFinal > vMax {
		vFinal = vMax
		if v0+vFinal > 0 {
			dt = 2 * d / (v0 + vFinal)
		}
	}

	if state != StateWalk {
		// spec.md §4.4 step 8: W_actual = (F_prop_capped + F_resist_avg)*d.
		wActual := (fProp + resAvg.total) * d
		if dt > 0 {
			powerOut = wActual / dt
		} else {
			powerOut = 0
		}
	}

	distance := d
	if in.DistanceRemainingM > 0 && distance > in.DistanceRemainingM {
		frac := in.DistanceRemainingM / distance
		distance = in.DistanceRemainingM
		dt *= frac
		state = StateEndOfCourse
	}

	return Output{SpeedMPS: vFinal, DistanceM: distance, DtSec: dt, State: state, PowerOutW: powerOut}, nil
}

// solveColdStart finds a steady-state speed (net force ~= 0) for the
// current power and grade using Newton-Raphson, used when the rider is
// starting from a near-zero speed where the cruise integrator's 1/v
// propulsive-force term is unstable. Non-convergence recovers to v = 0
// rather than propagating an error (spec.md §4.4, §7).
func solveColdStart(in Input, m, g, rho float64, cfg *config.TuningConfig) float64 {
	v := cfg.GetNewtonInitialGuessKmh() / 3.6
	tol := cfg.GetNewtonToleranceMPS()
	maxIter := cfg.GetNewtonMaxIterations()

	f := func(v float64) float64 {
		res := resistanceAt(v, in.Grade, in.Crr, in.HeadwindMPS, m, g, rho, in.Profile.CdA)
		fProp := propulsiveForce(v, in.PowerW, in.Profile, m, g, cfg)
		return fProp - res.total
	}
	const h = 1e-3

	for i := 0; i < maxIter; i++ {
		fv := f(v)
		if math.Abs(fv) < tol*m {
			return math.Max(v, 0)
		}
		fPrime := (f(v+h) - f(v-h)) / (2 * h)
		if fPrime == 0 || math.IsNaN(fPrime) {
			return 0
		}
		step := fv / fPrime
		v -= step
		if v < 0 {
			v = 0
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
	}
	return 0
}
