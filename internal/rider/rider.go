// Package rider models a single rider: their Critical Power (CP) and
// anaerobic work capacity (W'), their Power-Duration Curve (PDC), their
// aerodynamic and mass parameters, and the stateful W'-balance model used to
// track fatigue accumulation during a simulated ride (spec.md §4.3).
package rider

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/ridesim/internal/config"
)

// ErrInvalidProfile is returned when a Profile fails basic sanity checks.
var ErrInvalidProfile = errors.New("rider: invalid profile")

// Drivetrain identifies one groupset in the closed enumeration spec.md §6
// documents. cmd/ridesim reads it from the rider file's `drivetrain` field.
type Drivetrain string

const (
	DrivetrainDuraAce     Drivetrain = "duraAce"
	DrivetrainUltegra     Drivetrain = "ultegra"
	Drivetrain105         Drivetrain = "105"
	DrivetrainTiagra      Drivetrain = "tiagra"
	DrivetrainSora        Drivetrain = "sora"
	DrivetrainClaris      Drivetrain = "claris"
	DrivetrainSIS         Drivetrain = "sis"
	DrivetrainRedAXS      Drivetrain = "redAxs"
	DrivetrainForceAXS    Drivetrain = "forceAxs"
	DrivetrainRival       Drivetrain = "rival"
	DrivetrainApex        Drivetrain = "apex"
	DrivetrainSuperRecord Drivetrain = "superRecord"
	DrivetrainRecord      Drivetrain = "Record"
	DrivetrainChorus      Drivetrain = "Chorus"
	DrivetrainPotenza     Drivetrain = "Potenza"
	DrivetrainAthena      Drivetrain = "Athena"
	DrivetrainVeloce      Drivetrain = "Veloce"
	DrivetrainCentaur     Drivetrain = "Centaur"
	DrivetrainKForce      Drivetrain = "kForce"
)

// defaultBaseEfficiency is used for an empty or unrecognized drivetrain key.
const defaultBaseEfficiency = 0.962

// baseEfficiency maps each groupset to its base mechanical efficiency
// (spec.md §6: range [0.940, 0.965]), newer/higher-tier groupsets running
// tighter tolerances and lower friction than entry-level ones.
var baseEfficiency = map[Drivetrain]float64{
	DrivetrainDuraAce:     0.965,
	DrivetrainUltegra:     0.963,
	Drivetrain105:         0.962,
	DrivetrainTiagra:      0.958,
	DrivetrainSora:        0.953,
	DrivetrainClaris:      0.948,
	DrivetrainSIS:         0.940,
	DrivetrainRedAXS:      0.964,
	DrivetrainForceAXS:    0.962,
	DrivetrainRival:       0.958,
	DrivetrainApex:        0.952,
	DrivetrainSuperRecord: 0.965,
	DrivetrainRecord:      0.963,
	DrivetrainChorus:      0.960,
	DrivetrainPotenza:     0.955,
	DrivetrainAthena:      0.953,
	DrivetrainVeloce:      0.948,
	DrivetrainCentaur:     0.945,
	DrivetrainKForce:      0.960,
}

// BaseEfficiency returns the drivetrain's power-independent base efficiency,
// falling back to defaultBaseEfficiency for an empty or unrecognized key.
func (d Drivetrain) BaseEfficiency() float64 {
	if eta, ok := baseEfficiency[d]; ok {
		return eta
	}
	return defaultBaseEfficiency
}

// Efficiency applies spec.md §6's power-dependent correction to the
// drivetrain's base efficiency: drivetrains run measurably less efficiently
// at very low power (more time at extreme chain angles, slower chain speed)
// and the correction saturates outside [50, 400] W, where it was fit.
func (d Drivetrain) Efficiency(powerW float64) float64 {
	p := powerW
	if p < 50 {
		p = 50
	}
	if p > 400 {
		p = 400
	}
	eta := (2.1246*math.Log(p) - 11.5 + 100*d.BaseEfficiency()) / 100
	if eta < 0 {
		return 0
	}
	if eta > 1 {
		return 1
	}
	return eta
}

// PDCAnchor is one (duration, power) point on a rider's measured
// power-duration curve.
type PDCAnchor struct {
	DurationSec float64
	PowerW      float64
}

// PowerDurationCurve interpolates a rider's best sustainable power for any
// duration. Within the measured range it interpolates piecewise-linearly in
// log-duration space (the curve is markedly non-linear on a linear time
// axis but close to linear on a log one); outside it, it extrapolates using
// Riegel's formula.
type PowerDurationCurve struct {
	anchors        []PDCAnchor
	interpolant    *interp.PiecewiseLinear
	riegelExponent float64
}

// NewPowerDurationCurve builds a PDC from anchor points, sorted ascending
// by duration. At least one anchor is required.
func NewPowerDurationCurve(anchors []PDCAnchor, riegelExponent float64) (*PowerDurationCurve, error) {
	if len(anchors) == 0 {
		return nil, ErrInvalidProfile
	}
	sorted := append([]PDCAnchor(nil), anchors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DurationSec < sorted[j].DurationSec })

	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, a := range sorted {
		if a.DurationSec <= 0 || a.PowerW <= 0 {
			return nil, ErrInvalidProfile
		}
		xs[i] = math.Log(a.DurationSec)
		ys[i] = a.PowerW
	}

	var pl interp.PiecewiseLinear
	if len(sorted) >= 2 {
		if err := pl.Fit(xs, ys); err != nil {
			return nil, err
		}
	}

	return &PowerDurationCurve{anchors: sorted, interpolant: &pl, riegelExponent: riegelExponent}, nil
}

// PowerAt returns the rider's best sustainable power for a given duration
// in seconds. Durations within the anchor range interpolate; durations
// outside it extrapolate from the nearest anchor via Riegel's formula,
// P(t) = P_ref * (t_ref / t) ^ exponent.
func (c *PowerDurationCurve) PowerAt(durationSec float64) float64 {
	if durationSec <= 0 {
		durationSec = 1
	}
	first, last := c.anchors[0], c.anchors[len(c.anchors)-1]

	switch {
	case durationSec < first.DurationSec:
		return riegelPower(first, durationSec, c.riegelExponent)
	case durationSec > last.DurationSec:
		return riegelPower(last, durationSec, c.riegelExponent)
	case len(c.anchors) == 1:
		return first.PowerW
	default:
		return c.interpolant.Predict(math.Log(durationSec))
	}
}

func riegelPower(ref PDCAnchor, durationSec, exponent float64) float64 {
	return ref.PowerW * math.Pow(ref.DurationSec/durationSec, exponent)
}

// Profile is a rider's full set of simulation parameters.
type Profile struct {
	Name        string
	CPWatts     float64
	WPrimeJ     float64
	PDC         *PowerDurationCurve
	CdA         float64
	RiderMassKg float64
	BikeMassKg  float64
	Drivetrain  Drivetrain
}

// TotalMassKg returns the combined rider and bike mass.
func (p Profile) TotalMassKg() float64 {
	return p.RiderMassKg + p.BikeMassKg
}

// Validate checks that a Profile's fields are physically sane.
func (p Profile) Validate() error {
	if p.CPWatts <= 0 || p.WPrimeJ <= 0 || p.CdA <= 0 || p.RiderMassKg <= 0 || p.BikeMassKg <= 0 {
		return ErrInvalidProfile
	}
	return nil
}

// DurationCapFactor interpolates the configured duration-cap anchor table
// (spec.md §4.3) to find the multiple of CP that is sustainable for an
// event of the given duration. With the default table the factor is above 1
// up to about 7 hours and falls to 0.95 at 8 hours; durations outside the
// table take the nearest anchor's factor.
func DurationCapFactor(durationSec float64, cfg *config.TuningConfig) float64 {
	anchorsH := cfg.GetDurationCapAnchorsH()
	factors := cfg.GetDurationCapFactors()
	durationH := durationSec / 3600

	if durationH <= anchorsH[0] {
		return factors[0]
	}
	if durationH >= anchorsH[len(anchorsH)-1] {
		return factors[len(factors)-1]
	}
	for i := 1; i < len(anchorsH); i++ {
		if durationH <= anchorsH[i] {
			frac := (durationH - anchorsH[i-1]) / (anchorsH[i] - anchorsH[i-1])
			return factors[i-1] + frac*(factors[i]-factors[i-1])
		}
	}
	return factors[len(factors)-1]
}

// WPrimeBalance tracks a rider's remaining anaerobic work capacity over the
// course of a ride, using Skiba's differential W'-balance model: above CP,
// capacity is consumed linearly; at or below CP, it recovers toward the
// rider's maximum W' with a time constant that itself depends on how far
// below CP the rider is recovering.
type WPrimeBalance struct {
	max    float64
	bal    float64
	ema    float64
	bonked bool
	cfg    *config.TuningConfig
	cp     float64
}

// NewWPrimeBalance starts a balance tracker at full capacity.
func NewWPrimeBalance(profile Profile, cfg *config.TuningConfig) *WPrimeBalance {
	return &WPrimeBalance{max: profile.WPrimeJ, bal: profile.WPrimeJ, ema: profile.WPrimeJ, cfg: cfg, cp: profile.CPWatts}
}

// Update advances the balance by dtSec seconds at the given power output,
// dispatching to Consume or Recover as appropriate, and returns the
// resulting balance in joules.
func (w *WPrimeBalance) Update(powerW, dtSec float64) float64 {
	if powerW > w.cp {
		w.Consume(powerW, dtSec)
	} else {
		w.Recover(powerW, dtSec)
	}
	alpha := w.cfg.GetRecoveryEMAAlpha()
	w.ema = alpha*w.bal + (1-alpha)*w.ema
	if w.bal <= 0 {
		w.bonked = true
	}
	return w.bal
}

// Consume reduces the balance by the work done above CP.
func (w *WPrimeBalance) Consume(powerW, dtSec float64) {
	deficit := (powerW - w.cp) * dtSec
	w.bal -= deficit
	if w.bal < 0 {
		w.bal = 0
	}
}

// Recover restores balance toward max using the Skiba tau(DCP) model:
// tau = tauBase + tauScale * exp(-tauDecay * DCP), where DCP is how far
// below CP the recovery power sits.
func (w *WPrimeBalance) Recover(powerW, dtSec float64) {
	dcp := w.cp - powerW
	if dcp < 0 {
		dcp = 0
	}
	tau := w.cfg.GetSkibaTauBase() + w.cfg.GetSkibaTauScale()*math.Exp(-w.cfg.GetSkibaTauDecay()*dcp)
	w.bal += (w.max - w.bal) * (1 - math.Exp(-dtSec/tau))
	if w.bal > w.max {
		w.bal = w.max
	}
}

// Balance returns the current W'-balance in joules.
func (w *WPrimeBalance) Balance() float64 { return w.bal }

// Bonked reports whether the rider has ever fully depleted W'. The flag is
// sticky: once a rider bonks they stay bonked for the rest of the ride.
func (w *WPrimeBalance) Bonked() bool { return w.bonked }
