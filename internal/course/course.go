// Package course implements the Course Loader & Cleaner (spec.md §4.1):
// it turns a sequence of possibly noisy GPS fixes into a stable, uniformly
// spaced TrackPoint sequence with bounded grade and a per-point heading.
package course

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/kernel"
)

// ErrEmptyCourse is returned when fewer than 2 points survive cleaning.
var ErrEmptyCourse = errors.New("course: fewer than 2 points after cleaning")

// ErrMalformedInput is returned when a coordinate is non-finite.
var ErrMalformedInput = errors.New("course: malformed input")

// RawPoint is a single uncleaned GPS fix.
type RawPoint struct {
	Lat float64
	Lon float64
	Ele float64
}

// Source abstracts the two input shapes spec.md §6 documents: raw
// trackpoints, or a pre-refined columnar payload that is already clean.
// This is the "narrow Course constructor trait" Design Note in spec.md §9.
type Source interface {
	isCourseSource()
}

// RawSource wraps a sequence of raw GPS fixes that still need cleaning.
type RawSource struct {
	Points []RawPoint
}

func (RawSource) isCourseSource() {}

// ColumnarPoints is the points portion of spec.md §6's pre-refined payload.
// Lat, Lon, Ele, Dist, Grade and Heading must have equal length; Surf may be
// shorter or empty, and points past its end get no surface tag. It is
// assumed already clean: Load does
// not re-run pruning or smoothing against it, only invariant validation
// (spec.md §8 property 8, "preprocessing is idempotent").
type ColumnarPoints struct {
	Lat   []float64
	Lon   []float64
	Ele   []float64
	Dist  []float64
	Grade []float64
	Surf  []string
}

// ColumnarSource wraps an already-clean columnar points payload.
type ColumnarSource struct {
	Points ColumnarPoints
}

func (ColumnarSource) isCourseSource() {}

const earthRadiusM = 6371000.0

// haversine returns the great-circle distance between two lat/lon points in
// meters.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// initialBearing returns the forward azimuth from point 1 to point 2, in
// radians, measured clockwise from north.
func initialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	phi1, phi2 := lat1*rad, lat2*rad
	dLon := (lon2 - lon1) * rad
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	theta := math.Atan2(y, x)
	return math.Mod(theta+2*math.Pi, 2*math.Pi)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Load cleans a Source into a TrackPoint sequence per spec.md §4.1: for a
// RawSource it prunes points closer than the configured minimum spacing,
// smooths elevation with a centered moving average, recomputes cumulative
// distance and clamped grade, and derives headings by forward difference.
// For a ColumnarSource it validates the supplied invariants and derives
// heading, treating the payload as already clean.
func Load(src Source, cfg *config.TuningConfig) ([]kernel.TrackPoint, error) {
	switch s := src.(type) {
	case RawSource:
		return loadRaw(s.Points, cfg)
	case ColumnarSource:
		return loadColumnar(s.Points, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown course source type %T", ErrMalformedInput, src)
	}
}

func loadRaw(points []RawPoint, cfg *config.TuningConfig) ([]kernel.TrackPoint, error) {
	for i, p := range points {
		if !isFinite(p.Lat) || !isFinite(p.Lon) || !isFinite(p.Ele) {
			return nil, fmt.Errorf("%w: point %d has non-finite coordinate", ErrMalformedInput, i)
		}
	}

	minSpacing := cfg.GetMinPointSpacingM()
	pruned := prune(points, minSpacing)
	if len(pruned) < 2 {
		return nil, ErrEmptyCourse
	}

	smoothed := smoothElevation(pruned, cfg.GetElevationSmoothWindow())

	clamp := cfg.GetGradeClamp()
	out := make([]kernel.TrackPoint, len(smoothed))
	cumDist := 0.0
	for i, p := range smoothed {
		if i > 0 {
			cumDist += haversine(smoothed[i-1].Lat, smoothed[i-1].Lon, p.Lat, p.Lon)
		}
		out[i] = kernel.TrackPoint{Lat: p.Lat, Lon: p.Lon, Ele: p.Ele, Dist: cumDist}
	}

	for i := range out {
		if i == 0 {
			out[i].Grade = 0
			continue
		}
		dd := out[i].Dist - out[i-1].Dist
		var grade float64
		if dd > 0 {
			grade = (out[i].Ele - out[i-1].Ele) / dd
		}
		out[i].Grade = clampGrade(grade, clamp)
	}

	for i := range out {
		if i < len(out)-1 {
			out[i].Heading = initialBearing(out[i].Lat, out[i].Lon, out[i+1].Lat, out[i+1].Lon)
		} else if len(out) > 1 {
			out[i].Heading = out[i-1].Heading
		}
	}

	return out, nil
}

func loadColumnar(c ColumnarPoints, cfg *config.TuningConfig) ([]kernel.TrackPoint, error) {
	n := len(c.Lat)
	if n != len(c.Lon) || n != len(c.Ele) || n != len(c.Dist) || n != len(c.Grade) {
		return nil, fmt.Errorf("%w: columnar point slices have mismatched lengths", ErrMalformedInput)
	}
	if n < 2 {
		return nil, ErrEmptyCourse
	}

	clamp := cfg.GetGradeClamp()
	out := make([]kernel.TrackPoint, n)
	for i := 0; i < n; i++ {
		if !isFinite(c.Lat[i]) || !isFinite(c.Lon[i]) || !isFinite(c.Ele[i]) || !isFinite(c.Dist[i]) {
			return nil, fmt.Errorf("%w: columnar point %d has non-finite value", ErrMalformedInput, i)
		}
		var surf string
		if i < len(c.Surf) {
			surf = c.Surf[i]
		}
		out[i] = kernel.TrackPoint{
			Lat:       c.Lat[i],
			Lon:       c.Lon[i],
			Ele:       c.Ele[i],
			Dist:      c.Dist[i],
			Grade:     clampGrade(c.Grade[i], clamp),
			SurfaceID: surf,
		}
	}
	for i := 0; i < n; i++ {
		if i < n-1 {
			out[i].Heading = initialBearing(out[i].Lat, out[i].Lon, out[i+1].Lat, out[i+1].Lon)
		} else {
			out[i].Heading = out[i-1].Heading
		}
	}
	return out, nil
}

func clampGrade(grade, limit float64) float64 {
	if grade > limit {
		return limit
	}
	if grade < -limit {
		return -limit
	}
	return grade
}

// prune drops any point within minSpacing meters of the previously retained
// point, always keeping the first point.
func prune(points []RawPoint, minSpacing float64) []RawPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]RawPoint, 0, len(points))
	out = append(out, points[0])
	last := points[0]
	for _, p := range points[1:] {
		if haversine(last.Lat, last.Lon, p.Lat, p.Lon) >= minSpacing {
			out = append(out, p)
			last = p
		}
	}
	return out
}

// smoothElevation applies a centered moving average of the given window to
// elevation only; lat/lon pass through unchanged.
func smoothElevation(points []RawPoint, window int) []RawPoint {
	if window <= 1 || len(points) == 0 {
		return points
	}
	half := window / 2
	out := make([]RawPoint, len(points))
	for i := range points {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(points) {
			hi = len(points) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += points[j].Ele
		}
		out[i] = RawPoint{Lat: points[i].Lat, Lon: points[i].Lon, Ele: sum / float64(hi-lo+1)}
	}
	return out
}
