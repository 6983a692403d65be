// Package segment implements the Adaptive Segmenter (spec.md §4.2): it
// groups a cleaned TrackPoint sequence into atomic segments of roughly
// uniform grade and heading, so the physics kernel can treat each segment
// as a constant-grade, constant-heading run.
package segment

import (
	"errors"
	"math"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/kernel"
)

// ErrTooFewPoints is returned when fewer than 2 points are given.
var ErrTooFewPoints = errors.New("segment: need at least 2 track points")

// defaultCrr is the rolling resistance coefficient used when a surface ID
// has no entry in the lookup table, or is empty.
const defaultCrr = 0.005

// surfaceCrr is the default surface-ID to rolling-resistance-coefficient
// table. Values follow common road-cycling Crr references: smooth asphalt
// is lowest, gravel and grass are markedly higher.
var surfaceCrr = map[string]float64{
	"road":    0.004,
	"asphalt": 0.004,
	"concrete": 0.0045,
	"gravel":  0.008,
	"dirt":    0.01,
	"grass":   0.012,
	"sand":    0.03,
}

// CrrForSurface returns the rolling resistance coefficient for a surface ID,
// falling back to defaultCrr for unknown or empty IDs.
func CrrForSurface(surfaceID string) float64 {
	if v, ok := surfaceCrr[surfaceID]; ok {
		return v
	}
	return defaultCrr
}

// Segment groups points into atomic segments per spec.md §4.2: it grows a
// segment until it reaches the nominal chunk length, or a grade or heading
// discontinuity forces an earlier break, then merges any resulting
// short-tail segment into its predecessor.
func Segment(points []kernel.TrackPoint, cfg *config.TuningConfig) ([]kernel.AtomicSegment, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}

	chunkM := cfg.GetAtomicChunkM()
	gradeTrig := cfg.GetGradeChangeTrigger()
	headingTrigRad := cfg.GetHeadingChangeDeg() * math.Pi / 180
	mergeM := cfg.GetShortTailMergeM()

	var raw []kernel.AtomicSegment
	start := 0
	for start < len(points)-1 {
		end := start + 1
		gradeLen := points[end].Dist - points[start].Dist
		gradeSum := points[end].Grade * gradeLen
		startHeading := points[start].Heading
		for end < len(points)-1 {
			length := points[end].Dist - points[start].Dist
			if length >= chunkM {
				break
			}
			runningGrade := points[start+1].Grade
			if gradeLen > 0 {
				runningGrade = gradeSum / gradeLen
			}
			gradeDelta := math.Abs(points[end+1].Grade - runningGrade)
			headingDelta := circularDelta(points[end].Heading, startHeading)
			if gradeDelta > gradeTrig || headingDelta > headingTrigRad {
				break
			}
			end++
			stepLen := points[end].Dist - points[end-1].Dist
			gradeSum += points[end].Grade * stepLen
			gradeLen += stepLen
		}
		raw = append(raw, buildSegment(points, start, end))
		start = end
	}

	return mergeShortTails(raw, mergeM), nil
}

func buildSegment(points []kernel.TrackPoint, start, end int) kernel.AtomicSegment {
	length := points[end].Dist - points[start].Dist

	var sumGrade, sinSum, cosSum, weight float64
	var dominantSurface string
	surfaceCount := map[string]float64{}
	for i := start; i < end; i++ {
		segLen := points[i+1].Dist - points[i].Dist
		sumGrade += points[i+1].Grade * segLen
		sinSum += math.Sin(points[i].Heading) * segLen
		cosSum += math.Cos(points[i].Heading) * segLen
		weight += segLen
		surfaceCount[points[i].SurfaceID] += segLen
	}
	avgGrade := 0.0
	avgHeading := 0.0
	if weight > 0 {
		avgGrade = sumGrade / weight
		avgHeading = math.Atan2(sinSum/weight, cosSum/weight)
		if avgHeading < 0 {
			avgHeading += 2 * math.Pi
		}
	}
	best := -1.0
	for s, w := range surfaceCount {
		if w > best {
			best = w
			dominantSurface = s
		}
	}

	return kernel.AtomicSegment{
		StartIdx:   start,
		EndIdx:     end,
		Length:     length,
		AvgGrade:   avgGrade,
		AvgHeading: avgHeading,
		Crr:        CrrForSurface(dominantSurface),
	}
}

// circularDelta returns the absolute angular distance between two headings
// in radians, in [0, pi].
func circularDelta(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return math.Abs(d - math.Pi)
}

// mergeShortTails folds any segment shorter than minLen into its
// predecessor, recomputing length but keeping the predecessor's already
// length-weighted averages approximately by re-weighting.
func mergeShortTails(segs []kernel.AtomicSegment, minLen float64) []kernel.AtomicSegment {
	if len(segs) < 2 {
		return segs
	}
	out := make([]kernel.AtomicSegment, 0, len(segs))
	out = append(out, segs[0])
	for i := 1; i < len(segs); i++ {
		cur := segs[i]
		if cur.Length < minLen {
			prev := &out[len(out)-1]
			totalLen := prev.Length + cur.Length
			if totalLen > 0 {
				prev.AvgGrade = (prev.AvgGrade*prev.Length + cur.AvgGrade*cur.Length) / totalLen
				prev.AvgHeading = mergeHeadings(prev.AvgHeading, prev.Length, cur.AvgHeading, cur.Length)
			}
			prev.Length = totalLen
			prev.EndIdx = cur.EndIdx
			continue
		}
		out = append(out, cur)
	}
	return out
}

func mergeHeadings(h1, w1, h2, w2 float64) float64 {
	sinSum := math.Sin(h1)*w1 + math.Sin(h2)*w2
	cosSum := math.Cos(h1)*w1 + math.Cos(h2)*w2
	h := math.Atan2(sinSum, cosSum)
	if h < 0 {
		h += 2 * math.Pi
	}
	return h
}
