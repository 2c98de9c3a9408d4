package melody

import (
	"fmt"
	"math"
	"sort"
)

// RhythmDensity is the 3-way pacing classification of a note sequence.
type RhythmDensity string

const (
	RhythmSlow     RhythmDensity = "slow"
	RhythmModerate RhythmDensity = "moderate"
	RhythmFast     RhythmDensity = "fast"
)

// Contour is the 4-way pitch-movement classification of a note sequence.
type Contour string

const (
	ContourAscending  Contour = "ascending"
	ContourDescending Contour = "descending"
	ContourStatic     Contour = "static"
	ContourDynamic    Contour = "dynamic"
)

// Analysis is the read-only summary of a NoteSequence consumed by the
// prompt composer. Computed once, never persisted.
type Analysis struct {
	Key     string // e.g. "C major", "A minor"
	Tempo   int    // estimated BPM
	Rhythm  RhythmDensity
	Contour Contour
}

const (
	defaultTempo = 120
	minTempo     = 60
	maxTempo     = 180

	fastDurationLimit     = 0.25
	moderateDurationLimit = 0.5
)

// Analyze derives key, tempo, rhythm density and pitch contour from a
// note sequence.
func Analyze(notes NoteSequence) Analysis {
	return Analysis{
		Key:     estimateKey(notes),
		Tempo:   estimateTempo(notes),
		Rhythm:  classifyRhythm(notes),
		Contour: classifyContour(notes),
	}
}

// RhythmPhrase renders the density class as the prompt wording.
func (a Analysis) RhythmPhrase() string {
	switch a.Rhythm {
	case RhythmFast:
		return "a fast and lively rhythm"
	case RhythmModerate:
		return "a moderately paced rhythm"
	default:
		return "a slow and lyrical rhythm"
	}
}

// ContourPhrase renders the contour class as the prompt wording.
func (a Analysis) ContourPhrase() string {
	switch a.Contour {
	case ContourAscending:
		return "a predominantly ascending contour"
	case ContourDescending:
		return "a predominantly descending contour"
	case ContourDynamic:
		return "a dynamic and varied contour"
	default:
		return "a relatively static contour"
	}
}

// Krumhansl-Schmuckler key profiles.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// estimateKey correlates the duration-weighted pitch-class histogram with
// the major and minor profiles at all 12 rotations and picks the best fit.
func estimateKey(notes NoteSequence) string {
	if len(notes) == 0 {
		return "C major"
	}

	var hist [12]float64
	for _, n := range notes {
		hist[n.Pitch%12] += n.Duration
	}

	bestScore := math.Inf(-1)
	bestTonic, bestMode := 0, "major"
	for tonic := 0; tonic < 12; tonic++ {
		var rotated [12]float64
		for pc := 0; pc < 12; pc++ {
			rotated[pc] = hist[(pc+tonic)%12]
		}
		if score := correlation(rotated, majorProfile); score > bestScore {
			bestScore, bestTonic, bestMode = score, tonic, "major"
		}
		if score := correlation(rotated, minorProfile); score > bestScore {
			bestScore, bestTonic, bestMode = score, tonic, "minor"
		}
	}
	return fmt.Sprintf("%s %s", noteNames[bestTonic], bestMode)
}

// estimateTempo derives BPM from the median inter-onset interval, clamped to
// a plausible musical range. Sequences too short to carry timing information
// fall back to 120.
func estimateTempo(notes NoteSequence) int {
	if len(notes) < 2 {
		return defaultTempo
	}
	intervals := make([]float64, 0, len(notes)-1)
	for i := 1; i < len(notes); i++ {
		if ioi := notes[i].Onset - notes[i-1].Onset; ioi > 0 {
			intervals = append(intervals, ioi)
		}
	}
	if len(intervals) == 0 {
		return defaultTempo
	}
	sort.Float64s(intervals)
	bpm := int(math.Round(60 / intervals[len(intervals)/2]))
	if bpm < minTempo {
		return minTempo
	}
	if bpm > maxTempo {
		return maxTempo
	}
	return bpm
}

func classifyRhythm(notes NoteSequence) RhythmDensity {
	if len(notes) == 0 {
		return RhythmSlow
	}
	var total float64
	for _, n := range notes {
		total += n.Duration
	}
	avg := total / float64(len(notes))
	switch {
	case avg < fastDurationLimit:
		return RhythmFast
	case avg < moderateDurationLimit:
		return RhythmModerate
	default:
		return RhythmSlow
	}
}

// classifyContour counts upward vs downward intervals between consecutive
// notes. A strong imbalance reads as ascending/descending, heavy movement
// in both directions as dynamic, little movement as static.
func classifyContour(notes NoteSequence) Contour {
	if len(notes) < 2 {
		return ContourStatic
	}
	up, down := 0, 0
	for i := 1; i < len(notes); i++ {
		switch d := notes[i].Pitch - notes[i-1].Pitch; {
		case d > 0:
			up++
		case d < 0:
			down++
		}
	}
	switch {
	case float64(up) > float64(down)*1.5:
		return ContourAscending
	case float64(down) > float64(up)*1.5:
		return ContourDescending
	case up+down > len(notes)/2:
		return ContourDynamic
	default:
		return ContourStatic
	}
}

func correlation(a, b [12]float64) float64 {
	var meanA, meanB float64
	for i := 0; i < 12; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= 12
	meanB /= 12

	var num, varA, varB float64
	for i := 0; i < 12; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		num += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return num / math.Sqrt(varA*varB)
}
