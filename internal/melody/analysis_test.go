package melody

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// seq builds an evenly spaced note sequence from pitches.
func seq(pitches []int, ioi, duration float64) NoteSequence {
	notes := make(NoteSequence, len(pitches))
	for i, p := range pitches {
		notes[i] = Note{
			Onset:    float64(i) * ioi,
			Duration: duration,
			Pitch:    p,
			Velocity: 100,
		}
	}
	return notes
}

func TestEstimateKey(t *testing.T) {
	tests := []struct {
		name  string
		notes NoteSequence
		want  string
	}{
		{
			name:  "empty sequence defaults to C major",
			notes: nil,
			want:  "C major",
		},
		{
			name:  "C major scale",
			notes: seq([]int{60, 62, 64, 65, 67, 69, 71}, 0.5, 0.4),
			want:  "C major",
		},
		{
			name: "A minor triad weighted on the tonic",
			notes: NoteSequence{
				{Onset: 0, Duration: 2.0, Pitch: 69, Velocity: 100},
				{Onset: 2, Duration: 1.0, Pitch: 72, Velocity: 100},
				{Onset: 3, Duration: 1.0, Pitch: 76, Velocity: 100},
			},
			want: "A minor",
		},
		{
			name:  "G major scale",
			notes: seq([]int{67, 69, 71, 72, 74, 76, 78}, 0.5, 0.4),
			want:  "G major",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateKey(tt.notes))
		})
	}
}

func TestEstimateTempo(t *testing.T) {
	tests := []struct {
		name  string
		notes NoteSequence
		want  int
	}{
		{
			name:  "single note falls back to default",
			notes: seq([]int{60}, 0.5, 0.4),
			want:  120,
		},
		{
			name:  "half-second spacing is 120 BPM",
			notes: seq([]int{60, 62, 64, 65}, 0.5, 0.4),
			want:  120,
		},
		{
			name:  "very fast spacing clamps to 180",
			notes: seq([]int{60, 62, 64, 65}, 0.2, 0.1),
			want:  180,
		},
		{
			name:  "very slow spacing clamps to 60",
			notes: seq([]int{60, 62, 64}, 2.0, 1.5),
			want:  60,
		},
		{
			name: "simultaneous onsets carry no timing",
			notes: NoteSequence{
				{Onset: 0, Duration: 0.4, Pitch: 60, Velocity: 100},
				{Onset: 0, Duration: 0.4, Pitch: 64, Velocity: 100},
			},
			want: 120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateTempo(tt.notes))
		})
	}
}

func TestClassifyRhythm(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		want     RhythmDensity
	}{
		{name: "short notes are fast", duration: 0.2, want: RhythmFast},
		{name: "medium notes are moderate", duration: 0.3, want: RhythmModerate},
		{name: "long notes are slow", duration: 0.6, want: RhythmSlow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes := seq([]int{60, 62, 64}, 1.0, tt.duration)
			assert.Equal(t, tt.want, classifyRhythm(notes))
		})
	}

	t.Run("empty sequence is slow", func(t *testing.T) {
		assert.Equal(t, RhythmSlow, classifyRhythm(nil))
	})
}

func TestClassifyContour(t *testing.T) {
	tests := []struct {
		name    string
		pitches []int
		want    Contour
	}{
		{name: "rising line", pitches: []int{60, 62, 64, 65, 67}, want: ContourAscending},
		{name: "falling line", pitches: []int{67, 65, 64, 62, 60}, want: ContourDescending},
		{name: "repeated pitch", pitches: []int{60, 60, 60, 60}, want: ContourStatic},
		{name: "alternating leaps", pitches: []int{60, 67, 60, 67, 60, 67}, want: ContourDynamic},
		{name: "single note", pitches: []int{60}, want: ContourStatic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes := seq(tt.pitches, 0.5, 0.4)
			assert.Equal(t, tt.want, classifyContour(notes))
		})
	}
}

func TestAnalysis_Phrases(t *testing.T) {
	a := Analysis{Rhythm: RhythmFast, Contour: ContourAscending}
	assert.Equal(t, "a fast and lively rhythm", a.RhythmPhrase())
	assert.Equal(t, "a predominantly ascending contour", a.ContourPhrase())

	a = Analysis{Rhythm: RhythmSlow, Contour: ContourStatic}
	assert.Equal(t, "a slow and lyrical rhythm", a.RhythmPhrase())
	assert.Equal(t, "a relatively static contour", a.ContourPhrase())
}

func TestAnalyze(t *testing.T) {
	notes := seq([]int{60, 62, 64, 65, 67, 69, 71}, 0.5, 0.4)
	a := Analyze(notes)

	assert.Equal(t, "C major", a.Key)
	assert.Equal(t, 120, a.Tempo)
	assert.Equal(t, RhythmModerate, a.Rhythm)
	assert.Equal(t, ContourAscending, a.Contour)
}
