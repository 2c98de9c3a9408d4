package melody

import (
	"errors"
	"math"
	"sort"
)

// ErrNoNotesDetected is returned when no voiced segment reaches the minimum
// note duration, e.g. for silent or purely percussive input.
var ErrNoNotesDetected = errors.New("no notes detected in audio signal")

const (
	// Analysis range, musical C2..C7.
	midiC2 = 36
	midiC7 = 96

	// Voiced runs shorter than this never become notes.
	defaultMinNoteDuration = 0.1

	defaultFrameSize = 2048
	defaultHopSize   = 256

	// YIN cumulative-mean threshold for the voiced decision.
	defaultVoicingThreshold = 0.15

	// Frames quieter than this RMS are unvoiced regardless of periodicity.
	defaultSilenceGate = 1e-4

	noteVelocity = 100
)

// Extractor converts raw samples into a NoteSequence via frame-wise
// fundamental-frequency tracking and voicing segmentation.
type Extractor struct {
	MinFreq          float64
	MaxFreq          float64
	MinNoteDuration  float64
	FrameSize        int
	HopSize          int
	VoicingThreshold float64
	SilenceGate      float64
}

// NewExtractor returns an extractor with the default analysis parameters.
func NewExtractor() *Extractor {
	return &Extractor{
		MinFreq:          MIDIToHz(midiC2),
		MaxFreq:          MIDIToHz(midiC7),
		MinNoteDuration:  defaultMinNoteDuration,
		FrameSize:        defaultFrameSize,
		HopSize:          defaultHopSize,
		VoicingThreshold: defaultVoicingThreshold,
		SilenceGate:      defaultSilenceGate,
	}
}

// pitchFrame is one frame of the fundamental-frequency track.
type pitchFrame struct {
	Time   float64 // seconds of the frame start
	Freq   float64 // estimated f0 in Hz, meaningful only when Voiced
	Voiced bool
}

// Extract runs pitch tracking over the signal and segments the voiced frames
// into notes. Returns ErrNoNotesDetected when nothing usable was found.
func (e *Extractor) Extract(samples []float64, sampleRate int) (NoteSequence, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, ErrNoNotesDetected
	}

	frames := e.trackPitch(samples, sampleRate)
	notes := e.segmentNotes(frames, float64(len(samples))/float64(sampleRate))
	if len(notes) == 0 {
		return nil, ErrNoNotesDetected
	}
	return notes, nil
}

// trackPitch walks the signal frame by frame and estimates f0 with the YIN
// difference function, restricted to the configured frequency range.
func (e *Extractor) trackPitch(samples []float64, sampleRate int) []pitchFrame {
	frameSize := e.FrameSize
	if frameSize > len(samples) {
		frameSize = len(samples)
	}
	hop := e.HopSize

	tauMin := int(float64(sampleRate) / e.MaxFreq)
	if tauMin < 2 {
		tauMin = 2
	}
	tauMax := int(float64(sampleRate) / e.MinFreq)
	if tauMax > frameSize/2 {
		tauMax = frameSize / 2
	}

	var frames []pitchFrame
	for start := 0; start+frameSize <= len(samples); start += hop {
		frame := samples[start : start+frameSize]
		t := float64(start) / float64(sampleRate)

		if frameRMS(frame) < e.SilenceGate || tauMax <= tauMin {
			frames = append(frames, pitchFrame{Time: t})
			continue
		}

		tau, ok := e.yinLag(frame, tauMin, tauMax)
		if !ok {
			frames = append(frames, pitchFrame{Time: t})
			continue
		}
		frames = append(frames, pitchFrame{
			Time:   t,
			Freq:   float64(sampleRate) / tau,
			Voiced: true,
		})
	}
	return frames
}

// yinLag returns the refined lag of the first cumulative-mean-normalized
// difference minimum under the voicing threshold, or false for an
// unvoiced frame.
func (e *Extractor) yinLag(frame []float64, tauMin, tauMax int) (float64, bool) {
	w := len(frame) / 2

	diff := make([]float64, tauMax+1)
	for tau := 1; tau <= tauMax; tau++ {
		var sum float64
		for j := 0; j < w; j++ {
			d := frame[j] - frame[j+tau]
			sum += d * d
		}
		diff[tau] = sum
	}

	// Cumulative mean normalization (step 3 of YIN).
	cmnd := make([]float64, tauMax+1)
	cmnd[0] = 1
	var running float64
	for tau := 1; tau <= tauMax; tau++ {
		running += diff[tau]
		if running == 0 {
			cmnd[tau] = 1
		} else {
			cmnd[tau] = diff[tau] * float64(tau) / running
		}
	}

	for tau := tauMin; tau <= tauMax; tau++ {
		if cmnd[tau] >= e.VoicingThreshold {
			continue
		}
		// Walk down to the local minimum of this dip.
		for tau+1 <= tauMax && cmnd[tau+1] < cmnd[tau] {
			tau++
		}
		return refineLag(cmnd, tau), true
	}
	return 0, false
}

// refineLag applies parabolic interpolation around the picked lag.
func refineLag(cmnd []float64, tau int) float64 {
	if tau <= 0 || tau >= len(cmnd)-1 {
		return float64(tau)
	}
	a, b, c := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
	denom := a - 2*b + c
	if denom == 0 {
		return float64(tau)
	}
	return float64(tau) + (a-c)/(2*denom)
}

// segmentNotes folds the frame track into notes: voiced frames accumulate
// into the current run, a voiced-to-unvoiced transition (or end of signal)
// closes it. Runs shorter than MinNoteDuration are discarded. The emitted
// pitch is the rounded MIDI value of the run's median frequency, which keeps
// single-frame octave errors and vibrato out of the result.
func (e *Extractor) segmentNotes(frames []pitchFrame, signalEnd float64) NoteSequence {
	var notes NoteSequence
	runStart := -1.0
	var runFreqs []float64

	closeRun := func(endTime float64) {
		if runStart < 0 {
			return
		}
		duration := endTime - runStart
		if duration >= e.MinNoteDuration && len(runFreqs) > 0 {
			notes = append(notes, Note{
				Onset:    runStart,
				Duration: duration,
				Pitch:    clampPitch(int(math.Round(HzToMIDI(median(runFreqs))))),
				Velocity: noteVelocity,
			})
		}
		runStart = -1
		runFreqs = runFreqs[:0]
	}

	for _, f := range frames {
		if f.Voiced {
			if runStart < 0 {
				runStart = f.Time
			}
			runFreqs = append(runFreqs, f.Freq)
		} else {
			closeRun(f.Time)
		}
	}
	closeRun(signalEnd)

	return notes
}

func frameRMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
