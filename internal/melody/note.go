// Package melody turns a mono audio signal into a symbolic note sequence
// and derives the summary features the prompt composer consumes.
package melody

import (
	"fmt"
	"math"
)

// Note is one detected melody note. Immutable once emitted by the extractor.
type Note struct {
	Onset    float64 // seconds from the start of the signal
	Duration float64 // seconds, always > 0
	Pitch    int     // MIDI note number 0-127
	Velocity int     // MIDI velocity 0-127
}

// NoteSequence is an onset-ordered sequence of notes. Silence between notes
// is represented only by onset gaps, never by rest events.
type NoteSequence []Note

// End reports the time the last note stops sounding.
func (ns NoteSequence) End() float64 {
	if len(ns) == 0 {
		return 0
	}
	last := ns[len(ns)-1]
	return last.Onset + last.Duration
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// HzToMIDI converts a frequency to its (fractional) MIDI note number.
func HzToMIDI(hz float64) float64 {
	return 69 + 12*math.Log2(hz/440.0)
}

// MIDIToHz converts a MIDI note number to its frequency.
func MIDIToHz(midi float64) float64 {
	return 440.0 * math.Pow(2, (midi-69)/12)
}

// NoteName renders a MIDI note number as e.g. "A4" or "C#3".
func NoteName(midi int) string {
	octave := midi/12 - 1
	return fmt.Sprintf("%s%d", noteNames[midi%12], octave)
}

func clampPitch(p int) int {
	if p < 0 {
		return 0
	}
	if p > 127 {
		return 127
	}
	return p
}
