package melody

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	midiTicksPerQuarter = 480
	midiTempoBPM        = 120.0
	midiChannel         = 0
)

// WriteMIDIFile renders the note sequence as a single-track standard MIDI
// file at a fixed 120 BPM tempo map. The file is a scratch artifact of the
// extraction stage; callers own its cleanup.
func WriteMIDIFile(path string, notes NoteSequence) error {
	if len(notes) == 0 {
		return fmt.Errorf("refusing to write empty MIDI file: %s", path)
	}

	ticks := smf.MetricTicks(midiTicksPerQuarter)

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(midiTempoBPM))

	// Notes never overlap, so each pair of note_on/note_off events is
	// offset from the previous note's end, matching onset gaps as deltas.
	lastEnd := 0.0
	for _, n := range notes {
		onDelta := ticks.Ticks(midiTempoBPM, secondsToDuration(n.Onset-lastEnd))
		offDelta := ticks.Ticks(midiTempoBPM, secondsToDuration(n.Duration))
		tr.Add(onDelta, midi.NoteOn(midiChannel, uint8(n.Pitch), uint8(n.Velocity)))
		tr.Add(offDelta, midi.NoteOff(midiChannel, uint8(n.Pitch)))
		lastEnd = n.Onset + n.Duration
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = ticks
	if err := s.Add(tr); err != nil {
		return fmt.Errorf("assemble MIDI track: %w", err)
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write MIDI file: %w", err)
	}
	return nil
}

func secondsToDuration(sec float64) time.Duration {
	if sec < 0 {
		sec = 0
	}
	return time.Duration(sec * float64(time.Second))
}
