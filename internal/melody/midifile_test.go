package melody

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestWriteMIDIFile_RefusesEmptySequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mid")
	err := WriteMIDIFile(path, nil)
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestWriteMIDIFile_RoundTrips(t *testing.T) {
	notes := NoteSequence{
		{Onset: 0, Duration: 0.5, Pitch: 60, Velocity: 100},
		{Onset: 0.75, Duration: 0.25, Pitch: 64, Velocity: 100},
		{Onset: 1.5, Duration: 1.0, Pitch: 67, Velocity: 100},
	}

	path := filepath.Join(t.TempDir(), "melody.mid")
	require.NoError(t, WriteMIDIFile(path, notes))

	s, err := smf.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, s.Tracks, 1)

	// Tempo event plus a note_on/note_off pair per note, plus end-of-track.
	assert.GreaterOrEqual(t, len(s.Tracks[0]), 2*len(notes)+2)
}
