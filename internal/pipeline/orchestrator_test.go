package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodia-app/melodia-api/internal/audiofile"
	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/generation"
	"github.com/melodia-app/melodia-api/internal/melody"
	"github.com/melodia-app/melodia-api/internal/prompt"
	"github.com/melodia-app/melodia-api/internal/separation"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.UploadsDir = t.TempDir()
	cfg.GeneratedDir = t.TempDir()
	cfg.SeparatedDir = t.TempDir()
	cfg.FinalOutputDir = t.TempDir()
	return cfg
}

// writeTestWav writes a short tone so reads and duration probes succeed.
func writeTestWav(t *testing.T, path string) string {
	return writeToneWav(t, path, 0.5, 440)
}

// writeToneWav writes back-to-back tone segments of seconds each at 8kHz.
// A frequency of 0 writes silence.
func writeToneWav(t *testing.T, path string, seconds float64, freqs ...float64) string {
	t.Helper()
	const sampleRate = 8000
	var samples []float64
	for _, freq := range freqs {
		n := int(seconds * sampleRate)
		for i := 0; i < n; i++ {
			samples = append(samples, 0.4*math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		}
	}
	require.NoError(t, audiofile.WriteMono(path, samples, sampleRate))
	return path
}

var stubNotes = melody.NoteSequence{
	{Onset: 0, Duration: 0.4, Pitch: 60, Velocity: 100},
	{Onset: 0.5, Duration: 0.4, Pitch: 64, Velocity: 100},
}

// stubExtractor returns its queued errors call by call, then stubNotes.
type stubExtractor struct {
	errs  []error
	calls int
}

func (s *stubExtractor) Extract([]float64, int) (melody.NoteSequence, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) && s.errs[s.calls] != nil {
		return nil, s.errs[s.calls]
	}
	return stubNotes, nil
}

type stubSeparator struct {
	tracks *separation.Tracks
	err    error
}

func (s *stubSeparator) Separate(context.Context, string) (*separation.Tracks, error) {
	return s.tracks, s.err
}

type stubComposer struct {
	lastReq prompt.Request
}

func (s *stubComposer) Compose(_ melody.NoteSequence, req prompt.Request) string {
	s.lastReq = req
	return "a stub prompt"
}

// stubGenerator writes a real wav file so the duration probe works.
type stubGenerator struct {
	t       *testing.T
	err     error
	seconds float64 // output length, 0.5s when unset
}

func (s *stubGenerator) Generate(_ context.Context, _, destPath string) error {
	if s.err != nil {
		return s.err
	}
	seconds := s.seconds
	if seconds == 0 {
		seconds = 0.5
	}
	writeToneWav(s.t, destPath, seconds, 440)
	return nil
}

type stubMerger struct {
	t           *testing.T
	err         error
	leadSilence float64
}

func (s *stubMerger) Merge(_ context.Context, _, _, outputPath string, leadSilence float64) error {
	s.leadSilence = leadSilence
	if s.err != nil {
		return s.err
	}
	writeTestWav(s.t, outputPath)
	return nil
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, ex NoteExtractor, sep Separator, gen Generator, mrg Merger) *Orchestrator {
	t.Helper()
	if ex == nil {
		ex = &stubExtractor{}
	}
	if gen == nil {
		gen = &stubGenerator{t: t}
	}
	if mrg == nil {
		mrg = &stubMerger{t: t}
	}
	return NewOrchestrator(cfg, ex, sep, &stubComposer{}, gen, mrg, nil)
}

type stubStageRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (s *stubStageRecorder) RecordStageDuration(stage string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
}

func (s *stubStageRecorder) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stages...)
}

func stubTracks(t *testing.T, dir string) *separation.Tracks {
	t.Helper()
	return &separation.Tracks{
		VocalsPath:        writeTestWav(t, filepath.Join(dir, "vocals.wav")),
		AccompanimentPath: writeTestWav(t, filepath.Join(dir, "no_vocals.wav")),
	}
}

func TestOrchestrator_GenerateFromHumming_Success(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "humming.wav"))

	o := newTestOrchestrator(t, cfg, nil, &stubSeparator{}, nil, nil)
	result, perr := o.GenerateFromHumming(context.Background(), input, prompt.Request{Genre: "Jazz", Mood: "Calm"})
	require.Nil(t, perr)

	assert.Equal(t, SourceHumming, result.MelodySource)
	assert.True(t, strings.HasPrefix(result.OutputName, "humming_based_"))
	assert.Equal(t, cfg.GeneratedDir, filepath.Dir(result.OutputPath))
	assert.FileExists(t, result.OutputPath)
	assert.Greater(t, result.Duration, 0.0)
	assert.Equal(t, "a stub prompt", result.Prompt)
}

func TestOrchestrator_GenerateFromHumming_NoNotes(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "humming.wav"))

	ex := &stubExtractor{errs: []error{melody.ErrNoNotesDetected}}
	o := newTestOrchestrator(t, cfg, ex, &stubSeparator{}, nil, nil)

	_, perr := o.GenerateFromHumming(context.Background(), input, prompt.Request{})
	require.NotNil(t, perr)
	assert.Equal(t, KindNoNotesDetected, perr.Kind)
	assert.True(t, perr.UserRecoverable())
}

func TestOrchestrator_GenerateFromHumming_UnreadableInput(t *testing.T) {
	cfg := testConfig(t)

	o := newTestOrchestrator(t, cfg, nil, &stubSeparator{}, nil, nil)
	_, perr := o.GenerateFromHumming(context.Background(), filepath.Join(cfg.UploadsDir, "missing.wav"), prompt.Request{})

	require.NotNil(t, perr)
	assert.Equal(t, KindInternal, perr.Kind)
}

func TestOrchestrator_GenerateFromHumming_CopyrightRejection(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "humming.wav"))

	gen := &stubGenerator{t: t, err: &generation.CopyrightRejectionError{Detail: "recitation checks"}}
	o := newTestOrchestrator(t, cfg, nil, &stubSeparator{}, gen, nil)

	_, perr := o.GenerateFromHumming(context.Background(), input, prompt.Request{})
	require.NotNil(t, perr)
	assert.Equal(t, KindCopyrightRejected, perr.Kind)
	assert.True(t, perr.UserRecoverable())
}

func TestOrchestrator_ConvertGenre_Success(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))
	mrg := &stubMerger{t: t}

	o := newTestOrchestrator(t, cfg, nil, &stubSeparator{tracks: stubTracks(t, cfg.SeparatedDir)}, nil, mrg)
	result, perr := o.ConvertGenre(context.Background(), input, prompt.Request{Genre: "Rock", Mood: "Energetic"})
	require.Nil(t, perr)

	assert.Equal(t, SourceVocals, result.MelodySource)
	assert.True(t, strings.HasPrefix(result.OutputName, "final_converted_"))
	assert.Equal(t, cfg.FinalOutputDir, filepath.Dir(result.OutputPath))
	assert.FileExists(t, result.OutputPath)
	assert.GreaterOrEqual(t, mrg.leadSilence, 0.0)
}

func TestOrchestrator_ConvertGenre_FallsBackToAccompaniment(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	ex := &stubExtractor{errs: []error{melody.ErrNoNotesDetected}}
	o := newTestOrchestrator(t, cfg, ex, &stubSeparator{tracks: stubTracks(t, cfg.SeparatedDir)}, nil, nil)

	result, perr := o.ConvertGenre(context.Background(), input, prompt.Request{Genre: "Rock", Mood: "Energetic"})
	require.Nil(t, perr)

	assert.Equal(t, SourceAccompaniment, result.MelodySource)
	assert.Equal(t, 2, ex.calls)
}

func TestOrchestrator_ConvertGenre_BothStemsFail(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	ex := &stubExtractor{errs: []error{melody.ErrNoNotesDetected, melody.ErrNoNotesDetected}}
	o := newTestOrchestrator(t, cfg, ex, &stubSeparator{tracks: stubTracks(t, cfg.SeparatedDir)}, nil, nil)

	_, perr := o.ConvertGenre(context.Background(), input, prompt.Request{})
	require.NotNil(t, perr)
	assert.Equal(t, KindMelodyExtractionFailed, perr.Kind)
	assert.True(t, perr.UserRecoverable())
}

func TestOrchestrator_ConvertGenre_SeparationFailure(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	sep := &stubSeparator{err: separation.ErrVocalStemMissing}
	o := newTestOrchestrator(t, cfg, nil, sep, nil, nil)

	_, perr := o.ConvertGenre(context.Background(), input, prompt.Request{})
	require.NotNil(t, perr)
	assert.Equal(t, KindSeparationOutputMissing, perr.Kind)
	assert.False(t, perr.UserRecoverable())
}

func TestOrchestrator_ConvertGenre_MergeFailure(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	mrg := &stubMerger{t: t, err: errors.New("amerge blew up")}
	o := newTestOrchestrator(t, cfg, nil, &stubSeparator{tracks: stubTracks(t, cfg.SeparatedDir)}, nil, mrg)

	_, perr := o.ConvertGenre(context.Background(), input, prompt.Request{})
	require.NotNil(t, perr)
	assert.Equal(t, KindMergeFailed, perr.Kind)
}

func TestOrchestrator_ConvertGenre_DropsInstrumentChoices(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	composer := &stubComposer{}
	o := NewOrchestrator(cfg, &stubExtractor{},
		&stubSeparator{tracks: stubTracks(t, cfg.SeparatedDir)},
		composer, &stubGenerator{t: t}, &stubMerger{t: t}, nil)

	_, perr := o.ConvertGenre(context.Background(), input, prompt.Request{
		Genre:       "Rock",
		Mood:        "Energetic",
		Instruments: []string{"kazoo"},
	})

	require.Nil(t, perr)
	assert.Empty(t, composer.lastReq.Instruments, "genre conversion delegates instrumentation to the model")
	assert.Equal(t, "Rock", composer.lastReq.Genre)
}

func TestOrchestrator_RecordsStageDurations(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	rec := &stubStageRecorder{}
	o := NewOrchestrator(cfg, &stubExtractor{},
		&stubSeparator{tracks: stubTracks(t, cfg.SeparatedDir)},
		&stubComposer{}, &stubGenerator{t: t}, &stubMerger{t: t}, rec)

	_, perr := o.ConvertGenre(context.Background(), input, prompt.Request{Genre: "Rock", Mood: "Energetic"})
	require.Nil(t, perr)
	assert.Equal(t,
		[]string{"separation", "melody_extraction", "prompt_composition", "generation", "merge"},
		rec.recorded())

	rec = &stubStageRecorder{}
	o = NewOrchestrator(cfg, &stubExtractor{}, &stubSeparator{},
		&stubComposer{}, &stubGenerator{t: t}, &stubMerger{t: t}, rec)

	hum := writeTestWav(t, filepath.Join(cfg.UploadsDir, "hum.wav"))
	_, perr = o.GenerateFromHumming(context.Background(), hum, prompt.Request{Genre: "Jazz", Mood: "Calm"})
	require.Nil(t, perr)
	assert.Equal(t,
		[]string{"melody_extraction", "prompt_composition", "generation"},
		rec.recorded())
}

// A three second hum rising from A4 to C5 through the real extractor and
// composer: the run must finish with a solo piano jazz prompt and an output
// whose length tracks the hum.
func TestOrchestrator_GenerateFromHumming_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	input := writeToneWav(t, filepath.Join(cfg.UploadsDir, "hum.wav"), 1.0, 440, 0, 523.25)

	o := NewOrchestrator(cfg,
		melody.NewExtractor(),
		&stubSeparator{},
		prompt.NewComposer(rand.New(rand.NewSource(11))),
		&stubGenerator{t: t, seconds: 3.0},
		&stubMerger{t: t},
		nil)

	result, perr := o.GenerateFromHumming(context.Background(), input, prompt.Request{
		Genre:       "Jazz",
		Mood:        "Relaxed",
		Instruments: []string{"Piano"},
	})
	require.Nil(t, perr)

	assert.Contains(t, result.Prompt, "SOLO Piano")
	assert.Contains(t, result.Prompt, "Jazz")
	assert.Contains(t, result.Prompt, "Relaxed")
	assert.InDelta(t, 3.0, result.Duration, 0.2)
	assert.FileExists(t, result.OutputPath)
}

// Genre conversion of a purely instrumental source: the silent vocal stem
// yields no notes, the accompaniment fallback succeeds, and the run still
// finishes.
func TestOrchestrator_ConvertGenre_InstrumentalEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	input := writeTestWav(t, filepath.Join(cfg.UploadsDir, "song.wav"))

	tracks := &separation.Tracks{
		VocalsPath:        writeToneWav(t, filepath.Join(cfg.SeparatedDir, "vocals.wav"), 1.0, 0),
		AccompanimentPath: writeToneWav(t, filepath.Join(cfg.SeparatedDir, "no_vocals.wav"), 1.0, 440),
	}

	o := NewOrchestrator(cfg,
		melody.NewExtractor(),
		&stubSeparator{tracks: tracks},
		prompt.NewComposer(rand.New(rand.NewSource(11))),
		&stubGenerator{t: t},
		&stubMerger{t: t},
		nil)

	result, perr := o.ConvertGenre(context.Background(), input, prompt.Request{Genre: "Rock", Mood: "Energetic"})
	require.Nil(t, perr)

	assert.Equal(t, SourceAccompaniment, result.MelodySource)
	assert.Contains(t, result.Prompt, "Rock")
	assert.Contains(t, result.Prompt, "Energetic")
	assert.FileExists(t, result.OutputPath)
}
