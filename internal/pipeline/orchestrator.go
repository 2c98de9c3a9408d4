// Package pipeline sequences the extraction, prompt, generation and merge
// stages into the two user-facing flows and owns failure classification.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/melodia-app/melodia-api/internal/audiofile"
	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/logger"
	"github.com/melodia-app/melodia-api/internal/melody"
	"github.com/melodia-app/melodia-api/internal/prompt"
	"github.com/melodia-app/melodia-api/internal/separation"
)

// State is one step of the pipeline state machine. Transitions are one-way;
// StateError absorbs failures from every step.
type State string

const (
	StateReceived        State = "received"
	StateSeparated       State = "separated"
	StateMelodyExtracted State = "melody_extracted"
	StatePromptReady     State = "prompt_ready"
	StateGenerated       State = "generated"
	StateMerged          State = "merged"
	StateDone            State = "done"
	StateError           State = "error"
)

// MelodySource records which track the melody was extracted from.
type MelodySource string

const (
	SourceHumming       MelodySource = "humming"
	SourceVocals        MelodySource = "vocals"
	SourceAccompaniment MelodySource = "accompaniment"
)

// Result is the terminal artifact of one pipeline run, never mutated after
// creation. A run that reaches an error state produces an *Error instead.
type Result struct {
	OutputPath   string
	OutputName   string
	Duration     float64 // seconds
	MelodySource MelodySource
	Prompt       string
}

// NoteExtractor turns mono samples into a note sequence.
type NoteExtractor interface {
	Extract(samples []float64, sampleRate int) (melody.NoteSequence, error)
}

// Separator splits an input file into vocal and accompaniment stems.
type Separator interface {
	Separate(ctx context.Context, inputPath string) (*separation.Tracks, error)
}

// Composer builds the generation prompt from notes and user choices.
type Composer interface {
	Compose(notes melody.NoteSequence, req prompt.Request) string
}

// Generator renders a prompt into an audio file at destPath.
type Generator interface {
	Generate(ctx context.Context, promptText, destPath string) error
}

// Merger combines vocals with time-padded accompaniment into outputPath.
type Merger interface {
	Merge(ctx context.Context, vocalsPath, accompanimentPath, outputPath string, leadSilence float64) error
}

// StageRecorder receives per-stage timings for monitoring backends.
type StageRecorder interface {
	RecordStageDuration(stage string, duration time.Duration)
}

// Orchestrator wires the stages together. One instance serves concurrent
// runs; all per-run state lives on the stack and in uniquely named files.
type Orchestrator struct {
	cfg       *config.Config
	extractor NoteExtractor
	separator Separator
	composer  Composer
	generator Generator
	merger    Merger
	recorder  StageRecorder // nil disables stage metrics
}

// NewOrchestrator assembles the pipeline from its stage implementations.
func NewOrchestrator(cfg *config.Config, extractor NoteExtractor, separator Separator, composer Composer, generator Generator, merger Merger, recorder StageRecorder) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		extractor: extractor,
		separator: separator,
		composer:  composer,
		generator: generator,
		merger:    merger,
		recorder:  recorder,
	}
}

func (o *Orchestrator) recordStage(stage string, start time.Time) {
	if o.recorder != nil {
		o.recorder.RecordStageDuration(stage, time.Since(start))
	}
}

// run tracks the state of one pipeline execution.
type run struct {
	id       string
	flow     string
	state    State
	midiPath string // scratch MIDI artifact, removed when the run ends
}

func newRun(flow string) *run {
	r := &run{id: uuid.New().String(), flow: flow, state: StateReceived}
	logger.Info("Pipeline run started", logger.Fields{
		"run_id": r.id,
		"flow":   flow,
	})
	return r
}

func (r *run) to(s State) {
	logger.Debug("Pipeline transition", logger.Fields{
		"run_id": r.id,
		"from":   string(r.state),
		"to":     string(s),
	})
	r.state = s
}

func (r *run) cleanup() {
	if r.midiPath != "" {
		os.Remove(r.midiPath)
	}
}

func (r *run) fail(perr *Error) *Error {
	r.state = StateError
	logger.Error("Pipeline run failed", perr, logger.Fields{
		"run_id": r.id,
		"flow":   r.flow,
		"kind":   string(perr.Kind),
	})
	return perr
}

// GenerateFromHumming runs the humming flow:
// Received -> MelodyExtracted -> PromptReady -> Generated -> Done.
func (o *Orchestrator) GenerateFromHumming(ctx context.Context, inputPath string, req prompt.Request) (*Result, *Error) {
	r := newRun("humming")
	defer r.cleanup()

	extractStart := time.Now()
	notes, perr := o.extractNotes(r, inputPath)
	if perr != nil {
		return nil, perr
	}
	o.recordStage("melody_extraction", extractStart)
	r.to(StateMelodyExtracted)

	promptText := o.composePrompt(r, notes, req)

	outputName := fmt.Sprintf("humming_based_%s.wav", uuid.New().String())
	outputPath := filepath.Join(o.cfg.GeneratedDir, outputName)
	if perr := o.generate(ctx, r, promptText, outputPath); perr != nil {
		return nil, perr
	}

	return o.finish(r, outputPath, outputName, SourceHumming, promptText)
}

// ConvertGenre runs the genre-conversion flow:
// Received -> Separated -> MelodyExtracted -> PromptReady -> Generated ->
// Merged -> Done. Instruments are intentionally left to the generation
// model, so the request's instrument set is discarded.
func (o *Orchestrator) ConvertGenre(ctx context.Context, inputPath string, req prompt.Request) (*Result, *Error) {
	r := newRun("genre_conversion")
	defer r.cleanup()
	req.Instruments = nil

	sepStart := time.Now()
	sepCtx, cancel := context.WithTimeout(ctx, o.cfg.SeparationTimeout)
	defer cancel()
	tracks, err := o.separator.Separate(sepCtx, inputPath)
	if err != nil {
		return nil, r.fail(classify(err))
	}
	o.recordStage("separation", sepStart)
	r.to(StateSeparated)

	leadSilence := o.measureLeadingSilence(tracks.VocalsPath)

	extractStart := time.Now()
	notes, source, perr := o.extractWithFallback(r, tracks)
	if perr != nil {
		return nil, perr
	}
	o.recordStage("melody_extraction", extractStart)
	r.to(StateMelodyExtracted)

	promptText := o.composePrompt(r, notes, req)

	accompName := fmt.Sprintf("new_accomp_%s.wav", uuid.New().String())
	accompPath := filepath.Join(o.cfg.GeneratedDir, accompName)
	if perr := o.generate(ctx, r, promptText, accompPath); perr != nil {
		return nil, perr
	}

	outputName := fmt.Sprintf("final_converted_%s.wav", uuid.New().String())
	outputPath := filepath.Join(o.cfg.FinalOutputDir, outputName)

	mergeStart := time.Now()
	mergeCtx, cancel := context.WithTimeout(ctx, o.cfg.MergeTimeout)
	defer cancel()
	if err := o.merger.Merge(mergeCtx, tracks.VocalsPath, accompPath, outputPath, leadSilence); err != nil {
		return nil, r.fail(&Error{
			Kind:    KindMergeFailed,
			Message: "failed to merge vocals with the new accompaniment",
			Err:     err,
		})
	}
	o.recordStage("merge", mergeStart)
	r.to(StateMerged)

	result, perr := o.finish(r, outputPath, outputName, source, promptText)
	if perr != nil {
		return nil, perr
	}
	return result, nil
}

// extractNotes reads one audio file and extracts its note sequence, writing
// the temp MIDI artifact the analysis stage historically produced. The
// artifact is scratch output owned by this stage and removed before return.
func (o *Orchestrator) extractNotes(r *run, audioPath string) (melody.NoteSequence, *Error) {
	samples, rate, err := audiofile.ReadMono(audioPath)
	if err != nil {
		return nil, r.fail(&Error{
			Kind:    KindInternal,
			Message: "could not decode the uploaded audio",
			Err:     err,
		})
	}

	notes, err := o.extractor.Extract(samples, rate)
	if err != nil {
		return nil, r.fail(classify(err))
	}

	o.writeMIDIArtifact(r, notes)
	return notes, nil
}

// extractWithFallback tries the vocal stem first and retries once on the
// accompaniment stem: purely instrumental sources have no vocal melody.
// Only when both attempts fail does the run terminate.
func (o *Orchestrator) extractWithFallback(r *run, tracks *separation.Tracks) (melody.NoteSequence, MelodySource, *Error) {
	notes, vocalErr := o.extractFromFile(tracks.VocalsPath)
	if vocalErr == nil {
		o.writeMIDIArtifact(r, notes)
		return notes, SourceVocals, nil
	}

	logger.Warn("Vocal melody extraction failed, retrying on accompaniment", logger.Fields{
		"run_id": r.id,
		"error":  vocalErr.Error(),
	})

	notes, accompErr := o.extractFromFile(tracks.AccompanimentPath)
	if accompErr == nil {
		o.writeMIDIArtifact(r, notes)
		return notes, SourceAccompaniment, nil
	}

	return nil, "", r.fail(&Error{
		Kind:    KindMelodyExtractionFailed,
		Message: "could not extract a melody from either the vocal or the accompaniment track",
		Err:     fmt.Errorf("vocals: %v; accompaniment: %w", vocalErr, accompErr),
	})
}

func (o *Orchestrator) extractFromFile(audioPath string) (melody.NoteSequence, error) {
	samples, rate, err := audiofile.ReadMono(audioPath)
	if err != nil {
		return nil, err
	}
	return o.extractor.Extract(samples, rate)
}

// measureLeadingSilence is advisory: on any failure it assumes no lead-in
// rather than failing the run.
func (o *Orchestrator) measureLeadingSilence(vocalsPath string) float64 {
	samples, rate, err := audiofile.ReadMono(vocalsPath)
	if err != nil {
		logger.Warn("Leading-silence analysis failed, assuming none", logger.Fields{
			"path":  vocalsPath,
			"error": err.Error(),
		})
		return 0
	}
	lead := melody.LeadingSilence(samples, rate, melody.DefaultSilenceThresholdDB)
	logger.Info("Measured leading silence", logger.Fields{
		"path":    vocalsPath,
		"seconds": lead,
	})
	return lead
}

// writeMIDIArtifact persists the extracted notes as a scratch MIDI file so
// a failed run leaves something inspectable. The run removes it on exit.
// Artifact failures never fail a run.
func (o *Orchestrator) writeMIDIArtifact(r *run, notes melody.NoteSequence) {
	midiPath := filepath.Join(o.cfg.GeneratedDir, fmt.Sprintf("temp_melody_%s.mid", r.id))
	if err := melody.WriteMIDIFile(midiPath, notes); err != nil {
		logger.Warn("Could not write MIDI artifact", logger.Fields{
			"run_id": r.id,
			"error":  err.Error(),
		})
		return
	}
	r.midiPath = midiPath
	logger.Debug("Wrote MIDI artifact", logger.Fields{
		"run_id": r.id,
		"path":   midiPath,
		"notes":  len(notes),
		"range":  pitchRange(notes),
	})
}

// pitchRange renders the lowest and highest extracted pitches as note names.
func pitchRange(notes melody.NoteSequence) string {
	if len(notes) == 0 {
		return ""
	}
	low, high := notes[0].Pitch, notes[0].Pitch
	for _, n := range notes[1:] {
		if n.Pitch < low {
			low = n.Pitch
		}
		if n.Pitch > high {
			high = n.Pitch
		}
	}
	return melody.NoteName(low) + "-" + melody.NoteName(high)
}

func (o *Orchestrator) composePrompt(r *run, notes melody.NoteSequence, req prompt.Request) string {
	start := time.Now()
	text := o.composer.Compose(notes, req)
	o.recordStage("prompt_composition", start)
	r.to(StatePromptReady)
	logger.Info("Prompt composed", logger.Fields{
		"run_id":        r.id,
		"prompt_length": len(text),
	})
	return text
}

func (o *Orchestrator) generate(ctx context.Context, r *run, promptText, destPath string) *Error {
	start := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	if err := o.generator.Generate(genCtx, promptText, destPath); err != nil {
		return r.fail(classify(err))
	}
	o.recordStage("generation", start)
	r.to(StateGenerated)
	return nil
}

// finish probes the output duration and closes the run.
func (o *Orchestrator) finish(r *run, outputPath, outputName string, source MelodySource, promptText string) (*Result, *Error) {
	d, err := audiofile.Duration(outputPath)
	if err != nil {
		return nil, r.fail(&Error{
			Kind:    KindInternal,
			Message: "generated audio is unreadable",
			Err:     err,
		})
	}

	r.to(StateDone)
	logger.Info("Pipeline run finished", logger.Fields{
		"run_id":   r.id,
		"flow":     r.flow,
		"output":   outputPath,
		"duration": d.Seconds(),
	})

	return &Result{
		OutputPath:   outputPath,
		OutputName:   outputName,
		Duration:     roundDuration(d),
		MelodySource: source,
		Prompt:       promptText,
	}, nil
}

func roundDuration(d time.Duration) float64 {
	return float64(int(d.Seconds()*100)) / 100
}
