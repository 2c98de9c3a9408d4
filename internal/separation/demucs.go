// Package separation adapts the Demucs two-stem source separation model as
// a black-box batch command.
package separation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/melodia-app/melodia-api/internal/logger"
)

// DefaultModel is the Demucs model whose name determines the output subtree.
const DefaultModel = "htdemucs"

// ErrVocalStemMissing means the tool exited cleanly but the expected vocal
// stem was not where the model's output convention says it must be.
var ErrVocalStemMissing = errors.New("vocal stem not found after separation")

// Tracks are the two stems produced from one input file.
type Tracks struct {
	VocalsPath        string
	AccompanimentPath string
}

// Separator invokes the Demucs CLI for vocal/accompaniment separation.
type Separator struct {
	Bin       string
	OutputDir string
	Model     string
}

// NewSeparator creates a separator writing under outputDir.
func NewSeparator(bin, outputDir string) *Separator {
	if bin == "" {
		bin = "demucs"
	}
	return &Separator{
		Bin:       bin,
		OutputDir: outputDir,
		Model:     DefaultModel,
	}
}

// Separate runs two-stem separation on inputPath and resolves the stem
// paths from the model's deterministic output layout:
// {output_dir}/{model}/{input_basename}/{vocals.wav,no_vocals.wav}.
// Any nonzero exit or violated layout is fatal; there is no retry and no
// silent substitution.
func (s *Separator) Separate(ctx context.Context, inputPath string) (*Tracks, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("separation input not readable: %w", err)
	}

	logger.Info("Starting source separation", logger.Fields{
		"input":  inputPath,
		"output": s.OutputDir,
	})
	start := time.Now()

	cmd := exec.CommandContext(ctx, s.Bin,
		"--two-stems", "vocals",
		"-o", s.OutputDir,
		inputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("demucs failed: %w\nstderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	stemDir := filepath.Join(s.OutputDir, s.Model, base)
	tracks := &Tracks{
		VocalsPath:        filepath.Join(stemDir, "vocals.wav"),
		AccompanimentPath: filepath.Join(stemDir, "no_vocals.wav"),
	}

	if _, err := os.Stat(tracks.VocalsPath); err != nil {
		return nil, fmt.Errorf("%w: expected %s", ErrVocalStemMissing, tracks.VocalsPath)
	}

	logger.LogPipelineStage("separation", time.Since(start), logger.Fields{
		"vocals":        tracks.VocalsPath,
		"accompaniment": tracks.AccompanimentPath,
	})
	return tracks, nil
}
