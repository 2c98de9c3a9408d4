// Package mix re-assembles the original vocal track with the regenerated
// accompaniment using ffmpeg batch invocations.
package mix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/melodia-app/melodia-api/internal/logger"
)

// Merger pads the new accompaniment by the measured leading silence and
// channel-merges it with the untouched vocal stem.
type Merger struct {
	Bin        string
	ScratchDir string
}

// NewMerger creates a merger writing scratch files under scratchDir.
func NewMerger(bin, scratchDir string) *Merger {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Merger{Bin: bin, ScratchDir: scratchDir}
}

// Merge writes a stereo mix of vocalsPath and accompanimentPath to
// outputPath. The accompaniment is first delayed by leadSilence seconds so
// the regenerated instrumental lines back up with the vocal performance's
// original lead-in. The padded scratch file is removed on every exit path.
func (m *Merger) Merge(ctx context.Context, vocalsPath, accompanimentPath, outputPath string, leadSilence float64) error {
	start := time.Now()
	scratch := filepath.Join(m.ScratchDir, fmt.Sprintf("padded_accomp_%s.wav", uuid.New().String()))
	defer os.Remove(scratch)

	delayMs := int(leadSilence * 1000)
	if delayMs < 0 {
		delayMs = 0
	}

	logger.Info("Padding accompaniment", logger.Fields{
		"delay_ms": delayMs,
		"scratch":  scratch,
	})
	// adelay applies the same delay to every channel.
	if err := m.run(ctx,
		"-i", accompanimentPath,
		"-af", fmt.Sprintf("adelay=%d|%d", delayMs, delayMs),
		scratch,
	); err != nil {
		return fmt.Errorf("pad accompaniment: %w", err)
	}

	if err := m.run(ctx,
		"-i", vocalsPath,
		"-i", scratch,
		"-filter_complex", "amerge",
		"-ac", "2",
		outputPath,
	); err != nil {
		return fmt.Errorf("merge vocals with accompaniment: %w", err)
	}

	logger.LogPipelineStage("merge", time.Since(start), logger.Fields{
		"output": outputPath,
	})
	return nil
}

func (m *Merger) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, m.Bin, append([]string{"-y"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w\nstderr: %s", m.Bin, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
