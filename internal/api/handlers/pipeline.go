package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/logger"
	"github.com/melodia-app/melodia-api/internal/metrics"
	"github.com/melodia-app/melodia-api/internal/pipeline"
	"github.com/melodia-app/melodia-api/internal/prompt"
)

const (
	defaultConversionGenre = "Rock"
	defaultConversionMood  = "Energetic"

	musicRoute      = "/music"
	finalMusicRoute = "/final_music"
)

// PipelineRunner is the orchestrator surface the handlers need.
type PipelineRunner interface {
	GenerateFromHumming(ctx context.Context, inputPath string, req prompt.Request) (*pipeline.Result, *pipeline.Error)
	ConvertGenre(ctx context.Context, inputPath string, req prompt.Request) (*pipeline.Result, *pipeline.Error)
}

type PipelineHandler struct {
	cfg     *config.Config
	runner  PipelineRunner
	metrics *metrics.Recorder
}

func NewPipelineHandler(cfg *config.Config, runner PipelineRunner, recorder *metrics.Recorder) *PipelineHandler {
	return &PipelineHandler{
		cfg:     cfg,
		runner:  runner,
		metrics: recorder,
	}
}

// GenerateFromHumming handles POST /generate-from-humming.
func (h *PipelineHandler) GenerateFromHumming(c *gin.Context) {
	inputPath, ok := h.saveUpload(c)
	if !ok {
		return
	}

	req := prompt.Request{
		Genre:       c.PostForm("genre"),
		Mood:        c.PostForm("mood"),
		Instruments: cleanInstruments(instrumentFields(c)),
		CustomText:  c.PostForm("custom_prompt"),
	}

	start := time.Now()
	result, perr := h.runner.GenerateFromHumming(c.Request.Context(), inputPath, req)
	h.recordRun("humming", perr == nil, time.Since(start))
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"audio_url": fmt.Sprintf("%s/%s", musicRoute, result.OutputName),
		"duration":  result.Duration,
	})
}

// ConvertGenre handles POST /convert-genre.
func (h *PipelineHandler) ConvertGenre(c *gin.Context) {
	inputPath, ok := h.saveUpload(c)
	if !ok {
		return
	}

	req := prompt.Request{
		Genre:      c.DefaultPostForm("genre", defaultConversionGenre),
		Mood:       c.DefaultPostForm("mood", defaultConversionMood),
		CustomText: c.PostForm("custom_prompt"),
	}

	start := time.Now()
	result, perr := h.runner.ConvertGenre(c.Request.Context(), inputPath, req)
	h.recordRun("genre_conversion", perr == nil, time.Since(start))
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"message":       fmt.Sprintf("Converted to %s style", req.Genre),
		"audio_url":     fmt.Sprintf("%s/%s", finalMusicRoute, result.OutputName),
		"duration":      result.Duration,
		"melody_source": string(result.MelodySource),
	})
}

// saveUpload stores the multipart audio file under the uploads folder with a
// unique, sanitized name. A missing file is a client error and is answered
// directly.
func (h *PipelineHandler) saveUpload(c *gin.Context) (string, bool) {
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "No audio file provided",
			"error_type": string(pipeline.KindInputMissing),
		})
		return "", false
	}

	dest := filepath.Join(h.cfg.UploadsDir, uploadName(file))
	if err := c.SaveUploadedFile(file, dest); err != nil {
		fields := logger.WithContext(c)
		fields["filename"] = file.Filename
		logger.Error("Failed to store uploaded file", err, fields)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to store the uploaded file",
			"error_type": string(pipeline.KindInternal),
		})
		return "", false
	}

	return dest, true
}

// instrumentFields reads the instrument list. The web client submits the
// PHP-style bracketed key, which gin does not normalize, so that key is
// checked first with the bare key as a fallback.
func instrumentFields(c *gin.Context) []string {
	if vals := c.PostFormArray("instruments[]"); len(vals) > 0 {
		return vals
	}
	return c.PostFormArray("instruments")
}

// cleanInstruments drops blank entries from the submitted instrument list so
// an empty form field does not read as a named instrument downstream.
func cleanInstruments(raw []string) []string {
	var instruments []string
	for _, name := range raw {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			instruments = append(instruments, trimmed)
		}
	}
	return instruments
}

// uploadName keeps the original extension but replaces the client-supplied
// name with a UUID so path traversal and collisions are impossible.
func uploadName(file *multipart.FileHeader) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(file.Filename)))
	return uuid.New().String() + ext
}

func (h *PipelineHandler) respondError(c *gin.Context, perr *pipeline.Error) {
	status := http.StatusInternalServerError
	if perr.UserRecoverable() {
		status = http.StatusBadRequest
	}

	fields := logger.WithContext(c)
	fields["error_type"] = string(perr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("Pipeline request failed", perr, fields)
	} else {
		logger.Warn("Pipeline request rejected", fields)
	}

	c.JSON(status, gin.H{
		"error":      perr.Message,
		"error_type": string(perr.Kind),
	})
}

func (h *PipelineHandler) recordRun(flow string, success bool, duration time.Duration) {
	h.metrics.RecordPipelineRun(flow, success, duration)
}
