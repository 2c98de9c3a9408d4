// Package generation adapts the Vertex AI Lyria text-to-music prediction
// endpoint. The service is a black box: one prompt in, base64 audio out.
package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/melodia-app/melodia-api/internal/logger"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	// Fixed sampling temperature for every generation request.
	generationTemperature = 0.95

	// Substring marking a content-moderation (recitation) rejection in the
	// remote error text. Documented heuristic: the API does not expose a
	// structured reason code for this failure.
	recitationMarker = "recitation"

	maxErrorBodyBytes = 64 * 1024
)

// ErrEmptyResult means the service answered successfully but returned zero
// predictions.
var ErrEmptyResult = errors.New("generation service returned no predictions")

// CopyrightRejectionError is a content-moderation rejection: the generated
// audio resembled protected source material. Distinguished from generic
// service errors because it is user-actionable and recurs for some prompts.
type CopyrightRejectionError struct {
	Detail string // raw remote error text
}

func (e *CopyrightRejectionError) Error() string {
	return "AI generated music similar to existing copyrighted material"
}

// ServiceError is any other remote generation failure, propagated unmodified.
type ServiceError struct {
	StatusCode int
	Status     string // Google RPC status when present, e.g. "INVALID_ARGUMENT"
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("generation service error (%s): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("generation service error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Config locates the prediction endpoint.
type Config struct {
	ProjectID string
	Location  string
	Model     string
	Endpoint  string // full URL override; when set, ProjectID etc. are unused
}

// Client calls the Lyria prediction endpoint over authenticated HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	mu         sync.Mutex // one client serves concurrent requests; rand.Rand is not goroutine-safe
	rng        *rand.Rand
}

// NewClient builds a client using Application Default Credentials.
func NewClient(ctx context.Context, cfg Config, rng *rand.Rand) (*Client, error) {
	ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	return NewClientWithHTTPClient(oauth2.NewClient(ctx, ts), cfg, rng), nil
}

// NewClientWithHTTPClient builds a client over a caller-supplied HTTP
// client. Used directly in tests against a local prediction stub.
func NewClientWithHTTPClient(httpClient *http.Client, cfg Config, rng *rand.Rand) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
			cfg.Location, cfg.ProjectID, cfg.Location, cfg.Model)
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		rng:        rng,
	}
}

// drawSeed produces the fresh 32-bit seed for one prediction request.
func (c *Client) drawSeed() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Uint32()
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParams     `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParams struct {
	Temperature float64 `json:"temperature"`
	Seed        uint32  `json:"seed"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

type rpcErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate submits the prompt with a fresh 32-bit seed, decodes the returned
// audio and writes it byte-for-byte to destPath.
func (c *Client) Generate(ctx context.Context, prompt, destPath string) error {
	start := time.Now()

	transaction := sentry.StartTransaction(ctx, "lyria.generate")
	defer transaction.Finish()
	transaction.SetTag("provider", "vertex-lyria")

	seed := c.drawSeed()
	body, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: prompt}},
		Parameters: predictParams{
			Temperature: generationTemperature,
			Seed:        seed,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal prediction request: %w", err)
	}

	logger.Info("Submitting generation request", logger.Fields{
		"seed":          int64(seed),
		"prompt_length": len(prompt),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	span := transaction.StartChild("lyria.api_call")
	resp, err := c.httpClient.Do(req)
	span.Finish()
	if err != nil {
		transaction.SetTag("success", "false")
		return &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transaction.SetTag("success", "false")
		return c.classifyHTTPError(resp)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode prediction response: %w", err)
	}
	if len(parsed.Predictions) == 0 {
		return ErrEmptyResult
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output folder: %w", err)
		}
	}
	if err := os.WriteFile(destPath, audio, 0o644); err != nil {
		return fmt.Errorf("write generated audio: %w", err)
	}

	transaction.SetTag("success", "true")
	logger.LogPipelineStage("generation", time.Since(start), logger.Fields{
		"output":      destPath,
		"audio_bytes": len(audio),
	})
	return nil
}

// classifyHTTPError maps a non-OK prediction response onto the error
// taxonomy. The recitation marker in the remote message reclassifies the
// failure as a copyright rejection; everything else stays a ServiceError.
func (c *Client) classifyHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	svcErr := &ServiceError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}
	var parsed rpcErrorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		svcErr.Status = parsed.Error.Status
		svcErr.Message = parsed.Error.Message
	}

	if strings.Contains(strings.ToLower(svcErr.Message), recitationMarker) {
		logger.Warn("Generation blocked by recitation checks", logger.Fields{
			"detail": svcErr.Message,
		})
		return &CopyrightRejectionError{Detail: svcErr.Message}
	}
	return svcErr
}
