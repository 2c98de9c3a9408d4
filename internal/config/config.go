package config

import (
	"errors"
	"os"
	"time"
)

// Config holds the application configuration
// Note: This is a stateless configuration - all pipeline state lives on disk
// under the four run folders, and every run writes uniquely named files.
type Config struct {
	// Environment
	Environment string
	Port        string

	// Google Cloud (Lyria text-to-music)
	GCPProjectID  string
	GCPLocation   string
	LyriaModel    string
	LyriaEndpoint string // optional full endpoint override, mainly for tests

	// External tools
	DemucsBin string
	FFmpegBin string

	// Run folders
	UploadsDir     string // raw uploaded input
	GeneratedDir   string // intermediate artifacts and humming output
	SeparatedDir   string // demucs output tree
	FinalOutputDir string // merged genre-conversion output

	// External call bounds
	SeparationTimeout time.Duration
	GenerationTimeout time.Duration
	MergeTimeout      time.Duration

	// Observability
	SentryDSN string // Sentry DSN for error tracking
}

// ErrMissingProjectID is returned by Validate when no GCP project is configured.
var ErrMissingProjectID = errors.New("GCP_PROJECT_ID environment variable is not set")

func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		GCPProjectID:      getEnv("GCP_PROJECT_ID", ""),
		GCPLocation:       getEnv("GCP_LOCATION", "us-central1"),
		LyriaModel:        getEnv("LYRIA_MODEL", "lyria-002"),
		LyriaEndpoint:     getEnv("LYRIA_ENDPOINT", ""),
		DemucsBin:         getEnv("DEMUCS_BIN", "demucs"),
		FFmpegBin:         getEnv("FFMPEG_BIN", "ffmpeg"),
		UploadsDir:        getEnv("UPLOADS_DIR", "uploads"),
		GeneratedDir:      getEnv("GENERATED_DIR", "generated"),
		SeparatedDir:      getEnv("SEPARATED_DIR", "demucs_output"),
		FinalOutputDir:    getEnv("FINAL_OUTPUT_DIR", "final_output"),
		SeparationTimeout: getDuration("SEPARATION_TIMEOUT", 10*time.Minute),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 5*time.Minute),
		MergeTimeout:      getDuration("MERGE_TIMEOUT", 2*time.Minute),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
	}
}

// Validate checks the settings required before the first pipeline run.
// Folder creation happens in main, not here.
func (c *Config) Validate() error {
	if c.GCPProjectID == "" {
		return ErrMissingProjectID
	}
	return nil
}

// RunFolders lists the four folders every deployment needs on disk.
func (c *Config) RunFolders() []string {
	return []string{c.UploadsDir, c.GeneratedDir, c.SeparatedDir, c.FinalOutputDir}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
