package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/melodia-app/melodia-api/internal/api"
	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/generation"
	"github.com/melodia-app/melodia-api/internal/melody"
	"github.com/melodia-app/melodia-api/internal/metrics"
	"github.com/melodia-app/melodia-api/internal/mix"
	"github.com/melodia-app/melodia-api/internal/pipeline"
	"github.com/melodia-app/melodia-api/internal/prompt"
	"github.com/melodia-app/melodia-api/internal/separation"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "melodia-api@" + releaseVersion,
			EnableTracing:    true, // Enable tracing for spans
			TracesSampleRate: 1.0,  // 100% sampling for now, adjust based on volume
			Debug:            cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			// Flush on shutdown
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	// Create working folders
	for _, dir := range cfg.RunFolders() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to create working folder:", err)
		}
	}

	ctx := context.Background()

	// CloudWatch metrics (no-op outside production)
	metricsClient, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Printf("Failed to initialize CloudWatch metrics: %v", err)
	}
	recorder := metrics.NewRecorder(metricsClient, metrics.NewSentryMetrics())

	// Music generation client (Application Default Credentials)
	generator, err := generation.NewClient(ctx, generation.Config{
		ProjectID: cfg.GCPProjectID,
		Location:  cfg.GCPLocation,
		Model:     cfg.LyriaModel,
		Endpoint:  cfg.LyriaEndpoint,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to initialize the music generation client:", err)
	}

	// Assemble the pipeline. Merge scratch files stay in the generated
	// folder; the final-output folder is publicly served.
	orchestrator := pipeline.NewOrchestrator(
		cfg,
		melody.NewExtractor(),
		separation.NewSeparator(cfg.DemucsBin, cfg.SeparatedDir),
		prompt.NewComposer(rand.New(rand.NewSource(time.Now().UnixNano()))),
		generator,
		mix.NewMerger(cfg.FFmpegBin, cfg.GeneratedDir),
		recorder,
	)

	// Set Gin mode
	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := api.SetupRouter(cfg, orchestrator, recorder, GetVersion())

	log.Printf("🚀 Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}
