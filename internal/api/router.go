package api

import (
	"github.com/gin-gonic/gin"

	"github.com/melodia-app/melodia-api/internal/api/handlers"
	apimiddleware "github.com/melodia-app/melodia-api/internal/api/middleware"
	"github.com/melodia-app/melodia-api/internal/config"
	"github.com/melodia-app/melodia-api/internal/metrics"
)

func SetupRouter(cfg *config.Config, runner handlers.PipelineRunner, recorder *metrics.Recorder, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(recorder))

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Generated audio is served straight from the output folders
	router.Static("/music", cfg.GeneratedDir)
	router.Static("/final_music", cfg.FinalOutputDir)

	// Health check
	healthHandler := handlers.NewHealthHandler(cfg)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoint
	metricsHandler := handlers.NewMetricsHandler(version)
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	// Pipeline endpoints
	pipelineHandler := handlers.NewPipelineHandler(cfg, runner, recorder)
	router.POST("/generate-from-humming", pipelineHandler.GenerateFromHumming)
	router.POST("/convert-genre", pipelineHandler.ConvertGenre)

	return router
}
