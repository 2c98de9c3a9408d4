package handlers

import (
	"net/http"
	"os/exec"

	"github.com/gin-gonic/gin"

	"github.com/melodia-app/melodia-api/internal/config"
)

type HealthHandler struct {
	cfg *config.Config
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

// HealthCheck returns the health status of the API and whether the
// external audio tools are resolvable on this host.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"tools": gin.H{
			"demucs": toolStatus(h.cfg.DemucsBin),
			"ffmpeg": toolStatus(h.cfg.FFmpegBin),
		},
	})
}

func toolStatus(bin string) string {
	if _, err := exec.LookPath(bin); err != nil {
		return "missing"
	}
	return "available"
}
