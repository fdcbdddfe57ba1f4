package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func HandleGetSettings(cfg *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Get())
	}
}

func HandleUpdateSettings(logger *zap.Logger, cfg *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		var patch settings.Patch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		updated, err := cfg.Update(patch)
		if errors.Is(err, settings.ErrInvalidPath) {
			sugar.Warnw("Rejected executable path",
				"error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			sugar.Errorw("Settings save failed",
				"file", cfg.File(),
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

type testSettingsRequest struct {
	Path string `json:"path"`
}

// HandleTestSettings checks that the saved model runner can be launched
// and lists its models. A body naming any other path is refused; the path
// has to be saved through PUT /settings first.
func HandleTestSettings(logger *zap.Logger, cfg *settings.Store, orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		var req testSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		path := cfg.Get().Path
		if requested := strings.TrimSpace(req.Path); requested != "" && requested != path {
			sugar.Warnw("Refused to test an unsaved executable path",
				"requested", requested,
				"saved", path)
			c.JSON(http.StatusBadRequest, gin.H{"error": "save the path before testing it"})
			return
		}

		c.JSON(http.StatusOK, orch.Diagnose(c.Request.Context(), path))
	}
}
