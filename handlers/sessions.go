package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/session"
	"github.com/byt3hx/ollama-ai-analyzer/settings"
	"github.com/byt3hx/ollama-ai-analyzer/stream"
	"github.com/byt3hx/ollama-ai-analyzer/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleCreateSession creates a session. The body is optional and may set
// any of the session fields.
func HandleCreateSession(logger *zap.Logger, sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		var fields session.Fields
		if err := c.ShouldBindJSON(&fields); err != nil && !errors.Is(err, io.EOF) {
			sugar.Warnw("Invalid session body",
				"error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		sess := sessions.CreateWith(fields)
		utils.SessionsCreated.Add(1)
		sugar.Infow("Session created",
			"session_id", sess.ID,
			"title", sess.Title)

		c.Header("Location", "/sessions/"+sess.ID)
		c.JSON(http.StatusCreated, sess)
	}
}

func HandleListSessions(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sessions.List())
	}
}

func HandleGetSession(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func HandleUpdateSession(logger *zap.Logger, sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		id := c.Param("id")
		var fields session.Fields
		if err := c.ShouldBindJSON(&fields); err != nil {
			sugar.Warnw("Invalid session body",
				"session_id", id,
				"error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		sess, err := sessions.Update(id, fields)
		if err != nil {
			sugar.Infow("Session not found",
				"session_id", id)
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func HandleDeleteSession(logger *zap.Logger, sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		id := c.Param("id")
		if err := sessions.Destroy(id); err != nil {
			sugar.Infow("Session not found",
				"session_id", id)
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		sugar.Infow("Session deleted",
			"session_id", id)
		c.Status(http.StatusNoContent)
	}
}

// HandleAnalyzeSession submits a session with the current settings. The
// job's progress is published on a feed registered under the job id.
func HandleAnalyzeSession(logger *zap.Logger, sessions *session.Store, cfg *settings.Store, feeds *stream.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		id := c.Param("id")

		feed := stream.NewFeed()
		jobID, err := sessions.Analyze(id, cfg.Get(), feed)

		var ve *analyzer.ValidationError
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		case errors.As(err, &ve):
			utils.JobsRejectedInvalid.Add(1)
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
			return
		case errors.Is(err, orchestrator.ErrBusy):
			utils.JobsRejectedBusy.Add(1)
			c.JSON(http.StatusConflict, gin.H{
				"error":   "Analysis already in progress",
				"message": "Wait for the current analysis to finish or cancel it",
			})
			return
		default:
			sugar.Errorw("Analysis submission failed",
				"session_id", id,
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start analysis"})
			return
		}

		feeds.Put(jobID, feed)
		utils.JobsSubmitted.Add(1)

		c.Header("Location", fmt.Sprintf("/jobs/%s", jobID))
		c.JSON(http.StatusAccepted, gin.H{
			"jobId":     jobID,
			"sessionId": id,
			"stream":    fmt.Sprintf("/jobs/%s/stream", jobID),
		})
	}
}
