package handlers

import (
	"net/http"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/utils"

	"github.com/gin-gonic/gin"
)

func HandleMetrics(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"jobs_submitted_total":        utils.JobsSubmitted.Value(),
			"jobs_rejected_busy_total":    utils.JobsRejectedBusy.Value(),
			"jobs_rejected_invalid_total": utils.JobsRejectedInvalid.Value(),
			"jobs_succeeded_total":        utils.JobsSucceeded.Value(),
			"jobs_failed_total":           utils.JobsFailed.Value(),
			"jobs_cancelled_total":        utils.JobsCancelled.Value(),
			"sessions_created_total":      utils.SessionsCreated.Value(),
			"captures_received_total":     utils.CapturesReceived.Value(),
			"busy":                        orch.Busy(),
		})
	}
}
