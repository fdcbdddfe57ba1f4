package utils

import (
	"context"
	"expvar"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
)

var JobsSubmitted = expvar.NewInt("jobs_submitted_total")
var JobsRejectedBusy = expvar.NewInt("jobs_rejected_busy_total")
var JobsRejectedInvalid = expvar.NewInt("jobs_rejected_invalid_total")
var JobsSucceeded = expvar.NewInt("jobs_succeeded_total")
var JobsFailed = expvar.NewInt("jobs_failed_total")
var JobsCancelled = expvar.NewInt("jobs_cancelled_total")
var SessionsCreated = expvar.NewInt("sessions_created_total")
var CapturesReceived = expvar.NewInt("captures_received_total")

// RecordJobMetrics counts finished jobs by outcome.
func RecordJobMetrics(_ context.Context, snap orchestrator.Snapshot) error {
	switch {
	case snap.State == orchestrator.StateSucceeded:
		JobsSucceeded.Add(1)
	case snap.ErrorDetail == orchestrator.DetailCancelled:
		JobsCancelled.Add(1)
		JobsFailed.Add(1)
	default:
		JobsFailed.Add(1)
	}
	return nil
}
