package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/stream"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleStreamJob streams a job's progress as server-sent events named
// chunk, succeeded and failed. A job whose feed is gone gets a single
// terminal event built from its stored snapshot.
func HandleStreamJob(logger *zap.Logger, feeds *stream.Registry, lookup *JobLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		feed, ok := feeds.Get(id)
		if !ok {
			snap, err := lookup.Find(c.Request.Context(), id)
			if errors.Is(err, errJobNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
				return
			}
			if err != nil || !snap.State.Terminal() {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve job"})
				return
			}
			c.Header("Cache-Control", "no-cache")
			ev := terminalEvent(snap)
			c.SSEvent(string(ev.Kind), ev)
			return
		}

		events, cancel := feed.Subscribe()
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		// Send headers now; the first event may be a long way off.
		c.Writer.WriteHeader(http.StatusOK)
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Kind), ev)
				return !ev.Terminal()
			case <-c.Request.Context().Done():
				logger.Debug("Stream client went away", zap.String("job_id", id))
				return false
			}
		})
	}
}

func terminalEvent(snap orchestrator.Snapshot) stream.Event {
	if snap.State == orchestrator.StateSucceeded {
		return stream.Event{Kind: stream.KindSucceeded, Output: snap.Output}
	}
	return stream.Event{Kind: stream.KindFailed, Output: snap.Output, Detail: snap.ErrorDetail}
}
