package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/byt3hx/ollama-ai-analyzer/history"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/utils"
	valkeystore "github.com/byt3hx/ollama-ai-analyzer/valkey"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errJobNotFound = errors.New("job not found")

// JobLookup finds a job snapshot wherever it still lives: the orchestrator
// for the current job, then the result cache, then the history database.
// Cache and History are optional.
type JobLookup struct {
	Orchestrator *orchestrator.Orchestrator
	Cache        *valkeystore.ResultCache
	History      *history.Store
	Logger       *zap.Logger
}

func (l *JobLookup) Find(ctx context.Context, id string) (orchestrator.Snapshot, error) {
	if snap, ok := l.Orchestrator.Current(); ok && snap.ID == id {
		return snap, nil
	}

	if l.Cache != nil {
		snap, err := l.Cache.Get(ctx, id)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, valkeystore.ErrCacheMiss) && l.Logger != nil {
			l.Logger.Warn("Cache lookup failed", zap.String("job_id", id), zap.Error(err))
		}
	}

	if l.History != nil {
		snap, err := l.History.Get(ctx, id)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, history.ErrNotFound) {
			return orchestrator.Snapshot{}, err
		}
	}

	return orchestrator.Snapshot{}, errJobNotFound
}

// HandleGetJob returns the snapshot of a job
func HandleGetJob(logger *zap.Logger, lookup *JobLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		id := c.Param("id")

		snap, err := lookup.Find(c.Request.Context(), id)
		if errors.Is(err, errJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Job not found",
				"message": "The job id is unknown or its result has expired",
			})
			return
		}
		if err != nil {
			sugar.Errorw("Job retrieval failed",
				"job_id", id,
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve job"})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// HandleGetCurrentJob returns the running job, or the last one.
func HandleGetCurrentJob(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := orch.Current()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no analysis has run yet"})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func HandleCancelJob(logger *zap.Logger, orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		if err := orch.Terminate(); err != nil {
			sugar.Infow("Nothing to cancel",
				"error", err)
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		snap, _ := orch.Current()
		sugar.Infow("Cancellation requested",
			"job_id", snap.ID)
		c.JSON(http.StatusAccepted, gin.H{"jobId": snap.ID, "message": "cancellation requested"})
	}
}

// HandleListJobs lists finished jobs from the history database.
func HandleListJobs(logger *zap.Logger, hist *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		if hist == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history is disabled"})
			return
		}

		limit, _ := strconv.Atoi(c.Query("limit"))
		jobs, err := hist.List(c.Request.Context(), c.Query("sessionId"), limit)
		if err != nil {
			sugar.Errorw("Job history query failed",
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			return
		}
		if jobs == nil {
			jobs = []orchestrator.Snapshot{}
		}
		c.JSON(http.StatusOK, jobs)
	}
}

// HandleGetJobOutput serves the archived output of a finished job.
func HandleGetJobOutput(logger *zap.Logger, bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sugar := logger.Sugar()
		if bucket == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive is disabled"})
			return
		}

		id := c.Param("id")
		data, err := utils.DownloadS3Object(c.Request.Context(), bucket, utils.ArchiveKey(id, "output.txt"))
		if err != nil {
			sugar.Errorw("Archived output retrieval failed",
				"job_id", id,
				"error", err)
			c.JSON(http.StatusNotFound, gin.H{"error": "archived output not found"})
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+id+`.txt"`)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
	}
}
