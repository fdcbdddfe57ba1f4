package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/handlers"
	"github.com/byt3hx/ollama-ai-analyzer/history"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/runner"
	"github.com/byt3hx/ollama-ai-analyzer/session"
	"github.com/byt3hx/ollama-ai-analyzer/settings"
	"github.com/byt3hx/ollama-ai-analyzer/stream"
	"github.com/byt3hx/ollama-ai-analyzer/subscriber"
	"github.com/byt3hx/ollama-ai-analyzer/utils"
	valkeystore "github.com/byt3hx/ollama-ai-analyzer/valkey"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func defaultSettingsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ollama_ai_analyzer.yaml"
	}
	return filepath.Join(home, ".ollama_ai_analyzer.yaml")
}

func main() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("cannot initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Analyzer settings
	settingsStore, err := settings.Load(utils.GetEnvOrDefault("SETTINGS_FILE", defaultSettingsFile()), logger)
	if err != nil {
		sugar.Fatalw("failed to load settings",
			"error", err)
	}

	var recorders []orchestrator.Recorder
	recorders = append(recorders, orchestrator.RecorderFunc(utils.RecordJobMetrics))

	// Job history
	var hist *history.Store
	if os.Getenv("HISTORY_DRIVER") != "" {
		if err := utils.InitDB(logger); err != nil {
			sugar.Fatalw("failed to init database",
				"error", err)
		}
		defer utils.CloseDB(logger)

		if err := utils.CreateSchema(logger); err != nil {
			sugar.Fatalw("failed to create database schema",
				"error", err)
		}
		hist = &history.Store{DB: utils.DB, Driver: utils.DBDriver}
		recorders = append(recorders, hist)
	} else {
		sugar.Info("Job history disabled")
	}

	// Result cache and capture channel
	var cache *valkeystore.ResultCache
	if valkeystore.Enabled() {
		if err := valkeystore.InitValkey(logger); err != nil {
			sugar.Fatalw("failed to init valkey",
				"error", err)
		}
		defer valkeystore.CloseValkey(logger)

		cache = &valkeystore.ResultCache{
			Client: valkeystore.Client,
			TTL:    utils.GetDurationOrDefault("RESULT_CACHE_TTL", valkeystore.DefaultTTL),
		}
		recorders = append(recorders, cache)
	} else {
		sugar.Info("Result cache disabled")
	}

	// Archive
	bucket := os.Getenv("ARCHIVE_BUCKET")
	if bucket != "" {
		if err := utils.InitS3(logger); err != nil {
			sugar.Fatalw("failed to init s3",
				"error", err)
		}
		recorders = append(recorders, &utils.Archive{Bucket: bucket, Logger: logger})
	} else {
		sugar.Info("Job archive disabled")
	}

	procRunner := &runner.Exec{
		Logger:      logger,
		PayloadBase: utils.GetEnvOrDefault("PAYLOAD_DIR", os.TempDir()),
		GracePeriod: utils.GetDurationOrDefault("TERMINATE_GRACE", 5*time.Second),
	}
	orch := orchestrator.New(procRunner, logger,
		orchestrator.WithTimeout(utils.GetDurationOrDefault("JOB_TIMEOUT", 0)),
		orchestrator.WithRecorders(recorders...),
	)
	sessions := session.NewStore(orch, logger)
	feeds := stream.NewRegistry(stream.DefaultRetain)
	lookup := &handlers.JobLookup{Orchestrator: orch, Cache: cache, History: hist, Logger: logger}

	// Start pub/sub subscribers in background
	if valkeystore.Enabled() {
		subscriber.StartSubscribers(ctx, logger, &subscriber.Intake{
			Sessions: sessions,
			Settings: settingsStore,
			Feeds:    feeds,
		})
	}

	// Setup HTTP server
	r := gin.New()
	sugar.Info("Creating router")

	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	// Settings routes
	r.GET("/settings", handlers.HandleGetSettings(settingsStore))
	r.PUT("/settings", handlers.HandleUpdateSettings(logger, settingsStore))
	r.POST("/settings/test", handlers.HandleTestSettings(logger, settingsStore, orch))

	// Session routes
	r.POST("/sessions", handlers.HandleCreateSession(logger, sessions))
	r.GET("/sessions", handlers.HandleListSessions(sessions))
	r.GET("/sessions/:id", handlers.HandleGetSession(sessions))
	r.PATCH("/sessions/:id", handlers.HandleUpdateSession(logger, sessions))
	r.DELETE("/sessions/:id", handlers.HandleDeleteSession(logger, sessions))
	r.POST("/sessions/:id/analyze", handlers.HandleAnalyzeSession(logger, sessions, settingsStore, feeds))

	// Job routes
	r.GET("/jobs", handlers.HandleListJobs(logger, hist))
	r.GET("/jobs/current", handlers.HandleGetCurrentJob(orch))
	r.POST("/jobs/current/cancel", handlers.HandleCancelJob(logger, orch))
	r.GET("/jobs/:id", handlers.HandleGetJob(logger, lookup))
	r.GET("/jobs/:id/stream", handlers.HandleStreamJob(logger, feeds, lookup))
	r.GET("/jobs/:id/output", handlers.HandleGetJobOutput(logger, bucket))

	// Health check
	r.GET("/healthcheck", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	r.GET("/metrics", handlers.HandleMetrics(orch))
	r.GET("/db-status", handlers.HandleDBStatus())

	// Loopback by default: the settings routes choose which binary runs.
	host := utils.GetEnvOrDefault("APP_HOST", "127.0.0.1")
	port := utils.GetEnvOrDefault("APP_PORT", "8080")
	srv := &http.Server{
		Addr:    net.JoinHostPort(host, port),
		Handler: r,
	}

	go func() {
		sugar.Infow("Running on port",
			"host", host,
			"port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed",
				"error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down")

	if err := orch.Terminate(); err == nil {
		sugar.Info("Cancelled running analysis")
	}
	orch.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed",
			"error", err)
	}
}
