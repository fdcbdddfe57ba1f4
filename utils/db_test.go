package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.Logger {
	cfg := zap.NewProductionConfig()
	l, err := cfg.Build()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func ensureDB(t *testing.T) {
	l := testLogger(t)
	t.Setenv("HISTORY_DRIVER", DriverSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "jobs.db"))
	if err := InitDB(l); err != nil {
		t.Skip("db not available")
	}
	t.Cleanup(func() { CloseDB(l) })
	if err := CreateSchema(l); err != nil {
		t.Fatalf("schema: %v", err)
	}
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	ensureDB(t)
	if err := CreateSchema(testLogger(t)); err != nil {
		t.Fatalf("second CreateSchema: %v", err)
	}
}

func TestJobIDIsUnique(t *testing.T) {
	ensureDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := `INSERT INTO analysis_jobs(id, state, model, command_line, output, started_at) VALUES(?,?,?,?,?,?)`
	if _, err := DB.ExecContext(ctx, insert, "job-a", "succeeded", "llama3", "ollama run llama3", "out", now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := DB.ExecContext(ctx, insert, "job-a", "failed", "llama3", "ollama run llama3", "", now); err == nil {
		t.Fatalf("expected unique violation")
	}
}

func TestInitDBRejectsUnknownDriver(t *testing.T) {
	t.Setenv("HISTORY_DRIVER", "mysql")
	if err := InitDB(testLogger(t)); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "90s")
	t.Setenv("TEST_BAD_TIMEOUT", "soon")
	t.Setenv("TEST_FLAG", "true")
	os.Unsetenv("TEST_MISSING")

	if d := GetDurationOrDefault("TEST_TIMEOUT", 0); d != 90*time.Second {
		t.Fatalf("duration %v", d)
	}
	if d := GetDurationOrDefault("TEST_BAD_TIMEOUT", time.Minute); d != time.Minute {
		t.Fatalf("bad duration should fall back, got %v", d)
	}
	if !GetBoolOrDefault("TEST_FLAG", false) || GetBoolOrDefault("TEST_MISSING", false) {
		t.Fatal("bool helper")
	}
	if GetEnvOrDefault("TEST_MISSING", "fallback") != "fallback" {
		t.Fatal("default not applied")
	}
}

func TestRecordJobMetrics(t *testing.T) {
	succeeded, failed, cancelled := JobsSucceeded.Value(), JobsFailed.Value(), JobsCancelled.Value()

	RecordJobMetrics(context.Background(), orchestrator.Snapshot{State: orchestrator.StateSucceeded})
	RecordJobMetrics(context.Background(), orchestrator.Snapshot{State: orchestrator.StateFailed, ErrorDetail: "no output"})
	RecordJobMetrics(context.Background(), orchestrator.Snapshot{State: orchestrator.StateFailed, ErrorDetail: orchestrator.DetailCancelled})

	if JobsSucceeded.Value()-succeeded != 1 || JobsFailed.Value()-failed != 2 || JobsCancelled.Value()-cancelled != 1 {
		t.Fatalf("counters: succeeded %d failed %d cancelled %d",
			JobsSucceeded.Value()-succeeded, JobsFailed.Value()-failed, JobsCancelled.Value()-cancelled)
	}
}

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey("job-1", "output.txt"); got != "jobs/job-1/output.txt" {
		t.Fatalf("key %q", got)
	}
}
