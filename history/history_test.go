package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/utils"
	"go.uber.org/zap"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	l := zap.NewNop()
	dsn := "file:" + filepath.Join(t.TempDir(), "history.db") + "?_busy_timeout=5000"
	if err := utils.OpenDB(utils.DriverSQLite, dsn, l); err != nil {
		t.Skip("sqlite not available")
	}
	t.Cleanup(func() { utils.CloseDB(l) })
	if err := utils.CreateSchema(l); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return &Store{DB: utils.DB, Driver: utils.DBDriver}
}

func snapshot(id, session string, started time.Time, state orchestrator.State) orchestrator.Snapshot {
	finished := started.Add(3 * time.Second)
	snap := orchestrator.Snapshot{
		ID:          id,
		SessionID:   session,
		State:       state,
		Model:       "llama3",
		CommandLine: `ollama run llama3 "inspect"`,
		PayloadDir:  "/tmp/ollama_123",
		StartedAt:   started,
		FinishedAt:  &finished,
	}
	code := 0
	if state == orchestrator.StateSucceeded {
		snap.Output = "GET /admin\n"
	} else {
		code = 1
		snap.ErrorDetail = "model not found"
	}
	snap.ExitCode = &code
	return snap
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	want := snapshot("job-1", "sess-1", started, orchestrator.StateSucceeded)
	if err := s.Record(ctx, want); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != orchestrator.StateSucceeded || got.Output != want.Output || got.SessionID != "sess-1" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Fatalf("exit code %v", got.ExitCode)
	}
	if !got.StartedAt.Equal(started) || got.FinishedAt == nil || !got.FinishedAt.Equal(*want.FinishedAt) {
		t.Fatalf("timestamps %v / %v", got.StartedAt, got.FinishedAt)
	}
}

func TestRecordUpserts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshot("job-1", "", started, orchestrator.StateFailed)
	snap.ExitCode = nil
	if err := s.Record(ctx, snap); err != nil {
		t.Fatalf("record: %v", err)
	}
	snap.ErrorDetail = "cancelled"
	if err := s.Record(ctx, snap); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ErrorDetail != "cancelled" || got.ExitCode != nil {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		session := "sess-1"
		if id == "b" {
			session = "sess-2"
		}
		if err := s.Record(ctx, snapshot(id, session, base.Add(time.Duration(i)*time.Minute), orchestrator.StateSucceeded)); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	all, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order %+v", all)
	}

	limited, err := s.List(ctx, "", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit: %v, %d rows", err, len(limited))
	}

	bySession, err := s.List(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("list by session: %v", err)
	}
	if len(bySession) != 2 || bySession[0].ID != "c" || bySession[1].ID != "a" {
		t.Fatalf("unexpected session filter result %+v", bySession)
	}
}

func TestRebindFollowsDriver(t *testing.T) {
	q := "SELECT 1 FROM analysis_jobs WHERE session_id = ? LIMIT ?"

	if got := (&Store{Driver: "postgres"}).rebind(q); got != "SELECT 1 FROM analysis_jobs WHERE session_id = $1 LIMIT $2" {
		t.Fatalf("postgres rebind %q", got)
	}
	if got := (&Store{Driver: "sqlite3"}).rebind(q); got != q {
		t.Fatalf("sqlite queries must be left alone, got %q", got)
	}
}
