package valkeystore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func ensureValkey(t *testing.T) {
	if os.Getenv("VALKEY_HOST") == "" {
		t.Setenv("VALKEY_HOST", "localhost")
	}
	if err := InitValkey(zap.NewNop()); err != nil {
		t.Skip("valkey not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Client.Ping(ctx).Err(); err != nil {
		t.Skip("valkey not available")
	}
}

func TestResultCacheRoundTrip(t *testing.T) {
	ensureValkey(t)
	ctx := context.Background()
	cache := &ResultCache{Client: Client, TTL: time.Minute}

	code := 0
	finished := time.Now().UTC().Truncate(time.Millisecond)
	want := orchestrator.Snapshot{
		ID:         uuid.NewString(),
		State:      orchestrator.StateSucceeded,
		Output:     "GET /admin\n",
		ExitCode:   &code,
		Model:      "llama3",
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: &finished,
	}
	if err := cache.Record(ctx, want); err != nil {
		t.Fatalf("record: %v", err)
	}
	t.Cleanup(func() { Client.Del(ctx, ResultKey(want.ID)) })

	got, err := cache.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != orchestrator.StateSucceeded || got.Output != want.Output || !got.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	ttl, err := Client.TTL(ctx, ResultKey(want.ID)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl %v, err %v", ttl, err)
	}
}

func TestResultCacheMiss(t *testing.T) {
	ensureValkey(t)
	cache := &ResultCache{Client: Client}
	if _, err := cache.Get(context.Background(), uuid.NewString()); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("want ErrCacheMiss, got %v", err)
	}
}

func TestResultKey(t *testing.T) {
	if got := ResultKey("abc"); got != "analysis:abc" {
		t.Fatalf("key %q", got)
	}
	if IsNil(nil) || IsNil(errors.New("boom")) {
		t.Fatal("only nil replies count as a miss")
	}
}
