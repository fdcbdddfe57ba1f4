package valkeystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/valkey-io/valkey-go/valkeycompat"
)

const (
	ResultKeyPrefix = "analysis"
	DefaultTTL      = 24 * time.Hour
)

var ErrCacheMiss = errors.New("result not cached")

// ResultKey is the cache key of a job's terminal snapshot.
func ResultKey(jobID string) string {
	return fmt.Sprintf("%s:%s", ResultKeyPrefix, jobID)
}

// ResultCache keeps terminal job snapshots in valkey for a day.
type ResultCache struct {
	Client valkeycompat.Cmdable
	TTL    time.Duration
}

func (c *ResultCache) Record(ctx context.Context, snap orchestrator.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.Client.Set(ctx, ResultKey(snap.ID), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("cache storage failed: %w", err)
	}
	return nil
}

func (c *ResultCache) Get(ctx context.Context, jobID string) (orchestrator.Snapshot, error) {
	data, err := c.Client.Get(ctx, ResultKey(jobID)).Result()
	if IsNil(err) {
		return orchestrator.Snapshot{}, ErrCacheMiss
	}
	if err != nil {
		return orchestrator.Snapshot{}, fmt.Errorf("cache retrieval failed: %w", err)
	}

	var snap orchestrator.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return orchestrator.Snapshot{}, fmt.Errorf("failed to decode cached job: %w", err)
	}
	return snap, nil
}
