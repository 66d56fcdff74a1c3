// Package cache mirrors the latest leaderboard into Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-tracker/internal/domain"
)

const (
	latestPrefix   = "crypto:latest:"
	leaderboardKey = "crypto:leaderboard"

	// UpdatesChannel receives the saved symbols after every cycle.
	UpdatesChannel = "crypto.updates"

	// DefaultTTL bounds how long a cached snapshot outlives its last refresh.
	DefaultTTL = 30 * time.Minute
)

// ErrNotCached is returned when a symbol has no cached snapshot, either
// because it was never published or because its entry expired.
var ErrNotCached = errors.New("snapshot not cached")

// SnapshotCache writes each cycle's saved records to Redis.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a cache over client. ttl <= 0 uses DefaultTTL.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// Name identifies the cache in logs and metrics.
func (c *SnapshotCache) Name() string { return "redis_cache" }

// Publish stores the saved snapshots, replaces the member list, drops cached
// symbols that left the leaderboard and announces the update.
func (c *SnapshotCache) Publish(ctx context.Context, report *domain.CycleReport) error {
	if report == nil || len(report.Saved) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for _, rec := range report.Saved {
		payload, err := json.Marshal(domain.NewSnapshot(rec, report.At).View())
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.Symbol, err)
		}
		pipe.Set(ctx, latestPrefix+rec.Symbol, payload, c.ttl)
	}
	if len(report.Members) > 0 {
		members := make([]any, len(report.Members))
		for i, sym := range report.Members {
			members[i] = sym
		}
		pipe.Del(ctx, leaderboardKey)
		pipe.RPush(ctx, leaderboardKey, members...)
		pipe.Expire(ctx, leaderboardKey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}

	if len(report.Members) > 0 {
		if err := c.dropNonMembers(ctx, report.Members); err != nil {
			return err
		}
	}

	saved := make([]string, len(report.Saved))
	for i, rec := range report.Saved {
		saved[i] = rec.Symbol
	}
	if err := c.client.Publish(ctx, UpdatesChannel, strings.Join(saved, ",")).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

func (c *SnapshotCache) dropNonMembers(ctx context.Context, members []string) error {
	keep := make(map[string]struct{}, len(members))
	for _, sym := range members {
		keep[latestPrefix+sym] = struct{}{}
	}

	var stale []string
	iter := c.client.Scan(ctx, 0, latestPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if _, ok := keep[iter.Val()]; !ok {
			stale = append(stale, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached snapshots: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, stale...).Err(); err != nil {
		return fmt.Errorf("drop stale snapshots: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot for symbol, or ErrNotCached if absent.
func (c *SnapshotCache) Latest(ctx context.Context, symbol string) (*domain.Snapshot, error) {
	payload, err := c.client.Get(ctx, latestPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotCached)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", symbol, err)
	}
	var view domain.SnapshotView
	if err := json.Unmarshal(payload, &view); err != nil {
		return nil, fmt.Errorf("decode %s: %w", symbol, err)
	}
	return view.Snapshot(), nil
}

// Leaderboard returns the cached snapshots in member order. Members whose
// snapshot has expired are omitted.
func (c *SnapshotCache) Leaderboard(ctx context.Context) ([]*domain.Snapshot, error) {
	members, err := c.client.LRange(ctx, leaderboardKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, sym := range members {
		keys[i] = latestPrefix + sym
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}

	var result []*domain.Snapshot
	for _, v := range values {
		payload, ok := v.(string)
		if !ok || payload == "" {
			continue
		}
		var view domain.SnapshotView
		if err := json.Unmarshal([]byte(payload), &view); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		result = append(result, view.Snapshot())
	}
	return result, nil
}
