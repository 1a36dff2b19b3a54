package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"stocktake-api/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisPresence implements PresenceStore on Redis. Each presence record
// is one key with a TTL, so expiry needs no sweeper; multiple API nodes
// share the same roster.
type RedisPresence struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPresence creates a Redis-backed presence store.
func NewRedisPresence(client *redis.Client, keyPrefix string) *RedisPresence {
	if keyPrefix == "" {
		keyPrefix = "stocktake:presence"
	}
	return &RedisPresence{client: client, keyPrefix: keyPrefix}
}

func (r *RedisPresence) key(sessionID, operator string) string {
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, sessionID, operator)
}

func (r *RedisPresence) pattern(sessionID string) string {
	return fmt.Sprintf("%s:%s:*", r.keyPrefix, sessionID)
}

// Heartbeat creates or refreshes the operator's presence record.
func (r *RedisPresence) Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error {
	rec := model.Presence{Operator: operator, SeenAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(sessionID, operator), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// Leave removes the operator's presence record.
func (r *RedisPresence) Leave(ctx context.Context, sessionID, operator string) error {
	if err := r.client.Del(ctx, r.key(sessionID, operator)).Err(); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

// Roster returns the operators currently present in the session.
func (r *RedisPresence) Roster(ctx context.Context, sessionID string) ([]model.Presence, error) {
	keys, err := r.sessionKeys(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]model.Presence, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read presence: %w", err)
		}

		var rec model.Presence
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode presence: %w", err)
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Operator) < strings.ToLower(out[j].Operator)
	})
	return out, nil
}

// Clear removes all presence records for the session.
func (r *RedisPresence) Clear(ctx context.Context, sessionID string) error {
	keys, err := r.sessionKeys(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

func (r *RedisPresence) sessionKeys(ctx context.Context, sessionID string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.pattern(sessionID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence keys: %w", err)
	}
	return keys, nil
}

// Ensure RedisPresence satisfies PresenceStore.
var _ PresenceStore = (*RedisPresence)(nil)
