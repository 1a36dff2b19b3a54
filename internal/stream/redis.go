package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus on Redis pub/sub, so events reach subscribers on
// every API node, not just the one that performed the write.
type RedisBus struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBus creates a Redis-backed event bus.
func NewRedisBus(client *redis.Client, keyPrefix string) *RedisBus {
	if keyPrefix == "" {
		keyPrefix = "stocktake:events"
	}
	return &RedisBus{client: client, keyPrefix: keyPrefix}
}

func (b *RedisBus) channel(sessionID string) string {
	return fmt.Sprintf("%s:%s", b.keyPrefix, sessionID)
}

// Publish serializes the event and publishes it to the session channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel(ev.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub channel for the session and pumps decoded
// events to fn until the subscription is canceled.
func (b *RedisBus) Subscribe(sessionID string, fn HandlerFunc) (*Subscription, error) {
	ctx := context.Background()
	pubsub := b.client.Subscribe(ctx, b.channel(sessionID))

	// Confirm the subscription before returning so callers never miss
	// events published right after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[RedisBus] Dropping undecodable event: %v", err)
				continue
			}
			fn(ev)
		}
	}()

	return newSubscription(func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("[RedisBus] Error closing subscription: %v", err)
		}
	}), nil
}

// Close is a no-op; the shared Redis client is owned by the caller.
func (b *RedisBus) Close() error { return nil }

// Ensure RedisBus satisfies Bus.
var _ Bus = (*RedisBus)(nil)
