package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/girderhq/girder/pkg/observability"
)

// Event is a cross-instance permission-change signal. Instance is the
// publishing process's ID so a subscriber can skip its own events; the
// publisher already delivered them locally.
type Event struct {
	Instance string `json:"instance"`
	TenantID int64  `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
}

// Broadcaster fans events out to the other instances of the service.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, handle func(Event)) error
	Close() error
}

const redisChannel = "girder:rbac:updates"

// RedisBroadcaster bridges the hub across instances through a Redis
// pub/sub channel. Pub/sub is fire-and-forget, which matches the
// at-most-once contract exactly.
type RedisBroadcaster struct {
	client *redis.Client
	logger *observability.Logger
	sub    *redis.PubSub
}

// NewRedisBroadcaster creates a broadcaster over an open client.
func NewRedisBroadcaster(client *redis.Client, logger *observability.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, logger: logger}
}

// Publish sends an event to the channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe consumes the channel until ctx is cancelled, invoking
// handle for each decodable event. Undecodable payloads are logged
// and skipped.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, handle func(Event)) error {
	b.sub = b.client.Subscribe(ctx, redisChannel)
	if _, err := b.sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	ch := b.sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				if b.logger != nil {
					b.logger.WithError(err).Warn("dropping undecodable propagation event")
				}
				continue
			}
			handle(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close tears down the subscription.
func (b *RedisBroadcaster) Close() error {
	if b.sub != nil {
		return b.sub.Close()
	}
	return nil
}
