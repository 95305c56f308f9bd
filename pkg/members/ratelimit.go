package members

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// InviteRateLimiter caps invitations per actor over a sliding window,
// shared across instances through Redis. A nil limiter or a zero limit
// disables the cap. Redis failures fail open: a broken limiter must
// not block legitimate invitations.
type InviteRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewInviteRateLimiter creates a limiter; client may be nil when Redis
// is not configured.
func NewInviteRateLimiter(client *redis.Client, limit int, window time.Duration) *InviteRateLimiter {
	return &InviteRateLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether the actor may send another invitation, and
// consumes one slot when they may.
func (l *InviteRateLimiter) Allow(ctx context.Context, actorID int64) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("girder:invites:%d", actorID)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}
