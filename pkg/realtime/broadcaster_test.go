package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRedisBroadcaster_PublishSubscribe(t *testing.T) {
	client := newTestRedis(t)

	sub := NewRedisBroadcaster(client, nil)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	go func() {
		_ = sub.Subscribe(ctx, func(ev Event) {
			received <- ev
		})
	}()

	// Let the subscription settle before publishing.
	time.Sleep(100 * time.Millisecond)

	pub := NewRedisBroadcaster(client, nil)
	require.NoError(t, pub.Publish(ctx, Event{Instance: "a", TenantID: 10, UserID: 5}))

	select {
	case ev := <-received:
		assert.Equal(t, "a", ev.Instance)
		assert.Equal(t, int64(10), ev.TenantID)
		assert.Equal(t, int64(5), ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestPropagator_SkipsOwnEvents(t *testing.T) {
	hub := NewHub(nil, nil)
	client := newTestRedis(t)

	prop := NewPropagator(hub, NewRedisBroadcaster(client, nil), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = prop.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Publishing through the propagator must not loop the event back
	// into its own hub; local delivery already happened once. With no
	// sessions attached the observable contract is just that this does
	// not panic or deadlock.
	prop.PermissionsChanged(ctx, 10, 5)
	time.Sleep(100 * time.Millisecond)
}

func TestPermissionCache(t *testing.T) {
	t.Run("get after put", func(t *testing.T) {
		cache := NewPermissionCache(16, time.Minute)
		cache.Put(5, 10, []string{"projects.view"})

		tokens, ok := cache.Get(5, 10)
		require.True(t, ok)
		assert.Equal(t, []string{"projects.view"}, tokens)
	})

	t.Run("pairs are independent", func(t *testing.T) {
		cache := NewPermissionCache(16, time.Minute)
		cache.Put(5, 10, []string{"projects.view"})

		_, ok := cache.Get(5, 11)
		assert.False(t, ok)
		_, ok = cache.Get(6, 10)
		assert.False(t, ok)
	})

	t.Run("invalidate forces a miss", func(t *testing.T) {
		cache := NewPermissionCache(16, time.Minute)
		cache.Put(5, 10, []string{"projects.view"})
		cache.Invalidate(5, 10)

		_, ok := cache.Get(5, 10)
		assert.False(t, ok)
	})

	t.Run("entries age out", func(t *testing.T) {
		cache := NewPermissionCache(16, 50*time.Millisecond)
		cache.Put(5, 10, []string{"projects.view"})

		time.Sleep(120 * time.Millisecond)
		_, ok := cache.Get(5, 10)
		assert.False(t, ok)
	})
}
