package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girderhq/girder/pkg/contextkeys"
)

type captureLogger struct {
	NopLogger
	mu      sync.Mutex
	entries []*Entry
	fail    error
}

func (c *captureLogger) Append(ctx context.Context, entry *Entry) error {
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func TestRecorder_Record(t *testing.T) {
	t.Run("fills context fields and timestamp", func(t *testing.T) {
		sink := &captureLogger{}
		rec := NewRecorder(sink, nil, nil, nil)

		ctx := context.Background()
		ctx = context.WithValue(ctx, contextkeys.ClientIPKey, "203.0.113.9")
		ctx = context.WithValue(ctx, contextkeys.UserAgentKey, "girder-web")
		ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "req-77")

		rec.Record(ctx, &Entry{
			TenantID: 10,
			ActorID:  1,
			Action:   ActionInviteMember,
			Resource: ResourceMembership,
			Status:   StatusSuccess,
		})

		require.Len(t, sink.entries, 1)
		got := sink.entries[0]
		assert.Equal(t, "203.0.113.9", got.IPAddress)
		assert.Equal(t, "girder-web", got.UserAgent)
		assert.Equal(t, "req-77", got.RequestID)
		assert.False(t, got.Timestamp.IsZero())
	})

	t.Run("explicit fields win over context", func(t *testing.T) {
		sink := &captureLogger{}
		rec := NewRecorder(sink, nil, nil, nil)

		ctx := context.WithValue(context.Background(), contextkeys.ClientIPKey, "203.0.113.9")
		stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rec.Record(ctx, &Entry{
			TenantID:  10,
			Action:    ActionUpdateRole,
			Resource:  ResourceMembership,
			Status:    StatusSuccess,
			IPAddress: "198.51.100.1",
			Timestamp: stamp,
		})

		require.Len(t, sink.entries, 1)
		assert.Equal(t, "198.51.100.1", sink.entries[0].IPAddress)
		assert.Equal(t, stamp, sink.entries[0].Timestamp)
	})

	t.Run("denormalizes the actor name at write time", func(t *testing.T) {
		sink := &captureLogger{}
		names := func(ctx context.Context, userID int64) (string, error) {
			require.Equal(t, int64(1), userID)
			return "Dana Site", nil
		}
		rec := NewRecorder(sink, names, nil, nil)

		rec.Record(context.Background(), &Entry{
			TenantID: 10,
			ActorID:  1,
			Action:   ActionUpdateRole,
			Resource: ResourceMembership,
			Status:   StatusSuccess,
		})

		require.Len(t, sink.entries, 1)
		assert.Equal(t, "Dana Site", sink.entries[0].ActorName)
	})

	t.Run("preset actor name is kept", func(t *testing.T) {
		sink := &captureLogger{}
		names := func(ctx context.Context, userID int64) (string, error) {
			t.Fatal("lookup should not run when the name is preset")
			return "", nil
		}
		rec := NewRecorder(sink, names, nil, nil)

		rec.Record(context.Background(), &Entry{
			TenantID:  10,
			ActorID:   1,
			ActorName: "Import Job",
			Action:    ActionInviteMember,
			Resource:  ResourceMembership,
			Status:    StatusSuccess,
		})

		require.Len(t, sink.entries, 1)
		assert.Equal(t, "Import Job", sink.entries[0].ActorName)
	})

	t.Run("failed name lookup leaves the entry intact", func(t *testing.T) {
		sink := &captureLogger{}
		names := func(ctx context.Context, userID int64) (string, error) {
			return "", errors.New("users table unavailable")
		}
		rec := NewRecorder(sink, names, nil, nil)

		rec.Record(context.Background(), &Entry{
			TenantID: 10,
			ActorID:  1,
			Action:   ActionRemoveMember,
			Resource: ResourceMembership,
			Status:   StatusSuccess,
		})

		require.Len(t, sink.entries, 1)
		assert.Empty(t, sink.entries[0].ActorName)
	})

	t.Run("append failure is swallowed", func(t *testing.T) {
		sink := &captureLogger{fail: errors.New("sink down")}
		rec := NewRecorder(sink, nil, nil, nil)

		// Must not panic or surface the failure.
		rec.Record(context.Background(), &Entry{
			TenantID: 10,
			Action:   ActionRemoveMember,
			Resource: ResourceMembership,
			Status:   StatusSuccess,
		})
		assert.Empty(t, sink.entries)
	})
}
