package audit

import "context"

// Logger is the durable sink for audit entries. Append sets the
// entry's ID on success. There is deliberately no update or delete:
// the trail is append-only.
type Logger interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, tenantID int64, filter Filter) ([]*Entry, error)
	DeleteTenant(ctx context.Context, tenantID int64) error
	Close() error
}

// NopLogger discards entries; used in tests and as a safe default.
type NopLogger struct{}

func (NopLogger) Append(ctx context.Context, entry *Entry) error { return nil }

func (NopLogger) Query(ctx context.Context, tenantID int64, filter Filter) ([]*Entry, error) {
	return nil, nil
}

func (NopLogger) DeleteTenant(ctx context.Context, tenantID int64) error { return nil }

func (NopLogger) Close() error { return nil }
