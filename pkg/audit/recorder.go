package audit

import (
	"context"
	"time"

	"github.com/girderhq/girder/pkg/contextkeys"
	"github.com/girderhq/girder/pkg/observability"
)

// NameResolver looks up a user's display name for denormalization
// onto entries at write time.
type NameResolver func(ctx context.Context, userID int64) (string, error)

// Recorder is the best-effort boundary in front of a Logger. Record
// never returns an error: a failed append is counted and logged to the
// operational channel instead of failing the business operation that
// produced the entry.
type Recorder struct {
	logger  Logger
	names   NameResolver
	oplog   *observability.Logger
	metrics *observability.Metrics
}

// NewRecorder wraps a Logger; names, oplog, and metrics may be nil.
func NewRecorder(logger Logger, names NameResolver, oplog *observability.Logger, metrics *observability.Metrics) *Recorder {
	return &Recorder{logger: logger, names: names, oplog: oplog, metrics: metrics}
}

// Record fills request context fields and appends the entry,
// swallowing any append failure.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = contextString(ctx, contextkeys.ClientIPKey)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = contextString(ctx, contextkeys.UserAgentKey)
	}
	if entry.RequestID == "" {
		entry.RequestID = contextString(ctx, contextkeys.RequestIDKey)
	}
	// The actor's name is frozen onto the entry so the trail stays
	// readable after profile changes. A failed lookup leaves it
	// empty rather than failing the append.
	if entry.ActorName == "" && entry.ActorID != 0 && r.names != nil {
		if name, err := r.names(ctx, entry.ActorID); err == nil {
			entry.ActorName = name
		}
	}

	if err := r.logger.Append(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.AuditAppendsTotal.WithLabelValues("failed").Inc()
			r.metrics.AuditAppendFailures.Inc()
		}
		if r.oplog != nil {
			r.oplog.WithError(err).WithFields(map[string]interface{}{
				"tenant_id": entry.TenantID,
				"action":    entry.Action,
				"actor_id":  entry.ActorID,
			}).Error("audit append failed, continuing")
		}
		return
	}
	if r.metrics != nil {
		r.metrics.AuditAppendsTotal.WithLabelValues("ok").Inc()
	}
}

// Query passes through to the underlying logger. Authorization for
// queries lives in the audit Service, not here.
func (r *Recorder) Query(ctx context.Context, tenantID int64, filter Filter) ([]*Entry, error) {
	return r.logger.Query(ctx, tenantID, filter)
}

// DeleteTenant passes through the single cascade delete path.
func (r *Recorder) DeleteTenant(ctx context.Context, tenantID int64) error {
	return r.logger.DeleteTenant(ctx, tenantID)
}

func contextString(ctx context.Context, key contextkeys.Key) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
