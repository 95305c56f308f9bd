package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

const defaultQueryLimit = 100

// DBLogger persists audit entries in PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Append inserts one entry and sets its ID.
func (l *DBLogger) Append(ctx context.Context, entry *Entry) error {
	var changesJSON []byte
	if entry.Changes != nil {
		var err error
		changesJSON, err = json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (
			tenant_id, actor_id, actor_name, action, resource, resource_id,
			changes, status, ip_address, user_agent, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		entry.TenantID, entry.ActorID, entry.ActorName, entry.Action,
		entry.Resource, entry.ResourceID, changesJSON, entry.Status,
		entry.IPAddress, entry.UserAgent, entry.RequestID, entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns a tenant's entries most-recent-first. tenantID is
// always applied; the filter only narrows within the tenant.
func (l *DBLogger) Query(ctx context.Context, tenantID int64, filter Filter) ([]*Entry, error) {
	query := `
		SELECT id, tenant_id, actor_id, actor_name, action, resource, resource_id,
		       changes, status, ip_address, user_agent, request_id, timestamp
		FROM audit_log
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	argPos := 2

	if len(filter.Actions) > 0 {
		query += fmt.Sprintf(" AND action = ANY($%d)", argPos)
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		args = append(args, pq.Array(actions))
		argPos++
	}
	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argPos)
		args = append(args, *filter.ActorID)
		argPos++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, *filter.Since)
		argPos++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, *filter.Until)
		argPos++
	}

	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, limit)
	argPos++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var actorName, resourceID, ipAddress, userAgent, requestID sql.NullString
		var changesJSON []byte

		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.ActorID, &actorName,
			&entry.Action, &entry.Resource, &resourceID, &changesJSON,
			&entry.Status, &ipAddress, &userAgent, &requestID, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.ActorName = actorName.String
		entry.ResourceID = resourceID.String
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		entry.RequestID = requestID.String

		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteTenant removes a tenant's entire trail. This is the single
// delete path, reachable only from tenant deletion's cascade.
func (l *DBLogger) DeleteTenant(ctx context.Context, tenantID int64) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM audit_log WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return nil
}

// Close is a no-op; the connection is shared and owned by the caller.
func (l *DBLogger) Close() error { return nil }
