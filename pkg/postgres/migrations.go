package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the core's schema in order.
//
// The membership uniqueness rule ("at most one non-removed membership
// per (user, tenant) pair") cannot be expressed as a plain unique
// constraint because removed rows must stay behind for audit linkage;
// a partial unique index covers it.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					plan VARCHAR(50) NOT NULL DEFAULT 'starter',
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					settings JSONB NOT NULL DEFAULT '{}',
					seat_limit INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'invited',
					version BIGINT NOT NULL DEFAULT 1,
					invited_by BIGINT REFERENCES users(id),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_active_pair
					ON memberships(user_id, tenant_id)
					WHERE status != 'removed';
				CREATE INDEX IF NOT EXISTS idx_memberships_tenant ON memberships(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL,
					token VARCHAR(64) NOT NULL UNIQUE,
					invited_by BIGINT REFERENCES users(id),
					invited_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
					accepted_at TIMESTAMP WITH TIME ZONE,
					UNIQUE(tenant_id, email)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create user permission overrides table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_permission_overrides (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token TEXT NOT NULL,
					granted_by BIGINT REFERENCES users(id),
					granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, token)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create audit log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					actor_id BIGINT,
					actor_name VARCHAR(255),
					action VARCHAR(100) NOT NULL,
					resource VARCHAR(50) NOT NULL,
					resource_id VARCHAR(255),
					changes JSONB,
					status VARCHAR(20) NOT NULL,
					ip_address VARCHAR(45),
					user_agent TEXT,
					request_id VARCHAR(100),
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_log_tenant_time
					ON audit_log(tenant_id, timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_id);
			`,
		},
	}
}

// Migrate applies all pending migrations inside a schema_migrations
// ledger so re-runs are no-ops.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range Migrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
