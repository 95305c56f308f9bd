package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/girderhq/girder/pkg/rbac"
)

// Store persists tenants in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a tenant store over an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Owner identifies the bootstrap COMPANY_ADMIN for a new tenant.
// When Email is set, the owner user is created or reused by email
// inside the creation transaction; otherwise UserID is used as-is.
type Owner struct {
	UserID      int64
	Email       string
	DisplayName string
}

// Create inserts a tenant, provisions its owner user when addressed
// by email, and writes the owner's active COMPANY_ADMIN membership,
// all in one transaction, so a tenant never exists without an admin
// who can run it.
func (s *Store) Create(ctx context.Context, t *Tenant, owner Owner) (*Tenant, error) {
	if t.Plan == "" {
		t.Plan = "starter"
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if len(t.Settings) == 0 {
		t.Settings = json.RawMessage(`{}`)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertTenant := `
		INSERT INTO tenants (name, plan, status, settings, seat_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, insertTenant,
		t.Name, t.Plan, t.Status, []byte(t.Settings), t.SeatLimit, now,
	).Scan(&t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	ownerID := owner.UserID
	if owner.Email != "" {
		displayName := owner.DisplayName
		if displayName == "" {
			displayName = owner.Email
		}
		upsertOwner := `
			INSERT INTO users (email, display_name, status, created_at, updated_at)
			VALUES ($1, $2, 'active', $3, $3)
			ON CONFLICT (email) DO UPDATE SET updated_at = users.updated_at
			RETURNING id
		`
		if err := tx.QueryRowContext(ctx, upsertOwner, owner.Email, displayName, now).Scan(&ownerID); err != nil {
			return nil, fmt.Errorf("failed to provision owner user: %w", err)
		}
	}

	insertOwner := `
		INSERT INTO memberships (user_id, tenant_id, role, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', 1, $4, $4)
	`
	if _, err := tx.ExecContext(ctx, insertOwner, ownerID, t.ID, rbac.RoleCompanyAdmin, now); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tenant creation: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

// Get returns a tenant by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Tenant, error) {
	query := `
		SELECT id, name, plan, status, settings, seat_limit, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	var t Tenant
	var settings []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Plan, &t.Status, &settings, &t.SeatLimit,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %d: %w", id, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.Settings = json.RawMessage(settings)
	return &t, nil
}

// Update writes the mutable profile fields.
func (s *Store) Update(ctx context.Context, t *Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, plan = $3, settings = $4, seat_limit = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		t.ID, t.Name, t.Plan, []byte(t.Settings), t.SeatLimit, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant %d: %w", t.ID, rbac.ErrNotFound)
	}
	return nil
}

// SetStatus transitions a tenant between active and suspended.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	query := `UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant %d: %w", id, rbac.ErrNotFound)
	}
	return nil
}

// Delete removes the tenant row. Memberships and invitations cascade
// through their foreign keys; the audit trail is deleted separately by
// the service so the final audit entry can land first.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant %d: %w", id, rbac.ErrNotFound)
	}
	return nil
}
