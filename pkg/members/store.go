package members

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/girderhq/girder/pkg/rbac"
)

// Store persists users, memberships, and invitations in PostgreSQL.
// All membership writes are versioned: an UPDATE guarded by the
// caller's version that affects zero rows means a concurrent writer
// won, reported as ErrConflict.
type Store struct {
	db *sql.DB
}

// NewStore creates a membership store over an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrCreateUser returns the user with the given email, creating one
// when no user exists yet. Invitations address people by email, so the
// user row may predate any membership.
func (s *Store) GetOrCreateUser(ctx context.Context, email, displayName string) (*User, error) {
	now := time.Now().UTC()
	if displayName == "" {
		displayName = email
	}
	query := `
		INSERT INTO users (email, display_name, status, created_at, updated_at)
		VALUES ($1, $2, 'active', $3, $3)
		ON CONFLICT (email) DO UPDATE SET updated_at = users.updated_at
		RETURNING id, email, display_name, status, created_at, updated_at
	`
	var u User
	err := s.db.QueryRowContext(ctx, query, email, displayName, now).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, email, display_name, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ActiveRole returns the role on the single active membership for the
// pair, or ErrNotFound when the user has no active membership in the
// tenant. Invited, suspended, and removed rows do not count.
func (s *Store) ActiveRole(ctx context.Context, userID, tenantID int64) (rbac.Role, error) {
	query := `
		SELECT role
		FROM memberships
		WHERE user_id = $1 AND tenant_id = $2 AND status = 'active'
	`
	var role rbac.Role
	err := s.db.QueryRowContext(ctx, query, userID, tenantID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("active membership for user %d in tenant %d: %w", userID, tenantID, rbac.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active role: %w", err)
	}
	return role, nil
}

// Get returns the non-removed membership for the pair.
func (s *Store) Get(ctx context.Context, tenantID, userID int64) (*Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, role, status, version, invited_by, created_at, updated_at
		FROM memberships
		WHERE tenant_id = $1 AND user_id = $2 AND status != 'removed'
	`
	var m Membership
	err := s.db.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &m.Version,
		&m.InvitedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("membership for user %d in tenant %d: %w", userID, tenantID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// List returns a tenant's non-removed memberships with user details,
// newest first.
func (s *Store) List(ctx context.Context, tenantID int64) ([]*Membership, error) {
	query := `
		SELECT m.id, m.user_id, m.tenant_id, m.role, m.status, m.version,
		       m.invited_by, m.created_at, m.updated_at, u.email, u.display_name
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.tenant_id = $1 AND m.status != 'removed'
		ORDER BY m.created_at DESC, m.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var list []*Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &m.Version,
			&m.InvitedBy, &m.CreatedAt, &m.UpdatedAt, &m.Email, &m.DisplayName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// Create inserts a membership row. The partial unique index on
// (user_id, tenant_id) WHERE status != 'removed' makes a duplicate
// non-removed pair a constraint violation.
func (s *Store) Create(ctx context.Context, m *Membership) (*Membership, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO memberships (user_id, tenant_id, role, status, version, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		m.UserID, m.TenantID, m.Role, m.Status, m.InvitedBy, now,
	).Scan(&m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	return m, nil
}

// UpdateRole writes a new role guarded by the caller's version.
func (s *Store) UpdateRole(ctx context.Context, id, version int64, role rbac.Role) error {
	query := `
		UPDATE memberships
		SET role = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND status != 'removed'
	`
	return s.guardedWrite(ctx, query, id, version, role, time.Now().UTC())
}

// SetStatus transitions a membership's status guarded by the caller's
// version. Removed rows are terminal and never transition back.
func (s *Store) SetStatus(ctx context.Context, id, version int64, status MembershipStatus) error {
	query := `
		UPDATE memberships
		SET status = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND status != 'removed'
	`
	return s.guardedWrite(ctx, query, id, version, status, time.Now().UTC())
}

func (s *Store) guardedWrite(ctx context.Context, query string, id, version int64, args ...interface{}) error {
	all := append([]interface{}{id, version}, args...)
	result, err := s.db.ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or a concurrent writer bumped the
		// version first. Both look the same to the caller: re-read
		// and retry.
		return fmt.Errorf("membership %d at version %d: %w", id, version, rbac.ErrConflict)
	}
	return nil
}

// UpdateRolePreservingAdmin is UpdateRole with the last-admin guard
// folded into the statement: the write only lands if another active
// COMPANY_ADMIN exists in the tenant at commit time.
func (s *Store) UpdateRolePreservingAdmin(ctx context.Context, m *Membership, version int64, role rbac.Role) error {
	query := `
		UPDATE memberships
		SET role = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND status != 'removed'
			AND (SELECT COUNT(*) FROM memberships
			     WHERE tenant_id = $5 AND role = $6 AND status = 'active' AND id != $1) >= 1
	`
	return s.adminGuardedWrite(ctx, query, m, version, role, time.Now().UTC())
}

// SetStatusPreservingAdmin is SetStatus with the same in-statement
// last-admin guard as UpdateRolePreservingAdmin.
func (s *Store) SetStatusPreservingAdmin(ctx context.Context, m *Membership, version int64, status MembershipStatus) error {
	query := `
		UPDATE memberships
		SET status = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND status != 'removed'
			AND (SELECT COUNT(*) FROM memberships
			     WHERE tenant_id = $5 AND role = $6 AND status = 'active' AND id != $1) >= 1
	`
	return s.adminGuardedWrite(ctx, query, m, version, status, time.Now().UTC())
}

func (s *Store) adminGuardedWrite(ctx context.Context, query string, m *Membership, version int64, args ...interface{}) error {
	all := append([]interface{}{m.ID, version}, args...)
	all = append(all, m.TenantID, rbac.RoleCompanyAdmin)
	result, err := s.db.ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish losing the version race from tripping the
		// admin-count guard: no other active admin means the guard
		// fired, whatever the version said.
		others, cerr := s.OtherActiveAdmins(ctx, m.TenantID, m.ID)
		if cerr == nil && others == 0 {
			return fmt.Errorf("tenant %d: %w", m.TenantID, rbac.ErrLastAdmin)
		}
		return fmt.Errorf("membership %d at version %d: %w", m.ID, version, rbac.ErrConflict)
	}
	return nil
}

// OtherActiveAdmins counts the tenant's active COMPANY_ADMIN
// memberships besides the given one.
func (s *Store) OtherActiveAdmins(ctx context.Context, tenantID, excludeID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM memberships
		WHERE tenant_id = $1 AND role = $2 AND status = 'active' AND id != $3
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, tenantID, rbac.RoleCompanyAdmin, excludeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active admins: %w", err)
	}
	return count, nil
}

// SeatUsage returns the tenant's occupied seats (non-removed
// memberships) and its seat limit. A zero limit means unlimited.
func (s *Store) SeatUsage(ctx context.Context, tenantID int64) (used, limit int, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM memberships WHERE tenant_id = $1 AND status != 'removed'),
			t.seat_limit
		FROM tenants t
		WHERE t.id = $1
	`
	err = s.db.QueryRowContext(ctx, query, tenantID).Scan(&used, &limit)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("tenant %d: %w", tenantID, rbac.ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get seat usage: %w", err)
	}
	return used, limit, nil
}

// UpsertInvitation writes the invitation for (tenant, email),
// refreshing the token and expiry on re-invite.
func (s *Store) UpsertInvitation(ctx context.Context, inv *Invitation) (*Invitation, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO invitations (tenant_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, email) DO UPDATE
		SET role = EXCLUDED.role,
		    token = EXCLUDED.token,
		    invited_by = EXCLUDED.invited_by,
		    invited_at = EXCLUDED.invited_at,
		    expires_at = EXCLUDED.expires_at,
		    accepted_at = NULL
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		inv.TenantID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, now, inv.ExpiresAt,
	).Scan(&inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert invitation: %w", err)
	}
	inv.InvitedAt = now
	return inv, nil
}

// GetInvitationByToken returns an unaccepted invitation by its token.
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	query := `
		SELECT id, tenant_id, email, role, token, invited_by, invited_at, expires_at, accepted_at
		FROM invitations
		WHERE token = $1 AND accepted_at IS NULL
	`
	var inv Invitation
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt, &inv.AcceptedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation: %w", rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// MarkInvitationAccepted stamps the invitation's accepted_at.
func (s *Store) MarkInvitationAccepted(ctx context.Context, id int64) error {
	query := `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invitation %d: %w", id, rbac.ErrConflict)
	}
	return nil
}

// DeleteExpiredInvitations removes unaccepted invitations past their
// expiry, along with the invited membership rows they back. Returns
// how many invitations were removed.
func (s *Store) DeleteExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteMemberships := `
		DELETE FROM memberships m
		USING invitations i, users u
		WHERE i.expires_at < $1 AND i.accepted_at IS NULL
		  AND u.email = i.email
		  AND m.tenant_id = i.tenant_id AND m.user_id = u.id
		  AND m.status = 'invited'
	`
	if _, err := tx.ExecContext(ctx, deleteMemberships, now); err != nil {
		return 0, fmt.Errorf("failed to delete expired invited memberships: %w", err)
	}

	deleteInvitations := `DELETE FROM invitations WHERE expires_at < $1 AND accepted_at IS NULL`
	result, err := tx.ExecContext(ctx, deleteInvitations, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return removed, nil
}
