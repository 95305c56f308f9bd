package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OverrideStore persists per-user explicit permission overrides in
// PostgreSQL. Overrides are rare, platform-granted escapes from the
// role defaults (including the "*" super-actor grant).
type OverrideStore struct {
	db *sql.DB
}

// NewOverrideStore creates an override store over an open connection.
func NewOverrideStore(db *sql.DB) *OverrideStore {
	return &OverrideStore{db: db}
}

// ListOverrides returns the raw token strings granted to a user.
func (s *OverrideStore) ListOverrides(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT token
		FROM user_permission_overrides
		WHERE user_id = $1
		ORDER BY token ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// Grant records an override for a user. Granting the same token twice
// is a no-op. The token is stored verbatim; unknown tokens stay inert
// at resolution time rather than being rejected here.
func (s *OverrideStore) Grant(ctx context.Context, userID int64, token string, grantedBy int64) error {
	if _, err := ParseToken(token); err != nil {
		return err
	}
	query := `
		INSERT INTO user_permission_overrides (user_id, token, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, token) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, token, grantedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to grant override: %w", err)
	}
	return nil
}

// Revoke removes an override from a user.
func (s *OverrideStore) Revoke(ctx context.Context, userID int64, token string) error {
	query := `DELETE FROM user_permission_overrides WHERE user_id = $1 AND token = $2`
	result, err := s.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("failed to revoke override: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("override %q for user %d: %w", token, userID, ErrNotFound)
	}
	return nil
}
