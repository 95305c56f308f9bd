// Package members implements the membership lifecycle: invitations,
// activation, role changes, suspension, and removal, with the
// peer-protection and last-admin invariants enforced at this layer.
package members

import (
	"errors"
	"time"

	"github.com/girderhq/girder/pkg/rbac"
)

// MembershipStatus is the state of a user's membership in a tenant.
// The machine is invited -> active -> suspended -> active, with
// removed as the terminal state reachable from any of them. A removed
// membership is never resurrected; re-inviting creates a new row.
type MembershipStatus string

const (
	StatusInvited   MembershipStatus = "invited"
	StatusActive    MembershipStatus = "active"
	StatusSuspended MembershipStatus = "suspended"
	StatusRemoved   MembershipStatus = "removed"
)

// User is a person known to the platform. Users exist independently of
// tenants; the same user can hold memberships in many tenants.
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership binds a user to a tenant with a role. Version increments
// on every write and is the optimistic concurrency token: writers send
// the version they read, and a stale version loses with ErrConflict.
type Membership struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	TenantID  int64            `json:"tenant_id"`
	Role      rbac.Role        `json:"role"`
	Status    MembershipStatus `json:"status"`
	Version   int64            `json:"version"`
	InvitedBy *int64           `json:"invited_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`

	// Denormalized user fields for member listings.
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Invitation is the redeemable token behind an invited membership.
type Invitation struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenant_id"`
	Email      string     `json:"email"`
	Role       rbac.Role  `json:"role"`
	Token      string     `json:"token"`
	InvitedBy  *int64     `json:"invited_by,omitempty"`
	InvitedAt  time.Time  `json:"invited_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// InviteRequest carries an invitation's inputs.
type InviteRequest struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        rbac.Role `json:"role"`
}

var (
	// ErrSeatLimit means the tenant's seat limit is reached and no
	// further members can be invited until seats free up.
	ErrSeatLimit = errors.New("tenant seat limit reached")

	// ErrInviteExpired means the activation token is past its TTL.
	ErrInviteExpired = errors.New("invitation expired")

	// ErrRateLimited means the actor sent too many invitations in the
	// configured window.
	ErrRateLimited = errors.New("invitation rate limit exceeded")
)
