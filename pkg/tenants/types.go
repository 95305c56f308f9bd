// Package tenants implements the tenant (company) lifecycle: creation
// with owner bootstrap, profile updates, suspension, and the cascading
// delete that is the audit trail's only removal path.
package tenants

import (
	"encoding/json"
	"time"
)

// Status is a tenant's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Tenant is one company account. Settings is an opaque JSON document
// owned by the product layer; the core stores and returns it verbatim.
type Tenant struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Plan      string          `json:"plan"`
	Status    Status          `json:"status"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	SeatLimit int             `json:"seat_limit"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateRequest carries the fields a caller may set at creation time.
type CreateRequest struct {
	Name      string          `json:"name"`
	Plan      string          `json:"plan,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	SeatLimit int             `json:"seat_limit,omitempty"`

	// OwnerEmail identifies the bootstrap COMPANY_ADMIN owner; the
	// user is created or reused by email, and receives the welcome
	// notification. When empty, the acting user becomes the owner.
	OwnerEmail string `json:"owner_email,omitempty"`
	OwnerName  string `json:"owner_name,omitempty"`
}

// UpdateRequest carries the mutable profile fields. Nil pointers mean
// "leave unchanged"; status and ID are never updatable through here.
type UpdateRequest struct {
	Name      *string         `json:"name,omitempty"`
	Plan      *string         `json:"plan,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	SeatLimit *int            `json:"seat_limit,omitempty"`
}
