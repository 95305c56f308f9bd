package rbac

import "errors"

// Failure taxonomy for the authorization core. Lifecycle services wrap
// these with context; callers branch with errors.Is.
var (
	// ErrUnauthorized means the actor lacks the required permission.
	// Always fail-closed; cross-tenant callers see this rather than a
	// NotFound so denial does not leak resource existence.
	ErrUnauthorized = errors.New("not permitted")

	// ErrNotFound means the referenced tenant, user, or membership
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMember means an invite targeted a user who already
	// holds an active membership in the tenant.
	ErrAlreadyMember = errors.New("already an active member")

	// ErrProtectedRole means the peer-protection invariant blocked the
	// mutation: the target's rank is not strictly below the actor's.
	ErrProtectedRole = errors.New("target role is protected")

	// ErrLastAdmin means the mutation would leave the tenant without
	// any active admin.
	ErrLastAdmin = errors.New("cannot remove the last admin")

	// ErrConflict means a concurrent mutation won the optimistic
	// concurrency race; the caller should re-read and retry.
	ErrConflict = errors.New("concurrent modification")
)
