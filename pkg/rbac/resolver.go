package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/girderhq/girder/pkg/observability"
)

// MembershipReader is the slice of the membership store the resolver
// needs: the role on the single ACTIVE membership for an exact
// (user, tenant) pair. Implementations return ErrNotFound when no
// active membership exists; invited, suspended, and removed rows must
// not be reported.
type MembershipReader interface {
	ActiveRole(ctx context.Context, userID, tenantID int64) (Role, error)
}

// OverrideReader lists a user's explicit permission overrides as raw
// token strings. Overrides are global to the user, not tenant-scoped.
type OverrideReader interface {
	ListOverrides(ctx context.Context, userID int64) ([]string, error)
}

// Resolver computes effective permission sets and answers allow/deny
// checks. It is a pure read over durable state: no caching, no side
// effects, safe for unlimited concurrent use.
type Resolver struct {
	memberships MembershipReader
	overrides   OverrideReader
	registry    *Registry
	catalog     *Catalog
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewResolver creates a resolver over the given stores and registry.
// logger and metrics may be nil (tests).
func NewResolver(memberships MembershipReader, overrides OverrideReader, registry *Registry, catalog *Catalog, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		memberships: memberships,
		overrides:   overrides,
		registry:    registry,
		catalog:     catalog,
		logger:      logger,
		metrics:     metrics,
	}
}

// Resolve returns the effective permission set for (user, tenant): the
// union of the user's overrides and their active-membership role
// defaults. Without an active membership the set is empty, except that
// a global "*" override (platform super-actor) survives on its own so
// super-actors do not need a membership row in every tenant.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID int64) (*PermissionSet, error) {
	overrideSet, err := r.overrideSet(ctx, userID)
	if err != nil {
		return NewPermissionSet(), fmt.Errorf("failed to load overrides: %w", err)
	}

	role, err := r.memberships.ActiveRole(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Fail closed: only the global wildcard crosses tenants.
			set := NewPermissionSet()
			if overrideSet.global {
				set.Add(Token{kind: kindGlobal})
			}
			return set, nil
		}
		return NewPermissionSet(), fmt.Errorf("failed to load membership: %w", err)
	}

	set := r.registry.DefaultSet(role)
	if overrideSet.global {
		set.Add(Token{kind: kindGlobal})
	}
	for res := range overrideSet.resources {
		set.Add(Token{kind: kindResourceWildcard, resource: res})
	}
	for exact := range overrideSet.exact {
		tok, err := ParseToken(exact)
		if err != nil {
			continue
		}
		set.Add(tok)
	}
	return set, nil
}

// Check reports whether the user may perform the action named by token
// in the tenant. It never returns an error: malformed tokens, missing
// records, and storage failures all deny. Authorization must not crash
// the caller and must never allow by default.
func (r *Resolver) Check(ctx context.Context, userID, tenantID int64, token string) bool {
	tok, err := ParseToken(token)
	if err != nil {
		r.observe("deny")
		return false
	}

	set, err := r.Resolve(ctx, userID, tenantID)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id":   userID,
				"tenant_id": tenantID,
				"token":     token,
			}).Warn("permission resolution failed, denying")
		}
		r.observe("error")
		return false
	}

	// The global wildcard allows any well-formed token; everything
	// else must name a catalog capability to match.
	if set.global {
		r.observe("allow")
		return true
	}
	if !r.catalog.Known(tok) {
		r.observe("deny")
		return false
	}
	if set.Has(tok) {
		r.observe("allow")
		return true
	}
	r.observe("deny")
	return false
}

// RequireSuperActor reports whether the user holds the global wildcard
// anywhere (override or SUPERADMIN membership in the tenant). Used by
// platform-only operations such as tenant deletion.
func (r *Resolver) RequireSuperActor(ctx context.Context, userID, tenantID int64) bool {
	set, err := r.Resolve(ctx, userID, tenantID)
	if err != nil {
		return false
	}
	return set.global
}

func (r *Resolver) overrideSet(ctx context.Context, userID int64) (*PermissionSet, error) {
	set := NewPermissionSet()
	if r.overrides == nil {
		return set, nil
	}
	raw, err := r.overrides.ListOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, s := range raw {
		tok, err := ParseToken(s)
		if err != nil {
			continue // stored garbage is inert, not fatal
		}
		if !r.catalog.Known(tok) {
			continue
		}
		set.Add(tok)
	}
	return set, nil
}

func (r *Resolver) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.AuthzChecksTotal.WithLabelValues(outcome).Inc()
	}
}
