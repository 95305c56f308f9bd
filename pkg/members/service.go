package members

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/notify"
	"github.com/girderhq/girder/pkg/observability"
	"github.com/girderhq/girder/pkg/rbac"
)

// Propagator pushes a permissions-changed signal toward a member's
// live sessions. Delivery is at-most-once and best-effort; callers
// never block on it.
type Propagator interface {
	PermissionsChanged(ctx context.Context, tenantID, userID int64)
}

// NopPropagator drops signals; used in tests and when realtime is off.
type NopPropagator struct{}

func (NopPropagator) PermissionsChanged(ctx context.Context, tenantID, userID int64) {}

// ServiceConfig carries the policy knobs for membership mutations.
type ServiceConfig struct {
	// AllowSelfDemotion lets an actor change or remove their own
	// membership. Off by default so an admin cannot strand a tenant
	// by accident.
	AllowSelfDemotion bool

	// LastAdminGuard rejects mutations that would leave a tenant with
	// no active COMPANY_ADMIN.
	LastAdminGuard bool

	// InviteTTL is how long an invitation token stays redeemable.
	InviteTTL time.Duration
}

// Service implements the membership lifecycle.
type Service struct {
	store      *Store
	resolver   *rbac.Resolver
	registry   *rbac.Registry
	recorder   *audit.Recorder
	notifier   notify.Notifier
	propagator Propagator
	limiter    *InviteRateLimiter
	cfg        ServiceConfig
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewService wires the membership service. notifier, propagator,
// limiter, logger, and metrics may be nil.
func NewService(store *Store, resolver *rbac.Resolver, registry *rbac.Registry, recorder *audit.Recorder, notifier notify.Notifier, propagator Propagator, limiter *InviteRateLimiter, cfg ServiceConfig, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if propagator == nil {
		propagator = NopPropagator{}
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 7 * 24 * time.Hour
	}
	return &Service{
		store:      store,
		resolver:   resolver,
		registry:   registry,
		recorder:   recorder,
		notifier:   notifier,
		propagator: propagator,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// Invite adds a user to a tenant in the invited state and issues an
// activation token. Open to holders of members.invite or
// tenant.manage. Re-inviting a still-invited user refreshes their
// token and role instead of erroring; inviting an active or suspended
// member is ErrAlreadyMember.
func (s *Service) Invite(ctx context.Context, actorID, tenantID int64, req InviteRequest) (*Invitation, error) {
	if req.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !req.Role.Valid() || req.Role == rbac.RoleSuperAdmin {
		return nil, fmt.Errorf("invalid role %q", req.Role)
	}
	if !s.resolver.Check(ctx, actorID, tenantID, rbac.TokenMembersInvite) &&
		!s.resolver.Check(ctx, actorID, tenantID, rbac.TokenTenantManage) {
		return nil, rbac.ErrUnauthorized
	}

	allowed, err := s.limiter.Allow(ctx, actorID)
	if err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("invite rate limiter check failed, allowing")
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.InvitesRateLimited.Inc()
		}
		return nil, ErrRateLimited
	}

	used, limit, err := s.store.SeatUsage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && used >= limit {
		return nil, ErrSeatLimit
	}

	user, err := s.store.GetOrCreateUser(ctx, req.Email, req.DisplayName)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Get(ctx, tenantID, user.ID)
	switch {
	case err == nil && existing.Status == StatusInvited:
		// Idempotent re-invite: refresh the role on the pending row.
		if existing.Role != req.Role {
			if err := s.store.UpdateRole(ctx, existing.ID, existing.Version, req.Role); err != nil {
				return nil, err
			}
		}
	case err == nil:
		return nil, fmt.Errorf("user %d in tenant %d: %w", user.ID, tenantID, rbac.ErrAlreadyMember)
	case errors.Is(err, rbac.ErrNotFound):
		membership := &Membership{
			UserID:    user.ID,
			TenantID:  tenantID,
			Role:      req.Role,
			Status:    StatusInvited,
			InvitedBy: &actorID,
		}
		if _, err := s.store.Create(ctx, membership); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	inv := &Invitation{
		TenantID:  tenantID,
		Email:     user.Email,
		Role:      req.Role,
		Token:     uuid.NewString(),
		InvitedBy: &actorID,
		ExpiresAt: time.Now().UTC().Add(s.cfg.InviteTTL),
	}
	if _, err := s.store.UpsertInvitation(ctx, inv); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionInviteMember,
		Resource:   audit.ResourceMembership,
		ResourceID: strconv.FormatInt(user.ID, 10),
		Changes: map[string]interface{}{
			"email": user.Email,
			"role":  string(req.Role),
		},
		Status: audit.StatusSuccess,
	})
	s.notifier.MemberInvited(ctx, tenantID, user.Email, string(req.Role), inv.Token)
	return inv, nil
}

// Activate redeems an invitation token, moving the invited membership
// to active. The redeeming user's email must match the invitation.
func (s *Service) Activate(ctx context.Context, token string, userID int64) (*Membership, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if time.Now().UTC().After(inv.ExpiresAt) {
		return nil, fmt.Errorf("invitation for %s: %w", inv.Email, ErrInviteExpired)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Email != inv.Email {
		return nil, rbac.ErrUnauthorized
	}

	membership, err := s.store.Get(ctx, inv.TenantID, userID)
	if err != nil {
		return nil, err
	}
	if membership.Status != StatusInvited {
		return nil, fmt.Errorf("membership is %s: %w", membership.Status, rbac.ErrAlreadyMember)
	}
	if err := s.store.SetStatus(ctx, membership.ID, membership.Version, StatusActive); err != nil {
		return nil, err
	}
	if err := s.store.MarkInvitationAccepted(ctx, inv.ID); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   inv.TenantID,
		ActorID:    userID,
		Action:     audit.ActionActivateMember,
		Resource:   audit.ResourceMembership,
		ResourceID: strconv.FormatInt(userID, 10),
		Changes:    map[string]interface{}{"role": string(membership.Role)},
		Status:     audit.StatusSuccess,
	})
	s.propagator.PermissionsChanged(ctx, inv.TenantID, userID)
	return s.store.Get(ctx, inv.TenantID, userID)
}

// List returns the tenant's members to actors holding members.view.
func (s *Service) List(ctx context.Context, actorID, tenantID int64) ([]*Membership, error) {
	if !s.resolver.Check(ctx, actorID, tenantID, rbac.TokenMembersView) {
		return nil, rbac.ErrUnauthorized
	}
	return s.store.List(ctx, tenantID)
}

// UpdateRole changes a member's role. version is the membership
// version the caller read; a stale version loses with ErrConflict.
func (s *Service) UpdateRole(ctx context.Context, actorID, tenantID, targetUserID int64, newRole rbac.Role, version int64) (*Membership, error) {
	if !newRole.Valid() || newRole == rbac.RoleSuperAdmin {
		return nil, fmt.Errorf("invalid role %q", newRole)
	}
	target, err := s.authorizeMutation(ctx, actorID, tenantID, targetUserID)
	if err != nil {
		return nil, err
	}
	if target.Role == newRole {
		return target, nil
	}

	if version <= 0 {
		version = target.Version
	}
	if s.lastAdminGuarded(target) && newRole != rbac.RoleCompanyAdmin {
		err = s.store.UpdateRolePreservingAdmin(ctx, target, version, newRole)
	} else {
		err = s.store.UpdateRole(ctx, target.ID, version, newRole)
	}
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionUpdateRole,
		Resource:   audit.ResourceMembership,
		ResourceID: strconv.FormatInt(targetUserID, 10),
		Changes: map[string]interface{}{
			"role": map[string]string{"old": string(target.Role), "new": string(newRole)},
		},
		Status: audit.StatusSuccess,
	})
	s.notifier.RoleChanged(ctx, tenantID, targetUserID, string(target.Role), string(newRole))
	s.propagator.PermissionsChanged(ctx, tenantID, targetUserID)
	return s.store.Get(ctx, tenantID, targetUserID)
}

// Remove ends a membership. Removed is terminal: rejoining requires a
// fresh invitation.
func (s *Service) Remove(ctx context.Context, actorID, tenantID, targetUserID, version int64) error {
	target, err := s.authorizeMutation(ctx, actorID, tenantID, targetUserID)
	if err != nil {
		return err
	}
	if version <= 0 {
		version = target.Version
	}
	if s.lastAdminGuarded(target) {
		err = s.store.SetStatusPreservingAdmin(ctx, target, version, StatusRemoved)
	} else {
		err = s.store.SetStatus(ctx, target.ID, version, StatusRemoved)
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionRemoveMember,
		Resource:   audit.ResourceMembership,
		ResourceID: strconv.FormatInt(targetUserID, 10),
		Changes:    map[string]interface{}{"role": string(target.Role)},
		Status:     audit.StatusSuccess,
	})
	s.propagator.PermissionsChanged(ctx, tenantID, targetUserID)
	return nil
}

// Suspend parks a membership without ending it.
func (s *Service) Suspend(ctx context.Context, actorID, tenantID, targetUserID, version int64) error {
	target, err := s.authorizeMutation(ctx, actorID, tenantID, targetUserID)
	if err != nil {
		return err
	}
	if target.Status == StatusSuspended {
		return nil
	}
	if version <= 0 {
		version = target.Version
	}
	if s.lastAdminGuarded(target) {
		err = s.store.SetStatusPreservingAdmin(ctx, target, version, StatusSuspended)
	} else {
		err = s.store.SetStatus(ctx, target.ID, version, StatusSuspended)
	}
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionSuspendMember,
		Resource:   audit.ResourceMembership,
		ResourceID: strconv.FormatInt(targetUserID, 10),
		Status:     audit.StatusSuccess,
	})
	s.propagator.PermissionsChanged(ctx, tenantID, targetUserID)
	return nil
}

// Reinstate returns a suspended membership to active.
func (s *Service) Reinstate(ctx context.Context, actorID, tenantID, targetUserID, version int64) error {
	target, err := s.authorizeMutation(ctx, actorID, tenantID, targetUserID)
	if err != nil {
		return err
	}
	if target.Status != StatusSuspended {
		return fmt.Errorf("membership is %s, not suspended: %w", target.Status, rbac.ErrConflict)
	}
	if version <= 0 {
		version = target.Version
	}
	if err := s.store.SetStatus(ctx, target.ID, version, StatusActive); err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionReinstateMember,
		Resource:   audit.ResourceMembership,
		ResourceID: strconv.FormatInt(targetUserID, 10),
		Status:     audit.StatusSuccess,
	})
	s.propagator.PermissionsChanged(ctx, tenantID, targetUserID)
	return nil
}

// CleanupExpiredInvitations removes invitation tokens (and their
// still-invited membership rows) past the TTL. Run on a schedule.
func (s *Service) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpiredInvitations(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if removed > 0 && s.logger != nil {
		s.logger.WithField("removed", removed).Info("expired invitations cleaned up")
	}
	return removed, nil
}

// authorizeMutation runs the shared gate for role changes, removal,
// suspension, and reinstatement: members.manage permission, the
// self-mutation policy, and peer protection against the target's
// current role.
func (s *Service) authorizeMutation(ctx context.Context, actorID, tenantID, targetUserID int64) (*Membership, error) {
	if !s.resolver.Check(ctx, actorID, tenantID, rbac.TokenMembersManage) {
		return nil, rbac.ErrUnauthorized
	}
	if actorID == targetUserID && !s.cfg.AllowSelfDemotion {
		return nil, fmt.Errorf("cannot modify own membership: %w", rbac.ErrProtectedRole)
	}
	target, err := s.store.Get(ctx, tenantID, targetUserID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRankOver(ctx, actorID, tenantID, target.Role); err != nil {
		return nil, err
	}
	return target, nil
}

// requireRankOver enforces peer protection: the actor's role must
// strictly outrank the given role. Platform super-actors bypass rank.
func (s *Service) requireRankOver(ctx context.Context, actorID, tenantID int64, role rbac.Role) error {
	if s.resolver.RequireSuperActor(ctx, actorID, tenantID) {
		return nil
	}
	actorRole, err := s.store.ActiveRole(ctx, actorID, tenantID)
	if err != nil {
		return rbac.ErrUnauthorized
	}
	if !s.registry.Outranks(actorRole, role) {
		return fmt.Errorf("%s does not outrank %s: %w", actorRole, role, rbac.ErrProtectedRole)
	}
	return nil
}

// lastAdminGuarded reports whether a write to this membership must go
// through a store variant that preserves at least one other active
// COMPANY_ADMIN. The count rides inside the UPDATE itself, so two
// concurrent demotions cannot both pass a pre-read count and leave
// the tenant adminless.
func (s *Service) lastAdminGuarded(target *Membership) bool {
	if !s.cfg.LastAdminGuard {
		return false
	}
	return target.Role == rbac.RoleCompanyAdmin && target.Status == StatusActive
}
