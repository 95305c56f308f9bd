package tenants

import (
	"context"
	"fmt"
	"strconv"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/notify"
	"github.com/girderhq/girder/pkg/observability"
	"github.com/girderhq/girder/pkg/rbac"
)

// Service implements the tenant lifecycle with authorization and
// auditing. Every mutation is permission-checked against the resolver
// and recorded through the best-effort audit boundary.
type Service struct {
	store    *Store
	resolver *rbac.Resolver
	recorder *audit.Recorder
	notifier notify.Notifier
	logger   *observability.Logger
}

// NewService wires the tenant service. notifier may be a NopNotifier
// and logger may be nil in tests.
func NewService(store *Store, resolver *rbac.Resolver, recorder *audit.Recorder, notifier notify.Notifier, logger *observability.Logger) *Service {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Service{
		store:    store,
		resolver: resolver,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
	}
}

// Create provisions a tenant and its COMPANY_ADMIN owner. The owner
// is the user identified by OwnerEmail, created or reused as needed;
// without an owner email, the actor becomes the owner. Any
// authenticated user may create a tenant; they gain admin rights in
// it through the bootstrap membership, not before.
func (s *Service) Create(ctx context.Context, actorID int64, req CreateRequest) (*Tenant, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	tenant := &Tenant{
		Name:      req.Name,
		Plan:      req.Plan,
		Settings:  req.Settings,
		SeatLimit: req.SeatLimit,
	}
	owner := Owner{UserID: actorID, Email: req.OwnerEmail, DisplayName: req.OwnerName}
	created, err := s.store.Create(ctx, tenant, owner)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{
		"name": created.Name,
		"plan": created.Plan,
	}
	if req.OwnerEmail != "" {
		changes["owner_email"] = req.OwnerEmail
	}
	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   created.ID,
		ActorID:    actorID,
		Action:     audit.ActionCreateCompany,
		Resource:   audit.ResourceTenant,
		ResourceID: strconv.FormatInt(created.ID, 10),
		Changes:    changes,
		Status:     audit.StatusSuccess,
	})
	if req.OwnerEmail != "" {
		s.notifier.TenantCreated(ctx, created.ID, created.Name, req.OwnerEmail)
	}
	return created, nil
}

// Get returns a tenant's profile to actors holding tenant.view in it.
func (s *Service) Get(ctx context.Context, actorID, tenantID int64) (*Tenant, error) {
	if !s.resolver.Check(ctx, actorID, tenantID, rbac.TokenTenantView) {
		return nil, rbac.ErrUnauthorized
	}
	return s.store.Get(ctx, tenantID)
}

// Update writes the mutable profile fields from the request onto the
// tenant. Requires tenant.manage; the audit entry records old and new
// values for each changed field.
func (s *Service) Update(ctx context.Context, actorID, tenantID int64, req UpdateRequest) (*Tenant, error) {
	if !s.resolver.Check(ctx, actorID, tenantID, rbac.TokenTenantManage) {
		return nil, rbac.ErrUnauthorized
	}
	tenant, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if req.Name != nil && *req.Name != tenant.Name {
		changes["name"] = map[string]string{"old": tenant.Name, "new": *req.Name}
		tenant.Name = *req.Name
	}
	if req.Plan != nil && *req.Plan != tenant.Plan {
		changes["plan"] = map[string]string{"old": tenant.Plan, "new": *req.Plan}
		tenant.Plan = *req.Plan
	}
	if req.Settings != nil {
		changes["settings"] = "updated"
		tenant.Settings = req.Settings
	}
	if req.SeatLimit != nil && *req.SeatLimit != tenant.SeatLimit {
		changes["seat_limit"] = map[string]int{"old": tenant.SeatLimit, "new": *req.SeatLimit}
		tenant.SeatLimit = *req.SeatLimit
	}
	if len(changes) == 0 {
		return tenant, nil
	}

	if err := s.store.Update(ctx, tenant); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionUpdateCompany,
		Resource:   audit.ResourceTenant,
		ResourceID: strconv.FormatInt(tenantID, 10),
		Changes:    changes,
		Status:     audit.StatusSuccess,
	})
	return tenant, nil
}

// Suspend parks a tenant; only platform super-actors may do this.
// Suspension does not touch memberships, so reinstating restores
// everyone's access exactly as it was.
func (s *Service) Suspend(ctx context.Context, actorID, tenantID int64) error {
	if !s.resolver.RequireSuperActor(ctx, actorID, tenantID) {
		return rbac.ErrUnauthorized
	}
	if err := s.store.SetStatus(ctx, tenantID, StatusSuspended); err != nil {
		return err
	}
	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionSuspendCompany,
		Resource:   audit.ResourceTenant,
		ResourceID: strconv.FormatInt(tenantID, 10),
		Status:     audit.StatusSuccess,
	})
	return nil
}

// Reinstate reactivates a suspended tenant; super-actors only.
func (s *Service) Reinstate(ctx context.Context, actorID, tenantID int64) error {
	if !s.resolver.RequireSuperActor(ctx, actorID, tenantID) {
		return rbac.ErrUnauthorized
	}
	if err := s.store.SetStatus(ctx, tenantID, StatusActive); err != nil {
		return err
	}
	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionUpdateCompany,
		Resource:   audit.ResourceTenant,
		ResourceID: strconv.FormatInt(tenantID, 10),
		Changes:    map[string]interface{}{"status": map[string]string{"old": string(StatusSuspended), "new": string(StatusActive)}},
		Status:     audit.StatusSuccess,
	})
	return nil
}

// Delete permanently removes a tenant. Only platform super-actors may
// delete. Memberships and invitations cascade with the tenant row, and
// this is the single path that removes audit entries: the trail is
// purged with its tenant, then one tombstone entry records who deleted
// what.
func (s *Service) Delete(ctx context.Context, actorID, tenantID int64) error {
	if !s.resolver.RequireSuperActor(ctx, actorID, tenantID) {
		return rbac.ErrUnauthorized
	}
	tenant, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.recorder.DeleteTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to purge audit trail: %w", err)
	}
	if err := s.store.Delete(ctx, tenantID); err != nil {
		return err
	}

	// Tombstone entry, written after the purge so it survives it.
	s.recorder.Record(ctx, &audit.Entry{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     audit.ActionDeleteCompany,
		Resource:   audit.ResourceTenant,
		ResourceID: strconv.FormatInt(tenantID, 10),
		Changes:    map[string]interface{}{"name": tenant.Name},
		Status:     audit.StatusSuccess,
	})
	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"actor_id":  actorID,
		}).Info("tenant deleted")
	}
	return nil
}
