package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/rbac"
)

// Fakes for the resolver's readers. The service's own store runs on
// sqlmock; the resolver's membership view is held in memory so tests
// can shape the actor's permissions independently of the SQL
// expectations.

type fakeMemberships struct {
	roles map[string]rbac.Role // "user:tenant" -> role
}

func (f *fakeMemberships) ActiveRole(ctx context.Context, userID, tenantID int64) (rbac.Role, error) {
	role, ok := f.roles[fmt.Sprintf("%d:%d", userID, tenantID)]
	if !ok {
		return "", fmt.Errorf("no active membership: %w", rbac.ErrNotFound)
	}
	return role, nil
}

type fakeOverrides struct {
	tokens map[int64][]string
}

func (f *fakeOverrides) ListOverrides(ctx context.Context, userID int64) ([]string, error) {
	return f.tokens[userID], nil
}

type capturePropagator struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePropagator) PermissionsChanged(ctx context.Context, tenantID, userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, fmt.Sprintf("%d:%d", tenantID, userID))
}

type captureAudit struct {
	audit.NopLogger
	mu      sync.Mutex
	entries []*audit.Entry
}

func (c *captureAudit) Append(ctx context.Context, entry *audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func (c *captureAudit) actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Action
	}
	return out
}

type serviceFixture struct {
	svc        *Service
	mock       sqlmock.Sqlmock
	db         *sql.DB
	audit      *captureAudit
	propagator *capturePropagator
}

func newFixture(t *testing.T, memberships *fakeMemberships, overrides *fakeOverrides, cfg ServiceConfig) *serviceFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := rbac.DefaultCatalog()
	registry := rbac.NewRegistry(catalog)
	resolver := rbac.NewResolver(memberships, overrides, registry, catalog, nil, nil)

	sink := &captureAudit{}
	prop := &capturePropagator{}
	svc := NewService(
		NewStore(db), resolver, registry,
		audit.NewRecorder(sink, nil, nil, nil),
		nil, prop, nil, cfg, nil, nil,
	)
	return &serviceFixture{svc: svc, mock: mock, db: db, audit: sink, propagator: prop}
}

func membershipColumns() []string {
	return []string{"id", "user_id", "tenant_id", "role", "status", "version", "invited_by", "created_at", "updated_at"}
}

func membershipRow(id, userID, tenantID int64, role rbac.Role, status MembershipStatus, version int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(membershipColumns()).
		AddRow(id, userID, tenantID, string(role), string(status), version, nil, now, now)
}

// expectActorRole queues the peer-protection rank lookup for actor 1
// in tenant 10.
func expectActorRole(f *serviceFixture, role rbac.Role) {
	f.mock.ExpectQuery("SELECT role").WithArgs(int64(1), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(string(role)))
}

func TestService_Invite(t *testing.T) {
	ctx := context.Background()
	admin := &fakeMemberships{roles: map[string]rbac.Role{"1:10": rbac.RoleCompanyAdmin}}
	noOverrides := &fakeOverrides{}

	t.Run("denied without permission", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, noOverrides, ServiceConfig{})
		_, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", Role: rbac.RoleOperative})
		assert.True(t, errors.Is(err, rbac.ErrUnauthorized))
		assert.NoError(t, f.mock.ExpectationsWereMet())
		assert.Empty(t, f.audit.entries)
	})

	t.Run("admin invites a second admin", func(t *testing.T) {
		f := newFixture(t, admin, noOverrides, ServiceConfig{InviteTTL: time.Hour})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(2, 0))
		now := time.Now().UTC()
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "status", "created_at", "updated_at"}).
				AddRow(5, "peer@girder.test", "Peer", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnError(sql.ErrNoRows)
		f.mock.ExpectQuery("INSERT INTO memberships").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
		f.mock.ExpectQuery("INSERT INTO invitations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

		inv, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "peer@girder.test", DisplayName: "Peer", Role: rbac.RoleCompanyAdmin})
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleCompanyAdmin, inv.Role)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("tenant.manage holder may invite", func(t *testing.T) {
		viewer := &fakeMemberships{roles: map[string]rbac.Role{"1:10": rbac.RoleViewer}}
		manage := &fakeOverrides{tokens: map[int64][]string{1: {"tenant.manage"}}}
		f := newFixture(t, viewer, manage, ServiceConfig{InviteTTL: time.Hour})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(2, 0))
		now := time.Now().UTC()
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "status", "created_at", "updated_at"}).
				AddRow(5, "op@girder.test", "Op", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnError(sql.ErrNoRows)
		f.mock.ExpectQuery("INSERT INTO memberships").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
		f.mock.ExpectQuery("INSERT INTO invitations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

		_, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", Role: rbac.RoleOperative})
		require.NoError(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("new member lands invited with a token", func(t *testing.T) {
		f := newFixture(t, admin, noOverrides, ServiceConfig{InviteTTL: time.Hour})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(2, 0))
		now := time.Now().UTC()
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "status", "created_at", "updated_at"}).
				AddRow(5, "op@girder.test", "Op", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnError(sql.ErrNoRows)
		f.mock.ExpectQuery("INSERT INTO memberships").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
		f.mock.ExpectQuery("INSERT INTO invitations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

		inv, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", DisplayName: "Op", Role: rbac.RoleOperative})
		require.NoError(t, err)
		assert.NotEmpty(t, inv.Token)
		assert.True(t, inv.ExpiresAt.After(time.Now()))
		assert.Equal(t, []audit.Action{audit.ActionInviteMember}, f.audit.actions())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("re-invite of a pending member refreshes instead of erroring", func(t *testing.T) {
		f := newFixture(t, admin, noOverrides, ServiceConfig{InviteTTL: time.Hour})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(2, 0))
		now := time.Now().UTC()
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "status", "created_at", "updated_at"}).
				AddRow(5, "op@girder.test", "Op", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnRows(membershipRow(20, 5, 10, rbac.RoleOperative, StatusInvited, 1))
		f.mock.ExpectQuery("INSERT INTO invitations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

		inv, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", Role: rbac.RoleOperative})
		require.NoError(t, err)
		assert.NotEmpty(t, inv.Token)
		assert.Equal(t, []audit.Action{audit.ActionInviteMember}, f.audit.actions())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("active member is a conflict", func(t *testing.T) {
		f := newFixture(t, admin, noOverrides, ServiceConfig{})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(2, 0))
		now := time.Now().UTC()
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "status", "created_at", "updated_at"}).
				AddRow(5, "op@girder.test", "Op", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnRows(membershipRow(20, 5, 10, rbac.RoleOperative, StatusActive, 3))

		_, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", Role: rbac.RoleOperative})
		assert.True(t, errors.Is(err, rbac.ErrAlreadyMember))
		assert.Empty(t, f.audit.entries)
	})

	t.Run("suspended member re-invite is a conflict", func(t *testing.T) {
		f := newFixture(t, admin, noOverrides, ServiceConfig{})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(2, 0))
		now := time.Now().UTC()
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "status", "created_at", "updated_at"}).
				AddRow(5, "op@girder.test", "Op", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnRows(membershipRow(20, 5, 10, rbac.RoleOperative, StatusSuspended, 2))

		_, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", Role: rbac.RoleOperative})
		assert.True(t, errors.Is(err, rbac.ErrAlreadyMember))
		assert.Empty(t, f.audit.entries)
	})

	t.Run("seat limit blocks the invite", func(t *testing.T) {
		f := newFixture(t, admin, noOverrides, ServiceConfig{})

		f.mock.ExpectQuery("SELECT").WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count", "seat_limit"}).AddRow(5, 5))

		_, err := f.svc.Invite(ctx, 1, 10, InviteRequest{Email: "op@girder.test", Role: rbac.RoleOperative})
		assert.True(t, errors.Is(err, ErrSeatLimit))
	})
}

func TestService_UpdateRole(t *testing.T) {
	ctx := context.Background()
	superActor := &fakeOverrides{tokens: map[int64][]string{1: {"*"}}}

	t.Run("peer of equal rank is protected", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{roles: map[string]rbac.Role{"1:10": rbac.RoleCompanyAdmin}}, &fakeOverrides{}, ServiceConfig{})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleCompanyAdmin, StatusActive, 1))
		f.mock.ExpectQuery("SELECT role").WithArgs(int64(1), int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(string(rbac.RoleCompanyAdmin)))

		_, err := f.svc.UpdateRole(ctx, 1, 10, 2, rbac.RoleSupervisor, 1)
		assert.True(t, errors.Is(err, rbac.ErrProtectedRole))
		assert.Empty(t, f.audit.entries)
	})

	t.Run("self-demotion is rejected by default", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{roles: map[string]rbac.Role{"1:10": rbac.RoleCompanyAdmin}}, &fakeOverrides{}, ServiceConfig{})
		_, err := f.svc.UpdateRole(ctx, 1, 10, 1, rbac.RoleViewer, 1)
		assert.True(t, errors.Is(err, rbac.ErrProtectedRole))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("admin promotes an operative to admin", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{roles: map[string]rbac.Role{"1:10": rbac.RoleCompanyAdmin}}, &fakeOverrides{}, ServiceConfig{LastAdminGuard: true})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleOperative, StatusActive, 1))
		expectActorRole(f, rbac.RoleCompanyAdmin)
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleCompanyAdmin, StatusActive, 2))

		updated, err := f.svc.UpdateRole(ctx, 1, 10, 2, rbac.RoleCompanyAdmin, 1)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleCompanyAdmin, updated.Role)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("demoting the last admin is blocked", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		// The guard rides inside the UPDATE: zero rows with no other
		// active admin around means the count predicate fired.
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleCompanyAdmin, StatusActive, 1))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectQuery("SELECT COUNT").WithArgs(int64(10), string(rbac.RoleCompanyAdmin), int64(20)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := f.svc.UpdateRole(ctx, 1, 10, 2, rbac.RoleSupervisor, 1)
		assert.True(t, errors.Is(err, rbac.ErrLastAdmin))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("loser of concurrent admin demotions keeps the last admin", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		// Two admins, two simultaneous demotions: the first commit
		// shrinks the admin count to one, so the second statement's
		// predicate fails even though its version was still current.
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(3)).
			WillReturnRows(membershipRow(21, 3, 10, rbac.RoleCompanyAdmin, StatusActive, 2))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectQuery("SELECT COUNT").WithArgs(int64(10), string(rbac.RoleCompanyAdmin), int64(21)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := f.svc.UpdateRole(ctx, 1, 10, 3, rbac.RoleOperative, 2)
		assert.True(t, errors.Is(err, rbac.ErrLastAdmin))
		assert.Empty(t, f.propagator.events)
	})

	t.Run("guarded write losing only the version race is a conflict", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleCompanyAdmin, StatusActive, 1))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectQuery("SELECT COUNT").WithArgs(int64(10), string(rbac.RoleCompanyAdmin), int64(20)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		_, err := f.svc.UpdateRole(ctx, 1, 10, 2, rbac.RoleSupervisor, 1)
		assert.True(t, errors.Is(err, rbac.ErrConflict))
	})

	t.Run("stale version loses the race", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleOperative, StatusActive, 4))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := f.svc.UpdateRole(ctx, 1, 10, 2, rbac.RoleSupervisor, 3)
		assert.True(t, errors.Is(err, rbac.ErrConflict))
		assert.Empty(t, f.propagator.events)
	})

	t.Run("successful change audits and propagates", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleOperative, StatusActive, 4))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleSupervisor, StatusActive, 5))

		updated, err := f.svc.UpdateRole(ctx, 1, 10, 2, rbac.RoleSupervisor, 4)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleSupervisor, updated.Role)
		assert.Equal(t, []audit.Action{audit.ActionUpdateRole}, f.audit.actions())
		assert.Equal(t, []string{"10:2"}, f.propagator.events)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestService_Remove(t *testing.T) {
	ctx := context.Background()
	superActor := &fakeOverrides{tokens: map[int64][]string{1: {"*"}}}

	t.Run("removes and propagates", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleOperative, StatusActive, 2))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, f.svc.Remove(ctx, 1, 10, 2, 2))
		assert.Equal(t, []audit.Action{audit.ActionRemoveMember}, f.audit.actions())
		assert.Equal(t, []string{"10:2"}, f.propagator.events)
	})

	t.Run("removing the last admin is blocked", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, superActor, ServiceConfig{LastAdminGuard: true})

		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(2)).
			WillReturnRows(membershipRow(20, 2, 10, rbac.RoleCompanyAdmin, StatusActive, 2))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectQuery("SELECT COUNT").WithArgs(int64(10), string(rbac.RoleCompanyAdmin), int64(20)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := f.svc.Remove(ctx, 1, 10, 2, 2)
		assert.True(t, errors.Is(err, rbac.ErrLastAdmin))
		assert.Empty(t, f.propagator.events)
	})
}

func TestService_Activate(t *testing.T) {
	ctx := context.Background()

	invitationColumns := []string{"id", "tenant_id", "email", "role", "token", "invited_by", "invited_at", "expires_at", "accepted_at"}
	userColumns := []string{"id", "email", "display_name", "status", "created_at", "updated_at"}

	t.Run("moves invited membership to active", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, &fakeOverrides{}, ServiceConfig{})
		now := time.Now().UTC()

		f.mock.ExpectQuery("SELECT id, tenant_id, email").WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows(invitationColumns).
				AddRow(30, 10, "op@girder.test", string(rbac.RoleOperative), "tok-1", nil, now, now.Add(time.Hour), nil))
		f.mock.ExpectQuery("SELECT id, email").WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(5, "op@girder.test", "Op", "active", now, now))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnRows(membershipRow(20, 5, 10, rbac.RoleOperative, StatusInvited, 1))
		f.mock.ExpectExec("UPDATE memberships").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec("UPDATE invitations").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery("SELECT id, user_id, tenant_id").WithArgs(int64(10), int64(5)).
			WillReturnRows(membershipRow(20, 5, 10, rbac.RoleOperative, StatusActive, 2))

		m, err := f.svc.Activate(ctx, "tok-1", 5)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, m.Status)
		assert.Equal(t, []audit.Action{audit.ActionActivateMember}, f.audit.actions())
		assert.Equal(t, []string{"10:5"}, f.propagator.events)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, &fakeOverrides{}, ServiceConfig{})
		now := time.Now().UTC()

		f.mock.ExpectQuery("SELECT id, tenant_id, email").WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows(invitationColumns).
				AddRow(30, 10, "op@girder.test", string(rbac.RoleOperative), "tok-1", nil, now.Add(-48*time.Hour), now.Add(-time.Hour), nil))

		_, err := f.svc.Activate(ctx, "tok-1", 5)
		assert.True(t, errors.Is(err, ErrInviteExpired))
	})

	t.Run("token for another email is rejected", func(t *testing.T) {
		f := newFixture(t, &fakeMemberships{}, &fakeOverrides{}, ServiceConfig{})
		now := time.Now().UTC()

		f.mock.ExpectQuery("SELECT id, tenant_id, email").WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows(invitationColumns).
				AddRow(30, 10, "op@girder.test", string(rbac.RoleOperative), "tok-1", nil, now, now.Add(time.Hour), nil))
		f.mock.ExpectQuery("SELECT id, email").WithArgs(int64(6)).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(6, "other@girder.test", "Other", "active", now, now))

		_, err := f.svc.Activate(ctx, "tok-1", 6)
		assert.True(t, errors.Is(err, rbac.ErrUnauthorized))
	})
}
