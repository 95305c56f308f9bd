// Package httpapi exposes the authorization core over HTTP. Routes
// are tenant-scoped under /api/v1; authorization decisions live in the
// services, so handlers only parse, delegate, and map errors.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/members"
	"github.com/girderhq/girder/pkg/observability"
	"github.com/girderhq/girder/pkg/rbac"
	"github.com/girderhq/girder/pkg/realtime"
	"github.com/girderhq/girder/pkg/tenants"
)

// Server bundles the API handlers and their dependencies.
type Server struct {
	tenants   *tenants.Service
	members   *members.Service
	resolver  *rbac.Resolver
	overrides *rbac.OverrideStore
	recorder  *audit.Recorder
	hub       *realtime.Hub
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewServer wires the handlers. hub may be nil to disable the
// websocket endpoint.
func NewServer(tenantSvc *tenants.Service, memberSvc *members.Service, resolver *rbac.Resolver, overrides *rbac.OverrideStore, recorder *audit.Recorder, hub *realtime.Hub, logger *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		tenants:   tenantSvc,
		members:   memberSvc,
		resolver:  resolver,
		overrides: overrides,
		recorder:  recorder,
		hub:       hub,
		logger:    logger,
		metrics:   metrics,
	}
}

// Router builds the full route tree with middleware applied.
func (s *Server) Router() *mux.Router {
	root := mux.NewRouter()
	root.Use(RequestContextMiddleware)
	root.Use(RecoveryMiddleware(s.logger))
	if s.metrics != nil {
		root.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(IdentityMiddleware)
	if s.logger != nil {
		api.Use(LoggingMiddleware(s.logger))
	}

	// Tenant lifecycle
	api.HandleFunc("/tenants", s.createTenant).Methods("POST")
	api.HandleFunc("/tenants/{tenant_id}", s.getTenant).Methods("GET")
	api.HandleFunc("/tenants/{tenant_id}", s.updateTenant).Methods("PATCH")
	api.HandleFunc("/tenants/{tenant_id}", s.deleteTenant).Methods("DELETE")
	api.HandleFunc("/tenants/{tenant_id}/suspend", s.suspendTenant).Methods("POST")
	api.HandleFunc("/tenants/{tenant_id}/reinstate", s.reinstateTenant).Methods("POST")

	// Membership lifecycle
	api.HandleFunc("/tenants/{tenant_id}/members", s.listMembers).Methods("GET")
	api.HandleFunc("/tenants/{tenant_id}/members", s.inviteMember).Methods("POST")
	api.HandleFunc("/tenants/{tenant_id}/members/{user_id}/role", s.updateMemberRole).Methods("PUT")
	api.HandleFunc("/tenants/{tenant_id}/members/{user_id}", s.removeMember).Methods("DELETE")
	api.HandleFunc("/tenants/{tenant_id}/members/{user_id}/suspend", s.suspendMember).Methods("POST")
	api.HandleFunc("/tenants/{tenant_id}/members/{user_id}/reinstate", s.reinstateMember).Methods("POST")
	api.HandleFunc("/invitations/accept", s.acceptInvitation).Methods("POST")

	// Authorization
	api.HandleFunc("/tenants/{tenant_id}/permissions", s.resolvePermissions).Methods("GET")
	api.HandleFunc("/tenants/{tenant_id}/permissions/check", s.checkPermission).Methods("GET")

	// Audit trail
	api.HandleFunc("/tenants/{tenant_id}/audit", s.queryAudit).Methods("GET")

	// Permission overrides, super-actor only
	api.HandleFunc("/users/{user_id}/overrides", s.listOverrides).Methods("GET")
	api.HandleFunc("/users/{user_id}/overrides", s.grantOverride).Methods("POST")
	api.HandleFunc("/users/{user_id}/overrides", s.revokeOverride).Methods("DELETE")

	// Realtime propagation channel
	if s.hub != nil {
		root.Handle("/ws", IdentityMiddleware(s.hub.Handler())).Methods("GET")
	}

	return root
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.Router()
}
