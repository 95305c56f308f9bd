package httpapi

import (
	"net/http"

	"github.com/girderhq/girder/pkg/httputil"
	"github.com/girderhq/girder/pkg/tenants"
)

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	var req tenants.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	tenant, err := s.tenants.Create(r.Context(), actorID(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tenant)
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	tenant, err := s.tenants.Get(r.Context(), actorID(r), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tenant)
}

func (s *Server) updateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	var req tenants.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	tenant, err := s.tenants.Update(r.Context(), actorID(r), tenantID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tenant)
}

func (s *Server) deleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if err := s.tenants.Delete(r.Context(), actorID(r), tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) suspendTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if err := s.tenants.Suspend(r.Context(), actorID(r), tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) reinstateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if err := s.tenants.Reinstate(r.Context(), actorID(r), tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
