package httpapi

import (
	"net/http"

	"github.com/girderhq/girder/pkg/httputil"
	"github.com/girderhq/girder/pkg/members"
	"github.com/girderhq/girder/pkg/rbac"
)

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	list, err := s.members.List(r.Context(), actorID(r), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*members.Membership{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": list})
}

func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	var req members.InviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	if !req.Role.Valid() || req.Role == rbac.RoleSuperAdmin {
		httputil.WriteBadRequest(w, "invalid role")
		return
	}
	inv, err := s.members.Invite(r.Context(), actorID(r), tenantID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inv)
}

func (s *Server) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Role    rbac.Role `json:"role"`
		Version int64     `json:"version"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.Valid() || req.Role == rbac.RoleSuperAdmin {
		httputil.WriteBadRequest(w, "invalid role")
		return
	}
	membership, err := s.members.UpdateRole(r.Context(), actorID(r), tenantID, userID, req.Role, req.Version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, membership)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var version int64
	if v := httputil.ParseQueryInt64(r, "version"); v != nil {
		version = *v
	}
	if err := s.members.Remove(r.Context(), actorID(r), tenantID, userID, version); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) suspendMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := s.members.Suspend(r.Context(), actorID(r), tenantID, userID, 0); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) reinstateMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := s.members.Reinstate(r.Context(), actorID(r), tenantID, userID, 0); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}
	membership, err := s.members.Activate(r.Context(), req.Token, actorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, membership)
}
