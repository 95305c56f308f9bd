package httpapi

import (
	"net/http"
	"strconv"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/httputil"
	"github.com/girderhq/girder/pkg/rbac"
)

// Override entries are global to a user, not tenant-scoped, so the
// endpoints gate on the platform super-actor grant. The audit entries
// land under tenant 0, the platform scope.

func (s *Server) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if !s.resolver.RequireSuperActor(r.Context(), actorID(r), 0) {
		writeServiceError(w, rbac.ErrUnauthorized)
		return
	}
	tokens, err := s.overrides.ListOverrides(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tokens == nil {
		tokens = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"overrides": tokens,
	})
}

func (s *Server) grantOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	actor := actorID(r)
	if !s.resolver.RequireSuperActor(r.Context(), actor, 0) {
		writeServiceError(w, rbac.ErrUnauthorized)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := s.overrides.Grant(r.Context(), userID, req.Token, actor); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.recorder.Record(r.Context(), &audit.Entry{
		ActorID:    actor,
		Action:     audit.ActionGrantOverride,
		Resource:   audit.ResourcePermission,
		ResourceID: strconv.FormatInt(userID, 10),
		Changes:    map[string]interface{}{"token": req.Token},
		Status:     audit.StatusSuccess,
	})
	httputil.WriteNoContent(w)
}

func (s *Server) revokeOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	actor := actorID(r)
	if !s.resolver.RequireSuperActor(r.Context(), actor, 0) {
		writeServiceError(w, rbac.ErrUnauthorized)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteBadRequest(w, "token query parameter is required")
		return
	}
	if err := s.overrides.Revoke(r.Context(), userID, token); err != nil {
		writeServiceError(w, err)
		return
	}
	s.recorder.Record(r.Context(), &audit.Entry{
		ActorID:    actor,
		Action:     audit.ActionRevokeOverride,
		Resource:   audit.ResourcePermission,
		ResourceID: strconv.FormatInt(userID, 10),
		Changes:    map[string]interface{}{"token": token},
		Status:     audit.StatusSuccess,
	})
	httputil.WriteNoContent(w)
}
