package httpapi

import (
	"net/http"

	"github.com/girderhq/girder/pkg/httputil"
)

// resolvePermissions returns the caller's effective permission tokens
// in the tenant. An empty list is a normal answer, not an error;
// clients cache it against the realtime invalidation signal.
func (s *Server) resolvePermissions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	set, err := s.resolver.Resolve(r.Context(), actorID(r), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tokens := set.Tokens()
	if tokens == nil {
		tokens = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":   tenantID,
		"permissions": tokens,
	})
}

// checkPermission answers a single allow/deny question. The answer is
// always 200 with a boolean; denial is a result, not an HTTP error.
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	token := r.URL.Query().Get("permission")
	if token == "" {
		httputil.WriteBadRequest(w, "permission query parameter is required")
		return
	}
	allowed := s.resolver.Check(r.Context(), actorID(r), tenantID, token)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"permission": token,
		"allowed":    allowed,
	})
}
