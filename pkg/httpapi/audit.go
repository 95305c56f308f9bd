package httpapi

import (
	"net/http"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/httputil"
	"github.com/girderhq/girder/pkg/rbac"
)

// queryAudit returns a page of the tenant's audit trail, newest first.
// Requires security.view in the tenant.
func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenant_id")
	if !ok {
		return
	}
	if !s.resolver.Check(r.Context(), actorID(r), tenantID, rbac.TokenSecurityView) {
		writeServiceError(w, rbac.ErrUnauthorized)
		return
	}

	filter := audit.Filter{
		ActorID: httputil.ParseQueryInt64(r, "actor_id"),
		Since:   httputil.ParseQueryTime(r, "since"),
		Until:   httputil.ParseQueryTime(r, "until"),
		Limit:   httputil.ParseQueryInt(r, "limit", 0),
		Offset:  httputil.ParseQueryInt(r, "offset", 0),
	}
	if action := r.URL.Query().Get("action"); action != "" {
		filter.Actions = []audit.Action{audit.Action(action)}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		st := audit.Status(status)
		filter.Status = &st
	}

	entries, err := s.recorder.Query(r.Context(), tenantID, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"entries":   entries,
	})
}
