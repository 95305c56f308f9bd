package httpapi

import (
	"errors"
	"net/http"

	"github.com/girderhq/girder/pkg/httputil"
	"github.com/girderhq/girder/pkg/members"
	"github.com/girderhq/girder/pkg/rbac"
)

// writeServiceError maps the service error taxonomy onto HTTP
// statuses. Authorization failures get a uniform body whatever their
// cause, so a denied cross-tenant probe cannot distinguish "exists but
// forbidden" from "forbidden".
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrUnauthorized), errors.Is(err, rbac.ErrProtectedRole):
		httputil.WriteErrorMessage(w, http.StatusForbidden, "not permitted")
	case errors.Is(err, rbac.ErrNotFound):
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, rbac.ErrAlreadyMember):
		httputil.WriteErrorMessage(w, http.StatusConflict, "already a member")
	case errors.Is(err, rbac.ErrConflict):
		httputil.WriteErrorMessage(w, http.StatusConflict, "concurrent modification, retry")
	case errors.Is(err, rbac.ErrLastAdmin):
		httputil.WriteErrorMessage(w, http.StatusConflict, "cannot remove the last admin")
	case errors.Is(err, members.ErrSeatLimit):
		httputil.WriteErrorMessage(w, http.StatusConflict, "seat limit reached")
	case errors.Is(err, members.ErrInviteExpired):
		httputil.WriteErrorMessage(w, http.StatusGone, "invitation expired")
	case errors.Is(err, members.ErrRateLimited):
		httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "too many invitations")
	default:
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
