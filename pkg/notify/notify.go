// Package notify delivers best-effort user notifications for lifecycle
// events. Delivery failures never fail the operation that triggered
// them; the caller fires and forgets.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notifier sends lifecycle notifications. Implementations must be safe
// for concurrent use and must not block the caller on slow transports.
type Notifier interface {
	// TenantCreated welcomes the owner of a freshly created tenant.
	TenantCreated(ctx context.Context, tenantID int64, tenantName, ownerEmail string)

	// MemberInvited tells an invitee they have been invited; token is
	// the activation token to embed in the accept link.
	MemberInvited(ctx context.Context, tenantID int64, email, role, token string)

	// RoleChanged tells a member their role in a tenant changed.
	RoleChanged(ctx context.Context, tenantID, userID int64, oldRole, newRole string)
}

// LogNotifier writes notifications to a structured log. It stands in
// for a real mail or push transport; operators tail the log or ship it
// to a delivery pipeline.
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier creates a notifier over the given logrus logger. A
// nil logger gets the logrus standard logger.
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) TenantCreated(ctx context.Context, tenantID int64, tenantName, ownerEmail string) {
	n.log.WithFields(logrus.Fields{
		"event":       "tenant_created",
		"tenant_id":   tenantID,
		"tenant_name": tenantName,
		"owner_email": ownerEmail,
	}).Info("notification: tenant created")
}

func (n *LogNotifier) MemberInvited(ctx context.Context, tenantID int64, email, role, token string) {
	n.log.WithFields(logrus.Fields{
		"event":     "member_invited",
		"tenant_id": tenantID,
		"email":     email,
		"role":      role,
		"token":     token,
	}).Info("notification: member invited")
}

func (n *LogNotifier) RoleChanged(ctx context.Context, tenantID, userID int64, oldRole, newRole string) {
	n.log.WithFields(logrus.Fields{
		"event":     "role_changed",
		"tenant_id": tenantID,
		"user_id":   userID,
		"old_role":  oldRole,
		"new_role":  newRole,
	}).Info("notification: role changed")
}

// NopNotifier discards notifications; used in tests.
type NopNotifier struct{}

func (NopNotifier) TenantCreated(ctx context.Context, tenantID int64, tenantName, ownerEmail string) {
}
func (NopNotifier) MemberInvited(ctx context.Context, tenantID int64, email, role, token string) {}
func (NopNotifier) RoleChanged(ctx context.Context, tenantID, userID int64, oldRole, newRole string) {
}
