package audit

import "time"

// Action is the verb recorded for an audit entry.
type Action string

const (
	ActionCreateCompany   Action = "CREATE_COMPANY"
	ActionUpdateCompany   Action = "UPDATE_COMPANY"
	ActionDeleteCompany   Action = "DELETE_COMPANY"
	ActionSuspendCompany  Action = "SUSPEND_COMPANY"
	ActionInviteMember    Action = "INVITE_MEMBER"
	ActionActivateMember  Action = "ACTIVATE_MEMBER"
	ActionUpdateRole      Action = "UPDATE_ROLE"
	ActionRemoveMember    Action = "REMOVE_MEMBER"
	ActionSuspendMember   Action = "SUSPEND_MEMBER"
	ActionReinstateMember Action = "REINSTATE_MEMBER"
	ActionGrantOverride   Action = "GRANT_OVERRIDE"
	ActionRevokeOverride  Action = "REVOKE_OVERRIDE"
)

// Status is the recorded outcome of the audited operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Resource names the kind of record an entry is about.
type Resource string

const (
	ResourceTenant     Resource = "tenant"
	ResourceMembership Resource = "membership"
	ResourceUser       Resource = "user"
	ResourcePermission Resource = "permission"
)

// Entry is one audit log record. Entries are written once and never
// mutated; ActorName is denormalized at write time so the trail stays
// readable after the actor's profile changes.
type Entry struct {
	ID         int64                  `json:"id"`
	TenantID   int64                  `json:"tenant_id"`
	ActorID    int64                  `json:"actor_id"`
	ActorName  string                 `json:"actor_name,omitempty"`
	Action     Action                 `json:"action"`
	Resource   Resource               `json:"resource"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Changes    map[string]interface{} `json:"changes,omitempty"`
	Status     Status                 `json:"status"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Filter narrows a tenant-scoped query. The tenant itself is not part
// of the filter: it is a mandatory argument everywhere, so a caller
// can never forget to scope.
type Filter struct {
	Actions []Action
	ActorID *int64
	Status  *Status
	Since   *time.Time
	Until   *time.Time

	// Pagination; Limit falls back to a server default when zero.
	Limit  int
	Offset int
}
