// Package contextkeys centralizes the context keys the core's HTTP
// layer sets and the services read. Defining them in one place keeps
// key usage discoverable and prevents collisions.
package contextkeys

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// ActorIDKey contains the verified actor's user ID (int64).
	// Set by httpapi.IdentityMiddleware from the trusted identity
	// header; required by every mutating handler.
	ActorIDKey Key = "actor_id"

	// TenantIDKey contains the tenant ID (int64) scoping the request,
	// for callers that carry it in context rather than a route variable.
	TenantIDKey Key = "tenant_id"

	// RequestIDKey contains the request ID string (UUID). Set by the
	// request-ID middleware; attached to logs and audit entries.
	RequestIDKey Key = "request_id"

	// ClientIPKey contains the client IP string extracted from
	// X-Forwarded-For/X-Real-IP/RemoteAddr, for audit entries.
	ClientIPKey Key = "client_ip"

	// UserAgentKey contains the request's User-Agent string, for
	// audit entries.
	UserAgentKey Key = "user_agent"
)
