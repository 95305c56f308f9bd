package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/girderhq/girder/pkg/contextkeys"
	"github.com/girderhq/girder/pkg/httputil"
	"github.com/girderhq/girder/pkg/observability"
)

// identityHeader carries the verified user ID. Authentication happens
// upstream (gateway or session layer); this service trusts the header
// and concerns itself only with authorization.
const identityHeader = "X-Girder-User-ID"

// IdentityMiddleware requires the trusted identity header and puts the
// actor's user ID on the context. Requests without a parsable ID are
// rejected before reaching any handler.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(identityHeader)
		if raw == "" {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing identity")
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid identity")
			return
		}
		ctx := context.WithValue(r.Context(), contextkeys.ActorIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestContextMiddleware assigns a request ID and captures the
// client IP and user agent for audit entries and logs.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := r.Context()
		ctx = context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
		ctx = context.WithValue(ctx, contextkeys.ClientIPKey, clientIP(r))
		ctx = context.WithValue(ctx, contextkeys.UserAgentKey, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request with its ID and actor.
func LoggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			if id, ok := r.Context().Value(contextkeys.RequestIDKey).(string); ok {
				fields["request_id"] = id
			}
			logger.WithFields(fields).Debug("handling request")
			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware converts handler panics into 500 responses.
func RecoveryMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.WithField("panic", rec).Error("handler panic")
					}
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// actorID pulls the verified actor from the context. The identity
// middleware guarantees presence on every API route.
func actorID(r *http.Request) int64 {
	id, _ := r.Context().Value(contextkeys.ActorIDKey).(int64)
	return id
}
