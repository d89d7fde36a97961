package rbac

import (
	"log/slog"
	"net/http"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return m.require(caps, hasAny)
}

// RequireAll ensures the current user has all required capabilities.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	return m.require(caps, hasAll)
}

func (m Middleware) require(caps []Capability, check func(Principal, []Capability) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if len(caps) == 0 || check(principal, caps) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.String("user_id", principal.UserID.String()),
					slog.String("role", principal.Role.String()),
					slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "role "+principal.Role.String()+" is not allowed to perform this action")
		})
	}
}

func hasAny(p Principal, required []Capability) bool {
	for _, c := range required {
		if p.Can(c) {
			return true
		}
	}
	return false
}

func hasAll(p Principal, required []Capability) bool {
	for _, c := range required {
		if !p.Can(c) {
			return false
		}
	}
	return true
}
