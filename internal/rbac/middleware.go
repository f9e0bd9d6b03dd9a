package rbac

import (
	"log/slog"
	"net/http"

	"github.com/snapgallery/backoffice/internal/platform/httpx"
)

// DecisionObserver receives every authorization decision made at the HTTP
// boundary.
type DecisionObserver interface {
	ObserveDecision(perm string, allowed bool)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Gate     *Gate
	Logger   *slog.Logger
	Observer DecisionObserver
}

// RequireAuthenticated rejects requests that carry no principal.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current principal holds at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			err := m.Gate.RequireAny(principal.Role, perms...)
			m.observe(perms[0], err == nil)
			if err != nil {
				m.logger().Info("rbac denied",
					slog.Int64("principal_id", principal.ID),
					slog.String("role", string(principal.Role)),
					slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll ensures the current principal holds every one of perms.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			for _, perm := range perms {
				err := m.Gate.Require(principal.Role, perm)
				m.observe(perm, err == nil)
				if err != nil {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) observe(perm Permission, allowed bool) {
	if m.Observer != nil {
		m.Observer.ObserveDecision(string(perm), allowed)
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
