package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/snapgallery/backoffice/internal/platform/httpx"
	"github.com/snapgallery/backoffice/internal/rbac"
)

// Middleware attaches the bearer token principal to the request context.
// Requests without a token pass through anonymously; a token that fails
// verification is rejected with 401.
func Middleware(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			principal, err := verifier.Principal(strings.TrimSpace(token))
			if err != nil {
				logger.Info("auth rejected token", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
