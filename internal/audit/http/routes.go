package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/snapgallery/backoffice/internal/platform/httpx"
	"github.com/snapgallery/backoffice/internal/rbac"
)

const (
	defaultExportLimit  = 10
	defaultExportWindow = time.Minute
)

// MountRoutes registers the audit trail endpoints under /audit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limit := h.cfg.ExportLimit
	if limit <= 0 {
		limit = defaultExportLimit
	}
	window := h.cfg.ExportWindow
	if window <= 0 {
		window = defaultExportWindow
	}
	limiter := httprate.Limit(limit, window,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)

	r.Route("/audit", func(ar chi.Router) {
		ar.Use(h.rbac.RequireAuthenticated)
		ar.Post("/logs", h.handleRecord)
		ar.Group(func(gr chi.Router) {
			gr.Use(h.rbac.RequireAny(rbac.PermViewLogs))
			gr.Get("/logs", h.handleList)
			gr.Get("/logs/{id}", h.handleGet)
		})
		ar.With(h.rbac.RequireAny(rbac.PermViewDashboard)).Get("/stats", h.handleStats)
		ar.With(limiter).Get("/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok && p.ID > 0 {
		return string(p.Kind) + ":" + strconv.FormatInt(p.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
