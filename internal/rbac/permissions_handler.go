package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snapgallery/backoffice/internal/platform/httpx"
)

// PermissionsHandler exposes the static matrix over HTTP.
type PermissionsHandler struct {
	logger *slog.Logger
	gate   *Gate
	rbac   Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, gate *Gate, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, gate: gate, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/me", h.me)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermManageAdmins))
		r.Get("/matrix", h.matrix)
	})
}

type meResponse struct {
	ID          int64        `json:"id"`
	Role        Role         `json:"role"`
	Kind        IdentityKind `json:"kind"`
	Permissions []Permission `json:"permissions"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	perms := h.gate.Matrix().Granted(principal.Role)
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		ID:          principal.ID,
		Role:        principal.Role,
		Kind:        principal.Kind,
		Permissions: perms,
	})
}

func (h *PermissionsHandler) matrix(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.gate.Matrix().Config()})
}
