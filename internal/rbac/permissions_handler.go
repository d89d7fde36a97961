package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// PermissionsHandler reports the caller's role and capability set.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.me)
}

type meResponse struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Role         Role         `json:"role"`
	Capabilities []Capability `json:"capabilities"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		ID:           principal.UserID.String(),
		Username:     principal.Username,
		Role:         principal.Role,
		Capabilities: Capabilities(principal.Role),
	})
}
