package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers material routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapInventoryView))
		r.Get("/", h.handleList)
		r.Get("/low-stock", h.handleLowStock)
		r.Get("/{id}/procurement-context", h.handleProcurementContext)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapInventoryInsights))
		r.Get("/abc", h.handleABC)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapInventoryAdjust))
		r.Post("/{id}/adjust", h.handleAdjust)
	})
}

// MountTransactionRoutes registers the material history route.
func (h *Handler) MountTransactionRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.CapInventoryView)).Get("/{materialId}", h.handleHistory)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.ListMaterials(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.ListLowStock(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) handleABC(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ABC(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleProcurementContext(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	out, err := h.service.ProcurementContext(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "materialId"))
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

type adjustRequest struct {
	Quantity float64 `json:"quantity" validate:"ne=0"`
	Note     string  `json:"note" validate:"required,max=500"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req adjustRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	change, err := h.service.ApplyDelta(r.Context(), Movement{
		MaterialID: id,
		Delta:      req.Quantity,
		Type:       TransactionAdjustment,
		Note:       req.Note,
		ActorID:    principal.UserID,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, change)
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
