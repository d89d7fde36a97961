package procurement

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapPIView))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapPIRaise))
		r.Post("/", h.handleCreate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapPIDecide))
		r.Put("/{id}/status", h.handleSetStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapPIInward))
		r.Post("/{id}/inward", h.handleInward)
	})
}

type itemRequest struct {
	MaterialID uuid.UUID        `json:"materialId" validate:"required"`
	Quantity   float64          `json:"quantity" validate:"gt=0"`
	UnitPrice  *decimal.Decimal `json:"unitPrice"`
}

type createRequest struct {
	Reason  string        `json:"reason"`
	Remarks string        `json:"remarks"`
	Items   []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	input := CreateInput{StoreManagerID: principal.UserID, Reason: req.Reason, Remarks: req.Remarks}
	for _, it := range req.Items {
		input.Items = append(input.Items, ItemInput{MaterialID: it.MaterialID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	indents, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, indents)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(strings.ToUpper(r.URL.Query().Get("status")))}
	indents, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, indents)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, in)
}

type statusRequest struct {
	Status  string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Reason  string `json:"reason"`
	Remarks string `json:"remarks"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	updated, err := h.service.SetStatus(r.Context(), SetStatusInput{
		IndentID: id,
		AdminID:  principal.UserID,
		Status:   Status(req.Status),
		Reason:   req.Reason,
		Remarks:  req.Remarks,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type inwardRequest struct {
	Rating *int `json:"rating" validate:"omitempty,min=1,max=5"`
}

func (h *Handler) handleInward(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req inwardRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	result, err := h.service.ProcessInward(r.Context(), InwardInput{
		IndentID:       id,
		ActorID:        principal.UserID,
		Rating:         req.Rating,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":             "Inward entry successful, stock updated",
		"pi":                  result.Indent,
		"supplierRating":      result.Rating,
		"supplierRatingCount": result.RatingCount,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid PI id")
		return uuid.Nil, false
	}
	return id, true
}
