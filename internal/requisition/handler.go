package requisition

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// Handler exposes MRS endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers MRS routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapMRSRequest))
		r.Post("/", h.handleCreate)
		r.Get("/my", h.handleListMine)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapMRSIssue))
		r.Get("/pending", h.handleListPending)
		r.Put("/{id}/issue", h.handleIssue)
		r.Put("/{id}/reject", h.handleReject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapStockReturn))
		r.Post("/return", h.handleReturn)
	})
}

type itemRequest struct {
	MaterialID        uuid.UUID `json:"materialId" validate:"required"`
	QuantityRequested float64   `json:"quantityRequested" validate:"gt=0"`
}

type createRequest struct {
	BatchID string        `json:"batchId" validate:"required"`
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
	input := CreateInput{BatchID: req.BatchID, SupervisorID: principal.UserID, Remarks: req.Remarks}
	for _, it := range req.Items {
		input.Items = append(input.Items, ItemInput{MaterialID: it.MaterialID, Quantity: it.QuantityRequested})
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	list, err := h.service.ListMine(r.Context(), principal.UserID)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPending(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

type issueLineRequest struct {
	MaterialID     uuid.UUID `json:"materialId" validate:"required"`
	QuantityIssued float64   `json:"quantityIssued" validate:"gte=0"`
}

type issueRequest struct {
	ItemsIssue []issueLineRequest `json:"itemsIssue" validate:"required,min=1,dive"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	input := IssueInput{RequisitionID: id, ActorID: principal.UserID}
	for _, l := range req.ItemsIssue {
		input.Lines = append(input.Lines, IssueLine{MaterialID: l.MaterialID, Quantity: l.QuantityIssued})
	}
	result, err := h.service.Issue(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result.Requisition)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	rejected, err := h.service.Reject(r.Context(), id, principal.UserID, req.Reason)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rejected)
}

type returnItemRequest struct {
	MaterialID uuid.UUID `json:"materialId" validate:"required"`
	Quantity   float64   `json:"quantity" validate:"gt=0"`
}

type returnRequest struct {
	MRSID  *uuid.UUID          `json:"mrsId"`
	Reason string              `json:"reason" validate:"required"`
	Items  []returnItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	input := ReturnInput{
		Actor:          principal,
		RequisitionID:  req.MRSID,
		Reason:         req.Reason,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, ItemInput{MaterialID: it.MaterialID, Quantity: it.Quantity})
	}
	changes, err := h.service.ReturnStock(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Material returned", "changes": changes})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid MRS id")
		return uuid.Nil, false
	}
	return id, true
}
