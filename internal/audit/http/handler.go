package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/audit"
	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// Lister defines the listing contract.
type Lister interface {
	List(ctx context.Context, filters audit.Filters) (audit.Result, error)
}

// Handler serves the audit listing.
type Handler struct {
	logger  *slog.Logger
	service Lister
	rbac    rbac.Middleware
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service Lister, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the audit endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.CapAuditView)).Get("/", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	f := audit.Filters{Action: strings.TrimSpace(q.Get("action"))}
	if raw := strings.TrimSpace(q.Get("userId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, filterError("userId must be a UUID")
		}
		f.UserID = &id
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			if t, err = time.Parse(time.DateOnly, raw); err != nil {
				return f, filterError(p.name + " must be RFC3339 or YYYY-MM-DD")
			}
			// A bare date bound covers that whole day; to is exclusive.
			if p.name == "to" {
				t = t.AddDate(0, 0, 1)
			}
		}
		*p.dst = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, filterError("to must not be before from")
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"pageSize", &f.PageSize}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, filterError(p.name + " must be a positive integer")
		}
		*p.dst = n
	}
	return f, nil
}
