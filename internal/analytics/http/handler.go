package analytichttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tintworks/dyeops/internal/analytics"
	"github.com/tintworks/dyeops/internal/analytics/export"
	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

const requestTimeout = 5 * time.Second

// AnalyticsService defines the view contract used by the handler.
type AnalyticsService interface {
	Dashboard(ctx context.Context) (analytics.Dashboard, error)
	InventoryHealth(ctx context.Context) (analytics.HealthReport, error)
	ProcurementPerformance(ctx context.Context) (analytics.ProcurementPerformance, error)
	Efficiency(ctx context.Context) (analytics.Efficiency, error)
	Cost(ctx context.Context) (analytics.CostReport, error)
	Forecast(ctx context.Context) ([]analytics.ForecastItem, error)
}

// Handler serves the analytics endpoints.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	rbac    rbac.Middleware
	bufPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
	h.bufPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// view adapts a service call into a JSON endpoint with a bounded deadline.
func view[T any](h *Handler, name string, load func(context.Context) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		data, err := load(ctx)
		if err != nil {
			httpx.Fail(w, r, h.logger, fmt.Errorf("analytics %s: %w", name, err))
			return
		}
		httpx.JSON(w, http.StatusOK, data)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "format must be xlsx or csv")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	items, err := h.service.Forecast(ctx)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}

	buf := h.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.bufPool.Put(buf)
	}()

	now := h.now()
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteForecastXLSX(buf, items, now)
	} else {
		err = export.WriteForecastCSV(buf, items)
	}
	if err != nil {
		httpx.Fail(w, r, h.logger, fmt.Errorf("write forecast %s: %w", format, err))
		return
	}

	filename := fmt.Sprintf("reorder-forecast-%s.%s", now.UTC().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("stream forecast export", slog.Any("error", err))
	}
}
