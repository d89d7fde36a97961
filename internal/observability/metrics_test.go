package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tintworks/dyeops/internal/inventory"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("low_stock_scan").End(errors.New("boom"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `dyeops_jobs_total{job="low_stock_scan",status="failure"} 1`) {
		t.Fatalf("expected body to contain dyeops_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "dyeops_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "dyeops_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestDomainObservers(t *testing.T) {
	metrics := NewMetrics()
	var observer inventory.Observer = metrics
	observer.StockChanged(context.Background(), []inventory.StockChange{
		{
			Transaction: inventory.Transaction{Type: inventory.TransactionIssue, Quantity: -30},
			Material:    inventory.Material{Quantity: 5, MinStock: 10},
			Before:      35,
		},
		{
			Transaction: inventory.Transaction{Type: inventory.TransactionInward, Quantity: 50},
			Material:    inventory.Material{Quantity: 60, MinStock: 10},
			Before:      10,
		},
	})
	metrics.Transitioned(context.Background(), "MRS", "ISSUED")

	body := scrape(t, metrics)
	for _, want := range []string{
		`dyeops_stock_movements_total{type="ISSUE"} 1`,
		`dyeops_stock_moved_quantity_total{type="ISSUE"} 30`,
		`dyeops_stock_movements_total{type="INWARD"} 1`,
		`dyeops_low_stock_crossings_total 1`,
		`dyeops_workflow_transitions_total{document="MRS",status="ISSUED"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.StockChanged(context.Background(), nil)
	m.Transitioned(context.Background(), "PI", "APPROVED")
	if m.Jobs() != nil {
		t.Fatal("expected nil job metrics")
	}
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rr.Code)
	}
}
