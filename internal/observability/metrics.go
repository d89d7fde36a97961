// Package observability exposes Prometheus metrics for HTTP traffic, stock
// movements and workflow transitions.
package observability

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tintworks/dyeops/internal/inventory"
	jobmetrics "github.com/tintworks/dyeops/internal/jobs"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movements       *prometheus.CounterVec
	movedQuantity   *prometheus.CounterVec
	lowStock        prometheus.Counter
	transitions     *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, domain and job collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dyeops_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dyeops_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dyeops_stock_movements_total",
		Help: "Ledger transactions posted, by transaction type.",
	}, []string{"type"})
	moved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dyeops_stock_moved_quantity_total",
		Help: "Absolute quantity moved through the ledger, by transaction type.",
	}, []string{"type"})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dyeops_low_stock_crossings_total",
		Help: "Stock movements that took a material to or below its minimum.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dyeops_workflow_transitions_total",
		Help: "Requisition and purchase indent status changes.",
	}, []string{"document", "status"})
	registry.MustRegister(requests, duration, movements, moved, lowStock, transitions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		movements:       movements,
		movedQuantity:   moved,
		lowStock:        lowStock,
		transitions:     transitions,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// StockChanged counts posted ledger movements.
func (m *Metrics) StockChanged(_ context.Context, changes []inventory.StockChange) {
	if m == nil {
		return
	}
	for _, c := range changes {
		typ := string(c.Transaction.Type)
		m.movements.WithLabelValues(typ).Inc()
		q := c.Transaction.Quantity
		if q < 0 {
			q = -q
		}
		m.movedQuantity.WithLabelValues(typ).Add(q)
		if c.CrossedMinimum() {
			m.lowStock.Inc()
		}
	}
}

// Transitioned counts workflow status changes.
func (m *Metrics) Transitioned(_ context.Context, document, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(document, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
