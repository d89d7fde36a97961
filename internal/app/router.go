package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	analytichttp "github.com/tintworks/dyeops/internal/analytics/http"
	"github.com/tintworks/dyeops/internal/audit"
	audithttp "github.com/tintworks/dyeops/internal/audit/http"
	"github.com/tintworks/dyeops/internal/auth"
	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/observability"
	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/procurement"
	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/realtime"
	"github.com/tintworks/dyeops/internal/requisition"
	"github.com/tintworks/dyeops/internal/suppliers"
	"github.com/tintworks/dyeops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Tokens  *auth.TokenIssuer
	Auditor audit.Recorder
	Metrics *observability.Metrics

	AuthHandler          *auth.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	InventoryHandler     *inventory.Handler
	RequisitionHandler   *requisition.Handler
	ProcurementHandler   *procurement.Handler
	SupplierHandler      *suppliers.Handler
	NotificationsHandler *notifications.Handler
	RealtimeHandler      *realtime.Handler
	AnalyticsHandler     *analytichttp.Handler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with dyeops defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "method not allowed on this route")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.With(RequestTimeout(params.Config)).Route("/jobs", params.JobHandler.MountRoutes)
	}

	timeout := RequestTimeout(params.Config)
	// protected authenticates the caller and audits successful mutations.
	protected := func(r chi.Router) {
		r.Use(timeout, params.Tokens.RequireToken)
		if params.Auditor != nil {
			r.Use(audit.Middleware(params.Auditor, params.Logger))
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(timeout).Group(params.AuthHandler.MountPublicRoutes)
			r.Group(func(r chi.Router) {
				protected(r)
				if params.PermissionsHandler != nil {
					r.Route("/me", params.PermissionsHandler.MountRoutes)
				}
				params.AuthHandler.MountRoutes(r)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			if params.RealtimeHandler != nil {
				r.Method(http.MethodGet, "/ws", params.RealtimeHandler)
			}
			r.Group(func(r chi.Router) {
				protected(r)
				params.NotificationsHandler.MountRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			protected(r)
			r.Route("/materials", params.InventoryHandler.MountRoutes)
			r.Route("/transactions", params.InventoryHandler.MountTransactionRoutes)
			r.Route("/mrs", params.RequisitionHandler.MountRoutes)
			r.Route("/pi", params.ProcurementHandler.MountRoutes)
			r.Route("/suppliers", params.SupplierHandler.MountRoutes)
			if params.AnalyticsHandler != nil {
				r.Route("/analytics", params.AnalyticsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
		})
	})

	return r
}
