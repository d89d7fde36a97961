package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// MountRoutes registers analytics endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)

	r.With(h.rbac.RequireAny(rbac.CapAnalyticsOverview)).Get("/dashboard", view(h, "dashboard", h.service.Dashboard))
	r.With(h.rbac.RequireAny(rbac.CapAnalyticsUsage)).Get("/efficiency", view(h, "efficiency", h.service.Efficiency))
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(rbac.CapAnalyticsStock))
		gr.Get("/inventory-health", view(h, "inventory-health", h.service.InventoryHealth))
		gr.Get("/procurement-performance", view(h, "procurement-performance", h.service.ProcurementPerformance))
		gr.Get("/cost", view(h, "cost", h.service.Cost))
		gr.Get("/forecast", view(h, "forecast", h.service.Forecast))
		gr.With(limiter).Get("/forecast/export", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return "user:" + p.UserID.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
