package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/audit"
	"github.com/tintworks/dyeops/internal/rbac"
)

type stubService struct {
	last audit.Filters
}

func (s *stubService) List(_ context.Context, f audit.Filters) (audit.Result, error) {
	s.last = f
	return audit.Result{Entries: []audit.Entry{{ID: 1, Action: "PUT /api/pi/{id}/status"}}}, nil
}

func TestAuditListing(t *testing.T) {
	svc := &stubService{}
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	do := func(path string, role rbac.Role) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), rbac.Principal{UserID: uuid.New(), Role: role}))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusForbidden, do("/audit", rbac.RoleStoreManager).Code)

	user := uuid.New()
	rr := do("/audit?action=POST&userId="+user.String()+"&from=2026-01-01&pageSize=20", rbac.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"entries"`)
	require.Equal(t, user, *svc.last.UserID)
	require.Equal(t, 20, svc.last.PageSize)
	require.Equal(t, 2026, svc.last.From.Year())

	require.Equal(t, http.StatusBadRequest, do("/audit?userId=bob", rbac.RoleAdmin).Code)
	require.Equal(t, http.StatusBadRequest, do("/audit?from=2026-02-01&to=2026-01-01", rbac.RoleAdmin).Code)
	require.Equal(t, http.StatusBadRequest, do("/audit?page=0", rbac.RoleAdmin).Code)
}

func TestAuditDateOnlyToIncludesThatDay(t *testing.T) {
	svc := &stubService{}
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), rbac.Principal{UserID: uuid.New(), Role: rbac.RoleAdmin}))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, do("/audit?from=2026-03-05&to=2026-03-05"))
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), svc.last.From)
	require.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), svc.last.To)

	require.Equal(t, http.StatusOK, do("/audit?to=2026-03-05T12:30:00Z"))
	require.Equal(t, time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC), svc.last.To)
}
