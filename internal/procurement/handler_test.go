package procurement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/rbac"
)

func serve(t *testing.T, h http.Handler, method, path, body string, p rbac.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRaiseApproveInward(t *testing.T) {
	f := newProcFixture()
	router := chi.NewRouter()
	router.Route("/pi", NewHandler(nil, f.svc, rbac.Middleware{}).MountRoutes)

	admin := rbac.Principal{UserID: uuid.New(), Role: rbac.RoleAdmin}
	manager := rbac.Principal{UserID: uuid.New(), Role: rbac.RoleStoreManager}

	body := `{"reason":"reorder","items":[{"materialId":"` + f.red.ID.String() + `","quantity":20,"unitPrice":"8.75"}]}`
	rr := serve(t, router, http.MethodPost, "/pi", body, admin)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, router, http.MethodPost, "/pi", body, manager)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created []Indent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created, 1)
	id := created[0].ID.String()

	rr = serve(t, router, http.MethodPost, "/pi/"+id+"/inward", "", manager)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, router, http.MethodPut, "/pi/"+id+"/status", `{"status":"COMPLETED"}`, admin)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, router, http.MethodPut, "/pi/"+id+"/status", `{"status":"APPROVED"}`, manager)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, router, http.MethodPut, "/pi/"+id+"/status", `{"status":"APPROVED"}`, admin)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, router, http.MethodPost, "/pi/"+id+"/inward", `{"rating":9}`, manager)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, router, http.MethodPost, "/pi/"+id+"/inward", `{"rating":4}`, manager)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Message        string  `json:"message"`
		PI             Indent  `json:"pi"`
		SupplierRating float64 `json:"supplierRating"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Inward entry successful, stock updated", resp.Message)
	require.Equal(t, StatusCompleted, resp.PI.Status)
	require.InDelta(t, (4.5*2+4)/3.0, resp.SupplierRating, 1e-9)
	require.Equal(t, 25.0, f.repo.ledger.Quantity(f.red.ID))

	rr = serve(t, router, http.MethodGet, "/pi?status=completed", "", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []Indent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rr = serve(t, router, http.MethodGet, "/pi/not-a-uuid", "", admin)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, router, http.MethodGet, "/pi/"+uuid.NewString(), "", admin)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
