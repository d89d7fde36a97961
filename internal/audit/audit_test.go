package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/shared"
)

type stubLister struct {
	entries []Entry
	last    Query
}

func (s *stubLister) List(_ context.Context, q Query) ([]Entry, error) {
	s.last = q
	end := q.Offset + q.Limit
	if q.Offset > len(s.entries) {
		return nil, nil
	}
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[q.Offset:end], nil
}

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{ID: int64(n - i), Action: "POST /api/mrs"}
	}
	return out
}

func TestListDefaultsToHundred(t *testing.T) {
	repo := &stubLister{entries: entries(130)}
	svc := NewService(repo)

	res, err := svc.List(context.Background(), Filters{Action: " POST /api/mrs "})
	require.NoError(t, err)
	require.Len(t, res.Entries, DefaultPageSize)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, "POST /api/mrs", repo.last.Action)
	require.Equal(t, DefaultPageSize+1, repo.last.Limit)

	res, err = svc.List(context.Background(), Filters{Page: 2, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, res.Entries, 30)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 100, repo.last.Offset)
}

type recorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (r *recorder) Record(_ context.Context, log shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

func TestMiddlewareRecordsMutations(t *testing.T) {
	rec := &recorder{}
	actor := uuid.New()
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := rbac.ContextWithPrincipal(r.Context(), rbac.Principal{UserID: actor, Role: rbac.RoleAdmin})
			ctx = shared.ContextWithClientIP(ctx, "10.0.0.9")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(Middleware(rec, nil))
	router.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "s3cret", body["password"], "handler must still see the body")
		w.WriteHeader(http.StatusCreated)
	})
	router.Put("/mrs/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	router.Get("/mrs/my", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/auth/register?src=ui", strings.NewReader(`{"username":"dyer","password":"s3cret"}`))
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/mrs/"+uuid.NewString()+"/reject", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mrs/my", nil))

	require.Len(t, rec.logs, 1)
	got := rec.logs[0]
	require.Equal(t, "POST /auth/register", got.Action)
	require.Equal(t, actor, *got.ActorID)
	require.Equal(t, "10.0.0.9", got.IPAddress)
	body := got.Details["body"].(map[string]any)
	require.Equal(t, "[REDACTED]", body["password"])
	require.Equal(t, "dyer", body["username"])
	require.Equal(t, http.StatusCreated, got.Details["status"])
}

func TestMiddlewareSurvivesRecorderFailure(t *testing.T) {
	rec := &recorder{err: errors.New("db down")}
	h := Middleware(rec, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/auth/42", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
	require.Len(t, rec.logs, 1)
	require.Nil(t, rec.logs[0].ActorID)
	require.Equal(t, "DELETE /auth/42", rec.logs[0].Action)
}

func TestRedactNested(t *testing.T) {
	v := redactBody([]byte(`{"users":[{"Password":"x","name":"a"}],"token":"t"}`)).(map[string]any)
	require.Equal(t, "[REDACTED]", v["token"])
	inner := v["users"].([]any)[0].(map[string]any)
	require.Equal(t, "[REDACTED]", inner["Password"])
	require.Equal(t, "a", inner["name"])
	require.Equal(t, "plain", redactBody([]byte("plain")))
	require.Nil(t, redactBody(nil))
}

// trail keeps what the middleware records and filters it on exact action.
type trail struct {
	recorder
}

func (t *trail) List(_ context.Context, q Query) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []Entry{}
	for i, log := range t.logs {
		if q.Action != "" && log.Action != q.Action {
			continue
		}
		out = append(out, Entry{ID: int64(i + 1), Action: log.Action, UserID: log.ActorID})
	}
	return out, nil
}

func TestRecordedActionIsFilterable(t *testing.T) {
	tr := &trail{}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := rbac.ContextWithPrincipal(r.Context(), rbac.Principal{UserID: uuid.New(), Role: rbac.RoleStoreManager})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Route("/api/mrs", func(r chi.Router) {
		r.Use(Middleware(tr, nil))
		r.Put("/{id}/issue", func(w http.ResponseWriter, r *http.Request) {})
		r.Put("/{id}/reject", func(w http.ResponseWriter, r *http.Request) {})
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/mrs/"+uuid.NewString()+"/issue", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/mrs/"+uuid.NewString()+"/reject", nil))
	require.Len(t, tr.logs, 2)
	stored := tr.logs[0].Action
	require.Equal(t, "PUT /api/mrs/{id}/issue", stored)

	res, err := NewService(tr).List(context.Background(), Filters{Action: "  " + stored + " "})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, stored, res.Entries[0].Action)
}

func TestListSQLMatchesActionIgnoringCase(t *testing.T) {
	user := uuid.New()
	to := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	sql, args := listSQL(Query{Action: "put /api/mrs/{id}/issue", UserID: &user, To: to, Limit: 101, Offset: 100})
	require.Contains(t, sql, "lower(a.action) = lower($1)")
	require.Contains(t, sql, "a.user_id = $2")
	require.Contains(t, sql, "a.occurred_at < $3")
	require.Contains(t, sql, "LIMIT $4 OFFSET $5")
	require.Equal(t, []any{"put /api/mrs/{id}/issue", user, to, 101, 100}, args)

	sql, args = listSQL(Query{Limit: 10})
	require.NotContains(t, sql, "WHERE")
	require.Equal(t, []any{10, 0}, args)
}
