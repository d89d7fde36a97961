package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/shared"
)

// maxBodyCapture bounds the request body copied into an audit record.
const maxBodyCapture = 16 << 10

var redactedKeys = map[string]struct{}{"password": {}, "token": {}, "passwordhash": {}}

// Recorder persists audit records.
type Recorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Middleware records every successful mutating request with its method,
// route, body and query. Secrets in the body are redacted.
func Middleware(rec Recorder, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(r.Body, maxBodyCapture))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusBadRequest {
				return
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			entry := shared.AuditLog{
				Action: r.Method + " " + route,
				Details: map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.Query(),
					"body":   redactBody(body),
					"status": status,
				},
				IPAddress: shared.ClientIPFromContext(r.Context()),
				At:        time.Now(),
			}
			if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
				id := p.UserID
				entry.ActorID = &id
			}
			if err := rec.Record(r.Context(), entry); err != nil {
				logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
			}
		})
	}
}

// redactBody decodes a JSON body and masks secret fields. Non-JSON bodies are
// kept as text.
func redactBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return redact(v)
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if _, secret := redactedKeys[strings.ToLower(k)]; secret {
				t[k] = "[REDACTED]"
				continue
			}
			t[k] = redact(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redact(t[i])
		}
		return t
	default:
		return v
	}
}
