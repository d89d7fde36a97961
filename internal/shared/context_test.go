package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIPMiddlewareStripsPort(t *testing.T) {
	var got string
	handler := ClientIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "10.1.2.3", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.9.9.9"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "10.9.9.9", got)
}
