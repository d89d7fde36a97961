package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/app"
	_ "github.com/tintworks/dyeops/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}

func TestAllowOrigins(t *testing.T) {
	check := allowOrigins([]string{"http://dyehouse.local"})

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/ws", nil)
	require.True(t, check(req))

	req.Header.Set("Origin", "http://dyehouse.local")
	require.True(t, check(req))

	req.Header.Set("Origin", "http://evil.test")
	require.False(t, check(req))

	require.True(t, allowOrigins([]string{"*"})(req))
}
