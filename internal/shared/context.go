package shared

import (
	"context"
	"net"
	"net/http"
)

type clientIPContextKey struct{}

// ContextWithClientIP stores the caller address in context.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext extracts the caller address from context.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// ClientIPMiddleware records r.RemoteAddr (already rewritten by RealIP) in context.
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClientIP(r.Context(), ip)))
	})
}
