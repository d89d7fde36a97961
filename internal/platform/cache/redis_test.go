package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("hunter2")

	_, err := New(context.Background(), Options{Addr: srv.Addr()})
	require.Error(t, err)

	client, err := New(context.Background(), Options{Addr: srv.Addr(), Password: "hunter2"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestOptionsAsynq(t *testing.T) {
	opt := Options{Addr: "redis:6379", Password: "p", DB: 2}.Asynq()
	require.Equal(t, "redis:6379", opt.Addr)
	require.Equal(t, "p", opt.Password)
	require.Equal(t, 2, opt.DB)
}
