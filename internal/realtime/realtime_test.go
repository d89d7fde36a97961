package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

type staticTokens map[string]rbac.Principal

func (s staticTokens) Authenticate(_ context.Context, raw string) (rbac.Principal, error) {
	p, ok := s[raw]
	if !ok {
		return rbac.Principal{}, fmt.Errorf("bad token: %w", httpx.ErrUnauthorized)
	}
	return p, nil
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitMembers(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Members(room) == n }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewHandler(hub, staticTokens{}, nil, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoomsDerivedFromToken(t *testing.T) {
	manager := rbac.Principal{UserID: uuid.New(), Role: rbac.RoleStoreManager}
	supervisor := rbac.Principal{UserID: uuid.New(), Role: rbac.RoleSupervisor}
	hub := NewHub(nil)
	srv := httptest.NewServer(NewHandler(hub, staticTokens{"m": manager, "s": supervisor}, nil, nil))
	defer srv.Close()

	mConn := dial(t, srv, "m")
	sConn := dial(t, srv, "s")
	waitMembers(t, hub, notifications.RoleRoom(rbac.RoleStoreManager), 1)
	waitMembers(t, hub, notifications.UserRoom(supervisor.UserID), 1)

	require.NoError(t, hub.Publish(context.Background(), notifications.Event{
		Room: notifications.RoleRoom(rbac.RoleStoreManager),
		Name: notifications.EventNotification,
		Data: map[string]string{"message": "PI approved"},
	}))
	require.NoError(t, hub.Publish(context.Background(), notifications.Event{
		Room: notifications.UserRoom(supervisor.UserID),
		Name: notifications.EventNotification,
		Data: map[string]string{"message": "MRS issued"},
	}))

	evt := readEvent(t, mConn)
	require.Equal(t, "role:STORE_MANAGER", evt["room"])
	evt = readEvent(t, sConn)
	require.Equal(t, "MRS issued", evt["data"].(map[string]any)["message"])

	require.NoError(t, mConn.Close())
	waitMembers(t, hub, notifications.RoleRoom(rbac.RoleStoreManager), 0)
}

func TestRedisBridgeForwardsToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	admin := rbac.Principal{UserID: uuid.New(), Role: rbac.RoleAdmin}
	hub := NewHub(nil)
	srv := httptest.NewServer(NewHandler(hub, staticTokens{"a": admin}, nil, nil))
	defer srv.Close()
	conn := dial(t, srv, "a")
	waitMembers(t, hub, notifications.RoleRoom(rbac.RoleAdmin), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge := NewRedisBridge(client, nil)
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx, hub) }()
	require.Eventually(t, func() bool {
		return client.PubSubNumSub(ctx, Channel).Val()[Channel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bridge.Publish(ctx, notifications.Event{
		Room: notifications.RoleRoom(rbac.RoleAdmin),
		Name: notifications.EventNotification,
		Data: map[string]string{"message": "New PI raised"},
	}))
	evt := readEvent(t, conn)
	require.Equal(t, "notification", evt["event"])

	cancel()
	require.NoError(t, <-done)
}
