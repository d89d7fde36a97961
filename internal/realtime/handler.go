package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tintworks/dyeops/internal/auth"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Authenticator resolves a bearer token to the principal of a live account.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (rbac.Principal, error)
}

// Handler upgrades authenticated requests to websocket connections. Rooms
// come from the token, never from the client.
type Handler struct {
	hub      *Hub
	tokens   Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs Handler. allowOrigin decides cross-origin upgrades;
// nil accepts every origin.
func NewHandler(hub *Hub, tokens Authenticator, logger *slog.Logger, allowOrigin func(*http.Request) bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:    hub,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
	}
}

// ServeHTTP authenticates, joins the principal's rooms and pumps events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw = auth.BearerToken(r)
	}
	principal, err := h.tokens.Authenticate(r.Context(), raw)
	if errors.Is(err, httpx.ErrUnauthorized) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or missing token")
		return
	}
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", slog.Any("error", err))
		return
	}
	c := h.hub.join(notifications.RoleRoom(principal.Role), notifications.UserRoom(principal.UserID))
	h.logger.Debug("websocket connected",
		slog.String("user_id", principal.UserID.String()),
		slog.String("role", principal.Role.String()))

	go h.readPump(conn, c)
	h.writePump(conn, c)
}

// readPump drains client frames so control messages are processed and
// removes the client once the connection drops.
func (h *Handler) readPump(conn *websocket.Conn, c *client) {
	defer h.hub.leave(c)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
