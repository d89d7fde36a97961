// Package notifications stores per-user notifications and fans them out to
// connected clients through a Publisher.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// Type is the severity shown by the client.
type Type string

const (
	TypeInfo    Type = "INFO"
	TypeSuccess Type = "SUCCESS"
	TypeWarning Type = "WARNING"
	TypeError   Type = "ERROR"
)

// Message is the content of a notification before it is addressed.
type Message struct {
	Text string
	Type Type
	Link string
}

// Notification is one stored, addressed message.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient"`
	Message     string    `json:"message"`
	Type        Type      `json:"type"`
	Read        bool      `json:"read"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Inbox is the recent notifications for a user plus the unread total.
type Inbox struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

// InboxSize caps how many notifications a listing returns.
const InboxSize = 20

// EventNotification is the event name pushed to realtime clients.
const EventNotification = "notification"

// Event is a realtime push addressed to a room.
type Event struct {
	Room string `json:"room"`
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Publisher pushes events to connected clients.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// RoleRoom is the room every client of role joins.
func RoleRoom(role rbac.Role) string {
	return "role:" + string(role)
}

// UserRoom is the private room of one user.
func UserRoom(id uuid.UUID) string {
	return "user:" + id.String()
}

// ErrNotFound indicates a notification that does not exist for the caller.
var ErrNotFound = fmt.Errorf("notifications: not found: %w", httpx.ErrNotFound)
