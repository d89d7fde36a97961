package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/rbac"
)

// RepositoryPort abstracts notification storage.
type RepositoryPort interface {
	Insert(ctx context.Context, items []Notification) error
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UserIDsByRole(ctx context.Context, role rbac.Role) ([]uuid.UUID, error)
}

// Service stores notifications and pushes them to realtime rooms.
type Service struct {
	repo      RepositoryPort
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service. publisher may be nil when no realtime
// channel is configured.
func NewService(repo RepositoryPort, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

func (s *Service) build(recipient uuid.UUID, msg Message) Notification {
	typ := msg.Type
	if typ == "" {
		typ = TypeInfo
	}
	return Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		Message:     msg.Text,
		Type:        typ,
		Link:        msg.Link,
		CreatedAt:   s.now().UTC(),
	}
}

// NotifyUser stores a notification for one user and pushes it to their room.
func (s *Service) NotifyUser(ctx context.Context, userID uuid.UUID, msg Message) error {
	n := s.build(userID, msg)
	if err := s.repo.Insert(ctx, []Notification{n}); err != nil {
		return fmt.Errorf("notifications: store: %w", err)
	}
	s.publish(ctx, UserRoom(userID), n)
	return nil
}

// NotifyRole stores a notification for every holder of role and pushes a
// single event to the role room.
func (s *Service) NotifyRole(ctx context.Context, role rbac.Role, msg Message) error {
	ids, err := s.repo.UserIDsByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("notifications: recipients: %w", err)
	}
	items := make([]Notification, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.build(id, msg))
	}
	if err := s.repo.Insert(ctx, items); err != nil {
		return fmt.Errorf("notifications: store: %w", err)
	}
	event := s.build(uuid.Nil, msg)
	s.publish(ctx, RoleRoom(role), event)
	return nil
}

// BroadcastRole pushes a live event to the role room without storing it.
func (s *Service) BroadcastRole(ctx context.Context, role rbac.Role, msg Message) {
	s.publish(ctx, RoleRoom(role), s.build(uuid.Nil, msg))
}

func (s *Service) publish(ctx context.Context, room string, n Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, Event{Room: room, Name: EventNotification, Data: n}); err != nil {
		s.logger.Warn("publish notification", slog.String("room", room), slog.Any("error", err))
	}
}

// Inbox returns the newest notifications and the unread count.
func (s *Service) Inbox(ctx context.Context, userID uuid.UUID) (Inbox, error) {
	items, err := s.repo.ListRecent(ctx, userID, InboxSize)
	if err != nil {
		return Inbox{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return Inbox{}, err
	}
	if items == nil {
		items = []Notification{}
	}
	return Inbox{Notifications: items, UnreadCount: unread}, nil
}

// MarkRead marks one of the caller's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead marks all of the caller's notifications read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
