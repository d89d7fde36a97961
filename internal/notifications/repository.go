package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tintworks/dyeops/internal/rbac"
)

// Repository persists notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores notifications in one batch.
func (r *Repository) Insert(ctx context.Context, items []Notification) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range items {
		batch.Queue(`INSERT INTO notifications (id, recipient_id, message, type, read, link, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			n.ID, n.RecipientID, n.Message, string(n.Type), n.Read, n.Link, n.CreatedAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// ListRecent returns a user's newest notifications.
func (r *Repository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, recipient_id, message, type, read, link, created_at
FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Notification{}
	for rows.Next() {
		var n Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Message, &typ, &n.Read, &n.Link, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnread counts a user's unread notifications.
func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, userID).Scan(&n)
	return n, err
}

// MarkRead flags one of the user's notifications as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UserIDsByRole lists the accounts holding role.
func (r *Repository) UserIDsByRole(ctx context.Context, role rbac.Role) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE role = $1`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
