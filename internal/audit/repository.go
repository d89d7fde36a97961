package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List runs q against audit_logs joined to users.
func (r *Repository) List(ctx context.Context, q Query) ([]Entry, error) {
	sql, args := listSQL(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var (
			e   Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.UserID, &e.Username, &e.Role, &raw, &e.IPAddress, &e.At); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("audit %d details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// listSQL builds the filtered page query. Actions match case-insensitively,
// so "put /api/mrs/{id}/issue" finds what the middleware stored.
func listSQL(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Action != "" {
		add("lower(a.action) = lower($%d)", q.Action)
	}
	if q.UserID != nil {
		add("a.user_id = $%d", *q.UserID)
	}
	if !q.From.IsZero() {
		add("a.occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("a.occurred_at < $%d", q.To)
	}
	sql := `SELECT a.id, a.action, a.user_id, COALESCE(u.username, ''), COALESCE(u.role, ''), a.details, a.ip_address, a.occurred_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.user_id`
	if len(where) > 0 {
		sql += "\nWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	sql += fmt.Sprintf("\nORDER BY a.occurred_at DESC, a.id DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return sql, args
}
