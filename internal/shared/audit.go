package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID   *uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	Details   map[string]any
	IPAddress string
	At        time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. Entity references are folded into details.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" {
		return errors.New("audit log requires action")
	}
	details := make(map[string]any, len(log.Details)+2)
	for k, v := range log.Details {
		details[k] = v
	}
	if log.Entity != "" {
		details["entity"] = log.Entity
	}
	if log.EntityID != "" {
		details["entityId"] = log.EntityID
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (action, user_id, details, ip_address, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		log.Action, log.ActorID, detailsJSON, log.IPAddress, at)
	return err
}
