// Package audit lists and records the append-only audit trail.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one audit record with its actor resolved.
type Entry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	UserID    *uuid.UUID     `json:"userId,omitempty"`
	Username  string         `json:"username,omitempty"`
	Role      string         `json:"role,omitempty"`
	Details   map[string]any `json:"details"`
	IPAddress string         `json:"ipAddress"`
	At        time.Time      `json:"timestamp"`
}

// Filters narrows the listing. Zero values match everything.
type Filters struct {
	Action   string
	UserID   *uuid.UUID
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo describes the page returned.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

// Result is a page of entries, newest first.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}

// DefaultPageSize is both the default and the cap on entries per page.
const DefaultPageSize = 100

// Query is a normalised Filters ready for the repository.
type Query struct {
	Action string
	UserID *uuid.UUID
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}
