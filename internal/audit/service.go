package audit

import (
	"context"
	"fmt"
	"strings"
)

// Lister is the storage query behind Service.
type Lister interface {
	List(ctx context.Context, q Query) ([]Entry, error)
}

// Service pages through the audit trail.
type Service struct {
	repo Lister
}

// NewService builds an audit service.
func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

// List returns one page of entries, newest first.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.List(ctx, Query{
		Action: strings.TrimSpace(filters.Action),
		UserID: filters.UserID,
		From:   filters.From,
		To:     filters.To,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{Entries: rows, Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}}, nil
}
