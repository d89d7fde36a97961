package suppliers

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort abstracts supplier storage.
type RepositoryPort interface {
	List(ctx context.Context) ([]Supplier, error)
	Get(ctx context.Context, id uuid.UUID) (Supplier, error)
	Deliveries(ctx context.Context, supplierID uuid.UUID) ([]DeliveryRecord, error)
}

// Service answers supplier queries.
type Service struct {
	repo RepositoryPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all suppliers.
func (s *Service) List(ctx context.Context) ([]Supplier, error) {
	return s.repo.List(ctx)
}

// Analytics reports delivery performance for one supplier with its most
// recent completed indents.
func (s *Service) Analytics(ctx context.Context, id uuid.UUID) (Analytics, error) {
	supplier, err := s.repo.Get(ctx, id)
	if err != nil {
		return Analytics{}, err
	}
	deliveries, err := s.repo.Deliveries(ctx, id)
	if err != nil {
		return Analytics{}, err
	}
	metrics, annotated := Summarise(deliveries)
	if len(annotated) > HistorySize {
		annotated = annotated[:HistorySize]
	}
	return Analytics{Supplier: supplier, Metrics: metrics, History: annotated}, nil
}
