package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, LedgerStore) error) error
	ListMaterials(ctx context.Context) ([]Material, error)
	ListLowStock(ctx context.Context) ([]Material, error)
	GetMaterial(ctx context.Context, id uuid.UUID) (Material, error)
	ListTransactions(ctx context.Context, materialID uuid.UUID) ([]Transaction, error)
	LastInward(ctx context.Context, materialID uuid.UUID) (*InwardRecord, error)
	Consumption(ctx context.Context, since time.Time) (map[uuid.UUID]Consumption, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory reads and direct ledger adjustments.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	observer Observer
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, observer Observer) *Service {
	return &Service{repo: repo, audit: audit, observer: observer, now: time.Now}
}

// ListMaterials returns all materials sorted by name.
func (s *Service) ListMaterials(ctx context.Context) ([]Material, error) {
	return s.repo.ListMaterials(ctx)
}

// ListLowStock returns materials at or below their minimum stock.
func (s *Service) ListLowStock(ctx context.Context) ([]Material, error) {
	return s.repo.ListLowStock(ctx)
}

// GetMaterial loads one material.
func (s *Service) GetMaterial(ctx context.Context, id uuid.UUID) (Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

// History returns a material with its transactions, newest first.
func (s *Service) History(ctx context.Context, materialID uuid.UUID) (MaterialHistory, error) {
	material, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		return MaterialHistory{}, err
	}
	txns, err := s.repo.ListTransactions(ctx, materialID)
	if err != nil {
		return MaterialHistory{}, err
	}
	if txns == nil {
		txns = []Transaction{}
	}
	return MaterialHistory{Material: material, Transactions: txns}, nil
}

// ProcurementContext reports the last goods receipt for a material.
func (s *Service) ProcurementContext(ctx context.Context, materialID uuid.UUID) (ProcurementContext, error) {
	material, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		return ProcurementContext{}, err
	}
	last, err := s.repo.LastInward(ctx, materialID)
	if err != nil {
		return ProcurementContext{}, err
	}
	out := ProcurementContext{Material: material, LastInward: last}
	if last == nil {
		out.Status = NeverOrdered
		out.ContextNote = fmt.Sprintf("%s has never been received. Confirm the supplier and lead time before raising an indent.", material.Name)
		return out, nil
	}
	out.Status = OrderedBefore
	days := int(s.now().Sub(last.Date).Hours() / 24)
	supplier := last.SupplierName
	if supplier == "" {
		supplier = "an unknown supplier"
	}
	out.ContextNote = fmt.Sprintf("Last received %g %s from %s %d days ago (%s).",
		last.Quantity, material.Unit, supplier, days, last.PIRef)
	return out, nil
}

// ABC classifies materials by trailing consumption value.
func (s *Service) ABC(ctx context.Context) ([]ABCEntry, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.repo.Consumption(ctx, s.now().Add(-ABCWindow))
	if err != nil {
		return nil, err
	}
	return ClassifyABC(materials, usage), nil
}

// ApplyDelta posts a single movement in its own transaction.
func (s *Service) ApplyDelta(ctx context.Context, mv Movement) (StockChange, error) {
	if mv.At.IsZero() {
		mv.At = s.now().UTC()
	}
	var change StockChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, store LedgerStore) error {
		var err error
		change, err = Post(ctx, store, mv)
		return err
	})
	if err != nil {
		return StockChange{}, err
	}
	if s.observer != nil {
		s.observer.StockChanged(ctx, []StockChange{change})
	}
	s.recordAudit(ctx, mv.ActorID, "STOCK_"+string(mv.Type), change)
	return change, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, change StockChange) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  &actorID,
		Action:   action,
		Entity:   "material",
		EntityID: change.Material.ID.String(),
		Details: map[string]any{
			"transactionId": change.Transaction.ID.String(),
			"delta":         change.Transaction.Quantity,
			"before":        change.Before,
			"after":         change.Material.Quantity,
			"note":          change.Transaction.Note,
		},
		IPAddress: shared.ClientIPFromContext(ctx),
		At:        s.now(),
	})
}
