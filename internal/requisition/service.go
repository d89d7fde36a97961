package requisition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/shared"
)

// DocumentMRS names requisitions in transition events.
const DocumentMRS = "MRS"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Requisition, error)
	ListBySupervisor(ctx context.Context, supervisorID uuid.UUID) ([]Requisition, error)
	ListOpen(ctx context.Context) ([]Requisition, error)
	Materials(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Material, error)
}

// Notifier delivers workflow notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, msg notifications.Message) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Deps groups the optional collaborators of Service.
type Deps struct {
	Notifier    Notifier
	Audit       AuditPort
	Stock       inventory.Observer
	Transitions shared.TransitionObserver
	Logger      *slog.Logger
}

// Service orchestrates the requisition workflow.
type Service struct {
	repo RepositoryPort
	deps Deps
	now  func() time.Time
}

// NewService constructs the requisition service.
func NewService(repo RepositoryPort, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{repo: repo, deps: deps, now: time.Now}
}

// CreateInput describes a new MRS.
type CreateInput struct {
	BatchID      string
	SupervisorID uuid.UUID
	Remarks      string
	Items        []ItemInput
}

// ItemInput requests a quantity of one material.
type ItemInput struct {
	MaterialID uuid.UUID
	Quantity   float64
}

// Create validates and stores a PENDING requisition. The stock check is
// advisory; issuing re-checks under lock.
func (s *Service) Create(ctx context.Context, input CreateInput) (Requisition, error) {
	batch := strings.TrimSpace(input.BatchID)
	if batch == "" {
		return Requisition{}, validationf("batch id is required")
	}
	if len(input.Items) == 0 {
		return Requisition{}, validationf("No items requested")
	}
	ids := make([]uuid.UUID, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, it := range input.Items {
		if it.MaterialID == uuid.Nil {
			return Requisition{}, validationf("material is required")
		}
		if it.Quantity <= 0 {
			return Requisition{}, validationf("requested quantity must be positive")
		}
		if _, dup := seen[it.MaterialID]; dup {
			return Requisition{}, validationf("material %s requested twice", it.MaterialID)
		}
		seen[it.MaterialID] = struct{}{}
		ids = append(ids, it.MaterialID)
	}
	materials, err := s.repo.Materials(ctx, ids)
	if err != nil {
		return Requisition{}, err
	}
	now := s.now().UTC()
	req := Requisition{
		ID:           uuid.New(),
		BatchID:      batch,
		SupervisorID: input.SupervisorID,
		Status:       StatusPending,
		Remarks:      strings.TrimSpace(input.Remarks),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, it := range input.Items {
		m, ok := materials[it.MaterialID]
		if !ok {
			return Requisition{}, validationf("material %s not found", it.MaterialID)
		}
		if it.Quantity > m.Quantity {
			return Requisition{}, &inventory.InsufficientStockError{
				MaterialID: m.ID, Name: m.Name, Unit: m.Unit, Available: m.Quantity, Requested: it.Quantity,
			}
		}
		req.Items = append(req.Items, Item{
			LineNo:            i + 1,
			MaterialID:        it.MaterialID,
			MaterialName:      m.Name,
			Unit:              m.Unit,
			QuantityRequested: it.Quantity,
		})
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, req)
	}); err != nil {
		return Requisition{}, err
	}
	s.transitioned(ctx, req.Status)
	s.recordAudit(ctx, input.SupervisorID, "MRS_CREATE", req.ID, map[string]any{"batchId": req.BatchID, "items": len(req.Items)})
	return req, nil
}

// IssueInput names quantities to issue per material.
type IssueInput struct {
	RequisitionID uuid.UUID
	ActorID       uuid.UUID
	Lines         []IssueLine
}

// IssueLine issues a quantity of one material.
type IssueLine struct {
	MaterialID uuid.UUID
	Quantity   float64
}

// IssueResult is the updated requisition and the stock it consumed.
type IssueResult struct {
	Requisition Requisition             `json:"requisition"`
	Changes     []inventory.StockChange `json:"changes"`
}

// Issue debits stock for each line and advances the requisition status. All
// lines commit together: if any material lacks stock nothing is applied.
func (s *Service) Issue(ctx context.Context, input IssueInput) (IssueResult, error) {
	lines := make([]IssueLine, 0, len(input.Lines))
	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for _, l := range input.Lines {
		if l.Quantity < 0 {
			return IssueResult{}, validationf("issue quantity must not be negative")
		}
		if l.Quantity == 0 {
			continue
		}
		if _, dup := seen[l.MaterialID]; dup {
			return IssueResult{}, validationf("material %s listed twice", l.MaterialID)
		}
		seen[l.MaterialID] = struct{}{}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return IssueResult{}, validationf("no quantities to issue")
	}

	var result IssueResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, input.RequisitionID)
		if err != nil {
			return err
		}
		switch req.Status {
		case StatusIssued:
			return ErrAlreadyIssued
		case StatusRejected:
			return fmt.Errorf("MRS was rejected: %w", ErrInvalidState)
		}
		movements := make([]inventory.Movement, 0, len(lines))
		now := s.now().UTC()
		for _, l := range lines {
			item, ok := req.Item(l.MaterialID)
			if !ok {
				return validationf("material %s is not on this MRS", l.MaterialID)
			}
			if l.Quantity > item.Outstanding()+issueEpsilon {
				return validationf("cannot issue %g %s of %s: only %g outstanding",
					l.Quantity, item.Unit, item.MaterialName, item.Outstanding())
			}
			item.QuantityIssued = min(item.QuantityIssued+l.Quantity, item.QuantityRequested)
			reqID := req.ID
			movements = append(movements, inventory.Movement{
				MaterialID:  l.MaterialID,
				Delta:       -l.Quantity,
				Type:        inventory.TransactionIssue,
				RelatedID:   &reqID,
				RelatedKind: inventory.RelatedMRS,
				Note:        "Batch " + req.BatchID,
				ActorID:     input.ActorID,
				At:          now,
			})
		}
		changes, err := inventory.PostAll(ctx, tx.Ledger(), movements)
		if err != nil {
			return err
		}
		req.Status = DeriveStatus(req.Items)
		req.UpdatedAt = now
		if req.Status == StatusIssued {
			req.IssuedAt = &now
		}
		if err := tx.SaveProgress(ctx, req); err != nil {
			return err
		}
		result = IssueResult{Requisition: req, Changes: changes}
		return nil
	})
	if err != nil {
		return IssueResult{}, err
	}

	req := result.Requisition
	if s.deps.Stock != nil {
		s.deps.Stock.StockChanged(ctx, result.Changes)
	}
	s.transitioned(ctx, req.Status)
	s.notify(ctx, req.SupervisorID, notifications.Message{
		Text: fmt.Sprintf("Materials issued for batch %s (%s)", req.BatchID, req.Status),
		Type: notifications.TypeSuccess,
		Link: "/mrs",
	})
	s.recordAudit(ctx, input.ActorID, "MRS_ISSUE", req.ID, map[string]any{"status": string(req.Status), "lines": len(lines)})
	return result, nil
}

// Reject closes a PENDING requisition without issuing anything.
func (s *Service) Reject(ctx context.Context, id, actorID uuid.UUID, reason string) (Requisition, error) {
	var req Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("only PENDING MRS can be rejected, status is %s: %w", req.Status, ErrInvalidState)
		}
		req.Status = StatusRejected
		req.UpdatedAt = s.now().UTC()
		if r := strings.TrimSpace(reason); r != "" {
			req.Remarks = r
		}
		return tx.SaveProgress(ctx, req)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.transitioned(ctx, req.Status)
	s.notify(ctx, req.SupervisorID, notifications.Message{
		Text: fmt.Sprintf("MRS for batch %s was rejected", req.BatchID),
		Type: notifications.TypeError,
		Link: "/mrs",
	})
	s.recordAudit(ctx, actorID, "MRS_REJECT", req.ID, map[string]any{"reason": req.Remarks})
	return req, nil
}

// ListMine returns the supervisor's requisitions, newest first.
func (s *Service) ListMine(ctx context.Context, supervisorID uuid.UUID) ([]Requisition, error) {
	return s.repo.ListBySupervisor(ctx, supervisorID)
}

// ListPending returns requisitions awaiting stock, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Requisition, error) {
	return s.repo.ListOpen(ctx)
}

// Get loads one requisition.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.repo.Get(ctx, id)
}

// ReturnInput credits unused material back to stock.
type ReturnInput struct {
	Actor          rbac.Principal
	RequisitionID  *uuid.UUID
	Reason         string
	Items          []ItemInput
	IdempotencyKey string
}

const idempotencyModule = "requisition.return"

// ReturnStock posts ADJUSTMENT credits. When linked to an MRS the returned
// total per material cannot exceed what that MRS issued.
func (s *Service) ReturnStock(ctx context.Context, input ReturnInput) ([]inventory.StockChange, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, validationf("a reason is required for returns")
	}
	if len(input.Items) == 0 {
		return nil, validationf("no items to return")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, it := range input.Items {
		if it.MaterialID == uuid.Nil {
			return nil, validationf("material is required")
		}
		if it.Quantity <= 0 {
			return nil, validationf("Quantity must be greater than 0")
		}
		if _, dup := seen[it.MaterialID]; dup {
			return nil, validationf("material %s listed twice", it.MaterialID)
		}
		seen[it.MaterialID] = struct{}{}
	}

	var changes []inventory.StockChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.IdempotencyKey != "" {
			if err := tx.ClaimIdempotency(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
				return err
			}
		}
		var relatedID *uuid.UUID
		relatedKind := inventory.RelatedNone
		note := "Return: " + reason
		if input.RequisitionID != nil {
			req, err := tx.GetForUpdate(ctx, *input.RequisitionID)
			if err != nil {
				return err
			}
			if input.Actor.Role == rbac.RoleSupervisor && req.SupervisorID != input.Actor.UserID {
				return ErrNotOwner
			}
			for _, it := range input.Items {
				item, ok := req.Item(it.MaterialID)
				if !ok {
					return validationf("material %s is not on this MRS", it.MaterialID)
				}
				returned, err := tx.ReturnedQuantity(ctx, req.ID, it.MaterialID)
				if err != nil {
					return err
				}
				if returned+it.Quantity > item.QuantityIssued+issueEpsilon {
					return validationf("cannot return %g %s of %s: only %g issued and %g already returned",
						it.Quantity, item.Unit, item.MaterialName, item.QuantityIssued, returned)
				}
			}
			id := req.ID
			relatedID = &id
			relatedKind = inventory.RelatedMRS
			note = fmt.Sprintf("Return from batch %s: %s", req.BatchID, reason)
		}
		now := s.now().UTC()
		movements := make([]inventory.Movement, 0, len(input.Items))
		for _, it := range input.Items {
			movements = append(movements, inventory.Movement{
				MaterialID:  it.MaterialID,
				Delta:       it.Quantity,
				Type:        inventory.TransactionAdjustment,
				RelatedID:   relatedID,
				RelatedKind: relatedKind,
				Note:        note,
				ActorID:     input.Actor.UserID,
				At:          now,
			})
		}
		var err error
		changes, err = inventory.PostAll(ctx, tx.Ledger(), movements)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.deps.Stock != nil {
		s.deps.Stock.StockChanged(ctx, changes)
	}
	details := map[string]any{"reason": reason, "items": len(changes)}
	entityID := uuid.Nil
	if input.RequisitionID != nil {
		entityID = *input.RequisitionID
	}
	s.recordAudit(ctx, input.Actor.UserID, "STOCK_RETURN", entityID, details)
	return changes, nil
}

func (s *Service) transitioned(ctx context.Context, status Status) {
	if s.deps.Transitions != nil {
		s.deps.Transitions.Transitioned(ctx, DocumentMRS, string(status))
	}
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, msg notifications.Message) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.NotifyUser(ctx, userID, msg); err != nil {
		s.deps.Logger.Warn("mrs notification", slog.String("user_id", userID.String()), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, details map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:   &actorID,
		Action:    action,
		Entity:    "mrs",
		Details:   details,
		IPAddress: shared.ClientIPFromContext(ctx),
		At:        s.now(),
	}
	if entityID != uuid.Nil {
		log.EntityID = entityID.String()
	}
	if err := s.deps.Audit.Record(ctx, log); err != nil {
		s.deps.Logger.Warn("mrs audit", slog.String("action", action), slog.Any("error", err))
	}
}
