package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/shared"
	"github.com/tintworks/dyeops/internal/suppliers"
)

// DocumentPI names indents in transition events.
const DocumentPI = "PI"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Indent, error)
	List(ctx context.Context, filter ListFilter) ([]Indent, error)
	Materials(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Material, error)
}

// Notifier delivers workflow notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, msg notifications.Message) error
	NotifyRole(ctx context.Context, role rbac.Role, msg notifications.Message) error
	BroadcastRole(ctx context.Context, role rbac.Role, msg notifications.Message)
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

// Service orchestrates procurement flows.
type Service struct {
	repo RepositoryPort
	deps Deps
	now  func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{repo: repo, deps: deps, now: time.Now}
}

// CreateInput describes a request to raise indents.
type CreateInput struct {
	StoreManagerID uuid.UUID
	Reason         string
	Remarks        string
	Items          []ItemInput
}

// ItemInput orders a quantity of one material.
type ItemInput struct {
	MaterialID uuid.UUID
	Quantity   float64
	UnitPrice  *decimal.Decimal
}

// Create raises one RAISED indent per supplier. All indents are stored in
// one transaction; a material without a supplier fails the whole call.
func (s *Service) Create(ctx context.Context, input CreateInput) ([]Indent, error) {
	if len(input.Items) == 0 {
		return nil, validationf("No items requested")
	}
	ids := make([]uuid.UUID, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, it := range input.Items {
		if it.MaterialID == uuid.Nil {
			return nil, validationf("material is required")
		}
		if it.Quantity <= 0 {
			return nil, validationf("quantity must be positive")
		}
		if it.UnitPrice != nil && it.UnitPrice.IsNegative() {
			return nil, validationf("unit price must not be negative")
		}
		if _, dup := seen[it.MaterialID]; dup {
			return nil, validationf("material %s listed twice", it.MaterialID)
		}
		seen[it.MaterialID] = struct{}{}
		ids = append(ids, it.MaterialID)
	}
	materials, err := s.repo.Materials(ctx, ids)
	if err != nil {
		return nil, err
	}
	groups, err := Partition(input.Items, materials)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	base := generateNumber("PI")
	indents := make([]Indent, 0, len(groups))
	for i, g := range groups {
		number := base
		if len(groups) > 1 {
			number = fmt.Sprintf("%s-%d", base, i+1)
		}
		indents = append(indents, Indent{
			ID:             uuid.New(),
			Number:         number,
			StoreManagerID: input.StoreManagerID,
			SupplierID:     g.SupplierID,
			Status:         StatusRaised,
			Reason:         strings.TrimSpace(input.Reason),
			Remarks:        strings.TrimSpace(input.Remarks),
			Items:          g.Items,
			CreatedAt:      now,
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, in := range indents {
			if err := tx.Insert(ctx, in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	numbers := make([]string, len(indents))
	for i, in := range indents {
		numbers[i] = in.Number
		s.transitioned(ctx, in.Status)
		s.recordAudit(ctx, input.StoreManagerID, "PI_CREATE", in.ID, map[string]any{
			"number": in.Number, "supplierId": in.SupplierID.String(), "items": len(in.Items),
		})
	}
	if s.deps.Notifier != nil {
		msg := notifications.Message{
			Text: fmt.Sprintf("New purchase indent raised: %s", strings.Join(numbers, ", ")),
			Type: notifications.TypeInfo,
			Link: "/pi",
		}
		if err := s.deps.Notifier.NotifyRole(ctx, rbac.RoleAdmin, msg); err != nil {
			s.deps.Logger.Warn("pi create notification", slog.Any("error", err))
		}
	}
	return indents, nil
}

// List returns indents, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Indent, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("unknown status %q", filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Get loads one indent.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Indent, error) {
	return s.repo.Get(ctx, id)
}

// SetStatusInput records an admin decision.
type SetStatusInput struct {
	IndentID uuid.UUID
	AdminID  uuid.UUID
	Status   Status
	Reason   string
	Remarks  string
}

// SetStatus approves or rejects a RAISED indent.
func (s *Service) SetStatus(ctx context.Context, input SetStatusInput) (Indent, error) {
	if !input.Status.Decision() {
		return Indent{}, validationf("Invalid status")
	}
	var updated Indent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		in, err := tx.GetForUpdate(ctx, input.IndentID)
		if err != nil {
			return err
		}
		if in.Status != StatusRaised {
			return ErrAlreadyProcessed
		}
		now := s.now().UTC()
		admin := input.AdminID
		in.Status = input.Status
		in.AdminID = &admin
		if input.Status == StatusApproved {
			in.ApprovedAt = &now
		}
		if r := strings.TrimSpace(input.Reason); r != "" {
			in.Reason = r
		}
		if r := strings.TrimSpace(input.Remarks); r != "" {
			in.Remarks = r
		}
		if err := tx.Update(ctx, in); err != nil {
			return err
		}
		updated = in
		return nil
	})
	if err != nil {
		return Indent{}, err
	}
	s.transitioned(ctx, updated.Status)
	s.recordAudit(ctx, input.AdminID, "PI_"+string(updated.Status), updated.ID, map[string]any{
		"number": updated.Number, "reason": updated.Reason,
	})
	if s.deps.Notifier != nil {
		typ := notifications.TypeSuccess
		if updated.Status == StatusRejected {
			typ = notifications.TypeError
		}
		msg := notifications.Message{
			Text: fmt.Sprintf("Purchase indent %s was %s", updated.Number, strings.ToLower(string(updated.Status))),
			Type: typ,
			Link: "/pi",
		}
		if err := s.deps.Notifier.NotifyUser(ctx, updated.StoreManagerID, msg); err != nil {
			s.deps.Logger.Warn("pi status notification", slog.Any("error", err))
		}
		s.deps.Notifier.BroadcastRole(ctx, rbac.RoleStoreManager, msg)
	}
	return updated, nil
}

// InwardInput records receipt of an approved indent.
type InwardInput struct {
	IndentID       uuid.UUID
	ActorID        uuid.UUID
	Rating         *int
	IdempotencyKey string
}

// InwardResult is the completed indent, the stock it credited and the
// supplier rating after the receipt.
type InwardResult struct {
	Indent      Indent                  `json:"pi"`
	Changes     []inventory.StockChange `json:"changes"`
	Rating      *float64                `json:"supplierRating,omitempty"`
	RatingCount *int                    `json:"supplierRatingCount,omitempty"`
}

const inwardModule = "procurement.inward"

// ProcessInward credits every line of an APPROVED indent as INWARD stock,
// optionally rates the supplier and completes the indent, all in one
// transaction. The idempotency key is claimed in that transaction too, so a
// failed or cancelled attempt leaves the indent open for a retry.
func (s *Service) ProcessInward(ctx context.Context, input InwardInput) (InwardResult, error) {
	if input.Rating != nil && !suppliers.ValidRating(*input.Rating) {
		return InwardResult{}, validationf("rating must be between %d and %d", suppliers.MinRating, suppliers.MaxRating)
	}
	key := input.IdempotencyKey
	if key == "" {
		key = "PI:" + input.IndentID.String()
	}

	var result InwardResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimIdempotency(ctx, key, inwardModule); err != nil {
			return err
		}
		in, err := tx.GetForUpdate(ctx, input.IndentID)
		if err != nil {
			return err
		}
		if in.Status != StatusApproved {
			return ErrNotApproved
		}
		now := s.now().UTC()
		indentID := in.ID
		movements := make([]inventory.Movement, 0, len(in.Items))
		for _, it := range in.Items {
			movements = append(movements, inventory.Movement{
				MaterialID:  it.MaterialID,
				Delta:       it.Quantity,
				Type:        inventory.TransactionInward,
				RelatedID:   &indentID,
				RelatedKind: inventory.RelatedPI,
				UnitCost:    it.UnitPrice,
				Note:        "Inward " + in.Number,
				ActorID:     input.ActorID,
				At:          now,
			})
		}
		changes, err := inventory.PostAll(ctx, tx.Ledger(), movements)
		if err != nil {
			return err
		}
		if input.Rating != nil {
			mean, count, err := tx.RateSupplier(ctx, in.SupplierID, *input.Rating)
			if err != nil {
				return err
			}
			result.Rating, result.RatingCount = &mean, &count
			score := *input.Rating
			in.Rating = &score
		}
		in.Status = StatusCompleted
		in.CompletedAt = &now
		if err := tx.Update(ctx, in); err != nil {
			return err
		}
		result.Indent = in
		result.Changes = changes
		return nil
	})
	if err != nil {
		return InwardResult{}, err
	}
	if s.deps.Stock != nil {
		s.deps.Stock.StockChanged(ctx, result.Changes)
	}
	s.transitioned(ctx, result.Indent.Status)
	details := map[string]any{"number": result.Indent.Number, "items": len(result.Changes)}
	if input.Rating != nil {
		details["rating"] = *input.Rating
	}
	s.recordAudit(ctx, input.ActorID, "PI_INWARD", result.Indent.ID, details)
	return result, nil
}

func (s *Service) transitioned(ctx context.Context, status Status) {
	if s.deps.Transitions != nil {
		s.deps.Transitions.Transitioned(ctx, DocumentPI, string(status))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, details map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:   &actorID,
		Action:    action,
		Entity:    "pi",
		EntityID:  entityID.String(),
		Details:   details,
		IPAddress: shared.ClientIPFromContext(ctx),
		At:        s.now(),
	})
	if err != nil {
		s.deps.Logger.Warn("pi audit", slog.String("action", action), slog.Any("error", err))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
