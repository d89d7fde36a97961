package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// Category groups materials by chemistry.
type Category string

const (
	CategoryDye      Category = "DYE"
	CategoryChemical Category = "CHEMICAL"
)

// Material is a stocked dye or chemical.
type Material struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Code         string          `json:"code,omitempty"`
	Category     Category        `json:"category"`
	Unit         string          `json:"unit"`
	Quantity     float64         `json:"quantity"`
	MinStock     float64         `json:"minStock"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	SupplierID   *uuid.UUID      `json:"supplierId,omitempty"`
	SupplierName string          `json:"supplierName,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsLowStock reports whether quantity is at or below the minimum threshold.
func (m Material) IsLowStock() bool {
	return m.Quantity <= m.MinStock
}

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionIssue debits stock against a requisition.
	TransactionIssue TransactionType = "ISSUE"
	// TransactionInward credits stock on goods receipt.
	TransactionInward TransactionType = "INWARD"
	// TransactionAdjustment covers returns and manual corrections.
	TransactionAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionIssue, TransactionInward, TransactionAdjustment:
		return true
	}
	return false
}

// RelatedKind names the workflow document a transaction originates from.
type RelatedKind string

const (
	RelatedNone RelatedKind = ""
	RelatedMRS  RelatedKind = "MRS"
	RelatedPI   RelatedKind = "PI"
)

// Transaction is an immutable, signed stock change.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	Type            TransactionType `json:"type"`
	MaterialID      uuid.UUID       `json:"materialId"`
	Quantity        float64         `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	RelatedID       *uuid.UUID      `json:"relatedId,omitempty"`
	RelatedKind     RelatedKind     `json:"relatedType,omitempty"`
	Note            string          `json:"note,omitempty"`
	PerformedBy     uuid.UUID       `json:"performedBy"`
	PerformedByName string          `json:"performedByName,omitempty"`
	OccurredAt      time.Time       `json:"timestamp"`
}

// Value returns the absolute monetary value of the movement.
func (t Transaction) Value() decimal.Decimal {
	return decimal.NewFromFloat(t.Quantity).Abs().Mul(t.UnitCost)
}

// MaterialHistory bundles a material with its transactions, newest first.
type MaterialHistory struct {
	Material     Material      `json:"material"`
	Transactions []Transaction `json:"transactions"`
}

// InwardRecord is the most recent goods receipt for a material.
type InwardRecord struct {
	Date         time.Time `json:"date"`
	Quantity     float64   `json:"quantity"`
	SupplierName string    `json:"supplierName"`
	PIRef        string    `json:"piRef"`
}

// OrderHistoryStatus reports whether a material was ever received.
type OrderHistoryStatus string

const (
	OrderedBefore OrderHistoryStatus = "ORDERED_BEFORE"
	NeverOrdered  OrderHistoryStatus = "NEVER_ORDERED"
)

// ProcurementContext summarises buying history shown before raising a PI.
type ProcurementContext struct {
	Material    Material           `json:"material"`
	Status      OrderHistoryStatus `json:"status"`
	LastInward  *InwardRecord      `json:"lastInward"`
	ContextNote string             `json:"contextNote"`
}

var (
	// ErrMaterialNotFound indicates an unknown material id.
	ErrMaterialNotFound = fmt.Errorf("inventory: material not found: %w", httpx.ErrNotFound)
	// ErrInvalidQuantity indicates a zero or wrongly signed delta.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", httpx.ErrValidation)
	// ErrInvalidMovement indicates a malformed movement.
	ErrInvalidMovement = fmt.Errorf("inventory: invalid movement: %w", httpx.ErrValidation)
	// ErrInsufficientStock indicates a debit larger than the available quantity.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", httpx.ErrValidation)
)

// InsufficientStockError names the material that blocked a debit.
type InsufficientStockError struct {
	MaterialID uuid.UUID
	Name       string
	Unit       string
	Available  float64
	Requested  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %g %s, requested %g %s",
		e.Name, e.Available, e.Unit, e.Requested, e.Unit)
}

// Unwrap lets errors.Is match ErrInsufficientStock and the validation sentinel.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
