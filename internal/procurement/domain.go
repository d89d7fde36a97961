// Package procurement implements purchase indents (PI): a store manager
// raises one indent per supplier, an admin approves or rejects it, and the
// store records the goods inward, crediting stock and rating the supplier.
package procurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// Status enumerates PI lifecycle states.
type Status string

const (
	StatusRaised    Status = "RAISED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRaised, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Decision reports whether s is an admin decision.
func (s Status) Decision() bool {
	return s == StatusApproved || s == StatusRejected
}

// Item is one ordered material line.
type Item struct {
	LineNo       int              `json:"lineNo"`
	MaterialID   uuid.UUID        `json:"materialId"`
	MaterialName string           `json:"materialName,omitempty"`
	Unit         string           `json:"unit,omitempty"`
	Quantity     float64          `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unitPrice,omitempty"`
}

// Indent is a purchase indent addressed to a single supplier.
type Indent struct {
	ID               uuid.UUID  `json:"id"`
	Number           string     `json:"number"`
	StoreManagerID   uuid.UUID  `json:"storeManagerId"`
	StoreManagerName string     `json:"storeManagerName,omitempty"`
	SupplierID       uuid.UUID  `json:"supplierId"`
	SupplierName     string     `json:"supplierName,omitempty"`
	AdminID          *uuid.UUID `json:"adminId,omitempty"`
	Status           Status     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	Remarks          string     `json:"remarks,omitempty"`
	Rating           *int       `json:"rating,omitempty"`
	Items            []Item     `json:"items"`
	CreatedAt        time.Time  `json:"createdAt"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// ListFilter narrows indent listings.
type ListFilter struct {
	Status Status
}

var (
	// ErrNotFound indicates an unknown indent.
	ErrNotFound = fmt.Errorf("PI not found: %w", httpx.ErrNotFound)
	// ErrAlreadyProcessed indicates a decision on an indent that is not RAISED.
	ErrAlreadyProcessed = fmt.Errorf("PI is already processed: %w", httpx.ErrConflict)
	// ErrNotApproved indicates an inward entry on an indent that is not APPROVED.
	ErrNotApproved = fmt.Errorf("PI must be APPROVED before Inward Entry: %w", httpx.ErrConflict)
	// ErrMissingSupplier indicates a material without a supplier assignment.
	ErrMissingSupplier = fmt.Errorf("material has no supplier assigned: %w", httpx.ErrValidation)

	errDuplicateNumber = fmt.Errorf("duplicate PI number: %w", httpx.ErrDuplicate)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), httpx.ErrValidation)
}
