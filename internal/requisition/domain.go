// Package requisition implements material requisition slips (MRS): a
// supervisor requests materials for a dye batch and the store issues them
// against stock, possibly over several calls.
package requisition

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// Status enumerates MRS lifecycle states.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPartiallyIssued Status = "PARTIALLY_ISSUED"
	StatusIssued          Status = "ISSUED"
	StatusRejected        Status = "REJECTED"
)

// Open reports whether stock can still be issued.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPartiallyIssued
}

// Item is one requested material line.
type Item struct {
	LineNo            int       `json:"lineNo"`
	MaterialID        uuid.UUID `json:"materialId"`
	MaterialName      string    `json:"materialName,omitempty"`
	Unit              string    `json:"unit,omitempty"`
	Available         *float64  `json:"available,omitempty"`
	QuantityRequested float64   `json:"quantityRequested"`
	QuantityIssued    float64   `json:"quantityIssued"`
}

// Outstanding is the quantity still to issue.
func (i Item) Outstanding() float64 {
	return max(i.QuantityRequested-i.QuantityIssued, 0)
}

// Requisition is a material request slip for one batch.
type Requisition struct {
	ID             uuid.UUID  `json:"id"`
	BatchID        string     `json:"batchId"`
	SupervisorID   uuid.UUID  `json:"supervisorId"`
	SupervisorName string     `json:"supervisorName,omitempty"`
	Status         Status     `json:"status"`
	Remarks        string     `json:"remarks,omitempty"`
	Items          []Item     `json:"items"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	IssuedAt       *time.Time `json:"issuedAt,omitempty"`
}

// Item returns the line for a material.
func (r *Requisition) Item(materialID uuid.UUID) (*Item, bool) {
	for i := range r.Items {
		if r.Items[i].MaterialID == materialID {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// issueEpsilon absorbs float rounding when comparing issued to requested.
const issueEpsilon = 1e-9

// DeriveStatus computes the issue status from line quantities: ISSUED when
// every line is fully issued, PARTIALLY_ISSUED when anything was issued,
// PENDING otherwise.
func DeriveStatus(items []Item) Status {
	if len(items) == 0 {
		return StatusPending
	}
	all, some := true, false
	for _, it := range items {
		if it.QuantityIssued+issueEpsilon < it.QuantityRequested {
			all = false
		}
		if it.QuantityIssued > 0 {
			some = true
		}
	}
	switch {
	case all:
		return StatusIssued
	case some:
		return StatusPartiallyIssued
	default:
		return StatusPending
	}
}

var (
	// ErrNotFound indicates an unknown requisition.
	ErrNotFound = fmt.Errorf("requisition: not found: %w", httpx.ErrNotFound)
	// ErrAlreadyIssued indicates an MRS with nothing left to issue.
	ErrAlreadyIssued = fmt.Errorf("MRS already issued: %w", httpx.ErrConflict)
	// ErrInvalidState indicates an illegal status transition.
	ErrInvalidState = fmt.Errorf("requisition: invalid state: %w", httpx.ErrConflict)
	// ErrNotOwner indicates a supervisor acting on another supervisor's MRS.
	ErrNotOwner = fmt.Errorf("requisition: not your MRS: %w", httpx.ErrForbidden)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), httpx.ErrValidation)
}
