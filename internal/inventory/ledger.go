package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore is the storage primitive behind every stock change. Both calls
// must share one database transaction.
type LedgerStore interface {
	// ApplyDelta adds delta to the material quantity only when the result
	// stays non-negative, returning the previous quantity and updated row.
	ApplyDelta(ctx context.Context, materialID uuid.UUID, delta float64) (float64, Material, error)
	InsertTransaction(ctx context.Context, txn Transaction) error
}

// Movement is a request to change one material's stock.
type Movement struct {
	MaterialID  uuid.UUID
	Delta       float64
	Type        TransactionType
	RelatedID   *uuid.UUID
	RelatedKind RelatedKind
	UnitCost    *decimal.Decimal
	Note        string
	ActorID     uuid.UUID
	At          time.Time
}

func (m Movement) validate() error {
	if m.MaterialID == uuid.Nil {
		return fmt.Errorf("material id required: %w", ErrInvalidMovement)
	}
	if m.ActorID == uuid.Nil {
		return fmt.Errorf("actor required: %w", ErrInvalidMovement)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("type %q: %w", m.Type, ErrInvalidMovement)
	}
	if m.Delta == 0 {
		return ErrInvalidQuantity
	}
	if m.Type == TransactionIssue && m.Delta > 0 {
		return fmt.Errorf("issue must debit stock: %w", ErrInvalidQuantity)
	}
	if m.Type == TransactionInward && m.Delta < 0 {
		return fmt.Errorf("inward must credit stock: %w", ErrInvalidQuantity)
	}
	if (m.RelatedID == nil) != (m.RelatedKind == RelatedNone) {
		return fmt.Errorf("related id and kind must be set together: %w", ErrInvalidMovement)
	}
	return nil
}

// Post applies one movement through store and appends its Transaction.
// The quantity change and the ledger row commit or roll back together.
func Post(ctx context.Context, store LedgerStore, mv Movement) (StockChange, error) {
	if err := mv.validate(); err != nil {
		return StockChange{}, err
	}
	before, material, err := store.ApplyDelta(ctx, mv.MaterialID, mv.Delta)
	if err != nil {
		return StockChange{}, err
	}
	at := mv.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	cost := material.UnitCost
	if mv.UnitCost != nil {
		cost = *mv.UnitCost
	}
	txn := Transaction{
		ID:          uuid.New(),
		Type:        mv.Type,
		MaterialID:  mv.MaterialID,
		Quantity:    mv.Delta,
		UnitCost:    cost,
		RelatedID:   mv.RelatedID,
		RelatedKind: mv.RelatedKind,
		Note:        mv.Note,
		PerformedBy: mv.ActorID,
		OccurredAt:  at,
	}
	if err := store.InsertTransaction(ctx, txn); err != nil {
		return StockChange{}, fmt.Errorf("inventory: append transaction: %w", err)
	}
	return StockChange{Transaction: txn, Material: material, Before: before}, nil
}

// PostAll applies movements in order, stopping at the first failure. Callers
// run it inside a transaction so a failure discards every earlier movement.
func PostAll(ctx context.Context, store LedgerStore, movements []Movement) ([]StockChange, error) {
	changes := make([]StockChange, 0, len(movements))
	for _, mv := range movements {
		change, err := Post(ctx, store, mv)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}
