// Package inventorytest provides an in-memory ledger for workflow tests.
package inventorytest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/inventory"
)

// Ledger holds committed materials and transactions.
type Ledger struct {
	mu        sync.Mutex
	materials map[uuid.UUID]inventory.Material
	txns      []inventory.Transaction
}

// NewLedger seeds a ledger with materials.
func NewLedger(materials ...inventory.Material) *Ledger {
	l := &Ledger{materials: make(map[uuid.UUID]inventory.Material)}
	for _, m := range materials {
		l.materials[m.ID] = m
	}
	return l
}

// Material builds a material with sensible defaults.
func Material(name string, qty, minStock float64) inventory.Material {
	return inventory.Material{
		ID:       uuid.New(),
		Name:     name,
		Category: inventory.CategoryChemical,
		Unit:     "kg",
		Quantity: qty,
		MinStock: minStock,
		UnitCost: decimal.NewFromInt(10),
	}
}

// Begin starts a staged transaction. Nothing is visible until Commit.
func (l *Ledger) Begin() *Tx {
	return &Tx{ledger: l, staged: make(map[uuid.UUID]inventory.Material)}
}

// Get returns the committed material.
func (l *Ledger) Get(id uuid.UUID) (inventory.Material, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.materials[id]
	return m, ok
}

// Put overwrites a committed material.
func (l *Ledger) Put(m inventory.Material) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materials[m.ID] = m
}

// Quantity returns the committed quantity of a material.
func (l *Ledger) Quantity(id uuid.UUID) float64 {
	m, _ := l.Get(id)
	return m.Quantity
}

// Transactions returns a copy of committed transactions in insert order.
func (l *Ledger) Transactions() []inventory.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]inventory.Transaction(nil), l.txns...)
}

// Tx stages ledger writes.
type Tx struct {
	ledger *Ledger
	staged map[uuid.UUID]inventory.Material
	txns   []inventory.Transaction
}

// ApplyDelta implements inventory.LedgerStore.
func (tx *Tx) ApplyDelta(_ context.Context, id uuid.UUID, delta float64) (float64, inventory.Material, error) {
	m, ok := tx.staged[id]
	if !ok {
		m, ok = tx.ledger.Get(id)
	}
	if !ok {
		return 0, inventory.Material{}, inventory.ErrMaterialNotFound
	}
	if m.Quantity+delta < -1e-9 {
		return 0, inventory.Material{}, &inventory.InsufficientStockError{
			MaterialID: id, Name: m.Name, Unit: m.Unit, Available: m.Quantity, Requested: -delta,
		}
	}
	before := m.Quantity
	m.Quantity = max(m.Quantity+delta, 0)
	tx.staged[id] = m
	return before, m, nil
}

// InsertTransaction implements inventory.LedgerStore.
func (tx *Tx) InsertTransaction(_ context.Context, txn inventory.Transaction) error {
	tx.txns = append(tx.txns, txn)
	return nil
}

// Commit publishes staged writes.
func (tx *Tx) Commit() {
	tx.ledger.mu.Lock()
	defer tx.ledger.mu.Unlock()
	for id, m := range tx.staged {
		tx.ledger.materials[id] = m
	}
	tx.ledger.txns = append(tx.ledger.txns, tx.txns...)
}

var _ inventory.LedgerStore = (*Tx)(nil)
