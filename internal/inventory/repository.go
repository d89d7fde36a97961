package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tintworks/dyeops/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback with a ledger bound to one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, LedgerStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewLedgerStore(tx))
	})
}

const materialSelect = `SELECT m.id, m.name, m.code, m.category, m.unit, m.quantity, m.min_stock, m.unit_cost,
	m.supplier_id, COALESCE(s.name, ''), m.created_at, m.updated_at
FROM materials m
LEFT JOIN suppliers s ON s.id = m.supplier_id`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	var category string
	if err := row.Scan(&m.ID, &m.Name, &m.Code, &category, &m.Unit, &m.Quantity, &m.MinStock, &m.UnitCost,
		&m.SupplierID, &m.SupplierName, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrMaterialNotFound
		}
		return Material{}, err
	}
	m.Category = Category(category)
	return m, nil
}

func (r *Repository) queryMaterials(ctx context.Context, query string, args ...any) ([]Material, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	materials := []Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// ListMaterials returns all materials sorted by name.
func (r *Repository) ListMaterials(ctx context.Context) ([]Material, error) {
	return r.queryMaterials(ctx, materialSelect+` ORDER BY m.name`)
}

// ListLowStock returns materials at or below minimum stock, most depleted first.
func (r *Repository) ListLowStock(ctx context.Context) ([]Material, error) {
	return r.queryMaterials(ctx, materialSelect+` WHERE m.quantity <= m.min_stock ORDER BY m.quantity - m.min_stock, m.name`)
}

// GetMaterial loads one material.
func (r *Repository) GetMaterial(ctx context.Context, id uuid.UUID) (Material, error) {
	return scanMaterial(r.pool.QueryRow(ctx, materialSelect+` WHERE m.id = $1`, id))
}

// ListTransactions returns a material's ledger, newest first.
func (r *Repository) ListTransactions(ctx context.Context, materialID uuid.UUID) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.type, t.material_id, t.quantity, t.unit_cost, t.related_id, t.related_type,
	t.note, t.performed_by, COALESCE(u.username, ''), t.occurred_at
FROM transactions t
LEFT JOIN users u ON u.id = t.performed_by
WHERE t.material_id = $1
ORDER BY t.occurred_at DESC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		var t Transaction
		var typ, kind string
		if err := rows.Scan(&t.ID, &typ, &t.MaterialID, &t.Quantity, &t.UnitCost, &t.RelatedID, &kind,
			&t.Note, &t.PerformedBy, &t.PerformedByName, &t.OccurredAt); err != nil {
			return nil, err
		}
		t.Type = TransactionType(typ)
		t.RelatedKind = RelatedKind(kind)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// LastInward returns the latest INWARD transaction with its PI and supplier.
func (r *Repository) LastInward(ctx context.Context, materialID uuid.UUID) (*InwardRecord, error) {
	var rec InwardRecord
	err := r.pool.QueryRow(ctx, `SELECT t.occurred_at, t.quantity, COALESCE(s.name, ''), COALESCE(pi.number, '')
FROM transactions t
LEFT JOIN purchase_indents pi ON pi.id = t.related_id AND t.related_type = 'PI'
LEFT JOIN suppliers s ON s.id = pi.supplier_id
WHERE t.material_id = $1 AND t.type = 'INWARD'
ORDER BY t.occurred_at DESC
LIMIT 1`, materialID).Scan(&rec.Date, &rec.Quantity, &rec.SupplierName, &rec.PIRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Consumption aggregates ISSUE volume and value per material since a cutoff.
func (r *Repository) Consumption(ctx context.Context, since time.Time) (map[uuid.UUID]Consumption, error) {
	rows, err := r.pool.Query(ctx, `SELECT material_id, SUM(-quantity), SUM((-quantity)::numeric * unit_cost)
FROM transactions
WHERE type = 'ISSUE' AND occurred_at >= $1
GROUP BY material_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]Consumption)
	for rows.Next() {
		var c Consumption
		if err := rows.Scan(&c.MaterialID, &c.Quantity, &c.Value); err != nil {
			return nil, err
		}
		out[c.MaterialID] = c
	}
	return out, rows.Err()
}

// PGLedgerStore implements LedgerStore on a pool or transaction.
type PGLedgerStore struct {
	q db.Querier
}

// NewLedgerStore binds the ledger to q, normally a pgx.Tx.
func NewLedgerStore(q db.Querier) *PGLedgerStore {
	return &PGLedgerStore{q: q}
}

// stockEpsilon absorbs float rounding when a debit empties a material exactly.
const stockEpsilon = 1e-9

// ApplyDelta changes quantity with a single conditional update so two
// concurrent debits can never take stock below zero.
func (s *PGLedgerStore) ApplyDelta(ctx context.Context, materialID uuid.UUID, delta float64) (float64, Material, error) {
	var before float64
	var m Material
	var category string
	err := s.q.QueryRow(ctx, `WITH prev AS (
	SELECT id, quantity FROM materials WHERE id = $1 FOR UPDATE
)
UPDATE materials m
SET quantity = GREATEST(m.quantity + $2, 0), updated_at = NOW()
FROM prev
WHERE m.id = prev.id AND m.quantity + $2 >= $3
RETURNING prev.quantity, m.id, m.name, m.code, m.category, m.unit, m.quantity, m.min_stock, m.unit_cost,
	m.supplier_id, m.created_at, m.updated_at`, materialID, delta, -stockEpsilon).Scan(
		&before, &m.ID, &m.Name, &m.Code, &category, &m.Unit, &m.Quantity, &m.MinStock, &m.UnitCost,
		&m.SupplierID, &m.CreatedAt, &m.UpdatedAt)
	if err == nil {
		m.Category = Category(category)
		return before, m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, Material{}, err
	}
	var name, unit string
	var available float64
	err = s.q.QueryRow(ctx, `SELECT name, unit, quantity FROM materials WHERE id = $1`, materialID).Scan(&name, &unit, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, Material{}, ErrMaterialNotFound
	}
	if err != nil {
		return 0, Material{}, err
	}
	return 0, Material{}, &InsufficientStockError{MaterialID: materialID, Name: name, Unit: unit, Available: available, Requested: -delta}
}

// InsertTransaction appends a ledger row.
func (s *PGLedgerStore) InsertTransaction(ctx context.Context, txn Transaction) error {
	_, err := s.q.Exec(ctx, `INSERT INTO transactions (id, type, material_id, quantity, unit_cost, related_id, related_type, note, performed_by, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.ID, string(txn.Type), txn.MaterialID, txn.Quantity, txn.UnitCost, txn.RelatedID, string(txn.RelatedKind),
		txn.Note, txn.PerformedBy, txn.OccurredAt)
	return err
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ LedgerStore    = (*PGLedgerStore)(nil)
)
