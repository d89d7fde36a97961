package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/platform/db"
	"github.com/tintworks/dyeops/internal/shared"
	"github.com/tintworks/dyeops/internal/suppliers"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Ledger writes and supplier
// rating share the transaction of the indent update.
type TxRepository interface {
	Ledger() inventory.LedgerStore
	Insert(ctx context.Context, indent Indent) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Indent, error)
	Update(ctx context.Context, indent Indent) error
	RateSupplier(ctx context.Context, supplierID uuid.UUID, score int) (float64, int, error)
	ClaimIdempotency(ctx context.Context, key, module string) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *txRepo) ClaimIdempotency(ctx context.Context, key, module string) error {
	return shared.NewIdempotencyStore(r.tx).CheckAndInsert(ctx, key, module)
}

const indentSelect = `SELECT pi.id, pi.number, pi.store_manager_id, COALESCE(u.username, ''), pi.supplier_id, COALESCE(s.name, ''),
	pi.admin_id, pi.status, pi.reason, pi.remarks, pi.rating, pi.created_at, pi.approved_at, pi.completed_at
FROM purchase_indents pi
LEFT JOIN users u ON u.id = pi.store_manager_id
LEFT JOIN suppliers s ON s.id = pi.supplier_id`

func scanIndent(row pgx.Row) (Indent, error) {
	var in Indent
	var status string
	if err := row.Scan(&in.ID, &in.Number, &in.StoreManagerID, &in.StoreManagerName, &in.SupplierID, &in.SupplierName,
		&in.AdminID, &status, &in.Reason, &in.Remarks, &in.Rating, &in.CreatedAt, &in.ApprovedAt, &in.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Indent{}, ErrNotFound
		}
		return Indent{}, err
	}
	in.Status = Status(status)
	return in, nil
}

func loadItems(ctx context.Context, q db.Querier, indents []Indent) error {
	if len(indents) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(indents))
	index := make(map[uuid.UUID]int, len(indents))
	for i, in := range indents {
		ids[i] = in.ID
		index[in.ID] = i
		indents[i].Items = []Item{}
	}
	rows, err := q.Query(ctx, `SELECT i.indent_id, i.line_no, i.material_id, COALESCE(m.name, ''), COALESCE(m.unit, ''), i.quantity, i.unit_price
FROM purchase_indent_items i
LEFT JOIN materials m ON m.id = i.material_id
WHERE i.indent_id = ANY($1)
ORDER BY i.indent_id, i.line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var indentID uuid.UUID
		var it Item
		if err := rows.Scan(&indentID, &it.LineNo, &it.MaterialID, &it.MaterialName, &it.Unit, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		i := index[indentID]
		indents[i].Items = append(indents[i].Items, it)
	}
	return rows.Err()
}

// Get loads one indent with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Indent, error) {
	in, err := scanIndent(r.pool.QueryRow(ctx, indentSelect+` WHERE pi.id = $1`, id))
	if err != nil {
		return Indent{}, err
	}
	list := []Indent{in}
	if err := loadItems(ctx, r.pool, list); err != nil {
		return Indent{}, err
	}
	return list[0], nil
}

// List returns indents newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Indent, error) {
	query := indentSelect
	var args []any
	if filter.Status != "" {
		query += ` WHERE pi.status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY pi.created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := []Indent{}
	for rows.Next() {
		in, err := scanIndent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, in)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.pool, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Materials loads materials with their supplier assignment.
func (r *Repository) Materials(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Material, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, unit, quantity, unit_cost, supplier_id FROM materials WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]inventory.Material, len(ids))
	for rows.Next() {
		var m inventory.Material
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &m.Quantity, &m.UnitCost, &m.SupplierID); err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (t *txRepo) Ledger() inventory.LedgerStore {
	return inventory.NewLedgerStore(t.tx)
}

func (t *txRepo) Insert(ctx context.Context, in Indent) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_indents (id, number, store_manager_id, supplier_id, status, reason, remarks, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		in.ID, in.Number, in.StoreManagerID, in.SupplierID, string(in.Status), in.Reason, in.Remarks, in.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("PI number %s: %w", in.Number, errDuplicateNumber)
		}
		return err
	}
	batch := &pgx.Batch{}
	for _, it := range in.Items {
		batch.Queue(`INSERT INTO purchase_indent_items (indent_id, line_no, material_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			in.ID, it.LineNo, it.MaterialID, it.Quantity, it.UnitPrice)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Indent, error) {
	in, err := scanIndent(t.tx.QueryRow(ctx, indentSelect+` WHERE pi.id = $1 FOR UPDATE OF pi`, id))
	if err != nil {
		return Indent{}, err
	}
	list := []Indent{in}
	if err := loadItems(ctx, t.tx, list); err != nil {
		return Indent{}, err
	}
	return list[0], nil
}

func (t *txRepo) Update(ctx context.Context, in Indent) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_indents
SET status = $2, admin_id = $3, reason = $4, remarks = $5, rating = $6, approved_at = $7, completed_at = $8
WHERE id = $1`, in.ID, string(in.Status), in.AdminID, in.Reason, in.Remarks, in.Rating, in.ApprovedAt, in.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RateSupplier folds score into the running mean in one statement so
// concurrent receipts never lose an update.
func (t *txRepo) RateSupplier(ctx context.Context, supplierID uuid.UUID, score int) (float64, int, error) {
	var mean float64
	var count int
	err := t.tx.QueryRow(ctx, `UPDATE suppliers
SET rating = (rating * rating_count + $2) / (rating_count + 1), rating_count = rating_count + 1
WHERE id = $1
RETURNING rating, rating_count`, supplierID, score).Scan(&mean, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, suppliers.ErrNotFound
	}
	return mean, count, err
}

var _ RepositoryPort = (*Repository)(nil)
