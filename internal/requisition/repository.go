package requisition

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/platform/db"
	"github.com/tintworks/dyeops/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Ledger writes share the
// same transaction as the requisition update.
type TxRepository interface {
	Ledger() inventory.LedgerStore
	Insert(ctx context.Context, req Requisition) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error)
	SaveProgress(ctx context.Context, req Requisition) error
	ReturnedQuantity(ctx context.Context, requisitionID, materialID uuid.UUID) (float64, error)
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

const headerSelect = `SELECT r.id, r.batch_id, r.supervisor_id, COALESCE(u.username, ''), r.status, r.remarks,
	r.created_at, r.updated_at, r.issued_at
FROM requisitions r
LEFT JOIN users u ON u.id = r.supervisor_id`

func scanHeader(row pgx.Row) (Requisition, error) {
	var req Requisition
	var status string
	if err := row.Scan(&req.ID, &req.BatchID, &req.SupervisorID, &req.SupervisorName, &status, &req.Remarks,
		&req.CreatedAt, &req.UpdatedAt, &req.IssuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrNotFound
		}
		return Requisition{}, err
	}
	req.Status = Status(status)
	return req, nil
}

func loadItems(ctx context.Context, q db.Querier, reqs []Requisition) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(reqs))
	index := make(map[uuid.UUID]int, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
		index[req.ID] = i
	}
	rows, err := q.Query(ctx, `SELECT i.requisition_id, i.line_no, i.material_id, COALESCE(m.name, ''), COALESCE(m.unit, ''),
	m.quantity, i.quantity_requested, i.quantity_issued
FROM requisition_items i
LEFT JOIN materials m ON m.id = i.material_id
WHERE i.requisition_id = ANY($1)
ORDER BY i.requisition_id, i.line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var reqID uuid.UUID
		var it Item
		if err := rows.Scan(&reqID, &it.LineNo, &it.MaterialID, &it.MaterialName, &it.Unit,
			&it.Available, &it.QuantityRequested, &it.QuantityIssued); err != nil {
			return err
		}
		i := index[reqID]
		reqs[i].Items = append(reqs[i].Items, it)
	}
	return rows.Err()
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	reqs := []Requisition{}
	for rows.Next() {
		req, err := scanHeader(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reqs = append(reqs, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.pool, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// Get loads one requisition with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Requisition, error) {
	req, err := scanHeader(r.pool.QueryRow(ctx, headerSelect+` WHERE r.id = $1`, id))
	if err != nil {
		return Requisition{}, err
	}
	reqs := []Requisition{req}
	if err := loadItems(ctx, r.pool, reqs); err != nil {
		return Requisition{}, err
	}
	return reqs[0], nil
}

// ListBySupervisor returns a supervisor's requisitions, newest first.
func (r *Repository) ListBySupervisor(ctx context.Context, supervisorID uuid.UUID) ([]Requisition, error) {
	return r.list(ctx, headerSelect+` WHERE r.supervisor_id = $1 ORDER BY r.created_at DESC`, supervisorID)
}

// ListOpen returns PENDING and PARTIALLY_ISSUED requisitions, oldest first.
func (r *Repository) ListOpen(ctx context.Context) ([]Requisition, error) {
	return r.list(ctx, headerSelect+` WHERE r.status IN ('PENDING', 'PARTIALLY_ISSUED') ORDER BY r.created_at ASC`)
}

// Materials loads materials by id.
func (r *Repository) Materials(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Material, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, unit, quantity, min_stock, unit_cost FROM materials WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]inventory.Material, len(ids))
	for rows.Next() {
		var m inventory.Material
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &m.Quantity, &m.MinStock, &m.UnitCost); err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (t *txRepo) Ledger() inventory.LedgerStore {
	return inventory.NewLedgerStore(t.tx)
}

func (t *txRepo) Insert(ctx context.Context, req Requisition) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO requisitions (id, batch_id, supervisor_id, status, remarks, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, req.ID, req.BatchID, req.SupervisorID, string(req.Status), req.Remarks, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, it := range req.Items {
		batch.Queue(`INSERT INTO requisition_items (requisition_id, line_no, material_id, quantity_requested, quantity_issued)
VALUES ($1, $2, $3, $4, $5)`, req.ID, it.LineNo, it.MaterialID, it.QuantityRequested, it.QuantityIssued)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error) {
	req, err := scanHeader(t.tx.QueryRow(ctx, headerSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	if err != nil {
		return Requisition{}, err
	}
	reqs := []Requisition{req}
	if err := loadItems(ctx, t.tx, reqs); err != nil {
		return Requisition{}, err
	}
	return reqs[0], nil
}

func (t *txRepo) SaveProgress(ctx context.Context, req Requisition) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requisitions SET status = $2, remarks = $3, updated_at = $4, issued_at = $5 WHERE id = $1`,
		req.ID, string(req.Status), req.Remarks, req.UpdatedAt, req.IssuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	batch := &pgx.Batch{}
	for _, it := range req.Items {
		batch.Queue(`UPDATE requisition_items SET quantity_issued = $3 WHERE requisition_id = $1 AND line_no = $2`,
			req.ID, it.LineNo, it.QuantityIssued)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) ReturnedQuantity(ctx context.Context, requisitionID, materialID uuid.UUID) (float64, error) {
	var qty float64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM transactions
WHERE type = 'ADJUSTMENT' AND related_type = 'MRS' AND related_id = $1 AND material_id = $2 AND quantity > 0`,
		requisitionID, materialID).Scan(&qty)
	return qty, err
}

var _ RepositoryPort = (*Repository)(nil)
