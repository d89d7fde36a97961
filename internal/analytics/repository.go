package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/suppliers"
)

// Repository runs the aggregation queries behind every view.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Usage returns every material with its ISSUE volume since the cutoff.
func (r *Repository) Usage(ctx context.Context, since time.Time) ([]MaterialUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.name, m.category, m.unit, m.quantity, m.min_stock, m.unit_cost,
	COALESCE(s.name, ''), COALESCE(SUM(-t.quantity), 0)
FROM materials m
LEFT JOIN suppliers s ON s.id = m.supplier_id
LEFT JOIN transactions t ON t.material_id = m.id AND t.type = 'ISSUE' AND t.occurred_at >= $1
GROUP BY m.id, s.name
ORDER BY m.name`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MaterialUsage
	for rows.Next() {
		var u MaterialUsage
		if err := rows.Scan(&u.MaterialID, &u.Name, &u.Category, &u.Unit, &u.Quantity, &u.MinStock, &u.UnitCost,
			&u.SupplierName, &u.Consumed); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LowStock lists materials at or below their minimum.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, quantity, min_stock, unit
FROM materials WHERE quantity <= min_stock ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LowStockItem{}
	for rows.Next() {
		var it LowStockItem
		if err := rows.Scan(&it.MaterialID, &it.Name, &it.Quantity, &it.MinStock, &it.Unit); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountPendingIndents counts RAISED indents.
func (r *Repository) CountPendingIndents(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_indents WHERE status = 'RAISED'`).Scan(&n)
	return n, err
}

// CountOpenRequisitions counts PENDING and PARTIALLY_ISSUED requisitions.
func (r *Repository) CountOpenRequisitions(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions
WHERE status IN ('PENDING', 'PARTIALLY_ISSUED')`).Scan(&n)
	return n, err
}

// InventoryValue sums quantity times unit cost over all materials.
func (r *Repository) InventoryValue(ctx context.Context) (decimal.Decimal, error) {
	var v decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity::numeric * unit_cost), 0) FROM materials`).Scan(&v)
	return v, err
}

// SupplierDeliveries returns each supplier joined to its completed indents,
// suppliers without completions appearing once with no delivery.
func (r *Repository) SupplierDeliveries(ctx context.Context) ([]SupplierDelivery, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.name, s.rating, s.rating_count,
	pi.id, pi.number, pi.created_at, pi.approved_at, pi.completed_at
FROM suppliers s
LEFT JOIN purchase_indents pi ON pi.supplier_id = s.id AND pi.status = 'COMPLETED'
	AND pi.approved_at IS NOT NULL AND pi.completed_at IS NOT NULL
ORDER BY s.name, pi.completed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SupplierDelivery
	for rows.Next() {
		var (
			row       SupplierDelivery
			indentID  *uuid.UUID
			number    *string
			created   *time.Time
			approved  *time.Time
			completed *time.Time
		)
		if err := rows.Scan(&row.SupplierID, &row.SupplierName, &row.Rating, &row.RatingCount,
			&indentID, &number, &created, &approved, &completed); err != nil {
			return nil, err
		}
		if indentID != nil {
			row.Delivery = &suppliers.DeliveryRecord{
				IndentID:    *indentID,
				Number:      *number,
				CreatedAt:   *created,
				ApprovedAt:  *approved,
				CompletedAt: *completed,
				Status:      "COMPLETED",
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RequisitionStats aggregates MRS counts and quantities.
func (r *Repository) RequisitionStats(ctx context.Context) (RequisitionStats, error) {
	var s RequisitionStats
	err := r.pool.QueryRow(ctx, `SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'PENDING'),
	COUNT(*) FILTER (WHERE status = 'PARTIALLY_ISSUED'),
	COUNT(*) FILTER (WHERE status = 'ISSUED'),
	COUNT(*) FILTER (WHERE status = 'REJECTED'),
	COALESCE((SELECT SUM(quantity_requested) FROM requisition_items), 0),
	COALESCE((SELECT SUM(quantity_issued) FROM requisition_items), 0),
	COALESCE(AVG(EXTRACT(EPOCH FROM issued_at - created_at) / 3600) FILTER (WHERE issued_at IS NOT NULL), 0)
FROM requisitions`).Scan(&s.Total, &s.Pending, &s.PartiallyIssued, &s.Issued, &s.Rejected,
		&s.QuantityRequested, &s.QuantityIssued, &s.AvgHoursToIssue)
	s.AvgHoursToIssue = round1(s.AvgHoursToIssue)
	return s, err
}

// Consumption totals ISSUE volume and value per material, largest first.
// Value uses the unit cost captured on each transaction.
func (r *Repository) Consumption(ctx context.Context) ([]Consumption, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.name, m.unit, SUM(-t.quantity), SUM((-t.quantity)::numeric * t.unit_cost)
FROM transactions t
JOIN materials m ON m.id = t.material_id
WHERE t.type = 'ISSUE'
GROUP BY m.id
ORDER BY 4 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Consumption{}
	for rows.Next() {
		var c Consumption
		if err := rows.Scan(&c.MaterialID, &c.Name, &c.Unit, &c.TotalQuantity, &c.TotalCost); err != nil {
			return nil, err
		}
		c.TotalCost = c.TotalCost.Round(2)
		out = append(out, c)
	}
	return out, rows.Err()
}

// BatchCosts totals ISSUE value per production batch via the originating MRS,
// most recent batch first.
func (r *Repository) BatchCosts(ctx context.Context) ([]BatchCost, error) {
	rows, err := r.pool.Query(ctx, `SELECT q.batch_id, SUM((-t.quantity)::numeric * t.unit_cost), COUNT(*), MAX(t.occurred_at)
FROM transactions t
JOIN requisitions q ON q.id = t.related_id
WHERE t.type = 'ISSUE' AND t.related_type = 'MRS'
GROUP BY q.batch_id
ORDER BY 4 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []BatchCost{}
	for rows.Next() {
		var b BatchCost
		if err := rows.Scan(&b.BatchID, &b.TotalCost, &b.ItemsCount, &b.LastTransaction); err != nil {
			return nil, err
		}
		b.TotalCost = b.TotalCost.Round(2)
		out = append(out, b)
	}
	return out, rows.Err()
}

// MonthlyCost sums INWARD and ISSUE value per calendar month since the cutoff.
func (r *Repository) MonthlyCost(ctx context.Context, since time.Time) ([]CostPoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT to_char(date_trunc('month', occurred_at AT TIME ZONE 'UTC'), 'YYYY-MM'),
	COALESCE(SUM(quantity::numeric * unit_cost) FILTER (WHERE type = 'INWARD'), 0),
	COALESCE(SUM((-quantity)::numeric * unit_cost) FILTER (WHERE type = 'ISSUE'), 0)
FROM transactions
WHERE occurred_at >= $1 AND type IN ('INWARD', 'ISSUE')
GROUP BY 1
ORDER BY 1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CostPoint
	for rows.Next() {
		var p CostPoint
		if err := rows.Scan(&p.Month, &p.InwardCost, &p.IssueCost); err != nil {
			return nil, err
		}
		p.InwardCost = p.InwardCost.Round(2)
		p.IssueCost = p.IssueCost.Round(2)
		out = append(out, p)
	}
	return out, rows.Err()
}
