package suppliers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const supplierSelect = `SELECT id, name, contact_person, phone, material_categories, rating, rating_count, is_active, created_at FROM suppliers`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	if err := row.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Phone, &s.MaterialCategories, &s.Rating, &s.RatingCount, &s.IsActive, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	if s.MaterialCategories == nil {
		s.MaterialCategories = []string{}
	}
	return s, nil
}

// List returns every supplier ordered by name.
func (r *Repository) List(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, supplierSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get loads one supplier.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Supplier, error) {
	return scanSupplier(r.pool.QueryRow(ctx, supplierSelect+` WHERE id = $1`, id))
}

// Deliveries returns completed indents for a supplier, latest completion first.
func (r *Repository) Deliveries(ctx context.Context, supplierID uuid.UUID) ([]DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, created_at, approved_at, completed_at, status
FROM purchase_indents
WHERE supplier_id = $1 AND status = 'COMPLETED' AND approved_at IS NOT NULL AND completed_at IS NOT NULL
ORDER BY completed_at DESC`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryRecord
	for rows.Next() {
		var d DeliveryRecord
		if err := rows.Scan(&d.IndentID, &d.Number, &d.CreatedAt, &d.ApprovedAt, &d.CompletedAt, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
