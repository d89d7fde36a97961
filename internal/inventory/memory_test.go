package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu        sync.Mutex
	materials map[uuid.UUID]Material
	txns      []Transaction
	inwards   map[uuid.UUID]*InwardRecord
}

func newMemoryRepo(materials ...Material) *memoryRepo {
	r := &memoryRepo{materials: make(map[uuid.UUID]Material), inwards: make(map[uuid.UUID]*InwardRecord)}
	for _, m := range materials {
		r.materials[m.ID] = m
	}
	return r
}

// memoryTx stages writes and applies them on commit, mirroring a rollback.
type memoryTx struct {
	repo      *memoryRepo
	materials map[uuid.UUID]Material
	txns      []Transaction
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, LedgerStore) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, materials: make(map[uuid.UUID]Material)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, m := range tx.materials {
		r.materials[id] = m
	}
	r.txns = append(r.txns, tx.txns...)
	return nil
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, id uuid.UUID, delta float64) (float64, Material, error) {
	m, ok := tx.materials[id]
	if !ok {
		m, ok = tx.repo.materials[id]
	}
	if !ok {
		return 0, Material{}, ErrMaterialNotFound
	}
	if m.Quantity+delta < -stockEpsilon {
		return 0, Material{}, &InsufficientStockError{MaterialID: id, Name: m.Name, Unit: m.Unit, Available: m.Quantity, Requested: -delta}
	}
	before := m.Quantity
	m.Quantity = max(m.Quantity+delta, 0)
	tx.materials[id] = m
	return before, m, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) error {
	tx.txns = append(tx.txns, txn)
	return nil
}

func (r *memoryRepo) ListMaterials(ctx context.Context) ([]Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Material, 0, len(r.materials))
	for _, m := range r.materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context) ([]Material, error) {
	all, _ := r.ListMaterials(ctx)
	var out []Material
	for _, m := range all {
		if m.IsLowStock() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetMaterial(ctx context.Context, id uuid.UUID) (Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return Material{}, ErrMaterialNotFound
	}
	return m, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, materialID uuid.UUID) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for i := len(r.txns) - 1; i >= 0; i-- {
		if r.txns[i].MaterialID == materialID {
			out = append(out, r.txns[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) LastInward(ctx context.Context, materialID uuid.UUID) (*InwardRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inwards[materialID], nil
}

func (r *memoryRepo) Consumption(ctx context.Context, since time.Time) (map[uuid.UUID]Consumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]Consumption)
	for _, t := range r.txns {
		if t.Type != TransactionIssue || t.OccurredAt.Before(since) {
			continue
		}
		c := out[t.MaterialID]
		c.MaterialID = t.MaterialID
		c.Quantity += -t.Quantity
		c.Value = c.Value.Add(t.Value())
		out[t.MaterialID] = c
	}
	return out, nil
}

func (r *memoryRepo) quantity(id uuid.UUID) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.materials[id].Quantity
}
