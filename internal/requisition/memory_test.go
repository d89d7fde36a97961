package requisition

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/inventory/inventorytest"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	ledger *inventorytest.Ledger
	reqs   map[uuid.UUID]Requisition
	keys   map[string]struct{}
}

func newMemoryRepo(materials ...inventory.Material) *memoryRepo {
	return &memoryRepo{
		ledger: inventorytest.NewLedger(materials...),
		reqs:   make(map[uuid.UUID]Requisition),
		keys:   make(map[string]struct{}),
	}
}

type memoryTx struct {
	repo   *memoryRepo
	ledger *inventorytest.Tx
	staged map[uuid.UUID]Requisition
	keys   map[string]struct{}
}

// WithTx serialises transactions and applies staged writes only on success.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, ledger: r.ledger.Begin(), staged: make(map[uuid.UUID]Requisition), keys: make(map[string]struct{})}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.ledger.Commit()
	for id, req := range tx.staged {
		r.reqs[id] = req
	}
	for k := range tx.keys {
		r.keys[k] = struct{}{}
	}
	return nil
}

func (tx *memoryTx) ClaimIdempotency(ctx context.Context, key, module string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := module + ":" + key
	_, committed := tx.repo.keys[k]
	_, staged := tx.keys[k]
	if committed || staged {
		return shared.ErrIdempotencyConflict
	}
	tx.keys[k] = struct{}{}
	return nil
}

func cloneReq(req Requisition) Requisition {
	req.Items = append([]Item(nil), req.Items...)
	return req
}

func (tx *memoryTx) Ledger() inventory.LedgerStore { return tx.ledger }

func (tx *memoryTx) Insert(_ context.Context, req Requisition) error {
	tx.staged[req.ID] = cloneReq(req)
	return nil
}

func (tx *memoryTx) GetForUpdate(_ context.Context, id uuid.UUID) (Requisition, error) {
	if req, ok := tx.staged[id]; ok {
		return cloneReq(req), nil
	}
	req, ok := tx.repo.reqs[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return cloneReq(req), nil
}

func (tx *memoryTx) SaveProgress(_ context.Context, req Requisition) error {
	tx.staged[req.ID] = cloneReq(req)
	return nil
}

func (tx *memoryTx) ReturnedQuantity(_ context.Context, reqID, materialID uuid.UUID) (float64, error) {
	var qty float64
	for _, t := range tx.repo.ledger.Transactions() {
		if t.Type == inventory.TransactionAdjustment && t.RelatedID != nil && *t.RelatedID == reqID &&
			t.MaterialID == materialID && t.Quantity > 0 {
			qty += t.Quantity
		}
	}
	return qty, nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return cloneReq(req), nil
}

func (r *memoryRepo) filter(keep func(Requisition) bool, newestFirst bool) []Requisition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Requisition{}
	for _, req := range r.reqs {
		if keep(req) {
			out = append(out, cloneReq(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memoryRepo) ListBySupervisor(_ context.Context, supervisorID uuid.UUID) ([]Requisition, error) {
	return r.filter(func(req Requisition) bool { return req.SupervisorID == supervisorID }, true), nil
}

func (r *memoryRepo) ListOpen(_ context.Context) ([]Requisition, error) {
	return r.filter(func(req Requisition) bool { return req.Status.Open() }, false), nil
}

func (r *memoryRepo) Materials(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Material, error) {
	out := make(map[uuid.UUID]inventory.Material)
	for _, id := range ids {
		if m, ok := r.ledger.Get(id); ok {
			out[id] = m
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]string
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID uuid.UUID, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[uuid.UUID][]string)
	}
	n.sent[userID] = append(n.sent[userID], msg.Text)
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}
