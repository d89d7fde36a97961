package inventory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

func newMaterial(name string, qty, min float64) Material {
	return Material{
		ID:       uuid.New(),
		Name:     name,
		Category: CategoryDye,
		Unit:     "kg",
		Quantity: qty,
		MinStock: min,
		UnitCost: decimal.NewFromInt(250),
	}
}

func TestApplyDeltaIssueRecordsTransaction(t *testing.T) {
	m := newMaterial("Reactive Blue 19", 100, 20)
	repo := newMemoryRepo(m)
	svc := NewService(repo, nil, nil)
	actor := uuid.New()

	change, err := svc.ApplyDelta(context.Background(), Movement{
		MaterialID: m.ID, Delta: -30, Type: TransactionIssue, ActorID: actor,
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, change.Before)
	require.Equal(t, 70.0, change.Material.Quantity)
	require.False(t, change.Material.IsLowStock())
	require.False(t, change.CrossedMinimum())

	history, err := svc.History(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, 70.0, history.Material.Quantity)
	require.Len(t, history.Transactions, 1)
	txn := history.Transactions[0]
	require.Equal(t, TransactionIssue, txn.Type)
	require.Equal(t, -30.0, txn.Quantity)
	require.Equal(t, actor, txn.PerformedBy)
	require.True(t, txn.UnitCost.Equal(decimal.NewFromInt(250)))

	low, err := svc.ListLowStock(context.Background())
	require.NoError(t, err)
	require.Empty(t, low)
}

func TestApplyDeltaRejectsOverdraw(t *testing.T) {
	m := newMaterial("Soda Ash", 10, 5)
	repo := newMemoryRepo(m)
	svc := NewService(repo, nil, nil)

	_, err := svc.ApplyDelta(context.Background(), Movement{MaterialID: m.ID, Delta: -10.5, Type: TransactionIssue, ActorID: uuid.New()})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, httpx.ErrValidation)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 10.0, stockErr.Available)
	require.Equal(t, 10.5, stockErr.Requested)
	require.Contains(t, err.Error(), "Soda Ash")

	require.Equal(t, 10.0, repo.quantity(m.ID))
	require.Empty(t, repo.txns)
}

func TestPostValidatesMovement(t *testing.T) {
	m := newMaterial("Acetic Acid", 10, 5)
	repo := newMemoryRepo(m)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	actor := uuid.New()
	related := uuid.New()

	cases := []Movement{
		{MaterialID: m.ID, Delta: 0, Type: TransactionAdjustment, ActorID: actor},
		{MaterialID: m.ID, Delta: 5, Type: TransactionIssue, ActorID: actor},
		{MaterialID: m.ID, Delta: -5, Type: TransactionInward, ActorID: actor},
		{MaterialID: m.ID, Delta: 5, Type: "GIFT", ActorID: actor},
		{MaterialID: m.ID, Delta: 5, Type: TransactionAdjustment},
		{MaterialID: m.ID, Delta: 5, Type: TransactionInward, ActorID: actor, RelatedID: &related},
	}
	for _, mv := range cases {
		_, err := svc.ApplyDelta(ctx, mv)
		require.ErrorIs(t, err, httpx.ErrValidation, "%+v", mv)
	}

	_, err := svc.ApplyDelta(ctx, Movement{MaterialID: uuid.New(), Delta: 1, Type: TransactionAdjustment, ActorID: actor})
	require.ErrorIs(t, err, ErrMaterialNotFound)
	require.Equal(t, 10.0, repo.quantity(m.ID))
}

func TestQuantityEqualsInitialPlusSignedTransactions(t *testing.T) {
	m := newMaterial("Sodium Hydrosulphite", 50, 10)
	repo := newMemoryRepo(m)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	actor := uuid.New()

	for i := 0; i < 200; i++ {
		delta := float64(rng.Intn(40) + 1)
		typ := TransactionInward
		if rng.Intn(2) == 0 {
			delta = -delta
			typ = TransactionIssue
		}
		_, _ = svc.ApplyDelta(ctx, Movement{MaterialID: m.ID, Delta: delta, Type: typ, ActorID: actor})
		require.GreaterOrEqual(t, repo.quantity(m.ID), 0.0)
	}

	sum := 0.0
	for _, txn := range repo.txns {
		sum += txn.Quantity
	}
	require.InDelta(t, 50+sum, repo.quantity(m.ID), 1e-9)
}

func TestConcurrentIssuesNeverOverdraw(t *testing.T) {
	m := newMaterial("Black B", 100, 10)
	repo := newMemoryRepo(m)
	svc := NewService(repo, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyDelta(context.Background(), Movement{MaterialID: m.ID, Delta: -15, Type: TransactionIssue, ActorID: uuid.New()})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrInsufficientStock)
	}
	require.Equal(t, 6, succeeded)
	require.Equal(t, 10.0, repo.quantity(m.ID))
	require.Len(t, repo.txns, 6)
}

func TestProcurementContext(t *testing.T) {
	ordered := newMaterial("Reactive Yellow", 5, 20)
	fresh := newMaterial("Levelling Agent", 0, 5)
	repo := newMemoryRepo(ordered, fresh)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo.inwards[ordered.ID] = &InwardRecord{Date: now.Add(-72 * time.Hour), Quantity: 40, SupplierName: "Colourtex", PIRef: "PI-1001"}
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return now }

	out, err := svc.ProcurementContext(context.Background(), ordered.ID)
	require.NoError(t, err)
	require.Equal(t, OrderedBefore, out.Status)
	require.NotNil(t, out.LastInward)
	require.Contains(t, out.ContextNote, "Colourtex")
	require.Contains(t, out.ContextNote, "3 days ago")

	out, err = svc.ProcurementContext(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, NeverOrdered, out.Status)
	require.Nil(t, out.LastInward)

	_, err = svc.ProcurementContext(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrMaterialNotFound)
}

type recordingNotifier struct {
	mu    sync.Mutex
	roles []rbac.Role
	msgs  []notifications.Message
}

func (n *recordingNotifier) NotifyRole(ctx context.Context, role rbac.Role, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roles = append(n.roles, role)
	n.msgs = append(n.msgs, msg)
	return nil
}

func TestLowStockAlerterFiresOnlyWhenCrossingMinimum(t *testing.T) {
	m := newMaterial("Caustic Soda", 30, 20)
	repo := newMemoryRepo(m)
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, Observers{LowStockAlerter{Notifier: notifier}})
	ctx := context.Background()
	actor := uuid.New()

	_, err := svc.ApplyDelta(ctx, Movement{MaterialID: m.ID, Delta: -5, Type: TransactionIssue, ActorID: actor})
	require.NoError(t, err)
	require.Empty(t, notifier.msgs)

	_, err = svc.ApplyDelta(ctx, Movement{MaterialID: m.ID, Delta: -5, Type: TransactionIssue, ActorID: actor})
	require.NoError(t, err)
	require.Len(t, notifier.msgs, 1)
	require.Equal(t, rbac.RoleStoreManager, notifier.roles[0])
	require.Equal(t, notifications.TypeWarning, notifier.msgs[0].Type)
	require.Contains(t, notifier.msgs[0].Text, "Caustic Soda")

	_, err = svc.ApplyDelta(ctx, Movement{MaterialID: m.ID, Delta: -5, Type: TransactionIssue, ActorID: actor})
	require.NoError(t, err)
	require.Len(t, notifier.msgs, 1)
}
