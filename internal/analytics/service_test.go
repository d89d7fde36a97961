package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/inventory"
)

type mockRepo struct {
	mu         sync.Mutex
	usage      []MaterialUsage
	usageSince time.Time
	usageCalls atomic.Int32
	lowStock   []LowStockItem
	pendingPI  int
	openMRS    int
	value      decimal.Decimal
	deliveries []SupplierDelivery
	stats      RequisitionStats
	consumed   []Consumption
	batches    []BatchCost
	monthly    []CostPoint
	costSince  time.Time
	fail       error
	gate       chan struct{}
}

func (m *mockRepo) Usage(ctx context.Context, since time.Time) ([]MaterialUsage, error) {
	m.usageCalls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageSince = since
	return m.usage, m.fail
}

func (m *mockRepo) LowStock(ctx context.Context) ([]LowStockItem, error) { return m.lowStock, m.fail }

func (m *mockRepo) CountPendingIndents(ctx context.Context) (int, error) { return m.pendingPI, nil }

func (m *mockRepo) CountOpenRequisitions(ctx context.Context) (int, error) { return m.openMRS, nil }

func (m *mockRepo) InventoryValue(ctx context.Context) (decimal.Decimal, error) { return m.value, nil }

func (m *mockRepo) SupplierDeliveries(ctx context.Context) ([]SupplierDelivery, error) {
	return m.deliveries, nil
}

func (m *mockRepo) RequisitionStats(ctx context.Context) (RequisitionStats, error) {
	return m.stats, nil
}

func (m *mockRepo) Consumption(ctx context.Context) ([]Consumption, error) { return m.consumed, nil }

func (m *mockRepo) BatchCosts(ctx context.Context) ([]BatchCost, error) { return m.batches, nil }

func (m *mockRepo) MonthlyCost(ctx context.Context, since time.Time) ([]CostPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costSince = since
	return m.monthly, nil
}

func newTestService(t *testing.T, repo RepositoryPort) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute, nil))
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return svc, mr
}

func TestInventoryHealthCachesUntilBump(t *testing.T) {
	repo := &mockRepo{usage: []MaterialUsage{
		{MaterialID: uuid.New(), Name: "Reactive Red", Quantity: 40, Consumed: 120, UnitCost: decimal.NewFromInt(5)},
	}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	report, err := svc.InventoryHealth(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.LowStockCount != 1 {
		t.Fatalf("expected one low stock item, got %+v", report)
	}
	if want := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC); !repo.usageSince.Equal(want) {
		t.Fatalf("expected window start %s, got %s", want, repo.usageSince)
	}

	// Second call should hit cache.
	if _, err := svc.InventoryHealth(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := repo.usageCalls.Load(); n != 1 {
		t.Fatalf("expected cached result, repo called %d times", n)
	}

	// A stock movement invalidates the cache.
	svc.cache.StockChanged(ctx, []inventory.StockChange{{}})
	repo.usage[0].Consumed = 0
	report, err = svc.InventoryHealth(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.DeadStockCount != 1 {
		t.Fatalf("expected refreshed dead stock, got %+v", report)
	}
	if n := repo.usageCalls.Load(); n != 2 {
		t.Fatalf("expected repo to refresh, calls %d", n)
	}
}

func TestConcurrentMissesShareOneBuild(t *testing.T) {
	repo := &mockRepo{gate: make(chan struct{}), usage: []MaterialUsage{{MaterialID: uuid.New(), Name: "Soda Ash", Quantity: 10, Consumed: 30}}}
	svc, _ := newTestService(t, repo)

	var wg sync.WaitGroup
	results := make([][]ForecastItem, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = svc.Forecast(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	if n := repo.usageCalls.Load(); n != 1 {
		t.Fatalf("expected one build, got %d", n)
	}
	for _, r := range results {
		if len(r) != 1 || r[0].SuggestedReorder != 12 {
			t.Fatalf("unexpected forecast %+v", r)
		}
	}
}

func TestTransitionBumpsVersionAndPublishes(t *testing.T) {
	svc, mr := newTestService(t, &mockRepo{})
	ctx := context.Background()
	before, err := svc.cache.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	svc.cache.Transitioned(ctx, "PI", "APPROVED")
	after, err := svc.cache.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if after != before+1 {
		t.Fatalf("expected version %d, got %d", before+1, after)
	}
	if got, _ := mr.Get(cacheVersionKey); got == "" {
		t.Fatalf("version key missing")
	}
}

func TestDashboardAggregates(t *testing.T) {
	repo := &mockRepo{
		lowStock:  []LowStockItem{{Name: "Acid Blue", Quantity: 2, MinStock: 5}},
		pendingPI: 3,
		openMRS:   4,
		value:     decimal.RequireFromString("1234.567"),
	}
	svc, _ := newTestService(t, repo)
	d, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.LowStockCount != 1 || d.PendingPIs != 3 || d.PendingMRS != 4 {
		t.Fatalf("unexpected dashboard %+v", d)
	}
	if !d.TotalInventoryValue.Equal(decimal.RequireFromString("1234.57")) {
		t.Fatalf("unexpected value %s", d.TotalInventoryValue)
	}
}

func TestDashboardErrorIsNotCached(t *testing.T) {
	boom := errors.New("boom")
	repo := &mockRepo{fail: boom}
	svc, _ := newTestService(t, repo)
	if _, err := svc.Dashboard(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	repo.fail = nil
	if _, err := svc.Dashboard(context.Background()); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestCostFillsSixMonths(t *testing.T) {
	repo := &mockRepo{monthly: []CostPoint{
		{Month: "2025-12", InwardCost: decimal.NewFromInt(500), IssueCost: decimal.NewFromInt(120)},
		{Month: "2026-03", InwardCost: decimal.NewFromInt(250), IssueCost: decimal.Zero},
	}}
	svc, _ := newTestService(t, repo)
	report, err := svc.Cost(context.Background())
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if !repo.costSince.Equal(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected trend start %s", repo.costSince)
	}
	if len(report.Trend) != TrendMonths {
		t.Fatalf("expected %d months, got %d", TrendMonths, len(report.Trend))
	}
	if report.Trend[0].Month != "2025-10" || report.Trend[5].Month != "2026-03" {
		t.Fatalf("unexpected months %+v", report.Trend)
	}
	if !report.TotalInwardCost.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("unexpected inward total %s", report.TotalInwardCost)
	}
}

func TestServiceWithoutRedis(t *testing.T) {
	repo := &mockRepo{stats: RequisitionStats{Total: 2, QuantityRequested: 80, QuantityIssued: 60}}
	svc := NewService(repo, NewCache(nil, time.Minute, nil))
	e, err := svc.Efficiency(context.Background())
	if err != nil {
		t.Fatalf("efficiency: %v", err)
	}
	if e.FulfilmentRate != 75 {
		t.Fatalf("expected 75%%, got %v", e.FulfilmentRate)
	}
	if err := svc.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
}

func TestServiceFallsBackWhenRedisIsDown(t *testing.T) {
	repo := &mockRepo{stats: RequisitionStats{Total: 4, QuantityRequested: 100, QuantityIssued: 50}}
	svc, mr := newTestService(t, repo)
	mr.Close()

	e, err := svc.Efficiency(context.Background())
	if err != nil {
		t.Fatalf("efficiency during outage: %v", err)
	}
	if e.FulfilmentRate != 50 {
		t.Fatalf("expected 50%%, got %v", e.FulfilmentRate)
	}
	if _, err := svc.Dashboard(context.Background()); err != nil {
		t.Fatalf("dashboard during outage: %v", err)
	}
}
