package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RepositoryPort is the query surface the views are built from.
type RepositoryPort interface {
	Usage(ctx context.Context, since time.Time) ([]MaterialUsage, error)
	LowStock(ctx context.Context) ([]LowStockItem, error)
	CountPendingIndents(ctx context.Context) (int, error)
	CountOpenRequisitions(ctx context.Context) (int, error)
	InventoryValue(ctx context.Context) (decimal.Decimal, error)
	SupplierDeliveries(ctx context.Context) ([]SupplierDelivery, error)
	RequisitionStats(ctx context.Context) (RequisitionStats, error)
	Consumption(ctx context.Context) ([]Consumption, error)
	BatchCosts(ctx context.Context) ([]BatchCost, error)
	MonthlyCost(ctx context.Context, since time.Time) ([]CostPoint, error)
}

// Service coordinates analytics query execution with the cache layer.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// fetch serves a view from the cache, building it with load on a miss. When
// the cache version cannot be read the view is built without caching.
func fetch[T any](ctx context.Context, s *Service, view string, load func(context.Context) (T, error)) (T, error) {
	var out T
	key, err := s.cache.BuildKey(ctx, view)
	if err != nil {
		s.cache.logger.Warn("analytics cache version", slog.String("view", view), slog.Any("error", err))
		return load(ctx)
	}
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}

// Dashboard returns the summary counts, running the queries in parallel.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	return fetch(ctx, s, "dashboard", func(ctx context.Context) (Dashboard, error) {
		var d Dashboard
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			items, err := s.repo.LowStock(gctx)
			d.LowStockItems = items
			d.LowStockCount = len(items)
			return err
		})
		g.Go(func() error {
			n, err := s.repo.CountPendingIndents(gctx)
			d.PendingPIs = n
			return err
		})
		g.Go(func() error {
			n, err := s.repo.CountOpenRequisitions(gctx)
			d.PendingMRS = n
			return err
		})
		g.Go(func() error {
			v, err := s.repo.InventoryValue(gctx)
			d.TotalInventoryValue = v.Round(2)
			return err
		})
		if err := g.Wait(); err != nil {
			return Dashboard{}, err
		}
		return d, nil
	})
}

func (s *Service) usage(ctx context.Context) ([]MaterialUsage, error) {
	return s.repo.Usage(ctx, s.now().UTC().AddDate(0, 0, -WindowDays))
}

// InventoryHealth classifies materials as LOW_STOCK, DEAD_STOCK or GOOD.
func (s *Service) InventoryHealth(ctx context.Context) (HealthReport, error) {
	return fetch(ctx, s, "inventory-health", func(ctx context.Context) (HealthReport, error) {
		usage, err := s.usage(ctx)
		if err != nil {
			return HealthReport{}, err
		}
		return BuildHealth(usage), nil
	})
}

// Forecast recommends reorder quantities.
func (s *Service) Forecast(ctx context.Context) ([]ForecastItem, error) {
	return fetch(ctx, s, "forecast", func(ctx context.Context) ([]ForecastItem, error) {
		usage, err := s.usage(ctx)
		if err != nil {
			return nil, err
		}
		return BuildForecast(usage), nil
	})
}

// ProcurementPerformance ranks suppliers by on-time delivery.
func (s *Service) ProcurementPerformance(ctx context.Context) (ProcurementPerformance, error) {
	return fetch(ctx, s, "procurement-performance", func(ctx context.Context) (ProcurementPerformance, error) {
		rows, err := s.repo.SupplierDeliveries(ctx)
		if err != nil {
			return ProcurementPerformance{}, err
		}
		return BuildPerformance(rows), nil
	})
}

// Efficiency reports MRS fulfilment with consumption and batch cost.
func (s *Service) Efficiency(ctx context.Context) (Efficiency, error) {
	return fetch(ctx, s, "efficiency", func(ctx context.Context) (Efficiency, error) {
		var e Efficiency
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			e.Requisitions, err = s.repo.RequisitionStats(gctx)
			return err
		})
		g.Go(func() (err error) {
			e.Consumption, err = s.repo.Consumption(gctx)
			return err
		})
		g.Go(func() (err error) {
			e.Batches, err = s.repo.BatchCosts(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return Efficiency{}, err
		}
		e.FulfilmentRate = e.Requisitions.FulfilmentRate()
		return e, nil
	})
}

// Cost reports the monthly inward and issue value trend.
func (s *Service) Cost(ctx context.Context) (CostReport, error) {
	return fetch(ctx, s, "cost", func(ctx context.Context) (CostReport, error) {
		now := s.now().UTC()
		since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(TrendMonths - 1), 0)
		var (
			points      []CostPoint
			consumption []Consumption
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			points, err = s.repo.MonthlyCost(gctx, since)
			return err
		})
		g.Go(func() (err error) {
			consumption, err = s.repo.Consumption(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return CostReport{}, err
		}
		return BuildCost(FillTrend(points, since, now), consumption), nil
	})
}

// Warm builds every cached view so the first reader after an invalidation
// does not pay for the queries.
func (s *Service) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := s.Dashboard(ctx); return err })
	g.Go(func() error { _, err := s.InventoryHealth(ctx); return err })
	g.Go(func() error { _, err := s.Forecast(ctx); return err })
	g.Go(func() error { _, err := s.ProcurementPerformance(ctx); return err })
	g.Go(func() error { _, err := s.Efficiency(ctx); return err })
	g.Go(func() error { _, err := s.Cost(ctx); return err })
	return g.Wait()
}
