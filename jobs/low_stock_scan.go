package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/tintworks/dyeops/internal/inventory"
	jobmetrics "github.com/tintworks/dyeops/internal/jobs"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/rbac"
)

// maxListedMaterials caps the names spelled out in one alert.
const maxListedMaterials = 5

// LowStockLister returns materials at or below minimum stock.
type LowStockLister interface {
	ListLowStock(ctx context.Context) ([]inventory.Material, error)
}

// LowStockScanJob sends store managers a digest of low materials.
type LowStockScanJob struct {
	Materials LowStockLister
	Notifier  inventory.RoleNotifier
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskLowStockScan.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Materials == nil || j.Notifier == nil {
		return errors.New("low stock scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskLowStockScan)
	low, err := j.Materials.ListLowStock(ctx)
	if err != nil {
		logger.Error("list low stock", slog.Any("error", err))
		return err
	}
	if len(low) == 0 {
		logger.Info("no materials below minimum")
		return nil
	}
	msg := notifications.Message{Text: LowStockDigest(low), Type: notifications.TypeWarning, Link: "/inventory"}
	if err := j.Notifier.NotifyRole(ctx, rbac.RoleStoreManager, msg); err != nil {
		logger.Error("notify store managers", slog.Any("error", err))
		return err
	}
	j.Metrics.AddLowStockAlerts(len(low))
	logger.Info("low stock digest sent", slog.Int("materials", len(low)))
	return nil
}

// LowStockDigest summarises low materials, most depleted first as listed.
func LowStockDigest(low []inventory.Material) string {
	names := make([]string, 0, maxListedMaterials)
	for i, m := range low {
		if i == maxListedMaterials {
			break
		}
		names = append(names, fmt.Sprintf("%s (%g/%g %s)", m.Name, m.Quantity, m.MinStock, m.Unit))
	}
	text := fmt.Sprintf("%d material(s) at or below minimum stock: %s", len(low), strings.Join(names, ", "))
	if extra := len(low) - len(names); extra > 0 {
		text += fmt.Sprintf(" and %d more", extra)
	}
	return text
}

func jobLogger(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}
