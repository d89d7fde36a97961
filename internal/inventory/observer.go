package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/rbac"
)

// Observer is told about stock changes after they commit.
type Observer interface {
	StockChanged(ctx context.Context, changes []StockChange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, changes []StockChange)

// StockChanged calls f.
func (f ObserverFunc) StockChanged(ctx context.Context, changes []StockChange) {
	f(ctx, changes)
}

// Observers fans a change out to every member.
type Observers []Observer

// StockChanged notifies each non-nil observer in order.
func (o Observers) StockChanged(ctx context.Context, changes []StockChange) {
	if len(changes) == 0 {
		return
	}
	for _, obs := range o {
		if obs != nil {
			obs.StockChanged(ctx, changes)
		}
	}
}

// RoleNotifier delivers a notification to every user holding a role.
type RoleNotifier interface {
	NotifyRole(ctx context.Context, role rbac.Role, msg notifications.Message) error
}

// LowStockAlerter warns store managers when a movement breaches minimum stock.
type LowStockAlerter struct {
	Notifier RoleNotifier
	Logger   *slog.Logger
}

// StockChanged implements Observer.
func (a LowStockAlerter) StockChanged(ctx context.Context, changes []StockChange) {
	low := NewlyLow(changes)
	if len(low) == 0 || a.Notifier == nil {
		return
	}
	names := make([]string, 0, len(low))
	for _, m := range low {
		names = append(names, fmt.Sprintf("%s (%g %s)", m.Name, m.Quantity, m.Unit))
	}
	msg := notifications.Message{
		Text: "Low stock: " + strings.Join(names, ", "),
		Type: notifications.TypeWarning,
		Link: "/inventory",
	}
	if err := a.Notifier.NotifyRole(ctx, rbac.RoleStoreManager, msg); err != nil && a.Logger != nil {
		a.Logger.Warn("low stock alert", slog.Any("error", err))
	}
}
