// Package analytics derives read-only views over the stock ledger and the
// requisition and purchase workflows.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tintworks/dyeops/internal/suppliers"
)

// Policy constants. They are fixed, not configuration.
const (
	// WindowDays is the trailing consumption window.
	WindowDays = 30
	// SafetyBufferDays is the stock cover kept on hand beyond the horizon.
	SafetyBufferDays = 15
	// HorizonDays is the forward forecast horizon.
	HorizonDays = 7
	// LowCoverDays is the days-of-cover below which stock is LOW_STOCK.
	LowCoverDays = 15
	// TrendMonths is the length of the monthly cost trend.
	TrendMonths = 6
)

// Health classifies a material by consumption and cover.
type Health string

const (
	HealthLowStock  Health = "LOW_STOCK"
	HealthDeadStock Health = "DEAD_STOCK"
	HealthGood      Health = "GOOD"
)

// MaterialUsage is a material with its issue volume over the window.
type MaterialUsage struct {
	MaterialID   uuid.UUID       `json:"materialId"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	Quantity     float64         `json:"quantity"`
	MinStock     float64         `json:"minStock"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	SupplierName string          `json:"supplierName,omitempty"`
	Consumed     float64         `json:"consumed"`
}

// AvgDaily is the average daily consumption over the window.
func (u MaterialUsage) AvgDaily() float64 {
	return u.Consumed / WindowDays
}

// DaysOfCover returns how long current stock lasts at avgDaily, or false
// when nothing is being consumed.
func DaysOfCover(current, avgDaily float64) (float64, bool) {
	if avgDaily <= 0 {
		return 0, false
	}
	return current / avgDaily, true
}

// ClassifyHealth grades a material. Zero consumption is DEAD_STOCK whatever
// the quantity on hand.
func ClassifyHealth(current, avgDaily float64) Health {
	cover, ok := DaysOfCover(current, avgDaily)
	switch {
	case !ok:
		return HealthDeadStock
	case cover < LowCoverDays:
		return HealthLowStock
	default:
		return HealthGood
	}
}

// HealthItem is one row of the inventory health view.
type HealthItem struct {
	MaterialID    uuid.UUID       `json:"materialId"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	CurrentStock  float64         `json:"currentStock"`
	AvgDailyUsage float64         `json:"avgDailyUsage"`
	DaysOfCover   *float64        `json:"daysOfCover"`
	Status        Health          `json:"status"`
	StockValue    decimal.Decimal `json:"stockValue"`
}

// HealthReport groups health items with per-class counts.
type HealthReport struct {
	Items          []HealthItem    `json:"items"`
	LowStockCount  int             `json:"lowStockCount"`
	DeadStockCount int             `json:"deadStockCount"`
	GoodCount      int             `json:"goodCount"`
	DeadStockValue decimal.Decimal `json:"deadStockValue"`
}

// BuildHealth classifies every material. LOW_STOCK items sort first by
// ascending cover, then DEAD_STOCK by value, then GOOD by name.
func BuildHealth(usage []MaterialUsage) HealthReport {
	report := HealthReport{Items: make([]HealthItem, 0, len(usage)), DeadStockValue: decimal.Zero}
	for _, u := range usage {
		avg := u.AvgDaily()
		item := HealthItem{
			MaterialID:    u.MaterialID,
			Name:          u.Name,
			Category:      u.Category,
			Unit:          u.Unit,
			CurrentStock:  u.Quantity,
			AvgDailyUsage: round2(avg),
			Status:        ClassifyHealth(u.Quantity, avg),
			StockValue:    stockValue(u.Quantity, u.UnitCost),
		}
		if cover, ok := DaysOfCover(u.Quantity, avg); ok {
			c := round1(cover)
			item.DaysOfCover = &c
		}
		switch item.Status {
		case HealthLowStock:
			report.LowStockCount++
		case HealthDeadStock:
			report.DeadStockCount++
			report.DeadStockValue = report.DeadStockValue.Add(item.StockValue)
		default:
			report.GoodCount++
		}
		report.Items = append(report.Items, item)
	}
	rank := map[Health]int{HealthLowStock: 0, HealthDeadStock: 1, HealthGood: 2}
	sort.SliceStable(report.Items, func(i, j int) bool {
		a, b := report.Items[i], report.Items[j]
		if rank[a.Status] != rank[b.Status] {
			return rank[a.Status] < rank[b.Status]
		}
		switch a.Status {
		case HealthLowStock:
			return *a.DaysOfCover < *b.DaysOfCover
		case HealthDeadStock:
			return a.StockValue.GreaterThan(b.StockValue)
		}
		return a.Name < b.Name
	})
	return report
}

// ForecastItem is a reorder recommendation for one material.
type ForecastItem struct {
	MaterialID       uuid.UUID       `json:"materialId"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	SupplierName     string          `json:"supplierName,omitempty"`
	CurrentStock     float64         `json:"currentStock"`
	AvgDailyUsage    float64         `json:"avgDailyUsage"`
	ForecastUsage    float64         `json:"forecastUsage"`
	RequiredStock    float64         `json:"requiredStock"`
	SuggestedReorder float64         `json:"suggestedReorder"`
	EstimatedCost    decimal.Decimal `json:"estimatedCost"`
}

// RequiredStock is the stock needed to cover the horizon plus the buffer.
func RequiredStock(avgDaily float64) float64 {
	return avgDaily * (SafetyBufferDays + HorizonDays)
}

// SuggestedReorder never goes below zero.
func SuggestedReorder(avgDaily, current float64) float64 {
	return math.Max(0, RequiredStock(avgDaily)-current)
}

// BuildForecast recommends reorder quantities, largest first.
func BuildForecast(usage []MaterialUsage) []ForecastItem {
	out := make([]ForecastItem, 0, len(usage))
	for _, u := range usage {
		avg := u.AvgDaily()
		suggested := round2(SuggestedReorder(avg, u.Quantity))
		out = append(out, ForecastItem{
			MaterialID:       u.MaterialID,
			Name:             u.Name,
			Unit:             u.Unit,
			SupplierName:     u.SupplierName,
			CurrentStock:     u.Quantity,
			AvgDailyUsage:    round2(avg),
			ForecastUsage:    round2(avg * HorizonDays),
			RequiredStock:    round2(RequiredStock(avg)),
			SuggestedReorder: suggested,
			EstimatedCost:    stockValue(suggested, u.UnitCost),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuggestedReorder != out[j].SuggestedReorder {
			return out[i].SuggestedReorder > out[j].SuggestedReorder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SupplierDelivery is one supplier row joined to an optional completed indent.
type SupplierDelivery struct {
	SupplierID   uuid.UUID
	SupplierName string
	Rating       float64
	RatingCount  int
	Delivery     *suppliers.DeliveryRecord
}

// SupplierPerformance is a supplier's delivery metrics and running rating.
type SupplierPerformance struct {
	SupplierID   uuid.UUID         `json:"supplierId"`
	SupplierName string            `json:"supplierName"`
	Rating       float64           `json:"rating"`
	RatingCount  int               `json:"ratingCount"`
	Metrics      suppliers.Metrics `json:"metrics"`
}

// ProcurementPerformance is the supplier league table plus overall figures.
type ProcurementPerformance struct {
	Suppliers        []SupplierPerformance `json:"suppliers"`
	TotalCompleted   int                   `json:"totalCompletedPIs"`
	OnTimePercentage float64               `json:"onTimePercentage"`
	AvgDeliveryDays  float64               `json:"avgDeliveryTime"`
}

// BuildPerformance groups rows by supplier in input order and ranks suppliers
// by on-time percentage. Suppliers with no completed indents sort last.
func BuildPerformance(rows []SupplierDelivery) ProcurementPerformance {
	order := []uuid.UUID{}
	bySupplier := map[uuid.UUID]*SupplierPerformance{}
	deliveries := map[uuid.UUID][]suppliers.DeliveryRecord{}
	var all []suppliers.DeliveryRecord
	for _, row := range rows {
		if _, ok := bySupplier[row.SupplierID]; !ok {
			order = append(order, row.SupplierID)
			bySupplier[row.SupplierID] = &SupplierPerformance{
				SupplierID:   row.SupplierID,
				SupplierName: row.SupplierName,
				Rating:       row.Rating,
				RatingCount:  row.RatingCount,
			}
		}
		if row.Delivery != nil {
			deliveries[row.SupplierID] = append(deliveries[row.SupplierID], *row.Delivery)
			all = append(all, *row.Delivery)
		}
	}
	perf := ProcurementPerformance{Suppliers: make([]SupplierPerformance, 0, len(order))}
	for _, id := range order {
		sp := bySupplier[id]
		sp.Metrics, _ = suppliers.Summarise(deliveries[id])
		perf.Suppliers = append(perf.Suppliers, *sp)
	}
	sort.SliceStable(perf.Suppliers, func(i, j int) bool {
		a, b := perf.Suppliers[i].Metrics, perf.Suppliers[j].Metrics
		if (a.TotalCompleted == 0) != (b.TotalCompleted == 0) {
			return b.TotalCompleted == 0
		}
		return a.OnTimePercentage > b.OnTimePercentage
	})
	overall, _ := suppliers.Summarise(all)
	perf.TotalCompleted = overall.TotalCompleted
	perf.AvgDeliveryDays = overall.AvgDeliveryDays
	perf.OnTimePercentage = overall.OnTimePercentage
	if overall.TotalCompleted == 0 {
		perf.OnTimePercentage = 0
	}
	return perf
}

// Consumption is the issued volume and value of one material.
type Consumption struct {
	MaterialID    uuid.UUID       `json:"materialId"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	TotalQuantity float64         `json:"totalQuantity"`
	TotalCost     decimal.Decimal `json:"totalCost"`
}

// BatchCost is the value issued against one production batch.
type BatchCost struct {
	BatchID         string          `json:"batchId"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	ItemsCount      int             `json:"itemsCount"`
	LastTransaction time.Time       `json:"lastTransaction"`
}

// RequisitionStats summarise MRS fulfilment.
type RequisitionStats struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	PartiallyIssued   int     `json:"partiallyIssued"`
	Issued            int     `json:"issued"`
	Rejected          int     `json:"rejected"`
	QuantityRequested float64 `json:"quantityRequested"`
	QuantityIssued    float64 `json:"quantityIssued"`
	AvgHoursToIssue   float64 `json:"avgHoursToIssue"`
}

// FulfilmentRate is the issued share of requested quantity, in percent.
func (s RequisitionStats) FulfilmentRate() float64 {
	if s.QuantityRequested <= 0 {
		return 0
	}
	return round1(s.QuantityIssued / s.QuantityRequested * 100)
}

// Efficiency is the MRS fulfilment view.
type Efficiency struct {
	Requisitions   RequisitionStats `json:"requisitions"`
	FulfilmentRate float64          `json:"fulfilmentRate"`
	Consumption    []Consumption    `json:"consumption"`
	Batches        []BatchCost      `json:"batches"`
}

// CostPoint is one month of stock movement value.
type CostPoint struct {
	Month      string          `json:"month"`
	InwardCost decimal.Decimal `json:"inwardCost"`
	IssueCost  decimal.Decimal `json:"issueCost"`
}

// CostReport is the monthly inward cost trend and consumption value.
type CostReport struct {
	Trend           []CostPoint     `json:"trend"`
	TotalInwardCost decimal.Decimal `json:"totalInwardCost"`
	TotalIssueCost  decimal.Decimal `json:"totalIssueCost"`
	Consumption     []Consumption   `json:"consumption"`
}

// FillTrend returns one point per month from the month of since through the
// month of now, taking values from points where present.
func FillTrend(points []CostPoint, since, now time.Time) []CostPoint {
	byMonth := make(map[string]CostPoint, len(points))
	for _, p := range points {
		byMonth[p.Month] = p
	}
	var out []CostPoint
	start := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		key := m.Format("2006-01")
		p, ok := byMonth[key]
		if !ok {
			p = CostPoint{Month: key, InwardCost: decimal.Zero, IssueCost: decimal.Zero}
		}
		out = append(out, p)
	}
	return out
}

// BuildCost totals a filled trend.
func BuildCost(trend []CostPoint, consumption []Consumption) CostReport {
	report := CostReport{Trend: trend, TotalInwardCost: decimal.Zero, TotalIssueCost: decimal.Zero, Consumption: consumption}
	for _, p := range trend {
		report.TotalInwardCost = report.TotalInwardCost.Add(p.InwardCost)
		report.TotalIssueCost = report.TotalIssueCost.Add(p.IssueCost)
	}
	return report
}

// LowStockItem is a material at or below its minimum.
type LowStockItem struct {
	MaterialID uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Quantity   float64   `json:"quantity"`
	MinStock   float64   `json:"minStock"`
	Unit       string    `json:"unit"`
}

// Dashboard is the summary shown to every role.
type Dashboard struct {
	LowStockCount       int             `json:"lowStockCount"`
	LowStockItems       []LowStockItem  `json:"lowStockItems"`
	PendingPIs          int             `json:"pendingPIs"`
	PendingMRS          int             `json:"pendingMRS"`
	TotalInventoryValue decimal.Decimal `json:"totalInventoryValue"`
}

func stockValue(qty float64, unitCost decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(unitCost).Round(2)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
