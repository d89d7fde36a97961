package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ABCClass ranks a material by its share of consumption value.
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
)

const (
	// ABCWindow is the trailing period of ISSUE transactions considered.
	ABCWindow = 365 * 24 * time.Hour
	abcACutoff = 0.80
	abcBCutoff = 0.95
)

// Consumption aggregates issued quantity and value for one material.
type Consumption struct {
	MaterialID uuid.UUID
	Quantity   float64
	Value      decimal.Decimal
}

// ABCEntry is one row of the ABC report.
type ABCEntry struct {
	MaterialID       uuid.UUID       `json:"materialId"`
	Name             string          `json:"name"`
	Code             string          `json:"code,omitempty"`
	Category         Category        `json:"category"`
	Unit             string          `json:"unit"`
	ConsumedQuantity float64         `json:"consumedQuantity"`
	ConsumptionValue decimal.Decimal `json:"consumptionValue"`
	SharePercent     float64         `json:"sharePercent"`
	CumulativeShare  float64         `json:"cumulativePercent"`
	Class            ABCClass        `json:"class"`
}

// ClassifyABC ranks materials by consumption value. A material is class A
// while the cumulative share before it is under 80%, B under 95%, otherwise
// C. Materials with no consumption are always C.
func ClassifyABC(materials []Material, usage map[uuid.UUID]Consumption) []ABCEntry {
	entries := make([]ABCEntry, 0, len(materials))
	total := decimal.Zero
	for _, m := range materials {
		c := usage[m.ID]
		total = total.Add(c.Value)
		entries = append(entries, ABCEntry{
			MaterialID:       m.ID,
			Name:             m.Name,
			Code:             m.Code,
			Category:         m.Category,
			Unit:             m.Unit,
			ConsumedQuantity: c.Quantity,
			ConsumptionValue: c.Value,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := entries[i].ConsumptionValue.Cmp(entries[j].ConsumptionValue); cmp != 0 {
			return cmp > 0
		}
		return entries[i].Name < entries[j].Name
	})

	cumulative := decimal.Zero
	for i := range entries {
		e := &entries[i]
		if !total.IsPositive() || !e.ConsumptionValue.IsPositive() {
			e.Class = ClassC
			e.CumulativeShare = cumulativePercent(cumulative, total)
			continue
		}
		prior, _ := cumulative.Div(total).Float64()
		switch {
		case prior < abcACutoff:
			e.Class = ClassA
		case prior < abcBCutoff:
			e.Class = ClassB
		default:
			e.Class = ClassC
		}
		e.SharePercent, _ = e.ConsumptionValue.Div(total).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		cumulative = cumulative.Add(e.ConsumptionValue)
		e.CumulativeShare = cumulativePercent(cumulative, total)
	}
	return entries
}

func cumulativePercent(cumulative, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	v, _ := cumulative.Div(total).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return v
}
