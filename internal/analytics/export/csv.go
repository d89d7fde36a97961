package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/tintworks/dyeops/internal/analytics"
)

var forecastHeader = []string{
	"Material", "Unit", "Supplier", "Current Stock", "Avg Daily Usage",
	"7-Day Forecast", "Required Stock", "Suggested Reorder", "Estimated Cost",
}

func forecastRecord(it analytics.ForecastItem) []string {
	return []string{
		it.Name,
		it.Unit,
		it.SupplierName,
		formatFloat(it.CurrentStock),
		formatFloat(it.AvgDailyUsage),
		formatFloat(it.ForecastUsage),
		formatFloat(it.RequiredStock),
		formatFloat(it.SuggestedReorder),
		it.EstimatedCost.StringFixed(2),
	}
}

// WriteForecastCSV emits reorder recommendations as CSV.
func WriteForecastCSV(w io.Writer, items []analytics.ForecastItem) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(forecastHeader); err != nil {
		return err
	}
	for _, it := range items {
		if err := writer.Write(forecastRecord(it)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
