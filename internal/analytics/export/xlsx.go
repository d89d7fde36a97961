package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tintworks/dyeops/internal/analytics"
)

// ForecastSheet names the worksheet holding the forecast rows.
const ForecastSheet = "Forecast"

// WriteForecastXLSX renders reorder recommendations as a workbook with a
// title row, a header row and one row per material.
func WriteForecastXLSX(w io.Writer, items []analytics.ForecastItem, generated time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), ForecastSheet); err != nil {
		return err
	}
	title := fmt.Sprintf("Reorder forecast (%d-day horizon, %d-day buffer) generated %s",
		analytics.HorizonDays, analytics.SafetyBufferDays, generated.UTC().Format("2006-01-02 15:04 MST"))
	if err := f.SetCellValue(ForecastSheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(ForecastSheet, "A2", &forecastHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ForecastSheet, "A2", "I2", bold); err != nil {
		return err
	}
	for i, it := range items {
		row := []any{
			it.Name,
			it.Unit,
			it.SupplierName,
			it.CurrentStock,
			it.AvgDailyUsage,
			it.ForecastUsage,
			it.RequiredStock,
			it.SuggestedReorder,
			it.EstimatedCost.InexactFloat64(),
		}
		if err := f.SetSheetRow(ForecastSheet, fmt.Sprintf("A%d", i+3), &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(ForecastSheet, "A", "C", 24); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
