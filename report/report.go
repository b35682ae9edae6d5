package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"storedesk/store"
)

const (
	OrdersSheet = "Orders"
	DailySheet  = "Daily"
)

// ContentType is the MIME type of the workbooks this package writes.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteOrders writes orders as a single-sheet workbook.
func WriteOrders(w io.Writer, orders []*store.Order) error {
	header := []any{"Order ID", "Customer", "Email", "Status", "Total", "Shipping address", "Created (UTC)", "Updated (UTC)"}
	rows := make([][]any, len(orders))
	for i, o := range orders {
		rows[i] = []any{
			o.ID, o.CustomerName, o.CustomerEmail, o.Status, o.TotalAmount, o.ShippingAddress,
			o.CreatedAt.UTC().Format("2006-01-02 15:04:05"), o.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
	}
	return writeSheet(w, OrdersSheet, header, rows, 4)
}

// WriteDailyStats writes the daily statistics table.
func WriteDailyStats(w io.Writer, stats []store.DailyStat) error {
	header := []any{"Date", "Total sales", "Total orders", "New customers", "Page views"}
	rows := make([][]any, len(stats))
	for i, s := range stats {
		rows[i] = []any{s.Date, s.TotalSales, s.TotalOrders, s.NewCustomers, s.PageViews}
	}
	return writeSheet(w, DailySheet, header, rows, 1)
}

// writeSheet renders header and rows; moneyCol is the zero-based column
// formatted as currency.
func writeSheet(w io.Writer, sheet string, header []any, rows [][]any, moneyCol int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("report: name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E7FF"}},
	})
	if err != nil {
		return fmt.Errorf("report: header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("report: money style: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("report: header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("report: style header: %w", err)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("report: row %d: %w", i+1, err)
		}
	}
	if len(rows) > 0 {
		top, _ := excelize.CoordinatesToCellName(moneyCol+1, 2)
		bottom, _ := excelize.CoordinatesToCellName(moneyCol+1, len(rows)+1)
		if err := f.SetCellStyle(sheet, top, bottom, money); err != nil {
			return fmt.Errorf("report: style money: %w", err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("report: widths: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("report: freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}
