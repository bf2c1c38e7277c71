package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/velikov/smetabot/internal/estimate"
	"github.com/xuri/excelize/v2"
)

// Column layout of an estimate sheet.
const (
	colIndex    = "A"
	colName     = "B"
	colParams   = "C"
	colQuantity = "D"
	colPrice    = "E"
	colTotal    = "F"
)

// styleSet holds the style IDs used across every sheet of one workbook.
type styleSet struct {
	title  int
	header int
	cell   int
	total  int
}

func newStyleSet(f *excelize.File) (*styleSet, error) {
	thin := []excelize.Border{
		{Type: "left", Style: 1, Color: "000000"},
		{Type: "right", Style: 1, Color: "000000"},
		{Type: "top", Style: 1, Color: "000000"},
		{Type: "bottom", Style: 1, Color: "000000"},
	}

	title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"A3BFFA"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"D3D3D3"}, Pattern: 1},
		Border:    thin,
	})
	if err != nil {
		return nil, err
	}
	cell, err := f.NewStyle(&excelize.Style{Border: thin})
	if err != nil {
		return nil, err
	}
	total, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"A3BFFA"}, Pattern: 1},
		Border: thin,
	})
	if err != nil {
		return nil, err
	}
	return &styleSet{title: title, header: header, cell: cell, total: total}, nil
}

// buildWorkbook writes one estimate sheet per order sheet plus a summary.
func buildWorkbook(f *excelize.File, est *estimate.Estimate) error {
	styles, err := newStyleSet(f)
	if err != nil {
		return fmt.Errorf("render: workbook styles: %w", err)
	}

	totalRows := make(map[string]int, len(est.Sheets))
	for _, sheet := range est.Sheets {
		row, err := writeSheet(f, styles, sheet, est)
		if err != nil {
			return fmt.Errorf("render: sheet %q: %w", sheet, err)
		}
		totalRows[sheet] = row
	}
	if err := writeSummary(f, styles, est, totalRows); err != nil {
		return fmt.Errorf("render: summary: %w", err)
	}

	// The workbook starts with a default sheet we never use.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("render: drop default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(est.Sheets[0])
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

// writeSheet renders one order sheet and returns the row holding the
// sheet total (the per-unit cost multiplied by the instance count).
func writeSheet(f *excelize.File, styles *styleSet, sheet string, est *estimate.Estimate) (int, error) {
	if _, err := f.NewSheet(sheet); err != nil {
		return 0, err
	}

	if err := f.SetCellValue(sheet, colIndex+"1", sheet); err != nil {
		return 0, err
	}
	if err := f.MergeCell(sheet, colIndex+"1", colTotal+"1"); err != nil {
		return 0, err
	}
	if err := f.SetCellStyle(sheet, colIndex+"1", colTotal+"1", styles.title); err != nil {
		return 0, err
	}

	headers := []string{"#", "Item", "Parameters", "Qty", "Price per unit", "Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return 0, err
		}
	}
	if err := f.SetCellStyle(sheet, colIndex+"2", colTotal+"2", styles.header); err != nil {
		return 0, err
	}

	row := 3
	var itemRows []string // F-column cells of main item rows, for the total
	for i, item := range est.Products[sheet] {
		r := fmt.Sprint(row)
		f.SetCellValue(sheet, colIndex+r, i+1)
		f.SetCellValue(sheet, colName+r, item.Name)
		f.SetCellValue(sheet, colParams+r, formatParams(item.Params))
		f.SetCellValue(sheet, colQuantity+r, item.Quantity)
		f.SetCellValue(sheet, colPrice+r, item.PricePerUnit)
		if err := f.SetCellFormula(sheet, colTotal+r, fmt.Sprintf("%s%d*%s%d", colQuantity, row, colPrice, row)); err != nil {
			return 0, err
		}
		itemRows = append(itemRows, colTotal+r)
		row++

		// Composite items list their resolved components under the
		// parent row, names prefixed like the source estimate.
		for _, name := range sortedComponents(item.Breakdown) {
			comp := item.Breakdown[name]
			r := fmt.Sprint(row)
			f.SetCellValue(sheet, colName+r, " - "+name)
			f.SetCellValue(sheet, colQuantity+r, comp.Quantity)
			f.SetCellValue(sheet, colTotal+r, comp.Cost)
			row++
		}
	}
	if row > 3 {
		if err := f.SetCellStyle(sheet, colIndex+"3", colTotal+fmt.Sprint(row-1), styles.cell); err != nil {
			return 0, err
		}
	}

	// Per-unit subtotal, instance count, and the sheet total.
	perUnitRow := row
	f.SetCellValue(sheet, colName+fmt.Sprint(row), "Cost per unit")
	if len(itemRows) > 0 {
		if err := f.SetCellFormula(sheet, colTotal+fmt.Sprint(row), "SUM("+strings.Join(itemRows, ",")+")"); err != nil {
			return 0, err
		}
	} else {
		f.SetCellValue(sheet, colTotal+fmt.Sprint(row), 0)
	}
	row++

	qty := est.Quantities[sheet]
	if qty == 0 {
		qty = 1
	}
	f.SetCellValue(sheet, colName+fmt.Sprint(row), "Units")
	f.SetCellValue(sheet, colTotal+fmt.Sprint(row), qty)
	row++

	totalRow := row
	f.SetCellValue(sheet, colName+fmt.Sprint(row), "SHEET TOTAL")
	if err := f.SetCellFormula(sheet, colTotal+fmt.Sprint(row), fmt.Sprintf("%s%d*%s%d", colTotal, perUnitRow, colTotal, perUnitRow+1)); err != nil {
		return 0, err
	}
	for r := perUnitRow; r <= totalRow; r++ {
		if err := f.SetCellStyle(sheet, colIndex+fmt.Sprint(r), colTotal+fmt.Sprint(r), styles.total); err != nil {
			return 0, err
		}
	}

	f.SetColWidth(sheet, "A", "A", 6)
	f.SetColWidth(sheet, "B", "C", 32)
	f.SetColWidth(sheet, "D", "F", 14)

	return totalRow, nil
}

// summarySheet is the name of the cross-sheet totals page.
const summarySheet = "Summary"

func writeSummary(f *excelize.File, styles *styleSet, est *estimate.Estimate, totalRows map[string]int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	f.SetCellValue(summarySheet, "A1", "Estimate summary")
	if err := f.MergeCell(summarySheet, "A1", "C1"); err != nil {
		return err
	}
	f.SetCellStyle(summarySheet, "A1", "C1", styles.title)

	for i, h := range []string{"Sheet", "Units", "Total"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(summarySheet, cell, h)
	}
	f.SetCellStyle(summarySheet, "A2", "C2", styles.header)

	row := 3
	for _, sheet := range est.Sheets {
		qty := est.Quantities[sheet]
		if qty == 0 {
			qty = 1
		}
		f.SetCellValue(summarySheet, "A"+fmt.Sprint(row), sheet)
		f.SetCellValue(summarySheet, "B"+fmt.Sprint(row), qty)
		ref := fmt.Sprintf("'%s'!%s%d", sheet, colTotal, totalRows[sheet])
		if err := f.SetCellFormula(summarySheet, "C"+fmt.Sprint(row), ref); err != nil {
			return err
		}
		row++
	}
	f.SetCellStyle(summarySheet, "A3", "C"+fmt.Sprint(row-1), styles.cell)

	f.SetCellValue(summarySheet, "B"+fmt.Sprint(row), "GRAND TOTAL")
	if err := f.SetCellFormula(summarySheet, "C"+fmt.Sprint(row), fmt.Sprintf("SUM(C3:C%d)", row-1)); err != nil {
		return err
	}
	f.SetCellStyle(summarySheet, "A"+fmt.Sprint(row), "C"+fmt.Sprint(row), styles.total)

	f.SetColWidth(summarySheet, "A", "A", 32)
	f.SetColWidth(summarySheet, "B", "C", 14)
	return nil
}

// formatParams renders collected parameters as "key=value" pairs in key order.
func formatParams(params map[string]float64) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, estimate.FormatNumber(params[k])))
	}
	return strings.Join(parts, ", ")
}

func sortedComponents(breakdown map[string]estimate.Component) []string {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
