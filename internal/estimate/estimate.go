// Package estimate holds the value types of an in-progress estimate:
// sheets, quantities and finalized line items. The wizard mutates these and
// the renderers consume them; the types themselves carry no behavior beyond
// totals.
package estimate

import (
	"math"
	"strconv"
	"strings"
)

// FormatNumber renders a value for chat and document output: rounded to two
// decimals, trailing zero fraction dropped, thousands separated by spaces.
func FormatNumber(v float64) string {
	rounded := math.Round(v*100) / 100
	s := strconv.FormatFloat(rounded, 'f', -1, 64)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(digit)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Component is one resolved piece of a line item's cost breakdown: a
// sub-material, sub-labor, or intermediate geometric quantity.
type Component struct {
	Quantity float64
	Cost     float64
}

// LineItem is one priced row of a sheet. Name, Category and Unit are
// snapshots taken from the catalog at selection time; a later catalog
// reload does not rewrite existing rows.
type LineItem struct {
	Name     string
	Category string
	Unit     string

	// Params holds the geometric inputs the wizard collected, keyed by
	// parameter key (length_mm, radius_mm, ...).
	Params map[string]float64

	Quantity     float64
	PricePerUnit float64
	TotalCost    float64

	// Volume is the computed material volume in m³ when the calculation
	// produced one, 0 otherwise. Aggregate pricing formulas read it.
	Volume float64

	Breakdown map[string]Component
}

// Estimate is one user's full order: named sheets in entry order, a
// physical-instance multiplier per sheet, and the line items per sheet.
type Estimate struct {
	Sheets     []string
	Quantities map[string]int
	Products   map[string][]LineItem
}

// New returns an empty estimate.
func New() *Estimate {
	return &Estimate{
		Quantities: make(map[string]int),
		Products:   make(map[string][]LineItem),
	}
}

// Add appends a finalized line item to a sheet, preserving entry order.
func (e *Estimate) Add(sheet string, item LineItem) {
	e.Products[sheet] = append(e.Products[sheet], item)
}

// MaterialVolume sums stored volume × quantity over all line items whose
// category satisfies isMaterial, across every sheet in order.
func (e *Estimate) MaterialVolume(isMaterial func(category string) bool) float64 {
	var sum float64
	for _, sheet := range e.Sheets {
		for _, item := range e.Products[sheet] {
			if isMaterial(item.Category) {
				sum += item.Volume * item.Quantity
			}
		}
	}
	return sum
}

// SheetTotal is the summed line-item cost of one sheet, for a single
// physical instance.
func (e *Estimate) SheetTotal(sheet string) float64 {
	var sum float64
	for _, item := range e.Products[sheet] {
		sum += item.TotalCost
	}
	return sum
}

// GrandTotal is the order total: each sheet's total multiplied by its
// instance count.
func (e *Estimate) GrandTotal() float64 {
	var sum float64
	for _, sheet := range e.Sheets {
		qty := e.Quantities[sheet]
		if qty == 0 {
			qty = 1
		}
		sum += e.SheetTotal(sheet) * float64(qty)
	}
	return sum
}

// ItemCount is the number of finalized line items across all sheets.
func (e *Estimate) ItemCount() int {
	n := 0
	for _, items := range e.Products {
		n += len(items)
	}
	return n
}
