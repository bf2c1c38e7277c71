package pricing

import (
	"fmt"
	"math"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
)

// Concrete wall constants, in millimeters. Every wall gets the base
// deepening on top of the user-entered extra depth; the foundation slab has
// a fixed thickness.
const (
	wallBaseDeepeningMM = 150
	foundationSlabMM    = 100
	rebarKgPerM3OfWall  = 100
	mm2PerM2            = 1e6
)

// requireParams pulls named parameters out of params, failing with a
// ValidationError when one is absent or not strictly positive.
func requireParams(item *catalog.Item, params map[string]float64, keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, key := range keys {
		v, ok := params[key]
		if !ok {
			return nil, &ValidationError{Item: item.Name, Msg: fmt.Sprintf("parameter %q is required", key)}
		}
		if v <= 0 {
			return nil, &ValidationError{Item: item.Name, Msg: fmt.Sprintf("parameter %q must be strictly positive, got %v", key, v)}
		}
		out[i] = v
	}
	return out, nil
}

// calcTunnel prices a cylindrical tunnel assembled from rectangular sheet
// stock. Sheets are laid in rows along the tunnel's length (rows cover the
// length with the stock width) and columns around the circumference; a
// partial sheet on either axis costs one extra cut per sheet crossing it,
// and sheets are joined by welds along both axes.
//
// The sheet stock item must carry width_mm and length_mm attributes; its
// absence is a hard failure. Missing cutting or welding work entries
// degrade to a zero price for that operation.
func (c *Calculator) calcTunnel(item *catalog.Item, params map[string]float64, qty float64) (*Result, error) {
	calc := item.Calculation

	vals, err := requireParams(item, params, "radius_mm", "length_mm")
	if err != nil {
		return nil, err
	}
	radius, length := vals[0], vals[1]

	sheet, ok := c.store.Item(calc.SheetItem, catalog.SectionMaterials)
	if !ok {
		return nil, &LookupError{Item: item.Name, Ref: calc.SheetItem}
	}
	sheetWidth := sheet.Attributes["width_mm"]
	sheetLength := sheet.Attributes["length_mm"]
	if sheetWidth <= 0 || sheetLength <= 0 {
		return nil, &ConfigError{Item: item.Name, Msg: fmt.Sprintf("sheet stock %q has no width_mm/length_mm attributes", sheet.Name)}
	}

	cutPrice := workPrice(c.store, calc.CuttingWork)
	weldPrice := workPrice(c.store, calc.WeldingWork)

	circumference := 2 * math.Pi * radius
	rows := math.Ceil(length / sheetWidth)         // sheets needed along the length
	cols := math.Ceil(circumference / sheetLength) // sheets needed around the circumference
	sheets := rows * cols

	// A partial sheet on an axis means every sheet crossing that axis
	// needs one trimming cut.
	var cuts float64
	if math.Mod(length, sheetWidth) != 0 {
		cuts += cols
	}
	if math.Mod(circumference, sheetLength) != 0 {
		cuts += rows
	}

	// Closing welds around each ring, plus joining welds between rings.
	welds := (cols-1)*rows + (rows - 1)

	sheetCost := sheets * sheet.Price
	cutCost := cuts * cutPrice
	weldCost := welds * weldPrice
	perUnit := sheetCost + cutCost + weldCost

	r := &Result{Breakdown: map[string]estimate.Component{
		"sheets": {Quantity: sheets, Cost: sheetCost},
		"cuts":   {Quantity: cuts, Cost: cutCost},
		"welds":  {Quantity: welds, Cost: weldCost},
	}}
	return scale(r, perUnit, qty), nil
}

// workPrice resolves a labor entry's unit price, or 0 when the entry is
// absent or unnamed.
func workPrice(store *catalog.Store, name string) float64 {
	if name == "" {
		return 0
	}
	work, ok := store.Item(name, catalog.SectionWorks)
	if !ok {
		return 0
	}
	return work.Price
}

// calcConcreteWall prices a poured concrete wall: wall volume including the
// deepened base, a fixed-thickness foundation slab, rebar by wall volume,
// side-surface formwork, and pouring labor. All four input dimensions must
// be strictly positive.
func (c *Calculator) calcConcreteWall(item *catalog.Item, params map[string]float64, qty float64) (*Result, error) {
	calc := item.Calculation

	vals, err := requireParams(item, params, "length_mm", "width_mm", "height_mm", "deepening_mm")
	if err != nil {
		return nil, err
	}
	length, width, height, deepening := vals[0], vals[1], vals[2], vals[3]

	totalDeepening := wallBaseDeepeningMM + deepening
	wallHeight := height + totalDeepening

	wallVolume := length * width * wallHeight / mm3PerM3
	slabVolume := length * width * foundationSlabMM / mm3PerM3
	formworkArea := 2 * (length + width) * wallHeight / mm2PerM2

	wallConcrete := wallVolume * calc.ConcretePerM3
	slabConcrete := slabVolume * calc.ConcretePerM3
	rebarKg := wallVolume * rebarKgPerM3OfWall
	rebar := rebarKg * calc.RebarPerKg
	formwork := formworkArea * calc.FormworkPerM2
	pouring := (wallVolume + slabVolume) * calc.PouringPerM3

	perUnit := wallConcrete + slabConcrete + rebar + formwork + pouring

	r := &Result{
		Volume: wallVolume + slabVolume,
		Breakdown: map[string]estimate.Component{
			"wall_concrete": {Quantity: wallVolume, Cost: wallConcrete},
			"slab_concrete": {Quantity: slabVolume, Cost: slabConcrete},
			"rebar":         {Quantity: rebarKg, Cost: rebar},
			"formwork":      {Quantity: formworkArea, Cost: formwork},
			"pouring":       {Quantity: wallVolume + slabVolume, Cost: pouring},
		},
	}
	return scale(r, perUnit, qty), nil
}
