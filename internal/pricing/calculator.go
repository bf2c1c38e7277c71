// Package pricing maps a catalog item, its collected parameters and a
// quantity to a total cost with a breakdown of intermediate quantities.
// Every variant computes the cost of one unit and scales by quantity, so
// cost is exactly linear in quantity by construction.
package pricing

import (
	"fmt"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
	"github.com/velikov/smetabot/internal/formula"
)

// maxDepth caps composite-item recursion. Catalogs deeper than this are
// treated as misconfigured.
const maxDepth = 16

// mm3PerM3 converts cubic millimeters to cubic meters. Volume formulas work
// in linear millimeters and yield mm³.
const mm3PerM3 = 1e9

// Env carries session-derived aggregate inputs available to price formulas.
type Env struct {
	// SumMaterialVolume is Σ stored volume × quantity over the session's
	// previously entered material-category line items, in m³.
	SumMaterialVolume float64
}

// Result is a completed calculation.
type Result struct {
	TotalCost    float64
	PricePerUnit float64

	// Volume is the computed material volume of ONE unit, in m³, when the
	// variant produces one. Callers multiply by their own quantity when
	// aggregating.
	Volume float64

	Breakdown map[string]estimate.Component
}

// Calculator prices catalog items. It is stateless apart from the catalog
// reference and safe for concurrent use.
type Calculator struct {
	store *catalog.Store
}

// New creates a Calculator over the given catalog.
func New(store *catalog.Store) *Calculator {
	return &Calculator{store: store}
}

// Calculate prices one item. params holds the collected geometric inputs
// keyed by parameter key; qty is the requested count (≥ 0).
func (c *Calculator) Calculate(item *catalog.Item, params map[string]float64, qty float64, env Env) (*Result, error) {
	if qty < 0 {
		return nil, &ValidationError{Item: item.Name, Msg: fmt.Sprintf("quantity must not be negative, got %v", qty)}
	}
	return c.calculate(item, params, qty, env, map[string]bool{}, 0)
}

func (c *Calculator) calculate(item *catalog.Item, params map[string]float64, qty float64, env Env, visited map[string]bool, depth int) (*Result, error) {
	if depth > maxDepth {
		return nil, &ConfigError{Item: item.Name, Msg: fmt.Sprintf("component nesting exceeds %d levels", maxDepth)}
	}

	// Items without a calculation block are flat-priced. This keeps
	// partially-described catalog entries usable.
	if item.Calculation == nil {
		return scale(&Result{PricePerUnit: item.Price}, item.Price, qty), nil
	}

	calc := item.Calculation
	switch calc.Type {
	case catalog.CalcBasePrice:
		price := calc.BasePrice
		if price == 0 {
			price = item.Price
		}
		return scale(&Result{PricePerUnit: price}, price, qty), nil
	case catalog.CalcVolume:
		return c.calcVolume(item, params, qty)
	case catalog.CalcComplex:
		return c.calcComplex(item, params, qty, env, visited, depth)
	case catalog.CalcPriceFormula:
		return c.calcPriceFormula(item, params, qty, env)
	case catalog.CalcTunnel:
		return c.calcTunnel(item, params, qty)
	case catalog.CalcConcreteWall:
		return c.calcConcreteWall(item, params, qty)
	}
	return nil, &ConfigError{Item: item.Name, Msg: fmt.Sprintf("unknown calculation variant %q", calc.Type)}
}

// scale finishes a per-unit result: total and breakdown are multiplied by
// qty, per-unit values (price, volume) stay as computed.
func scale(r *Result, perUnit float64, qty float64) *Result {
	r.PricePerUnit = perUnit
	r.TotalCost = perUnit * qty
	for name, comp := range r.Breakdown {
		comp.Quantity *= qty
		comp.Cost *= qty
		r.Breakdown[name] = comp
	}
	return r
}

// calcVolume prices by geometric volume: the formula yields mm³ over the
// item parameters, converted to m³, times a cost per m³ (itself a number or
// a formula) and an optional retail markup.
func (c *Calculator) calcVolume(item *catalog.Item, params map[string]float64, qty float64) (*Result, error) {
	calc := item.Calculation
	if calc.VolumeFormula == "" {
		return nil, &ConfigError{Item: item.Name, Msg: "volume calculation has no volume_formula"}
	}
	if calc.CostPerM3 == "" {
		return nil, &ConfigError{Item: item.Name, Msg: "volume calculation has no cost_per_m3"}
	}
	volMM3, err := formula.Eval(calc.VolumeFormula, params)
	if err != nil {
		return nil, err
	}
	volume := volMM3 / mm3PerM3

	costPerM3, err := formula.Eval(calc.CostPerM3, params)
	if err != nil {
		return nil, err
	}

	markup := calc.RetailMarkup
	if markup == 0 {
		markup = 1
	}

	perUnit := volume * costPerM3 * markup
	r := &Result{Volume: volume}
	return scale(r, perUnit, qty), nil
}

// calcComplex prices a bill of materials: each declared component resolves
// in the catalog, gets its own quantity (fixed per parent unit or a formula
// over the parent parameters) and is priced recursively. The parent total
// is the exact sum of component costs.
func (c *Calculator) calcComplex(item *catalog.Item, params map[string]float64, qty float64, env Env, visited map[string]bool, depth int) (*Result, error) {
	calc := item.Calculation
	if len(calc.Components) == 0 {
		return nil, &ConfigError{Item: item.Name, Msg: "complex calculation declares no components"}
	}

	visited[item.Name] = true
	defer delete(visited, item.Name)

	r := &Result{Breakdown: make(map[string]estimate.Component, len(calc.Components))}
	var perUnit float64
	for _, ref := range calc.Components {
		sub, ok := c.store.Item(ref.Name, ref.Section)
		if !ok {
			return nil, &LookupError{Item: item.Name, Ref: ref.Name}
		}
		if visited[sub.Name] {
			return nil, &ConfigError{Item: item.Name, Msg: fmt.Sprintf("component cycle through %q", sub.Name)}
		}

		perParent := ref.Quantity
		if ref.QuantityFormula != "" {
			v, err := formula.Eval(ref.QuantityFormula, params)
			if err != nil {
				return nil, err
			}
			perParent = v
		}

		subRes, err := c.calculate(sub, params, perParent, env, visited, depth+1)
		if err != nil {
			return nil, err
		}
		perUnit += subRes.TotalCost
		r.Volume += subRes.Volume * perParent
		r.Breakdown[sub.Name] = estimate.Component{Quantity: perParent, Cost: subRes.TotalCost}
	}
	return scale(r, perUnit, qty), nil
}

// calcPriceFormula prices from an expression that may read the session
// aggregate sum_material_volume alongside the item parameters.
func (c *Calculator) calcPriceFormula(item *catalog.Item, params map[string]float64, qty float64, env Env) (*Result, error) {
	calc := item.Calculation
	if calc.PriceFormula == "" {
		return nil, &ConfigError{Item: item.Name, Msg: "price_formula calculation has no formula"}
	}
	vars := make(map[string]float64, len(params)+1)
	for k, v := range params {
		vars[k] = v
	}
	vars["sum_material_volume"] = env.SumMaterialVolume

	perUnit, err := formula.Eval(calc.PriceFormula, vars)
	if err != nil {
		return nil, err
	}
	return scale(&Result{}, perUnit, qty), nil
}
