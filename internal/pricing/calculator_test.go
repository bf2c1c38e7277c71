package pricing

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/velikov/smetabot/internal/catalog"
)

const testCatalog = `
categories:
  - name: Materials
    key: materials
    phase: material
  - name: Products
    key: templates
    phase: material
  - name: Works
    key: works
    phase: non_material
  - name: Delivery
    key: other
    phase: non_material
materials:
  - id: 1
    name: Board
    category: Materials
    unit: m³
    variable: true
    parameters:
      - {name: Length, key: length_mm, prompt: "Length in mm:"}
      - {name: Width, key: width_mm, prompt: "Width in mm:"}
      - {name: Thickness, key: thickness_mm, prompt: "Thickness in mm:"}
    calculation:
      type: volume
      volume_formula: "length_mm * width_mm * thickness_mm"
      cost_per_m3: "20000"
  - id: 2
    name: Slide panel
    category: Materials
    unit: piece
    variable: true
    parameters:
      - {name: Width, key: width_mm, prompt: "Width in mm:"}
      - {name: Height, key: height_mm, prompt: "Height in mm:"}
    calculation:
      type: volume
      volume_formula: "width_mm * height_mm * 300"
      cost_per_m3: "700000 - 50 * (height_mm - 900)"
      retail_markup: 1.087
  - name: Unpriced beam
    category: Materials
    unit: m³
    variable: true
    parameters:
      - {name: Length, key: length_mm, prompt: "Length in mm:"}
    calculation:
      type: volume
      volume_formula: "length_mm * 150 * 150"
  - id: 3
    name: Stainless steel sheet
    category: Materials
    unit: piece
    price: 5000
    attributes:
      width_mm: 1000
      length_mm: 2000
  - id: 4
    name: Bolt kit
    category: Materials
    unit: kit
    price: 250
templates:
  - id: 10
    name: Tunnel
    category: Products
    unit: piece
    variable: true
    parameters:
      - {name: Radius, key: radius_mm, prompt: "Radius in mm:"}
      - {name: Length, key: length_mm, prompt: "Length in mm:"}
    calculation:
      type: tunnel
      sheet_item: Stainless steel sheet
      cutting_work: Sheet cutting
      welding_work: Sheet welding
  - id: 11
    name: Concrete wall
    category: Products
    unit: piece
    variable: true
    parameters:
      - {name: Length, key: length_mm, prompt: "Length in mm:"}
      - {name: Width, key: width_mm, prompt: "Width in mm:"}
      - {name: Height, key: height_mm, prompt: "Height in mm:"}
      - {name: Deepening, key: deepening_mm, prompt: "Extra deepening in mm:"}
    calculation:
      type: concrete_wall
      concrete_per_m3: 5000
      rebar_per_kg: 60
      formwork_per_m2: 450
      pouring_per_m3: 1200
  - id: 12
    name: Bench
    category: Products
    unit: piece
    variable: true
    parameters:
      - {name: Length, key: length_mm, prompt: "Length in mm:"}
    calculation:
      type: complex
      components:
        - name: Board
          section: materials
          quantity_formula: "ceil(length_mm / 1000)"
        - name: Bolt kit
          section: materials
          quantity: 2
        - name: Assembly
          section: works
          quantity: 1
  - id: 13
    name: Ouroboros
    category: Products
    unit: piece
    calculation:
      type: complex
      components:
        - name: Ouroboros
          section: templates
          quantity: 1
  - id: 14
    name: Mystery
    category: Products
    unit: piece
    calculation:
      type: teleportation
works:
  - id: 20
    name: Sheet cutting
    category: Works
    unit: cut
    price: 300
  - id: 21
    name: Sheet welding
    category: Works
    unit: weld
    price: 800
  - id: 22
    name: Assembly
    category: Works
    unit: piece
    price: 1500
other:
  - id: 30
    name: Delivery
    category: Delivery
    unit: trip
    calculation:
      type: price_formula
      price_formula: "5000 if sum_material_volume < 1 else 10000"
`

func newTestCalculator(t *testing.T) (*Calculator, *catalog.Store) {
	t.Helper()
	store, err := catalog.Parse([]byte(testCatalog), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return New(store), store
}

func mustItem(t *testing.T, store *catalog.Store, name, section string) *catalog.Item {
	t.Helper()
	item, ok := store.Item(name, section)
	if !ok {
		t.Fatalf("item %q not in test catalog", name)
	}
	return item
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestCalculate_FlatPriceWithoutCalculation(t *testing.T) {
	calc, store := newTestCalculator(t)
	item := mustItem(t, store, "Bolt kit", "materials")

	res, err := calc.Calculate(item, nil, 3, Env{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !approx(res.TotalCost, 750) || !approx(res.PricePerUnit, 250) {
		t.Errorf("total=%v perUnit=%v", res.TotalCost, res.PricePerUnit)
	}
}

func TestCalculate_BoardCostLinearInQuantity(t *testing.T) {
	calc, store := newTestCalculator(t)
	board := mustItem(t, store, "Board", "materials")
	params := map[string]float64{"length_mm": 2000, "width_mm": 150, "thickness_mm": 50}

	one, err := calc.Calculate(board, params, 1, Env{})
	if err != nil {
		t.Fatalf("Calculate(1): %v", err)
	}
	// 2000×150×50 mm³ = 0.015 m³ at 20000/m³.
	if !approx(one.TotalCost, 300) {
		t.Errorf("cost(1) = %v, want 300", one.TotalCost)
	}
	if !approx(one.Volume, 0.015) {
		t.Errorf("volume = %v, want 0.015", one.Volume)
	}

	for _, q := range []float64{0, 2, 7, 100} {
		res, err := calc.Calculate(board, params, q, Env{})
		if err != nil {
			t.Fatalf("Calculate(%v): %v", q, err)
		}
		if !approx(res.TotalCost, q*one.TotalCost) {
			t.Errorf("cost(%v) = %v, want %v", q, res.TotalCost, q*one.TotalCost)
		}
		if !approx(res.PricePerUnit, one.PricePerUnit) {
			t.Errorf("perUnit(%v) = %v, want %v", q, res.PricePerUnit, one.PricePerUnit)
		}
	}
}

func TestCalculate_VolumeWithFormulaCostAndMarkup(t *testing.T) {
	calc, store := newTestCalculator(t)
	slide := mustItem(t, store, "Slide panel", "materials")
	params := map[string]float64{"width_mm": 1000, "height_mm": 1200}

	res, err := calc.Calculate(slide, params, 1, Env{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	volume := 1000.0 * 1200 * 300 / 1e9
	costPerM3 := 700000.0 - 50*(1200-900)
	want := volume * costPerM3 * 1.087
	if !approx(res.TotalCost, want) {
		t.Errorf("total = %v, want %v", res.TotalCost, want)
	}
	if !approx(res.Volume, volume) {
		t.Errorf("volume = %v, want %v", res.Volume, volume)
	}
}

func TestCalculate_TunnelDeterministicCounts(t *testing.T) {
	calc, store := newTestCalculator(t)
	tunnel := mustItem(t, store, "Tunnel", "templates")
	params := map[string]float64{"radius_mm": 300, "length_mm": 1800}

	res, err := calc.Calculate(tunnel, params, 1, Env{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	// Stock 1000×2000: 2 rows along 1800 mm, 1 column around the
	// 1884.96 mm circumference → 2 sheets. 1800 is not divisible by 1000
	// (1 cut × 1 column); the circumference never divides the stock length
	// (1 cut × 2 rows) → 3 cuts. Welds: (1−1)×2 + (2−1) = 1.
	wantCounts := map[string]float64{"sheets": 2, "cuts": 3, "welds": 1}
	for name, want := range wantCounts {
		got := res.Breakdown[name].Quantity
		if got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
		if got != math.Trunc(got) {
			t.Errorf("%s = %v, want a whole number", name, got)
		}
	}
	wantTotal := 2*5000.0 + 3*300 + 1*800
	if !approx(res.TotalCost, wantTotal) {
		t.Errorf("total = %v, want %v", res.TotalCost, wantTotal)
	}

	// Doubling quantity exactly doubles counts and cost.
	doubled, err := calc.Calculate(tunnel, params, 2, Env{})
	if err != nil {
		t.Fatalf("Calculate(2): %v", err)
	}
	if !approx(doubled.TotalCost, 2*res.TotalCost) {
		t.Errorf("doubled total = %v, want %v", doubled.TotalCost, 2*res.TotalCost)
	}
	for name := range wantCounts {
		if !approx(doubled.Breakdown[name].Quantity, 2*res.Breakdown[name].Quantity) {
			t.Errorf("doubled %s = %v, want %v", name, doubled.Breakdown[name].Quantity, 2*res.Breakdown[name].Quantity)
		}
	}
}

func TestCalculate_TunnelMissingSheetIsHardFailure(t *testing.T) {
	calc, store := newTestCalculator(t)
	tunnel := mustItem(t, store, "Tunnel", "templates")

	broken := *tunnel
	brokenCalc := *tunnel.Calculation
	brokenCalc.SheetItem = "Unobtainium sheet"
	broken.Calculation = &brokenCalc

	_, err := calc.Calculate(&broken, map[string]float64{"radius_mm": 300, "length_mm": 1800}, 1, Env{})
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected *LookupError, got %T: %v", err, err)
	}
}

func TestCalculate_ConcreteWallDecomposition(t *testing.T) {
	calc, store := newTestCalculator(t)
	wall := mustItem(t, store, "Concrete wall", "templates")
	params := map[string]float64{"length_mm": 6000, "width_mm": 200, "height_mm": 1500, "deepening_mm": 350}

	res, err := calc.Calculate(wall, params, 1, Env{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	// total_deepening = 150 + 350 = 500.
	wallHeight := 1500.0 + 500
	wallVol := 6000 * 200 * wallHeight / 1e9
	slabVol := 6000 * 200 * 100 / 1e9
	formArea := 2 * (6000.0 + 200) * wallHeight / 1e6

	var sum float64
	for _, comp := range res.Breakdown {
		sum += comp.Cost
	}
	if !approx(res.TotalCost, sum) {
		t.Errorf("total %v != breakdown sum %v", res.TotalCost, sum)
	}
	if !approx(res.Breakdown["wall_concrete"].Quantity, wallVol) {
		t.Errorf("wall volume = %v, want %v", res.Breakdown["wall_concrete"].Quantity, wallVol)
	}
	if !approx(res.Breakdown["slab_concrete"].Quantity, slabVol) {
		t.Errorf("slab volume = %v, want %v", res.Breakdown["slab_concrete"].Quantity, slabVol)
	}
	if !approx(res.Breakdown["rebar"].Quantity, wallVol*100) {
		t.Errorf("rebar kg = %v, want %v", res.Breakdown["rebar"].Quantity, wallVol*100)
	}
	if !approx(res.Breakdown["formwork"].Quantity, formArea) {
		t.Errorf("formwork area = %v, want %v", res.Breakdown["formwork"].Quantity, formArea)
	}
}

func TestCalculate_ConcreteWallRejectsNonPositiveInputs(t *testing.T) {
	calc, store := newTestCalculator(t)
	wall := mustItem(t, store, "Concrete wall", "templates")

	for _, key := range []string{"length_mm", "width_mm", "height_mm", "deepening_mm"} {
		params := map[string]float64{"length_mm": 6000, "width_mm": 200, "height_mm": 1500, "deepening_mm": 350}
		params[key] = 0
		_, err := calc.Calculate(wall, params, 1, Env{})
		var valErr *ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("%s=0: expected *ValidationError, got %T: %v", key, err, err)
		}
	}
}

func TestCalculate_ComplexSumsComponents(t *testing.T) {
	calc, store := newTestCalculator(t)
	bench := mustItem(t, store, "Bench", "templates")
	params := map[string]float64{"length_mm": 2500, "width_mm": 150, "thickness_mm": 50}

	res, err := calc.Calculate(bench, params, 2, Env{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	var sum float64
	for _, comp := range res.Breakdown {
		sum += comp.Cost
	}
	if !approx(res.TotalCost, sum) {
		t.Errorf("total %v != component sum %v", res.TotalCost, sum)
	}
	if len(res.Breakdown) != 3 {
		t.Errorf("breakdown has %d components, want 3", len(res.Breakdown))
	}
	// ceil(2500/1000) = 3 boards per bench, ×2 benches.
	if !approx(res.Breakdown["Board"].Quantity, 6) {
		t.Errorf("boards = %v, want 6", res.Breakdown["Board"].Quantity)
	}
	if !approx(res.Breakdown["Bolt kit"].Quantity, 4) {
		t.Errorf("bolt kits = %v, want 4", res.Breakdown["Bolt kit"].Quantity)
	}
	// price_per_unit is back-derived from the summed total.
	if !approx(res.PricePerUnit, res.TotalCost/2) {
		t.Errorf("perUnit = %v, want total/2 = %v", res.PricePerUnit, res.TotalCost/2)
	}
}

func TestCalculate_ComplexMissingComponentIsHardFailure(t *testing.T) {
	calc, store := newTestCalculator(t)
	bench := mustItem(t, store, "Bench", "templates")

	broken := *bench
	brokenCalc := *bench.Calculation
	brokenCalc.Components = append([]catalog.ComponentRef{}, brokenCalc.Components...)
	brokenCalc.Components[1].Name = "Phantom part"
	broken.Calculation = &brokenCalc

	_, err := calc.Calculate(&broken, map[string]float64{"length_mm": 2500, "width_mm": 150, "thickness_mm": 50}, 1, Env{})
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected *LookupError, got %T: %v", err, err)
	}
	if lookupErr.Ref != "Phantom part" {
		t.Errorf("Ref = %q", lookupErr.Ref)
	}
}

func TestCalculate_ComplexCycleRejected(t *testing.T) {
	calc, store := newTestCalculator(t)
	ouroboros := mustItem(t, store, "Ouroboros", "templates")

	_, err := calc.Calculate(ouroboros, nil, 1, Env{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestCalculate_PriceFormulaAggregate(t *testing.T) {
	calc, store := newTestCalculator(t)
	delivery := mustItem(t, store, "Delivery", "other")

	// Material volumes 0.1 + 0.2 = 0.3 m³ < 1 → 5000.
	res, err := calc.Calculate(delivery, nil, 1, Env{SumMaterialVolume: 0.3})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !approx(res.PricePerUnit, 5000) {
		t.Errorf("perUnit = %v, want 5000", res.PricePerUnit)
	}

	res, err = calc.Calculate(delivery, nil, 2, Env{SumMaterialVolume: 1.4})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !approx(res.TotalCost, 20000) {
		t.Errorf("total = %v, want 20000", res.TotalCost)
	}
}

func TestCalculate_VolumeMissingCostPerM3(t *testing.T) {
	calc, store := newTestCalculator(t)
	beam := mustItem(t, store, "Unpriced beam", "materials")

	_, err := calc.Calculate(beam, map[string]float64{"length_mm": 2000}, 1, Env{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if !strings.Contains(cfgErr.Msg, "cost_per_m3") {
		t.Errorf("Msg = %q, want mention of cost_per_m3", cfgErr.Msg)
	}
}

func TestCalculate_UnknownVariant(t *testing.T) {
	calc, store := newTestCalculator(t)
	mystery := mustItem(t, store, "Mystery", "templates")

	_, err := calc.Calculate(mystery, nil, 1, Env{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestCalculate_NegativeQuantity(t *testing.T) {
	calc, store := newTestCalculator(t)
	item := mustItem(t, store, "Bolt kit", "materials")
	if _, err := calc.Calculate(item, nil, -1, Env{}); err == nil {
		t.Error("expected error for negative quantity")
	}
}
