package wizard

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
)

const testCatalog = `
categories:
  - name: Lumber
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
    category: Lumber
    unit: pcs
    variable: true
    parameters:
      - {name: length, key: length_mm, min: 100, max: 6000, prompt: "Board length in mm:"}
    calculation:
      type: volume
      volume_formula: "length_mm * 150 * 50"
      cost_per_m3: "20000"
  - id: 2
    name: Bolt kit
    category: Lumber
    unit: kit
    price: 250
templates:
  - id: 10
    name: Bench
    category: Products
    unit: pcs
    variable: true
    parameters:
      - {name: length, key: length_mm, min: 500, max: 3000, prompt: "Bench length in mm:"}
    calculation:
      type: complex
      components:
        - name: Board
          section: materials
          quantity_formula: "ceil(length_mm / 1000)"
works:
  - id: 20
    name: Assembly
    category: Works
    unit: job
    price: 500
other:
  - id: 30
    name: Delivery
    category: Delivery
    unit: trip
    calculation:
      type: price_formula
      price_formula: "5000 if sum_material_volume < 1 else 10000"
`

type stubRenderer struct {
	paths []string
	err   error
	calls int
	last  *estimate.Estimate
}

func (r *stubRenderer) Render(userKey string, est *estimate.Estimate) ([]string, error) {
	r.calls++
	r.last = est
	if r.err != nil {
		return nil, r.err
	}
	return r.paths, nil
}

func newTestEngine(t *testing.T, r Renderer) *Engine {
	t.Helper()
	store, err := catalog.Parse([]byte(testCatalog), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	if r == nil {
		r = &stubRenderer{paths: []string{"out/smeta.xlsx"}}
	}
	eng, err := NewEngine(EngineOpts{Store: store, Renderer: r, Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

// send drives one conversation step and asserts on the reply text.
func send(t *testing.T, eng *Engine, user, input, wantSubstr string) Reply {
	t.Helper()
	reply := eng.Handle(user, input)
	if wantSubstr != "" && !strings.Contains(reply.Text, wantSubstr) {
		t.Fatalf("Handle(%q) = %q, want substring %q", input, reply.Text, wantSubstr)
	}
	return reply
}

func TestEngine_HappyPathSingleSheet(t *testing.T) {
	renderer := &stubRenderer{paths: []string{"out/smeta.xlsx", "out/proposal.html"}}
	eng := newTestEngine(t, renderer)

	reply := eng.Start("u1")
	if len(reply.Choices) != 2 {
		t.Fatalf("method choices = %v, want [manual ai]", reply.Choices)
	}

	send(t, eng, "u1", "manual", "How many sheets")
	send(t, eng, "u1", "1", "sheet name")
	send(t, eng, "u1", "Playground", "how many units")
	send(t, eng, "u1", "2", "pick a category")

	send(t, eng, "u1", "Lumber", "Pick an item")
	send(t, eng, "u1", "Board", "Board length in mm")
	send(t, eng, "u1", "2000", "Enter the quantity")
	// 2000×150×50 mm³ = 0.015 m³ × 20000 = 300 per piece.
	send(t, eng, "u1", "3", "Total: 900")
	send(t, eng, "u1", "confirm", "Saved \"Board\"")

	send(t, eng, "u1", "next", "labor & delivery")
	send(t, eng, "u1", "Works", "Pick an item")
	send(t, eng, "u1", "Assembly", "Enter the quantity")
	send(t, eng, "u1", "1", "Total: 500")
	send(t, eng, "u1", "confirm", "Saved \"Assembly\"")

	final := send(t, eng, "u1", "next", "All done")
	if !final.Done {
		t.Error("final reply not marked Done")
	}
	if len(final.Files) != 2 {
		t.Errorf("final files = %v, want both documents", final.Files)
	}
	if eng.Active("u1") {
		t.Error("session still active after finishing")
	}
	if renderer.last == nil {
		t.Fatal("renderer never invoked")
	}
	// (900 + 500) × 2 units of the sheet.
	if got := renderer.last.GrandTotal(); got != 2800 {
		t.Errorf("rendered grand total = %v, want 2800", got)
	}
}

func TestEngine_AggregateVolumeFeedsDeliveryFormula(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "1", "")
	send(t, eng, "u1", "Site", "")
	send(t, eng, "u1", "1", "")

	// 100 boards × 0.015 m³ = 1.5 m³ of material.
	send(t, eng, "u1", "Lumber", "")
	send(t, eng, "u1", "Board", "")
	send(t, eng, "u1", "2000", "")
	send(t, eng, "u1", "100", "")
	send(t, eng, "u1", "confirm", "")

	send(t, eng, "u1", "next", "")
	send(t, eng, "u1", "Delivery", "")
	send(t, eng, "u1", "Delivery", "")
	send(t, eng, "u1", "1", "Price per unit: 10 000")
}

func TestEngine_FabricatedProductSkipsQuantity(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "1", "")
	send(t, eng, "u1", "Gazebo", "")
	send(t, eng, "u1", "1", "")

	send(t, eng, "u1", "Products", "Pick an item")
	send(t, eng, "u1", "Bench", "Bench length in mm")
	// ceil(2000/1000) = 2 boards × 300 each; quantity is implicit.
	reply := send(t, eng, "u1", "2000", "Quantity: 1")
	if !strings.Contains(reply.Text, "Total: 600") {
		t.Errorf("bench total missing from %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Breakdown:") {
		t.Errorf("breakdown missing from %q", reply.Text)
	}

	// back from the price screen re-asks the last parameter, not quantity.
	send(t, eng, "u1", "back", "Bench length in mm")
}

func TestEngine_BackStepsOneAnswer(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "1", "")
	send(t, eng, "u1", "Deck", "")
	send(t, eng, "u1", "1", "")

	send(t, eng, "u1", "Lumber", "Pick an item")
	send(t, eng, "u1", "Board", "Board length in mm")
	// back from the first parameter returns to item selection.
	send(t, eng, "u1", "back", "Pick an item")

	send(t, eng, "u1", "Board", "Board length in mm")
	send(t, eng, "u1", "2000", "Enter the quantity")
	// back from quantity re-asks the last parameter.
	send(t, eng, "u1", "back", "Board length in mm")

	send(t, eng, "u1", "3000", "Enter the quantity")
	send(t, eng, "u1", "2", "Total: 900")
	// back from the price screen returns to quantity.
	send(t, eng, "u1", "back", "Enter the quantity")
	send(t, eng, "u1", "back", "Board length in mm")
}

func TestEngine_SheetNamesMustBeValidWorksheetNames(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "1", "sheet name")

	// Names flow into worksheet titles and cross-sheet formulas, so the
	// workbook's constraints are enforced at entry, not at finalize.
	send(t, eng, "u1", "front/yard", "must not contain")
	send(t, eng, "u1", "back:patio", "must not contain")
	send(t, eng, "u1", "Bob's deck", "must not contain")
	send(t, eng, "u1", strings.Repeat("x", 32), "too long")
	send(t, eng, "u1", "summary", "reserved")
	send(t, eng, "u1", "Front yard", "how many units")
}

func TestEngine_ValidationRePrompts(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")

	send(t, eng, "u1", "many", "whole number of sheets")
	send(t, eng, "u1", "0", "whole number of sheets")
	send(t, eng, "u1", "2", "sheet name")

	send(t, eng, "u1", "Deck", "Expected 2 name(s)")
	send(t, eng, "u1", "Deck, Deck", "must be unique")
	send(t, eng, "u1", "Deck, Fence", "how many units")

	send(t, eng, "u1", "0", "1 or more")
	send(t, eng, "u1", "1", "")
	send(t, eng, "u1", "1", "pick a category")

	send(t, eng, "u1", "Plumbing", "Unknown category")
	send(t, eng, "u1", "Lumber", "")
	send(t, eng, "u1", "Gold bar", "not found")
	send(t, eng, "u1", "Board", "")

	send(t, eng, "u1", "long", "Enter a number")
	send(t, eng, "u1", "50", "between 100 and 6 000")
	send(t, eng, "u1", "2000", "Enter the quantity")
	send(t, eng, "u1", "-1", "greater than zero")
}

func TestEngine_PriceOverride(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "1", "")
	send(t, eng, "u1", "Deck", "")
	send(t, eng, "u1", "1", "")

	send(t, eng, "u1", "Lumber", "")
	send(t, eng, "u1", "bolt kit", "Enter the quantity") // case-insensitive
	send(t, eng, "u1", "4", "Total: 1 000")
	// Typing a number at the price screen replaces the per-unit price.
	send(t, eng, "u1", "300", "total 1 200")
}

func TestEngine_CancelFromAnyState(t *testing.T) {
	eng := newTestEngine(t, nil)

	scripts := [][]string{
		{},
		{"manual"},
		{"manual", "1"},
		{"manual", "1", "Deck", "1"},
		{"manual", "1", "Deck", "1", "Lumber", "Board"},
		{"manual", "1", "Deck", "1", "Lumber", "Board", "2000"},
		{"manual", "1", "Deck", "1", "Lumber", "Board", "2000", "3"},
	}
	for _, script := range scripts {
		eng.Start("u1")
		for _, step := range script {
			eng.Handle("u1", step)
		}
		reply := send(t, eng, "u1", "cancel", "cancelled")
		if !reply.RemoveKeyboard {
			t.Error("cancel reply should drop the keyboard")
		}
		if eng.Active("u1") {
			t.Fatalf("session survived cancel after script %v", script)
		}
	}

	send(t, eng, "u1", "hello", "No estimate in progress")
}

func TestEngine_AIModeIsPlaceholder(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "ai", "under development")
	// Still at method choice; manual proceeds normally.
	send(t, eng, "u1", "manual", "How many sheets")
}

func TestEngine_RenderFailurePreservesSession(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("disk full")}
	eng := newTestEngine(t, renderer)

	eng.Start("u1")
	for _, step := range []string{"manual", "1", "Deck", "1", "Lumber", "Board", "2000", "3", "confirm", "next"} {
		eng.Handle("u1", step)
	}

	reply := send(t, eng, "u1", "next", "Document generation failed")
	if reply.Done {
		t.Error("failed finish must not be Done")
	}
	if !eng.Active("u1") {
		t.Fatal("session lost on render failure")
	}

	renderer.err = nil
	final := send(t, eng, "u1", "next", "All done")
	if !final.Done || eng.Active("u1") {
		t.Error("retry after render failure did not finish")
	}
	if renderer.calls != 2 {
		t.Errorf("renderer calls = %d, want 2", renderer.calls)
	}
}

func TestEngine_TwoSheetsAdvanceInOrder(t *testing.T) {
	renderer := &stubRenderer{paths: []string{"out/smeta.xlsx"}}
	eng := newTestEngine(t, renderer)

	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "2", "")
	send(t, eng, "u1", "Deck, Fence", "Deck: how many units")
	send(t, eng, "u1", "1", "Fence: how many units")
	send(t, eng, "u1", "3", "Starting with sheet \"Deck\"")

	for _, step := range []string{"Lumber", "Board", "2000", "1", "confirm"} {
		eng.Handle("u1", step)
	}
	send(t, eng, "u1", "next", "labor & delivery")
	send(t, eng, "u1", "next", "Moving to sheet \"Fence\"")

	for _, step := range []string{"Lumber", "Bolt kit", "2", "confirm", "next"} {
		eng.Handle("u1", step)
	}
	final := send(t, eng, "u1", "next", "All done")
	if !final.Done {
		t.Fatal("two-sheet flow did not finish")
	}
	// Deck: 300×1, Fence: 250×2×3 units.
	if got := renderer.last.GrandTotal(); got != 1800 {
		t.Errorf("grand total = %v, want 1800", got)
	}
}

func TestEngine_StartReplacesSession(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.Start("u1")
	send(t, eng, "u1", "manual", "")
	send(t, eng, "u1", "1", "")

	eng.Start("u1")
	send(t, eng, "u1", "manual", "How many sheets")
	if eng.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1", eng.SessionCount())
	}
}
