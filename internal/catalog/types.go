// Package catalog loads the static item catalog and serves lookups for the
// wizard and the pricing engine. The catalog is read once at startup and
// treated as immutable between reloads.
package catalog

// Phase groups categories into the two sequential selection passes the
// wizard runs per sheet: materials first, then labor and delivery.
type Phase string

const (
	PhaseMaterial    Phase = "material"
	PhaseNonMaterial Phase = "non_material"
)

// Section keys as they appear in the catalog document. Lookups without an
// explicit section scan these in declaration order.
const (
	SectionMaterials = "materials"
	SectionTemplates = "templates"
	SectionWorks     = "works"
	SectionOther     = "other"
)

// sectionOrder is the scan order for unsectioned lookups. The order is the
// documented tie-break when the same name exists in several sections.
var sectionOrder = []string{SectionMaterials, SectionTemplates, SectionWorks, SectionOther}

// Calculation variant tags.
const (
	CalcBasePrice    = "base_price"
	CalcVolume       = "volume"
	CalcComplex      = "complex"
	CalcPriceFormula = "price_formula"
	CalcTunnel       = "tunnel"
	CalcConcreteWall = "concrete_wall"
)

// Category describes one selectable item grouping. Key doubles as the
// section key holding the category's items.
type Category struct {
	Name  string `yaml:"name"`
	Key   string `yaml:"key"`
	Phase Phase  `yaml:"phase"`
}

// Parameter describes one geometric input the wizard collects before an
// item can be priced. Order in the catalog defines the prompt sequence.
type Parameter struct {
	Name   string  `yaml:"name"`
	Key    string  `yaml:"key"`
	Type   string  `yaml:"type"` // "int" or "float"; informational
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Prompt string  `yaml:"prompt"`
}

// ComponentRef names a sub-material or sub-labor entry of a composite item.
// Exactly one of Quantity and QuantityFormula should be set; the formula is
// evaluated over the parent item's parameters.
type ComponentRef struct {
	Name            string  `yaml:"name"`
	Section         string  `yaml:"section"`
	Quantity        float64 `yaml:"quantity"`
	QuantityFormula string  `yaml:"quantity_formula"`
}

// Calculation is the tagged variant describing how an item is priced.
// Only the fields relevant to Type are populated.
type Calculation struct {
	Type string `yaml:"type"`

	// base_price
	BasePrice float64 `yaml:"base_price"`

	// volume
	VolumeFormula string  `yaml:"volume_formula"` // yields mm³ over the item parameters
	CostPerM3     string  `yaml:"cost_per_m3"`    // number or formula over the item parameters
	RetailMarkup  float64 `yaml:"retail_markup"`  // optional multiplier, 0 means none

	// complex
	Components []ComponentRef `yaml:"components"`

	// price_formula
	PriceFormula string `yaml:"price_formula"`

	// tunnel: catalog references resolved at calculation time
	SheetItem   string `yaml:"sheet_item"`
	CuttingWork string `yaml:"cutting_work"`
	WeldingWork string `yaml:"welding_work"`

	// concrete_wall unit prices
	ConcretePerM3 float64 `yaml:"concrete_per_m3"`
	RebarPerKg    float64 `yaml:"rebar_per_kg"`
	FormworkPerM2 float64 `yaml:"formwork_per_m2"`
	PouringPerM3  float64 `yaml:"pouring_per_m3"`
}

// Item is one catalog entry.
type Item struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Unit     string `yaml:"unit"`

	// Price is the flat unit price for simple materials and works. Items
	// without a Calculation block are priced as Price × quantity.
	Price float64 `yaml:"price"`

	// Variable marks items that need parameters before pricing.
	Variable   bool        `yaml:"variable"`
	Parameters []Parameter `yaml:"parameters"`

	// Attributes holds fixed numeric properties of the item itself, such
	// as the stock dimensions of a steel sheet used by the tunnel model.
	Attributes map[string]float64 `yaml:"attributes"`

	Calculation *Calculation `yaml:"calculation"`
}
