package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaError reports a catalog document that cannot be used at all, such
// as a missing required top-level section. It is fatal at startup.
type SchemaError struct {
	Section string
	Msg     string
}

func (e *SchemaError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("catalog: section %q: %s", e.Section, e.Msg)
	}
	return fmt.Sprintf("catalog: %s", e.Msg)
}

// requiredSections must all be present in the catalog document. categories
// drives the wizard's selection passes; the rest hold priceable items.
var requiredSections = []string{"categories", SectionMaterials, SectionTemplates, SectionWorks, SectionOther}

// document is the raw catalog file shape.
type document struct {
	Categories []Category `yaml:"categories"`
	Materials  []Item     `yaml:"materials"`
	Templates  []Item     `yaml:"templates"`
	Works      []Item     `yaml:"works"`
	Other      []Item     `yaml:"other"`
}

// Load reads and parses the catalog file at path. The returned Store
// remembers the path so Reload can re-read it later.
func Load(path string) (*Store, error) {
	return LoadWithOutput(path, os.Stdout)
}

// LoadWithOutput is Load with an explicit destination for validation
// warnings.
func LoadWithOutput(path string, out io.Writer) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	s, err := Parse(data, out)
	if err != nil {
		return nil, err
	}
	s.path = path
	return s, nil
}

// Parse unmarshals catalog YAML and builds a Store. A missing required
// top-level section is a SchemaError; per-item problems are written to out
// as warnings and never fail the parse.
func Parse(data []byte, out io.Writer) (*Store, error) {
	if out == nil {
		out = os.Stdout
	}

	// Presence check first: an absent section and an empty section are
	// different failures, and yaml.Unmarshal cannot tell them apart.
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("parse: %v", err)}
	}
	for _, section := range requiredSections {
		if _, ok := raw[section]; !ok {
			return nil, &SchemaError{Section: section, Msg: "required section is missing"}
		}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("parse: %v", err)}
	}

	for _, w := range validate(&doc) {
		fmt.Fprintf(out, "catalog: warning: %s\n", w)
	}

	s := newStore(&doc, out)
	return s, nil
}

// itemKeyRequirements lists the per-item keys each section is expected to
// carry. A missing key degrades calculation fidelity but does not halt.
var itemKeyRequirements = map[string][]string{
	SectionMaterials: {"id", "name", "category", "unit", "price"},
	SectionTemplates: {"id", "name", "category", "unit", "parameters", "calculation"},
	SectionWorks:     {"id", "name", "category", "unit"},
	SectionOther:     {"id", "name", "category", "unit"},
}

// validate collects non-fatal warnings about the parsed document.
func validate(doc *document) []string {
	var warnings []string

	if len(doc.Categories) == 0 {
		warnings = append(warnings, "categories section is empty")
	}
	for i, c := range doc.Categories {
		if c.Name == "" || c.Key == "" {
			warnings = append(warnings, fmt.Sprintf("categories[%d]: name and key are required", i))
		}
		if c.Phase != PhaseMaterial && c.Phase != PhaseNonMaterial {
			warnings = append(warnings, fmt.Sprintf("category %q: unknown phase %q", c.Name, c.Phase))
		}
	}

	for section, items := range map[string][]Item{
		SectionMaterials: doc.Materials,
		SectionTemplates: doc.Templates,
		SectionWorks:     doc.Works,
		SectionOther:     doc.Other,
	} {
		for _, item := range items {
			if missing := missingKeys(section, &item); len(missing) > 0 {
				name := item.Name
				if name == "" {
					name = "unnamed"
				}
				warnings = append(warnings, fmt.Sprintf("item %q in %s: missing keys: %s",
					name, section, strings.Join(missing, ", ")))
			}
		}
	}
	return warnings
}

func missingKeys(section string, item *Item) []string {
	var missing []string
	for _, key := range itemKeyRequirements[section] {
		switch key {
		case "id":
			if item.ID == 0 {
				missing = append(missing, key)
			}
		case "name":
			if item.Name == "" {
				missing = append(missing, key)
			}
		case "category":
			if item.Category == "" {
				missing = append(missing, key)
			}
		case "unit":
			if item.Unit == "" {
				missing = append(missing, key)
			}
		case "price":
			if item.Price == 0 && item.Calculation == nil {
				missing = append(missing, key)
			}
		case "parameters":
			if item.Variable && len(item.Parameters) == 0 {
				missing = append(missing, key)
			}
		case "calculation":
			if item.Calculation == nil {
				missing = append(missing, key)
			}
		}
	}
	return missing
}
