package pricing

import "fmt"

// ConfigError reports a catalog item whose calculation block cannot be
// executed: unknown variant, missing model attributes, or a component
// cycle. It is fatal for that item only; the session recovers.
type ConfigError struct {
	Item string
	Msg  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pricing: item %q: %s", e.Item, e.Msg)
}

// LookupError reports a declared sub-component that does not resolve in
// the catalog. The parent item cannot be priced without it.
type LookupError struct {
	Item string
	Ref  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("pricing: item %q: referenced component %q not found in catalog", e.Item, e.Ref)
}

// ValidationError reports input parameters a geometric model cannot accept.
type ValidationError struct {
	Item string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pricing: item %q: %s", e.Item, e.Msg)
}
