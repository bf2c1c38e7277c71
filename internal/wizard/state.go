// Package wizard drives the multi-step estimate conversation: one inbound
// answer per turn, validated and applied to the user's session, with the
// pricing engine invoked once per line item. All failures below the wizard
// surface as user-visible replies; nothing terminates a session
// unexpectedly.
package wizard

// State identifies where in the flow a session currently is.
type State int

const (
	// StateMethodChoice waits for the estimate-creation method.
	StateMethodChoice State = iota
	// StateSheetCount waits for the number of sheets.
	StateSheetCount
	// StateSheetNames waits for the comma-separated sheet names.
	StateSheetNames
	// StateSheetQuantity waits for one sheet's instance count; repeats per sheet.
	StateSheetQuantity
	// StateCategory waits for a category pick within the current phase.
	StateCategory
	// StateItem waits for an item pick within the chosen category.
	StateItem
	// StateParameter waits for the current parameter's value; repeats per parameter.
	StateParameter
	// StateQuantity waits for the pending item's quantity.
	StateQuantity
	// StatePriceConfirm waits for price confirmation or a manual override.
	StatePriceConfirm
)

func (s State) String() string {
	switch s {
	case StateMethodChoice:
		return "method_choice"
	case StateSheetCount:
		return "sheet_count"
	case StateSheetNames:
		return "sheet_names"
	case StateSheetQuantity:
		return "sheet_quantity"
	case StateCategory:
		return "category"
	case StateItem:
		return "item"
	case StateParameter:
		return "parameter"
	case StateQuantity:
		return "quantity"
	case StatePriceConfirm:
		return "price_confirm"
	}
	return "unknown"
}

// Input vocabulary. These literals are part of the contract the user
// interface presents and must match exactly (case-insensitive).
const (
	TokenManual  = "manual"
	TokenAI      = "ai"
	TokenNext    = "next"
	TokenBack    = "back"
	TokenCancel  = "cancel"
	TokenConfirm = "confirm"
)
