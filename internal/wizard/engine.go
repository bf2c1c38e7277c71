package wizard

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
	"github.com/velikov/smetabot/internal/pricing"
)

// Default bounds for numeric parameters whose catalog entry declares none.
const (
	defaultParamMin = 1
	defaultParamMax = 100000
)

// maxSheets bounds the sheet count a user may request in one estimate.
const maxSheets = 50

// Renderer produces the final documents from a finished estimate and
// returns their file paths.
type Renderer interface {
	Render(userKey string, est *estimate.Estimate) ([]string, error)
}

// Reply is what the wizard wants sent back to the user.
type Reply struct {
	Text           string
	Choices        []string // rendered as a reply keyboard where supported
	Files          []string // generated documents to deliver
	RemoveKeyboard bool
	Done           bool // the conversation finished and the session is gone
}

// Engine is the session state machine. One Engine serves all users; each
// inbound message is dispatched against that user's session only.
type Engine struct {
	store    *catalog.Store
	calc     *pricing.Calculator
	renderer Renderer
	sessions *SessionStore
	out      io.Writer
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Store    *catalog.Store
	Renderer Renderer
	Out      io.Writer // defaults to os.Stdout
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("wizard: catalog store is required")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("wizard: renderer is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		store:    opts.Store,
		calc:     pricing.New(opts.Store),
		renderer: opts.Renderer,
		sessions: NewSessionStore(),
		out:      out,
	}, nil
}

// Start begins a fresh estimate for userKey, replacing any session in
// progress. The catalog cache is cleared so a hot-reloaded catalog cannot
// leak stale objects into the new session.
func (e *Engine) Start(userKey string) Reply {
	e.store.ClearCache()
	e.sessions.Create(userKey)
	fmt.Fprintf(e.out, "wizard: session started [user=%s]\n", userKey)
	return Reply{
		Text:    "How would you like to create the estimate?",
		Choices: []string{TokenManual, TokenAI},
	}
}

// Cancel clears userKey's session from any state.
func (e *Engine) Cancel(userKey string) Reply {
	e.sessions.Delete(userKey)
	return Reply{Text: "Estimate cancelled. Send /start to begin a new one.", RemoveKeyboard: true}
}

// Active reports whether userKey has a session in progress.
func (e *Engine) Active(userKey string) bool {
	_, ok := e.sessions.Get(userKey)
	return ok
}

// SessionCount reports the number of live sessions, for the dashboard.
func (e *Engine) SessionCount() int {
	return e.sessions.Count()
}

// Handle processes one inbound answer for userKey. Validation failures
// re-prompt in the same state; any unclassified failure clears the session,
// since its internal consistency is no longer trusted.
func (e *Engine) Handle(userKey, text string) (reply Reply) {
	session, ok := e.sessions.Get(userKey)
	if !ok {
		return Reply{Text: "No estimate in progress. Send /start to begin."}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("wizard: panic handling %q in state %s for %s: %v", text, session.State, userKey, r)
			e.sessions.Delete(userKey)
			reply = Reply{
				Text:           "Something went wrong and the estimate had to be reset. Send /start to begin again.",
				RemoveKeyboard: true,
			}
		}
	}()

	session.LastActivity = time.Now()
	input := strings.TrimSpace(text)
	if strings.EqualFold(input, TokenCancel) {
		return e.Cancel(userKey)
	}

	switch session.State {
	case StateMethodChoice:
		return e.handleMethodChoice(session, input)
	case StateSheetCount:
		return e.handleSheetCount(session, input)
	case StateSheetNames:
		return e.handleSheetNames(session, input)
	case StateSheetQuantity:
		return e.handleSheetQuantity(session, input)
	case StateCategory:
		return e.handleCategory(session, input)
	case StateItem:
		return e.handleItem(session, input)
	case StateParameter:
		return e.handleParameter(session, input)
	case StateQuantity:
		return e.handleQuantity(session, input)
	case StatePriceConfirm:
		return e.handlePriceConfirm(session, input)
	}
	// Unreachable unless the session was corrupted.
	panic(fmt.Sprintf("unknown state %d", session.State))
}

func (e *Engine) handleMethodChoice(session *Session, input string) Reply {
	switch strings.ToLower(input) {
	case TokenManual:
		session.State = StateSheetCount
		return Reply{
			Text:           "Let's build the estimate.\nHow many sheets do you need (excluding the summary sheet)?",
			RemoveKeyboard: true,
		}
	case TokenAI:
		return Reply{
			Text:    "The AI-assisted mode is under development. Please build the estimate manually for now.",
			Choices: []string{TokenManual, TokenAI},
		}
	}
	return Reply{
		Text:    fmt.Sprintf("Please choose %q or %q.", TokenManual, TokenAI),
		Choices: []string{TokenManual, TokenAI},
	}
}

func (e *Engine) handleSheetCount(session *Session, input string) Reply {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > maxSheets {
		return Reply{Text: fmt.Sprintf("Enter a whole number of sheets between 1 and %d.", maxSheets)}
	}
	session.SheetCount = n
	session.State = StateSheetNames
	return Reply{Text: fmt.Sprintf("Enter the %d sheet name(s), separated by commas:", n)}
}

func (e *Engine) handleSheetNames(session *Session, input string) Reply {
	parts := strings.Split(input, ",")
	names := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			return Reply{Text: "Sheet names must not be empty. Enter the names again, separated by commas:"}
		}
		if msg := checkSheetName(name); msg != "" {
			return Reply{Text: msg}
		}
		if seen[name] {
			return Reply{Text: fmt.Sprintf("Sheet name %q repeats. Names must be unique; enter them again:", name)}
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) != session.SheetCount {
		return Reply{Text: fmt.Sprintf("Expected %d name(s), got %d. Enter them again, separated by commas:", session.SheetCount, len(names))}
	}

	session.Estimate.Sheets = names
	session.State = StateSheetQuantity
	return Reply{Text: fmt.Sprintf("%s: how many units are being built?", names[0])}
}

// maxSheetNameLen is the worksheet name limit in the xlsx format.
const maxSheetNameLen = 31

// checkSheetName reports why a name cannot be used as a worksheet name, or
// "" if it is fine. Names flow into worksheet titles and cross-sheet
// formulas, so the workbook's constraints apply at entry.
func checkSheetName(name string) string {
	if len([]rune(name)) > maxSheetNameLen {
		return fmt.Sprintf("Sheet name %q is too long (max %d characters). Enter the names again:", name, maxSheetNameLen)
	}
	if i := strings.IndexAny(name, `:\/?*[]'`); i >= 0 {
		return fmt.Sprintf("Sheet name %q must not contain %q. Enter the names again:", name, `:\/?*[]'`)
	}
	if strings.EqualFold(name, "Summary") {
		return "The name \"Summary\" is reserved for the totals sheet. Enter different names:"
	}
	return ""
}

func (e *Engine) handleSheetQuantity(session *Session, input string) Reply {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 {
		return Reply{Text: "Enter a whole number of units, 1 or more."}
	}

	sheets := session.Estimate.Sheets
	sheet := sheets[len(session.Estimate.Quantities)]
	session.Estimate.Quantities[sheet] = n

	if len(session.Estimate.Quantities) < len(sheets) {
		next := sheets[len(session.Estimate.Quantities)]
		return Reply{Text: fmt.Sprintf("%s: how many units are being built?", next)}
	}

	session.SheetIdx = 0
	session.Phase = catalog.PhaseMaterial
	session.State = StateCategory
	reply := e.categoryPrompt(session)
	reply.Text = fmt.Sprintf("All sheet quantities recorded.\nStarting with sheet %q.\n\n%s", sheets[0], reply.Text)
	return reply
}

// phaseLabel names a selection pass for the user.
func phaseLabel(phase catalog.Phase) string {
	if phase == catalog.PhaseNonMaterial {
		return "labor & delivery"
	}
	return "materials"
}

func (e *Engine) categoryPrompt(session *Session) Reply {
	categories := e.store.CategoriesByPhase(session.Phase)
	choices := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		choices = append(choices, c.Name)
	}
	choices = append(choices, TokenNext)
	return Reply{
		Text: fmt.Sprintf("Sheet %q — pick a category (%s), or %q to continue:",
			session.currentSheet(), phaseLabel(session.Phase), TokenNext),
		Choices: choices,
	}
}

func (e *Engine) handleCategory(session *Session, input string) Reply {
	if strings.EqualFold(input, TokenNext) {
		return e.advance(session)
	}
	if strings.EqualFold(input, TokenBack) {
		reply := e.categoryPrompt(session)
		reply.Text = "There is no step to go back to here.\n" + reply.Text
		return reply
	}

	for _, c := range e.store.CategoriesByPhase(session.Phase) {
		if strings.EqualFold(c.Name, input) {
			items := e.store.Items(c.Key)
			if len(items) == 0 {
				reply := e.categoryPrompt(session)
				reply.Text = fmt.Sprintf("Category %q has no items yet.\n%s", c.Name, reply.Text)
				return reply
			}
			session.PendingSection = c.Key
			session.State = StateItem
			return e.itemPrompt(session)
		}
	}

	reply := e.categoryPrompt(session)
	reply.Text = fmt.Sprintf("Unknown category %q.\n%s", input, reply.Text)
	return reply
}

func (e *Engine) itemPrompt(session *Session) Reply {
	items := e.store.Items(session.PendingSection)
	choices := make([]string, 0, len(items)+1)
	for _, item := range items {
		choices = append(choices, item.Name)
	}
	choices = append(choices, TokenBack)
	return Reply{Text: "Pick an item:", Choices: choices}
}

func (e *Engine) handleItem(session *Session, input string) Reply {
	if strings.EqualFold(input, TokenBack) {
		session.PendingSection = ""
		session.State = StateCategory
		return e.categoryPrompt(session)
	}

	var item *catalog.Item
	for _, candidate := range e.store.Items(session.PendingSection) {
		if strings.EqualFold(candidate.Name, input) {
			item = candidate
			break
		}
	}
	if item == nil {
		reply := e.itemPrompt(session)
		reply.Text = fmt.Sprintf("Item %q not found.\n%s", input, reply.Text)
		return reply
	}

	session.PendingItem = item
	session.PendingParams = make(map[string]float64, len(item.Parameters))
	session.ParamIdx = 0

	if item.Variable && len(item.Parameters) > 0 {
		session.State = StateParameter
		return e.parameterPrompt(session)
	}
	session.State = StateQuantity
	return e.quantityPrompt(session)
}

func (e *Engine) parameterPrompt(session *Session) Reply {
	p := session.PendingItem.Parameters[session.ParamIdx]
	text := p.Prompt
	if text == "" {
		text = fmt.Sprintf("Enter %s:", p.Name)
	}
	return Reply{Text: text, Choices: []string{TokenBack}}
}

func (e *Engine) quantityPrompt(session *Session) Reply {
	return Reply{
		Text:    fmt.Sprintf("Enter the quantity (%s):", session.PendingItem.Unit),
		Choices: []string{TokenBack},
	}
}

// paramBounds returns the validation range of a parameter, falling back to
// the documented defaults when the catalog declares none.
func paramBounds(p catalog.Parameter) (float64, float64) {
	if p.Min == 0 && p.Max == 0 {
		return defaultParamMin, defaultParamMax
	}
	return p.Min, p.Max
}

func (e *Engine) handleParameter(session *Session, input string) Reply {
	params := session.PendingItem.Parameters

	if strings.EqualFold(input, TokenBack) {
		if session.ParamIdx > 0 {
			session.ParamIdx--
			delete(session.PendingParams, params[session.ParamIdx].Key)
			return e.parameterPrompt(session)
		}
		session.State = StateItem
		session.PendingItem = nil
		session.PendingParams = nil
		return e.itemPrompt(session)
	}

	p := params[session.ParamIdx]
	v, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return Reply{Text: fmt.Sprintf("Enter a number for %s.", p.Name), Choices: []string{TokenBack}}
	}
	min, max := paramBounds(p)
	if v < min || v > max {
		return Reply{
			Text:    fmt.Sprintf("%s must be between %s and %s.", p.Name, estimate.FormatNumber(min), estimate.FormatNumber(max)),
			Choices: []string{TokenBack},
		}
	}

	session.PendingParams[p.Key] = v
	session.ParamIdx++
	if session.ParamIdx < len(params) {
		return e.parameterPrompt(session)
	}

	// Fabricated products are priced as whole units: quantity 1, no
	// explicit quantity step.
	if session.PendingSection == catalog.SectionTemplates {
		session.PendingQuantity = 1
		return e.runCalculation(session)
	}
	session.State = StateQuantity
	return e.quantityPrompt(session)
}

func (e *Engine) handleQuantity(session *Session, input string) Reply {
	if strings.EqualFold(input, TokenBack) {
		if len(session.PendingItem.Parameters) > 0 {
			session.State = StateParameter
			session.ParamIdx = len(session.PendingItem.Parameters) - 1
			delete(session.PendingParams, session.PendingItem.Parameters[session.ParamIdx].Key)
			return e.parameterPrompt(session)
		}
		session.State = StateItem
		session.PendingItem = nil
		return e.itemPrompt(session)
	}

	v, err := strconv.ParseFloat(input, 64)
	if err != nil || v <= 0 {
		return Reply{Text: "Enter a quantity greater than zero.", Choices: []string{TokenBack}}
	}
	session.PendingQuantity = v
	return e.runCalculation(session)
}

// runCalculation invokes the pricing engine once for the pending item. A
// calculation failure is retryable: the session stays where it was and the
// current prompt is re-issued.
func (e *Engine) runCalculation(session *Session) Reply {
	env := pricing.Env{
		SumMaterialVolume: session.Estimate.MaterialVolume(func(category string) bool {
			return e.store.Phase(category) == catalog.PhaseMaterial
		}),
	}

	res, err := e.calc.Calculate(session.PendingItem, session.PendingParams, session.PendingQuantity, env)
	if err != nil {
		log.Printf("wizard: calculation failed for %q (user=%s): %v", session.PendingItem.Name, session.UserKey, err)
		var retry Reply
		if session.State == StateParameter {
			// Auto-quantity path: point back at the last parameter.
			session.ParamIdx = len(session.PendingItem.Parameters) - 1
			retry = e.parameterPrompt(session)
		} else {
			retry = e.quantityPrompt(session)
		}
		retry.Text = fmt.Sprintf("Could not price %q: %v\nAdjust the value or send %q to pick another item.\n%s",
			session.PendingItem.Name, err, TokenBack, retry.Text)
		return retry
	}

	session.PendingResult = res
	session.State = StatePriceConfirm

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", session.PendingItem.Name)
	fmt.Fprintf(&b, "Quantity: %s %s\n", estimate.FormatNumber(session.PendingQuantity), session.PendingItem.Unit)
	fmt.Fprintf(&b, "Price per unit: %s\n", estimate.FormatNumber(res.PricePerUnit))
	fmt.Fprintf(&b, "Total: %s\n", estimate.FormatNumber(res.TotalCost))
	if res.Volume > 0 {
		fmt.Fprintf(&b, "Volume: %s m³\n", estimate.FormatNumber(res.Volume))
	}
	if len(res.Breakdown) > 0 {
		names := make([]string, 0, len(res.Breakdown))
		for name := range res.Breakdown {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("Breakdown:\n")
		for _, name := range names {
			comp := res.Breakdown[name]
			fmt.Fprintf(&b, "  %s: %s → %s\n", name, estimate.FormatNumber(comp.Quantity), estimate.FormatNumber(comp.Cost))
		}
	}
	fmt.Fprintf(&b, "\nSend %q to accept, type your own price per unit, or %q.", TokenConfirm, TokenBack)

	return Reply{Text: b.String(), Choices: []string{TokenConfirm, TokenBack, TokenCancel}}
}

func (e *Engine) handlePriceConfirm(session *Session, input string) Reply {
	if strings.EqualFold(input, TokenBack) {
		session.PendingResult = nil
		session.PendingQuantity = 0
		if session.PendingSection == catalog.SectionTemplates && len(session.PendingItem.Parameters) > 0 {
			// Quantity was implicit; go back to the last parameter.
			session.State = StateParameter
			session.ParamIdx = len(session.PendingItem.Parameters) - 1
			delete(session.PendingParams, session.PendingItem.Parameters[session.ParamIdx].Key)
			return e.parameterPrompt(session)
		}
		session.State = StateQuantity
		return e.quantityPrompt(session)
	}

	res := session.PendingResult
	if strings.EqualFold(input, TokenConfirm) {
		return e.finalizeLineItem(session, res.PricePerUnit, res.TotalCost)
	}
	if v, err := strconv.ParseFloat(input, 64); err == nil && v > 0 {
		return e.finalizeLineItem(session, v, v*session.PendingQuantity)
	}
	return Reply{
		Text:    fmt.Sprintf("Send %q to accept the computed price, type your own price per unit, or %q.", TokenConfirm, TokenBack),
		Choices: []string{TokenConfirm, TokenBack, TokenCancel},
	}
}

// finalizeLineItem snapshots the pending item into the estimate and
// returns to category selection for the same sheet.
func (e *Engine) finalizeLineItem(session *Session, pricePerUnit, totalCost float64) Reply {
	item := session.PendingItem
	params := make(map[string]float64, len(session.PendingParams))
	for k, v := range session.PendingParams {
		params[k] = v
	}

	line := estimate.LineItem{
		Name:         item.Name,
		Category:     item.Category,
		Unit:         item.Unit,
		Params:       params,
		Quantity:     session.PendingQuantity,
		PricePerUnit: pricePerUnit,
		TotalCost:    totalCost,
		Volume:       session.PendingResult.Volume,
		Breakdown:    session.PendingResult.Breakdown,
	}
	session.Estimate.Add(session.currentSheet(), line)
	fmt.Fprintf(e.out, "wizard: line item added [user=%s sheet=%s item=%s total=%s]\n",
		session.UserKey, session.currentSheet(), line.Name, estimate.FormatNumber(line.TotalCost))

	session.clearPending()
	session.State = StateCategory
	reply := e.categoryPrompt(session)
	reply.Text = fmt.Sprintf("Saved %q — total %s.\n\n%s", line.Name, estimate.FormatNumber(line.TotalCost), reply.Text)
	return reply
}

// advance moves past the current selection pass: material phase →
// non-material phase → next sheet → document generation.
func (e *Engine) advance(session *Session) Reply {
	if session.Phase == catalog.PhaseMaterial {
		session.Phase = catalog.PhaseNonMaterial
		return e.categoryPrompt(session)
	}

	if session.SheetIdx+1 < len(session.Estimate.Sheets) {
		session.SheetIdx++
		session.Phase = catalog.PhaseMaterial
		reply := e.categoryPrompt(session)
		reply.Text = fmt.Sprintf("Moving to sheet %q.\n\n%s", session.currentSheet(), reply.Text)
		return reply
	}

	return e.finishEstimate(session)
}

// finishEstimate renders the documents. On failure the session is kept
// intact so the user does not re-enter anything; on success it is cleared.
func (e *Engine) finishEstimate(session *Session) Reply {
	paths, err := e.renderer.Render(session.UserKey, session.Estimate)
	if err != nil {
		log.Printf("wizard: document generation failed (user=%s): %v", session.UserKey, err)
		reply := e.categoryPrompt(session)
		reply.Text = fmt.Sprintf("Document generation failed: %v\nYour data is preserved — send %q to retry.\n%s",
			err, TokenNext, reply.Text)
		return reply
	}

	total := session.Estimate.GrandTotal()
	e.sessions.Delete(session.UserKey)
	fmt.Fprintf(e.out, "wizard: estimate finished [user=%s items=%d total=%s]\n",
		session.UserKey, session.Estimate.ItemCount(), estimate.FormatNumber(total))
	return Reply{
		Text:           fmt.Sprintf("All done! Estimate total: %s.", estimate.FormatNumber(total)),
		Files:          paths,
		RemoveKeyboard: true,
		Done:           true,
	}
}
