// Package formula evaluates small arithmetic expressions over a closed
// variable and function namespace. The grammar covers arithmetic,
// comparisons, a Python-style conditional (a if cond else b) and an
// allow-listed function set; nothing outside the allow-list resolves, so an
// expression can never reach ambient program state.
package formula

import (
	"fmt"
	"math"
)

// Error reports a failed evaluation together with the offending expression.
// Callers treat it as recoverable.
type Error struct {
	Expr string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula: %q: %s", e.Expr, e.Msg)
}

func errorf(expr, format string, args ...interface{}) error {
	return &Error{Expr: expr, Msg: fmt.Sprintf(format, args...)}
}

// constants are the built-in named values. Caller variables take
// precedence, which keeps evaluation deterministic when a catalog formula
// shadows a constant name.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// function is an allow-listed callable. Arity is checked before invocation;
// arity -1 means variadic with at least one argument.
type function struct {
	arity int
	call  func(args []float64) (float64, error)
}

var functions = map[string]function{
	"abs":   {1, func(a []float64) (float64, error) { return math.Abs(a[0]), nil }},
	"round": {1, func(a []float64) (float64, error) { return math.Round(a[0]), nil }},
	"ceil":  {1, func(a []float64) (float64, error) { return math.Ceil(a[0]), nil }},
	"floor": {1, func(a []float64) (float64, error) { return math.Floor(a[0]), nil }},
	"sqrt": {1, func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, fmt.Errorf("sqrt of negative value %v", a[0])
		}
		return math.Sqrt(a[0]), nil
	}},
	"pow": {2, func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil }},
	"min": {-1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {-1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
}

// Eval parses and evaluates expr against the given variables.
func Eval(expr string, vars map[string]float64) (float64, error) {
	e, err := Parse(expr)
	if err != nil {
		return 0, err
	}
	return e.Eval(vars)
}

// Expr is a parsed expression, reusable across evaluations.
type Expr struct {
	src  string
	root node
}

// Parse compiles expr into a reusable Expr.
func Parse(expr string) (*Expr, error) {
	p := &parser{src: expr}
	if err := p.lex(); err != nil {
		return nil, err
	}
	root, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, errorf(expr, "unexpected %q", p.peek().text)
	}
	return &Expr{src: expr, root: root}, nil
}

// Eval evaluates the compiled expression against vars.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	return e.root.eval(e.src, vars)
}

// String returns the original source text.
func (e *Expr) String() string { return e.src }

type node interface {
	eval(src string, vars map[string]float64) (float64, error)
}

type numberNode float64

func (n numberNode) eval(string, map[string]float64) (float64, error) {
	return float64(n), nil
}

type varNode string

func (n varNode) eval(src string, vars map[string]float64) (float64, error) {
	if v, ok := vars[string(n)]; ok {
		return v, nil
	}
	if v, ok := constants[string(n)]; ok {
		return v, nil
	}
	return 0, errorf(src, "unknown identifier %q", string(n))
}

type unaryNode struct {
	operand node
}

func (n unaryNode) eval(src string, vars map[string]float64) (float64, error) {
	v, err := n.operand.eval(src, vars)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(src string, vars map[string]float64) (float64, error) {
	l, err := n.left.eval(src, vars)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(src, vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, errorf(src, "division by zero")
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return 0, errorf(src, "modulo by zero")
		}
		return math.Mod(l, r), nil
	case "<":
		return boolValue(l < r), nil
	case "<=":
		return boolValue(l <= r), nil
	case ">":
		return boolValue(l > r), nil
	case ">=":
		return boolValue(l >= r), nil
	case "==":
		return boolValue(l == r), nil
	case "!=":
		return boolValue(l != r), nil
	}
	return 0, errorf(src, "unknown operator %q", n.op)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// condNode is `value if cond else alt`. Only the taken branch is evaluated,
// so a guarded division cannot fail on the untaken side.
type condNode struct {
	value, cond, alt node
}

func (n condNode) eval(src string, vars map[string]float64) (float64, error) {
	c, err := n.cond.eval(src, vars)
	if err != nil {
		return 0, err
	}
	if c != 0 {
		return n.value.eval(src, vars)
	}
	return n.alt.eval(src, vars)
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(src string, vars map[string]float64) (float64, error) {
	fn, ok := functions[n.name]
	if !ok {
		return 0, errorf(src, "unknown function %q", n.name)
	}
	if fn.arity >= 0 && len(n.args) != fn.arity {
		return 0, errorf(src, "%s expects %d argument(s), got %d", n.name, fn.arity, len(n.args))
	}
	if fn.arity < 0 && len(n.args) == 0 {
		return 0, errorf(src, "%s expects at least one argument", n.name)
	}
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(src, vars)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	v, err := fn.call(args)
	if err != nil {
		return 0, errorf(src, "%v", err)
	}
	return v, nil
}
