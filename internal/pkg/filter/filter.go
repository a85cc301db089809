package filter

import (
	"reflect"
	"strings"
)

// Op is a predicate operator in the host's filter dialect.
type Op string

const (
	OpAnd      Op = "$and"
	OpOr       Op = "$or"
	OpEq       Op = "$eq"
	OpIs       Op = "$is"
	OpIncludes Op = "$includes"
)

// Expr is a filter predicate. The zero value matches every record.
type Expr struct {
	Op    Op
	Field string
	Value any
	Args  []Expr
}

// IsEmpty reports whether the expression is the universal filter.
func (e Expr) IsEmpty() bool { return e.Op == "" }

// Eq matches records whose field equals v.
func Eq(field string, v any) Expr { return Expr{Op: OpEq, Field: field, Value: v} }

// IsNull matches records whose field is null or absent.
func IsNull(field string) Expr { return Expr{Op: OpIs, Field: field} }

// Includes matches records whose field contains term, ignoring case.
func Includes(field, term string) Expr { return Expr{Op: OpIncludes, Field: field, Value: term} }

// And joins the non-empty expressions. A single survivor is returned as is.
func And(exprs ...Expr) Expr { return join(OpAnd, exprs) }

// Or joins the non-empty expressions. A single survivor is returned as is.
func Or(exprs ...Expr) Expr { return join(OpOr, exprs) }

func join(op Op, exprs []Expr) Expr {
	args := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if !e.IsEmpty() {
			args = append(args, e)
		}
	}
	switch len(args) {
	case 0:
		return Expr{}
	case 1:
		return args[0]
	default:
		return Expr{Op: op, Args: args}
	}
}

// CommonFilter is an extra equality constraint applied to both panels.
type CommonFilter struct {
	Enabled bool   `json:"enabled"`
	Field   string `json:"field"`
	Value   any    `json:"value"`
}

// Expr returns the equality predicate, or the empty filter when the common
// filter is disabled or incomplete.
func (c CommonFilter) Expr() Expr {
	if !c.Enabled || strings.TrimSpace(c.Field) == "" || isBlank(c.Value) {
		return Expr{}
	}
	return Eq(c.Field, c.Value)
}

// Compose collects the common filter, the base filter and the panel filter in
// that order. Nothing collected yields the empty filter, one filter is
// returned unchanged and several are joined with AND.
func Compose(base, panel Expr, common CommonFilter) Expr {
	filters := make([]Expr, 0, 3)
	if c := common.Expr(); !c.IsEmpty() {
		filters = append(filters, c)
	}
	if !base.IsEmpty() {
		filters = append(filters, base)
	}
	if !panel.IsEmpty() {
		filters = append(filters, panel)
	}
	switch len(filters) {
	case 0:
		return Expr{}
	case 1:
		return filters[0]
	default:
		return Expr{Op: OpAnd, Args: filters}
	}
}

// Match evaluates the expression against an in-memory record.
func (e Expr) Match(rec map[string]any) bool {
	switch e.Op {
	case "":
		return true
	case OpAnd:
		for _, a := range e.Args {
			if !a.Match(rec) {
				return false
			}
		}
		return true
	case OpOr:
		for _, a := range e.Args {
			if a.Match(rec) {
				return true
			}
		}
		return false
	case OpEq:
		return Equal(rec[e.Field], e.Value)
	case OpIs:
		return rec[e.Field] == nil
	case OpIncludes:
		term, _ := e.Value.(string)
		text, ok := textOf(rec[e.Field])
		return ok && strings.Contains(strings.ToLower(text), strings.ToLower(term))
	default:
		return false
	}
}

// Equal compares two field values strictly: strings never equal numbers,
// numeric kinds compare by value and nil equals nothing.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func textOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case nil:
		return "", false
	}
	if f, ok := toFloat(v); ok {
		return formatNumber(f), true
	}
	return "", false
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	}
	f, ok := toFloat(v)
	return ok && f == 0
}
