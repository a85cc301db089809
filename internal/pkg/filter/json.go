package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MarshalJSON encodes the expression in the host's filter dialect:
// {"$and":[...]}, {"field":{"$eq":v}}, {"field":{"$is":null}},
// {"field":{"$includes":"term"}}. The empty expression encodes as {}.
func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toMap())
}

func (e Expr) toMap() map[string]any {
	switch e.Op {
	case "":
		return map[string]any{}
	case OpAnd, OpOr:
		args := make([]any, 0, len(e.Args))
		for _, a := range e.Args {
			args = append(args, a.toMap())
		}
		return map[string]any{string(e.Op): args}
	case OpIs:
		return map[string]any{e.Field: map[string]any{string(OpIs): nil}}
	default:
		return map[string]any{e.Field: map[string]any{string(e.Op): e.Value}}
	}
}

// UnmarshalJSON decodes the host's filter dialect. A bare field value is the
// shorthand for $eq; several keys in one object are joined with AND in key
// order.
func (e *Expr) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*e = Expr{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filter must be an object: %w", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Parse converts a decoded filter object into an expression.
func Parse(raw map[string]any) (Expr, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Expr, 0, len(keys))
	for _, key := range keys {
		value := raw[key]
		switch Op(key) {
		case OpAnd, OpOr:
			list, ok := value.([]any)
			if !ok {
				return Expr{}, fmt.Errorf("%s expects an array", key)
			}
			args := make([]Expr, 0, len(list))
			for i, item := range list {
				obj, ok := item.(map[string]any)
				if !ok {
					return Expr{}, fmt.Errorf("%s[%d] must be an object", key, i)
				}
				sub, err := Parse(obj)
				if err != nil {
					return Expr{}, err
				}
				args = append(args, sub)
			}
			if Op(key) == OpAnd {
				parts = append(parts, And(args...))
			} else {
				parts = append(parts, Or(args...))
			}
		default:
			if strings.HasPrefix(key, "$") {
				return Expr{}, fmt.Errorf("unsupported logical operator %q", key)
			}
			sub, err := parseField(key, value)
			if err != nil {
				return Expr{}, err
			}
			parts = append(parts, sub)
		}
	}
	return And(parts...), nil
}

func parseField(field string, value any) (Expr, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return Eq(field, value), nil
	}
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]Expr, 0, len(names))
	for _, name := range names {
		arg := ops[name]
		switch Op(name) {
		case OpEq:
			parts = append(parts, Eq(field, arg))
		case OpIs:
			if arg != nil {
				return Expr{}, fmt.Errorf("%s.$is only supports null", field)
			}
			parts = append(parts, IsNull(field))
		case OpIncludes:
			term, ok := arg.(string)
			if !ok {
				if f, isNum := toFloat(arg); isNum {
					term = formatNumber(f)
				} else {
					return Expr{}, fmt.Errorf("%s.$includes expects a string", field)
				}
			}
			parts = append(parts, Includes(field, term))
		default:
			return Expr{}, fmt.Errorf("unsupported operator %q on %s", name, field)
		}
	}
	return And(parts...), nil
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
