package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/huandu/go-clone"
)

// Record is one row of the parent or child collection. Field names are
// supplied by configuration; the engine never assumes a schema.
type Record map[string]any

// Key is the canonical string form of a record's identifying value.
type Key string

// KeyOf canonicalises an identifying value. Integral numbers render without a
// fractional part so rows loaded from SQL (int64) and rows decoded from JSON
// (float64) resolve to the same key.
func KeyOf(v any) (Key, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		if x == "" {
			return "", false
		}
		return Key(x), true
	case Key:
		return x, x != ""
	case bool:
		return Key(strconv.FormatBool(x)), true
	case int:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int8:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int16:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int32:
		return Key(strconv.FormatInt(int64(x), 10)), true
	case int64:
		return Key(strconv.FormatInt(x, 10)), true
	case uint:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint8:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint16:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint32:
		return Key(strconv.FormatUint(uint64(x), 10)), true
	case uint64:
		return Key(strconv.FormatUint(x, 10)), true
	case float32:
		return floatKey(float64(x))
	case float64:
		return floatKey(x)
	case []byte:
		if len(x) == 0 {
			return "", false
		}
		return Key(string(x)), true
	case interface{ Hex() string }:
		s := x.Hex()
		return Key(s), s != ""
	case fmt.Stringer:
		s := x.String()
		return Key(s), s != ""
	default:
		return "", false
	}
}

func floatKey(f float64) (Key, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Key(strconv.FormatInt(int64(f), 10)), true
	}
	return Key(strconv.FormatFloat(f, 'f', -1, 64)), true
}

// Keys converts raw identifying values into keys, skipping values without one.
func Keys(values ...any) []Key {
	out := make([]Key, 0, len(values))
	for _, v := range values {
		if k, ok := KeyOf(v); ok {
			out = append(out, k)
		}
	}
	return out
}

// Key returns the record's key under the given id field.
func (r Record) Key(field string) (Key, bool) {
	if r == nil || field == "" {
		return "", false
	}
	return KeyOf(r[field])
}

// Text returns a field rendered as text. Strings are returned as is, numbers
// and booleans are formatted, anything else yields "".
func (r Record) Text(field string) string {
	if r == nil || field == "" {
		return ""
	}
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		k, _ := KeyOf(v)
		return string(k)
	default:
		return ""
	}
}

// Has reports whether the field is present with a non-nil value.
func (r Record) Has(field string) bool {
	if r == nil || field == "" {
		return false
	}
	v, ok := r[field]
	return ok && v != nil
}

// Clone returns a deep copy so callers can tag or mutate it without touching
// the loaded snapshot.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return clone.Clone(r).(Record)
}

// Tagged returns a copy of the record carrying typeField = typeValue.
func (r Record) Tagged(typeField, typeValue string) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	if typeField != "" {
		out[typeField] = typeValue
	}
	return out
}

// ItemLabel is the display text of a committed value item.
func ItemLabel(r Record) string {
	for _, field := range []string{"name", "nickname", "username", "title", "label"} {
		if s := strings.TrimSpace(r.Text(field)); s != "" {
			return s
		}
	}
	if k, ok := r.Key("id"); ok {
		return string(k)
	}
	return "Unknown"
}
