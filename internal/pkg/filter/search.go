package filter

import (
	"slices"
	"strconv"
	"strings"
)

// FieldMeta describes one field of the target collection.
type FieldMeta struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Interface string `json:"interface"`
}

var (
	sensitiveKinds = []string{"password", "token"}
	sensitiveNames = []string{"password", "token", "resettoken", "accesstoken", "refreshtoken", "apitoken"}

	searchableTypes = []string{
		"string", "text", "email", "phone", "uid", "nanoid",
		"integer", "bigInt", "float", "double", "decimal",
	}
	searchableInterfaces = []string{
		"input", "textarea", "email", "phone", "integer", "number",
		"percent", "currency", "select", "radioGroup", "checkboxGroup",
	}
	numericTypes = []string{"integer", "bigInt", "float", "double", "decimal"}
)

// SearchableFields keeps the fields a keyword search may look at. Secret
// bearing fields are dropped by type, interface or name.
func SearchableFields(fields []FieldMeta) []FieldMeta {
	out := make([]FieldMeta, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			continue
		}
		if slices.Contains(sensitiveKinds, f.Type) || slices.Contains(sensitiveKinds, f.Interface) {
			continue
		}
		lower := strings.ToLower(f.Name)
		if slices.ContainsFunc(sensitiveNames, func(n string) bool { return strings.Contains(lower, n) }) {
			continue
		}
		if slices.Contains(searchableTypes, f.Type) || slices.Contains(searchableInterfaces, f.Interface) {
			out = append(out, f)
		}
	}
	return out
}

// Search builds the keyword predicate. With collection metadata (fields not
// nil) every searchable field is OR-ed, numeric fields also accept an exact
// match on a numeric term. Without metadata the fallback label field is
// searched alone. A blank term yields the empty filter.
func Search(term string, fields []FieldMeta, fallbackField string) Expr {
	term = strings.TrimSpace(term)
	if term == "" {
		return Expr{}
	}
	if fields == nil {
		if fallbackField == "" {
			fallbackField = "name"
		}
		return Includes(fallbackField, term)
	}

	searchable := SearchableFields(fields)
	if len(searchable) == 0 {
		return Expr{}
	}
	number, numErr := strconv.ParseFloat(term, 64)
	conds := make([]Expr, 0, len(searchable))
	for _, f := range searchable {
		if numErr == nil && slices.Contains(numericTypes, f.Type) {
			conds = append(conds, Expr{Op: OpOr, Args: []Expr{Includes(f.Name, term), Eq(f.Name, number)}})
			continue
		}
		conds = append(conds, Includes(f.Name, term))
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return Expr{Op: OpOr, Args: conds}
}

// Association describes the host field's relation to its target collection.
type Association struct {
	Target     string `json:"target"`
	ForeignKey string `json:"foreignKey"`
	SourceKey  string `json:"sourceKey"`
	TargetKey  string `json:"targetKey"`
	Interface  string `json:"interface"`
}

// LabelField is the field searched when the target collection has no
// metadata.
func (a Association) LabelField() string {
	if a.TargetKey != "" {
		return a.TargetKey
	}
	return "name"
}

// AssociationScope limits one-to-one and one-to-many candidates to rows that
// are unassigned or already assigned to the host record.
func AssociationScope(a Association, host map[string]any) Expr {
	if a.ForeignKey == "" || host == nil {
		return Expr{}
	}
	if a.Interface != "oho" && a.Interface != "o2m" {
		return Expr{}
	}
	source := a.SourceKey
	if source == "" {
		source = "id"
	}
	v, ok := host[source]
	if !ok || v == nil {
		return Expr{}
	}
	return Or(IsNull(a.ForeignKey), Eq(a.ForeignKey, v))
}
