package engine

import (
	"strings"

	"github.com/mx-space/dualpanel/internal/pkg/filter"
)

// Related reports whether child belongs under parent for the configured
// method. An unknown method relates nothing.
func Related(child, parent Record, cfg Config) bool {
	if child == nil || parent == nil {
		return false
	}
	switch cfg.Match.Method {
	case MethodNameContains:
		parentName := parent.Text(cfg.Left.NameField)
		if parentName == "" {
			return false
		}
		return strings.Contains(child.Text(cfg.Right.NameField), parentName)
	case MethodCustom:
		if cfg.Match.CustomFilterField == "" || cfg.Match.CustomFilterParentField == "" {
			return false
		}
		return filter.Equal(child[cfg.Match.CustomFilterField], parent[cfg.Match.CustomFilterParentField])
	default:
		return false
	}
}

// MatchChildren returns the children visible under the active parent, in
// input order. No active parent means no candidates.
func MatchChildren(active Record, children []Record, cfg Config) []Record {
	if active == nil {
		return nil
	}
	out := make([]Record, 0)
	for _, c := range children {
		if Related(c, active, cfg) {
			out = append(out, c)
		}
	}
	return out
}

// Candidate is a right panel checkbox.
type Candidate struct {
	Key     Key    `json:"key"`
	Label   string `json:"label"`
	Group   string `json:"group"`
	Checked bool   `json:"checked"`
	Record  Record `json:"record"`
}

// CandidateGroup is a display group of candidates sharing a type value.
type CandidateGroup struct {
	Name  string      `json:"name"`
	Items []Candidate `json:"items"`
}

// GroupCandidates groups matched children by their own type value for
// display, "Other" when absent. Groups keep first-appearance order. Grouping
// never filters.
func GroupCandidates(children []Record, cfg Config, checked func(Key) bool) []CandidateGroup {
	var groups []CandidateGroup
	index := map[string]int{}
	for _, c := range children {
		key, _ := c.Key(cfg.Right.IDField)
		label := c.Text(cfg.Right.NameField)
		if label == "" {
			label = string(key)
		}
		group := c.Text(cfg.Right.TypeField)
		if group == "" {
			group = OtherGroup
		}
		item := Candidate{Key: key, Label: label, Group: group, Record: c}
		if checked != nil {
			item.Checked = checked(key)
		}
		i, ok := index[group]
		if !ok {
			i = len(groups)
			index[group] = i
			groups = append(groups, CandidateGroup{Name: group})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}
