package engine

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/hashicorp/go-set/v2"
)

// State is the selection of one selector session. Right panel visibility is
// never stored: it is always derived from Active. Right may hold keys that
// are not visible under the current Active parent.
type State struct {
	Left   *set.Set[Key]
	Right  *set.Set[Key]
	Active *Key
}

// NewState returns an empty selection.
func NewState() State {
	return State{Left: set.New[Key](0), Right: set.New[Key](0)}
}

// Clone returns an independent copy.
func (s State) Clone() State {
	out := State{Left: copySet(s.Left), Right: copySet(s.Right)}
	if s.Active != nil {
		k := *s.Active
		out.Active = &k
	}
	return out
}

func copySet(in *set.Set[Key]) *set.Set[Key] {
	if in == nil {
		return set.New[Key](0)
	}
	return set.From(in.Slice())
}

// LeftKeys returns the left selection in stable order.
func (s State) LeftKeys() []Key { return SortedKeys(s.Left) }

// RightKeys returns the right selection in stable order.
func (s State) RightKeys() []Key { return SortedKeys(s.Right) }

type stateJSON struct {
	Left   []Key `json:"leftSelectedKeys"`
	Right  []Key `json:"rightSelectedKeys"`
	Active *Key  `json:"activeLeftKey"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{Left: s.LeftKeys(), Right: s.RightKeys(), Active: s.Active})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Left = set.From(raw.Left)
	s.Right = set.From(raw.Right)
	s.Active = raw.Active
	return nil
}

// SortedKeys lists a key set with numeric keys first in numeric order, then
// the remaining keys lexically.
func SortedKeys(in *set.Set[Key]) []Key {
	if in == nil {
		return []Key{}
	}
	out := in.Slice()
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i], out[j]) })
	return out
}

func keyLess(a, b Key) bool {
	fa, errA := strconv.ParseFloat(string(a), 64)
	fb, errB := strconv.ParseFloat(string(b), 64)
	switch {
	case errA == nil && errB == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
