package engine

import "github.com/hashicorp/go-set/v2"

// Imported is the result of reconciling an external value.
type Imported struct {
	State State
	// LeftKeys are the parent keys found in the value, in value order, before
	// leaf resolution.
	LeftKeys []Key
	// Deferred is set when the tree was not loaded yet; State.Left is then
	// empty and ImportLeft must run once tree data arrives.
	Deferred bool
}

// Import partitions a tagged value into a selection. Child keys go straight
// to the right selection. Parent keys are reduced to leaves of the forest so
// ancestors are only ever derived on export. The first parent becomes active
// when the value also holds children.
func Import(value []Record, forest *Forest, cfg Config) Imported {
	leftKeys, rightKeys := partition(value, cfg)

	out := Imported{State: NewState(), LeftKeys: leftKeys}
	out.State.Right = set.From(rightKeys)

	if len(leftKeys) > 0 {
		if forest.Empty() {
			out.Deferred = true
		} else {
			out.State.Left = set.From(ImportLeft(leftKeys, forest))
		}
	}

	if len(leftKeys) > 0 && len(rightKeys) > 0 {
		first := leftKeys[0]
		out.State.Active = &first
	}
	return out
}

// ImportLeft resolves imported parent keys against tree data, keeping only
// keys of leaf nodes.
func ImportLeft(keys []Key, forest *Forest) []Key {
	out := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if forest.IsLeaf(k) {
			out = append(out, k)
		}
	}
	return out
}

func partition(value []Record, cfg Config) (left, right []Key) {
	seenLeft := map[Key]struct{}{}
	seenRight := map[Key]struct{}{}
	for _, r := range value {
		switch {
		case isTagged(r, cfg.Left.PanelConfig):
			if k, ok := r.Key(cfg.Left.IDField); ok {
				if _, dup := seenLeft[k]; !dup {
					seenLeft[k] = struct{}{}
					left = append(left, k)
				}
			}
		case isTagged(r, cfg.Right):
			if k, ok := r.Key(cfg.Right.IDField); ok {
				if _, dup := seenRight[k]; !dup {
					seenRight[k] = struct{}{}
					right = append(right, k)
				}
			}
		}
	}
	return left, right
}

func isTagged(r Record, p PanelConfig) bool {
	return p.TypeField != "" && r.Has(p.TypeField) && r.Text(p.TypeField) == p.TypeValue
}

// Export flattens a selection into the tagged value: selected parents and
// all of their ancestors first, in loaded order and without duplicates, then
// selected children in loaded order. Keys whose records are not loaded are
// dropped.
func Export(state State, forest *Forest, left, right []Record, cfg Config) []Record {
	parents := set.New[Key](0)
	if state.Left != nil {
		for _, k := range state.Left.Slice() {
			parents.Insert(k)
			for _, a := range forest.AncestorKeys(k) {
				parents.Insert(a)
			}
		}
	}

	out := make([]Record, 0, parents.Size())
	emitted := set.New[Key](parents.Size())
	for _, r := range left {
		k, ok := r.Key(cfg.Left.IDField)
		if !ok || !parents.Contains(k) || !emitted.Insert(k) {
			continue
		}
		out = append(out, r.Tagged(cfg.Left.TypeField, cfg.Left.TypeValue))
	}

	if state.Right == nil {
		return out
	}
	emitted = set.New[Key](state.Right.Size())
	for _, r := range right {
		k, ok := r.Key(cfg.Right.IDField)
		if !ok || !state.Right.Contains(k) || !emitted.Insert(k) {
			continue
		}
		out = append(out, r.Tagged(cfg.Right.TypeField, cfg.Right.TypeValue))
	}
	return out
}

// RemoveValueItem drops the item with the given key from a committed value.
// Each item is matched by the id field of the panel its tag names; untagged
// items fall back to the left id field.
func RemoveValueItem(value []Record, key Key, cfg Config) []Record {
	out := make([]Record, 0, len(value))
	for _, r := range value {
		idField := cfg.Left.IDField
		if isTagged(r, cfg.Right) {
			idField = cfg.Right.IDField
		}
		if k, ok := r.Key(idField); ok && k == key {
			continue
		}
		out = append(out, r)
	}
	return out
}
