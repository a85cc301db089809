package engine

import "github.com/hashicorp/go-set/v2"

// Change lists what a transition did to the selection.
type Change struct {
	LeftAdded    []Key `json:"leftAdded,omitempty"`
	LeftRemoved  []Key `json:"leftRemoved,omitempty"`
	RightAdded   []Key `json:"rightAdded,omitempty"`
	RightRemoved []Key `json:"rightRemoved,omitempty"`
}

// Empty reports whether the transition changed nothing.
func (c Change) Empty() bool {
	return len(c.LeftAdded) == 0 && len(c.LeftRemoved) == 0 && len(c.RightAdded) == 0 && len(c.RightRemoved) == 0
}

// Synchronizer owns a session's State and keeps the two panels consistent.
// It is not safe for concurrent use; the session layer serialises events.
type Synchronizer struct {
	cfg    Config
	state  State
	forest *Forest

	left       []Record
	right      []Record
	leftByKey  map[Key]Record
	rightByKey map[Key]Record

	// pendingLeft holds imported parent keys not yet found in the tree.
	pendingLeft []Key
	deferred    bool
	replaceLeft bool
}

// NewSynchronizer returns a synchronizer with an empty selection and no data.
func NewSynchronizer(cfg Config) *Synchronizer {
	return &Synchronizer{
		cfg:        cfg,
		state:      NewState(),
		forest:     NewForest(nil),
		leftByKey:  map[Key]Record{},
		rightByKey: map[Key]Record{},
	}
}

// Config returns the resolved configuration.
func (s *Synchronizer) Config() Config { return s.cfg }

// State returns a copy of the current selection.
func (s *Synchronizer) State() State { return s.state.Clone() }

// Restore replaces the selection, e.g. with keys retained from a cancelled
// session.
func (s *Synchronizer) Restore(st State) {
	s.state = st.Clone()
}

// Forest returns the current left panel tree.
func (s *Synchronizer) Forest() *Forest { return s.forest }

// LeftRecords returns the loaded parent page.
func (s *Synchronizer) LeftRecords() []Record { return s.left }

// RightRecords returns the loaded child page.
func (s *Synchronizer) RightRecords() []Record { return s.right }

// Deferred reports whether left import still waits for tree data.
func (s *Synchronizer) Deferred() bool { return s.deferred }

// SetLeftRecords installs a freshly fetched parent page and rebuilds the
// tree. Pending imported parents found in the new tree join the left
// selection; the rest keep waiting for a later page. The right selection is
// not touched.
func (s *Synchronizer) SetLeftRecords(records []Record) {
	s.left = records
	s.leftByKey = indexRecords(records, s.cfg.Left.IDField)
	s.forest = NewForest(BuildTree(records, s.cfg.Left))

	if s.deferred && !s.forest.Empty() {
		s.resolvePending()
	}
}

func (s *Synchronizer) resolvePending() {
	var found, rest []Key
	for _, k := range s.pendingLeft {
		if s.forest.Find(k) != nil {
			found = append(found, k)
		} else {
			rest = append(rest, k)
		}
	}
	leaves := ImportLeft(found, s.forest)
	if s.replaceLeft {
		s.state.Left = set.From(leaves)
		s.replaceLeft = false
	} else {
		s.state.Left.InsertSlice(leaves)
	}
	s.pendingLeft = rest
	s.deferred = len(rest) > 0
}

// SetRightRecords installs a freshly fetched child page.
func (s *Synchronizer) SetRightRecords(records []Record) {
	s.right = records
	s.rightByKey = indexRecords(records, s.cfg.Right.IDField)
}

func indexRecords(records []Record, idField string) map[Key]Record {
	out := make(map[Key]Record, len(records))
	for _, r := range records {
		if k, ok := r.Key(idField); ok {
			if _, dup := out[k]; !dup {
				out[k] = r
			}
		}
	}
	return out
}

// ActiveRecord returns the loaded record of the active parent, if any.
func (s *Synchronizer) ActiveRecord() Record {
	if s.state.Active == nil {
		return nil
	}
	return s.leftByKey[*s.state.Active]
}

// Visible returns the children currently shown in the right panel.
func (s *Synchronizer) Visible() []Record {
	return MatchChildren(s.ActiveRecord(), s.right, s.cfg)
}

func (s *Synchronizer) visibleKeys() *set.Set[Key] {
	visible := s.Visible()
	out := set.New[Key](len(visible))
	for _, r := range visible {
		if k, ok := r.Key(s.cfg.Right.IDField); ok {
			out.Insert(k)
		}
	}
	return out
}

// CheckRight applies the checkbox group's report of the checked visible
// children. Selected children hidden under the active parent are kept, so
// switching parents never drops them. Checking any new child marks the
// active parent as selected on the left.
func (s *Synchronizer) CheckRight(checkedVisible []Key) Change {
	visible := s.visibleKeys()
	next := set.New[Key](s.state.Right.Size() + len(checkedVisible))
	var change Change

	for _, k := range s.state.Right.Slice() {
		if !visible.Contains(k) {
			next.Insert(k)
		}
	}
	for _, k := range checkedVisible {
		if !visible.Contains(k) {
			continue
		}
		if next.Insert(k) && !s.state.Right.Contains(k) {
			change.RightAdded = append(change.RightAdded, k)
		}
	}
	for _, k := range s.state.Right.Slice() {
		if !next.Contains(k) {
			change.RightRemoved = append(change.RightRemoved, k)
		}
	}
	s.state.Right = next

	if s.state.Active != nil && len(change.RightAdded) > 0 {
		if s.state.Left.Insert(*s.state.Active) {
			change.LeftAdded = append(change.LeftAdded, *s.state.Active)
		}
	}
	return change
}

// CheckRightDelta is CheckRight driven by newly checked and newly unchecked
// keys instead of the full visible report.
func (s *Synchronizer) CheckRightDelta(added, removed []Key) Change {
	visible := s.visibleKeys()
	drop := set.From(removed)
	checked := make([]Key, 0, visible.Size()+len(added))
	for _, k := range s.state.Right.Slice() {
		if visible.Contains(k) && !drop.Contains(k) {
			checked = append(checked, k)
		}
	}
	for _, k := range added {
		if !drop.Contains(k) {
			checked = append(checked, k)
		}
	}
	return s.CheckRight(checked)
}

// CheckLeft replaces the left selection with the tree widget's full checked
// set. Every newly unchecked parent, together with its whole subtree, forms
// the removed set; selected children related to any removed parent leave the
// right selection. Selected children that are not loaded cannot be judged
// and stay.
func (s *Synchronizer) CheckLeft(checked []Key) Change {
	prev := s.state.Left
	next := set.From(checked)
	var change Change

	for _, k := range checked {
		if !prev.Contains(k) {
			change.LeftAdded = appendUnique(change.LeftAdded, k)
		}
	}
	removedParents := set.New[Key](0)
	for _, k := range SortedKeys(prev) {
		if next.Contains(k) {
			continue
		}
		change.LeftRemoved = append(change.LeftRemoved, k)
		removedParents.Insert(k)
		for _, d := range s.forest.DescendantKeys(k) {
			removedParents.Insert(d)
		}
	}
	s.state.Left = next

	if removedParents.Empty() {
		return change
	}
	parents := make([]Record, 0, removedParents.Size())
	for _, k := range removedParents.Slice() {
		if r, ok := s.leftByKey[k]; ok {
			parents = append(parents, r)
		}
	}
	for _, k := range SortedKeys(s.state.Right) {
		child, ok := s.rightByKey[k]
		if !ok {
			continue
		}
		for _, p := range parents {
			if Related(child, p, s.cfg) {
				s.state.Right.Remove(k)
				change.RightRemoved = append(change.RightRemoved, k)
				break
			}
		}
	}
	return change
}

func appendUnique(list []Key, k Key) []Key {
	for _, existing := range list {
		if existing == k {
			return list
		}
	}
	return append(list, k)
}

// SetActive makes key the parent whose children the right panel shows. A nil
// key clears it. Neither selection changes.
func (s *Synchronizer) SetActive(key *Key) {
	if key == nil {
		s.state.Active = nil
		return
	}
	k := *key
	s.state.Active = &k
}

// Reset clears the active parent when the selector closes without
// confirming. Both selections are kept for the next open.
func (s *Synchronizer) Reset() {
	s.state.Active = nil
}

// Import reconciles an external value into the selection. When the tree is
// not loaded yet, left resolution is deferred until SetLeftRecords brings
// tree data; the left selection is left as it was meanwhile. A key stays
// pending until a loaded page contains it, so a filtered first page does not
// drop it.
func (s *Synchronizer) Import(value []Record) {
	imported := Import(value, s.forest, s.cfg)
	s.state.Right = imported.State.Right
	if imported.Deferred {
		s.pendingLeft = imported.LeftKeys
		s.deferred = len(s.pendingLeft) > 0
		s.replaceLeft = true
	} else {
		s.deferred = false
		s.pendingLeft = nil
		s.replaceLeft = false
		s.state.Left = imported.State.Left
	}
	if imported.State.Active != nil {
		s.state.Active = imported.State.Active
	}
}

// Export flattens the selection into the external value shape.
func (s *Synchronizer) Export() []Record {
	return Export(s.state, s.forest, s.left, s.right, s.cfg)
}
