package session

import (
	"fmt"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
)

// View is the render model of a session.
type View struct {
	ID          string                  `json:"id"`
	Field       string                  `json:"field"`
	Text        engine.TextConfig       `json:"text"`
	RightTitle  string                  `json:"rightTitle"`
	Tree        []*engine.TreeNode      `json:"tree"`
	LeftEmpty   string                  `json:"leftEmptyText,omitempty"`
	State       engine.State            `json:"state"`
	Candidates  []engine.CandidateGroup `json:"candidates"`
	RightEmpty  string                  `json:"rightEmptyText,omitempty"`
	Search      SearchView              `json:"search"`
	Diagnostics []string                `json:"diagnostics,omitempty"`
}

// SearchView reports the keyword search state. Pending is set while a
// debounced search has not been applied yet.
type SearchView struct {
	Term    string `json:"term"`
	Pending bool   `json:"pending"`
}

// View renders the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.sel.State()
	v := View{
		ID:          s.id,
		Field:       s.field.Name,
		Text:        s.cfg.Text,
		RightTitle:  s.cfg.Text.RightTitle,
		Tree:        s.sel.Forest().Roots(),
		State:       st,
		Search:      SearchView{Term: s.term, Pending: s.applied != s.seq},
		Diagnostics: s.diagnostics,
	}
	if v.Tree == nil {
		v.Tree = []*engine.TreeNode{}
	}
	if len(v.Tree) == 0 {
		v.LeftEmpty = s.cfg.Text.EmptyText
	}

	if st.Active != nil {
		name := "Unknown"
		if active := s.sel.ActiveRecord(); active != nil {
			if n := active.Text(s.cfg.Left.NameField); n != "" {
				name = n
			}
		}
		v.RightTitle = fmt.Sprintf("%s (%s)", s.cfg.Text.RightTitle, name)
	}

	v.Candidates = engine.GroupCandidates(s.sel.Visible(), s.cfg, st.Right.Contains)
	if v.Candidates == nil {
		v.Candidates = []engine.CandidateGroup{}
	}
	if len(v.Candidates) == 0 {
		v.RightEmpty = s.cfg.Text.NoButtonsText
	}
	return v
}
