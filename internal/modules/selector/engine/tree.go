package engine

import "encoding/json"

// codeField is the secondary attribute parent links resolve through. It lets
// a hierarchy link by a human readable code instead of the numeric id.
const codeField = "code"

// TreeNode is one parent record placed in the hierarchy.
type TreeNode struct {
	Key      Key
	Title    string
	Children []*TreeNode
	Record   Record
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool { return len(n.Children) == 0 }

// MarshalJSON renders the node the way tree widgets consume it: the record's
// own fields plus key, title and children.
func (n *TreeNode) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Record)+3)
	for k, v := range n.Record {
		out[k] = v
	}
	out["key"] = n.Key
	out["title"] = n.Title
	children := n.Children
	if children == nil {
		children = []*TreeNode{}
	}
	out["children"] = children
	return json.Marshal(out)
}

func newNode(r Record, cfg LeftPanelConfig) *TreeNode {
	key, _ := r.Key(cfg.IDField)
	title := r.Text(cfg.NameField)
	if title == "" {
		title = string(key)
	}
	return &TreeNode{Key: key, Title: title, Record: r}
}

// BuildTree turns flat parent records into the left panel hierarchy.
//
// Without tree mode every record maps to a childless root in input order.
// Otherwise a record whose parent field names another record's code becomes
// that record's child (input order); an unresolved or empty parent link makes
// it a root. Parent chains are not checked for cycles: a record that links to
// itself or into a loop ends up unreachable from the roots.
func BuildTree(records []Record, cfg LeftPanelConfig) []*TreeNode {
	if !cfg.TreeEnabled() {
		out := make([]*TreeNode, 0, len(records))
		for _, r := range records {
			out = append(out, newNode(r, cfg))
		}
		return out
	}

	nodes := make([]*TreeNode, len(records))
	byCode := make(map[Key]*TreeNode, len(records))
	for i, r := range records {
		n := newNode(r, cfg)
		nodes[i] = n
		if code, ok := r.Key(codeField); ok {
			byCode[code] = n
		}
	}

	roots := make([]*TreeNode, 0, len(records))
	for i, r := range records {
		n := nodes[i]
		parentCode, ok := r.Key(cfg.ParentField)
		if !ok {
			roots = append(roots, n)
			continue
		}
		parent, found := byCode[parentCode]
		if !found {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}
