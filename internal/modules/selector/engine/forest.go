package engine

// Forest is the built left panel tree. It is rebuilt whenever parent records
// arrive and shared read-only by the synchronizer and the reconciler.
//
// Lookups walk the tree depth first without memoization: AncestorKeys is
// O(n) in the worst case and DescendantKeys is O(n) to find the node plus
// O(subtree) to collect. That is fine for a single fetched page of parents
// (bounded by the source page size) and is the scaling limit to revisit if
// pages grow by orders of magnitude.
type Forest struct {
	roots []*TreeNode
}

// NewForest wraps built roots.
func NewForest(roots []*TreeNode) *Forest {
	return &Forest{roots: roots}
}

// Roots returns the top-level nodes.
func (f *Forest) Roots() []*TreeNode {
	if f == nil {
		return nil
	}
	return f.roots
}

// Empty reports whether no tree data is available yet.
func (f *Forest) Empty() bool { return f == nil || len(f.roots) == 0 }

// Find returns the first node with the key in depth-first order.
func (f *Forest) Find(key Key) *TreeNode {
	if f == nil {
		return nil
	}
	return findNode(f.roots, key)
}

func findNode(nodes []*TreeNode, key Key) *TreeNode {
	for _, n := range nodes {
		if n.Key == key {
			return n
		}
		if found := findNode(n.Children, key); found != nil {
			return found
		}
	}
	return nil
}

// IsLeaf reports whether the key names a node without children. Unknown keys
// are not leaves.
func (f *Forest) IsLeaf(key Key) bool {
	n := f.Find(key)
	return n != nil && n.IsLeaf()
}

// AncestorKeys returns the keys on the path from the root down to the node's
// parent, root first. Unknown keys and roots have no ancestors.
func (f *Forest) AncestorKeys(key Key) []Key {
	if f == nil {
		return nil
	}
	var path []Key
	if ancestorPath(f.roots, key, &path) && len(path) > 0 {
		return path
	}
	return nil
}

func ancestorPath(nodes []*TreeNode, key Key, path *[]Key) bool {
	for _, n := range nodes {
		if n.Key == key {
			return true
		}
		if len(n.Children) == 0 {
			continue
		}
		*path = append(*path, n.Key)
		if ancestorPath(n.Children, key, path) {
			return true
		}
		*path = (*path)[:len(*path)-1]
	}
	return false
}

// DescendantKeys returns every key below the node, depth first, excluding
// the node itself.
func (f *Forest) DescendantKeys(key Key) []Key {
	n := f.Find(key)
	if n == nil {
		return nil
	}
	var out []Key
	var collect func(nodes []*TreeNode)
	collect = func(nodes []*TreeNode) {
		for _, c := range nodes {
			out = append(out, c.Key)
			collect(c.Children)
		}
	}
	collect(n.Children)
	return out
}

// Walk visits every node depth first with its depth (roots are 0).
func (f *Forest) Walk(fn func(n *TreeNode, depth int)) {
	if f == nil {
		return
	}
	var walk func(nodes []*TreeNode, depth int)
	walk = func(nodes []*TreeNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(f.roots, 0)
}
