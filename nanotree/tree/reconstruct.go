package tree

import (
	"encoding/json"

	"github.com/arthur-debert/nanotree/nanotree/pathcodec"
	"github.com/arthur-debert/nanotree/types"
)

// TreeNode is one node of a reconstructed tree
type TreeNode struct {
	Node types.Node

	// Value is the plain representation, set when the tree was objectified
	Value map[string]interface{}

	// Populated holds the nodes referenced by the populated fields
	Populated map[string]*types.Node

	// Children is nil when empty children were omitted
	Children []*TreeNode

	positionField string
}

// MarshalJSON renders the plain representation with populated references
// inlined and the children under "children"
func (tn *TreeNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	src := tn.Value
	if src == nil {
		src = tn.Node.ToMap(tn.positionField)
	}
	for k, v := range src {
		m[k] = v
	}
	for field, ref := range tn.Populated {
		if ref != nil {
			m[field] = ref.ToMap(tn.positionField)
		}
	}
	if tn.Children != nil {
		m["children"] = tn.Children
	}
	return json.Marshal(m)
}

// BuildOptions controls Build
type BuildOptions struct {
	// MinLevel is the level of the top nodes when deeper than the root's
	// children. Values at or above the root's child level have no effect.
	MinLevel int

	// OmitEmptyChildren leaves Children nil on leaves instead of empty
	OmitEmptyChildren bool

	// Objectify fills Value with the plain representation
	Objectify bool

	// Transform produces the plain representation; Node.ToMap is used when nil
	Transform func(types.Node) map[string]interface{}

	// PositionField names the position in plain representations
	PositionField string
}

// Build nests a flat node list below root, or builds the forest of
// parentless nodes when root is nil. Input order is kept among siblings.
// Nodes whose parent is not reachable from the tops are left out.
func Build(nodes []types.Node, root *types.Node, codec pathcodec.Codec, opts BuildOptions) []*TreeNode {
	byParent := make(map[string][]int, len(nodes))
	for i, n := range nodes {
		byParent[n.ParentID()] = append(byParent[n.ParentID()], i)
	}

	rootLevel := 1
	rootID := ""
	if root != nil {
		rootLevel = codec.Level(root.Path) + 1
		rootID = root.ID
	}

	var tops []int
	if opts.MinLevel > rootLevel {
		for i, n := range nodes {
			if codec.Level(n.Path) != opts.MinLevel {
				continue
			}
			if root != nil && !codec.IsDescendantPath(n.Path, root.Path) {
				continue
			}
			tops = append(tops, i)
		}
	} else {
		tops = byParent[rootID]
	}

	b := builder{nodes: nodes, byParent: byParent, opts: opts, seen: make(map[string]bool, len(nodes))}
	return b.level(tops)
}

type builder struct {
	nodes    []types.Node
	byParent map[string][]int
	opts     BuildOptions
	seen     map[string]bool
}

func (b *builder) level(idx []int) []*TreeNode {
	out := make([]*TreeNode, 0, len(idx))
	for _, i := range idx {
		n := b.nodes[i]
		if b.seen[n.ID] {
			continue
		}
		b.seen[n.ID] = true

		tn := &TreeNode{Node: n, positionField: b.opts.PositionField}
		if b.opts.Objectify {
			if b.opts.Transform != nil {
				tn.Value = b.opts.Transform(n)
			} else {
				tn.Value = n.ToMap(b.opts.PositionField)
			}
		}

		children := b.level(b.byParent[n.ID])
		if len(children) > 0 || !b.opts.OmitEmptyChildren {
			tn.Children = children
		}
		out = append(out, tn)
	}
	return out
}

// Flatten lists the nodes of a tree depth-first, parents before children
func Flatten(forest []*TreeNode) []types.Node {
	var out []types.Node
	var walk func([]*TreeNode)
	walk = func(level []*TreeNode) {
		for _, tn := range level {
			out = append(out, tn.Node)
			walk(tn.Children)
		}
	}
	walk(forest)
	return out
}
