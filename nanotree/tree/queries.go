package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

// Query narrows and shapes the result of a relation lookup. The zero value
// returns every related node with all fields.
type Query struct {
	Filter  types.Filter
	Options types.FindOptions
}

// ChildrenQuery is a Query for GetChildren
type ChildrenQuery struct {
	Filter  types.Filter
	Options types.FindOptions

	// Recursive returns all descendants instead of direct children
	Recursive bool
}

// TreeQuery configures GetChildrenTree. The zero value fetches the whole
// subtree, keeps empty children lists and returns nodes as stored (or as
// plain values when the tree is configured without WrapChildrenTree).
type TreeQuery struct {
	Filter  types.Filter
	Options types.FindOptions

	// Populate lists fields holding node ids ("parent" or a data field);
	// the referenced nodes are loaded into TreeNode.Populated
	Populate []string

	// MinLevel sets the level of the top nodes when deeper than the
	// root's children
	MinLevel int

	// NoRecurse limits the result to direct children
	NoRecurse bool

	// OmitEmptyChildren leaves Children nil on leaves
	OmitEmptyChildren bool

	// Objectify converts nodes to plain values through Transform
	Objectify bool
	Transform func(types.Node) map[string]interface{}
}

func (t *Tree) find(ctx context.Context, filter types.Filter, opts types.FindOptions) ([]types.Node, error) {
	nodes, err := store.FindAll(ctx, t.coll, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	return nodes, nil
}

// GetChildren returns the direct children of node, or all of its descendants
// when q.Recursive is set
func (t *Tree) GetChildren(ctx context.Context, node *types.Node, q ChildrenQuery) ([]types.Node, error) {
	if node == nil {
		return nil, errors.New("node is nil")
	}
	var structural types.Filter
	if q.Recursive && node.Path != "" {
		structural = types.Where(types.FieldPath, types.OpRegex, t.codec.PrefixPattern(node.Path))
	} else {
		structural = types.ByParent(types.StringPtr(node.ID))
	}
	return t.find(ctx, t.normalizeFilter(q.Filter).Merge(structural), t.normalizeOptions(q.Options))
}

// GetParent returns the parent of node, or nil for a root
func (t *Tree) GetParent(ctx context.Context, node *types.Node) (*types.Node, error) {
	if node == nil {
		return nil, errors.New("node is nil")
	}
	if node.Parent == nil {
		return nil, nil
	}
	parent, err := t.coll.FindOne(ctx, types.ByID(*node.Parent))
	if err != nil {
		return nil, fmt.Errorf("failed to load parent %s: %w", *node.Parent, err)
	}
	if parent == nil {
		return nil, &NotFoundError{ID: *node.Parent, Role: "parent"}
	}
	return parent, nil
}

// GetAncestors returns the ancestors of node read from its path. Without an
// explicit sort they are ordered root first.
func (t *Tree) GetAncestors(ctx context.Context, node *types.Node, q Query) ([]types.Node, error) {
	if node == nil {
		return nil, errors.New("node is nil")
	}
	ids := t.codec.AncestorIDs(node.Path)
	if len(ids) == 0 {
		return []types.Node{}, nil
	}

	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	opts := t.normalizeOptions(q.Options)
	nodes, err := t.find(ctx, t.normalizeFilter(q.Filter).In(types.FieldID, values...), opts)
	if err != nil {
		return nil, err
	}
	if len(opts.Sort) > 0 {
		return nodes, nil
	}

	byID := make(map[string]types.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	ordered := make([]types.Node, 0, len(nodes))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			ordered = append(ordered, n)
		}
	}
	return ordered, nil
}

// Siblings returns the nodes sharing node's parent, excluding node
func (t *Tree) Siblings(ctx context.Context, node *types.Node, q Query) ([]types.Node, error) {
	if node == nil {
		return nil, errors.New("node is nil")
	}
	filter := t.normalizeFilter(q.Filter).Merge(types.ByParent(node.Parent)).Ne(types.FieldID, node.ID)
	return t.find(ctx, filter, t.normalizeOptions(q.Options))
}

// SiblingsAndSelf returns the nodes sharing node's parent, node included
func (t *Tree) SiblingsAndSelf(ctx context.Context, node *types.Node, q Query) ([]types.Node, error) {
	if node == nil {
		return nil, errors.New("node is nil")
	}
	filter := t.normalizeFilter(q.Filter).Merge(types.ByParent(node.Parent))
	return t.find(ctx, filter, t.normalizeOptions(q.Options))
}

// GetChildrenTree loads the subtree below root (the whole forest when root
// is nil) and nests it. Projections always keep id, parent and path, and the
// position when ordering is on; without an explicit sort, siblings come in
// position order.
func (t *Tree) GetChildrenTree(ctx context.Context, root *types.Node, q TreeQuery) ([]*TreeNode, error) {
	filter := t.normalizeFilter(q.Filter)
	if q.NoRecurse {
		if root != nil {
			filter = filter.Merge(types.ByParent(types.StringPtr(root.ID)))
		} else {
			filter = filter.Merge(types.ByParent(nil))
		}
	} else {
		if root != nil && root.Path != "" {
			filter = filter.Regex(types.FieldPath, t.codec.PrefixPattern(root.Path))
		}
		if root == nil {
			filter = withoutRootsOnly(filter)
		}
	}

	opts := t.normalizeOptions(q.Options)
	if len(opts.Fields) > 0 {
		opts.Fields = withField(opts.Fields, types.FieldPath)
		opts.Fields = withField(opts.Fields, types.FieldParent)
		if t.cfg.Ordering() {
			opts.Fields = withField(opts.Fields, types.FieldPosition)
		}
	}
	if len(opts.Sort) == 0 && t.cfg.Ordering() {
		opts.Sort = []types.OrderClause{{Column: types.FieldPosition}}
	}

	nodes, err := t.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	forest := Build(nodes, root, t.codec, BuildOptions{
		MinLevel:          q.MinLevel,
		OmitEmptyChildren: q.OmitEmptyChildren,
		Objectify:         q.Objectify || !t.cfg.WrapChildrenTree,
		Transform:         q.Transform,
		PositionField:     t.cfg.PositionField,
	})

	if len(q.Populate) > 0 {
		if err := t.populate(ctx, forest, q.Populate); err != nil {
			return nil, err
		}
	}
	return forest, nil
}

// populate loads the nodes referenced by fields and attaches them
func (t *Tree) populate(ctx context.Context, forest []*TreeNode, fields []string) error {
	refs := make(map[string]bool)
	all := Flatten(forest)
	for _, n := range all {
		for _, f := range fields {
			if id, ok := refID(n, f); ok {
				refs[id] = true
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}

	ids := make([]interface{}, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	loaded, err := t.find(ctx, types.Where(types.FieldID, types.OpIn, ids), types.FindOptions{})
	if err != nil {
		return err
	}
	byID := make(map[string]*types.Node, len(loaded))
	for i := range loaded {
		byID[loaded[i].ID] = &loaded[i]
	}

	var walk func([]*TreeNode)
	walk = func(level []*TreeNode) {
		for _, tn := range level {
			for _, f := range fields {
				id, ok := refID(tn.Node, f)
				if !ok || byID[id] == nil {
					continue
				}
				if tn.Populated == nil {
					tn.Populated = make(map[string]*types.Node)
				}
				tn.Populated[f] = byID[id]
			}
			walk(tn.Children)
		}
	}
	walk(forest)
	return nil
}

func refID(n types.Node, field string) (string, bool) {
	if field == types.FieldParent {
		if n.Parent == nil {
			return "", false
		}
		return *n.Parent, true
	}
	id, ok := n.Data[field].(string)
	return id, ok && id != ""
}

// withoutRootsOnly drops "parent is null" conditions, which would otherwise
// restrict a recursive forest query to the roots
func withoutRootsOnly(f types.Filter) types.Filter {
	var out types.Filter
	for _, c := range f {
		if c.Field == types.FieldParent && c.Op == types.OpEq && c.Value == nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func withField(fields []string, name string) []string {
	for _, f := range fields {
		if f == name {
			return fields
		}
	}
	return append(fields, name)
}
