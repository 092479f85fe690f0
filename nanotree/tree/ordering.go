package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

func (t *Tree) requireOrdering(op string) error {
	if !t.cfg.Ordering() {
		return &ConfigurationError{Operation: op, Reason: "tree ordering is not enabled"}
	}
	return nil
}

// nextPosition returns one past the highest position among the children of
// parentID, ignoring excludeID, or 0 when none is positioned
func (t *Tree) nextPosition(ctx context.Context, parentID *string, excludeID string) (int, error) {
	filter := types.ByParent(parentID).
		Ne(types.FieldID, excludeID).
		Exists(types.FieldPosition, true)

	last, err := store.FindAll(ctx, t.coll, filter, types.FindOptions{
		Fields: []string{types.FieldID, types.FieldPosition},
		Sort:   []types.OrderClause{{Column: types.FieldPosition, Descending: true}},
		Limit:  1,
	})
	if err != nil {
		return 0, err
	}
	if len(last) > 0 && last[0].Position != nil {
		return *last[0].Position + 1, nil
	}
	return 0, nil
}

// assignDefaultPosition places node after its highest positioned sibling.
// Gaps left by earlier deletions are kept.
func (t *Tree) assignDefaultPosition(ctx context.Context, node *types.Node) error {
	pos, err := t.nextPosition(ctx, node.Parent, node.ID)
	if err != nil {
		return fmt.Errorf("failed to load siblings of %s: %w", node.ID, err)
	}
	node.Position = types.IntPtr(pos)
	return nil
}

// sortByPosition orders nodes by position, unpositioned last, ties by id
func sortByPosition(nodes []types.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Position, nodes[j].Position
		switch {
		case a == nil && b == nil:
			return nodes[i].ID < nodes[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return nodes[i].ID < nodes[j].ID
		}
	})
}

// MoveToPosition moves node to target among its siblings, shifting the
// siblings in between by one. The target is clamped to the sibling range.
//
// Parent and current position are read from the stored document, so node
// may come from a projected query. Only the position and update time are
// written; a node with a pending parent change must be saved first.
func (t *Tree) MoveToPosition(ctx context.Context, node *types.Node, target int) error {
	if err := t.requireOrdering("move to position"); err != nil {
		return err
	}
	if node == nil {
		return errors.New("node is nil")
	}
	if node.IsNew() {
		return fmt.Errorf("node %s must be saved before it can be moved", node.ID)
	}
	if node.ParentModified() {
		return fmt.Errorf("node %s has an unsaved parent change; save or reparent it before moving", node.ID)
	}

	stored, err := t.coll.FindOne(ctx, types.ByID(node.ID))
	if err != nil {
		return fmt.Errorf("failed to load node %s: %w", node.ID, err)
	}
	if stored == nil {
		return &NotFoundError{ID: node.ID, Role: "node"}
	}

	positioned := stored.Position != nil
	if !positioned {
		if err := t.assignDefaultPosition(ctx, stored); err != nil {
			return err
		}
	}

	siblings := types.ByParent(stored.Parent)
	count, err := t.coll.Count(ctx, siblings)
	if err != nil {
		return fmt.Errorf("failed to count siblings of %s: %w", node.ID, err)
	}

	if target > int(count)-1 {
		target = int(count) - 1
	}
	if target < 0 {
		target = 0
	}

	current := *stored.Position
	if target == current && positioned {
		node.Position = types.IntPtr(current)
		return nil
	}

	var shifted int64
	if target != current {
		var (
			shift types.Filter
			delta int
		)
		if target > current {
			shift = siblings.Gt(types.FieldPosition, current).Lte(types.FieldPosition, target)
			delta = -1
		} else {
			shift = siblings.Gte(types.FieldPosition, target).Lt(types.FieldPosition, current)
			delta = 1
		}
		shift = shift.Ne(types.FieldID, node.ID)

		shifted, err = t.coll.UpdateMany(ctx, shift, types.IncField(types.FieldPosition, delta))
		if err != nil {
			return fmt.Errorf("failed to shift siblings of %s: %w", node.ID, err)
		}
	}

	now := t.now()
	update := types.Update{Set: map[string]interface{}{
		types.FieldPosition:  target,
		types.FieldUpdatedAt: now,
	}}
	if _, err := t.coll.UpdateOne(ctx, types.ByID(node.ID), update); err != nil {
		return fmt.Errorf("failed to move node %s: %w", node.ID, err)
	}
	node.Position = types.IntPtr(target)
	node.UpdatedAt = now

	t.log(ctx).Debug("node moved", "id", node.ID, "from", current, "to", target, "shifted", shifted)
	return nil
}

// CompactPositions renumbers the children of parentID (nil for roots) to
// 0..k-1, keeping their current order. Unpositioned children go last. It
// returns the number of children whose position changed.
func (t *Tree) CompactPositions(ctx context.Context, parentID *string) (int64, error) {
	if err := t.requireOrdering("compact positions"); err != nil {
		return 0, err
	}

	children, err := store.FindAll(ctx, t.coll, types.ByParent(parentID), types.FindOptions{
		Fields: []string{types.FieldID, types.FieldPosition},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load children: %w", err)
	}

	sortByPosition(children)

	var changed int64
	for i, c := range children {
		if c.Position != nil && *c.Position == i {
			continue
		}
		if _, err := t.coll.UpdateOne(ctx, types.ByID(c.ID), types.SetField(types.FieldPosition, i)); err != nil {
			return changed, fmt.Errorf("failed to renumber %s: %w", c.ID, err)
		}
		changed++
	}
	return changed, nil
}
