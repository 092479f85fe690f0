package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/arthur-debert/nanotree/internal/validation"
	"github.com/arthur-debert/nanotree/types"
)

// Create saves a new node under parentID (nil for a root) and returns it
func (t *Tree) Create(ctx context.Context, parentID *string, data map[string]interface{}) (*types.Node, error) {
	node := types.NewNode(parentID, data)
	if err := t.Save(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// Save persists node, computing its path and position first.
//
// A new node, or one whose parent was changed with SetParent, gets its path
// rebuilt from the parent's stored path. When an existing path changes, the
// paths of all descendants are rewritten before the node itself is written.
// On failure the in-memory node may already carry its new path and position
// and must be reloaded; a failed descendant rewrite is a *CascadeError.
func (t *Tree) Save(ctx context.Context, node *types.Node) error {
	_, err := t.save(ctx, node)
	return err
}

// Reparent moves node under newParentID (nil makes it a root) and saves it
func (t *Tree) Reparent(ctx context.Context, node *types.Node, newParentID *string) (CascadeResult, error) {
	if node == nil {
		return CascadeResult{Op: opReparent}, errors.New("node is nil")
	}
	node.SetParent(newParentID)
	return t.save(ctx, node)
}

func (t *Tree) save(ctx context.Context, node *types.Node) (CascadeResult, error) {
	res := CascadeResult{Op: opReparent, Status: NotAttempted}
	if node == nil {
		return res, errors.New("node is nil")
	}

	if node.ID == "" {
		if !node.IsNew() {
			return res, fmt.Errorf("%w: persisted node has no id", ErrInvalidID)
		}
		node.ID = t.newID()
	}
	if err := validation.ValidateID(node.ID, t.cfg.PathSeparator); err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	reparented := !node.IsNew() && node.ParentModified()

	if node.IsNew() || node.ParentModified() {
		previousPath := ""
		if !node.IsNew() {
			previousPath = node.Path
		}

		newPath, err := t.pathFor(ctx, node)
		if err != nil {
			return res, err
		}
		node.Path = newPath

		if t.cfg.Ordering() && (node.Position == nil || reparented) {
			if err := t.assignDefaultPosition(ctx, node); err != nil {
				return res, err
			}
		}

		if previousPath != "" && previousPath != newPath {
			res, err = t.RewriteOnReparent(ctx, previousPath, newPath)
			if err != nil {
				return res, err
			}
		}
	} else if t.cfg.Ordering() && node.Position == nil {
		if err := t.assignDefaultPosition(ctx, node); err != nil {
			return res, err
		}
	}

	now := t.now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	if err := t.coll.Save(ctx, node); err != nil {
		return res, fmt.Errorf("failed to save node %s: %w", node.ID, err)
	}
	node.MarkPersisted()

	t.log(ctx).Debug("node saved", "id", node.ID, "path", node.Path, "reparented", reparented)
	return res, nil
}

// pathFor computes the path node gets under its current parent, looking the
// parent up once
func (t *Tree) pathFor(ctx context.Context, node *types.Node) (string, error) {
	if node.Parent == nil {
		return t.codec.Build("", node.ID), nil
	}

	parentID := *node.Parent
	if parentID == node.ID {
		return "", fmt.Errorf("%w: node %s cannot be its own parent", ErrCycle, node.ID)
	}

	parent, err := t.coll.FindOne(ctx, types.ByID(parentID))
	if err != nil {
		return "", fmt.Errorf("failed to load parent %s: %w", parentID, err)
	}
	if parent == nil {
		return "", &NotFoundError{ID: parentID, Role: "parent"}
	}
	if !node.IsNew() && t.codec.Contains(parent.Path, node.ID) {
		return "", fmt.Errorf("%w: %s is a descendant of %s", ErrCycle, parentID, node.ID)
	}
	return t.codec.Build(parent.Path, node.ID), nil
}
