package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

// Cascade operation names used in results and logs
const (
	opReparent = "reparent"
	opDelete   = "delete"
)

// rewriteFunc computes the update for one streamed document. ok=false means
// the document needs no change.
type rewriteFunc func(n types.Node) (update types.Update, ok bool)

// RewriteOnReparent rewrites the path of every descendant of previousPath so
// that it hangs below newPath, keeping the suffix after previousPath intact.
func (t *Tree) RewriteOnReparent(ctx context.Context, previousPath, newPath string) (CascadeResult, error) {
	return t.rebasePaths(ctx, opReparent, previousPath, newPath)
}

func (t *Tree) rebasePaths(ctx context.Context, op, from, to string) (CascadeResult, error) {
	filter := types.Where(types.FieldPath, types.OpRegex, t.codec.PrefixPattern(from))
	return t.fanOut(ctx, op, filter, func(n types.Node) (types.Update, bool) {
		path, ok := t.codec.Rebase(n.Path, from, to)
		if !ok || path == n.Path {
			return types.Update{}, false
		}
		return types.SetField(types.FieldPath, path), true
	})
}

// fanOut streams the documents matching filter and applies the update
// computed by fn to each one, with at most NumWorkers updates in flight.
//
// It returns once every dispatched update finished. The first failure stops
// dispatching; updates already applied stay applied. The cascade ignores
// cancellation of ctx once started.
func (t *Tree) fanOut(ctx context.Context, op string, filter types.Filter, fn rewriteFunc) (CascadeResult, error) {
	ctx = context.WithoutCancel(ctx)
	res := CascadeResult{Op: op}

	cur, err := t.coll.Find(ctx, filter, types.FindOptions{
		Fields: []string{types.FieldID, types.FieldParent, types.FieldPath},
	})
	if err != nil {
		return cascadeFailure(res, fmt.Errorf("failed to query descendants: %w", err))
	}
	defer func() { _ = cur.Close(ctx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.NumWorkers)

	var (
		mu       sync.Mutex
		matched  []string
		resolved = make(map[string]bool)
	)

	for cur.Next(ctx) {
		n := cur.Node()
		matched = append(matched, n.ID)

		// a worker failed: keep reading ids for the result but stop updating
		if gctx.Err() != nil {
			continue
		}

		update, ok := fn(n)
		if !ok {
			mu.Lock()
			resolved[n.ID] = true
			mu.Unlock()
			continue
		}

		id := n.ID
		g.Go(func() error {
			if _, err := t.coll.UpdateOne(ctx, types.ByID(id), update); err != nil {
				return fmt.Errorf("failed to update %s: %w", id, err)
			}
			mu.Lock()
			resolved[id] = true
			res.Updated++
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()
	streamErr := cur.Err()

	res.Matched = int64(len(matched))
	for _, id := range matched {
		if !resolved[id] {
			res.Unresolved = append(res.Unresolved, id)
		}
	}

	if err := errors.Join(waitErr, streamErr); err != nil {
		res, err = cascadeFailure(res, err)
		t.log(ctx).Warn("cascade stopped",
			"op", op, "status", res.Status.String(),
			"matched", res.Matched, "updated", res.Updated,
			"unresolved", len(res.Unresolved), "error", err)
		return res, err
	}

	res.Status = Applied
	t.log(ctx).Debug("cascade applied", "op", op, "matched", res.Matched, "updated", res.Updated)
	return res, nil
}

// Delete removes node applying the configured delete policy
func (t *Tree) Delete(ctx context.Context, node *types.Node) (CascadeResult, error) {
	return t.DeleteWithPolicy(ctx, node, t.cfg.OnDelete)
}

// DeleteWithPolicy removes node and handles its descendants per policy.
//
// DeleteSubtree removes every document below the node. ReparentChildren
// points the direct children at the node's parent and strips the node's
// segment from every descendant path. A node that was never saved has no
// descendants and is removed on its own.
func (t *Tree) DeleteWithPolicy(ctx context.Context, node *types.Node, policy types.DeletePolicy) (CascadeResult, error) {
	res := CascadeResult{Op: opDelete}
	if node == nil {
		return res, errors.New("node is nil")
	}
	switch policy {
	case types.DeleteSubtree, types.ReparentChildren:
	default:
		return res, &ConfigurationError{Operation: "delete", Reason: fmt.Sprintf("unknown delete policy %q", policy)}
	}

	ctx = context.WithoutCancel(ctx)
	logger := t.log(ctx).With("id", node.ID, "policy", string(policy))

	if node.Path != "" {
		var err error
		switch policy {
		case types.DeleteSubtree:
			res, err = t.removeSubtree(ctx, node)
		case types.ReparentChildren:
			res, err = t.promoteChildren(ctx, node)
		}
		if err != nil {
			return res, err
		}
	}

	n, err := t.coll.RemoveMany(ctx, types.ByID(node.ID))
	if err != nil {
		return cascadeFailure(res, fmt.Errorf("failed to remove node %s: %w", node.ID, err))
	}
	res.Removed += n
	res.Status = Applied

	logger.Debug("node deleted", "removed", res.Removed, "relinked", res.Relinked, "rewritten", res.Updated)
	return res, nil
}

func (t *Tree) removeSubtree(ctx context.Context, node *types.Node) (CascadeResult, error) {
	res := CascadeResult{Op: opDelete}
	n, err := t.coll.RemoveMany(ctx, types.Where(types.FieldPath, types.OpRegex, t.codec.PrefixPattern(node.Path)))
	if err != nil {
		return cascadeFailure(res, fmt.Errorf("failed to remove descendants of %s: %w", node.ID, err))
	}
	res.Removed = n
	return res, nil
}

func (t *Tree) promoteChildren(ctx context.Context, node *types.Node) (CascadeResult, error) {
	res := CascadeResult{Op: opDelete}

	var (
		promoted []string
		base     int
	)
	if t.cfg.Ordering() {
		children, err := store.FindAll(ctx, t.coll, types.ByParent(types.StringPtr(node.ID)), types.FindOptions{
			Fields: []string{types.FieldID, types.FieldPosition},
		})
		if err != nil {
			return cascadeFailure(res, fmt.Errorf("failed to load children of %s: %w", node.ID, err))
		}
		sortByPosition(children)
		for _, c := range children {
			promoted = append(promoted, c.ID)
		}
		if base, err = t.nextPosition(ctx, node.Parent, node.ID); err != nil {
			return cascadeFailure(res, fmt.Errorf("failed to load siblings of %s: %w", node.ID, err))
		}
	}

	var newParent interface{}
	if node.Parent != nil {
		newParent = *node.Parent
	}
	n, err := t.coll.UpdateMany(ctx, types.ByParent(types.StringPtr(node.ID)), types.SetField(types.FieldParent, newParent))
	if err != nil {
		return cascadeFailure(res, fmt.Errorf("failed to relink children of %s: %w", node.ID, err))
	}
	res.Relinked = n

	// promoted children go after their new siblings, keeping their order
	for i, id := range promoted {
		if _, err := t.coll.UpdateOne(ctx, types.ByID(id), types.SetField(types.FieldPosition, base+i)); err != nil {
			return cascadeFailure(res, fmt.Errorf("failed to position %s: %w", id, err))
		}
	}

	rewritten, err := t.rebasePaths(ctx, opDelete, node.Path, t.codec.ParentPath(node.Path))
	rewritten.Relinked = res.Relinked
	if err != nil {
		var cerr *CascadeError
		if errors.As(err, &cerr) {
			return cascadeFailure(rewritten, cerr.Err)
		}
		return cascadeFailure(rewritten, err)
	}
	return rewritten, nil
}
