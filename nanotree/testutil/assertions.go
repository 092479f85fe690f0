package testutil

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/nanotree/tree"
	"github.com/arthur-debert/nanotree/types"
)

// AllNodes returns every stored node ordered by id
func AllNodes(t *testing.T, tr *tree.Tree) []types.Node {
	t.Helper()
	nodes, err := store.FindAll(context.Background(), tr.Collection(), nil, types.FindOptions{
		Sort: []types.OrderClause{{Column: types.FieldID}},
	})
	if err != nil {
		t.Fatalf("failed to list nodes: %v", err)
	}
	return nodes
}

// IDs returns the ids of nodes in order
func IDs(nodes []types.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// SortedIDs returns the ids of nodes sorted
func SortedIDs(nodes []types.Node) []string {
	out := IDs(nodes)
	sort.Strings(out)
	return out
}

// AssertCount checks the number of stored nodes
func AssertCount(t *testing.T, tr *tree.Tree, expected int) {
	t.Helper()
	n, err := tr.Collection().Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to count nodes: %v", err)
	}
	if int(n) != expected {
		t.Errorf("expected %d nodes, got %d", expected, n)
	}
}

// AssertPath checks the stored path of a node
func AssertPath(t *testing.T, tr *tree.Tree, id, expected string) {
	t.Helper()
	if got := Reload(t, tr, id).Path; got != expected {
		t.Errorf("expected path of %s to be %q, got %q", id, expected, got)
	}
}

// AssertParent checks the stored parent of a node; "" means root
func AssertParent(t *testing.T, tr *tree.Tree, id, expected string) {
	t.Helper()
	if got := Reload(t, tr, id).ParentID(); got != expected {
		t.Errorf("expected parent of %s to be %q, got %q", id, expected, got)
	}
}

// AssertPositions checks the positions of the children of parentID
func AssertPositions(t *testing.T, tr *tree.Tree, parentID *string, expected map[string]int) {
	t.Helper()
	children, err := store.FindAll(context.Background(), tr.Collection(), types.ByParent(parentID), types.FindOptions{})
	if err != nil {
		t.Fatalf("failed to load children: %v", err)
	}
	if len(children) != len(expected) {
		t.Errorf("expected %d children, got %d (%v)", len(expected), len(children), IDs(children))
	}
	for _, c := range children {
		want, ok := expected[c.ID]
		if !ok {
			t.Errorf("unexpected child %s", c.ID)
			continue
		}
		if c.Position == nil {
			t.Errorf("expected %s at position %d, got no position", c.ID, want)
			continue
		}
		if *c.Position != want {
			t.Errorf("expected %s at position %d, got %d", c.ID, want, *c.Position)
		}
	}
}

// AssertConsistent checks every stored node: roots have their id as path,
// children have their parent's path plus their id, and every descendant
// reached through parent links carries its ancestor's path as a prefix.
func AssertConsistent(t *testing.T, tr *tree.Tree) {
	t.Helper()
	sep := tr.Config().PathSeparator
	nodes := AllNodes(t, tr)

	byID := make(map[string]types.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	for _, n := range nodes {
		if n.Parent == nil {
			if n.Path != n.ID {
				t.Errorf("root %s has path %q", n.ID, n.Path)
			}
			continue
		}
		p, ok := byID[*n.Parent]
		if !ok {
			t.Errorf("node %s references missing parent %s", n.ID, *n.Parent)
			continue
		}
		if want := p.Path + sep + n.ID; n.Path != want {
			t.Errorf("node %s has path %q, expected %q", n.ID, n.Path, want)
		}

		seen := map[string]bool{n.ID: true}
		for anc, ok := byID[*n.Parent]; ok; anc, ok = byID[anc.ParentID()] {
			if seen[anc.ID] {
				t.Errorf("cycle through %s", anc.ID)
				break
			}
			seen[anc.ID] = true
			if !strings.HasPrefix(n.Path, anc.Path+sep) {
				t.Errorf("node %s path %q does not start with ancestor %s path %q", n.ID, n.Path, anc.ID, anc.Path)
			}
			if anc.Parent == nil {
				break
			}
		}
	}
}

// AssertDensePositions checks that the children of parentID hold exactly
// the positions 0..k-1
func AssertDensePositions(t *testing.T, tr *tree.Tree, parentID *string) {
	t.Helper()
	children, err := store.FindAll(context.Background(), tr.Collection(), types.ByParent(parentID), types.FindOptions{})
	if err != nil {
		t.Fatalf("failed to load children: %v", err)
	}
	seen := make(map[int]string, len(children))
	for _, c := range children {
		if c.Position == nil {
			t.Errorf("child %s has no position", c.ID)
			continue
		}
		if other, dup := seen[*c.Position]; dup {
			t.Errorf("children %s and %s share position %d", other, c.ID, *c.Position)
		}
		seen[*c.Position] = c.ID
	}
	for i := 0; i < len(children); i++ {
		if _, ok := seen[i]; !ok {
			t.Errorf("position %d is not assigned among %v", i, IDs(children))
		}
	}
}
