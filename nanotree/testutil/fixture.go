package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/nanotree/tree"
	"github.com/arthur-debert/nanotree/types"
)

// Family provides typed access to the family fixture:
//
//	Adam
//	├── Bob
//	├── Carol
//	│   └── Dann
//	│       └── Emily
//	└── Falko
//	Eden
type Family struct {
	Adam  *types.Node // root
	Bob   *types.Node // Adam
	Carol *types.Node // Adam
	Dann  *types.Node // Adam > Carol
	Emily *types.Node // Adam > Carol > Dann
	Falko *types.Node // Adam
	Eden  *types.Node // second root

	// All nodes by id, as saved
	ByID map[string]*types.Node
}

// FamilySize is the number of nodes in the family fixture
const FamilySize = 7

type fixtureNode struct {
	ID     string                 `json:"id"`
	Parent *string                `json:"parent"`
	Data   map[string]interface{} `json:"data"`
}

type fixtureData struct {
	Nodes []fixtureNode `json:"nodes"`
}

// NewTree returns a tree over a fresh in-memory collection
func NewTree(t *testing.T, cfg types.Config, opts ...tree.Option) *tree.Tree {
	t.Helper()
	coll := store.NewMemory()
	t.Cleanup(func() { _ = coll.Close() })

	tr, err := tree.New(coll, cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	return tr
}

// LoadFamily saves the family fixture into tr, keeping the fixture ids.
// Parents are saved before their children, siblings in file order.
func LoadFamily(t *testing.T, tr *tree.Tree) *Family {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to get runtime caller info")
	}
	fixturePath := filepath.Join(filepath.Dir(filename), "..", "testdata", "family.json")
	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		t.Fatalf("failed to read fixture file: %v", err)
	}

	var fixture fixtureData
	if err := json.Unmarshal(raw, &fixture); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	ctx := context.Background()
	family := &Family{ByID: make(map[string]*types.Node)}

	// Multiple passes so the file order does not have to be topological
	for pass := 0; pass < len(fixture.Nodes) && len(family.ByID) < len(fixture.Nodes); pass++ {
		for _, fn := range fixture.Nodes {
			if _, done := family.ByID[fn.ID]; done {
				continue
			}
			if fn.Parent != nil {
				if _, ready := family.ByID[*fn.Parent]; !ready {
					continue
				}
			}

			node := types.NewNode(fn.Parent, fn.Data)
			node.ID = fn.ID
			if err := tr.Save(ctx, node); err != nil {
				t.Fatalf("failed to save fixture node %s: %v", fn.ID, err)
			}
			family.ByID[fn.ID] = node
		}
	}
	if len(family.ByID) != len(fixture.Nodes) {
		t.Fatalf("fixture has unreachable parents: loaded %d of %d nodes", len(family.ByID), len(fixture.Nodes))
	}

	family.Adam = family.ByID["Adam"]
	family.Bob = family.ByID["Bob"]
	family.Carol = family.ByID["Carol"]
	family.Dann = family.ByID["Dann"]
	family.Emily = family.ByID["Emily"]
	family.Falko = family.ByID["Falko"]
	family.Eden = family.ByID["Eden"]
	return family
}

// Reload reads the current stored state of node
func Reload(t *testing.T, tr *tree.Tree, id string) *types.Node {
	t.Helper()
	n, err := tr.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to reload %s: %v", id, err)
	}
	return n
}
