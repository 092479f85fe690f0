package tree_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/nanotree/testutil"
	"github.com/arthur-debert/nanotree/nanotree/tree"
	"github.com/arthur-debert/nanotree/types"
)

var dotted = types.Config{PathSeparator: "."}

// faultyCollection counts calls and fails UpdateOne after a number of
// successful calls
type faultyCollection struct {
	store.Collection

	mu         sync.Mutex
	calls      int
	updates    int
	failAfter  int // -1 never fails
	failUpdate error
}

func newFaulty(inner store.Collection) *faultyCollection {
	return &faultyCollection{Collection: inner, failAfter: -1, failUpdate: errors.New("disk on fire")}
}

func (f *faultyCollection) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *faultyCollection) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *faultyCollection) FindOne(ctx context.Context, filter types.Filter) (*types.Node, error) {
	f.count()
	return f.Collection.FindOne(ctx, filter)
}

func (f *faultyCollection) Find(ctx context.Context, filter types.Filter, opts types.FindOptions) (store.Cursor, error) {
	f.count()
	return f.Collection.Find(ctx, filter, opts)
}

func (f *faultyCollection) Save(ctx context.Context, node *types.Node) error {
	f.count()
	return f.Collection.Save(ctx, node)
}

func (f *faultyCollection) Count(ctx context.Context, filter types.Filter) (int64, error) {
	f.count()
	return f.Collection.Count(ctx, filter)
}

func (f *faultyCollection) UpdateMany(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	f.count()
	return f.Collection.UpdateMany(ctx, filter, update)
}

func (f *faultyCollection) RemoveMany(ctx context.Context, filter types.Filter) (int64, error) {
	f.count()
	return f.Collection.RemoveMany(ctx, filter)
}

func (f *faultyCollection) UpdateOne(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	f.mu.Lock()
	f.calls++
	if f.failAfter >= 0 && f.updates >= f.failAfter {
		f.mu.Unlock()
		return 0, f.failUpdate
	}
	f.updates++
	f.mu.Unlock()
	return f.Collection.UpdateOne(ctx, filter, update)
}

func newFaultyTree(t *testing.T, cfg types.Config) (*tree.Tree, *faultyCollection) {
	t.Helper()
	coll := newFaulty(store.NewMemory())
	t.Cleanup(func() { _ = coll.Close() })
	tr, err := tree.New(coll, cfg)
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	return tr, coll
}

func TestScenarioPathAndLevel(t *testing.T) {
	tr := testutil.NewTree(t, dotted)
	family := testutil.LoadFamily(t, tr)

	testutil.AssertPath(t, tr, "Dann", "Adam.Carol.Dann")
	testutil.AssertPath(t, tr, "Eden", "Eden")
	if got := tr.Level(family.Dann); got != 3 {
		t.Errorf("expected Dann at level 3, got %d", got)
	}
	if got := tr.Level(family.Adam); got != 1 {
		t.Errorf("expected Adam at level 1, got %d", got)
	}
	if got := tr.Level(types.NewNode(nil, nil)); got != 0 {
		t.Errorf("expected unsaved node at level 0, got %d", got)
	}
	testutil.AssertConsistent(t, tr)
}

func TestScenarioDeleteSubtree(t *testing.T) {
	tr := testutil.NewTree(t, dotted)
	family := testutil.LoadFamily(t, tr)

	res, err := tr.Delete(context.Background(), family.Carol)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if res.Status != tree.Applied || res.Removed != 3 {
		t.Errorf("unexpected result: %+v", res)
	}

	testutil.AssertCount(t, tr, 4)
	got := testutil.SortedIDs(testutil.AllNodes(t, tr))
	if diff := cmp.Diff([]string{"Adam", "Bob", "Eden", "Falko"}, got); diff != "" {
		t.Errorf("remaining nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioDeleteReparent(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{PathSeparator: ".", OnDelete: types.ReparentChildren})
	family := testutil.LoadFamily(t, tr)

	res, err := tr.Delete(context.Background(), family.Carol)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if res.Status != tree.Applied || res.Relinked != 1 || res.Matched != 2 || res.Updated != 2 || res.Removed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	testutil.AssertCount(t, tr, 6)
	testutil.AssertParent(t, tr, "Dann", "Adam")
	testutil.AssertPath(t, tr, "Dann", "Adam.Dann")
	testutil.AssertPath(t, tr, "Emily", "Adam.Dann.Emily")
	testutil.AssertPath(t, tr, "Bob", "Adam.Bob")
	testutil.AssertConsistent(t, tr)
}

func TestDeleteReparentRoot(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{OnDelete: types.ReparentChildren})
	family := testutil.LoadFamily(t, tr)

	if _, err := tr.Delete(context.Background(), family.Adam); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	testutil.AssertCount(t, tr, 6)
	testutil.AssertParent(t, tr, "Carol", "")
	testutil.AssertPath(t, tr, "Carol", "Carol")
	testutil.AssertPath(t, tr, "Emily", "Carol#Dann#Emily")
	testutil.AssertConsistent(t, tr)
}

func TestDeleteWithPolicyOverridesConfig(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{})
	family := testutil.LoadFamily(t, tr)

	if _, err := tr.DeleteWithPolicy(context.Background(), family.Dann, types.ReparentChildren); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	testutil.AssertParent(t, tr, "Emily", "Carol")
	testutil.AssertConsistent(t, tr)

	_, err := tr.DeleteWithPolicy(context.Background(), family.Bob, "ARCHIVE")
	if !errors.Is(err, tree.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	testutil.AssertCount(t, tr, 6)
}

func TestDeleteUnsavedNode(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{})
	testutil.LoadFamily(t, tr)

	res, err := tr.Delete(context.Background(), types.NewNode(nil, nil))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if res.Removed != 0 || res.Matched != 0 {
		t.Errorf("expected nothing removed, got %+v", res)
	}
	testutil.AssertCount(t, tr, testutil.FamilySize)
}

func TestScenarioReparentCascade(t *testing.T) {
	tr := testutil.NewTree(t, dotted)
	family := testutil.LoadFamily(t, tr)

	res, err := tr.Reparent(context.Background(), family.Carol, &family.Bob.ID)
	if err != nil {
		t.Fatalf("reparent failed: %v", err)
	}
	if res.Status != tree.Applied || res.Matched != 2 || res.Updated != 2 || len(res.Unresolved) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	if family.Carol.Path != "Adam.Bob.Carol" {
		t.Errorf("expected in-memory path to be updated, got %q", family.Carol.Path)
	}
	testutil.AssertPath(t, tr, "Dann", "Adam.Bob.Carol.Dann")
	testutil.AssertPath(t, tr, "Emily", "Adam.Bob.Carol.Dann.Emily")
	testutil.AssertPath(t, tr, "Falko", "Adam.Falko")
	testutil.AssertConsistent(t, tr)
}

func TestReparentToRoot(t *testing.T) {
	tr := testutil.NewTree(t, dotted)
	family := testutil.LoadFamily(t, tr)

	if _, err := tr.Reparent(context.Background(), family.Carol, nil); err != nil {
		t.Fatalf("reparent failed: %v", err)
	}
	testutil.AssertPath(t, tr, "Carol", "Carol")
	testutil.AssertPath(t, tr, "Emily", "Carol.Dann.Emily")
	testutil.AssertConsistent(t, tr)
}

func TestReparentSameParentKeepsPaths(t *testing.T) {
	tr := testutil.NewTree(t, dotted)
	family := testutil.LoadFamily(t, tr)

	res, err := tr.Reparent(context.Background(), family.Carol, &family.Adam.ID)
	if err != nil {
		t.Fatalf("reparent failed: %v", err)
	}
	if res.Matched != 0 {
		t.Errorf("expected no cascade for an unchanged path, got %+v", res)
	}
	testutil.AssertPath(t, tr, "Dann", "Adam.Carol.Dann")
}

func TestReparentRejectsCycles(t *testing.T) {
	tr := testutil.NewTree(t, dotted)
	family := testutil.LoadFamily(t, tr)
	ctx := context.Background()

	tests := []struct {
		name   string
		node   *types.Node
		target string
	}{
		{"self", family.Carol, "Carol"},
		{"child", family.Carol, "Dann"},
		{"deep descendant", family.Adam, "Emily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := testutil.Reload(t, tr, tt.node.ID)
			_, err := tr.Reparent(ctx, n, &tt.target)
			if !errors.Is(err, tree.ErrCycle) {
				t.Fatalf("expected ErrCycle, got %v", err)
			}
		})
	}
	testutil.AssertConsistent(t, tr)
}

func TestMissingParent(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{})

	_, err := tr.Create(context.Background(), types.StringPtr("ghost"), nil)
	if !errors.Is(err, tree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *tree.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "ghost" || nf.Role != "parent" {
		t.Errorf("unexpected error detail: %#v", err)
	}
	testutil.AssertCount(t, tr, 0)
}

func TestInvalidID(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{})

	n := types.NewNode(nil, nil)
	n.ID = "a#b"
	if err := tr.Save(context.Background(), n); !errors.Is(err, tree.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestCreateGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	for _, idType := range []types.IDType{types.IDTypeUUID, types.IDTypeObjectID} {
		t.Run(string(idType), func(t *testing.T) {
			tr := testutil.NewTree(t, types.Config{IDType: idType})
			root, err := tr.Create(ctx, nil, map[string]interface{}{"name": "root"})
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			child, err := tr.Create(ctx, &root.ID, nil)
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if root.ID == "" || child.ID == root.ID {
				t.Errorf("expected distinct generated ids, got %q and %q", root.ID, child.ID)
			}
			if child.Path != root.ID+"#"+child.ID {
				t.Errorf("unexpected child path %q", child.Path)
			}
			if child.IsNew() {
				t.Error("expected created node to be persisted")
			}
		})
	}
}

func TestSaveTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	tr := testutil.NewTree(t, types.Config{}, tree.WithTimeFunc(func() time.Time { return clock }))
	ctx := context.Background()

	n, err := tr.Create(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	clock = now.Add(time.Hour)
	n.Data["name"] = "renamed"
	if err := tr.Save(ctx, n); err != nil {
		t.Fatal(err)
	}

	stored := testutil.Reload(t, tr, n.ID)
	if !stored.CreatedAt.Equal(now) || !stored.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected timestamps created=%v updated=%v", stored.CreatedAt, stored.UpdatedAt)
	}
}

func TestScenarioMoveToPosition(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{PathSeparator: ".", TreeOrdering: true})
	family := testutil.LoadFamily(t, tr)
	adam := &family.Adam.ID

	testutil.AssertPositions(t, tr, adam, map[string]int{"Bob": 0, "Carol": 1, "Falko": 2})

	if err := tr.MoveToPosition(context.Background(), family.Falko, 1); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	testutil.AssertPositions(t, tr, adam, map[string]int{"Bob": 0, "Falko": 1, "Carol": 2})
	testutil.AssertDensePositions(t, tr, adam)
}

func TestMoveToPositionForwardAndClamp(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{TreeOrdering: true})
	family := testutil.LoadFamily(t, tr)
	adam := &family.Adam.ID
	ctx := context.Background()

	if err := tr.MoveToPosition(ctx, family.Bob, 99); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if *family.Bob.Position != 2 {
		t.Errorf("expected target clamped to 2, got %d", *family.Bob.Position)
	}
	testutil.AssertPositions(t, tr, adam, map[string]int{"Carol": 0, "Falko": 1, "Bob": 2})

	if err := tr.MoveToPosition(ctx, family.Bob, -5); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	testutil.AssertPositions(t, tr, adam, map[string]int{"Bob": 0, "Carol": 1, "Falko": 2})

	falko := testutil.Reload(t, tr, "Falko")
	if err := tr.MoveToPosition(ctx, falko, 2); err != nil {
		t.Fatalf("no-op move failed: %v", err)
	}
	testutil.AssertDensePositions(t, tr, adam)
	testutil.AssertDensePositions(t, tr, nil)
}

func TestScenarioMoveWithoutOrdering(t *testing.T) {
	tr, coll := newFaultyTree(t, dotted)
	family := testutil.LoadFamily(t, tr)
	before := testutil.AllNodes(t, tr)
	calls := coll.Calls()

	err := tr.MoveToPosition(context.Background(), family.Falko, 0)
	if !errors.Is(err, tree.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var cfgErr *tree.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %T", err)
	}
	if coll.Calls() != calls {
		t.Errorf("expected no collection access, got %d calls", coll.Calls()-calls)
	}

	after := testutil.AllNodes(t, tr)
	if diff := cmp.Diff(before, after, cmpopts.IgnoreUnexported(types.Node{})); diff != "" {
		t.Errorf("nodes changed (-before +after):\n%s", diff)
	}
	if family.Falko.Position != nil {
		t.Errorf("expected no position, got %d", *family.Falko.Position)
	}
}

func TestDefaultPositionKeepsGaps(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{TreeOrdering: true})
	family := testutil.LoadFamily(t, tr)
	ctx := context.Background()
	adam := &family.Adam.ID

	if _, err := tr.Delete(ctx, family.Carol); err != nil {
		t.Fatal(err)
	}
	n, err := tr.Create(ctx, adam, nil)
	if err != nil {
		t.Fatal(err)
	}
	if *n.Position != 3 {
		t.Errorf("expected max+1 = 3, got %d", *n.Position)
	}

	changed, err := tr.CompactPositions(ctx, adam)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if changed != 2 {
		t.Errorf("expected 2 renumbered children, got %d", changed)
	}
	testutil.AssertPositions(t, tr, adam, map[string]int{"Bob": 0, "Falko": 1, n.ID: 2})
}

func TestReparentAssignsPositionUnderNewParent(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{TreeOrdering: true})
	family := testutil.LoadFamily(t, tr)

	if _, err := tr.Reparent(context.Background(), family.Falko, &family.Carol.ID); err != nil {
		t.Fatal(err)
	}
	testutil.AssertPositions(t, tr, &family.Carol.ID, map[string]int{"Dann": 0, "Falko": 1})
}

func TestCompactPositionsRequiresOrdering(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{})
	if _, err := tr.CompactPositions(context.Background(), nil); !errors.Is(err, tree.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestPartialCascade(t *testing.T) {
	tr, coll := newFaultyTree(t, types.Config{PathSeparator: ".", NumWorkers: 1})
	family := testutil.LoadFamily(t, tr)

	coll.mu.Lock()
	coll.failAfter = 1
	coll.mu.Unlock()

	res, err := tr.Reparent(context.Background(), family.Carol, &family.Bob.ID)
	if !errors.Is(err, tree.ErrPartialCascade) {
		t.Fatalf("expected partial cascade, got %v", err)
	}
	if !errors.Is(err, coll.failUpdate) {
		t.Errorf("expected the collection error to be wrapped, got %v", err)
	}
	var cerr *tree.CascadeError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CascadeError, got %T", err)
	}
	if res.Status != tree.Partial || res.Matched != 2 || res.Updated != 1 || len(res.Unresolved) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if cerr.Result.Status != tree.Partial {
		t.Errorf("expected error to carry the result, got %+v", cerr.Result)
	}

	// the node itself is not saved when its cascade fails
	testutil.AssertParent(t, tr, "Carol", "Adam")
}

func TestCascadeNotAttempted(t *testing.T) {
	tr, coll := newFaultyTree(t, types.Config{PathSeparator: ".", NumWorkers: 1})
	family := testutil.LoadFamily(t, tr)

	coll.mu.Lock()
	coll.failAfter = 0
	coll.mu.Unlock()

	res, err := tr.Reparent(context.Background(), family.Carol, &family.Bob.ID)
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, tree.ErrPartialCascade) {
		t.Errorf("nothing was written, expected a plain cascade error, got %v", err)
	}
	if res.Status != tree.NotAttempted || res.Updated != 0 || len(res.Unresolved) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	testutil.AssertPath(t, tr, "Dann", "Adam.Carol.Dann")
}

func TestPropertiesAfterMixedOperations(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{PathSeparator: "/", TreeOrdering: true, NumWorkers: 3})
	family := testutil.LoadFamily(t, tr)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := tr.Reparent(ctx, family.Dann, &family.Eden.ID); return err },
		func() error { _, err := tr.Reparent(ctx, family.Eden, &family.Bob.ID); return err },
		func() error {
			_, err := tr.DeleteWithPolicy(ctx, testutil.Reload(t, tr, "Bob"), types.ReparentChildren)
			return err
		},
		func() error { return tr.MoveToPosition(ctx, testutil.Reload(t, tr, "Eden"), 0) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		testutil.AssertConsistent(t, tr)
	}

	testutil.AssertPath(t, tr, "Emily", "Adam/Eden/Dann/Emily")
	testutil.AssertPositions(t, tr, &family.Adam.ID, map[string]int{"Eden": 0, "Carol": 1, "Falko": 2})
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.Config
	}{
		{"letter separator", types.Config{PathSeparator: "x"}},
		{"long separator", types.Config{PathSeparator: "::"}},
		{"unknown policy", types.Config{OnDelete: "ARCHIVE"}},
		{"negative workers", types.Config{NumWorkers: -1}},
		{"unknown id type", types.Config{IDType: "serial"}},
		{"reserved position field", types.Config{PositionField: "path"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tree.New(store.NewMemory(), tt.cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := tree.New(nil, types.Config{}); err == nil {
		t.Error("expected an error for a nil collection")
	}
}

func TestMoveToPositionProjectedNode(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{TreeOrdering: true})
	family := testutil.LoadFamily(t, tr)
	ctx := context.Background()

	children, err := tr.GetChildren(ctx, family.Adam, tree.ChildrenQuery{
		Options: types.FindOptions{Fields: []string{types.FieldID, types.FieldPosition}},
	})
	if err != nil {
		t.Fatalf("failed to list children: %v", err)
	}
	var falko *types.Node
	for i := range children {
		if children[i].ID == "Falko" {
			falko = &children[i]
		}
	}
	if falko == nil {
		t.Fatalf("Falko missing from %v", testutil.IDs(children))
	}
	if falko.Parent != nil || len(falko.Data) != 0 {
		t.Fatalf("expected a projected node, got parent=%v data=%v", falko.Parent, falko.Data)
	}

	if err := tr.MoveToPosition(ctx, falko, 0); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if falko.Position == nil || *falko.Position != 0 {
		t.Errorf("expected in-memory position 0, got %v", falko.Position)
	}

	stored := testutil.Reload(t, tr, "Falko")
	testutil.AssertParent(t, tr, "Falko", "Adam")
	testutil.AssertPath(t, tr, "Falko", "Adam#Falko")
	if stored.Data["name"] != "Falko" {
		t.Errorf("expected data to survive the move, got %v", stored.Data)
	}
	if stored.UpdatedAt.Before(family.Falko.UpdatedAt) {
		t.Errorf("expected updated_at to advance, got %v", stored.UpdatedAt)
	}
	testutil.AssertPositions(t, tr, &family.Adam.ID, map[string]int{"Falko": 0, "Bob": 1, "Carol": 2})
	testutil.AssertConsistent(t, tr)
}

func TestMoveToPositionRejectsPendingParentChange(t *testing.T) {
	tr := testutil.NewTree(t, types.Config{TreeOrdering: true})
	family := testutil.LoadFamily(t, tr)

	family.Falko.SetParent(&family.Carol.ID)
	if err := tr.MoveToPosition(context.Background(), family.Falko, 0); err == nil {
		t.Fatal("expected an error for a node with an unsaved parent change")
	}

	testutil.AssertPositions(t, tr, &family.Adam.ID, map[string]int{"Bob": 0, "Carol": 1, "Falko": 2})
	testutil.AssertPositions(t, tr, &family.Carol.ID, map[string]int{"Dann": 0})
	testutil.AssertParent(t, tr, "Falko", "Adam")
}

func TestDeleteReparentPositionsPromotedChildren(t *testing.T) {
	t.Run("family", func(t *testing.T) {
		tr := testutil.NewTree(t, types.Config{TreeOrdering: true, OnDelete: types.ReparentChildren})
		family := testutil.LoadFamily(t, tr)

		if _, err := tr.Delete(context.Background(), family.Carol); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		testutil.AssertPositions(t, tr, &family.Adam.ID, map[string]int{"Bob": 0, "Falko": 2, "Dann": 3})
		testutil.AssertPositions(t, tr, &family.Dann.ID, map[string]int{"Emily": 0})
		testutil.AssertConsistent(t, tr)
	})

	t.Run("keeps sibling order", func(t *testing.T) {
		tr := testutil.NewTree(t, types.Config{TreeOrdering: true, OnDelete: types.ReparentChildren})
		ctx := context.Background()

		create := func(parent *string) *types.Node {
			t.Helper()
			n, err := tr.Create(ctx, parent, nil)
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			return n
		}
		root := create(nil)
		first := create(&root.ID)
		middle := create(&root.ID)
		c1 := create(&middle.ID)
		c2 := create(&middle.ID)
		c3 := create(&middle.ID)

		if err := tr.MoveToPosition(ctx, c3, 0); err != nil {
			t.Fatalf("move failed: %v", err)
		}
		if _, err := tr.Delete(ctx, middle); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		testutil.AssertPositions(t, tr, &root.ID, map[string]int{first.ID: 0, c3.ID: 1, c1.ID: 2, c2.ID: 3})
		testutil.AssertConsistent(t, tr)
	})
}

// inflightCollection records the highest number of concurrent UpdateOne calls
type inflightCollection struct {
	store.Collection

	mu       sync.Mutex
	inflight int
	peak     int
}

func (c *inflightCollection) UpdateOne(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	c.mu.Lock()
	c.inflight++
	if c.inflight > c.peak {
		c.peak = c.inflight
	}
	c.mu.Unlock()

	time.Sleep(2 * time.Millisecond)
	n, err := c.Collection.UpdateOne(ctx, filter, update)

	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
	return n, err
}

func TestCascadeBoundsConcurrentUpdates(t *testing.T) {
	const workers = 3
	coll := &inflightCollection{Collection: store.NewMemory()}
	t.Cleanup(func() { _ = coll.Close() })
	tr, err := tree.New(coll, types.Config{NumWorkers: workers})
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	ctx := context.Background()

	a, err := tr.Create(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tr.Create(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if _, err := tr.Create(ctx, &a.ID, nil); err != nil {
			t.Fatal(err)
		}
	}

	res, err := tr.Reparent(ctx, a, &b.ID)
	if err != nil {
		t.Fatalf("reparent failed: %v", err)
	}
	if res.Updated != 30 {
		t.Errorf("expected 30 rewritten descendants, got %d", res.Updated)
	}

	coll.mu.Lock()
	peak := coll.peak
	coll.mu.Unlock()
	if peak > workers {
		t.Errorf("expected at most %d updates in flight, saw %d", workers, peak)
	}
	if peak < 2 {
		t.Errorf("expected updates to run concurrently, peak was %d", peak)
	}
	testutil.AssertConsistent(t, tr)
}
