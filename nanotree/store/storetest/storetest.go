// Package storetest is a conformance suite every store.Collection
// implementation runs from its own tests.
package storetest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

// Factory returns a fresh, empty collection. The suite closes it.
type Factory func(t *testing.T) store.Collection

// Run executes the conformance suite against collections made by newCollection
func Run(t *testing.T, newCollection Factory) {
	t.Run("SaveAndFindOne", func(t *testing.T) { testSaveAndFindOne(t, newCollection) })
	t.Run("Filters", func(t *testing.T) { testFilters(t, newCollection) })
	t.Run("SortSkipLimit", func(t *testing.T) { testSortSkipLimit(t, newCollection) })
	t.Run("Projection", func(t *testing.T) { testProjection(t, newCollection) })
	t.Run("Updates", func(t *testing.T) { testUpdates(t, newCollection) })
	t.Run("RemoveMany", func(t *testing.T) { testRemoveMany(t, newCollection) })
	t.Run("DataRoundTrip", func(t *testing.T) { testDataRoundTrip(t, newCollection) })
}

// Seed saves the canonical sample tree:
//
//	r(0)
//	├── a(0)
//	│   └── a.x
//	└── b(1)
//	    └── b.y(0)
//	s      (second root, no position)
func Seed(t *testing.T, c store.Collection) {
	t.Helper()
	ctx := context.Background()

	nodes := []types.Node{
		{ID: "r", Path: "r", Position: types.IntPtr(0), Data: map[string]interface{}{"name": "root", "age": 60}},
		{ID: "a", Parent: types.StringPtr("r"), Path: "r#a", Position: types.IntPtr(0), Data: map[string]interface{}{"name": "alpha", "age": 35}},
		{ID: "b", Parent: types.StringPtr("r"), Path: "r#b", Position: types.IntPtr(1), Data: map[string]interface{}{"name": "beta"}},
		{ID: "a.x", Parent: types.StringPtr("a"), Path: "r#a#a.x", Data: map[string]interface{}{"name": "x"}},
		{ID: "b.y", Parent: types.StringPtr("b"), Path: "r#b#b.y", Position: types.IntPtr(0), Data: map[string]interface{}{"name": "y", "age": 8}},
		{ID: "s", Path: "s", Data: map[string]interface{}{"name": "second"}},
	}
	for i := range nodes {
		require.NoError(t, c.Save(ctx, &nodes[i]), "seed %s", nodes[i].ID)
	}
}

func findIDs(t *testing.T, c store.Collection, filter types.Filter, opts types.FindOptions) []string {
	t.Helper()
	nodes, err := store.FindAll(context.Background(), c, filter, opts)
	require.NoError(t, err)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func sortedIDs(t *testing.T, c store.Collection, filter types.Filter) []string {
	t.Helper()
	ids := findIDs(t, c, filter, types.FindOptions{})
	sort.Strings(ids)
	return ids
}

func open(t *testing.T, newCollection Factory) store.Collection {
	t.Helper()
	c := newCollection(t)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testSaveAndFindOne(t *testing.T, newCollection Factory) {
	ctx := context.Background()
	c := open(t, newCollection)

	missing, err := c.FindOne(ctx, types.ByID("nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	n := types.Node{ID: "n1", Path: "n1", Data: map[string]interface{}{"name": "first"}}
	require.NoError(t, c.Save(ctx, &n))

	got, err := c.FindOne(ctx, types.ByID("n1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "n1", got.Path)
	assert.Nil(t, got.Parent)
	assert.Nil(t, got.Position)
	assert.Equal(t, "first", got.Data["name"])
	assert.False(t, got.IsNew(), "loaded nodes are persisted")

	n.SetParent(types.StringPtr("p"))
	n.Path = "p#n1"
	n.Position = types.IntPtr(3)
	require.NoError(t, c.Save(ctx, &n))

	count, err := c.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "save replaces by id")

	got, err = c.FindOne(ctx, types.ByID("n1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p", got.ParentID())
	assert.Equal(t, "p#n1", got.Path)
	require.NotNil(t, got.Position)
	assert.Equal(t, 3, *got.Position)

	assert.Error(t, c.Save(ctx, &types.Node{Path: "x"}), "saving without id fails")
}

func testFilters(t *testing.T, newCollection Factory) {
	c := open(t, newCollection)
	Seed(t, c)

	tests := []struct {
		name   string
		filter types.Filter
		want   []string
	}{
		{"all", nil, []string{"a", "a.x", "b", "b.y", "r", "s"}},
		{"roots", types.ByParent(nil), []string{"r", "s"}},
		{"children", types.ByParent(types.StringPtr("r")), []string{"a", "b"}},
		{"descendants by prefix", types.Filter{}.Regex(types.FieldPath, "^r#"), []string{"a", "a.x", "b", "b.y"}},
		{"escaped prefix", types.Filter{}.Regex(types.FieldPath, `^r#a#a\.x`), []string{"a.x"}},
		{"in", types.Filter{}.In(types.FieldID, "a", "s", "missing"), []string{"a", "s"}},
		{"ne", types.ByParent(types.StringPtr("r")).Ne(types.FieldID, "a"), []string{"b"}},
		{"position range", types.Filter{}.Gte(types.FieldPosition, 1).Lte(types.FieldPosition, 1), []string{"b"}},
		{"position gt", types.ByParent(types.StringPtr("r")).Gt(types.FieldPosition, 0), []string{"b"}},
		{"position lt", types.Filter{}.Lt(types.FieldPosition, 1), []string{"a", "b.y", "r"}},
		{"position exists", types.Filter{}.Exists(types.FieldPosition, false), []string{"a.x", "s"}},
		{"data equality", types.Filter{}.Eq("name", "beta"), []string{"b"}},
		{"data numeric", types.Filter{}.Gt("age", 10), []string{"a", "r"}},
		{"data missing", types.Filter{}.Exists("age", false), []string{"a.x", "b", "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sortedIDs(t, c, tt.filter))

			count, err := c.Count(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.EqualValues(t, len(tt.want), count)
		})
	}
}

func testSortSkipLimit(t *testing.T, newCollection Factory) {
	c := open(t, newCollection)
	Seed(t, c)

	children := types.ByParent(types.StringPtr("r"))
	byPosition := []types.OrderClause{{Column: types.FieldPosition}}
	assert.Equal(t, []string{"a", "b"}, findIDs(t, c, children, types.FindOptions{Sort: byPosition}))
	assert.Equal(t, []string{"b", "a"}, findIDs(t, c, children, types.FindOptions{
		Sort: []types.OrderClause{{Column: types.FieldPosition, Descending: true}},
	}))

	// positionless nodes sort first
	all := findIDs(t, c, nil, types.FindOptions{Sort: []types.OrderClause{{Column: types.FieldPosition}, {Column: types.FieldID}}})
	assert.Equal(t, []string{"a.x", "s", "a", "b.y", "r", "b"}, all)

	byPath := []types.OrderClause{{Column: types.FieldPath}}
	assert.Equal(t, []string{"r", "r#a"}, paths(t, c, types.FindOptions{Sort: byPath, Limit: 2}))
	assert.Equal(t, []string{"r#b", "r#b#b.y"}, paths(t, c, types.FindOptions{Sort: byPath, Skip: 3, Limit: 2}))
	assert.Len(t, findIDs(t, c, nil, types.FindOptions{Sort: byPath, Skip: 4}), 2)

	top, err := store.FindAll(context.Background(), c, types.Filter{}.Exists(types.FieldPosition, true), types.FindOptions{
		Sort:  []types.OrderClause{{Column: types.FieldPosition, Descending: true}},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "b", top[0].ID)
}

func paths(t *testing.T, c store.Collection, opts types.FindOptions) []string {
	t.Helper()
	nodes, err := store.FindAll(context.Background(), c, nil, opts)
	require.NoError(t, err)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Path)
	}
	return out
}

func testProjection(t *testing.T, newCollection Factory) {
	c := open(t, newCollection)
	Seed(t, c)

	nodes, err := store.FindAll(context.Background(), c, types.ByID("a"), types.FindOptions{
		Fields: []string{types.FieldPath, "name"},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	n := nodes[0]
	assert.Equal(t, "a", n.ID)
	assert.Equal(t, "r#a", n.Path)
	assert.Equal(t, "alpha", n.Data["name"])
	assert.NotContains(t, n.Data, "age")
	assert.Nil(t, n.Position)

	nodes, err = store.FindAll(context.Background(), c, types.ByID("a"), types.FindOptions{
		Exclude: []string{"age"},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.NotContains(t, nodes[0].Data, "age")
	assert.Equal(t, "alpha", nodes[0].Data["name"])
	assert.Equal(t, "r", nodes[0].ParentID())
}

func testUpdates(t *testing.T, newCollection Factory) {
	ctx := context.Background()
	c := open(t, newCollection)
	Seed(t, c)

	// shift every child of r at or after position 0 by one
	n, err := c.UpdateMany(ctx, types.ByParent(types.StringPtr("r")).Gte(types.FieldPosition, 0), types.IncField(types.FieldPosition, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, []string{"a"}, sortedIDs(t, c, types.Filter{}.Eq(types.FieldPosition, 1)))
	assert.Equal(t, []string{"b"}, sortedIDs(t, c, types.Filter{}.Eq(types.FieldPosition, 2)))

	// re-link children to another parent
	n, err = c.UpdateMany(ctx, types.ByParent(types.StringPtr("b")), types.SetField(types.FieldParent, "r"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, []string{"a", "b", "b.y"}, sortedIDs(t, c, types.ByParent(types.StringPtr("r"))))

	// promote to root
	n, err = c.UpdateOne(ctx, types.ByID("a.x"), types.Update{
		Set:   map[string]interface{}{types.FieldParent: nil, types.FieldPath: "a.x"},
		Unset: []string{"name"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	got, err := c.FindOne(ctx, types.ByID("a.x"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Parent)
	assert.Equal(t, "a.x", got.Path)
	assert.NotContains(t, got.Data, "name")

	// update one touches a single document
	n, err = c.UpdateOne(ctx, types.ByParent(nil), types.SetField("flag", "on"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	count, err := c.Count(ctx, types.Filter{}.Eq("flag", "on"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	n, err = c.UpdateMany(ctx, types.ByID("missing"), types.SetField("flag", "off"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func testRemoveMany(t *testing.T, newCollection Factory) {
	ctx := context.Background()
	c := open(t, newCollection)
	Seed(t, c)

	n, err := c.RemoveMany(ctx, types.Filter{}.Regex(types.FieldPath, "^r#a#"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.RemoveMany(ctx, types.Filter{}.In(types.FieldID, "a", "s"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Equal(t, []string{"b", "b.y", "r"}, sortedIDs(t, c, nil))

	n, err = c.RemoveMany(ctx, types.ByID("gone"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func testDataRoundTrip(t *testing.T, newCollection Factory) {
	ctx := context.Background()
	c := open(t, newCollection)

	created := time.Date(2024, 5, 17, 9, 30, 0, 123000000, time.UTC)
	n := types.Node{
		ID:        "d",
		Path:      "d",
		Position:  types.IntPtr(0),
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		Data: map[string]interface{}{
			"title": "Quarterly report",
			"size":  42,
			"done":  true,
		},
	}
	require.NoError(t, c.Save(ctx, &n))

	got, err := c.FindOne(ctx, types.ByID("d"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Quarterly report", got.Data["title"])
	assert.EqualValues(t, 42, got.Data["size"])
	assert.Equal(t, true, got.Data["done"])
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, created)
	assert.True(t, created.Add(time.Hour).Equal(got.UpdatedAt), "updated_at %v", got.UpdatedAt)

	count, err := c.Count(ctx, types.Filter{}.Gt(types.FieldCreatedAt, created.Add(-time.Minute)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
