package query

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanotree/types"
)

func sampleNodes() []types.Node {
	return []types.Node{
		{ID: "a", Path: "a", Position: types.IntPtr(0), Data: map[string]interface{}{"name": "Adam", "age": 60}},
		{ID: "b", Parent: types.StringPtr("a"), Path: "a#b", Position: types.IntPtr(1), Data: map[string]interface{}{"name": "Bob", "age": 35.0}},
		{ID: "c", Parent: types.StringPtr("a"), Path: "a#c", Position: types.IntPtr(0), Data: map[string]interface{}{"name": "Carol"}},
		{ID: "d", Parent: types.StringPtr("b"), Path: "a#b#d", Data: map[string]interface{}{"name": "Dann", "age": 8}},
	}
}

func ids(nodes []types.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestMatches(t *testing.T) {
	p := NewProcessor()

	tests := []struct {
		name   string
		filter types.Filter
		want   []string
	}{
		{"empty filter", nil, []string{"a", "b", "c", "d"}},
		{"roots", types.ByParent(nil), []string{"a"}},
		{"children of a", types.ByParent(types.StringPtr("a")), []string{"b", "c"}},
		{"prefix regex", types.Filter{}.Regex(types.FieldPath, "^a#b#"), []string{"d"}},
		{"in ids", types.Filter{}.In(types.FieldID, "a", "d", "zz"), []string{"a", "d"}},
		{"ne", types.Filter{}.Ne(types.FieldID, "a"), []string{"b", "c", "d"}},
		{"mixed numeric types", types.Filter{}.Gte("age", 35), []string{"a", "b"}},
		{"position range", types.ByParent(types.StringPtr("a")).Gt(types.FieldPosition, 0).Lte(types.FieldPosition, 1), []string{"b"}},
		{"position exists", types.Filter{}.Exists(types.FieldPosition, true), []string{"a", "b", "c"}},
		{"data missing", types.Filter{}.Exists("age", false), []string{"c"}},
		{"eq nil matches missing data", types.Filter{}.Eq("age", nil), []string{"c"}},
		{"data equality", types.Filter{}.Eq("name", "Bob"), []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Execute(sampleNodes(), tt.filter, types.FindOptions{})
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchesErrors(t *testing.T) {
	p := NewProcessor()
	n := sampleNodes()[0]

	if _, err := p.Matches(n, types.Filter{}.Regex(types.FieldPath, "(")); err == nil {
		t.Error("expected error for invalid regex")
	}
	if _, err := p.Matches(n, types.Where("name", "$near", 1)); err == nil {
		t.Error("expected error for unknown operator")
	}
	if _, err := p.Matches(n, types.Where("name", types.OpIn, "Adam")); err == nil {
		t.Error("expected error for non-list $in")
	}
}

func TestSortAndPaginate(t *testing.T) {
	p := NewProcessor()

	got, err := p.Execute(sampleNodes(), nil, types.FindOptions{
		Sort: []types.OrderClause{{Column: types.FieldPosition}, {Column: "name", Descending: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// d has no position and sorts first, then the two position 0 nodes by name descending
	if diff := cmp.Diff([]string{"d", "c", "a", "b"}, ids(got)); diff != "" {
		t.Errorf("sort mismatch (-want +got):\n%s", diff)
	}

	got, err = p.Execute(sampleNodes(), nil, types.FindOptions{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "c"}, ids(got)); diff != "" {
		t.Errorf("pagination mismatch (-want +got):\n%s", diff)
	}

	got, _ = p.Execute(sampleNodes(), nil, types.FindOptions{Skip: 10})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", ids(got))
	}
}

func TestProject(t *testing.T) {
	n := sampleNodes()[1]
	n.MarkPersisted()

	got := Project(n, types.FindOptions{Fields: []string{"name", types.FieldPath}})
	if got.ID != "b" || got.Path != "a#b" || got.Parent != nil || got.Position != nil {
		t.Errorf("unexpected projection: %+v", got)
	}
	if diff := cmp.Diff(map[string]interface{}{"name": "Bob"}, got.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if got.IsNew() {
		t.Error("projection must keep the persisted flag")
	}

	got = Project(n, types.FindOptions{Exclude: []string{"age", types.FieldPosition, types.FieldID}})
	if got.ID != "b" || got.Position != nil || got.Data["age"] != nil || got.Data["name"] != "Bob" {
		t.Errorf("unexpected exclusion: %+v", got)
	}
	if n.Data["age"] == nil {
		t.Error("exclusion modified the source node")
	}
}

func TestApplyUpdate(t *testing.T) {
	n := sampleNodes()[3]

	err := ApplyUpdate(&n, types.Update{
		Set:   map[string]interface{}{types.FieldParent: "a", types.FieldPath: "a#d", "name": "Dan"},
		Unset: []string{"age"},
		Inc:   map[string]int{types.FieldPosition: 2},
	})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if n.ParentID() != "a" || n.Path != "a#d" || n.Data["name"] != "Dan" {
		t.Errorf("set not applied: %+v", n)
	}
	if _, ok := n.Data["age"]; ok {
		t.Error("unset not applied")
	}
	if n.Position == nil || *n.Position != 2 {
		t.Errorf("increment of missing position should start from 0, got %v", n.Position)
	}

	if err := ApplyUpdate(&n, types.SetField(types.FieldID, "x")); err == nil {
		t.Error("expected error when changing the id")
	}
	if err := ApplyUpdate(&n, types.IncField("name", 1)); err == nil {
		t.Error("expected error when incrementing a string")
	}
	if err := ApplyUpdate(&n, types.SetField(types.FieldParent, nil)); err != nil || n.Parent != nil {
		t.Errorf("expected parent cleared, got %v (err %v)", n.Parent, err)
	}
}

func TestCompareValues(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		a, b   interface{}
		want   int
		wantOK bool
	}{
		{1, 2.5, -1, true},
		{int64(3), 3, 0, true},
		{"b", "a", 1, true},
		{ts, "2024-03-01T12:00:00Z", 0, true},
		{"2024-01-01", ts, -1, true},
		{false, true, -1, true},
		{"1", 1, 0, false},
	}
	for _, tt := range tests {
		got, ok := compareValues(tt.a, tt.b)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("compareValues(%v, %v) = %d, %v; want %d, %v", tt.a, tt.b, got, ok, tt.want, tt.wantOK)
		}
	}
}
