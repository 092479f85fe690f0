package mongostore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arthur-debert/nanotree/types"
)

func TestTranslateFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter types.Filter
		want   bson.M
	}{
		{
			name:   "empty",
			filter: nil,
			want:   bson.M{},
		},
		{
			name:   "roots",
			filter: types.ByParent(nil),
			want:   bson.M{"parent": bson.M{"$eq": nil}},
		},
		{
			name:   "id maps to _id",
			filter: types.Filter{}.In(types.FieldID, "a", "b"),
			want:   bson.M{"_id": bson.M{"$in": bson.A{"a", "b"}}},
		},
		{
			name:   "position range on one field",
			filter: types.ByParent(types.StringPtr("p")).Gte(types.FieldPosition, 1).Lt(types.FieldPosition, 4),
			want: bson.M{
				"parent":   bson.M{"$eq": "p"},
				"position": bson.M{"$gte": 1, "$lt": 4},
			},
		},
		{
			name:   "data fields are nested",
			filter: types.Filter{}.Eq("name", "Bob").Exists("age", false),
			want: bson.M{
				"data.name": bson.M{"$eq": "Bob"},
				"data.age":  bson.M{"$exists": false},
			},
		},
		{
			name:   "prefix regex",
			filter: types.Filter{}.Regex(types.FieldPath, `^a#b#`),
			want:   bson.M{"path": bson.M{"$regex": bson.Regex{Pattern: `^a#b#`}}},
		},
		{
			name:   "repeated operator",
			filter: types.Filter{}.Ne(types.FieldID, "a").Ne(types.FieldID, "b"),
			want: bson.M{
				"_id":  bson.M{"$ne": "a"},
				"$and": bson.A{bson.M{"_id": bson.M{"$ne": "b"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translateFilter(tt.filter)
			if err != nil {
				t.Fatalf("translateFilter failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslateFilterErrors(t *testing.T) {
	bad := []types.Filter{
		types.Filter{}.Eq("$where", "1"),
		types.Where("name", "$near", 1),
		types.Where("name", types.OpIn, "x"),
		types.Where(types.FieldPath, types.OpRegex, 1),
	}
	for _, f := range bad {
		if _, err := translateFilter(f); err == nil {
			t.Errorf("expected error for %v", f)
		}
	}
}

func TestTranslateUpdate(t *testing.T) {
	got, err := translateUpdate(types.Update{
		Set:   map[string]interface{}{types.FieldParent: nil, types.FieldPath: "b", "name": "x", "gone": nil},
		Unset: []string{"age"},
		Inc:   map[string]int{types.FieldPosition: -1},
	})
	if err != nil {
		t.Fatalf("translateUpdate failed: %v", err)
	}
	want := bson.M{
		"$set":   bson.M{"parent": nil, "path": "b", "data.name": "x"},
		"$unset": bson.M{"data.gone": "", "data.age": ""},
		"$inc":   bson.M{"position": -1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}

	if _, err := translateUpdate(types.SetField(types.FieldID, "x")); err == nil {
		t.Error("expected error when setting the id")
	}
	if _, err := translateUpdate(types.IncField(types.FieldPath, 1)); err == nil {
		t.Error("expected error when incrementing the path")
	}
}

func TestTranslateSortAndProjection(t *testing.T) {
	sort, err := translateSort([]types.OrderClause{{Column: types.FieldPosition}, {Column: "name", Descending: true}})
	if err != nil {
		t.Fatal(err)
	}
	want := bson.D{{Key: "position", Value: 1}, {Key: "data.name", Value: -1}}
	if diff := cmp.Diff(want, sort); diff != "" {
		t.Errorf("sort mismatch (-want +got):\n%s", diff)
	}

	proj, err := translateProjection(types.FindOptions{Fields: []string{types.FieldPath, "name"}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(bson.M{"_id": 1, "path": 1, "data.name": 1}, proj); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}

	proj, err = translateProjection(types.FindOptions{Exclude: []string{types.FieldID}})
	if err != nil || proj != nil {
		t.Errorf("excluding only the id should not project, got %v (err %v)", proj, err)
	}
}
