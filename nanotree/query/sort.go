package query

import (
	"sort"

	"github.com/arthur-debert/nanotree/types"
)

// SortNodes sorts nodes according to the order clauses. The sort is stable;
// missing and null values order before any other value.
func SortNodes(nodes []types.Node, orderBy []types.OrderClause) {
	sort.SliceStable(nodes, func(i, j int) bool {
		for _, clause := range orderBy {
			valI, _ := FieldValue(nodes[i], clause.Column)
			valJ, _ := FieldValue(nodes[j], clause.Column)

			c := orderValues(valI, valJ)
			if c == 0 {
				continue
			}
			if clause.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// orderValues is a total order over field values: nil first, then values
// compared with compareValues, falling back to their string form.
func orderValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	sa, sb := valueToString(a), valueToString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
