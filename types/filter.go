package types

import "fmt"

// Operator is a comparison understood by every collection
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpIn     Operator = "$in"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpRegex  Operator = "$regex"
	OpExists Operator = "$exists"
)

// Condition is a single field comparison
type Condition struct {
	Field string
	Op    Operator
	Value interface{}
}

// String renders the condition in a mongo-like notation for logs and errors
func (c Condition) String() string {
	return fmt.Sprintf("{%s: {%s: %v}}", c.Field, c.Op, c.Value)
}

// Filter is a conjunction of conditions. The empty filter matches everything.
//
// Filters are built fluently and never modified in place:
//
//	f := types.Where(types.FieldParent, types.OpEq, id).Gte(types.FieldPosition, 2)
type Filter []Condition

// Where starts a filter with a single condition
func Where(field string, op Operator, value interface{}) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

// And returns a new filter with the condition appended
func (f Filter) And(field string, op Operator, value interface{}) Filter {
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, Condition{Field: field, Op: op, Value: value})
}

// Merge returns a new filter holding the conditions of both filters
func (f Filter) Merge(other Filter) Filter {
	out := make(Filter, 0, len(f)+len(other))
	out = append(out, f...)
	return append(out, other...)
}

// Eq adds an equality condition; a nil value matches null or missing fields
func (f Filter) Eq(field string, value interface{}) Filter { return f.And(field, OpEq, value) }

// Ne adds a not-equal condition
func (f Filter) Ne(field string, value interface{}) Filter { return f.And(field, OpNe, value) }

// In adds a set membership condition
func (f Filter) In(field string, values ...interface{}) Filter { return f.And(field, OpIn, values) }

// Gt adds a strict lower bound
func (f Filter) Gt(field string, value interface{}) Filter { return f.And(field, OpGt, value) }

// Gte adds an inclusive lower bound
func (f Filter) Gte(field string, value interface{}) Filter { return f.And(field, OpGte, value) }

// Lt adds a strict upper bound
func (f Filter) Lt(field string, value interface{}) Filter { return f.And(field, OpLt, value) }

// Lte adds an inclusive upper bound
func (f Filter) Lte(field string, value interface{}) Filter { return f.And(field, OpLte, value) }

// Regex adds a regular expression match. Patterns use RE2 syntax, which is
// also accepted by the MongoDB and SQLite adapters for the anchored prefix
// patterns the tree generates.
func (f Filter) Regex(field string, pattern string) Filter { return f.And(field, OpRegex, pattern) }

// Exists adds a presence condition
func (f Filter) Exists(field string, exists bool) Filter { return f.And(field, OpExists, exists) }

// ByID is a shortcut for an id equality filter
func ByID(id string) Filter {
	return Where(FieldID, OpEq, id)
}

// ByParent matches the direct children of parentID (nil for roots)
func ByParent(parentID *string) Filter {
	if parentID == nil {
		return Where(FieldParent, OpEq, nil)
	}
	return Where(FieldParent, OpEq, *parentID)
}
