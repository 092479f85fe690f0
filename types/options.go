package types

// OrderClause represents a single sort key
type OrderClause struct {
	Column     string
	Descending bool
}

// FindOptions configures projection, ordering and pagination of a find
type FindOptions struct {
	// Fields lists the fields to include. Empty means all fields.
	// The id is always included.
	Fields []string

	// Exclude lists fields to blank out. Ignored when Fields is set.
	Exclude []string

	// Sort orders the results; unset values sort first in ascending order
	Sort []OrderClause

	// Limit caps the number of results, 0 means no limit
	Limit int

	// Skip drops that many results from the front
	Skip int
}

// Update describes modifications applied to matching documents
type Update struct {
	// Set assigns field values. A nil value clears the field.
	Set map[string]interface{}

	// Unset clears fields
	Unset []string

	// Inc adds a delta to numeric fields
	Inc map[string]int
}

// SetField returns an update assigning a single field
func SetField(field string, value interface{}) Update {
	return Update{Set: map[string]interface{}{field: value}}
}

// IncField returns an update incrementing a single field
func IncField(field string, delta int) Update {
	return Update{Inc: map[string]int{field: delta}}
}

// IsEmpty reports whether the update changes nothing
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0 && len(u.Inc) == 0
}
