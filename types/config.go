package types

// DeletePolicy selects what happens to the descendants of a removed node
type DeletePolicy string

const (
	// DeleteSubtree removes the node and every descendant
	DeleteSubtree DeletePolicy = "DELETE"
	// ReparentChildren promotes the direct children to the removed node's parent
	ReparentChildren DeletePolicy = "REPARENT"
)

// IDType selects how identifiers are generated for new nodes
type IDType string

const (
	// IDTypeUUID generates random UUIDs (default)
	IDTypeUUID IDType = "uuid"
	// IDTypeObjectID generates MongoDB ObjectID hex strings
	IDTypeObjectID IDType = "objectid"
)

// Defaults
const (
	DefaultPathSeparator = "#"
	DefaultNumWorkers    = 5
	DefaultPositionField = FieldPosition
)

// Config defines how a collection is augmented into a tree
type Config struct {
	// PathSeparator is the single character joining path segments
	PathSeparator string

	// OnDelete selects the cascade applied when a node is removed
	OnDelete DeletePolicy

	// NumWorkers bounds the number of in-flight updates during a cascade
	NumWorkers int

	// IDType selects the identifier generator for new nodes
	IDType IDType

	// TreeOrdering enables sibling positions
	TreeOrdering bool

	// PositionField is the name the position is exposed under in plain
	// results, sorts and projections. Setting it enables ordering.
	PositionField string

	// WrapChildrenTree keeps tree results as nodes; when false they are
	// converted to plain maps
	WrapChildrenTree bool
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills unset fields with their default values
func (c Config) WithDefaults() Config {
	if c.PathSeparator == "" {
		c.PathSeparator = DefaultPathSeparator
	}
	if c.OnDelete == "" {
		c.OnDelete = DeleteSubtree
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = DefaultNumWorkers
	}
	if c.IDType == "" {
		c.IDType = IDTypeUUID
	}
	if c.PositionField != "" {
		c.TreeOrdering = true
	} else if c.TreeOrdering {
		c.PositionField = DefaultPositionField
	}
	return c
}

// Ordering reports whether sibling positions are tracked
func (c Config) Ordering() bool {
	return c.TreeOrdering || c.PositionField != ""
}
