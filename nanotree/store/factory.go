package store

// NewMemory creates a collection held entirely in memory
func NewMemory(opts ...Option) Collection {
	c, _ := newJSONCollection("", opts...)
	return c
}

// NewJSONFile creates a collection persisted to a JSON file, guarded by a
// flock-based lock file next to it
func NewJSONFile(filePath string) (Collection, error) {
	return newJSONCollection(filePath)
}

// NewWithOptions creates a JSON file collection with custom options.
// This is useful for testing with mock file systems and locks.
func NewWithOptions(filePath string, opts ...Option) (Collection, error) {
	return newJSONCollection(filePath, opts...)
}
