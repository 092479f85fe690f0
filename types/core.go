package types

import "time"

// Canonical field names understood by every collection. Any other field name
// addresses a key inside Node.Data.
const (
	FieldID        = "id"
	FieldParent    = "parent"
	FieldPath      = "path"
	FieldPosition  = "position"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Node is a single record of a materialized-path tree
type Node struct {
	ID        string                 `json:"id" bson:"_id"`                                 // Stable identifier, never contains the path separator
	Parent    *string                `json:"parent" bson:"parent"`                          // nil for roots
	Path      string                 `json:"path" bson:"path"`                              // Ancestor ids, root first, ending with ID
	Position  *int                   `json:"position,omitempty" bson:"position,omitempty"`  // Sibling position, nil until assigned
	Data      map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`          // Caller fields
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`                  // Creation timestamp
	UpdatedAt time.Time              `json:"updated_at" bson:"updated_at"`                  // Last update timestamp

	persisted      bool
	parentModified bool
}

// NewNode returns an unsaved node under parentID (nil for a root).
func NewNode(parentID *string, data map[string]interface{}) *Node {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Node{Parent: CloneString(parentID), Data: data}
}

// SetParent changes the parent reference and marks it modified. The flag is
// set even when the value does not change.
func (n *Node) SetParent(parentID *string) {
	n.Parent = CloneString(parentID)
	n.parentModified = true
}

// ParentModified reports whether SetParent was called since the node was
// loaded or last saved.
func (n *Node) ParentModified() bool {
	return n.parentModified
}

// IsNew reports whether the node has never been persisted.
func (n *Node) IsNew() bool {
	return !n.persisted
}

// MarkPersisted clears change tracking. Collections call it on every node they
// hand out; the tree calls it after a successful save.
func (n *Node) MarkPersisted() {
	n.persisted = true
	n.parentModified = false
}

// IsRoot reports whether the node has no parent
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// ParentID returns the parent id or "" for roots
func (n *Node) ParentID() string {
	if n.Parent == nil {
		return ""
	}
	return *n.Parent
}

// Clone returns a deep copy, change tracking included.
func (n Node) Clone() Node {
	c := n
	c.Parent = CloneString(n.Parent)
	if n.Position != nil {
		p := *n.Position
		c.Position = &p
	}
	if n.Data != nil {
		c.Data = make(map[string]interface{}, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	return c
}

// ToMap returns the plain value representation of the node. positionField
// names the key used for the sibling position; it is omitted when empty or
// when the position is unset.
func (n Node) ToMap(positionField string) map[string]interface{} {
	m := make(map[string]interface{}, len(n.Data)+6)
	for k, v := range n.Data {
		m[k] = v
	}
	m[FieldID] = n.ID
	if n.Parent != nil {
		m[FieldParent] = *n.Parent
	} else {
		m[FieldParent] = nil
	}
	m[FieldPath] = n.Path
	if positionField != "" && n.Position != nil {
		m[positionField] = *n.Position
	}
	if !n.CreatedAt.IsZero() {
		m[FieldCreatedAt] = n.CreatedAt
	}
	if !n.UpdatedAt.IsZero() {
		m[FieldUpdatedAt] = n.UpdatedAt
	}
	return m
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to i
func IntPtr(i int) *int {
	return &i
}

// CloneString copies a string pointer
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
