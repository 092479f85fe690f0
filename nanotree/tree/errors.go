package tree

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them through errors.Is.
var (
	ErrNotFound       = errors.New("node not found")
	ErrConfiguration  = errors.New("configuration error")
	ErrPartialCascade = errors.New("cascade partially applied")
	ErrCycle          = errors.New("parent would create a cycle")
	ErrInvalidID      = errors.New("invalid node id")
)

// NotFoundError reports a node or parent id that does not resolve
type NotFoundError struct {
	ID   string
	Role string // "node" or "parent"
}

func (e *NotFoundError) Error() string {
	role := e.Role
	if role == "" {
		role = "node"
	}
	return fmt.Sprintf("%s %q not found", role, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) work
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConfigurationError reports an operation the tree configuration does not
// allow. It is raised before the collection is touched.
type ConfigurationError struct {
	Operation string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Operation, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) work
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// CascadeStatus tells how much of a cascade reached the collection
type CascadeStatus int

const (
	// NotAttempted means no document was changed
	NotAttempted CascadeStatus = iota
	// Applied means every affected document was changed
	Applied
	// Partial means some documents were changed before a failure
	Partial
)

func (s CascadeStatus) String() string {
	switch s {
	case NotAttempted:
		return "not_attempted"
	case Applied:
		return "applied"
	case Partial:
		return "partial"
	default:
		return fmt.Sprintf("CascadeStatus(%d)", int(s))
	}
}

// CascadeResult describes the follow-up updates a structural change caused.
// Matched and Updated count path rewrites; Relinked counts children whose
// parent was re-pointed and Removed counts deleted documents.
type CascadeResult struct {
	Op         string        `json:"op"`
	Status     CascadeStatus `json:"status"`
	Matched    int64         `json:"matched"`
	Updated    int64         `json:"updated"`
	Relinked   int64         `json:"relinked,omitempty"`
	Removed    int64         `json:"removed,omitempty"`
	Unresolved []string      `json:"unresolved,omitempty"`
}

// MarshalText lets the status appear by name in JSON and YAML output
func (s CascadeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// changed reports whether any document was written
func (r CascadeResult) changed() bool {
	return r.Updated > 0 || r.Relinked > 0 || r.Removed > 0
}

// CascadeError wraps the collection error that stopped a cascade together
// with how far the cascade got. There is no rollback: when Result.Status is
// Partial the subtree must be checked before path queries are trusted.
type CascadeError struct {
	Result CascadeResult
	Err    error
}

func (e *CascadeError) Error() string {
	if e.Result.Status == Partial {
		return fmt.Sprintf("%s cascade partially applied (%d of %d updated, %d unresolved): %v",
			e.Result.Op, e.Result.Updated, e.Result.Matched, len(e.Result.Unresolved), e.Err)
	}
	return fmt.Sprintf("%s cascade failed: %v", e.Result.Op, e.Err)
}

// Unwrap returns the collection error
func (e *CascadeError) Unwrap() error {
	return e.Err
}

// Is matches ErrPartialCascade when some documents were already changed
func (e *CascadeError) Is(target error) bool {
	return target == ErrPartialCascade && e.Result.Status == Partial
}

// cascadeFailure builds the error for a cascade stopped by err, settling the
// status from what was written so far
func cascadeFailure(res CascadeResult, err error) (CascadeResult, error) {
	if res.changed() {
		res.Status = Partial
	} else {
		res.Status = NotAttempted
	}
	return res, &CascadeError{Result: res, Err: err}
}
