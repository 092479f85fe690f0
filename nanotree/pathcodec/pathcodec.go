// Package pathcodec builds and parses materialized paths.
//
// A path is the list of ancestor ids, root first, joined by a single
// separator character and ending with the node's own id. A root's path is
// its id. Every strict descendant of a node has a path starting with the
// node's path followed by the separator, which is what PrefixPattern
// matches.
package pathcodec

import (
	"regexp"
	"strings"
)

// Codec builds and parses paths for one separator
type Codec struct {
	sep string
}

// New returns a codec for sep. The separator is validated by the tree
// configuration, not here.
func New(sep string) Codec {
	return Codec{sep: sep}
}

// Separator returns the separator the codec joins segments with
func (c Codec) Separator() string {
	return c.sep
}

// Build appends selfID to ancestorPath. An empty ancestorPath yields a root path.
func (c Codec) Build(ancestorPath, selfID string) string {
	if ancestorPath == "" {
		return selfID
	}
	return ancestorPath + c.sep + selfID
}

// Level returns the number of segments in path, 0 for the empty path
func (c Codec) Level(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, c.sep) + 1
}

// Segments splits path into ids, root first
func (c Codec) Segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, c.sep)
}

// AncestorIDs returns every segment except the last
func (c Codec) AncestorIDs(path string) []string {
	segs := c.Segments(path)
	if len(segs) <= 1 {
		return nil
	}
	return segs[:len(segs)-1]
}

// ParentPath drops the last segment. Roots have an empty parent path.
func (c Codec) ParentPath(path string) string {
	i := strings.LastIndex(path, c.sep)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Contains reports whether id is one of the segments of path
func (c Codec) Contains(path, id string) bool {
	for _, seg := range c.Segments(path) {
		if seg == id {
			return true
		}
	}
	return false
}

// IsDescendantPath reports whether path lies strictly below ancestor
func (c Codec) IsDescendantPath(path, ancestor string) bool {
	return ancestor != "" && strings.HasPrefix(path, ancestor+c.sep)
}

// EscapeForRegex escapes every regular expression metacharacter in s
func EscapeForRegex(s string) string {
	return regexp.QuoteMeta(s)
}

// PrefixPattern returns an anchored pattern matching the paths of all
// strict descendants of the node at path
func (c Codec) PrefixPattern(path string) string {
	return "^" + EscapeForRegex(path) + EscapeForRegex(c.sep)
}

// Rebase replaces the leading from prefix of path with to. It returns false
// when path is neither from nor one of its descendants. An empty to removes
// the prefix together with the separator that followed it.
func (c Codec) Rebase(path, from, to string) (string, bool) {
	if path == from {
		return to, true
	}
	if !c.IsDescendantPath(path, from) {
		return path, false
	}
	rest := path[len(from):]
	if to == "" {
		return rest[len(c.sep):], true
	}
	return to + rest, true
}
