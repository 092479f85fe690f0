// Package query evaluates filters, sorts, projections and updates against
// nodes held in memory. Collections that keep their documents in process use
// it; database adapters translate the same types into native queries.
package query

import (
	"fmt"
	"sync"
	"time"

	"github.com/arthur-debert/nanotree/types"
)

// Processor runs queries against a set of nodes. It is safe for concurrent
// use; compiled regular expressions are cached.
type Processor struct {
	mu      sync.RWMutex
	regexes map[string]*regexpEntry
}

// NewProcessor creates a new query processor
func NewProcessor() *Processor {
	return &Processor{regexes: make(map[string]*regexpEntry)}
}

// Execute returns the nodes matching filter, sorted, paginated and projected
// per opts. The input slice is not modified.
func (p *Processor) Execute(nodes []types.Node, filter types.Filter, opts types.FindOptions) ([]types.Node, error) {
	result := make([]types.Node, 0, len(nodes))
	for _, n := range nodes {
		ok, err := p.Matches(n, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, n.Clone())
		}
	}

	if len(opts.Sort) > 0 {
		SortNodes(result, opts.Sort)
	}

	result = Paginate(result, opts.Skip, opts.Limit)

	if len(opts.Fields) > 0 || len(opts.Exclude) > 0 {
		for i := range result {
			result[i] = Project(result[i], opts)
		}
	}

	return result, nil
}

// Paginate applies skip and limit; a zero limit means no limit
func Paginate(nodes []types.Node, skip, limit int) []types.Node {
	if skip > 0 {
		if skip >= len(nodes) {
			return []types.Node{}
		}
		nodes = nodes[skip:]
	}
	if limit > 0 && limit < len(nodes) {
		nodes = nodes[:limit]
	}
	return nodes
}

// FieldValue resolves a field name against a node. Canonical names address
// the node's own fields, anything else addresses Data. The boolean reports
// whether the field is present.
func FieldValue(n types.Node, field string) (interface{}, bool) {
	switch field {
	case types.FieldID, "_id":
		return n.ID, true
	case types.FieldParent:
		if n.Parent == nil {
			return nil, true
		}
		return *n.Parent, true
	case types.FieldPath:
		return n.Path, true
	case types.FieldPosition:
		if n.Position == nil {
			return nil, false
		}
		return *n.Position, true
	case types.FieldCreatedAt:
		if n.CreatedAt.IsZero() {
			return nil, false
		}
		return n.CreatedAt, true
	case types.FieldUpdatedAt:
		if n.UpdatedAt.IsZero() {
			return nil, false
		}
		return n.UpdatedAt, true
	default:
		v, ok := n.Data[field]
		return v, ok
	}
}

// Project keeps the fields listed in opts.Fields, or blanks the ones in
// opts.Exclude. The id is always kept.
func Project(n types.Node, opts types.FindOptions) types.Node {
	if len(opts.Fields) > 0 {
		keep := make(map[string]bool, len(opts.Fields))
		for _, f := range opts.Fields {
			keep[f] = true
		}
		out := types.Node{ID: n.ID, Data: make(map[string]interface{})}
		if keep[types.FieldParent] {
			out.Parent = types.CloneString(n.Parent)
		}
		if keep[types.FieldPath] {
			out.Path = n.Path
		}
		if keep[types.FieldPosition] && n.Position != nil {
			out.Position = types.IntPtr(*n.Position)
		}
		if keep[types.FieldCreatedAt] {
			out.CreatedAt = n.CreatedAt
		}
		if keep[types.FieldUpdatedAt] {
			out.UpdatedAt = n.UpdatedAt
		}
		for k, v := range n.Data {
			if keep[k] {
				out.Data[k] = v
			}
		}
		if !n.IsNew() {
			out.MarkPersisted()
		}
		return out
	}

	out := n.Clone()
	for _, f := range opts.Exclude {
		switch f {
		case types.FieldID, "_id":
		case types.FieldParent:
			out.Parent = nil
		case types.FieldPath:
			out.Path = ""
		case types.FieldPosition:
			out.Position = nil
		case types.FieldCreatedAt:
			out.CreatedAt = time.Time{}
		case types.FieldUpdatedAt:
			out.UpdatedAt = time.Time{}
		default:
			delete(out.Data, f)
		}
	}
	return out
}

// ApplyUpdate modifies n in place
func ApplyUpdate(n *types.Node, u types.Update) error {
	for field, value := range u.Set {
		if err := setField(n, field, value); err != nil {
			return err
		}
	}
	for _, field := range u.Unset {
		if err := setField(n, field, nil); err != nil {
			return err
		}
	}
	for field, delta := range u.Inc {
		cur, _ := FieldValue(*n, field)
		base := 0
		if cur != nil {
			i, ok := ToInt(cur)
			if !ok {
				return fmt.Errorf("cannot increment non-numeric field %q (value %v)", field, cur)
			}
			base = i
		}
		if err := setField(n, field, base+delta); err != nil {
			return err
		}
	}
	return nil
}

func setField(n *types.Node, field string, value interface{}) error {
	switch field {
	case types.FieldID, "_id":
		return fmt.Errorf("field %q is immutable", field)
	case types.FieldParent:
		switch v := value.(type) {
		case nil:
			n.Parent = nil
		case string:
			n.Parent = types.StringPtr(v)
		case *string:
			n.Parent = types.CloneString(v)
		default:
			return fmt.Errorf("parent must be a string, got %T", value)
		}
	case types.FieldPath:
		s, ok := value.(string)
		if !ok && value != nil {
			return fmt.Errorf("path must be a string, got %T", value)
		}
		n.Path = s
	case types.FieldPosition:
		if value == nil {
			n.Position = nil
			return nil
		}
		i, ok := ToInt(value)
		if !ok {
			return fmt.Errorf("position must be an integer, got %T", value)
		}
		n.Position = types.IntPtr(i)
	case types.FieldCreatedAt, types.FieldUpdatedAt:
		t, ok := toTime(value)
		if !ok && value != nil {
			return fmt.Errorf("%s must be a time, got %T", field, value)
		}
		if field == types.FieldCreatedAt {
			n.CreatedAt = t
		} else {
			n.UpdatedAt = t
		}
	default:
		if n.Data == nil {
			n.Data = make(map[string]interface{})
		}
		if value == nil {
			delete(n.Data, field)
		} else {
			n.Data[field] = value
		}
	}
	return nil
}
