package query

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/arthur-debert/nanotree/types"
)

type regexpEntry struct {
	re  *regexp.Regexp
	err error
}

// Matches checks if a node matches all conditions of the filter. An empty
// filter matches every node.
func (p *Processor) Matches(n types.Node, filter types.Filter) (bool, error) {
	for _, cond := range filter {
		ok, err := p.matchCondition(n, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (p *Processor) matchCondition(n types.Node, cond types.Condition) (bool, error) {
	value, present := FieldValue(n, cond.Field)

	switch cond.Op {
	case types.OpEq:
		return valuesEqual(value, cond.Value), nil
	case types.OpNe:
		return !valuesEqual(value, cond.Value), nil
	case types.OpIn:
		candidates, err := toSlice(cond.Value)
		if err != nil {
			return false, fmt.Errorf("%s: %w", cond, err)
		}
		for _, c := range candidates {
			if valuesEqual(value, c) {
				return true, nil
			}
		}
		return false, nil
	case types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		if value == nil || cond.Value == nil {
			return false, nil
		}
		cmp, ok := compareValues(value, cond.Value)
		if !ok {
			return false, nil
		}
		switch cond.Op {
		case types.OpGt:
			return cmp > 0, nil
		case types.OpGte:
			return cmp >= 0, nil
		case types.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case types.OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return false, fmt.Errorf("%s: regex pattern must be a string", cond)
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		re, err := p.compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%s: %w", cond, err)
		}
		return re.MatchString(s), nil
	case types.OpExists:
		want, ok := cond.Value.(bool)
		if !ok {
			return false, fmt.Errorf("%s: exists expects a boolean", cond)
		}
		return present == want, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", cond.Op)
	}
}

func (p *Processor) compile(pattern string) (*regexp.Regexp, error) {
	p.mu.RLock()
	entry, ok := p.regexes[pattern]
	p.mu.RUnlock()
	if ok {
		return entry.re, entry.err
	}

	re, err := regexp.Compile(pattern)
	p.mu.Lock()
	p.regexes[pattern] = &regexpEntry{re: re, err: err}
	p.mu.Unlock()
	return re, err
}

// valuesEqual compares a document value with a filter value. A nil filter
// value matches null and missing fields.
func valuesEqual(docValue, filterValue interface{}) bool {
	if filterValue == nil {
		return docValue == nil
	}
	if s, ok := filterValue.(*string); ok {
		if s == nil {
			return docValue == nil
		}
		filterValue = *s
	}
	if docValue == nil {
		return false
	}
	if cmp, ok := compareValues(docValue, filterValue); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(docValue, filterValue)
}

func toSlice(v interface{}) ([]interface{}, error) {
	switch vs := v.(type) {
	case []interface{}:
		return vs, nil
	case []string:
		out := make([]interface{}, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]interface{}, len(vs))
		for i, n := range vs {
			out[i] = n
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("$in expects a list, got %T", v)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
