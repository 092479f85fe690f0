package mongostore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arthur-debert/nanotree/internal/validation"
	"github.com/arthur-debert/nanotree/types"
)

// fieldName maps a node field to its document field
func fieldName(field string) (string, error) {
	switch field {
	case types.FieldID, "_id":
		return "_id", nil
	case types.FieldParent, types.FieldPath, types.FieldPosition, types.FieldCreatedAt, types.FieldUpdatedAt:
		return field, nil
	}
	if err := validation.ValidateFieldName(field); err != nil {
		return "", err
	}
	return "data." + field, nil
}

// translateFilter converts a filter into a query document. Conditions on the
// same field are combined into one operator document.
func translateFilter(filter types.Filter) (bson.M, error) {
	out := bson.M{}
	for _, cond := range filter {
		name, err := fieldName(cond.Field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cond, err)
		}
		expr, err := operator(cond)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cond, err)
		}
		ops, ok := out[name].(bson.M)
		if !ok {
			ops = bson.M{}
			out[name] = ops
		}
		for op, v := range expr {
			if _, dup := ops[op]; dup {
				// the same operator twice on one field needs $and
				and, _ := out["$and"].(bson.A)
				out["$and"] = append(and, bson.M{name: expr})
				continue
			}
			ops[op] = v
		}
	}
	return out, nil
}

func operator(cond types.Condition) (bson.M, error) {
	switch cond.Op {
	case types.OpEq, types.OpNe, types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		return bson.M{string(cond.Op): value(cond.Value)}, nil
	case types.OpIn:
		values, err := list(cond.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{"$in": values}, nil
	case types.OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return nil, fmt.Errorf("regex pattern must be a string")
		}
		return bson.M{"$regex": bson.Regex{Pattern: pattern}}, nil
	case types.OpExists:
		want, ok := cond.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("exists expects a boolean")
		}
		return bson.M{"$exists": want}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", cond.Op)
	}
}

func value(v interface{}) interface{} {
	if s, ok := v.(*string); ok {
		if s == nil {
			return nil
		}
		return *s
	}
	return v
}

func list(v interface{}) (bson.A, error) {
	switch vs := v.(type) {
	case []interface{}:
		out := make(bson.A, 0, len(vs))
		for _, x := range vs {
			out = append(out, value(x))
		}
		return out, nil
	case []string:
		out := make(bson.A, 0, len(vs))
		for _, s := range vs {
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("$in expects a list, got %T", v)
}

func translateSort(clauses []types.OrderClause) (bson.D, error) {
	sort := make(bson.D, 0, len(clauses))
	for _, c := range clauses {
		name, err := fieldName(c.Column)
		if err != nil {
			return nil, err
		}
		dir := 1
		if c.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: name, Value: dir})
	}
	return sort, nil
}

func translateProjection(opts types.FindOptions) (bson.M, error) {
	switch {
	case len(opts.Fields) > 0:
		proj := bson.M{"_id": 1}
		for _, f := range opts.Fields {
			name, err := fieldName(f)
			if err != nil {
				return nil, err
			}
			proj[name] = 1
		}
		return proj, nil
	case len(opts.Exclude) > 0:
		proj := bson.M{}
		for _, f := range opts.Exclude {
			name, err := fieldName(f)
			if err != nil {
				return nil, err
			}
			if name != "_id" {
				proj[name] = 0
			}
		}
		if len(proj) == 0 {
			return nil, nil
		}
		return proj, nil
	}
	return nil, nil
}

// translateUpdate converts an update into $set/$unset/$inc operators. Setting
// a field other than parent to nil unsets it.
func translateUpdate(u types.Update) (bson.M, error) {
	set := bson.M{}
	unset := bson.M{}
	inc := bson.M{}

	for field, v := range u.Set {
		name, err := fieldName(field)
		if err != nil {
			return nil, err
		}
		if name == "_id" {
			return nil, fmt.Errorf("field %q is immutable", field)
		}
		if v = value(v); v == nil && name != types.FieldParent {
			unset[name] = ""
			continue
		}
		set[name] = v
	}
	for _, field := range u.Unset {
		name, err := fieldName(field)
		if err != nil {
			return nil, err
		}
		switch name {
		case "_id":
			return nil, fmt.Errorf("field %q is immutable", field)
		case types.FieldParent:
			set[name] = nil
		default:
			unset[name] = ""
		}
	}
	for field, delta := range u.Inc {
		name, err := fieldName(field)
		if err != nil {
			return nil, err
		}
		if name == "_id" || name == types.FieldPath || name == types.FieldParent {
			return nil, fmt.Errorf("cannot increment field %q", field)
		}
		inc[name] = delta
	}

	out := bson.M{}
	if len(set) > 0 {
		out["$set"] = set
	}
	if len(unset) > 0 {
		out["$unset"] = unset
	}
	if len(inc) > 0 {
		out["$inc"] = inc
	}
	return out, nil
}
