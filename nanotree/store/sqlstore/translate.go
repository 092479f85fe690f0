package sqlstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/arthur-debert/nanotree/internal/validation"
	"github.com/arthur-debert/nanotree/types"
)

// column returns the SQL expression addressing a field. Data field names are
// validated before being embedded.
func column(field string) (string, error) {
	switch field {
	case types.FieldID, "_id":
		return "id", nil
	case types.FieldParent, types.FieldPath, types.FieldPosition, types.FieldCreatedAt, types.FieldUpdatedAt:
		return field, nil
	}
	if err := validation.ValidateFieldName(field); err != nil {
		return "", err
	}
	return jsonPath("data", field), nil
}

func jsonPath(doc, field string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", doc, field)
}

func isDataField(field string) bool {
	switch field {
	case types.FieldID, "_id", types.FieldParent, types.FieldPath, types.FieldPosition, types.FieldCreatedAt, types.FieldUpdatedAt:
		return false
	}
	return true
}

// where translates a filter into a conjunction of SQL predicates
func (c *Collection) where(filter types.Filter) (sq.Sqlizer, error) {
	and := sq.And{}
	for _, cond := range filter {
		pred, err := predicate(cond)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cond, err)
		}
		and = append(and, pred)
	}
	if len(and) == 0 {
		return sq.Expr("1=1"), nil
	}
	return and, nil
}

func predicate(cond types.Condition) (sq.Sqlizer, error) {
	col, err := column(cond.Field)
	if err != nil {
		return nil, err
	}

	switch cond.Op {
	case types.OpEq:
		v := sqlValue(cond.Value)
		if v == nil {
			return sq.Expr(col + " IS NULL"), nil
		}
		return sq.Expr(col+" = ?", v), nil
	case types.OpNe:
		v := sqlValue(cond.Value)
		if v == nil {
			return sq.Expr(col + " IS NOT NULL"), nil
		}
		return sq.Expr(col+" IS NOT ?", v), nil
	case types.OpIn:
		values, err := sqlValues(cond.Value)
		if err != nil {
			return nil, err
		}
		return sq.Eq{col: values}, nil
	case types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		v := sqlValue(cond.Value)
		if v == nil {
			// ordering against null never matches
			return sq.Expr("1=0"), nil
		}
		switch cond.Op {
		case types.OpGt:
			return sq.Gt{col: v}, nil
		case types.OpGte:
			return sq.GtOrEq{col: v}, nil
		case types.OpLt:
			return sq.Lt{col: v}, nil
		default:
			return sq.LtOrEq{col: v}, nil
		}
	case types.OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return nil, fmt.Errorf("regex pattern must be a string")
		}
		if _, err := compile(pattern); err != nil {
			return nil, err
		}
		return sq.Expr(regexpFunc+"(?, "+col+")", pattern), nil
	case types.OpExists:
		want, ok := cond.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("exists expects a boolean")
		}
		return existsPredicate(cond.Field, col, want), nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", cond.Op)
	}
}

func existsPredicate(field, col string, want bool) sq.Sqlizer {
	var expr string
	switch field {
	case types.FieldID, "_id", types.FieldParent, types.FieldPath:
		// always present, parent as an explicit null
		if want {
			return sq.Expr("1=1")
		}
		return sq.Expr("1=0")
	case types.FieldPosition, types.FieldCreatedAt, types.FieldUpdatedAt:
		expr = col
	default:
		expr = fmt.Sprintf("json_type(data, '$.%s')", field)
	}
	if want {
		return sq.Expr(expr + " IS NOT NULL")
	}
	return sq.Expr(expr + " IS NULL")
}

// sqlValue converts a filter value into what SQLite compares it against.
// JSON booleans extract as integers.
func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case time.Time:
		return formatTime(t)
	case bool:
		if t {
			return 1
		}
		return 0
	}
	return v
}

func sqlValues(v interface{}) ([]interface{}, error) {
	var in []interface{}
	switch vs := v.(type) {
	case []interface{}:
		in = vs
	case []string:
		for _, s := range vs {
			in = append(in, s)
		}
	default:
		return nil, fmt.Errorf("$in expects a list, got %T", v)
	}
	out := make([]interface{}, 0, len(in))
	for _, x := range in {
		out = append(out, sqlValue(x))
	}
	return out, nil
}

// buildUpdate translates an update into an UPDATE statement without WHERE.
// Data modifications are folded into a single nested json_set/json_remove
// expression.
func (c *Collection) buildUpdate(u types.Update) (sq.UpdateBuilder, error) {
	upd := c.sb.Update(c.table)

	dataExpr := "data"
	var dataArgs []interface{}
	dataChanged := false

	for _, field := range sortedKeys(u.Set) {
		value := u.Set[field]
		switch {
		case field == types.FieldID || field == "_id":
			return upd, fmt.Errorf("field %q is immutable", field)
		case field == types.FieldCreatedAt || field == types.FieldUpdatedAt:
			t, ok := value.(time.Time)
			if !ok && value != nil {
				return upd, fmt.Errorf("%s must be a time, got %T", field, value)
			}
			upd = upd.Set(field, formatTime(t))
		case !isDataField(field):
			upd = upd.Set(field, sqlValue(value))
		default:
			if err := validation.ValidateFieldName(field); err != nil {
				return upd, err
			}
			dataChanged = true
			if value == nil {
				dataExpr = fmt.Sprintf("json_remove(%s, '$.%s')", dataExpr, field)
				continue
			}
			raw, err := json.Marshal(value)
			if err != nil {
				return upd, fmt.Errorf("failed to encode %s: %w", field, err)
			}
			dataExpr = fmt.Sprintf("json_set(%s, '$.%s', json(?))", dataExpr, field)
			dataArgs = append(dataArgs, string(raw))
		}
	}

	for _, field := range u.Unset {
		switch {
		case field == types.FieldID || field == "_id":
			return upd, fmt.Errorf("field %q is immutable", field)
		case field == types.FieldPath:
			upd = upd.Set(field, "")
		case !isDataField(field):
			upd = upd.Set(field, nil)
		default:
			if err := validation.ValidateFieldName(field); err != nil {
				return upd, err
			}
			dataChanged = true
			dataExpr = fmt.Sprintf("json_remove(%s, '$.%s')", dataExpr, field)
		}
	}

	incFields := make([]string, 0, len(u.Inc))
	for field := range u.Inc {
		incFields = append(incFields, field)
	}
	sort.Strings(incFields)
	for _, field := range incFields {
		delta := u.Inc[field]
		switch {
		case field == types.FieldPosition:
			upd = upd.Set(field, sq.Expr("COALESCE(position, 0) + ?", delta))
		case !isDataField(field):
			return upd, fmt.Errorf("cannot increment field %q", field)
		default:
			if err := validation.ValidateFieldName(field); err != nil {
				return upd, err
			}
			dataChanged = true
			dataExpr = fmt.Sprintf("json_set(%s, '$.%s', COALESCE(%s, 0) + ?)", dataExpr, field, jsonPath("data", field))
			dataArgs = append(dataArgs, delta)
		}
	}

	if dataChanged {
		upd = upd.Set("data", sq.Expr(dataExpr, dataArgs...))
	}
	return upd, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
