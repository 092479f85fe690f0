package main

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/arthur-debert/nanotree/types"
)

// parseValue converts a command line value to the most specific type
func parseValue(raw string) interface{} {
	switch raw {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// parseData turns key=value pairs into node data
func parseData(pairs []string) (map[string]interface{}, error) {
	data := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, NewValidationError("parse data", "pair", pair, "Use --set key=value")
		}
		data[key] = parseValue(value)
	}
	return data, nil
}

// filterOperators is checked in order so two-character operators win
var filterOperators = []struct {
	token string
	op    types.Operator
}{
	{"!=", types.OpNe},
	{">=", types.OpGte},
	{"<=", types.OpLte},
	{"~", types.OpRegex},
	{">", types.OpGt},
	{"<", types.OpLt},
	{"=", types.OpEq},
}

// parseFilter turns expressions like "born>1950" into a filter
func parseFilter(exprs []string) (types.Filter, error) {
	var filter types.Filter
	for _, expr := range exprs {
		matched := false
		for _, fo := range filterOperators {
			field, value, ok := strings.Cut(expr, fo.token)
			if !ok || field == "" {
				continue
			}
			if fo.op == types.OpRegex {
				filter = filter.Regex(field, value)
			} else {
				filter = filter.And(field, fo.op, parseValue(value))
			}
			matched = true
			break
		}
		if !matched {
			return nil, NewValidationError("parse filter", "expression", expr,
				"Use field=value, field!=value, field>value, field<=value or field~regex")
		}
	}
	return filter, nil
}

// parseSort turns "field" or "field:desc" into sort clauses
func parseSort(keys []string) ([]types.OrderClause, error) {
	clauses := make([]types.OrderClause, 0, len(keys))
	for _, key := range keys {
		field, dir, _ := strings.Cut(key, ":")
		clause := types.OrderClause{Column: field}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			clause.Descending = true
		default:
			return nil, NewValidationError("parse sort", "direction", dir, "Use field, field:asc or field:desc")
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

// addQueryFlags registers the filter and shaping flags shared by lookups
func addQueryFlags(fs *pflag.FlagSet) {
	fs.StringArrayP("where", "w", nil, "Filter expression (repeatable): field=value, field>value, field~regex")
	fs.StringArrayP("sort", "s", nil, "Sort key (repeatable): field or field:desc")
	fs.StringSlice("fields", nil, "Fields to return")
	fs.Int("limit", 0, "Maximum number of results")
	fs.Int("skip", 0, "Number of results to skip")
}

// queryFromFlags reads the flags registered by addQueryFlags
func queryFromFlags(fs *pflag.FlagSet) (types.Filter, types.FindOptions, error) {
	exprs, _ := fs.GetStringArray("where")
	filter, err := parseFilter(exprs)
	if err != nil {
		return nil, types.FindOptions{}, err
	}

	keys, _ := fs.GetStringArray("sort")
	sorts, err := parseSort(keys)
	if err != nil {
		return nil, types.FindOptions{}, err
	}

	fields, _ := fs.GetStringSlice("fields")
	limit, _ := fs.GetInt("limit")
	skip, _ := fs.GetInt("skip")
	return filter, types.FindOptions{Fields: fields, Sort: sorts, Limit: limit, Skip: skip}, nil
}
