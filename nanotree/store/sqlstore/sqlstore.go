// Package sqlstore implements store.Collection on SQLite through the pure Go
// modernc.org/sqlite driver. Canonical node fields are columns; caller data
// is a JSON document addressed with json_extract.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"

	"github.com/arthur-debert/nanotree/internal/ctxlog"
	"github.com/arthur-debert/nanotree/internal/validation"
	"github.com/arthur-debert/nanotree/nanotree/query"
	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

// DefaultTable is the table used when none is configured
const DefaultTable = "nodes"

const regexpFunc = "nanotree_regexp"

// timeLayout has a fixed width so that stored timestamps order lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	registerOnce sync.Once
	regexCache   sync.Map
)

// registerFunctions installs the regexp function used by $regex filters. It
// must run before the first connection is opened.
func registerFunctions() {
	registerOnce.Do(func() {
		sqlite.MustRegisterDeterministicScalarFunction(regexpFunc, 2, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			pattern, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("%s: pattern must be text", regexpFunc)
			}
			var s string
			switch v := args[1].(type) {
			case string:
				s = v
			case []byte:
				s = string(v)
			default:
				return int64(0), nil
			}
			re, err := compile(pattern)
			if err != nil {
				return nil, err
			}
			if re.MatchString(s) {
				return int64(1), nil
			}
			return int64(0), nil
		})
	})
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// Option configures a Collection
type Option func(*Collection)

// WithTable sets the table name
func WithTable(table string) Option {
	return func(c *Collection) {
		c.table = table
	}
}

// WithLogger sets the logger used for statement tracing
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collection) {
		c.logger = logger
	}
}

// Collection is a store.Collection backed by a SQLite table
type Collection struct {
	db     *sql.DB
	table  string
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

var _ store.Collection = (*Collection)(nil)

// Open opens (creating if needed) the SQLite database at dsn and ensures the
// table and its indexes exist. Use ":memory:" for a private in-memory
// database.
func Open(ctx context.Context, dsn string, opts ...Option) (*Collection, error) {
	registerFunctions()

	c := &Collection{
		table:  DefaultTable,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validation.ValidateFieldName(c.table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	c.db = db

	if err := c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Collection) migrate(ctx context.Context) error {
	stmts := []string{
		"PRAGMA busy_timeout=5000",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	parent TEXT,
	path TEXT NOT NULL DEFAULT '',
	position INTEGER,
	data TEXT NOT NULL DEFAULT '{}',
	created_at TEXT,
	updated_at TEXT
)`, c.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_parent_idx ON %s(parent, position)", c.table, c.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_path_idx ON %s(path)", c.table, c.table),
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", c.table, err)
		}
	}
	return nil
}

// DB exposes the underlying database handle
func (c *Collection) DB() *sql.DB {
	return c.db
}

var columns = []string{"id", "parent", "path", "position", "data", "created_at", "updated_at"}

// FindOne implements store.Collection.FindOne
func (c *Collection) FindOne(ctx context.Context, filter types.Filter) (*types.Node, error) {
	nodes, err := c.find(ctx, filter, types.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// Find implements store.Collection.Find. Rows are read eagerly so that the
// single connection is free for the writes a caller issues while iterating.
func (c *Collection) Find(ctx context.Context, filter types.Filter, opts types.FindOptions) (store.Cursor, error) {
	nodes, err := c.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return store.NewSliceCursor(nodes), nil
}

func (c *Collection) find(ctx context.Context, filter types.Filter, opts types.FindOptions) ([]types.Node, error) {
	where, err := c.where(filter)
	if err != nil {
		return nil, err
	}

	sel := c.sb.Select(columns...).From(c.table).Where(where)
	for _, clause := range opts.Sort {
		expr, err := column(clause.Column)
		if err != nil {
			return nil, err
		}
		if clause.Descending {
			expr += " DESC"
		} else {
			expr += " ASC"
		}
		sel = sel.OrderBy(expr)
	}
	if len(opts.Sort) == 0 {
		sel = sel.OrderBy("rowid")
	}
	if opts.Limit > 0 {
		sel = sel.Limit(uint64(opts.Limit))
	} else if opts.Skip > 0 {
		// sqlite requires a LIMIT before OFFSET
		sel = sel.Limit(uint64(1<<63 - 1))
	}
	if opts.Skip > 0 {
		sel = sel.Offset(uint64(opts.Skip))
	}

	stmt, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	c.trace(ctx, stmt, args)

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		n.MarkPersisted()
		if len(opts.Fields) > 0 || len(opts.Exclude) > 0 {
			n = query.Project(n, opts)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return nodes, nil
}

// Count implements store.Collection.Count
func (c *Collection) Count(ctx context.Context, filter types.Filter) (int64, error) {
	where, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	stmt, args, err := c.sb.Select("COUNT(*)").From(c.table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	c.trace(ctx, stmt, args)

	var n int64
	if err := c.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.table, err)
	}
	return n, nil
}

// Save implements store.Collection.Save
func (c *Collection) Save(ctx context.Context, node *types.Node) error {
	if node == nil || node.ID == "" {
		return fmt.Errorf("cannot save a node without an id")
	}
	data, err := encodeData(node.Data)
	if err != nil {
		return err
	}

	var position interface{}
	if node.Position != nil {
		position = *node.Position
	}
	var parent interface{}
	if node.Parent != nil {
		parent = *node.Parent
	}

	stmt, args, err := c.sb.Insert(c.table).
		Columns(columns...).
		Values(node.ID, parent, node.Path, position, data, formatTime(node.CreatedAt), formatTime(node.UpdatedAt)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
	parent = excluded.parent,
	path = excluded.path,
	position = excluded.position,
	data = excluded.data,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	c.trace(ctx, stmt, args)

	if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to save node %s: %w", node.ID, err)
	}
	return nil
}

// UpdateOne implements store.Collection.UpdateOne
func (c *Collection) UpdateOne(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	where, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	sub, subArgs, err := c.sb.Select("id").From(c.table).Where(where).OrderBy("rowid").Limit(1).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	return c.update(ctx, sq.Expr("id IN ("+sub+")", subArgs...), update)
}

// UpdateMany implements store.Collection.UpdateMany
func (c *Collection) UpdateMany(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	where, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	return c.update(ctx, where, update)
}

func (c *Collection) update(ctx context.Context, where sq.Sqlizer, update types.Update) (int64, error) {
	if update.IsEmpty() {
		return 0, nil
	}
	upd, err := c.buildUpdate(update)
	if err != nil {
		return 0, err
	}
	stmt, args, err := upd.Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update: %w", err)
	}
	c.trace(ctx, stmt, args)

	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", c.table, err)
	}
	return res.RowsAffected()
}

// RemoveMany implements store.Collection.RemoveMany
func (c *Collection) RemoveMany(ctx context.Context, filter types.Filter) (int64, error) {
	where, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	stmt, args, err := c.sb.Delete(c.table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}
	c.trace(ctx, stmt, args)

	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", c.table, err)
	}
	return res.RowsAffected()
}

// Close implements store.Collection.Close
func (c *Collection) Close() error {
	return c.db.Close()
}

func (c *Collection) trace(ctx context.Context, stmt string, args []interface{}) {
	ctxlog.FromContext(ctx, c.logger).Debug("sql", "table", c.table, "stmt", stmt, "args", args)
}

func scanNode(rows *sql.Rows) (types.Node, error) {
	var (
		n                  types.Node
		parent             sql.NullString
		position           sql.NullInt64
		data               string
		createdAt, updated sql.NullString
	)
	if err := rows.Scan(&n.ID, &parent, &n.Path, &position, &data, &createdAt, &updated); err != nil {
		return n, fmt.Errorf("failed to scan row: %w", err)
	}
	if parent.Valid {
		n.Parent = types.StringPtr(parent.String)
	}
	if position.Valid {
		n.Position = types.IntPtr(int(position.Int64))
	}
	n.Data = make(map[string]interface{})
	if data != "" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return n, fmt.Errorf("failed to decode data of node %s: %w", n.ID, err)
		}
	}
	var err error
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return n, err
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return n, err
	}
	return n, nil
}

func encodeData(data map[string]interface{}) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode data: %w", err)
	}
	return string(raw), nil
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s.String, err)
	}
	return t, nil
}
