// Package mongostore implements store.Collection on a MongoDB collection
// through the official v2 driver. Canonical node fields are top-level
// document fields; caller data lives in the "data" sub-document.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arthur-debert/nanotree/internal/ctxlog"
	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

// Defaults used when the database or collection name is not configured
const (
	DefaultDatabase   = "nanotree"
	DefaultCollection = "nodes"
)

// Config holds the connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Collection is a store.Collection backed by a MongoDB collection
type Collection struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
	owned  bool

	closeOnce sync.Once
	closeErr  error
}

var _ store.Collection = (*Collection)(nil)

// Connect dials the server, verifies it with a ping and ensures the parent
// and path indexes exist.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Collection, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentMap: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	c := New(client, cfg, logger)
	c.owned = true
	if err := c.EnsureIndexes(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an existing client. Close does not disconnect a client the
// collection did not create.
func New(client *mongo.Client, cfg Config, logger *slog.Logger) *Collection {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger,
	}
}

// EnsureIndexes creates the indexes the tree queries rely on
func (c *Collection) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: types.FieldParent, Value: 1}, {Key: types.FieldPosition, Value: 1}}},
		{Keys: bson.D{{Key: types.FieldPath, Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Drop removes the underlying collection
func (c *Collection) Drop(ctx context.Context) error {
	return c.coll.Drop(ctx)
}

// FindOne implements store.Collection.FindOne
func (c *Collection) FindOne(ctx context.Context, filter types.Filter) (*types.Node, error) {
	f, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}
	c.trace(ctx, "findOne", f)

	var n types.Node
	if err := c.coll.FindOne(ctx, f).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find node: %w", err)
	}
	normalize(&n)
	return &n, nil
}

// Find implements store.Collection.Find. The driver cursor is streamed.
func (c *Collection) Find(ctx context.Context, filter types.Filter, opts types.FindOptions) (store.Cursor, error) {
	f, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		sort, err := translateSort(opts.Sort)
		if err != nil {
			return nil, err
		}
		findOpts.SetSort(sort)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	proj, err := translateProjection(opts)
	if err != nil {
		return nil, err
	}
	if proj != nil {
		findOpts.SetProjection(proj)
	}
	c.trace(ctx, "find", f)

	cur, err := c.coll.Find(ctx, f, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes: %w", err)
	}
	return &cursor{cur: cur}, nil
}

// Count implements store.Collection.Count
func (c *Collection) Count(ctx context.Context, filter types.Filter) (int64, error) {
	f, err := translateFilter(filter)
	if err != nil {
		return 0, err
	}
	c.trace(ctx, "count", f)

	n, err := c.coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return n, nil
}

// Save implements store.Collection.Save
func (c *Collection) Save(ctx context.Context, node *types.Node) error {
	if node == nil || node.ID == "" {
		return errors.New("cannot save a node without an id")
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": node.ID}, node, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save node %s: %w", node.ID, err)
	}
	return nil
}

// UpdateOne implements store.Collection.UpdateOne
func (c *Collection) UpdateOne(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	return c.update(ctx, filter, update, false)
}

// UpdateMany implements store.Collection.UpdateMany
func (c *Collection) UpdateMany(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	return c.update(ctx, filter, update, true)
}

func (c *Collection) update(ctx context.Context, filter types.Filter, update types.Update, many bool) (int64, error) {
	if update.IsEmpty() {
		return 0, nil
	}
	f, err := translateFilter(filter)
	if err != nil {
		return 0, err
	}
	u, err := translateUpdate(update)
	if err != nil {
		return 0, err
	}
	c.trace(ctx, "update", f, "update", u, "many", many)

	var res *mongo.UpdateResult
	if many {
		res, err = c.coll.UpdateMany(ctx, f, u)
	} else {
		res, err = c.coll.UpdateOne(ctx, f, u)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update nodes: %w", err)
	}
	return res.MatchedCount, nil
}

// RemoveMany implements store.Collection.RemoveMany
func (c *Collection) RemoveMany(ctx context.Context, filter types.Filter) (int64, error) {
	f, err := translateFilter(filter)
	if err != nil {
		return 0, err
	}
	c.trace(ctx, "delete", f)

	res, err := c.coll.DeleteMany(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("failed to delete nodes: %w", err)
	}
	return res.DeletedCount, nil
}

// Close implements store.Collection.Close. It is safe to call more than once.
func (c *Collection) Close() error {
	c.closeOnce.Do(func() {
		if c.owned {
			c.closeErr = c.client.Disconnect(context.Background())
		}
	})
	return c.closeErr
}

func (c *Collection) trace(ctx context.Context, op string, filter bson.M, args ...interface{}) {
	ctxlog.FromContext(ctx, c.logger).Debug("mongo", append([]interface{}{"op", op, "collection", c.coll.Name(), "filter", filter}, args...)...)
}

// normalize gives decoded nodes the same shape as the other collections
func normalize(n *types.Node) {
	if n.Data == nil {
		n.Data = make(map[string]interface{})
	}
	if !n.CreatedAt.IsZero() {
		n.CreatedAt = n.CreatedAt.UTC()
	}
	if !n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.UpdatedAt.UTC()
	}
	n.MarkPersisted()
}

type cursor struct {
	cur  *mongo.Cursor
	node types.Node
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var n types.Node
	if err := c.cur.Decode(&n); err != nil {
		c.err = fmt.Errorf("failed to decode node: %w", err)
		return false
	}
	normalize(&n)
	c.node = n
	return true
}

func (c *cursor) Node() types.Node { return c.node }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
