// Package nanotree keeps a materialized-path tree over a flat document
// collection.
//
// Every node stores its parent id and a path made of its ancestor ids, so a
// whole subtree is one anchored prefix query away. The collection can be an
// in-process or JSON file store, SQLite, or MongoDB; Open picks one from
// StoreOptions and layers a Tree over it.
package nanotree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/nanotree/store/mongostore"
	"github.com/arthur-debert/nanotree/nanotree/store/sqlstore"
	"github.com/arthur-debert/nanotree/nanotree/tree"
	"github.com/arthur-debert/nanotree/types"
)

// Tree is the tree over a collection
type Tree = tree.Tree

// Node is a stored tree node
type Node = types.Node

// Config configures how a collection is augmented into a tree
type Config = types.Config

// Filter is a conjunction of field conditions
type Filter = types.Filter

// FindOptions shapes query results
type FindOptions = types.FindOptions

// Query, ChildrenQuery and TreeQuery configure the relation lookups
type (
	Query         = tree.Query
	ChildrenQuery = tree.ChildrenQuery
	TreeQuery     = tree.TreeQuery
	TreeNode      = tree.TreeNode
	CascadeResult = tree.CascadeResult
)

// Errors
var (
	ErrNotFound       = tree.ErrNotFound
	ErrConfiguration  = tree.ErrConfiguration
	ErrPartialCascade = tree.ErrPartialCascade
	ErrCycle          = tree.ErrCycle
	ErrInvalidID      = tree.ErrInvalidID
)

// Backend selects the collection implementation
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
	BackendMongo  Backend = "mongo"
)

// StoreOptions selects and locates the collection
type StoreOptions struct {
	Backend Backend

	// Path is the JSON or SQLite file
	Path string

	// MongoURI and MongoDatabase locate the MongoDB collection
	MongoURI      string
	MongoDatabase string

	// Collection names the SQLite table or MongoDB collection
	Collection string

	Logger *slog.Logger
}

// OpenCollection opens the collection described by opts
func OpenCollection(ctx context.Context, opts StoreOptions) (store.Collection, error) {
	switch opts.Backend {
	case BackendMemory:
		return store.NewMemory(store.WithLogger(opts.Logger)), nil

	case BackendJSON, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("json backend requires a file path")
		}
		return store.NewWithOptions(opts.Path, store.WithLogger(opts.Logger))

	case BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		sqlOpts := []sqlstore.Option{sqlstore.WithLogger(opts.Logger)}
		if opts.Collection != "" {
			sqlOpts = append(sqlOpts, sqlstore.WithTable(opts.Collection))
		}
		return sqlstore.Open(ctx, opts.Path, sqlOpts...)

	case BackendMongo:
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongo backend requires a connection URI")
		}
		return mongostore.Connect(ctx, mongostore.Config{
			URI:        opts.MongoURI,
			Database:   opts.MongoDatabase,
			Collection: opts.Collection,
		}, opts.Logger)

	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// Open opens the collection and layers a tree over it. Closing the tree's
// collection releases it.
func Open(ctx context.Context, opts StoreOptions, cfg Config, treeOpts ...tree.Option) (*Tree, error) {
	coll, err := OpenCollection(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s collection: %w", opts.Backend, err)
	}

	if opts.Logger != nil {
		treeOpts = append([]tree.Option{tree.WithLogger(opts.Logger)}, treeOpts...)
	}
	t, err := tree.New(coll, cfg, treeOpts...)
	if err != nil {
		_ = coll.Close()
		return nil, err
	}
	return t, nil
}
