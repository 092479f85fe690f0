// Package tree maintains a materialized-path hierarchy over a flat
// store.Collection.
//
// Every node stores its parent id and a path made of its ancestor ids, root
// first, ending with its own id. Structural changes go through explicit
// methods: Save (and the Create and Reparent shortcuts) computes paths,
// assigns sibling positions and rewrites descendant paths; Delete applies the
// configured delete policy. The collection offers no multi-document
// transactions, so cascades report how far they got in a CascadeResult.
//
// Example:
//
//	coll := store.NewMemory()
//	tr, err := tree.New(coll, types.Config{PathSeparator: ".", TreeOrdering: true})
//	if err != nil {
//		return err
//	}
//	root, _ := tr.Create(ctx, nil, map[string]interface{}{"name": "Adam"})
//	child, _ := tr.Create(ctx, &root.ID, map[string]interface{}{"name": "Bob"})
//	forest, _ := tr.GetChildrenTree(ctx, nil, tree.TreeQuery{})
package tree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arthur-debert/nanotree/internal/ctxlog"
	"github.com/arthur-debert/nanotree/internal/validation"
	"github.com/arthur-debert/nanotree/nanotree/pathcodec"
	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/types"
)

// Tree layers tree behavior over a collection
type Tree struct {
	coll     store.Collection
	cfg      types.Config
	codec    pathcodec.Codec
	newID    store.IDGenerator
	timeFunc func() time.Time
	logger   *slog.Logger
}

// Option configures a Tree
type Option func(*Tree)

// WithLogger sets the logger used when the context carries none
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithTimeFunc sets the clock used for timestamps (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(t *Tree) {
		t.timeFunc = fn
	}
}

// WithIDGenerator overrides the generator selected by Config.IDType
func WithIDGenerator(gen store.IDGenerator) Option {
	return func(t *Tree) {
		t.newID = gen
	}
}

// New returns a tree over coll. Unset configuration fields get their
// defaults; the result is validated.
func New(coll store.Collection, cfg types.Config, opts ...Option) (*Tree, error) {
	if coll == nil {
		return nil, fmt.Errorf("collection is required")
	}
	cfg = cfg.WithDefaults()
	if err := validation.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid tree configuration: %w", err)
	}

	newID, err := store.NewIDGenerator(cfg.IDType)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		coll:     coll,
		cfg:      cfg,
		codec:    pathcodec.New(cfg.PathSeparator),
		newID:    newID,
		timeFunc: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the effective configuration
func (t *Tree) Config() types.Config {
	return t.cfg
}

// Collection returns the underlying collection
func (t *Tree) Collection() store.Collection {
	return t.coll
}

// Codec returns the path codec for the configured separator
func (t *Tree) Codec() pathcodec.Codec {
	return t.codec
}

// Level returns the 1-based depth of a saved node, 0 when it has no path
func (t *Tree) Level(node *types.Node) int {
	if node == nil {
		return 0
	}
	return t.codec.Level(node.Path)
}

// Get loads a node by id
func (t *Tree) Get(ctx context.Context, id string) (*types.Node, error) {
	n, err := t.coll.FindOne(ctx, types.ByID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load node %s: %w", id, err)
	}
	if n == nil {
		return nil, &NotFoundError{ID: id, Role: "node"}
	}
	return n, nil
}

func (t *Tree) log(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx, t.logger)
}

func (t *Tree) now() time.Time {
	return t.timeFunc().UTC()
}

// field maps a caller-facing field name to the canonical one: the custom
// position field name addresses the stored position
func (t *Tree) field(name string) string {
	if t.cfg.PositionField != "" && name == t.cfg.PositionField {
		return types.FieldPosition
	}
	return name
}

func (t *Tree) normalizeFilter(f types.Filter) types.Filter {
	if len(f) == 0 {
		return nil
	}
	out := make(types.Filter, len(f))
	for i, c := range f {
		c.Field = t.field(c.Field)
		out[i] = c
	}
	return out
}

func (t *Tree) normalizeOptions(opts types.FindOptions) types.FindOptions {
	out := opts
	if len(opts.Fields) > 0 {
		out.Fields = make([]string, len(opts.Fields))
		for i, f := range opts.Fields {
			out.Fields[i] = t.field(f)
		}
	}
	if len(opts.Exclude) > 0 {
		out.Exclude = make([]string, len(opts.Exclude))
		for i, f := range opts.Exclude {
			out.Exclude[i] = t.field(f)
		}
	}
	if len(opts.Sort) > 0 {
		out.Sort = make([]types.OrderClause, len(opts.Sort))
		for i, o := range opts.Sort {
			out.Sort[i] = types.OrderClause{Column: t.field(o.Column), Descending: o.Descending}
		}
	}
	return out
}
