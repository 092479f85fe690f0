// Package store defines the flat document collection a tree is layered on,
// and provides the in-process and JSON file implementations of it.
//
// Database-backed collections live in the sqlstore and mongostore
// sub-packages; every implementation is checked by the storetest suite.
package store

import (
	"context"
	"errors"

	"github.com/arthur-debert/nanotree/types"
)

// ErrClosed is returned by operations on a closed collection
var ErrClosed = errors.New("collection is closed")

// Collection is a flat set of nodes addressed by filters. It knows nothing
// about trees: paths and parent references are plain fields to it.
type Collection interface {
	// FindOne returns the first node matching filter, or nil when none does
	FindOne(ctx context.Context, filter types.Filter) (*types.Node, error)

	// Find streams the nodes matching filter
	Find(ctx context.Context, filter types.Filter, opts types.FindOptions) (Cursor, error)

	// Save inserts the node or replaces the stored node with the same id
	Save(ctx context.Context, node *types.Node) error

	// UpdateOne applies update to the first node matching filter
	UpdateOne(ctx context.Context, filter types.Filter, update types.Update) (int64, error)

	// UpdateMany applies update to every node matching filter
	UpdateMany(ctx context.Context, filter types.Filter, update types.Update) (int64, error)

	// RemoveMany deletes every node matching filter
	RemoveMany(ctx context.Context, filter types.Filter) (int64, error)

	// Count returns the number of nodes matching filter
	Count(ctx context.Context, filter types.Filter) (int64, error)

	// Close releases any resources held by the collection
	Close() error
}

// Cursor iterates over the result of a Find. Nodes handed out by a cursor
// are marked persisted.
type Cursor interface {
	// Next advances to the next node, returning false at the end or on error
	Next(ctx context.Context) bool

	// Node returns the current node
	Node() types.Node

	// Err returns the error that stopped iteration, if any
	Err() error

	// Close releases the cursor
	Close(ctx context.Context) error
}

// All drains a cursor and closes it
func All(ctx context.Context, cur Cursor) ([]types.Node, error) {
	defer func() { _ = cur.Close(ctx) }()

	var nodes []types.Node
	for cur.Next(ctx) {
		nodes = append(nodes, cur.Node())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// FindAll runs a find and drains the cursor
func FindAll(ctx context.Context, c Collection, filter types.Filter, opts types.FindOptions) ([]types.Node, error) {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return All(ctx, cur)
}

// SliceCursor is a Cursor over nodes already held in memory
type SliceCursor struct {
	nodes []types.Node
	idx   int
	err   error
}

// NewSliceCursor returns a cursor over nodes, marking each one persisted
func NewSliceCursor(nodes []types.Node) *SliceCursor {
	for i := range nodes {
		nodes[i].MarkPersisted()
	}
	return &SliceCursor{nodes: nodes, idx: -1}
}

// Next implements Cursor.Next
func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.idx+1 >= len(c.nodes) {
		c.idx = len(c.nodes)
		return false
	}
	c.idx++
	return true
}

// Node implements Cursor.Node
func (c *SliceCursor) Node() types.Node {
	if c.idx < 0 || c.idx >= len(c.nodes) {
		return types.Node{}
	}
	return c.nodes[c.idx]
}

// Err implements Cursor.Err
func (c *SliceCursor) Err() error {
	return c.err
}

// Close implements Cursor.Close
func (c *SliceCursor) Close(context.Context) error {
	c.nodes = nil
	return nil
}
