package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arthur-debert/nanotree/internal/ctxlog"
	"github.com/arthur-debert/nanotree/nanotree/query"
	"github.com/arthur-debert/nanotree/nanotree/storage"
	"github.com/arthur-debert/nanotree/types"
)

const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// jsonCollection keeps every node in memory. When filePath is set, the data
// is persisted as a single JSON document; writes reload the file under a
// cross-process lock before applying their change.
type jsonCollection struct {
	filePath    string
	queryProc   *query.Processor
	lockManager *storage.LockManager

	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock

	data     *storage.StoreData
	timeFunc func() time.Time
	logger   *slog.Logger
	closed   bool
}

func newJSONCollection(filePath string, opts ...Option) (*jsonCollection, error) {
	c := &jsonCollection{
		filePath:    filePath,
		queryProc:   query.NewProcessor(),
		lockManager: storage.NewLockManager(),
		timeFunc:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.fs == nil {
		c.fs = OSFileSystem{}
	}
	if c.lockFactory == nil {
		c.lockFactory = FlockFactory{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.data = storage.NewStoreData(c.timeFunc())

	if c.filePath == "" {
		return c, nil
	}

	c.fileLock = c.lockFactory.New(c.filePath + ".lock")
	if err := c.withFileLock(context.Background(), c.load); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return c, nil
}

// acquireLock attempts to acquire the file lock with retry logic
func (c *jsonCollection) acquireLock(ctx context.Context) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := c.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

func (c *jsonCollection) withFileLock(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	if err := c.acquireLock(ctx); err != nil {
		return err
	}
	defer func() { _ = c.fileLock.Unlock() }()

	return fn()
}

// load reads the JSON file into memory. Caller must hold the file lock.
func (c *jsonCollection) load() error {
	if _, err := c.fs.Stat(c.filePath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	raw, err := c.fs.ReadFile(c.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var data storage.StoreData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Nodes == nil {
		data.Nodes = []types.Node{}
	}

	c.data = &data
	c.logger.Debug("loaded collection", "file", c.filePath, "nodes", len(data.Nodes))
	return nil
}

// save writes the in-memory data atomically. Caller must hold the file lock.
func (c *jsonCollection) save() error {
	c.data.Metadata.UpdatedAt = c.timeFunc()

	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpFile := c.filePath + ".tmp"
	if err := c.fs.WriteFile(tmpFile, raw, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := c.fs.Rename(tmpFile, c.filePath); err != nil {
		_ = c.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func (c *jsonCollection) read(fn func() ([]types.Node, error)) ([]types.Node, error) {
	return storage.ExecuteWithResult(c.lockManager, storage.ReadOperation, func() ([]types.Node, error) {
		if c.closed {
			return nil, ErrClosed
		}
		return fn()
	})
}

// write runs mutate against the current data and persists it when mutate
// reports a change. mutate must leave the data untouched when it fails.
func (c *jsonCollection) write(ctx context.Context, mutate func(d *storage.StoreData) (int64, error)) (int64, error) {
	return storage.ExecuteWithResult(c.lockManager, storage.WriteOperation, func() (int64, error) {
		if c.closed {
			return 0, ErrClosed
		}
		if c.filePath == "" {
			return mutate(c.data)
		}

		var n int64
		err := c.withFileLock(ctx, func() error {
			if err := c.load(); err != nil {
				return err
			}
			var err error
			if n, err = mutate(c.data); err != nil || n == 0 {
				return err
			}
			return c.save()
		})
		if err != nil {
			return 0, err
		}
		ctxlog.FromContext(ctx, c.logger).Debug("saved collection", "file", c.filePath, "changed", n)
		return n, nil
	})
}

// FindOne implements Collection.FindOne
func (c *jsonCollection) FindOne(ctx context.Context, filter types.Filter) (*types.Node, error) {
	nodes, err := c.read(func() ([]types.Node, error) {
		return c.queryProc.Execute(c.data.Nodes, filter, types.FindOptions{Limit: 1})
	})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	n := nodes[0]
	n.MarkPersisted()
	return &n, nil
}

// Find implements Collection.Find. The result is snapshotted so that no lock
// is held while the caller iterates and writes.
func (c *jsonCollection) Find(ctx context.Context, filter types.Filter, opts types.FindOptions) (Cursor, error) {
	nodes, err := c.read(func() ([]types.Node, error) {
		return c.queryProc.Execute(c.data.Nodes, filter, opts)
	})
	if err != nil {
		return nil, err
	}
	return NewSliceCursor(nodes), nil
}

// Count implements Collection.Count
func (c *jsonCollection) Count(ctx context.Context, filter types.Filter) (int64, error) {
	nodes, err := c.read(func() ([]types.Node, error) {
		return c.queryProc.Execute(c.data.Nodes, filter, types.FindOptions{Fields: []string{types.FieldID}})
	})
	return int64(len(nodes)), err
}

// Save implements Collection.Save
func (c *jsonCollection) Save(ctx context.Context, node *types.Node) error {
	if node == nil || node.ID == "" {
		return fmt.Errorf("cannot save a node without an id")
	}
	stored := node.Clone()
	_, err := c.write(ctx, func(d *storage.StoreData) (int64, error) {
		if i := d.IndexOf(stored.ID); i >= 0 {
			d.Nodes[i] = stored
		} else {
			d.Nodes = append(d.Nodes, stored)
		}
		return 1, nil
	})
	return err
}

// UpdateOne implements Collection.UpdateOne
func (c *jsonCollection) UpdateOne(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	return c.update(ctx, filter, update, 1)
}

// UpdateMany implements Collection.UpdateMany
func (c *jsonCollection) UpdateMany(ctx context.Context, filter types.Filter, update types.Update) (int64, error) {
	return c.update(ctx, filter, update, 0)
}

func (c *jsonCollection) update(ctx context.Context, filter types.Filter, update types.Update, limit int) (int64, error) {
	if update.IsEmpty() {
		return 0, nil
	}
	return c.write(ctx, func(d *storage.StoreData) (int64, error) {
		changed := make(map[int]types.Node)
		for i := range d.Nodes {
			ok, err := c.queryProc.Matches(d.Nodes[i], filter)
			if err != nil {
				return 0, err
			}
			if !ok {
				continue
			}
			n := d.Nodes[i].Clone()
			if err := query.ApplyUpdate(&n, update); err != nil {
				return 0, fmt.Errorf("node %s: %w", n.ID, err)
			}
			changed[i] = n
			if limit > 0 && len(changed) >= limit {
				break
			}
		}
		for i, n := range changed {
			d.Nodes[i] = n
		}
		return int64(len(changed)), nil
	})
}

// RemoveMany implements Collection.RemoveMany
func (c *jsonCollection) RemoveMany(ctx context.Context, filter types.Filter) (int64, error) {
	return c.write(ctx, func(d *storage.StoreData) (int64, error) {
		kept := make([]types.Node, 0, len(d.Nodes))
		for _, n := range d.Nodes {
			ok, err := c.queryProc.Matches(n, filter)
			if err != nil {
				return 0, err
			}
			if !ok {
				kept = append(kept, n)
			}
		}
		removed := int64(len(d.Nodes) - len(kept))
		if removed > 0 {
			d.Nodes = kept
		}
		return removed, nil
	})
}

// Close implements Collection.Close
func (c *jsonCollection) Close() error {
	return c.lockManager.Execute(storage.WriteOperation, func() error {
		c.closed = true
		if c.filePath != "" {
			_ = c.fs.Remove(c.filePath + ".lock")
		}
		return nil
	})
}
