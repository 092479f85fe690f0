package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/arthur-debert/nanotree/nanotree/storage"
	"github.com/arthur-debert/nanotree/types"
)

func newMockCollection(t *testing.T) (*jsonCollection, *MockFileSystem, *MockFileLockFactory) {
	t.Helper()
	fs := NewMockFileSystem()
	locks := NewMockFileLockFactory()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	c, err := newJSONCollection("tree.json",
		WithFileSystem(fs),
		WithFileLockFactory(locks),
		WithTimeFunc(func() time.Time { return fixed }),
	)
	if err != nil {
		t.Fatalf("failed to create collection: %v", err)
	}
	return c, fs, locks
}

func TestJSONCollectionWithMockFS(t *testing.T) {
	ctx := context.Background()

	t.Run("file is written on first save", func(t *testing.T) {
		c, fs, locks := newMockCollection(t)
		defer func() { _ = c.Close() }()

		if fs.Exists("tree.json") {
			t.Fatal("expected no file before the first write")
		}

		n := types.Node{ID: "a", Path: "a"}
		if err := c.Save(ctx, &n); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		content, ok := fs.Content("tree.json")
		if !ok {
			t.Fatal("expected file after save")
		}
		var data storage.StoreData
		if err := json.Unmarshal(content, &data); err != nil {
			t.Fatalf("failed to parse file: %v", err)
		}
		if len(data.Nodes) != 1 || data.Nodes[0].ID != "a" {
			t.Errorf("unexpected file content: %+v", data.Nodes)
		}
		if data.Metadata.Version != storage.FormatVersion {
			t.Errorf("expected version %s, got %s", storage.FormatVersion, data.Metadata.Version)
		}
		if fs.Exists("tree.json.tmp") {
			t.Error("temp file left behind")
		}
		if locks.Lock("tree.json.lock").Held() {
			t.Error("file lock not released")
		}
	})

	t.Run("no-op writes do not touch the file", func(t *testing.T) {
		c, fs, _ := newMockCollection(t)
		defer func() { _ = c.Close() }()

		if _, err := c.RemoveMany(ctx, types.ByID("missing")); err != nil {
			t.Fatal(err)
		}
		if _, err := c.UpdateMany(ctx, nil, types.Update{}); err != nil {
			t.Fatal(err)
		}
		if fs.Writes != 0 {
			t.Errorf("expected no writes, got %d", fs.Writes)
		}
	})

	t.Run("writes pick up changes made by another process", func(t *testing.T) {
		c, fs, _ := newMockCollection(t)
		defer func() { _ = c.Close() }()

		external := storage.NewStoreData(time.Now())
		external.Nodes = append(external.Nodes, types.Node{ID: "ext", Path: "ext"})
		raw, _ := json.Marshal(external)
		fs.SetContent("tree.json", raw)

		n := types.Node{ID: "mine", Path: "mine"}
		if err := c.Save(ctx, &n); err != nil {
			t.Fatal(err)
		}
		count, err := c.Count(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("expected both nodes after reload, got %d", count)
		}
	})

	t.Run("write errors are reported", func(t *testing.T) {
		c, fs, _ := newMockCollection(t)
		defer func() { _ = c.Close() }()

		fs.WriteFileError = errors.New("disk full")
		n := types.Node{ID: "a", Path: "a"}
		if err := c.Save(ctx, &n); err == nil || !errors.Is(err, fs.WriteFileError) {
			t.Errorf("expected wrapped disk error, got %v", err)
		}
	})

	t.Run("lock errors are reported", func(t *testing.T) {
		c, _, locks := newMockCollection(t)
		defer func() { _ = c.Close() }()

		locks.Lock("tree.json.lock").LockErr = errors.New("permission denied")
		n := types.Node{ID: "a", Path: "a"}
		if err := c.Save(ctx, &n); err == nil {
			t.Error("expected lock error")
		}
	})

	t.Run("corrupt file fails to open", func(t *testing.T) {
		fs := NewMockFileSystem()
		fs.SetContent("tree.json", []byte("{not json"))
		_, err := newJSONCollection("tree.json", WithFileSystem(fs), WithFileLockFactory(NewMockFileLockFactory()))
		if err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("failed update leaves data untouched", func(t *testing.T) {
		c, _, _ := newMockCollection(t)
		defer func() { _ = c.Close() }()

		for _, n := range []types.Node{
			{ID: "a", Path: "a", Data: map[string]interface{}{"n": 1}},
			{ID: "b", Path: "b", Data: map[string]interface{}{"n": "text"}},
		} {
			n := n
			if err := c.Save(ctx, &n); err != nil {
				t.Fatal(err)
			}
		}

		if _, err := c.UpdateMany(ctx, nil, types.IncField("n", 1)); err == nil {
			t.Fatal("expected error incrementing a string")
		}
		got, _ := c.FindOne(ctx, types.ByID("a"))
		if v, _ := got.Data["n"].(float64); v != 1 {
			t.Errorf("expected a.n to stay 1, got %v", got.Data["n"])
		}
	})

	t.Run("closed collection rejects operations", func(t *testing.T) {
		c, _, _ := newMockCollection(t)
		_ = c.Close()

		if _, err := c.Count(ctx, nil); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		n := types.Node{ID: "a", Path: "a"}
		if err := c.Save(ctx, &n); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestSliceCursor(t *testing.T) {
	ctx := context.Background()
	cur := NewSliceCursor([]types.Node{{ID: "a"}, {ID: "b"}})

	var seen []string
	for cur.Next(ctx) {
		n := cur.Node()
		if n.IsNew() {
			t.Errorf("cursor node %s not marked persisted", n.ID)
		}
		seen = append(seen, n.ID)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("unexpected iteration: %v", seen)
	}
	if cur.Err() != nil {
		t.Errorf("unexpected error: %v", cur.Err())
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	cur = NewSliceCursor([]types.Node{{ID: "a"}})
	if cur.Next(canceled) {
		t.Error("expected Next to stop on a canceled context")
	}
	if !errors.Is(cur.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", cur.Err())
	}
}

func TestNewIDGenerator(t *testing.T) {
	for _, idType := range []types.IDType{types.IDTypeUUID, types.IDTypeObjectID} {
		gen, err := NewIDGenerator(idType)
		if err != nil {
			t.Fatalf("%s: %v", idType, err)
		}
		a, b := gen(), gen()
		if a == "" || a == b {
			t.Errorf("%s: expected distinct ids, got %q and %q", idType, a, b)
		}
	}
	if _, err := NewIDGenerator("serial"); err == nil {
		t.Error("expected error for unknown id type")
	}
}
