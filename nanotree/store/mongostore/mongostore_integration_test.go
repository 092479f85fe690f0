package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nanotree/nanotree/store"
	"github.com/arthur-debert/nanotree/nanotree/store/mongostore"
	"github.com/arthur-debert/nanotree/nanotree/store/storetest"
)

// TestMongoConformance runs against a live server when NANOTREE_MONGO_URI is
// set, e.g. mongodb://localhost:27017
func TestMongoConformance(t *testing.T) {
	uri := os.Getenv("NANOTREE_MONGO_URI")
	if uri == "" {
		t.Skip("NANOTREE_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Collection {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		c, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        uri,
			Database:   "nanotree_test",
			Collection: fmt.Sprintf("nodes_%d", time.Now().UnixNano()),
		}, nil)
		require.NoError(t, err)
		return droppingCollection{c}
	})
}

// droppingCollection removes its test collection on Close
type droppingCollection struct {
	*mongostore.Collection
}

func (d droppingCollection) Close() error {
	_ = d.Drop(context.Background())
	return d.Collection.Close()
}
