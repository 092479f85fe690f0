package store

import (
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arthur-debert/nanotree/types"
)

// IDGenerator returns a fresh identifier for a new node
type IDGenerator func() string

// NewIDGenerator returns the generator for an id type. Neither generator
// ever produces a separator character other than '-'.
func NewIDGenerator(idType types.IDType) (IDGenerator, error) {
	switch idType {
	case types.IDTypeUUID, "":
		return uuid.NewString, nil
	case types.IDTypeObjectID:
		return func() string { return bson.NewObjectID().Hex() }, nil
	default:
		return nil, fmt.Errorf("unknown id type %q", idType)
	}
}
