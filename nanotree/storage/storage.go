// Package storage defines the on-disk document layout of the JSON
// collection and the lock manager that serializes access to it.
package storage

import (
	"time"

	"github.com/arthur-debert/nanotree/types"
)

// FormatVersion is written to the metadata of every saved file
const FormatVersion = "1"

// StoreData represents the complete data structure stored in a JSON file
type StoreData struct {
	Nodes    []types.Node `json:"nodes"`
	Metadata Metadata     `json:"metadata"`
}

// Metadata contains storage metadata
type Metadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStoreData returns an empty store stamped with now
func NewStoreData(now time.Time) *StoreData {
	return &StoreData{
		Nodes: []types.Node{},
		Metadata: Metadata{
			Version:   FormatVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// IndexOf returns the index of the node with id, or -1
func (d *StoreData) IndexOf(id string) int {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}
