// Package archive stores ledger snapshots as named objects in a bucket or a local directory.
package archive

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by Get for a missing object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore provides an interface for snapshot storage.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Put stores data under name, replacing any previous object. Readers never observe a partial object.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns the object stored under name.
	Get(ctx context.Context, name string) ([]byte, error)

	// URI describes where name is stored, for logs.
	URI(name string) string
}
