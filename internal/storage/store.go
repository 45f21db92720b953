package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// UpdateFunc receives the current contents of an object (nil, false when
// the object does not exist) and returns the contents to write back.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// ObjectStore is the read/write contract this service needs from its
// blob storage: binary objects (recording audio) and small documents
// (the recording index), addressed by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Update applies fn to the object under key as a single
	// read-modify-write. Implementations must not lose concurrent
	// updates to the same key.
	Update(ctx context.Context, key string, contentType string, fn UpdateFunc) error
}
