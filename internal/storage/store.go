package storage

import "context"

// ObjectStore is the minimal object storage contract the staging layer
// depends on. Keys are opaque slash-separated strings.
type ObjectStore interface {
	// Put writes an object; the object must be fully visible at key only
	// after Put returns without error.
	Put(ctx context.Context, key string, data []byte) error
	// List returns every key under the prefix, in no guaranteed order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get reads an object in full.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
