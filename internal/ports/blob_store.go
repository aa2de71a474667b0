package ports

import "context"

// BlobStore is a flat key/blob store. Keys are slash-separated paths; a
// prefix ending in "/" names a namespace.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
	// Prepare creates the storage location for a namespace.
	Prepare(ctx context.Context, prefix string) error
}

// Sealer encrypts records at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}
