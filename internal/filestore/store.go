// Package filestore defines the interface sequence data is read through.
//
// A sequence's files live below datasets_dir/<dataset location>/<sequence
// location>. Providers map that key space onto a local directory or an
// object storage bucket. Callers depend only on this package, never on a
// specific provider package.
//
// Usage:
//
//	store, err := local.New(filestore.LocalConfig("/data/datasets"))
//	if err != nil { ... }
//	defer store.Close()
//
//	files, err := store.List(ctx, filestore.ListOptions{Prefix: "demo/seq1"})
package filestore

import "context"

// Store is the single interface all file storage providers must implement.
// It is read-only.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// List returns the entries that match opts, sorted by key.
	List(ctx context.Context, opts ListOptions) ([]ObjectInfo, error)

	// Open opens a streaming handle to the file at key.
	// The caller MUST call Object.Close() after reading.
	Open(ctx context.Context, key string) (Object, error)

	// Stat returns metadata for key without reading its content.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
}
