// Package blobstore provides storage abstraction for volume snapshots.
//
// Store is the interface for reading and writing snapshot blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and ephemeral volumes
//   - LocalStore: local filesystem with atomic publish via rename
//   - minio.Store: MinIO and S3-compatible object storage
//   - s3.Store: Amazon S3, optionally with a DynamoDB snapshot catalog
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for writing
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
