// Package blobstore provides access to lookup store files kept outside the
// local file system.
//
// A store URL such as "s3://lookups/countries.kvl" is resolved against the
// blob stores registered for its prefix. [Fetch] downloads the blob into a
// local cache directory so it can be memory mapped like any local store file.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap support
//   - MemoryStore: In-memory blobs for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	}
//
//	type Blob interface {
//	    ReadAt(ctx, p, off) (int, error)
//	    ReadRange(ctx, off, len) (io.ReadCloser, error)
//	    Size() int64
//	    Close() error
//	}
//
// Stores that also implement [Putter] can receive files from `kvlookup build`.
package blobstore
