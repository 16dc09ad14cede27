// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "lookups",
//	    s3.WithPrefix("stores/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	stage, err := kvlookup.NewStage(cfg, registry, true,
//	    kvlookup.WithBlobStore("s3://lookups", store))
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads with CRC32C checksums for `kvlookup build --upload`
//   - Custom endpoints for S3-compatible services
package s3
