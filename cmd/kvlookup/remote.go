package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/kvlookup/blobstore"
	"github.com/hupe1980/kvlookup/blobstore/minio"
	"github.com/hupe1980/kvlookup/blobstore/s3"
)

// remoteStore is a blob store that also accepts uploads.
type remoteStore interface {
	blobstore.BlobStore
	blobstore.Putter
}

// remoteTarget splits a remote URL into the registered prefix, the blob name
// below it and the store serving it.
type remoteTarget struct {
	Prefix string
	Name   string
	Store  remoteStore
}

// dialRemote connects to the store behind url. Tests replace it.
var dialRemote = func(ctx context.Context, url string) (remoteTarget, error) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return remoteTarget{}, fmt.Errorf("not a URL: %q", url)
	}

	switch scheme {
	case "s3":
		bucket, name, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || name == "" {
			return remoteTarget{}, fmt.Errorf("expected s3://bucket/key, got %q", url)
		}
		store, err := s3.New(ctx, bucket)
		if err != nil {
			return remoteTarget{}, err
		}
		return remoteTarget{Prefix: "s3://" + bucket, Name: name, Store: store}, nil

	case "minio":
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return remoteTarget{}, fmt.Errorf("expected minio://endpoint/bucket/key, got %q", url)
		}
		store, err := minio.Dial(parts[0],
			os.Getenv("MINIO_ACCESS_KEY"),
			os.Getenv("MINIO_SECRET_KEY"),
			parts[1],
			os.Getenv("MINIO_SECURE") == "true",
		)
		if err != nil {
			return remoteTarget{}, err
		}
		return remoteTarget{Prefix: "minio://" + parts[0] + "/" + parts[1], Name: parts[2], Store: store}, nil

	default:
		return remoteTarget{}, fmt.Errorf("unsupported scheme %q", scheme)
	}
}
