package blobstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/hupe1980/kvlookup/internal/fs"
	"github.com/hupe1980/kvlookup/resource"
)

// FetchResult describes a fetched blob.
type FetchResult struct {
	Path   string
	Size   int64
	Cached bool
}

// CachePath returns the local cache file for url: the hex BLAKE3 digest of
// the URL plus the URL's extension.
func CachePath(cacheDir, url string) string {
	sum := blake3.Sum256([]byte(url))
	return filepath.Join(cacheDir, hex.EncodeToString(sum[:16])+path.Ext(url))
}

// Fetch downloads the named blob to dst. An existing dst with the blob's size
// is reused. The download is written to a temporary sibling and renamed into
// place; rc (may be nil) limits concurrency and throughput.
func Fetch(ctx context.Context, store BlobStore, name, dst string, rc *resource.Controller) (FetchResult, error) {
	if err := rc.AcquireFetch(ctx); err != nil {
		return FetchResult{}, err
	}
	defer rc.ReleaseFetch()

	blob, err := store.Open(ctx, name)
	if err != nil {
		return FetchResult{}, fmt.Errorf("open blob %q: %w", name, err)
	}
	defer blob.Close()

	size := blob.Size()
	if fi, err := fs.Default.Stat(dst); err == nil && fi.Mode().IsRegular() && fi.Size() == size {
		return FetchResult{Path: dst, Size: size, Cached: true}, nil
	}

	if err := fs.Default.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return FetchResult{}, err
	}
	tmp := dst + "." + uuid.NewString() + ".part"
	if err := download(ctx, blob, tmp, rc); err != nil {
		_ = fs.Default.Remove(tmp)
		return FetchResult{}, fmt.Errorf("download blob %q: %w", name, err)
	}
	if err := fs.Default.Rename(tmp, dst); err != nil {
		_ = fs.Default.Remove(tmp)
		return FetchResult{}, err
	}
	return FetchResult{Path: dst, Size: size}, nil
}

func download(ctx context.Context, blob Blob, tmp string, rc *resource.Controller) error {
	f, err := fs.Default.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	body, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		_ = f.Close()
		return err
	}
	defer body.Close()

	n, err := io.Copy(f, resource.NewRateLimitedReader(ctx, body, rc))
	if err != nil {
		_ = f.Close()
		return err
	}
	if n != blob.Size() {
		_ = f.Close()
		return fmt.Errorf("short download: got %d of %d bytes", n, blob.Size())
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
