package blobstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvlookup/resource"
)

func TestCachePath(t *testing.T) {
	p1 := CachePath("/cache", "s3://b/countries.kvl")
	p2 := CachePath("/cache", "s3://b/cities.kvl")

	assert.NotEqual(t, p1, p2)
	assert.Equal(t, "/cache", filepath.Dir(p1))
	assert.True(t, strings.HasSuffix(p1, ".kvl"))
	assert.Equal(t, p1, CachePath("/cache", "s3://b/countries.kvl"))
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	data := bytes.Repeat([]byte("kv"), 4096)
	require.NoError(t, store.Put(ctx, "countries.kvl", bytes.NewReader(data), int64(len(data))))

	dst := filepath.Join(t.TempDir(), "cache", "countries.kvl")
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})

	res, err := Fetch(ctx, store, "countries.kvl", dst, rc)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int64(len(data)), res.Size)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Second fetch reuses the cached file.
	res, err = Fetch(ctx, store, "countries.kvl", dst, nil)
	require.NoError(t, err)
	assert.True(t, res.Cached)

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFetch_NotFound(t *testing.T) {
	_, err := Fetch(context.Background(), NewMemoryStore(), "missing.kvl", filepath.Join(t.TempDir(), "x"), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := resource.NewController(resource.Config{MaxConcurrentFetches: 1})
	require.True(t, rc.TryAcquireFetch())

	_, err := Fetch(ctx, NewMemoryStore(), "x", filepath.Join(t.TempDir(), "x"), rc)
	assert.ErrorIs(t, err, context.Canceled)
}
