package kvlookup

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvlookup/annotation"
	"github.com/hupe1980/kvlookup/internal/fs"
	"github.com/hupe1980/kvlookup/internal/kvfile"
)

// memStore is an in-memory Store that counts closes.
type memStore struct {
	data   map[string]annotation.Value
	closes atomic.Int32
}

func newMemStore(kv map[string]string) *memStore {
	s := &memStore{data: make(map[string]annotation.Value, len(kv))}
	for k, v := range kv {
		s.data[k] = annotation.String(v)
	}
	return s
}

func (s *memStore) Get(_ context.Context, key string) (annotation.Value, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Len() int { return len(s.data) }

func (s *memStore) Close() error {
	s.closes.Add(1)
	return nil
}

// writeStore writes a store file holding kv under the map "map".
func writeStore(t *testing.T, kv map[string]any) string {
	t.Helper()
	w := kvfile.NewWriter(kvfile.WithCompression(kvfile.CompressionLZ4))
	require.NoError(t, w.AddMap("map"))
	for k, v := range kv {
		require.NoError(t, w.Add("map", k, v))
	}
	path := filepath.Join(t.TempDir(), "lookup.kvl")
	require.NoError(t, w.WriteFile(fs.Default, path))
	return path
}

// scenarioDoc builds "paris and tokyo" with Lookup annotations over both
// cities; the returned annotations are in ID order.
func scenarioDoc(t *testing.T) (*annotation.Document, *annotation.Annotation, *annotation.Annotation) {
	t.Helper()
	doc := annotation.NewDocument("scenario", "paris and tokyo")
	a, err := doc.Annotations().Add("Lookup", annotation.Span{Start: 0, End: 5}, nil)
	require.NoError(t, err)
	b, err := doc.Annotations().Add("Lookup", annotation.Span{Start: 10, End: 15}, nil)
	require.NoError(t, err)
	return doc, a, b
}

// stopAfter reports an interruption from the n-th poll on.
type stopAfter struct {
	mu    sync.Mutex
	n     int
	polls int
}

func (s *stopAfter) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	return s.polls >= s.n
}

var scenarioStore = map[string]any{"paris": "FR", "london": "UK"}
