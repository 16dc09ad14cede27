package kvlookup

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/kvlookup/annotation"
	"github.com/hupe1980/kvlookup/internal/kvfile"
	"github.com/hupe1980/kvlookup/resource"
	"github.com/hupe1980/kvlookup/sqlstore"
)

// Store is a read-only key-value store. Implementations are safe for
// concurrent Get calls.
type Store interface {
	// Get returns the value under key. A missing key is ok == false with a
	// nil error; errors are failures of the backing medium.
	Get(ctx context.Context, key string) (annotation.Value, bool, error)
	// Len returns the number of keys.
	Len() int
	// Close releases the store. Calling it twice is a caller bug.
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*sqlstore.Store)(nil)
)

// FileStore serves one map of a kvfile store file.
type FileStore struct {
	r        *kvfile.Reader
	m        *kvfile.Map
	mode     LoadingMode
	rc       *resource.Controller
	reserved int64
	closed   atomic.Bool
}

// OpenFileStore opens map mapName of the store file at path.
// Failures are returned as *StoreOpenError.
func OpenFileStore(path string, mode LoadingMode, mapName string, optFns ...Option) (*FileStore, error) {
	o := applyOptions(optFns)
	return openFileStore(path, mode, mapName, o)
}

func openFileStore(path string, mode LoadingMode, mapName string, o options) (*FileStore, error) {
	fail := func(err error) (*FileStore, error) {
		return nil, &StoreOpenError{Location: path, Map: mapName, Err: err}
	}

	var reserved int64
	if mode == MemoryMapped && o.resources.MemoryLimit() > 0 {
		fi, err := o.fsys.Stat(path)
		if err != nil {
			return fail(err)
		}
		if o.resources.TryAcquireMemory(fi.Size()) {
			reserved = fi.Size()
		} else {
			o.logger.Warn("memory budget exceeded, falling back to file-only access",
				"location", path,
				"size", fi.Size(),
				"usage", o.resources.MemoryUsage(),
				"limit", o.resources.MemoryLimit(),
			)
			mode = FileOnly
		}
	}
	release := func() {
		if reserved > 0 {
			o.resources.ReleaseMemory(reserved)
		}
	}

	r, err := kvfile.Open(path, kvfile.Options{
		Mode:           mode.fileMode(),
		FS:             o.fsys,
		VerifyChecksum: o.verifyChecksum,
	})
	if err != nil {
		release()
		return fail(err)
	}
	m, err := r.Map(mapName)
	if err != nil {
		_ = r.Close()
		release()
		return fail(err)
	}

	return &FileStore{r: r, m: m, mode: mode, rc: o.resources, reserved: reserved}, nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (annotation.Value, bool, error) {
	data, ok, err := s.m.Get(key)
	if err != nil || !ok {
		return annotation.Null(), false, err
	}
	v, err := s.r.Decode(data)
	if err != nil {
		return annotation.Null(), false, err
	}
	return annotation.ValueOf(v), true, nil
}

// Len implements Store.
func (s *FileStore) Len() int { return s.m.Len() }

// Mode returns the effective loading mode, which differs from the requested
// one after a memory-budget fallback.
func (s *FileStore) Mode() LoadingMode { return s.mode }

// Close implements Store. A second call returns ErrClosed.
func (s *FileStore) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	err := s.r.Close()
	if s.reserved > 0 {
		s.rc.ReleaseMemory(s.reserved)
	}
	return err
}
