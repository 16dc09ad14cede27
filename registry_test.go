package kvlookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = ResourceKey{Backend: BackendFile, Location: "/data/lookup.kvl", Mode: MemoryMapped, MapName: "map"}

func TestRegistry_TwoDuplicatesOpenOnceCloseOnce(t *testing.T) {
	r := NewRegistry()
	store := newMemStore(map[string]string{"paris": "FR"})
	var opens atomic.Int32
	open := func() (Store, error) {
		opens.Add(1)
		return store, nil
	}

	h0, err := r.Acquire(testKey, open)
	require.NoError(t, err)
	h1, err := r.Acquire(testKey, open)
	require.NoError(t, err)

	assert.Same(t, h0, h1)
	assert.Equal(t, int32(1), opens.Load())
	assert.Equal(t, 2, r.Refs(testKey))

	// The non-opener finishes first and must not close.
	require.NoError(t, r.Release(context.Background(), testKey, false))
	assert.Equal(t, int32(0), store.closes.Load())
	assert.False(t, h0.Closed())

	require.NoError(t, r.Release(context.Background(), testKey, true))
	assert.Equal(t, int32(1), store.closes.Load())
	assert.True(t, h0.Closed())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentAcquireRelease(t *testing.T) {
	const n = 32
	r := NewRegistry()
	store := newMemStore(nil)
	var opens atomic.Int32
	open := func() (Store, error) {
		opens.Add(1)
		time.Sleep(10 * time.Millisecond)
		return store, nil
	}

	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Acquire(testKey, open)
			assert.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Release(context.Background(), testKey, i == 0))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.closes.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_OpenerWaitsForOthers(t *testing.T) {
	r := NewRegistry()
	store := newMemStore(nil)
	open := func() (Store, error) { return store, nil }

	_, err := r.Acquire(testKey, open)
	require.NoError(t, err)
	_, err = r.Acquire(testKey, open)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Release(context.Background(), testKey, true) }()

	select {
	case <-done:
		t.Fatal("opener closed while another duplicate still held the store")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Equal(t, int32(0), store.closes.Load())

	require.NoError(t, r.Release(context.Background(), testKey, false))
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), store.closes.Load())
}

func TestRegistry_OpenerGivesUpAndCloseCleansUp(t *testing.T) {
	r := NewRegistry()
	store := newMemStore(nil)
	open := func() (Store, error) { return store, nil }

	_, err := r.Acquire(testKey, open)
	require.NoError(t, err)
	_, err = r.Acquire(testKey, open)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Release(ctx, testKey, true), context.Canceled)
	assert.Equal(t, int32(0), store.closes.Load())

	require.NoError(t, r.Close())
	assert.Equal(t, int32(1), store.closes.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_OpenFailurePropagates(t *testing.T) {
	const n = 8
	r := NewRegistry()
	cause := errors.New("disk on fire")
	var opens atomic.Int32
	release := make(chan struct{})
	open := func() (Store, error) {
		opens.Add(1)
		<-release
		return nil, cause
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.Acquire(testKey, open)
		}()
	}
	// Let every goroutine reach the in-flight entry before the open fails.
	require.Eventually(t, func() bool { return r.Refs(testKey) == n }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	var first *StoreOpenError
	require.ErrorAs(t, errs[0], &first)
	for _, err := range errs {
		var soe *StoreOpenError
		require.ErrorAs(t, err, &soe)
		assert.Same(t, first, soe, "waiters share the same open error")
		assert.ErrorIs(t, err, ErrStoreOpen)
		assert.ErrorIs(t, err, cause)
	}
	assert.Equal(t, 0, r.Len(), "a failed open leaves no entry")

	// A later acquire retries the open.
	store := newMemStore(nil)
	h, err := r.Acquire(testKey, func() (Store, error) { return store, nil })
	require.NoError(t, err)
	assert.Same(t, store, h.Store())
}

func TestRegistry_ReleaseErrors(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Release(context.Background(), testKey, true), ErrNotAcquired)

	h, err := r.Acquire(testKey, func() (Store, error) { return newMemStore(nil), nil })
	require.NoError(t, err)
	assert.ErrorIs(t, h.close(false), ErrNotOpener)

	require.NoError(t, r.Release(context.Background(), testKey, true))
	assert.ErrorIs(t, h.close(true), ErrClosed)
	assert.ErrorIs(t, r.Release(context.Background(), testKey, true), ErrNotAcquired)
}

func TestRegistry_DistinctKeys(t *testing.T) {
	r := NewRegistry()
	other := testKey
	other.Mode = FileOnly

	a, err := r.Acquire(testKey, func() (Store, error) { return newMemStore(nil), nil })
	require.NoError(t, err)
	b, err := r.Acquire(other, func() (Store, error) { return newMemStore(nil), nil })
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
	require.NoError(t, r.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

// slowCloseStore blocks in Close until unblock is closed.
type slowCloseStore struct {
	*memStore
	closing chan struct{}
	unblock chan struct{}
}

func (s *slowCloseStore) Close() error {
	close(s.closing)
	<-s.unblock
	return s.memStore.Close()
}

func TestRegistry_AcquireWaitsForClosingHandle(t *testing.T) {
	r := NewRegistry()
	first := &slowCloseStore{memStore: newMemStore(nil), closing: make(chan struct{}), unblock: make(chan struct{})}
	var opens atomic.Int32

	h0, err := r.Acquire(testKey, func() (Store, error) {
		opens.Add(1)
		return first, nil
	})
	require.NoError(t, err)

	released := make(chan error, 1)
	go func() { released <- r.Release(context.Background(), testKey, true) }()
	<-first.closing

	second := newMemStore(nil)
	acquired := make(chan *Handle, 1)
	go func() {
		h, err := r.Acquire(testKey, func() (Store, error) {
			opens.Add(1)
			return second, nil
		})
		assert.NoError(t, err)
		acquired <- h
	}()

	select {
	case <-acquired:
		t.Fatal("reopened a key whose handle was still closing")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Equal(t, int32(1), opens.Load())
	assert.Equal(t, 1, r.Len())

	close(first.unblock)
	require.NoError(t, <-released)
	assert.True(t, h0.Closed())

	h1 := <-acquired
	assert.NotSame(t, h0, h1)
	assert.Same(t, second, h1.Store())
	assert.Equal(t, int32(2), opens.Load())
	require.NoError(t, r.Release(context.Background(), testKey, true))
}

func TestRegistry_OpenPanicReleasesWaiters(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})

	opener := make(chan error, 1)
	go func() {
		_, err := r.Acquire(testKey, func() (Store, error) {
			<-release
			panic("mapping vanished")
		})
		opener <- err
	}()
	require.Eventually(t, func() bool { return r.Refs(testKey) == 1 }, time.Second, time.Millisecond)

	waiter := make(chan error, 1)
	go func() {
		_, err := r.Acquire(testKey, func() (Store, error) { return newMemStore(nil), nil })
		waiter <- err
	}()
	require.Eventually(t, func() bool { return r.Refs(testKey) == 2 }, time.Second, time.Millisecond)
	close(release)

	err := <-opener
	assert.ErrorIs(t, err, ErrStoreOpen)
	assert.Contains(t, err.Error(), "mapping vanished")
	assert.Equal(t, err, <-waiter)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_IdleHandleIsReused(t *testing.T) {
	r := NewRegistry()
	store := newMemStore(nil)
	var opens atomic.Int32
	open := func() (Store, error) {
		opens.Add(1)
		return store, nil
	}

	h0, err := r.Acquire(testKey, open)
	require.NoError(t, err)
	_, err = r.Acquire(testKey, open)
	require.NoError(t, err)

	// The opener gives up; the last release leaves the handle open.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Release(ctx, testKey, true), context.Canceled)
	require.NoError(t, r.Release(context.Background(), testKey, false))
	assert.False(t, h0.Closed())
	assert.Equal(t, 0, r.Refs(testKey))

	h1, err := r.Acquire(testKey, open)
	require.NoError(t, err)
	assert.Same(t, h0, h1)
	assert.Equal(t, int32(1), opens.Load())

	require.NoError(t, r.Release(context.Background(), testKey, true))
	assert.True(t, h0.Closed())
	assert.Equal(t, 0, r.Len())
}
