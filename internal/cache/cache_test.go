package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetPut_FreshnessDeadline(t *testing.T) {
	s := New(8)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	s.Put("k", "v1", base, time.Minute)

	v, fetchedAt, fresh, ok := s.Get("k")
	require.True(t, ok)
	require.True(t, fresh)
	require.Equal(t, "v1", v)
	require.Equal(t, base, fetchedAt)

	// expired entries stay readable but are no longer fresh
	now = base.Add(61 * time.Second)
	v, _, fresh, ok = s.Get("k")
	require.True(t, ok)
	require.False(t, fresh)
	require.Equal(t, "v1", v)

	// a subsequent successful fetch resets freshness
	s.Put("k", "v2", now, time.Minute)
	v, fetchedAt, fresh, ok = s.Get("k")
	require.True(t, ok)
	require.True(t, fresh)
	require.Equal(t, "v2", v)
	require.Equal(t, now, fetchedAt)
}

func TestGet_MissingKey(t *testing.T) {
	s := New(8)
	_, _, fresh, ok := s.Get("nope")
	require.False(t, ok)
	require.False(t, fresh)
}

func TestEviction_LeastRecentlyReadFirst(t *testing.T) {
	s := New(2)
	now := time.Now()
	s.Put("a", 1, now, time.Minute)
	s.Put("b", 2, now, time.Minute)

	// touch "a" so "b" becomes the eviction candidate
	_, _, _, ok := s.Get("a")
	require.True(t, ok)

	s.Put("c", 3, now, time.Minute)
	require.Equal(t, 2, s.Len())

	_, _, _, ok = s.Get("b")
	require.False(t, ok, "least-recently-read entry should be evicted")
	_, _, _, ok = s.Get("a")
	require.True(t, ok)
	_, _, _, ok = s.Get("c")
	require.True(t, ok)
}

func TestEviction_SkipsInFlightKey(t *testing.T) {
	s := New(2)
	now := time.Now()
	s.Put("a", 1, now, time.Minute)
	s.Put("b", 2, now, time.Minute)

	// make "a" the LRU candidate with a refresh in flight
	_, _, _, _ = s.Get("b")
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Do(context.Background(), "a", time.Minute, func(context.Context) (any, error) {
			<-release
			return 10, nil
		})
	}()

	// wait for the fetch to register as in flight
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inflight["a"] > 0
	}, time.Second, time.Millisecond)

	s.Put("c", 3, now, time.Minute)

	_, _, _, ok := s.Get("a")
	require.True(t, ok, "in-flight key must not be evicted")
	_, _, _, ok = s.Get("b")
	require.False(t, ok, "eviction should fall through to the next candidate")

	close(release)
	<-done
}

func TestDo_CoalescesConcurrentFetches(t *testing.T) {
	s := New(8)
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 10
	results := make([]any, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Do(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
				calls.Add(1)
				<-release
				return "shared", nil
			})
		}()
	}

	// let the callers pile up behind the single in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "exactly one upstream fetch")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "shared", results[i])
	}

	v, _, fresh, ok := s.Get("k")
	require.True(t, ok)
	require.True(t, fresh)
	require.Equal(t, "shared", v)
}

func TestDo_FailureSharedAndNotCached(t *testing.T) {
	s := New(8)
	wantErr := errors.New("boom")

	_, err := s.Do(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 0, s.Len())

	// registration is cleared on failure so a later call fetches again
	v, err := s.Do(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestDo_WaiterCancellationDoesNotCancelFetch(t *testing.T) {
	s := New(8)
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	var fetchCtxErr atomic.Value
	go func() {
		_, err := s.Do(ctx, "k", time.Minute, func(fetchCtx context.Context) (any, error) {
			<-release
			fetchCtxErr.Store(fetchCtx.Err() == nil)
			return "late", nil
		})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		v, _, _, ok := s.Get("k")
		return ok && v == "late"
	}, time.Second, 5*time.Millisecond, "abandoned fetch should still populate the cache")

	// the shared fetch never observed the waiter's cancellation
	require.Equal(t, true, fetchCtxErr.Load())
}
