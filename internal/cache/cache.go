package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is one cached value with freshness bookkeeping.
type entry struct {
	key       string
	value     any
	fetchedAt time.Time
	expiresAt time.Time
}

// Store is a keyed in-memory cache with TTL freshness, least-recently-read
// capacity eviction and singleflight de-duplication of concurrent fetches.
// Safe for concurrent use; all reads and writes are in-memory and never block
// on the network.
type Store struct {
	capacity int

	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently accessed
	inflight map[string]int

	group singleflight.Group

	now func() time.Time
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		inflight: make(map[string]int),
		now:      time.Now,
	}
}

// Get returns the cached value for key and touches its recency. fresh reports
// whether the entry is within its TTL; an expired entry is still returned
// with fresh=false so the caller can decide to fall back to it.
func (s *Store) Get(key string) (value any, fetchedAt time.Time, fresh, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, found := s.items[key]
	if !found {
		return nil, time.Time{}, false, false
	}
	s.order.MoveToFront(el)
	e := el.Value.(*entry)
	return e.value, e.fetchedAt, s.now().Before(e.expiresAt), true
}

// Put inserts or replaces the entry for key and resets its freshness deadline
// to fetchedAt+ttl.
func (s *Store) Put(key string, value any, fetchedAt time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.fetchedAt = fetchedAt
		e.expiresAt = fetchedAt.Add(ttl)
		s.order.MoveToFront(el)
		return
	}
	el := s.order.PushFront(&entry{key: key, value: value, fetchedAt: fetchedAt, expiresAt: fetchedAt.Add(ttl)})
	s.items[key] = el
	s.evictLocked()
}

// evictLocked drops least-recently-read entries while over capacity, skipping
// keys with a fetch in flight.
func (s *Store) evictLocked() {
	el := s.order.Back()
	for el != nil && len(s.items) > s.capacity {
		prev := el.Prev()
		e := el.Value.(*entry)
		if s.inflight[e.key] == 0 {
			s.order.Remove(el)
			delete(s.items, e.key)
		}
		el = prev
	}
}

// Len reports the number of entries currently held, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) markInflight(key string, delta int) {
	s.mu.Lock()
	s.inflight[key] += delta
	if s.inflight[key] <= 0 {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}

// Do returns the result of fetch for key, coalescing concurrent callers into
// a single invocation: while a fetch for key is in flight, other callers wait
// for its outcome instead of fetching again. A successful result is stored
// under key with ttl before waiters are released.
//
// The fetch itself runs detached from the caller's context: a caller whose
// ctx ends receives ctx.Err() while the shared fetch continues to completion
// and still populates the cache for future callers. The registration is
// cleared on completion either way, so a later call may retry after failure.
func (s *Store) Do(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		s.markInflight(key, 1)
		defer s.markInflight(key, -1)
		v, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		s.Put(key, v, s.now(), ttl)
		return v, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
