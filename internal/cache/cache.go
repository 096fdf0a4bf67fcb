// Package cache keeps fetch results keyed by resource kind, scope and cursor,
// with a staleness window per kind and scoped invalidation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Kind is a cached resource kind.
type Kind string

const (
	KindFeed     Kind = "feed"
	KindDetail   Kind = "detail"
	KindComments Kind = "comments"
	KindReplies  Kind = "replies"
	KindUsers    Kind = "users"
)

// Key addresses one cached fetch result.
type Key struct {
	Kind   Kind
	Scope  string
	Cursor string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Scope, k.Cursor)
}

type scopeKey struct {
	kind  Kind
	scope string
}

// item wraps cached data with its expiry.
type item struct {
	data      any
	expiresAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	lru        *lru.Cache[Key, item]
	ttl        map[Kind]time.Duration
	defaultTTL time.Duration
	now        func() time.Time
	group      singleflight.Group

	mu       sync.Mutex
	versions map[scopeKey]uint64
	kinds    map[Kind]uint64
	epoch    uint64
}

type stamp struct {
	epoch, kind, scope uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultTTL sets the window for kinds without an explicit TTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) { s.defaultTTL = d }
}

// New creates a store holding at most size entries.
func New(size int, ttl map[Kind]time.Duration, opts ...Option) (*Store, error) {
	l, err := lru.New[Key, item](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	s := &Store{
		lru:        l,
		ttl:        make(map[Kind]time.Duration, len(ttl)),
		defaultTTL: 30 * time.Second,
		now:        time.Now,
		versions:   make(map[scopeKey]uint64),
		kinds:      make(map[Kind]uint64),
	}
	for k, v := range ttl {
		s.ttl[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the staleness window of kind.
func (s *Store) TTL(kind Kind) time.Duration {
	if d, ok := s.ttl[kind]; ok {
		return d
	}
	return s.defaultTTL
}

// Get returns a fresh entry. Stale entries are removed.
func (s *Store) Get(key Key) (any, bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().After(v.expiresAt) {
		s.lru.Remove(key)
		return nil, false
	}
	return v.data, true
}

// Put stores data under key for the TTL of its kind.
func (s *Store) Put(key Key, data any) {
	s.lru.Add(key, item{data: data, expiresAt: s.now().Add(s.TTL(key.Kind))})
}

// GetOrFetch serves key from the cache or calls fetch. Concurrent callers
// for the same key share one fetch as long as no invalidation separates
// them: a caller arriving after Invalidate, InvalidateKind or Clear starts a
// new fetch instead of joining the older one. A result whose scope was
// invalidated while the fetch was in flight is returned to its callers but
// not stored.
func (s *Store) GetOrFetch(ctx context.Context, key Key, fetch func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}
	before := s.version(key)
	v, err, _ := s.group.Do(flightKey(key, before), func() (any, error) {
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if s.version(key) == before {
			s.Put(key, data)
		}
		return data, nil
	})
	return v, err
}

// Fetch is the typed form of GetOrFetch.
func Fetch[T any](ctx context.Context, s *Store, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := s.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return t, nil
}

// Swap replaces the entry for key and returns a function that puts the
// previous entry back. It backs optimistic updates that may be rolled back.
func (s *Store) Swap(key Key, data any) (restore func()) {
	prev, had := s.lru.Peek(key)
	s.Put(key, data)
	before := s.version(key)
	return func() {
		if s.version(key) != before {
			// Invalidated in between; the next read refetches.
			return
		}
		if had {
			s.lru.Add(key, prev)
			return
		}
		s.lru.Remove(key)
	}
}

// Invalidate drops every cursor of one scope and returns how many entries
// were removed.
func (s *Store) Invalidate(kind Kind, scope string) int {
	s.bump(scopeKey{kind: kind, scope: scope})
	return s.removeWhere(func(k Key) bool { return k.Kind == kind && k.Scope == scope })
}

// InvalidateKind drops every entry of kind.
func (s *Store) InvalidateKind(kind Kind) int {
	s.mu.Lock()
	s.kinds[kind]++
	s.mu.Unlock()
	return s.removeWhere(func(k Key) bool { return k.Kind == kind })
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
	s.lru.Purge()
}

// Len returns the number of entries, including stale ones not yet evicted.
func (s *Store) Len() int {
	return s.lru.Len()
}

func (s *Store) removeWhere(match func(Key) bool) int {
	n := 0
	for _, k := range s.lru.Keys() {
		if match(k) {
			s.lru.Remove(k)
			n++
		}
	}
	return n
}

// flightKey separates fetches of one key by invalidation stamp.
func flightKey(key Key, v stamp) string {
	return fmt.Sprintf("%s@%d.%d.%d", key, v.epoch, v.kind, v.scope)
}

// version changes whenever the key's scope, its kind or the whole store is invalidated.
func (s *Store) version(key Key) stamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stamp{
		epoch: s.epoch,
		kind:  s.kinds[key.Kind],
		scope: s.versions[scopeKey{kind: key.Kind, scope: key.Scope}],
	}
}

func (s *Store) bump(sk scopeKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[sk]++
}
