package cache

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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s, err := New(64, map[Kind]time.Duration{
		KindFeed:  30 * time.Second,
		KindUsers: 10 * time.Minute,
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return s, clock
}

func TestStore_ServesWithinWindow(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "page-1", nil
	}
	key := Key{Kind: KindFeed}

	for i := 0; i < 3; i++ {
		v, err := Fetch(ctx, s, key, fetch)
		require.NoError(t, err)
		assert.Equal(t, "page-1", v)
	}
	assert.Equal(t, int32(1), calls)

	clock.Advance(31 * time.Second)
	_, err := Fetch(ctx, s, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestStore_PerKindStaleness(t *testing.T) {
	s, clock := newTestStore(t)

	s.Put(Key{Kind: KindFeed}, 1)
	s.Put(Key{Kind: KindUsers}, 2)
	clock.Advance(time.Minute)

	_, ok := s.Get(Key{Kind: KindFeed})
	assert.False(t, ok)
	v, ok := s.Get(Key{Kind: KindUsers})
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStore_InvalidateIsScoped(t *testing.T) {
	s, _ := newTestStore(t)

	s.Put(Key{Kind: KindComments, Scope: "X"}, "x-1")
	s.Put(Key{Kind: KindComments, Scope: "X", Cursor: "c1"}, "x-2")
	s.Put(Key{Kind: KindComments, Scope: "Y"}, "y-1")
	s.Put(Key{Kind: KindDetail, Scope: "X"}, "detail")

	assert.Equal(t, 2, s.Invalidate(KindComments, "X"))

	_, ok := s.Get(Key{Kind: KindComments, Scope: "X"})
	assert.False(t, ok)
	_, ok = s.Get(Key{Kind: KindComments, Scope: "Y"})
	assert.True(t, ok)
	_, ok = s.Get(Key{Kind: KindDetail, Scope: "X"})
	assert.True(t, ok)

	assert.Equal(t, 1, s.InvalidateKind(KindComments))
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConcurrentReadsShareFetch(t *testing.T) {
	s, _ := newTestStore(t)
	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Fetch(context.Background(), s, Key{Kind: KindFeed}, fetch)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStore_InvalidationDuringFetchIsNotStored(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key{Kind: KindComments, Scope: "X"}

	v, err := Fetch(context.Background(), s, key, func(ctx context.Context) (string, error) {
		s.Invalidate(KindComments, "X")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)

	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestStore_ReadAfterInvalidationStartsNewFetch(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(s *Store)
	}{
		{"scope", func(s *Store) { s.Invalidate(KindComments, "X") }},
		{"kind", func(s *Store) { s.InvalidateKind(KindComments) }},
		{"clear", func(s *Store) { s.Clear() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			key := Key{Kind: KindComments, Scope: "X"}
			started := make(chan struct{})
			release := make(chan struct{})

			oldResult := make(chan string, 1)
			go func() {
				v, err := Fetch(context.Background(), s, key, func(ctx context.Context) (string, error) {
					close(started)
					<-release
					return "before-comment", nil
				})
				assert.NoError(t, err)
				oldResult <- v
			}()
			<-started

			tt.invalidate(s)

			v, err := Fetch(context.Background(), s, key, func(ctx context.Context) (string, error) {
				return "after-comment", nil
			})
			require.NoError(t, err)
			assert.Equal(t, "after-comment", v)

			close(release)
			assert.Equal(t, "before-comment", <-oldResult)

			cached, ok := s.Get(key)
			require.True(t, ok)
			assert.Equal(t, "after-comment", cached, "the older fetch must not overwrite the newer result")
		})
	}
}

func TestStore_FetchErrorNotCached(t *testing.T) {
	s, _ := newTestStore(t)
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), s, Key{Kind: KindFeed}, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestStore_SwapRestore(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key{Kind: KindDetail, Scope: "X", Cursor: "likes"}

	s.Put(key, []string{"a"})
	restore := s.Swap(key, []string{"a", "b"})
	v, _ := s.Get(key)
	assert.Equal(t, []string{"a", "b"}, v)

	restore()
	v, _ = s.Get(key)
	assert.Equal(t, []string{"a"}, v)

	missing := Key{Kind: KindDetail, Scope: "Y", Cursor: "likes"}
	restore = s.Swap(missing, []string{"z"})
	restore()
	_, ok := s.Get(missing)
	assert.False(t, ok)

	restore = s.Swap(key, []string{})
	s.Invalidate(KindDetail, "X")
	restore()
	_, ok = s.Get(key)
	assert.False(t, ok, "restore after invalidation leaves the entry to be refetched")
}

func TestStore_TypeMismatch(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key{Kind: KindFeed}
	s.Put(key, "text")

	_, err := Fetch(context.Background(), s, key, func(ctx context.Context) (int, error) { return 1, nil })
	assert.Error(t, err)
}
