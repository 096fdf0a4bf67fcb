// Package paginate holds one generic cursor-paginated collection used for the
// feed, the comments of a confession and the replies of a comment.
package paginate

import (
	"context"
	"slices"
	"sync"

	"github.com/UkralStul/confession-feed/internal/domain"
)

// FetchFunc loads the page that starts at cursor. A nil cursor means the first page.
type FetchFunc[T any] func(ctx context.Context, cursor *string) (domain.Page[T], error)

// Scope accumulates the pages of one collection in fetch order.
type Scope[T any] struct {
	name  string
	fetch FetchFunc[T]
	id    func(T) string
	cmp   func(a, b T) int

	mu      sync.Mutex
	pages   [][]T
	next    *string
	done    bool
	loading bool
	gen     uint64
}

// Option configures a Scope.
type Option[T any] func(*Scope[T])

// WithComparator sorts the flattened collection with a stable sort.
func WithComparator[T any](cmp func(a, b T) int) Option[T] {
	return func(s *Scope[T]) { s.cmp = cmp }
}

// New creates a scope. id is used to drop items repeated across pages.
func New[T any](name string, fetch FetchFunc[T], id func(T) string, opts ...Option[T]) *Scope[T] {
	s := &Scope[T]{name: name, fetch: fetch, id: id}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scope identifier.
func (s *Scope[T]) Name() string { return s.name }

// LoadNext fetches and appends one page. It returns false without fetching
// when a load is already in flight or the last page has been applied, so
// repeated triggers are harmless. The next cursor is only known once the
// previous page is merged, which keeps pages in order.
func (s *Scope[T]) LoadNext(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.loading || s.done {
		s.mu.Unlock()
		return false, nil
	}
	s.loading = true
	cursor := s.next
	gen := s.gen
	s.mu.Unlock()

	page, err := s.fetch(ctx, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// Reset while in flight: the page belongs to a discarded generation.
		return false, nil
	}
	s.loading = false
	if err != nil {
		return false, err
	}
	s.pages = append(s.pages, page.Items)
	s.next = page.NextCursor
	s.done = !page.HasNext()
	return true, nil
}

// LoadFirst loads the first page unless one is already loaded.
func (s *Scope[T]) LoadFirst(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	_, err := s.LoadNext(ctx)
	return err
}

// Flatten merges all loaded pages. Items whose id was already seen in an
// earlier position are dropped.
func (s *Scope[T]) Flatten() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	out := make([]T, 0)
	for _, page := range s.pages {
		for _, item := range page {
			id := s.id(item)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, item)
		}
	}
	if s.cmp != nil {
		slices.SortStableFunc(out, s.cmp)
	}
	return out
}

// HasMore reports whether another page may be loaded.
func (s *Scope[T]) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// Loading reports whether a page fetch is in flight.
func (s *Scope[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Loaded reports whether at least one page has been applied.
func (s *Scope[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages) > 0
}

// PageCount returns the number of applied pages.
func (s *Scope[T]) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Reset drops every loaded page. An in-flight load is discarded when it returns.
func (s *Scope[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.pages = nil
	s.next = nil
	s.done = false
	s.loading = false
}
