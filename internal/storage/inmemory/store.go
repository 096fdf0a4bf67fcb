package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/storage"
	"github.com/google/uuid"
)

// Store implements storage.Storage in memory.
type Store struct {
	mu               sync.RWMutex
	now              func() time.Time
	confessions      map[string]*domain.Confession
	confessionOrder  []string            // insertion order
	comments         map[string]*domain.Comment
	commentsByParent map[string][]string // map[confessionID][]commentID
	replies          map[string]*domain.ChildComment
	repliesByParent  map[string][]string // map[commentID][]replyID
	likes            map[string]*domain.Like
	likeOrder        []string
	users            map[string]*domain.User
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		now:              func() time.Time { return time.Now().UTC() },
		confessions:      make(map[string]*domain.Confession),
		comments:         make(map[string]*domain.Comment),
		commentsByParent: make(map[string][]string),
		replies:          make(map[string]*domain.ChildComment),
		repliesByParent:  make(map[string][]string),
		likes:            make(map[string]*domain.Like),
		users:            make(map[string]*domain.User),
	}
}

var _ storage.Storage = (*Store)(nil)

func validateContent(content string) error {
	if len(content) > storage.MaxContentLength {
		return storage.ErrTooLong
	}
	if strings.TrimSpace(content) == "" {
		return storage.ErrEmpty
	}
	return nil
}

// === Confession Methods ===

func (s *Store) CreateConfession(ctx context.Context, c *domain.Confession) (*domain.Confession, error) {
	if err := validateContent(c.Content); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.confessions[c.ID] = c
	s.confessionOrder = append(s.confessionOrder, c.ID)
	return c, nil
}

func (s *Store) GetConfession(ctx context.Context, id string) (*domain.Confession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.confessions[id]
	if !ok {
		return nil, fmt.Errorf("confession %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

// ListConfessions returns the newest confessions first.
func (s *Store) ListConfessions(ctx context.Context, args storage.PaginationArgs) ([]*domain.Confession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Confession, 0, len(s.confessionOrder))
	for i := len(s.confessionOrder) - 1; i >= 0; i-- {
		all = append(all, s.confessions[s.confessionOrder[i]])
	}
	return pageAfter(all, func(c *domain.Confession) string { return c.ID }, args)
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) (*domain.Comment, error) {
	if err := validateContent(c.Content); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.confessions[c.ConfessionID]; !ok {
		return nil, fmt.Errorf("confession %s: %w", c.ConfessionID, storage.ErrNotFound)
	}

	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.comments[c.ID] = c
	s.commentsByParent[c.ConfessionID] = append(s.commentsByParent[c.ConfessionID], c.ID)
	return c, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, confessionID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pageAfter(s.commentsOf(confessionID), func(c *domain.Comment) string { return c.ID }, args)
}

func (s *Store) CommentsByConfessionIDs(ctx context.Context, confessionIDs []string) (map[string][]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.Comment, len(confessionIDs))
	for _, id := range confessionIDs {
		results[id] = s.commentsOf(id)
	}
	return results, nil
}

func (s *Store) commentsOf(confessionID string) []*domain.Comment {
	ids := s.commentsByParent[confessionID]
	out := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.comments[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// === Reply Methods ===

func (s *Store) CreateChildComment(ctx context.Context, c *domain.ChildComment) (*domain.ChildComment, error) {
	if err := validateContent(c.Content); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[c.CommentID]; !ok {
		return nil, fmt.Errorf("comment %s: %w", c.CommentID, storage.ErrNotFound)
	}

	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.replies[c.ID] = c
	s.repliesByParent[c.CommentID] = append(s.repliesByParent[c.CommentID], c.ID)
	return c, nil
}

func (s *Store) ListChildComments(ctx context.Context, commentID string, args storage.PaginationArgs) ([]*domain.ChildComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pageAfter(s.repliesOf(commentID), func(c *domain.ChildComment) string { return c.ID }, args)
}

func (s *Store) ChildCommentsByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.ChildComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.ChildComment, len(commentIDs))
	for _, id := range commentIDs {
		results[id] = s.repliesOf(id)
	}
	return results, nil
}

func (s *Store) repliesOf(commentID string) []*domain.ChildComment {
	ids := s.repliesByParent[commentID]
	out := make([]*domain.ChildComment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.replies[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// === Like Methods ===

func (s *Store) CreateLike(ctx context.Context, l *domain.Like) (*domain.Like, error) {
	target, ok := l.Target()
	if !ok {
		return nil, l.Validate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists(target) {
		return nil, fmt.Errorf("%s %s: %w", target.Kind, target.ID, storage.ErrNotFound)
	}
	for _, existing := range s.likes {
		if t, _ := existing.Target(); existing.ActorID == l.ActorID && t == target {
			return nil, storage.ErrAlreadyLiked
		}
	}

	l.ID = uuid.NewString()
	l.CreatedAt = s.now()
	s.likes[l.ID] = l
	s.likeOrder = append(s.likeOrder, l.ID)
	return l, nil
}

func (s *Store) DeleteLike(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.likes[id]; !ok {
		return fmt.Errorf("like %s: %w", id, storage.ErrNotFound)
	}
	delete(s.likes, id)
	for i, lid := range s.likeOrder {
		if lid == id {
			s.likeOrder = append(s.likeOrder[:i], s.likeOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) LikesBySubjects(ctx context.Context, kind domain.SubjectKind, ids []string) (map[string][]*domain.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.Like, len(ids))
	for _, id := range ids {
		results[id] = []*domain.Like{}
	}
	for _, lid := range s.likeOrder {
		l := s.likes[lid]
		t, ok := l.Target()
		if !ok || t.Kind != kind {
			continue
		}
		if _, wanted := results[t.ID]; wanted {
			results[t.ID] = append(results[t.ID], l)
		}
	}
	return results, nil
}

func (s *Store) exists(target domain.Subject) bool {
	var ok bool
	switch target.Kind {
	case domain.SubjectConfession:
		_, ok = s.confessions[target.ID]
	case domain.SubjectComment:
		_, ok = s.comments[target.ID]
	case domain.SubjectChildComment:
		_, ok = s.replies[target.ID]
	}
	return ok
}

// === User Methods ===

func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	return u, nil
}

// pageAfter returns up to args.Limit items following the cursor item.
// A cursor that is not an item of all is rejected with storage.ErrNotFound.
func pageAfter[T any](all []T, id func(T) string, args storage.PaginationArgs) ([]T, error) {
	startIndex := 0
	if args.Cursor != nil {
		startIndex = -1
		for i, it := range all {
			if id(it) == *args.Cursor {
				startIndex = i + 1
				break
			}
		}
		if startIndex < 0 {
			return nil, fmt.Errorf("cursor %s: %w", *args.Cursor, storage.ErrNotFound)
		}
	}
	if startIndex >= len(all) {
		return []T{}, nil
	}

	endIndex := len(all)
	if args.Limit > 0 && startIndex+args.Limit < endIndex {
		endIndex = startIndex + args.Limit
	}
	return all[startIndex:endIndex], nil
}
