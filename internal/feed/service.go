// Package feed composes the fetch layer, the cache, the pagination scopes and
// the mutation coordinator into the read and write paths of the client.
package feed

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/UkralStul/confession-feed/internal/aggregate"
	"github.com/UkralStul/confession-feed/internal/cache"
	"github.com/UkralStul/confession-feed/internal/dataloader"
	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/identity"
	"github.com/UkralStul/confession-feed/internal/logging"
	"github.com/UkralStul/confession-feed/internal/mutation"
	"github.com/UkralStul/confession-feed/internal/paginate"
	"github.com/UkralStul/confession-feed/internal/refine"
)

// Cursor values of cache keys that do not address a page.
const (
	cursorLikes  = "likes"
	cursorEntity = "entity"
	cursorAll    = "*"
)

// ErrRefineUnavailable is returned by Refine when no refiner is configured.
var ErrRefineUnavailable = errors.New("feed: text refinement is not configured")

// API is the data access the service needs. *fetch.Client implements it.
type API interface {
	mutation.LikeAPI
	mutation.PostAPI
	dataloader.Source

	ListConfessions(ctx context.Context, cursor *string) (domain.Page[domain.Confession], error)
	GetConfession(ctx context.Context, id string) (domain.Confession, error)
	CreateConfession(ctx context.Context, actorID, content string) (domain.Confession, error)
	ListComments(ctx context.Context, confessionID string, cursor *string) (domain.Page[domain.Comment], error)
	ListReplies(ctx context.Context, commentID string, cursor *string) (domain.Page[domain.ChildComment], error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// connectivity is implemented by clients that remember disconnections.
type connectivity interface {
	ResetConnectivity()
}

// Options configures a Service. Zero values get defaults.
type Options struct {
	Cache       *cache.Store
	Identity    identity.Provider
	Cooldowns   mutation.Cooldowns
	LoaderWait  time.Duration
	Shuffle     bool
	ShuffleSeed uint64
	Refiner     *refine.Refiner
	Logger      *logging.Logger
}

// Service is safe for concurrent use.
type Service struct {
	api      API
	cache    *cache.Store
	loaders  *dataloader.Loaders
	coord    *mutation.Coordinator
	identity identity.Provider
	refiner  *refine.Refiner
	log      *logging.Logger
	shuffle  bool
	seed     uint64

	feed     *paginate.Scope[domain.Confession]
	comments *paginate.Registry[domain.Comment]
	replies  *paginate.Registry[domain.ChildComment]
}

// New creates a service over api.
func New(api API, opts Options) (*Service, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	store := opts.Cache
	if store == nil {
		var err error
		store, err = cache.New(512, map[cache.Kind]time.Duration{cache.KindUsers: 10 * time.Minute})
		if err != nil {
			return nil, err
		}
	}
	id := opts.Identity
	if id == nil {
		id = identity.Static{}
	}
	cooldowns := opts.Cooldowns
	if cooldowns == (mutation.Cooldowns{}) {
		cooldowns = mutation.DefaultCooldowns()
	}

	s := &Service{
		api:      api,
		cache:    store,
		loaders:  dataloader.New(api, opts.LoaderWait),
		identity: id,
		refiner:  opts.Refiner,
		log:      log.WithComponent("feed"),
		shuffle:  opts.Shuffle,
		seed:     opts.ShuffleSeed,
	}
	s.coord = mutation.New(mutation.Config{
		Likes:       api,
		Posts:       api,
		Invalidator: s,
		Local:       s,
		Cooldowns:   cooldowns,
		Logger:      log,
	})

	s.feed = paginate.New("feed", s.fetchFeedPage, func(c domain.Confession) string { return c.ID })
	s.comments = paginate.NewRegistry(func(confessionID string) *paginate.Scope[domain.Comment] {
		return paginate.New("comments:"+confessionID, func(ctx context.Context, cursor *string) (domain.Page[domain.Comment], error) {
			return cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindComments, Scope: confessionID, Cursor: cursorKey(cursor)},
				func(ctx context.Context) (domain.Page[domain.Comment], error) {
					return s.api.ListComments(ctx, confessionID, cursor)
				})
		}, func(c domain.Comment) string { return c.ID })
	})
	s.replies = paginate.NewRegistry(func(commentID string) *paginate.Scope[domain.ChildComment] {
		return paginate.New("replies:"+commentID, func(ctx context.Context, cursor *string) (domain.Page[domain.ChildComment], error) {
			return cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindReplies, Scope: commentID, Cursor: cursorKey(cursor)},
				func(ctx context.Context) (domain.Page[domain.ChildComment], error) {
					return s.api.ListReplies(ctx, commentID, cursor)
				})
		}, func(c domain.ChildComment) string { return c.ID })
	})
	return s, nil
}

func cursorKey(cursor *string) string {
	if cursor == nil {
		return ""
	}
	return *cursor
}

func (s *Service) fetchFeedPage(ctx context.Context, cursor *string) (domain.Page[domain.Confession], error) {
	page, err := cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindFeed, Cursor: cursorKey(cursor)},
		func(ctx context.Context) (domain.Page[domain.Confession], error) {
			return s.api.ListConfessions(ctx, cursor)
		})
	if err != nil || !s.shuffle {
		return page, err
	}
	// Each page is shuffled on its own so pages stay non-overlapping.
	h := fnv.New64a()
	h.Write([]byte(cursorKey(cursor)))
	page.Items = paginate.Shuffle(page.Items, s.seed^h.Sum64())
	return page, nil
}

// === Cached children ===

func (s *Service) likesOf(ctx context.Context, subject domain.Subject) ([]domain.Like, error) {
	return cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindDetail, Scope: subject.ID, Cursor: cursorLikes},
		func(ctx context.Context) ([]domain.Like, error) {
			return s.loaders.Likes(ctx, subject)
		})
}

func (s *Service) allComments(ctx context.Context, confessionID string) ([]domain.Comment, error) {
	return cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindComments, Scope: confessionID, Cursor: cursorAll},
		func(ctx context.Context) ([]domain.Comment, error) {
			return s.loaders.Comments(ctx, confessionID)
		})
}

func (s *Service) allReplies(ctx context.Context, commentID string) ([]domain.ChildComment, error) {
	return cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindReplies, Scope: commentID, Cursor: cursorAll},
		func(ctx context.Context) ([]domain.ChildComment, error) {
			return s.loaders.Replies(ctx, commentID)
		})
}

// collect runs fetchOne for every id concurrently and concatenates the
// results in id order.
func collect[T any](ctx context.Context, ids []string, fetchOne func(ctx context.Context, id string) ([]T, error)) ([]T, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([][]T, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			items, err := fetchOne(gctx, id)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

func (s *Service) likesFor(kind domain.SubjectKind) func(ctx context.Context, id string) ([]domain.Like, error) {
	return func(ctx context.Context, id string) ([]domain.Like, error) {
		return s.likesOf(ctx, domain.Subject{Kind: kind, ID: id})
	}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

// users returns the user directory keyed by id. The directory only decorates
// views, so a failure is logged and an empty directory returned.
func (s *Service) users(ctx context.Context) map[string]domain.User {
	list, err := cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindUsers},
		func(ctx context.Context) ([]domain.User, error) {
			return s.api.ListUsers(ctx)
		})
	if err != nil {
		s.log.Warn("user directory unavailable", "error", err)
		return nil
	}
	out := make(map[string]domain.User, len(list))
	for _, u := range list {
		out[u.ID] = u
	}
	return out
}

func author(users map[string]domain.User, id string) *domain.User {
	u, ok := users[id]
	if !ok {
		return nil
	}
	return &u
}

// joinConfessions aggregates confessions with their likes and comments.
func (s *Service) joinConfessions(ctx context.Context, confessions []domain.Confession) ([]domain.ShowConfession, error) {
	confessionIDs := ids(confessions, func(c domain.Confession) string { return c.ID })

	var likes []domain.Like
	var comments []domain.Comment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		likes, err = collect(gctx, confessionIDs, s.likesFor(domain.SubjectConfession))
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = collect(gctx, confessionIDs, s.allComments)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := aggregate.Confessions(confessions, likes, comments)
	users := s.users(ctx)
	for i := range views {
		views[i].Author = author(users, views[i].AuthorID)
	}
	return views, nil
}

// === Read path ===

// FeedView returns the loaded feed, loading the first page if needed.
func (s *Service) FeedView(ctx context.Context) ([]domain.ShowConfession, error) {
	if err := s.feed.LoadFirst(ctx); err != nil {
		return nil, err
	}
	return s.joinConfessions(ctx, s.feed.Flatten())
}

// LoadMoreFeed appends the next feed page. It reports whether a page was added.
func (s *Service) LoadMoreFeed(ctx context.Context) (bool, error) {
	return s.feed.LoadNext(ctx)
}

// FeedHasMore reports whether another feed page may exist.
func (s *Service) FeedHasMore() bool { return s.feed.HasMore() }

// ConfessionDetail returns one confession with its likes and comment count.
func (s *Service) ConfessionDetail(ctx context.Context, id string) (domain.ShowConfession, error) {
	c, err := cache.Fetch(ctx, s.cache, cache.Key{Kind: cache.KindDetail, Scope: id, Cursor: cursorEntity},
		func(ctx context.Context) (domain.Confession, error) {
			return s.api.GetConfession(ctx, id)
		})
	if err != nil {
		return domain.ShowConfession{}, err
	}
	views, err := s.joinConfessions(ctx, []domain.Confession{c})
	if err != nil {
		return domain.ShowConfession{}, err
	}
	return views[0], nil
}

// CommentsView returns the loaded comments of a confession.
func (s *Service) CommentsView(ctx context.Context, confessionID string) ([]domain.ShowComment, error) {
	scope := s.comments.Get(confessionID)
	if err := scope.LoadFirst(ctx); err != nil {
		return nil, err
	}
	comments := scope.Flatten()
	commentIDs := ids(comments, func(c domain.Comment) string { return c.ID })

	var likes []domain.Like
	var replies []domain.ChildComment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		likes, err = collect(gctx, commentIDs, s.likesFor(domain.SubjectComment))
		return err
	})
	g.Go(func() error {
		var err error
		replies, err = collect(gctx, commentIDs, s.allReplies)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := aggregate.Comments(comments, likes, replies)
	users := s.users(ctx)
	for i := range views {
		views[i].Author = author(users, views[i].AuthorID)
	}
	return views, nil
}

// LoadMoreComments appends the next comment page of a confession.
func (s *Service) LoadMoreComments(ctx context.Context, confessionID string) (bool, error) {
	return s.comments.Get(confessionID).LoadNext(ctx)
}

// CommentsHaveMore reports whether another comment page may exist.
func (s *Service) CommentsHaveMore(confessionID string) bool {
	return s.comments.Get(confessionID).HasMore()
}

// RepliesView returns the loaded replies of a comment, most liked first and
// then newest day first.
func (s *Service) RepliesView(ctx context.Context, commentID string) ([]domain.ShowChildComment, error) {
	scope := s.replies.Get(commentID)
	if err := scope.LoadFirst(ctx); err != nil {
		return nil, err
	}
	replies := scope.Flatten()
	likes, err := collect(ctx, ids(replies, func(r domain.ChildComment) string { return r.ID }), s.likesFor(domain.SubjectChildComment))
	if err != nil {
		return nil, err
	}

	views := aggregate.Replies(replies, likes)
	paginate.SortReplies(views)
	users := s.users(ctx)
	for i := range views {
		views[i].Author = author(users, views[i].AuthorID)
	}
	return views, nil
}

// LoadMoreReplies appends the next reply page of a comment.
func (s *Service) LoadMoreReplies(ctx context.Context, commentID string) (bool, error) {
	return s.replies.Get(commentID).LoadNext(ctx)
}

// RepliesHaveMore reports whether another reply page may exist.
func (s *Service) RepliesHaveMore(commentID string) bool {
	return s.replies.Get(commentID).HasMore()
}

// SubjectLikes returns the likes of any subject.
func (s *Service) SubjectLikes(ctx context.Context, subject domain.Subject) (domain.SubjectLikes, error) {
	likes, err := s.likesOf(ctx, subject)
	if err != nil {
		return domain.SubjectLikes{}, err
	}
	return domain.SubjectLikes{Of: subject, Likes: likes}, nil
}

// === Write path ===

func (s *Service) actor(ctx context.Context) (identity.Actor, error) {
	return s.identity.Current(ctx)
}

// ToggleLike likes or unlikes view as the current actor. It reports whether
// the actor likes the subject afterwards.
func (s *Service) ToggleLike(ctx context.Context, view mutation.Likeable) (bool, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return false, err
	}
	return s.coord.ToggleLike(ctx, view, a.ID)
}

// LikeState returns the guard state of the current actor's like on subject.
func (s *Service) LikeState(ctx context.Context, subject domain.Subject) mutation.State {
	a, err := s.actor(ctx)
	if err != nil {
		return mutation.Idle
	}
	return s.coord.State(mutation.OpLike, string(subject.Kind)+":"+subject.ID, a.ID)
}

// PostComment comments on a confession as the current actor.
func (s *Service) PostComment(ctx context.Context, confessionID, content string) (domain.Comment, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	return s.coord.PostComment(ctx, confessionID, a.ID, content)
}

// PostReply replies to a comment as the current actor.
func (s *Service) PostReply(ctx context.Context, commentID, content string) (domain.ChildComment, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return domain.ChildComment{}, err
	}
	return s.coord.PostReply(ctx, commentID, a.ID, content)
}

// PostConfession publishes a confession and restarts the feed.
func (s *Service) PostConfession(ctx context.Context, content string) (domain.Confession, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return domain.Confession{}, err
	}
	c, err := s.api.CreateConfession(ctx, a.ID, content)
	if err != nil {
		return domain.Confession{}, err
	}
	removed := s.cache.InvalidateKind(cache.KindFeed)
	s.log.LogInvalidation(string(cache.KindFeed), "", removed)
	s.feed.Reset()
	return c, nil
}

// Refine rewrites a draft before it is posted.
func (s *Service) Refine(ctx context.Context, target refine.Target, draft string) (string, error) {
	if s.refiner == nil {
		return "", ErrRefineUnavailable
	}
	return s.refiner.Refine(ctx, target, draft)
}

// === Invalidation ===

// InvalidateSubject drops the cached likes and entity of a liked subject.
func (s *Service) InvalidateSubject(subject domain.Subject) {
	removed := s.cache.Invalidate(cache.KindDetail, subject.ID)
	s.log.LogInvalidation(string(cache.KindDetail), subject.ID, removed)
}

// InvalidateComments drops the comments of one confession and the feed pages.
// Comments of other confessions stay cached.
func (s *Service) InvalidateComments(confessionID string) {
	removed := s.cache.Invalidate(cache.KindComments, confessionID)
	s.log.LogInvalidation(string(cache.KindComments), confessionID, removed)
	removed = s.cache.InvalidateKind(cache.KindFeed)
	s.log.LogInvalidation(string(cache.KindFeed), "", removed)
	s.comments.Reset(confessionID)
}

// InvalidateReplies drops the replies of one comment.
func (s *Service) InvalidateReplies(commentID string) {
	removed := s.cache.Invalidate(cache.KindReplies, commentID)
	s.log.LogInvalidation(string(cache.KindReplies), commentID, removed)
	s.replies.Reset(commentID)
}

// SwapLikes replaces the cached likes of subject for an optimistic update.
func (s *Service) SwapLikes(subject domain.Subject, likes []domain.Like) (restore func()) {
	return s.cache.Swap(cache.Key{Kind: cache.KindDetail, Scope: subject.ID, Cursor: cursorLikes}, likes)
}

// Reset drops every cached result and loaded page, e.g. for a new session.
func (s *Service) Reset() {
	if s.log.IsDebugEnabled() {
		s.log.Debug("session reset", "cached_entries", s.cache.Len())
	}
	s.cache.Clear()
	s.feed.Reset()
	s.comments.ResetAll()
	s.replies.ResetAll()
	if c, ok := s.api.(connectivity); ok {
		c.ResetConnectivity()
	}
}

// Close stops pending cooldown timers.
func (s *Service) Close() {
	s.coord.Close()
}
