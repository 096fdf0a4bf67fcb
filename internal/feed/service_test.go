package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/confession-feed/internal/api"
	"github.com/UkralStul/confession-feed/internal/config"
	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/fetch"
	"github.com/UkralStul/confession-feed/internal/identity"
	"github.com/UkralStul/confession-feed/internal/logging"
	"github.com/UkralStul/confession-feed/internal/mutation"
	"github.com/UkralStul/confession-feed/internal/refine"
	"github.com/UkralStul/confession-feed/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAPI counts list calls and can fail like creation.
type countingAPI struct {
	*fetch.Client

	mu        sync.Mutex
	calls     map[string]int
	failLikes error
	// holdComments, when set, makes the next ListComments call read its page
	// and then wait on the channel before returning.
	holdComments chan struct{}
	heldComments chan struct{}
}

// holdNextComments arms the hold and returns a channel closed once the held
// call has read its page.
func (c *countingAPI) holdNextComments(release chan struct{}) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdComments = release
	c.heldComments = make(chan struct{})
	return c.heldComments
}

func (c *countingAPI) count(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key]++
}

func (c *countingAPI) Calls(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func (c *countingAPI) ListConfessions(ctx context.Context, cursor *string) (domain.Page[domain.Confession], error) {
	c.count("feed")
	return c.Client.ListConfessions(ctx, cursor)
}

func (c *countingAPI) ListComments(ctx context.Context, confessionID string, cursor *string) (domain.Page[domain.Comment], error) {
	c.count("comments:" + confessionID)
	c.mu.Lock()
	release, held := c.holdComments, c.heldComments
	c.holdComments, c.heldComments = nil, nil
	c.mu.Unlock()

	page, err := c.Client.ListComments(ctx, confessionID, cursor)
	if release != nil {
		close(held)
		<-release
	}
	return page, err
}

func (c *countingAPI) CreateLike(ctx context.Context, actorID string, subject domain.Subject) (domain.Like, error) {
	if c.failLikes != nil {
		return domain.Like{}, c.failLikes
	}
	return c.Client.CreateLike(ctx, actorID, subject)
}

type fixture struct {
	store   *inmemory.Store
	api     *countingAPI
	service *Service
}

var quickCooldowns = mutation.Cooldowns{
	Confession:   5 * time.Millisecond,
	Comment:      5 * time.Millisecond,
	ChildComment: time.Millisecond,
	Post:         5 * time.Millisecond,
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCooldowns(t, quickCooldowns)
}

func newFixtureWithCooldowns(t *testing.T, cooldowns mutation.Cooldowns) *fixture {
	store := inmemory.New()
	srv := httptest.NewServer(api.New(store).Routes())
	t.Cleanup(srv.Close)

	client := &countingAPI{
		Client: fetch.New(fetch.Config{BaseURL: srv.URL, PageSize: 10, ReplyPageSize: 5}),
		calls:  make(map[string]int),
	}
	service, err := New(client, Options{
		Identity:  identity.Static{ID: "U", DisplayName: "Quiet Fox"},
		Cooldowns: cooldowns,
	})
	require.NoError(t, err)
	t.Cleanup(service.Close)
	return &fixture{store: store, api: client, service: service}
}

func (f *fixture) confession(t *testing.T, likes int) *domain.Confession {
	ctx := context.Background()
	c, err := f.store.CreateConfession(ctx, &domain.Confession{AuthorID: "author", Content: "secret"})
	require.NoError(t, err)
	for i := 0; i < likes; i++ {
		l, err := domain.NewLike(fmt.Sprintf("actor-%d", i), domain.Subject{Kind: domain.SubjectConfession, ID: c.ID})
		require.NoError(t, err)
		_, err = f.store.CreateLike(ctx, &l)
		require.NoError(t, err)
	}
	return c
}

func find(t *testing.T, views []domain.ShowConfession, id string) domain.ShowConfession {
	for _, v := range views {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("confession %s not in feed", id)
	return domain.ShowConfession{}
}

func (f *fixture) waitIdle(t *testing.T, subject domain.Subject) {
	require.Eventually(t, func() bool {
		return f.service.LikeState(context.Background(), subject) == mutation.Idle
	}, time.Second, time.Millisecond)
}

func TestFeed_LikeUpdatesCountAndLikers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	one := f.confession(t, 3)
	two := f.confession(t, 5)

	views, err := f.service.FeedView(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 3, find(t, views, one.ID).LikesCount)
	target := find(t, views, two.ID)
	assert.Equal(t, 5, target.LikesCount)

	liked, err := f.service.ToggleLike(ctx, target)
	require.NoError(t, err)
	assert.True(t, liked)

	views, err = f.service.FeedView(ctx)
	require.NoError(t, err)
	updated := find(t, views, two.ID)
	assert.Equal(t, 6, updated.LikesCount)
	mine, ok := updated.LikedBy("U")
	require.True(t, ok)
	assert.NotContains(t, mine.ID, mutation.PendingPrefix)
	assert.Equal(t, 3, find(t, views, one.ID).LikesCount)

	// The feed pages themselves were served from cache.
	assert.Equal(t, 1, f.api.Calls("feed"))
}

func TestFeed_UnlikeDeletesOwnLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.confession(t, 2)
	subject := domain.Subject{Kind: domain.SubjectConfession, ID: c.ID}

	view, err := f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.service.ToggleLike(ctx, view)
	require.NoError(t, err)
	f.waitIdle(t, subject)

	view, err = f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, view.LikesCount)

	liked, err := f.service.ToggleLike(ctx, view)
	require.NoError(t, err)
	assert.False(t, liked)

	view, err = f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.LikesCount)
	_, ok := view.LikedBy("U")
	assert.False(t, ok)
	for _, l := range view.Likes {
		assert.NotEqual(t, "U", l.ActorID)
	}
}

func TestFeed_RapidTogglesAreDropped(t *testing.T) {
	f := newFixtureWithCooldowns(t, mutation.DefaultCooldowns())
	ctx := context.Background()
	c := f.confession(t, 0)

	view, err := f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.service.ToggleLike(ctx, view)
	require.NoError(t, err)
	_, err = f.service.ToggleLike(ctx, view)
	assert.ErrorIs(t, err, mutation.ErrBusy)

	likes, err := f.store.LikesBySubjects(ctx, domain.SubjectConfession, []string{c.ID})
	require.NoError(t, err)
	assert.Len(t, likes[c.ID], 1)
}

func TestFeed_FailedLikeRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.confession(t, 1)
	f.api.failLikes = &fetch.Error{Kind: fetch.KindServer, Status: 500, Message: "nope"}

	view, err := f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.service.ToggleLike(ctx, view)
	assert.Equal(t, fetch.KindServer, fetch.KindOf(err))

	view, err = f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.LikesCount)
	_, ok := view.LikedBy("U")
	assert.False(t, ok)
	f.waitIdle(t, domain.Subject{Kind: domain.SubjectConfession, ID: c.ID})
}

func TestFeed_CommentInvalidationIsScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.confession(t, 0)
	y := f.confession(t, 0)
	_, err := f.store.CreateComment(ctx, &domain.Comment{ConfessionID: y.ID, AuthorID: "author", Content: "on y"})
	require.NoError(t, err)

	_, err = f.service.CommentsView(ctx, x.ID)
	require.NoError(t, err)
	yComments, err := f.service.CommentsView(ctx, y.ID)
	require.NoError(t, err)
	require.Len(t, yComments, 1)
	views, err := f.service.FeedView(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, find(t, views, x.ID).CommentsCount)

	_, err = f.service.PostComment(ctx, x.ID, "first!")
	require.NoError(t, err)

	xComments, err := f.service.CommentsView(ctx, x.ID)
	require.NoError(t, err)
	require.Len(t, xComments, 1)
	assert.Equal(t, "U", xComments[0].AuthorID)
	assert.Equal(t, 2, f.api.Calls("comments:"+x.ID))

	_, err = f.service.CommentsView(ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.api.Calls("comments:"+y.ID))

	views, err = f.service.FeedView(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, find(t, views, x.ID).CommentsCount)
	assert.Equal(t, 1, find(t, views, y.ID).CommentsCount)
}

func TestFeed_RepliesOrderedByLikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.confession(t, 0)
	cm, err := f.store.CreateComment(ctx, &domain.Comment{ConfessionID: c.ID, AuthorID: "author", Content: "parent"})
	require.NoError(t, err)

	var replies []*domain.ChildComment
	for i := 0; i < 3; i++ {
		r, err := f.store.CreateChildComment(ctx, &domain.ChildComment{CommentID: cm.ID, AuthorID: "author", Content: "reply"})
		require.NoError(t, err)
		replies = append(replies, r)
	}
	for i := 0; i < 2; i++ {
		l, _ := domain.NewLike(fmt.Sprintf("actor-%d", i), domain.Subject{Kind: domain.SubjectChildComment, ID: replies[2].ID})
		_, err := f.store.CreateLike(ctx, &l)
		require.NoError(t, err)
	}

	views, err := f.service.RepliesView(ctx, cm.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, replies[2].ID, views[0].ID)
	assert.Equal(t, 2, views[0].LikesCount)
	// Same-day replies keep fetch order.
	assert.Equal(t, replies[0].ID, views[1].ID)
	assert.Equal(t, replies[1].ID, views[2].ID)

	comments, err := f.service.CommentsView(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, 3, comments[0].RepliesCount)

	_, err = f.service.PostReply(ctx, cm.ID, "me too")
	require.NoError(t, err)
	views, err = f.service.RepliesView(ctx, cm.ID)
	require.NoError(t, err)
	assert.Len(t, views, 4)
}

func TestFeed_PaginationAndAuthors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.UpsertUser(ctx, &domain.User{ID: "author", DisplayName: "Night Owl"})
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		f.confession(t, 0)
	}

	views, err := f.service.FeedView(ctx)
	require.NoError(t, err)
	require.Len(t, views, 10)
	require.NotNil(t, views[0].Author)
	assert.Equal(t, "Night Owl", views[0].Author.DisplayName)
	assert.True(t, f.service.FeedHasMore())

	added, err := f.service.LoadMoreFeed(ctx)
	require.NoError(t, err)
	assert.True(t, added)
	views, err = f.service.FeedView(ctx)
	require.NoError(t, err)
	assert.Len(t, views, 12)
	assert.False(t, f.service.FeedHasMore())

	added, err = f.service.LoadMoreFeed(ctx)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestFeed_PostConfessionAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confession(t, 0)

	_, err := f.service.FeedView(ctx)
	require.NoError(t, err)

	_, err = f.service.PostConfession(ctx, "I water the office plant with coffee")
	require.NoError(t, err)
	views, err := f.service.FeedView(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "I water the office plant with coffee", views[0].Content)
	assert.Equal(t, 2, f.api.Calls("feed"))

	f.service.Reset()
	_, err = f.service.FeedView(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.api.Calls("feed"))
}

func TestFeed_ResetLogsAtDebugOnly(t *testing.T) {
	for _, level := range []string{"debug", "info"} {
		t.Run(level, func(t *testing.T) {
			store := inmemory.New()
			srv := httptest.NewServer(api.New(store).Routes())
			t.Cleanup(srv.Close)
			_, err := store.CreateConfession(context.Background(), &domain.Confession{AuthorID: "author", Content: "secret"})
			require.NoError(t, err)

			var buf bytes.Buffer
			service, err := New(fetch.New(fetch.Config{BaseURL: srv.URL}), Options{
				Logger: logging.NewWithWriter(config.Logging{Level: level}, &buf),
			})
			require.NoError(t, err)
			t.Cleanup(service.Close)

			_, err = service.FeedView(context.Background())
			require.NoError(t, err)
			service.Reset()

			if level == "debug" {
				assert.Contains(t, buf.String(), "session reset")
				assert.Contains(t, buf.String(), "cached_entries=")
			} else {
				assert.NotContains(t, buf.String(), "session reset")
			}
		})
	}
}

func TestFeed_RefineUnavailable(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Refine(context.Background(), refine.TargetComment, "draft")
	assert.True(t, errors.Is(err, ErrRefineUnavailable))
}

func TestFeed_ToggleBySubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.confession(t, 0)
	cm, err := f.store.CreateComment(ctx, &domain.Comment{ConfessionID: c.ID, AuthorID: "author", Content: "parent"})
	require.NoError(t, err)
	subject := domain.Subject{Kind: domain.SubjectComment, ID: cm.ID}

	view, err := f.service.SubjectLikes(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, view.Likes)

	liked, err := f.service.ToggleLike(ctx, view)
	require.NoError(t, err)
	assert.True(t, liked)

	comments, err := f.service.CommentsView(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, 1, comments[0].LikesCount)
	_, ok := comments[0].LikedBy("U")
	assert.True(t, ok)
}

func TestFeed_CommentPostedDuringInFlightReadIsVisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.confession(t, 0)

	release := make(chan struct{})
	held := f.api.holdNextComments(release)

	stale := make(chan error, 1)
	go func() {
		_, err := f.service.CommentsView(ctx, c.ID)
		stale <- err
	}()
	<-held

	posted, err := f.service.PostComment(ctx, c.ID, "I knew all along")
	require.NoError(t, err)

	views, err := f.service.CommentsView(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, posted.ID, views[0].ID)

	close(release)
	require.NoError(t, <-stale)

	views, err = f.service.CommentsView(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, views, 1, "the stale page must not replace the fresh one")
	assert.Equal(t, posted.ID, views[0].ID)

	detail, err := f.service.ConfessionDetail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.CommentsCount)
}
