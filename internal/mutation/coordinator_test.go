package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UkralStul/confession-feed/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	creates  atomic.Int32
	deleted  []string
	err      error
	block    chan struct{}
	comments int
}

func (f *fakeAPI) CreateLike(ctx context.Context, actorID string, subject domain.Subject) (domain.Like, error) {
	f.creates.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return domain.Like{}, f.err
	}
	l, _ := domain.NewLike(actorID, subject)
	l.ID = "server-like"
	return l, nil
}

func (f *fakeAPI) DeleteLike(ctx context.Context, likeID, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, likeID+"@"+subjectID)
	return f.err
}

func (f *fakeAPI) CreateComment(ctx context.Context, confessionID, actorID, content string) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments++
	return domain.Comment{ID: "cm", ConfessionID: confessionID, AuthorID: actorID, Content: content}, f.err
}

func (f *fakeAPI) CreateReply(ctx context.Context, commentID, actorID, content string) (domain.ChildComment, error) {
	return domain.ChildComment{ID: "r", CommentID: commentID, AuthorID: actorID, Content: content}, f.err
}

type recorder struct {
	mu       sync.Mutex
	subjects []domain.Subject
	comments []string
	replies  []string
	swaps    [][]domain.Like
	restored int
}

func (r *recorder) InvalidateSubject(s domain.Subject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, s)
}

func (r *recorder) InvalidateComments(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = append(r.comments, id)
}

func (r *recorder) InvalidateReplies(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, id)
}

func (r *recorder) SwapLikes(_ domain.Subject, likes []domain.Like) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps = append(r.swaps, likes)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.restored++
	}
}

func newTestCoordinator(api *fakeAPI, rec *recorder, cd Cooldowns) *Coordinator {
	return New(Config{Likes: api, Posts: api, Invalidator: rec, Local: rec, Cooldowns: cd})
}

func confessionView(id string, likes ...domain.Like) domain.ShowConfession {
	return domain.ShowConfession{Confession: domain.Confession{ID: id}, Likes: likes, LikesCount: len(likes)}
}

func TestToggleLike_RapidTogglesProduceOneMutation(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	rec := &recorder{}
	c := newTestCoordinator(api, rec, Cooldowns{Confession: time.Hour})
	defer c.Close()

	view := confessionView("c1")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.ToggleLike(ctx, view, "u1")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State(OpLike, "confession:c1", "u1") == Pending }, time.Second, time.Millisecond)

	for i := 0; i < 10; i++ {
		_, err := c.ToggleLike(ctx, view, "u1")
		assert.ErrorIs(t, err, ErrBusy)
	}
	close(api.block)
	require.NoError(t, <-done)

	// Cooling down still drops requests.
	_, err := c.ToggleLike(ctx, view, "u1")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, CoolingDown, c.State(OpLike, "confession:c1", "u1"))
	assert.Equal(t, int32(1), api.creates.Load())

	// Another actor is independent.
	_, err = c.ToggleLike(ctx, view, "u2")
	assert.NoError(t, err)
}

func TestToggleLike_UnlikeDeletesActorsLike(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	c := newTestCoordinator(api, rec, Cooldowns{})
	defer c.Close()

	mine, _ := domain.NewLike("u1", domain.Subject{Kind: domain.SubjectConfession, ID: "c1"})
	mine.ID = "like-u1"
	other, _ := domain.NewLike("u2", domain.Subject{Kind: domain.SubjectConfession, ID: "c1"})
	other.ID = "like-u2"

	liked, err := c.ToggleLike(context.Background(), confessionView("c1", other, mine), "u1")
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, []string{"like-u1@c1"}, api.deleted)
	assert.Zero(t, api.creates.Load())

	require.Len(t, rec.swaps, 1)
	require.Len(t, rec.swaps[0], 1)
	assert.Equal(t, "like-u2", rec.swaps[0][0].ID)
	assert.Equal(t, []domain.Subject{{Kind: domain.SubjectConfession, ID: "c1"}}, rec.subjects)
	assert.Equal(t, Idle, c.State(OpLike, "confession:c1", "u1"))
}

func TestToggleLike_OptimisticPlaceholder(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	c := newTestCoordinator(api, rec, Cooldowns{})
	defer c.Close()

	view := domain.ShowChildComment{ChildComment: domain.ChildComment{ID: "r1"}}
	liked, err := c.ToggleLike(context.Background(), view, "u1")
	require.NoError(t, err)
	assert.True(t, liked)

	require.Len(t, rec.swaps, 1)
	require.Len(t, rec.swaps[0], 1)
	placeholder := rec.swaps[0][0]
	assert.True(t, strings.HasPrefix(placeholder.ID, PendingPrefix))
	target, ok := placeholder.Target()
	require.True(t, ok)
	assert.Equal(t, domain.Subject{Kind: domain.SubjectChildComment, ID: "r1"}, target)
	assert.Zero(t, rec.restored)
}

func TestToggleLike_PlaceholderLikeIsNotDeleted(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	c := newTestCoordinator(api, rec, Cooldowns{})
	defer c.Close()

	placeholder, _ := domain.NewLike("u1", domain.Subject{Kind: domain.SubjectConfession, ID: "c1"})
	placeholder.ID = PendingPrefix + "1234"

	liked, err := c.ToggleLike(context.Background(), confessionView("c1", placeholder), "u1")
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, liked)
	assert.Empty(t, api.deleted)
	assert.Empty(t, rec.swaps)
	assert.Equal(t, Idle, c.State(OpLike, "confession:c1", "u1"))
}

func TestToggleLike_FailureRollsBackAndCoolsDown(t *testing.T) {
	boom := errors.New("boom")
	api := &fakeAPI{err: boom}
	rec := &recorder{}
	c := newTestCoordinator(api, rec, Cooldowns{Comment: 20 * time.Millisecond})
	defer c.Close()

	view := domain.ShowComment{Comment: domain.Comment{ID: "cm1"}}
	_, err := c.ToggleLike(context.Background(), view, "u1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.restored)
	assert.Empty(t, rec.subjects)
	assert.Equal(t, CoolingDown, c.State(OpLike, "comment:cm1", "u1"))

	require.Eventually(t, func() bool { return c.State(OpLike, "comment:cm1", "u1") == Idle }, time.Second, 5*time.Millisecond)
}

func TestCooldowns_ReplyLikesSettleFaster(t *testing.T) {
	cd := DefaultCooldowns()
	assert.Less(t, cd.forLike(domain.SubjectChildComment), cd.forLike(domain.SubjectComment))
	assert.Equal(t, cd.Confession, cd.forLike(domain.SubjectConfession))
}

func TestPostComment_GuardAndInvalidation(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	c := newTestCoordinator(api, rec, Cooldowns{Post: time.Hour})
	defer c.Close()
	ctx := context.Background()

	cm, err := c.PostComment(ctx, "c1", "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "c1", cm.ConfessionID)
	assert.Equal(t, []string{"c1"}, rec.comments)

	_, err = c.PostComment(ctx, "c1", "u1", "again")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, api.comments)

	_, err = c.PostComment(ctx, "c2", "u1", "elsewhere")
	assert.NoError(t, err)

	r, err := c.PostReply(ctx, "cm1", "u1", "reply")
	require.NoError(t, err)
	assert.Equal(t, "cm1", r.CommentID)
	assert.Equal(t, []string{"cm1"}, rec.replies)
	assert.Empty(t, rec.subjects)
}

func TestClose(t *testing.T) {
	api := &fakeAPI{}
	c := newTestCoordinator(api, &recorder{}, Cooldowns{Confession: time.Hour})

	_, err := c.ToggleLike(context.Background(), confessionView("c1"), "u1")
	require.NoError(t, err)
	c.Close()

	assert.Equal(t, Idle, c.State(OpLike, "confession:c1", "u1"))
	_, err = c.ToggleLike(context.Background(), confessionView("c1"), "u1")
	assert.ErrorIs(t, err, ErrClosed)
}
