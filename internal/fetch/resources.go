package fetch

import (
	"context"
	"net/http"
	"net/url"

	"github.com/UkralStul/confession-feed/internal/domain"
)

type contentRequest struct {
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
}

// === Confessions ===

func (c *Client) ListConfessions(ctx context.Context, cursor *string) (domain.Page[domain.Confession], error) {
	var page domain.Page[domain.Confession]
	err := c.read(ctx, "/confessions", listQuery(cursor, c.pageSize), &page)
	return page, err
}

func (c *Client) GetConfession(ctx context.Context, id string) (domain.Confession, error) {
	var out domain.Confession
	err := c.read(ctx, resourcePath("confessions", id), nil, &out)
	return out, err
}

func (c *Client) CreateConfession(ctx context.Context, actorID, content string) (domain.Confession, error) {
	var out domain.Confession
	err := c.do(ctx, http.MethodPost, "/confessions", nil, contentRequest{AuthorID: actorID, Content: content}, &out)
	return out, err
}

// === Comments ===

func (c *Client) ListComments(ctx context.Context, confessionID string, cursor *string) (domain.Page[domain.Comment], error) {
	var page domain.Page[domain.Comment]
	err := c.read(ctx, resourcePath("confessions", confessionID, "comments"), listQuery(cursor, c.pageSize), &page)
	return page, err
}

// CommentsByConfessions returns every comment of each confession, keyed by confession id.
func (c *Client) CommentsByConfessions(ctx context.Context, confessionIDs []string) (map[string][]domain.Comment, error) {
	items, err := readItems[domain.Comment](ctx, c, "/comments", idsQuery("confession_id", confessionIDs))
	if err != nil {
		return nil, err
	}
	return groupBy(items, confessionIDs, func(cm domain.Comment) string { return cm.ConfessionID }), nil
}

func (c *Client) CreateComment(ctx context.Context, confessionID, actorID, content string) (domain.Comment, error) {
	var out domain.Comment
	err := c.do(ctx, http.MethodPost, resourcePath("confessions", confessionID, "comments"), nil,
		contentRequest{AuthorID: actorID, Content: content}, &out)
	return out, err
}

// === Replies ===

func (c *Client) ListReplies(ctx context.Context, commentID string, cursor *string) (domain.Page[domain.ChildComment], error) {
	var page domain.Page[domain.ChildComment]
	err := c.read(ctx, resourcePath("comments", commentID, "replies"), listQuery(cursor, c.replyPageSize), &page)
	return page, err
}

// RepliesByComments returns every reply of each comment, keyed by comment id.
func (c *Client) RepliesByComments(ctx context.Context, commentIDs []string) (map[string][]domain.ChildComment, error) {
	items, err := readItems[domain.ChildComment](ctx, c, "/replies", idsQuery("comment_id", commentIDs))
	if err != nil {
		return nil, err
	}
	return groupBy(items, commentIDs, func(r domain.ChildComment) string { return r.CommentID }), nil
}

func (c *Client) CreateReply(ctx context.Context, commentID, actorID, content string) (domain.ChildComment, error) {
	var out domain.ChildComment
	err := c.do(ctx, http.MethodPost, resourcePath("comments", commentID, "replies"), nil,
		contentRequest{AuthorID: actorID, Content: content}, &out)
	return out, err
}

// === Likes ===

// LikesBySubjects returns the likes of each subject of one kind, keyed by subject id.
func (c *Client) LikesBySubjects(ctx context.Context, kind domain.SubjectKind, ids []string) (map[string][]domain.Like, error) {
	param := kind.QueryParam()
	if param == "" {
		return nil, wrap("list likes", domain.ErrUnknownSubjectKind)
	}
	items, err := readItems[domain.Like](ctx, c, "/likes", idsQuery(param, ids))
	if err != nil {
		return nil, err
	}
	return groupBy(items, ids, func(l domain.Like) string {
		target, ok := l.Target()
		if !ok || target.Kind != kind {
			return ""
		}
		return target.ID
	}), nil
}

// CreateLike likes subject on behalf of actorID.
func (c *Client) CreateLike(ctx context.Context, actorID string, subject domain.Subject) (domain.Like, error) {
	like, err := domain.NewLike(actorID, subject)
	if err != nil {
		return domain.Like{}, wrap("create like", err)
	}
	var out domain.Like
	err = c.do(ctx, http.MethodPost, "/likes", nil, like, &out)
	return out, err
}

// DeleteLike removes one like by id. subjectID travels along so the server
// and the caller can scope the change.
func (c *Client) DeleteLike(ctx context.Context, likeID, subjectID string) error {
	q := url.Values{}
	q.Set("subject_id", subjectID)
	return c.do(ctx, http.MethodDelete, resourcePath("likes", likeID), q, nil, nil)
}

// === Users ===

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	return readItems[domain.User](ctx, c, "/users", nil)
}

func (c *Client) GetUser(ctx context.Context, id string) (domain.User, error) {
	var out domain.User
	err := c.read(ctx, resourcePath("users", id), nil, &out)
	return out, err
}
