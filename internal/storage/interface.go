package storage

import (
	"context"
	"errors"

	"github.com/UkralStul/confession-feed/internal/domain"
)

// PaginationArgs - cursor paging arguments. Cursor is the id of the last item
// of the previous page.
type PaginationArgs struct {
	Limit  int
	Cursor *string
}

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyLiked = errors.New("already liked")
	ErrTooLong      = errors.New("content is too long")
	ErrEmpty        = errors.New("content cannot be empty")
)

// MaxContentLength bounds confession, comment and reply text.
const MaxContentLength = 2000

// Storage is the contract of the backend stores.
type Storage interface {
	ListConfessions(ctx context.Context, args PaginationArgs) ([]*domain.Confession, error)
	GetConfession(ctx context.Context, id string) (*domain.Confession, error)
	CreateConfession(ctx context.Context, c *domain.Confession) (*domain.Confession, error)

	CreateComment(ctx context.Context, c *domain.Comment) (*domain.Comment, error)
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	ListComments(ctx context.Context, confessionID string, args PaginationArgs) ([]*domain.Comment, error)
	CommentsByConfessionIDs(ctx context.Context, confessionIDs []string) (map[string][]*domain.Comment, error)

	CreateChildComment(ctx context.Context, c *domain.ChildComment) (*domain.ChildComment, error)
	ListChildComments(ctx context.Context, commentID string, args PaginationArgs) ([]*domain.ChildComment, error)
	ChildCommentsByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.ChildComment, error)

	CreateLike(ctx context.Context, l *domain.Like) (*domain.Like, error)
	DeleteLike(ctx context.Context, id string) error
	LikesBySubjects(ctx context.Context, kind domain.SubjectKind, ids []string) (map[string][]*domain.Like, error)

	ListUsers(ctx context.Context) ([]*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error)
}
