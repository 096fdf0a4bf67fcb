package domain

import (
	"errors"
	"time"
)

// Confession is a top-level anonymous post in the feed.
type Confession struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	AuthorID  string    `json:"authorId" gorm:"type:varchar(255);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now();index"`
}

// Comment belongs to exactly one confession.
type Comment struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ConfessionID string    `json:"confessionId" gorm:"type:uuid;not null;index"`
	AuthorID     string    `json:"authorId" gorm:"type:varchar(255);not null"`
	Content      string    `json:"content" gorm:"type:varchar(2000);not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// ChildComment is a reply to a comment.
type ChildComment struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CommentID string    `json:"commentId" gorm:"type:uuid;not null;index"`
	AuthorID  string    `json:"authorId" gorm:"type:varchar(255);not null"`
	Content   string    `json:"content" gorm:"type:varchar(2000);not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Like targets exactly one of a confession, a comment or a child comment.
type Like struct {
	ID             string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ActorID        string    `json:"actorId" gorm:"type:varchar(255);not null;index"`
	ConfessionID   *string   `json:"confessionId,omitempty" gorm:"type:uuid;index"`
	CommentID      *string   `json:"commentId,omitempty" gorm:"type:uuid;index"`
	ChildCommentID *string   `json:"childCommentId,omitempty" gorm:"type:uuid;index"`
	CreatedAt      time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// User is an entry of the user directory.
type User struct {
	ID          string `json:"id" gorm:"type:varchar(255);primary_key"`
	DisplayName string `json:"displayName" gorm:"type:varchar(255);not null"`
}

// SubjectKind names what a like points at.
type SubjectKind string

const (
	SubjectConfession   SubjectKind = "confession"
	SubjectComment      SubjectKind = "comment"
	SubjectChildComment SubjectKind = "child_comment"
)

// Subject identifies a likeable entity.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

var (
	ErrNoLikeTarget        = errors.New("like has no target")
	ErrMultipleLikeTargets = errors.New("like has more than one target")
	ErrUnknownSubjectKind  = errors.New("unknown subject kind")
)

// NewLike builds a like that points at subject.
func NewLike(actorID string, subject Subject) (Like, error) {
	l := Like{ActorID: actorID}
	id := subject.ID
	switch subject.Kind {
	case SubjectConfession:
		l.ConfessionID = &id
	case SubjectComment:
		l.CommentID = &id
	case SubjectChildComment:
		l.ChildCommentID = &id
	default:
		return Like{}, ErrUnknownSubjectKind
	}
	return l, nil
}

// Validate enforces the single-target rule.
func (l Like) Validate() error {
	n := 0
	for _, p := range []*string{l.ConfessionID, l.CommentID, l.ChildCommentID} {
		if p != nil && *p != "" {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrNoLikeTarget
	case n > 1:
		return ErrMultipleLikeTargets
	}
	return nil
}

// Target returns the subject of the like. ok is false for malformed likes.
func (l Like) Target() (Subject, bool) {
	if l.Validate() != nil {
		return Subject{}, false
	}
	switch {
	case l.ConfessionID != nil && *l.ConfessionID != "":
		return Subject{Kind: SubjectConfession, ID: *l.ConfessionID}, true
	case l.CommentID != nil && *l.CommentID != "":
		return Subject{Kind: SubjectComment, ID: *l.CommentID}, true
	default:
		return Subject{Kind: SubjectChildComment, ID: *l.ChildCommentID}, true
	}
}

// Page is one slice of a cursor-paginated collection.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// HasNext reports whether another page follows.
func (p Page[T]) HasNext() bool {
	return p.NextCursor != nil && *p.NextCursor != ""
}

// QueryParam is the HTTP query parameter that filters likes by this kind.
func (k SubjectKind) QueryParam() string {
	switch k {
	case SubjectConfession:
		return "confession_id"
	case SubjectComment:
		return "comment_id"
	case SubjectChildComment:
		return "child_comment_id"
	}
	return ""
}
