// Package aggregate joins raw entities with their likes and children into
// view models. Every function here is pure: the same inputs always produce the
// same output and nothing is mutated.
package aggregate

import "github.com/UkralStul/confession-feed/internal/domain"

// Keys describes how to relate parents, likes and children.
type Keys[P, C any] struct {
	// ParentID returns the id the other collections point at.
	ParentID func(P) string
	// TargetKey returns the parent id a like points at, or "" when the like
	// does not target this parent kind.
	TargetKey func(domain.Like) string
	// ChildParent returns the parent id of a child. Nil when the parent kind
	// has no children.
	ChildParent func(C) string
}

// Joined is a parent with its matching likes and children.
type Joined[P, C any] struct {
	Parent   P
	Likes    []domain.Like
	Children []C
}

// Aggregate groups likes and children under their parents, preserving the
// order of every input collection. Likes or children with an empty or
// unmatched key are ignored.
func Aggregate[P, C any](parents []P, likes []domain.Like, children []C, keys Keys[P, C]) []Joined[P, C] {
	likesBy := make(map[string][]domain.Like)
	if keys.TargetKey != nil {
		for _, l := range likes {
			if k := keys.TargetKey(l); k != "" {
				likesBy[k] = append(likesBy[k], l)
			}
		}
	}

	childrenBy := make(map[string][]C)
	if keys.ChildParent != nil {
		for _, c := range children {
			if k := keys.ChildParent(c); k != "" {
				childrenBy[k] = append(childrenBy[k], c)
			}
		}
	}

	out := make([]Joined[P, C], 0, len(parents))
	for _, p := range parents {
		id := keys.ParentID(p)
		j := Joined[P, C]{Parent: p}
		if id != "" {
			j.Likes = clone(likesBy[id])
			j.Children = clone(childrenBy[id])
		}
		out = append(out, j)
	}
	return out
}

func clone[T any](in []T) []T {
	if len(in) == 0 {
		return []T{}
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// TargetKey returns an extractor selecting likes of the given subject kind.
func TargetKey(kind domain.SubjectKind) func(domain.Like) string {
	return func(l domain.Like) string {
		target, ok := l.Target()
		if !ok || target.Kind != kind {
			return ""
		}
		return target.ID
	}
}

var (
	confessionKeys = Keys[domain.Confession, domain.Comment]{
		ParentID:    func(c domain.Confession) string { return c.ID },
		TargetKey:   TargetKey(domain.SubjectConfession),
		ChildParent: func(c domain.Comment) string { return c.ConfessionID },
	}
	commentKeys = Keys[domain.Comment, domain.ChildComment]{
		ParentID:    func(c domain.Comment) string { return c.ID },
		TargetKey:   TargetKey(domain.SubjectComment),
		ChildParent: func(c domain.ChildComment) string { return c.CommentID },
	}
	replyKeys = Keys[domain.ChildComment, struct{}]{
		ParentID:  func(c domain.ChildComment) string { return c.ID },
		TargetKey: TargetKey(domain.SubjectChildComment),
	}
)

// Confessions builds feed and detail view models.
func Confessions(parents []domain.Confession, likes []domain.Like, comments []domain.Comment) []domain.ShowConfession {
	joined := Aggregate(parents, likes, comments, confessionKeys)
	out := make([]domain.ShowConfession, len(joined))
	for i, j := range joined {
		out[i] = domain.ShowConfession{
			Confession:    j.Parent,
			LikesCount:    len(j.Likes),
			CommentsCount: len(j.Children),
			Likes:         j.Likes,
			Comments:      j.Children,
		}
	}
	return out
}

// Comments builds comment view models.
func Comments(parents []domain.Comment, likes []domain.Like, replies []domain.ChildComment) []domain.ShowComment {
	joined := Aggregate(parents, likes, replies, commentKeys)
	out := make([]domain.ShowComment, len(joined))
	for i, j := range joined {
		out[i] = domain.ShowComment{
			Comment:      j.Parent,
			LikesCount:   len(j.Likes),
			RepliesCount: len(j.Children),
			Likes:        j.Likes,
			Replies:      j.Children,
		}
	}
	return out
}

// Replies builds reply view models.
func Replies(parents []domain.ChildComment, likes []domain.Like) []domain.ShowChildComment {
	joined := Aggregate(parents, likes, nil, replyKeys)
	out := make([]domain.ShowChildComment, len(joined))
	for i, j := range joined {
		out[i] = domain.ShowChildComment{
			ChildComment: j.Parent,
			LikesCount:   len(j.Likes),
			Likes:        j.Likes,
		}
	}
	return out
}
