// Package dataloader coalesces per-subject child lookups issued in the same
// tick into one batched request.
package dataloader

import (
	"context"
	"fmt"
	"time"

	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/graph-gophers/dataloader"
)

// Source answers batched child lookups.
type Source interface {
	LikesBySubjects(ctx context.Context, kind domain.SubjectKind, ids []string) (map[string][]domain.Like, error)
	CommentsByConfessions(ctx context.Context, confessionIDs []string) (map[string][]domain.Comment, error)
	RepliesByComments(ctx context.Context, commentIDs []string) (map[string][]domain.ChildComment, error)
}

// Loaders holds one batched loader per child relation. Results are not
// memoized here; caching is done by the caller.
type Loaders struct {
	likes    map[domain.SubjectKind]*dataloader.Loader
	comments *dataloader.Loader
	replies  *dataloader.Loader
}

// DefaultWait is how long a loader collects keys before dispatching.
const DefaultWait = 2 * time.Millisecond

// New creates the loaders over src.
func New(src Source, wait time.Duration) *Loaders {
	if wait <= 0 {
		wait = DefaultWait
	}
	newLoader := func(fn dataloader.BatchFunc) *dataloader.Loader {
		return dataloader.NewBatchedLoader(fn,
			dataloader.WithWait(wait),
			dataloader.WithCache(&dataloader.NoCache{}),
		)
	}

	l := &Loaders{likes: make(map[domain.SubjectKind]*dataloader.Loader, 3)}
	for _, kind := range []domain.SubjectKind{domain.SubjectConfession, domain.SubjectComment, domain.SubjectChildComment} {
		kind := kind
		l.likes[kind] = newLoader(batch(func(ctx context.Context, ids []string) (map[string][]domain.Like, error) {
			return src.LikesBySubjects(ctx, kind, ids)
		}))
	}
	l.comments = newLoader(batch(src.CommentsByConfessions))
	l.replies = newLoader(batch(src.RepliesByComments))
	return l
}

// batch adapts a keyed lookup to a dataloader batch function. Results are
// returned in key order and an error fails every key of the batch.
func batch[T any](lookup func(ctx context.Context, ids []string) (map[string][]T, error)) dataloader.BatchFunc {
	return func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := unique(keys.Keys())

		byParent, err := lookup(ctx, ids)
		results := make([]*dataloader.Result, len(keys))
		for i, key := range keys {
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			items := byParent[key.String()]
			if items == nil {
				items = []T{}
			}
			results[i] = &dataloader.Result{Data: items}
		}
		return results
	}
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func load[T any](ctx context.Context, l *dataloader.Loader, id string) ([]T, error) {
	thunk := l.Load(ctx, dataloader.StringKey(id))
	data, err := thunk()
	if err != nil {
		return nil, err
	}
	items, ok := data.([]T)
	if !ok {
		return nil, fmt.Errorf("dataloader: unexpected result %T", data)
	}
	return items, nil
}

// Likes returns the likes of one subject.
func (l *Loaders) Likes(ctx context.Context, subject domain.Subject) ([]domain.Like, error) {
	loader, ok := l.likes[subject.Kind]
	if !ok {
		return nil, domain.ErrUnknownSubjectKind
	}
	return load[domain.Like](ctx, loader, subject.ID)
}

// Comments returns every comment of a confession.
func (l *Loaders) Comments(ctx context.Context, confessionID string) ([]domain.Comment, error) {
	return load[domain.Comment](ctx, l.comments, confessionID)
}

// Replies returns every reply of a comment.
func (l *Loaders) Replies(ctx context.Context, commentID string) ([]domain.ChildComment, error) {
	return load[domain.ChildComment](ctx, l.replies, commentID)
}
