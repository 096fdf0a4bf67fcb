// Package mutation serializes like toggles and post creation per
// (subject, actor) with an Idle -> Pending -> CoolingDown -> Idle guard.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/logging"
)

// State of one (operation, subject, actor) guard.
type State int

const (
	Idle State = iota
	Pending
	CoolingDown
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case CoolingDown:
		return "cooling_down"
	default:
		return "idle"
	}
}

// Op names a guarded mutation.
type Op string

const (
	OpLike    Op = "like"
	OpComment Op = "comment"
	OpReply   Op = "reply"
)

var (
	// ErrBusy is returned when a request arrives while its guard is not idle.
	// The request is dropped, never queued.
	ErrBusy = errors.New("mutation: already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mutation: coordinator closed")
)

// PendingPrefix marks optimistic like ids that the server has not confirmed.
const PendingPrefix = "pending-"

// Likeable is a view model that can be liked.
type Likeable interface {
	Subject() domain.Subject
	LikedBy(actorID string) (domain.Like, bool)
	LikeSet() []domain.Like
}

// LikeAPI performs like mutations on the server.
type LikeAPI interface {
	CreateLike(ctx context.Context, actorID string, subject domain.Subject) (domain.Like, error)
	DeleteLike(ctx context.Context, likeID, subjectID string) error
}

// PostAPI creates comments and replies on the server.
type PostAPI interface {
	CreateComment(ctx context.Context, confessionID, actorID, content string) (domain.Comment, error)
	CreateReply(ctx context.Context, commentID, actorID, content string) (domain.ChildComment, error)
}

// Invalidator drops cached state made stale by a mutation.
type Invalidator interface {
	InvalidateSubject(subject domain.Subject)
	InvalidateComments(confessionID string)
	InvalidateReplies(commentID string)
}

// LocalLikes applies an optimistic like set locally. restore undoes it.
type LocalLikes interface {
	SwapLikes(subject domain.Subject, likes []domain.Like) (restore func())
}

// Cooldowns are the settle delays per subject kind.
type Cooldowns struct {
	Confession   time.Duration
	Comment      time.Duration
	ChildComment time.Duration
	Post         time.Duration
}

// DefaultCooldowns settles reply likes faster than the others.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		Confession:   time.Second,
		Comment:      time.Second,
		ChildComment: 500 * time.Millisecond,
		Post:         time.Second,
	}
}

func (c Cooldowns) forLike(kind domain.SubjectKind) time.Duration {
	switch kind {
	case domain.SubjectChildComment:
		return c.ChildComment
	case domain.SubjectComment:
		return c.Comment
	default:
		return c.Confession
	}
}

// Config wires the coordinator. Local may be nil to skip optimistic updates.
type Config struct {
	Likes       LikeAPI
	Posts       PostAPI
	Invalidator Invalidator
	Local       LocalLikes
	Cooldowns   Cooldowns
	Logger      *logging.Logger
}

type guardKey struct {
	op      Op
	subject string
	actor   string
}

// Coordinator is safe for concurrent use. Different subjects never block
// each other.
type Coordinator struct {
	likes     LikeAPI
	posts     PostAPI
	inv       Invalidator
	local     LocalLikes
	cooldowns Cooldowns
	log       *logging.Logger

	mu     sync.Mutex
	states map[guardKey]State
	timers map[guardKey]*time.Timer
	closed bool
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Coordinator{
		likes:     cfg.Likes,
		posts:     cfg.Posts,
		inv:       cfg.Invalidator,
		local:     cfg.Local,
		cooldowns: cfg.Cooldowns,
		log:       log.WithComponent("mutation"),
		states:    make(map[guardKey]State),
		timers:    make(map[guardKey]*time.Timer),
	}
}

// State returns the guard state of (op, subjectID, actorID).
func (c *Coordinator) State(op Op, subjectID, actorID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[guardKey{op: op, subject: subjectID, actor: actorID}]
}

func (c *Coordinator) acquire(k guardKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.states[k] != Idle {
		return ErrBusy
	}
	c.states[k] = Pending
	return nil
}

// settle moves k to CoolingDown and schedules its return to Idle.
func (c *Coordinator) settle(k guardKey, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		delete(c.states, k)
		return
	}
	if delay <= 0 {
		delete(c.states, k)
		return
	}
	c.states[k] = CoolingDown
	c.timers[k] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.states, k)
		delete(c.timers, k)
	})
}

// ToggleLike likes view for actorID, or removes the actor's existing like.
// It returns whether the subject is liked by the actor afterwards.
// A view whose like by actorID is still an unconfirmed placeholder is
// rejected with ErrBusy; the caller has to read the subject again.
func (c *Coordinator) ToggleLike(ctx context.Context, view Likeable, actorID string) (bool, error) {
	subject := view.Subject()
	existing, liked := view.LikedBy(actorID)
	if liked && strings.HasPrefix(existing.ID, PendingPrefix) {
		return true, fmt.Errorf("%w: like on %s not confirmed yet", ErrBusy, subject.ID)
	}

	k := guardKey{op: OpLike, subject: string(subject.Kind) + ":" + subject.ID, actor: actorID}
	if err := c.acquire(k); err != nil {
		return false, err
	}
	start := time.Now()
	defer func() { c.settle(k, c.cooldowns.forLike(subject.Kind)) }()

	restore := c.applyLocal(view, subject, actorID, existing, liked)

	var err error
	if liked {
		err = c.likes.DeleteLike(ctx, existing.ID, subject.ID)
	} else {
		_, err = c.likes.CreateLike(ctx, actorID, subject)
	}
	c.log.LogMutation(string(OpLike), subject.ID, time.Since(start), err)
	if err != nil {
		restore()
		return liked, err
	}

	c.inv.InvalidateSubject(subject)
	return !liked, nil
}

// applyLocal swaps in the like set expected after the toggle.
func (c *Coordinator) applyLocal(view Likeable, subject domain.Subject, actorID string, existing domain.Like, liked bool) (restore func()) {
	if c.local == nil {
		return func() {}
	}
	current := view.LikeSet()
	var next []domain.Like
	if liked {
		next = slices.DeleteFunc(slices.Clone(current), func(l domain.Like) bool { return l.ID == existing.ID })
	} else {
		placeholder, err := domain.NewLike(actorID, subject)
		if err != nil {
			return func() {}
		}
		placeholder.ID = PendingPrefix + uuid.NewString()
		placeholder.CreatedAt = time.Now().UTC()
		next = append(slices.Clone(current), placeholder)
	}
	return c.local.SwapLikes(subject, next)
}

// PostComment creates a comment under confessionID.
func (c *Coordinator) PostComment(ctx context.Context, confessionID, actorID, content string) (domain.Comment, error) {
	k := guardKey{op: OpComment, subject: confessionID, actor: actorID}
	if err := c.acquire(k); err != nil {
		return domain.Comment{}, err
	}
	defer func() { c.settle(k, c.cooldowns.Post) }()

	start := time.Now()
	comment, err := c.posts.CreateComment(ctx, confessionID, actorID, content)
	c.log.LogMutation(string(OpComment), confessionID, time.Since(start), err)
	if err != nil {
		return domain.Comment{}, err
	}
	c.inv.InvalidateComments(confessionID)
	return comment, nil
}

// PostReply creates a reply under commentID.
func (c *Coordinator) PostReply(ctx context.Context, commentID, actorID, content string) (domain.ChildComment, error) {
	k := guardKey{op: OpReply, subject: commentID, actor: actorID}
	if err := c.acquire(k); err != nil {
		return domain.ChildComment{}, err
	}
	defer func() { c.settle(k, c.cooldowns.Post) }()

	start := time.Now()
	reply, err := c.posts.CreateReply(ctx, commentID, actorID, content)
	c.log.LogMutation(string(OpReply), commentID, time.Since(start), err)
	if err != nil {
		return domain.ChildComment{}, err
	}
	c.inv.InvalidateReplies(commentID)
	return reply, nil
}

// Close stops every cooldown timer. Later requests fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for k, t := range c.timers {
		t.Stop()
		delete(c.timers, k)
	}
	clear(c.states)
}
