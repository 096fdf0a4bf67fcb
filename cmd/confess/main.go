// Command confess is a terminal client for the confession feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/UkralStul/confession-feed/internal/cache"
	"github.com/UkralStul/confession-feed/internal/config"
	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/feed"
	"github.com/UkralStul/confession-feed/internal/fetch"
	"github.com/UkralStul/confession-feed/internal/identity"
	"github.com/UkralStul/confession-feed/internal/kv"
	"github.com/UkralStul/confession-feed/internal/logging"
	"github.com/UkralStul/confession-feed/internal/mutation"
	"github.com/UkralStul/confession-feed/internal/refine"
	"github.com/UkralStul/confession-feed/internal/session"
)

const usage = `usage: confess [flags] <command> [args]

commands:
  feed                          list the feed (use -pages to load more)
  show <confession-id>          show a confession and its comments
  replies <comment-id>          show the replies of a comment
  like <kind> <id>              toggle a like (kind: confession, comment, child_comment)
  post <text>                   publish a confession
  comment <confession-id> <text>
  reply <comment-id> <text>
  new-session                   drop local state and start a new session
`

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	actorID := flag.String("actor", "anonymous", "Actor id to act as")
	pages := flag.Int("pages", 1, "Number of pages to load")
	useRefine := flag.Bool("refine", false, "Refine text with Gemini before posting")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *actorID, *pages, *useRefine, flag.Args()); err != nil {
		if msg := fetch.UserMessage(err); msg != "" && fetch.KindOf(err) != fetch.KindUnknown {
			fmt.Fprintln(os.Stderr, msg)
		} else if !fetch.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, actorID string, pages int, useRefine bool, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	client := fetch.New(fetch.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		PageSize:      cfg.Feed.PageSize,
		ReplyPageSize: cfg.Feed.ReplyPageSize,
		Retry: fetch.RetryPolicy{
			MaxRetries: cfg.API.Retry.MaxRetries,
			Base:       cfg.API.Retry.Base,
			Max:        cfg.API.Retry.Max,
		},
		Logger: logger.WithComponent("fetch").Logger,
	})

	ttl := make(map[cache.Kind]time.Duration, len(cfg.Cache.TTL))
	for kind, d := range cfg.Cache.TTL {
		ttl[cache.Kind(kind)] = d
	}
	store, err := cache.New(cfg.Cache.Size, ttl)
	if err != nil {
		return err
	}

	var refiner *refine.Refiner
	if useRefine {
		gen, err := refine.NewGemini(ctx, cfg.Refine.APIKey, cfg.Refine.Model)
		if err != nil {
			return err
		}
		refiner = refine.New(gen, cfg.Refine.Timeout)
	}

	svc, err := feed.New(client, feed.Options{
		Cache:    store,
		Identity: identity.Static{ID: actorID},
		Cooldowns: mutation.Cooldowns{
			Confession:   cfg.Mutation.ConfessionCooldown,
			Comment:      cfg.Mutation.CommentCooldown,
			ChildComment: cfg.Mutation.ChildCommentCooldown,
			Post:         cfg.Mutation.PostCooldown,
		},
		LoaderWait:  cfg.Feed.LoaderWait,
		Shuffle:     cfg.Feed.Shuffle,
		ShuffleSeed: cfg.Feed.ShuffleSeed,
		Refiner:     refiner,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "feed":
		return showFeed(ctx, svc, pages)
	case "show":
		if len(rest) != 1 {
			return errors.New("show needs a confession id")
		}
		return showConfession(ctx, svc, rest[0], pages)
	case "replies":
		if len(rest) != 1 {
			return errors.New("replies needs a comment id")
		}
		return showReplies(ctx, svc, rest[0], pages)
	case "like":
		if len(rest) != 2 {
			return errors.New("like needs a kind and an id")
		}
		return toggleLike(ctx, svc, domain.Subject{Kind: domain.SubjectKind(rest[0]), ID: rest[1]})
	case "post":
		text, err := draft(ctx, svc, refine.TargetConfession, rest, useRefine)
		if err != nil {
			return err
		}
		c, err := svc.PostConfession(ctx, text)
		if err != nil {
			return err
		}
		fmt.Println("posted", c.ID)
	case "comment":
		if len(rest) < 2 {
			return errors.New("comment needs a confession id and text")
		}
		text, err := draft(ctx, svc, refine.TargetComment, rest[1:], useRefine)
		if err != nil {
			return err
		}
		c, err := svc.PostComment(ctx, rest[0], text)
		if err != nil {
			return err
		}
		fmt.Println("commented", c.ID)
	case "reply":
		if len(rest) < 2 {
			return errors.New("reply needs a comment id and text")
		}
		text, err := draft(ctx, svc, refine.TargetComment, rest[1:], useRefine)
		if err != nil {
			return err
		}
		r, err := svc.PostReply(ctx, rest[0], text)
		if err != nil {
			return err
		}
		fmt.Println("replied", r.ID)
	case "new-session":
		return newSession(ctx, cfg, svc)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func draft(ctx context.Context, svc *feed.Service, target refine.Target, words []string, useRefine bool) (string, error) {
	text := strings.Join(words, " ")
	if !useRefine {
		return text, nil
	}
	return svc.Refine(ctx, target, text)
}

func loadPages(ctx context.Context, pages int, more func(context.Context) (bool, error)) error {
	for i := 1; i < pages; i++ {
		added, err := more(ctx)
		if err != nil {
			return err
		}
		if !added {
			break
		}
	}
	return nil
}

func name(u *domain.User, fallback string) string {
	if u != nil {
		return u.DisplayName
	}
	return fallback
}

func showFeed(ctx context.Context, svc *feed.Service, pages int) error {
	if _, err := svc.FeedView(ctx); err != nil {
		return err
	}
	if err := loadPages(ctx, pages, svc.LoadMoreFeed); err != nil {
		return err
	}
	views, err := svc.FeedView(ctx)
	if err != nil {
		return err
	}
	for _, v := range views {
		fmt.Printf("%s  %s\n  %s\n  likes %d  comments %d\n\n",
			v.ID, name(v.Author, v.AuthorID), v.Content, v.LikesCount, v.CommentsCount)
	}
	if svc.FeedHasMore() {
		fmt.Println("more available, use -pages")
	}
	return nil
}

func showConfession(ctx context.Context, svc *feed.Service, id string, pages int) error {
	c, err := svc.ConfessionDetail(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n  %s\n  likes %d  comments %d\n\n", name(c.Author, c.AuthorID), c.Content, c.LikesCount, c.CommentsCount)

	if _, err := svc.CommentsView(ctx, id); err != nil {
		return err
	}
	if err := loadPages(ctx, pages, func(ctx context.Context) (bool, error) { return svc.LoadMoreComments(ctx, id) }); err != nil {
		return err
	}
	comments, err := svc.CommentsView(ctx, id)
	if err != nil {
		return err
	}
	for _, cm := range comments {
		fmt.Printf("  %s  %s: %s (likes %d, replies %d)\n", cm.ID, name(cm.Author, cm.AuthorID), cm.Content, cm.LikesCount, cm.RepliesCount)
	}
	return nil
}

func showReplies(ctx context.Context, svc *feed.Service, commentID string, pages int) error {
	if _, err := svc.RepliesView(ctx, commentID); err != nil {
		return err
	}
	if err := loadPages(ctx, pages, func(ctx context.Context) (bool, error) { return svc.LoadMoreReplies(ctx, commentID) }); err != nil {
		return err
	}
	replies, err := svc.RepliesView(ctx, commentID)
	if err != nil {
		return err
	}
	for _, r := range replies {
		fmt.Printf("  %s  %s: %s (likes %d, %s)\n", r.ID, name(r.Author, r.AuthorID), r.Content, r.LikesCount, r.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func toggleLike(ctx context.Context, svc *feed.Service, subject domain.Subject) error {
	if subject.Kind.QueryParam() == "" {
		return domain.ErrUnknownSubjectKind
	}
	view, err := svc.SubjectLikes(ctx, subject)
	if err != nil {
		return err
	}
	liked, err := svc.ToggleLike(ctx, view)
	if err != nil {
		return err
	}
	if liked {
		fmt.Println("liked", subject.ID)
	} else {
		fmt.Println("unliked", subject.ID)
	}
	return nil
}

func newSession(ctx context.Context, cfg *config.Config, svc *feed.Service) error {
	var store kv.Store = kv.NewMemory()
	if cfg.Session.KVPath != "" {
		db, err := kv.OpenSQLite(cfg.Session.KVPath)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	}
	m := session.NewManager(store, cfg.Session.Cooldown, svc)
	if err := m.StartNew(ctx); err != nil {
		return err
	}
	fmt.Println("new session started")
	return nil
}
