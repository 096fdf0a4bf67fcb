package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements storage.Storage on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// New connects and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Confession{}, &domain.Comment{}, &domain.ChildComment{}, &domain.Like{}, &domain.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

func validateContent(content string) error {
	if len(content) > storage.MaxContentLength {
		return storage.ErrTooLong
	}
	if strings.TrimSpace(content) == "" {
		return storage.ErrEmpty
	}
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return err
}

// === Confession Methods ===

func (s *Store) CreateConfession(ctx context.Context, c *domain.Confession) (*domain.Confession, error) {
	if err := validateContent(c.Content); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) GetConfession(ctx context.Context, id string) (*domain.Confession, error) {
	var c domain.Confession
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "confession", id)
	}
	return &c, nil
}

func (s *Store) ListConfessions(ctx context.Context, args storage.PaginationArgs) ([]*domain.Confession, error) {
	var out []*domain.Confession
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(args.Limit)

	if args.Cursor != nil {
		var cursor domain.Confession
		if err := s.db.WithContext(ctx).First(&cursor, "id = ?", *args.Cursor).Error; err != nil {
			return nil, notFound(err, "cursor", *args.Cursor)
		}
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	err := query.Find(&out).Error
	return out, err
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) (*domain.Comment, error) {
	if err := validateContent(c.Content); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Confession{}).Where("id = ?", c.ConfessionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("confession %s: %w", c.ConfessionID, storage.ErrNotFound)
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "comment", id)
	}
	return &c, nil
}

func (s *Store) ListComments(ctx context.Context, confessionID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	var out []*domain.Comment
	query := s.db.WithContext(ctx).
		Where("confession_id = ?", confessionID).
		Order("created_at ASC, id ASC").
		Limit(args.Limit)

	if args.Cursor != nil {
		var cursor domain.Comment
		if err := s.db.WithContext(ctx).First(&cursor, "id = ? AND confession_id = ?", *args.Cursor, confessionID).Error; err != nil {
			return nil, notFound(err, "cursor", *args.Cursor)
		}
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	err := query.Find(&out).Error
	return out, err
}

func (s *Store) CommentsByConfessionIDs(ctx context.Context, confessionIDs []string) (map[string][]*domain.Comment, error) {
	var comments []*domain.Comment
	err := s.db.WithContext(ctx).
		Where("confession_id IN ?", confessionIDs).
		Order("confession_id, created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*domain.Comment, len(confessionIDs))
	for _, c := range comments {
		result[c.ConfessionID] = append(result[c.ConfessionID], c)
	}
	return result, nil
}

// === Reply Methods ===

func (s *Store) CreateChildComment(ctx context.Context, c *domain.ChildComment) (*domain.ChildComment, error) {
	if err := validateContent(c.Content); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Comment{}).Where("id = ?", c.CommentID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("comment %s: %w", c.CommentID, storage.ErrNotFound)
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListChildComments(ctx context.Context, commentID string, args storage.PaginationArgs) ([]*domain.ChildComment, error) {
	var out []*domain.ChildComment
	query := s.db.WithContext(ctx).
		Where("comment_id = ?", commentID).
		Order("created_at ASC, id ASC").
		Limit(args.Limit)

	if args.Cursor != nil {
		var cursor domain.ChildComment
		if err := s.db.WithContext(ctx).First(&cursor, "id = ? AND comment_id = ?", *args.Cursor, commentID).Error; err != nil {
			return nil, notFound(err, "cursor", *args.Cursor)
		}
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	err := query.Find(&out).Error
	return out, err
}

func (s *Store) ChildCommentsByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.ChildComment, error) {
	var replies []*domain.ChildComment
	err := s.db.WithContext(ctx).
		Where("comment_id IN ?", commentIDs).
		Order("comment_id, created_at ASC").
		Find(&replies).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*domain.ChildComment, len(commentIDs))
	for _, r := range replies {
		result[r.CommentID] = append(result[r.CommentID], r)
	}
	return result, nil
}

// === Like Methods ===

func targetColumn(kind domain.SubjectKind) (string, error) {
	switch kind {
	case domain.SubjectConfession:
		return "confession_id", nil
	case domain.SubjectComment:
		return "comment_id", nil
	case domain.SubjectChildComment:
		return "child_comment_id", nil
	}
	return "", domain.ErrUnknownSubjectKind
}

func (s *Store) CreateLike(ctx context.Context, l *domain.Like) (*domain.Like, error) {
	target, ok := l.Target()
	if !ok {
		return nil, l.Validate()
	}
	col, err := targetColumn(target.Kind)
	if err != nil {
		return nil, err
	}

	var model any
	switch target.Kind {
	case domain.SubjectConfession:
		model = &domain.Confession{}
	case domain.SubjectComment:
		model = &domain.Comment{}
	default:
		model = &domain.ChildComment{}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(model).Where("id = ?", target.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", target.Kind, target.ID, storage.ErrNotFound)
		}
		if err := tx.Model(&domain.Like{}).Where("actor_id = ? AND "+col+" = ?", l.ActorID, target.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return storage.ErrAlreadyLiked
		}
		return tx.Create(l).Error
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Store) DeleteLike(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&domain.Like{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("like %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) LikesBySubjects(ctx context.Context, kind domain.SubjectKind, ids []string) (map[string][]*domain.Like, error) {
	col, err := targetColumn(kind)
	if err != nil {
		return nil, err
	}
	var likes []*domain.Like
	err = s.db.WithContext(ctx).
		Where(col+" IN ?", ids).
		Order("created_at ASC").
		Find(&likes).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*domain.Like, len(ids))
	for _, id := range ids {
		result[id] = []*domain.Like{}
	}
	for _, l := range likes {
		if t, ok := l.Target(); ok {
			result[t.ID] = append(result[t.ID], l)
		}
	}
	return result, nil
}

// === User Methods ===

func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	err := s.db.WithContext(ctx).Order("display_name").Find(&users).Error
	return users, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}
