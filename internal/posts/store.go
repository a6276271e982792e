package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPostNotFound indicates the requested post does not exist.
	ErrPostNotFound = errors.New("posts: post not found")
	// ErrEmptyPost indicates a compose request carried neither content nor media.
	ErrEmptyPost = errors.New("posts: post requires content or media")
	// ErrInvalidPollVote indicates a vote referenced an option outside the post's poll.
	ErrInvalidPollVote = errors.New("posts: invalid poll vote")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreError wraps a store failure with an operation.reason code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable failure code.
func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew   = "posts.store.new"
	opCreate     = "posts.create"
	opLike       = "posts.like"
	opUnlike     = "posts.unlike"
	opBookmark   = "posts.bookmark"
	opUnbookmark = "posts.unbookmark"
	opVotePoll   = "posts.vote_poll"
	opListRecent = "posts.list_recent"
	opListAuthor = "posts.list_by_author"
)

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies required by the post store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists posts and their satellite records (likes, bookmarks,
// quote records, polls) in the relational database.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs the post store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

func withPostPreloads(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Author").
		Preload("Likes").
		Preload("Bookmarks").
		Preload("Poll").
		Preload("Poll.Options").
		Preload("Poll.Options.Votes")
}

// GetByID fetches a single post with its author, membership lists and poll.
func (s *Store) GetByID(ctx context.Context, id int64) (*Post, error) {
	var post Post
	err := withPostPreloads(s.db.WithContext(ctx)).
		Where("id = ?", id).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Children returns the direct replies of a post ordered oldest first.
func (s *Store) Children(ctx context.Context, parentID int64) ([]Post, error) {
	var children []Post
	err := withPostPreloads(s.db.WithContext(ctx)).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&children).Error
	if err != nil {
		return nil, err
	}
	return children, nil
}

// FindQuote resolves the quote record for a post identified heuristically by
// author, exact content and a creation-time window around at. Returns nil
// when no record matches; when several match the oldest wins.
func (s *Store) FindQuote(ctx context.Context, authorID int64, content string, at time.Time, window time.Duration) (*QuoteRecord, error) {
	var record QuoteRecord
	err := s.db.WithContext(ctx).
		Preload("Quoted").
		Preload("Quoted.Author").
		Preload("Quoted.Likes").
		Preload("Quoted.Bookmarks").
		Preload("Quoted.Poll").
		Preload("Quoted.Poll.Options").
		Preload("Quoted.Poll.Options.Votes").
		Where("author_id = ? AND content = ?", authorID, content).
		Where("created_at BETWEEN ? AND ?", at.Add(-window), at.Add(window)).
		Order("created_at ASC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ComposeRequest describes the input for creating a post, reply or quote.
type ComposeRequest struct {
	AuthorID     int64
	Content      *string
	MediaURL     *string
	Preview      *LinkPreview
	Anonymous    bool
	ParentID     *int64
	QuotedPostID *int64
	PollOptions  []string
}

func (r ComposeRequest) empty() bool {
	hasContent := r.Content != nil && strings.TrimSpace(*r.Content) != ""
	hasMedia := r.MediaURL != nil && strings.TrimSpace(*r.MediaURL) != ""
	return !hasContent && !hasMedia && len(r.PollOptions) == 0
}

// Create persists a new post. Replies increment the parent's reply counter;
// quotes additionally record a QuoteRecord and increment the quoted post's
// quote counter. The parent and quoted post must exist.
func (s *Store) Create(ctx context.Context, req ComposeRequest) (*Post, error) {
	if req.empty() {
		return nil, newStoreError(opCreate, "empty_post", ErrEmptyPost)
	}

	now := s.clock().UTC()
	post := Post{
		AuthorID:  req.AuthorID,
		ParentID:  req.ParentID,
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		Anonymous: req.Anonymous,
		CreatedAt: now,
	}
	if req.Preview != nil {
		post.Preview = *req.Preview
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.ParentID != nil {
			var parent Post
			err := tx.Where("id = ?", *req.ParentID).Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newStoreError(opCreate, "parent_not_found", ErrPostNotFound)
			}
			if err != nil {
				return newStoreError(opCreate, "parent_select_failed", err)
			}
		}

		var quoted Post
		if req.QuotedPostID != nil {
			err := tx.Where("id = ?", *req.QuotedPostID).Take(&quoted).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newStoreError(opCreate, "quoted_not_found", ErrPostNotFound)
			}
			if err != nil {
				return newStoreError(opCreate, "quoted_select_failed", err)
			}
		}

		if err := tx.Create(&post).Error; err != nil {
			return newStoreError(opCreate, "insert_failed", err)
		}

		if len(req.PollOptions) > 0 {
			poll := Poll{PostID: post.ID}
			for _, label := range req.PollOptions {
				trimmed := strings.TrimSpace(label)
				if trimmed == "" {
					continue
				}
				poll.Options = append(poll.Options, PollOption{Label: trimmed})
			}
			if len(poll.Options) > 0 {
				if err := tx.Create(&poll).Error; err != nil {
					return newStoreError(opCreate, "poll_insert_failed", err)
				}
			}
		}

		if req.ParentID != nil {
			err := tx.Model(&Post{}).
				Where("id = ?", *req.ParentID).
				UpdateColumn("reply_count", gorm.Expr("reply_count + 1")).Error
			if err != nil {
				return newStoreError(opCreate, "reply_counter_failed", err)
			}
		}

		if req.QuotedPostID != nil {
			content := ""
			if req.Content != nil {
				content = *req.Content
			}
			record := QuoteRecord{
				AuthorID:     req.AuthorID,
				Content:      content,
				QuotedPostID: *req.QuotedPostID,
				CreatedAt:    post.CreatedAt,
			}
			if err := tx.Create(&record).Error; err != nil {
				return newStoreError(opCreate, "quote_insert_failed", err)
			}
			err := tx.Model(&Post{}).
				Where("id = ?", *req.QuotedPostID).
				UpdateColumn("quote_count", gorm.Expr("quote_count + 1")).Error
			if err != nil {
				return newStoreError(opCreate, "quote_counter_failed", err)
			}
		}

		return nil
	})
	if txErr != nil {
		s.logger.Error("post create failed", zap.Error(txErr), zap.Int64("author_id", req.AuthorID))
		return nil, txErr
	}

	return s.GetByID(ctx, post.ID)
}

// Like records a like from userID. Liking twice is a no-op; the boolean
// reports whether the like was newly recorded.
func (s *Store) Like(ctx context.Context, postID, userID int64) (bool, error) {
	created := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post Post
		err := tx.Where("id = ?", postID).Take(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		if err != nil {
			return newStoreError(opLike, "post_select_failed", err)
		}

		var existing PostLike
		err = tx.Where("post_id = ? AND user_id = ?", postID, userID).Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newStoreError(opLike, "like_select_failed", err)
		}

		like := PostLike{PostID: postID, UserID: userID, CreatedAt: s.clock().UTC()}
		if err := tx.Create(&like).Error; err != nil {
			return newStoreError(opLike, "like_insert_failed", err)
		}
		err = tx.Model(&Post{}).
			Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
		if err != nil {
			return newStoreError(opLike, "like_counter_failed", err)
		}
		created = true
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	return created, nil
}

// Unlike removes a like if present.
func (s *Store) Unlike(ctx context.Context, postID, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&PostLike{})
		if result.Error != nil {
			return newStoreError(opUnlike, "like_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		err := tx.Model(&Post{}).
			Where("id = ? AND like_count > 0", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
		if err != nil {
			return newStoreError(opUnlike, "like_counter_failed", err)
		}
		return nil
	})
}

// Bookmark records a bookmark from userID. Idempotent.
func (s *Store) Bookmark(ctx context.Context, postID, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post Post
		err := tx.Where("id = ?", postID).Take(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		if err != nil {
			return newStoreError(opBookmark, "post_select_failed", err)
		}

		var existing PostBookmark
		err = tx.Where("post_id = ? AND user_id = ?", postID, userID).Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newStoreError(opBookmark, "bookmark_select_failed", err)
		}
		bookmark := PostBookmark{PostID: postID, UserID: userID, CreatedAt: s.clock().UTC()}
		if err := tx.Create(&bookmark).Error; err != nil {
			return newStoreError(opBookmark, "bookmark_insert_failed", err)
		}
		return nil
	})
}

// Unbookmark removes a bookmark if present.
func (s *Store) Unbookmark(ctx context.Context, postID, userID int64) error {
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&PostBookmark{}).Error
	if err != nil {
		return newStoreError(opUnbookmark, "bookmark_delete_failed", err)
	}
	return nil
}

// VotePoll records userID's vote for the given option of the post's poll.
// A second vote within the same poll moves the vote to the new option.
func (s *Store) VotePoll(ctx context.Context, postID, optionID, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poll Poll
		err := tx.Where("post_id = ?", postID).Take(&poll).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newStoreError(opVotePoll, "poll_not_found", ErrInvalidPollVote)
		}
		if err != nil {
			return newStoreError(opVotePoll, "poll_select_failed", err)
		}

		var option PollOption
		err = tx.Where("id = ? AND poll_id = ?", optionID, poll.ID).Take(&option).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newStoreError(opVotePoll, "option_not_found", ErrInvalidPollVote)
		}
		if err != nil {
			return newStoreError(opVotePoll, "option_select_failed", err)
		}

		if err := tx.Where("poll_id = ? AND user_id = ?", poll.ID, userID).Delete(&PollVote{}).Error; err != nil {
			return newStoreError(opVotePoll, "vote_delete_failed", err)
		}
		vote := PollVote{PollID: poll.ID, UserID: userID, OptionID: optionID, CreatedAt: s.clock().UTC()}
		if err := tx.Create(&vote).Error; err != nil {
			return newStoreError(opVotePoll, "vote_insert_failed", err)
		}
		return nil
	})
}

// ListRecent returns the newest top-level posts. When before is non-zero only
// posts created strictly before it are returned, enabling keyset pagination.
func (s *Store) ListRecent(ctx context.Context, limit int, before time.Time) ([]Post, error) {
	query := withPostPreloads(s.db.WithContext(ctx)).
		Where("parent_id IS NULL")
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}
	var posts []Post
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, newStoreError(opListRecent, "query_failed", err)
	}
	return posts, nil
}

// ListByAuthor returns the newest posts authored by the given user,
// excluding anonymous posts so profiles never reveal them.
func (s *Store) ListByAuthor(ctx context.Context, authorID int64, limit int) ([]Post, error) {
	var posts []Post
	err := withPostPreloads(s.db.WithContext(ctx)).
		Where("author_id = ? AND anonymous = ?", authorID, false).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, newStoreError(opListAuthor, "query_failed", err)
	}
	return posts, nil
}

// CountByAuthor returns the number of non-anonymous posts by the given user.
func (s *Store) CountByAuthor(ctx context.Context, authorID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Post{}).
		Where("author_id = ? AND anonymous = ?", authorID, false).
		Count(&count).Error
	if err != nil {
		return 0, newStoreError(opListAuthor, "count_failed", err)
	}
	return count, nil
}
