package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingRecipient = errors.New("recipient identifier is required")
	errMissingActor     = errors.New("actor identifier is required")
	errUnknownType      = errors.New("unknown notification type")
	noOpLogger          = zap.NewNop()
)

var validTypes = map[Type]struct{}{
	TypeLike: {}, TypeReply: {}, TypeMention: {}, TypeQuote: {}, TypeFollow: {},
	TypeSystem: {}, TypeVerificationApproved: {}, TypeVerificationRejected: {},
	TypeRoleUpdated: {}, TypePostCensored: {},
}

// ServiceConfig describes the dependencies required by the notification service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists notifications and serves recency-ordered pages of them.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the notification service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("notifications: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Input describes a notification to record.
type Input struct {
	Type        Type
	ActorID     int64
	RecipientID int64
	PostID      *int64
}

// Notify records a notification. Events where the actor and recipient are
// the same user are suppressed and return nil without error.
func (s *Service) Notify(ctx context.Context, input Input) (*Notification, error) {
	if _, ok := validTypes[input.Type]; !ok {
		return nil, fmt.Errorf("notifications: %w: %s", errUnknownType, input.Type)
	}
	if input.RecipientID <= 0 {
		return nil, fmt.Errorf("notifications: %w", errMissingRecipient)
	}
	if input.ActorID <= 0 {
		return nil, fmt.Errorf("notifications: %w", errMissingActor)
	}
	if input.ActorID == input.RecipientID {
		return nil, nil
	}

	notif := Notification{
		Type:        input.Type,
		RecipientID: input.RecipientID,
		ActorID:     input.ActorID,
		PostID:      input.PostID,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&notif).Error; err != nil {
		s.logger.Error("notification insert failed",
			zap.Error(err),
			zap.String("type", string(input.Type)),
			zap.Int64("recipient_id", input.RecipientID))
		return nil, err
	}
	return &notif, nil
}

// List returns the recipient's newest notifications with actor and post
// snapshots preloaded, ordered by creation time descending.
func (s *Service) List(ctx context.Context, recipientID int64, limit int) ([]Notification, error) {
	if recipientID <= 0 {
		return nil, fmt.Errorf("notifications: %w", errMissingRecipient)
	}
	var notifs []Notification
	err := s.db.WithContext(ctx).
		Preload("Actor").
		Preload("Post").
		Preload("Post.Author").
		Preload("Post.Likes").
		Preload("Post.Bookmarks").
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&notifs).Error
	if err != nil {
		return nil, err
	}
	return notifs, nil
}

// UnreadCount returns the number of unread notifications for the recipient.
func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead marks the given notifications as read. Only rows addressed to
// recipientID are touched, so a caller cannot clear another user's inbox.
func (s *Service) MarkRead(ctx context.Context, recipientID int64, ids []int64) error {
	if recipientID <= 0 {
		return fmt.Errorf("notifications: %w", errMissingRecipient)
	}
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND id IN ?", recipientID, ids).
		Update("is_read", true).Error
}
