package users

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
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrSelfFollow indicates a user attempted to follow themselves.
	ErrSelfFollow = errors.New("users: cannot follow self")

	errMissingDatabase = errors.New("database handle is required")
)

// ServiceConfig describes the dependencies required by the user service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages user profiles and the follower graph.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Profile bundles a user record with viewer-relative follower data.
type Profile struct {
	User        User
	Followers   int64
	Following   int64
	IsFollowing bool
}

// GetByID fetches a user by its ordinal identifier.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername fetches a user by username. Lookup is case-insensitive
// on the trimmed input.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return nil, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", trimmed).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetProfile returns a user's profile with follower counts. When viewerID is
// positive the IsFollowing flag reflects whether the viewer follows the user.
func (s *Service) GetProfile(ctx context.Context, username string, viewerID int64) (Profile, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return Profile{}, err
	}

	var followers, following int64
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Where("followee_id = ?", user.ID).
		Count(&followers).Error; err != nil {
		return Profile{}, err
	}
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Where("follower_id = ?", user.ID).
		Count(&following).Error; err != nil {
		return Profile{}, err
	}

	profile := Profile{User: *user, Followers: followers, Following: following}
	if viewerID > 0 {
		var edges int64
		if err := s.db.WithContext(ctx).Model(&Follow{}).
			Where("follower_id = ? AND followee_id = ?", viewerID, user.ID).
			Count(&edges).Error; err != nil {
			return Profile{}, err
		}
		profile.IsFollowing = edges > 0
	}
	return profile, nil
}

// Follow creates a follower edge from followerID to the named user.
// Following a user twice is a no-op; the boolean reports whether a new edge
// was created. Following yourself is rejected.
func (s *Service) Follow(ctx context.Context, followerID int64, username string) (*User, bool, error) {
	followee, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if followee.ID == followerID {
		return nil, false, ErrSelfFollow
	}

	created := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Follow
		err := tx.Where("follower_id = ? AND followee_id = ?", followerID, followee.ID).
			Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		edge := Follow{FollowerID: followerID, FolloweeID: followee.ID, CreatedAt: s.clock().UTC()}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if txErr != nil {
		return nil, false, txErr
	}
	return followee, created, nil
}

// Unfollow removes the follower edge if present.
func (s *Service) Unfollow(ctx context.Context, followerID int64, username string) error {
	followee, err := s.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followee.ID).
		Delete(&Follow{}).Error
}
