package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/posts"
	"github.com/tessera-social/tessera/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&users.Follow{},
		&posts.Post{},
		&posts.PostLike{},
		&posts.PostBookmark{},
		&posts.QuoteRecord{},
		&posts.Poll{},
		&posts.PollOption{},
		&posts.PollVote{},
		&notifications.Notification{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
