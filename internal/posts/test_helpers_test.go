package posts

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/tessera-social/tessera/internal/users"
	"gorm.io/gorm"
)

var testClockBase = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

// testClock hands out strictly increasing timestamps so created_at ordering
// is deterministic.
type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: testClockBase}
}

func (c *testClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&users.User{},
		&Post{},
		&PostLike{},
		&PostBookmark{},
		&QuoteRecord{},
		&Poll{},
		&PollOption{},
		&PollVote{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*Store, *gorm.DB, *testClock) {
	t.Helper()
	db := newTestDB(t)
	clock := newTestClock()
	store, err := NewStore(StoreConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return store, db, clock
}

func newTestAssembler(t *testing.T, store *Store) *Assembler {
	t.Helper()
	assembler, err := NewAssembler(AssemblerConfig{Source: store})
	if err != nil {
		t.Fatalf("failed to build assembler: %v", err)
	}
	return assembler
}

func mustUser(t *testing.T, db *gorm.DB, username string) users.User {
	t.Helper()
	user := users.User{Username: username, DisplayName: username}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func mustCompose(t *testing.T, store *Store, req ComposeRequest) *Post {
	t.Helper()
	post, err := store.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}

func stringPtr(value string) *string {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}
