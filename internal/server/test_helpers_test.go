package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tessera-social/tessera/internal/auth"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/posts"
	"github.com/tessera-social/tessera/internal/users"
	"gorm.io/gorm"
)

const (
	testIssuer     = "tessera-identity"
	testCookieName = "tessera_session"
)

var testSigningSecret = []byte("server-test-secret")

type testEnv struct {
	handler       http.Handler
	db            *gorm.DB
	store         *posts.Store
	notifications *notifications.Service
	realtime      *RealtimeDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		&users.Follow{},
		&posts.Post{},
		&posts.PostLike{},
		&posts.PostBookmark{},
		&posts.QuoteRecord{},
		&posts.Poll{},
		&posts.PollOption{},
		&posts.PollVote{},
		&notifications.Notification{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	current := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		current = current.Add(time.Second)
		return current
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: testSigningSecret,
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	store, err := posts.NewStore(posts.StoreConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build post store: %v", err)
	}
	assembler, err := posts.NewAssembler(posts.AssemblerConfig{Source: store})
	if err != nil {
		t.Fatalf("failed to build assembler: %v", err)
	}
	notificationService, err := notifications.NewService(notifications.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build notification service: %v", err)
	}
	realtime := NewRealtimeDispatcher()

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:      sessions,
		Users:         userService,
		Posts:         store,
		Assembler:     assembler,
		Notifications: notificationService,
		Realtime:      realtime,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testEnv{
		handler:       handler,
		db:            db,
		store:         store,
		notifications: notificationService,
		realtime:      realtime,
	}
}

func (env *testEnv) mustUser(t *testing.T, username string) users.User {
	t.Helper()
	user := users.User{Username: username, DisplayName: username}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func (env *testEnv) mustPost(t *testing.T, req posts.ComposeRequest) *posts.Post {
	t.Helper()
	post, err := env.store.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}

func sessionToken(t *testing.T, userID int64, username string) string {
	t.Helper()
	claims := auth.SessionClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningSecret)
	if err != nil {
		t.Fatalf("failed to sign session token: %v", err)
	}
	return token
}

func composeFor(authorID int64, content string) posts.ComposeRequest {
	return posts.ComposeRequest{AuthorID: authorID, Content: stringPtr(content)}
}

func replyFor(authorID int64, content string, parentID int64) posts.ComposeRequest {
	req := composeFor(authorID, content)
	req.ParentID = &parentID
	return req
}

func stringPtr(value string) *string {
	return &value
}
