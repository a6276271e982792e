package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tessera-social/tessera/internal/auth"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/posts"
	"github.com/tessera-social/tessera/internal/users"
	"go.uber.org/zap"
)

const (
	viewerContextKey    = "tessera_viewer_id"
	requestIDContextKey = "tessera_request_id"
	requestIDHeader     = "X-Request-ID"

	defaultFeedPageSize  = 30
	defaultNotifPageSize = 50
)

var (
	errMissingSessionValidator     = errors.New("session validator dependency required")
	errMissingUsersService         = errors.New("users service dependency required")
	errMissingPostStore            = errors.New("post store dependency required")
	errMissingAssembler            = errors.New("conversation assembler dependency required")
	errMissingNotificationsService = errors.New("notifications service dependency required")
)

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	Sessions             *auth.SessionValidator
	Users                *users.Service
	Posts                *posts.Store
	Assembler            *posts.Assembler
	Notifications        *notifications.Service
	Realtime             *RealtimeDispatcher
	Logger               *zap.Logger
	FeedPageSize         int
	NotificationPageSize int
}

// NewHTTPHandler assembles the gin router with all routes and middleware.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Posts == nil {
		return nil, errMissingPostStore
	}
	if deps.Assembler == nil {
		return nil, errMissingAssembler
	}
	if deps.Notifications == nil {
		return nil, errMissingNotificationsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	feedPageSize := deps.FeedPageSize
	if feedPageSize <= 0 {
		feedPageSize = defaultFeedPageSize
	}
	notifPageSize := deps.NotificationPageSize
	if notifPageSize <= 0 {
		notifPageSize = defaultNotifPageSize
	}

	handler := &httpHandler{
		sessions:      deps.Sessions,
		users:         deps.Users,
		posts:         deps.Posts,
		assembler:     deps.Assembler,
		notifications: deps.Notifications,
		realtime:      realtime,
		logger:        logger,
		feedPageSize:  feedPageSize,
		notifPageSize: notifPageSize,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", handler.handleHealth)

	public := router.Group("/")
	public.Use(handler.attachViewer)
	public.GET("/feed", handler.handleFeed)
	public.GET("/users/:username", handler.handleProfile)
	public.GET("/users/:username/posts", handler.handleUserPosts)
	public.GET("/posts/:id/conversation", handler.handleConversation)

	protected := router.Group("/")
	protected.Use(handler.requireViewer)
	protected.POST("/posts", handler.handleCompose)
	protected.POST("/posts/:id/like", handler.handleLike)
	protected.DELETE("/posts/:id/like", handler.handleUnlike)
	protected.POST("/posts/:id/bookmark", handler.handleBookmark)
	protected.DELETE("/posts/:id/bookmark", handler.handleUnbookmark)
	protected.POST("/posts/:id/poll/vote", handler.handlePollVote)
	protected.POST("/users/:username/follow", handler.handleFollow)
	protected.DELETE("/users/:username/follow", handler.handleUnfollow)
	protected.GET("/notifications", handler.handleNotifications)
	protected.POST("/notifications/read", handler.handleMarkRead)
	protected.GET("/notifications/stream", handler.handleNotificationStream)

	return router, nil
}

type httpHandler struct {
	sessions      *auth.SessionValidator
	users         *users.Service
	posts         *posts.Store
	assembler     *posts.Assembler
	notifications *notifications.Service
	realtime      *RealtimeDispatcher
	logger        *zap.Logger
	feedPageSize  int
	notifPageSize int
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			if value, err := uuid.NewV7(); err == nil {
				requestID = value.String()
			} else {
				requestID = uuid.NewString()
			}
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// attachViewer extracts the viewer identity if a valid session is present.
// Requests without a session proceed anonymously.
func (h *httpHandler) attachViewer(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err == nil {
		c.Set(viewerContextKey, claims.UserID)
	}
	c.Next()
}

// requireViewer rejects requests without a valid session.
func (h *httpHandler) requireViewer(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(viewerContextKey, claims.UserID)
	c.Next()
}

func (h *httpHandler) viewerID(c *gin.Context) int64 {
	return c.GetInt64(viewerContextKey)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func parseOptionalID(raw *string) (*int64, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(*raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid identifier")
	}
	return &id, nil
}
