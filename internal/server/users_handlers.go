package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/users"
	"go.uber.org/zap"
)

type profileResponsePayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	Verified    bool   `json:"verified"`
	Followers   int64  `json:"followers"`
	Following   int64  `json:"following"`
	Posts       int64  `json:"posts"`
	IsFollowing bool   `json:"is_following"`
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	username := c.Param("username")

	profile, err := h.users.GetProfile(c.Request.Context(), username, h.viewerID(c))
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load profile", zap.Error(err), zap.String("username", username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_failed"})
		return
	}

	postCount, err := h.posts.CountByAuthor(c.Request.Context(), profile.User.ID)
	if err != nil {
		h.logger.Error("failed to count posts", zap.Error(err), zap.Int64("user_id", profile.User.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_failed"})
		return
	}

	c.JSON(http.StatusOK, profileResponsePayload{
		ID:          strconv.FormatInt(profile.User.ID, 10),
		Username:    profile.User.Username,
		DisplayName: profile.User.DisplayName,
		AvatarURL:   profile.User.AvatarURL,
		Bio:         profile.User.Bio,
		Verified:    profile.User.Verified,
		Followers:   profile.Followers,
		Following:   profile.Following,
		Posts:       postCount,
		IsFollowing: profile.IsFollowing,
	})
}

func (h *httpHandler) handleUserPosts(c *gin.Context) {
	username := c.Param("username")

	user, err := h.users.GetByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to resolve user", zap.Error(err), zap.String("username", username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_posts_failed"})
		return
	}

	page, err := h.posts.ListByAuthor(c.Request.Context(), user.ID, h.feedPageSize)
	if err != nil {
		h.logger.Error("failed to list user posts", zap.Error(err), zap.Int64("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_posts_failed"})
		return
	}

	views, err := h.formatPosts(c.Request.Context(), page, h.viewerID(c))
	if err != nil {
		h.logger.Error("failed to format user posts", zap.Error(err), zap.Int64("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_posts_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": views})
}

func (h *httpHandler) handleFollow(c *gin.Context) {
	username := c.Param("username")
	viewerID := h.viewerID(c)

	followee, created, err := h.users.Follow(c.Request.Context(), viewerID, username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		if errors.Is(err, users.ErrSelfFollow) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "self_follow"})
			return
		}
		h.logger.Error("failed to follow user", zap.Error(err), zap.String("username", username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "follow_failed"})
		return
	}

	if created {
		h.notify(c.Request.Context(), notifications.Input{
			Type:        notifications.TypeFollow,
			ActorID:     viewerID,
			RecipientID: followee.ID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"following": true})
}

func (h *httpHandler) handleUnfollow(c *gin.Context) {
	username := c.Param("username")

	err := h.users.Unfollow(c.Request.Context(), h.viewerID(c), username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to unfollow user", zap.Error(err), zap.String("username", username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unfollow_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": false})
}
