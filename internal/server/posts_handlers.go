package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/posts"
	"github.com/tessera-social/tessera/internal/users"
	"go.uber.org/zap"
)

type feedResponsePayload struct {
	Posts  []posts.PostView `json:"posts"`
	Before *int64           `json:"next_before_ms"`
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_before"})
			return
		}
		before = time.UnixMilli(ms).UTC()
	}

	page, err := h.posts.ListRecent(c.Request.Context(), h.feedPageSize, before)
	if err != nil {
		h.logger.Error("failed to list feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed_failed"})
		return
	}

	views, err := h.formatPosts(c.Request.Context(), page, h.viewerID(c))
	if err != nil {
		h.logger.Error("failed to format feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed_failed"})
		return
	}

	response := feedResponsePayload{Posts: views}
	if len(page) == h.feedPageSize && h.feedPageSize > 0 {
		oldest := page[len(page)-1].CreatedAt.UnixMilli()
		response.Before = &oldest
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleConversation(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conversation, err := h.assembler.Assemble(c.Request.Context(), postID, h.viewerID(c))
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to assemble conversation", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "conversation_failed"})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

type composeRequestPayload struct {
	Content      *string             `json:"content"`
	MediaURL     *string             `json:"media_url"`
	LinkPreview  *linkPreviewPayload `json:"link_preview"`
	Anonymous    bool                `json:"anonymous"`
	ParentID     *string             `json:"parent_id"`
	QuotedPostID *string             `json:"quoted_post_id"`
	PollOptions  []string            `json:"poll_options"`
}

type linkPreviewPayload struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
	SiteName     string `json:"site_name"`
	Kind         string `json:"type"`
	VideoID      string `json:"video_id"`
}

func (h *httpHandler) handleCompose(c *gin.Context) {
	viewerID := h.viewerID(c)

	var request composeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	parentID, err := parseOptionalID(request.ParentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_parent_id"})
		return
	}
	quotedPostID, err := parseOptionalID(request.QuotedPostID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quoted_post_id"})
		return
	}

	compose := posts.ComposeRequest{
		AuthorID:     viewerID,
		Content:      request.Content,
		MediaURL:     request.MediaURL,
		Anonymous:    request.Anonymous,
		ParentID:     parentID,
		QuotedPostID: quotedPostID,
		PollOptions:  request.PollOptions,
	}
	if request.LinkPreview != nil {
		compose.Preview = &posts.LinkPreview{
			URL:          request.LinkPreview.URL,
			Title:        request.LinkPreview.Title,
			Description:  request.LinkPreview.Description,
			ThumbnailURL: request.LinkPreview.ThumbnailURL,
			SiteName:     request.LinkPreview.SiteName,
			Kind:         request.LinkPreview.Kind,
			VideoID:      request.LinkPreview.VideoID,
		}
	}

	created, err := h.posts.Create(c.Request.Context(), compose)
	if err != nil {
		if errors.Is(err, posts.ErrEmptyPost) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_post"})
			return
		}
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to create post", zap.Error(err), zap.Int64("author_id", viewerID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "compose_failed"})
		return
	}

	h.fanOutComposeNotifications(c.Request.Context(), created, parentID, quotedPostID)

	quoted, err := h.assembler.ResolveQuoted(c.Request.Context(), created)
	if err != nil {
		h.logger.Warn("quote resolution failed after compose", zap.Error(err), zap.Int64("post_id", created.ID))
	}
	c.JSON(http.StatusCreated, posts.FormatPost(created, quoted, viewerID))
}

// fanOutComposeNotifications emits REPLY, QUOTE and MENTION notifications for
// a freshly created post. Failures are logged, never surfaced: the post is
// already persisted and the response must not fail because of fan-out.
func (h *httpHandler) fanOutComposeNotifications(ctx context.Context, created *posts.Post, parentID, quotedPostID *int64) {
	postID := created.ID

	if parentID != nil {
		if parent, err := h.posts.GetByID(ctx, *parentID); err == nil {
			h.notify(ctx, notifications.Input{
				Type:        notifications.TypeReply,
				ActorID:     created.AuthorID,
				RecipientID: parent.AuthorID,
				PostID:      &postID,
			})
		}
	}

	if quotedPostID != nil {
		if quoted, err := h.posts.GetByID(ctx, *quotedPostID); err == nil {
			h.notify(ctx, notifications.Input{
				Type:        notifications.TypeQuote,
				ActorID:     created.AuthorID,
				RecipientID: quoted.AuthorID,
				PostID:      &postID,
			})
		}
	}

	if created.Content != nil {
		for _, username := range posts.ExtractMentions(*created.Content) {
			mentioned, err := h.users.GetByUsername(ctx, username)
			if err != nil {
				if !errors.Is(err, users.ErrUserNotFound) {
					h.logger.Warn("mention lookup failed", zap.Error(err), zap.String("username", username))
				}
				continue
			}
			h.notify(ctx, notifications.Input{
				Type:        notifications.TypeMention,
				ActorID:     created.AuthorID,
				RecipientID: mentioned.ID,
				PostID:      &postID,
			})
		}
	}
}

// notify records a notification and publishes it to the recipient's open
// realtime streams. Errors are logged only.
func (h *httpHandler) notify(ctx context.Context, input notifications.Input) {
	notif, err := h.notifications.Notify(ctx, input)
	if err != nil {
		h.logger.Warn("notification fan-out failed",
			zap.Error(err),
			zap.String("type", string(input.Type)),
			zap.Int64("recipient_id", input.RecipientID))
		return
	}
	if notif == nil {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		RecipientID:      notif.RecipientID,
		EventType:        RealtimeEventNotification,
		NotificationID:   notif.ID,
		NotificationType: string(notif.Type),
		Timestamp:        notif.CreatedAt,
	})
}

func (h *httpHandler) handleLike(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	viewerID := h.viewerID(c)

	post, err := h.posts.GetByID(c.Request.Context(), postID)
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load post for like", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "like_failed"})
		return
	}

	created, err := h.posts.Like(c.Request.Context(), postID, viewerID)
	if err != nil {
		h.logger.Error("failed to like post", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "like_failed"})
		return
	}
	if created {
		h.notify(c.Request.Context(), notifications.Input{
			Type:        notifications.TypeLike,
			ActorID:     viewerID,
			RecipientID: post.AuthorID,
			PostID:      &postID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"liked": true})
}

func (h *httpHandler) handleUnlike(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.posts.Unlike(c.Request.Context(), postID, h.viewerID(c)); err != nil {
		h.logger.Error("failed to unlike post", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unlike_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": false})
}

func (h *httpHandler) handleBookmark(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := h.posts.Bookmark(c.Request.Context(), postID, h.viewerID(c))
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to bookmark post", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bookmark_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarked": true})
}

func (h *httpHandler) handleUnbookmark(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.posts.Unbookmark(c.Request.Context(), postID, h.viewerID(c)); err != nil {
		h.logger.Error("failed to remove bookmark", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unbookmark_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarked": false})
}

type pollVoteRequestPayload struct {
	OptionID string `json:"option_id"`
}

func (h *httpHandler) handlePollVote(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request pollVoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	optionID, err := strconv.ParseInt(request.OptionID, 10, 64)
	if err != nil || optionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_option_id"})
		return
	}

	err = h.posts.VotePoll(c.Request.Context(), postID, optionID, h.viewerID(c))
	if err != nil {
		if errors.Is(err, posts.ErrInvalidPollVote) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote"})
			return
		}
		h.logger.Error("failed to record poll vote", zap.Error(err), zap.Int64("post_id", postID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"voted": true})
}

// formatPosts projects a page of posts, resolving each post's quoted post.
func (h *httpHandler) formatPosts(ctx context.Context, page []posts.Post, viewerID int64) ([]posts.PostView, error) {
	views := make([]posts.PostView, 0, len(page))
	for i := range page {
		quoted, err := h.assembler.ResolveQuoted(ctx, &page[i])
		if err != nil {
			return nil, err
		}
		views = append(views, posts.FormatPost(&page[i], quoted, viewerID))
	}
	return views, nil
}
