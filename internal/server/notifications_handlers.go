package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tessera-social/tessera/internal/notifications"
	"github.com/tessera-social/tessera/internal/posts"
	"go.uber.org/zap"
)

const streamHeartbeatInterval = 25 * time.Second

type groupedNotificationPayload struct {
	Type           string                        `json:"type"`
	Read           bool                          `json:"read"`
	NotificationID string                        `json:"notification_id"`
	CreatedAtMs    int64                         `json:"created_at_ms"`
	Actors         []notifications.ActorSnapshot `json:"actors"`
	Post           *posts.PostView               `json:"post"`
	SourceIDs      []string                      `json:"source_ids"`
}

type notificationsResponsePayload struct {
	Groups []groupedNotificationPayload `json:"groups"`
	Unread int64                        `json:"unread"`
}

func (h *httpHandler) handleNotifications(c *gin.Context) {
	viewerID := h.viewerID(c)

	page, err := h.notifications.List(c.Request.Context(), viewerID, h.notifPageSize)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err), zap.Int64("viewer_id", viewerID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notifications_failed"})
		return
	}

	unread, err := h.notifications.UnreadCount(c.Request.Context(), viewerID)
	if err != nil {
		h.logger.Error("failed to count unread notifications", zap.Error(err), zap.Int64("viewer_id", viewerID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notifications_failed"})
		return
	}

	groups := notifications.Group(page)
	payload := notificationsResponsePayload{
		Groups: make([]groupedNotificationPayload, 0, len(groups)),
		Unread: unread,
	}
	for _, group := range groups {
		item := groupedNotificationPayload{
			Type:           string(group.Type),
			Read:           group.Read,
			NotificationID: strconv.FormatInt(group.NotificationID, 10),
			CreatedAtMs:    group.CreatedAt.UnixMilli(),
			Actors:         group.Actors,
			SourceIDs:      make([]string, 0, len(group.SourceIDs)),
		}
		for _, id := range group.SourceIDs {
			item.SourceIDs = append(item.SourceIDs, strconv.FormatInt(id, 10))
		}
		if group.Post != nil {
			view := posts.FormatPost(group.Post, nil, viewerID)
			item.Post = &view
		}
		payload.Groups = append(payload.Groups, item)
	}

	c.JSON(http.StatusOK, payload)
}

type markReadRequestPayload struct {
	IDs []string `json:"ids"`
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	viewerID := h.viewerID(c)

	var request markReadRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ids := make([]int64, 0, len(request.IDs))
	for _, raw := range request.IDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
			return
		}
		ids = append(ids, id)
	}

	if err := h.notifications.MarkRead(c.Request.Context(), viewerID, ids); err != nil {
		h.logger.Error("failed to mark notifications read", zap.Error(err), zap.Int64("viewer_id", viewerID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mark_read_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": len(ids)})
}

type streamEventPayload struct {
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	TimestampMs    int64  `json:"timestamp_ms"`
}

// handleNotificationStream serves a server-sent-events stream of freshly
// recorded notifications for the viewer, with periodic heartbeats to keep
// intermediaries from closing the connection.
func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	viewerID := h.viewerID(c)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), viewerID)
	defer cleanup()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case message, open := <-stream:
			if !open {
				return
			}
			data, err := json.Marshal(streamEventPayload{
				NotificationID: strconv.FormatInt(message.NotificationID, 10),
				Type:           message.NotificationType,
				TimestampMs:    message.Timestamp.UnixMilli(),
			})
			if err != nil {
				continue
			}
			writeSSEEvent(c.Writer, message.EventType, string(data))
			c.Writer.Flush()
		case <-heartbeat.C:
			writeSSEEvent(c.Writer, realtimeEventHeartbeat, "{}")
			c.Writer.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
