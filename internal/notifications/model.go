package notifications

import (
	"time"

	"github.com/tessera-social/tessera/internal/posts"
	"github.com/tessera-social/tessera/internal/users"
)

// Type enumerates the notification kinds emitted by the service.
type Type string

const (
	TypeLike                 Type = "LIKE"
	TypeReply                Type = "REPLY"
	TypeMention              Type = "MENTION"
	TypeQuote                Type = "QUOTE"
	TypeFollow               Type = "FOLLOW"
	TypeSystem               Type = "SYSTEM"
	TypeVerificationApproved Type = "VERIFICATION_APPROVED"
	TypeVerificationRejected Type = "VERIFICATION_REJECTED"
	TypeRoleUpdated          Type = "ROLE_UPDATED"
	TypePostCensored         Type = "POST_CENSORED"
)

// Notification records a single event addressed to a recipient. The post
// reference is optional; FOLLOW and the administrative kinds carry none.
type Notification struct {
	ID          int64       `gorm:"column:id;primaryKey;autoIncrement"`
	Type        Type        `gorm:"column:type;size:32;not null"`
	Read        bool        `gorm:"column:is_read;not null;default:false;index:idx_notifications_recipient,priority:2"`
	RecipientID int64       `gorm:"column:recipient_id;not null;index:idx_notifications_recipient,priority:1"`
	ActorID     int64       `gorm:"column:actor_id;not null"`
	Actor       users.User  `gorm:"foreignKey:ActorID"`
	PostID      *int64      `gorm:"column:post_id"`
	Post        *posts.Post `gorm:"foreignKey:PostID"`
	CreatedAt   time.Time   `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}
