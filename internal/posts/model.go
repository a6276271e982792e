package posts

import (
	"time"

	"github.com/tessera-social/tessera/internal/users"
)

// LinkPreview carries the unfurled metadata for a link embedded in a post.
// An empty URL means no preview is attached.
type LinkPreview struct {
	URL          string `gorm:"column:url;size:1024;not null;default:''"`
	Title        string `gorm:"column:title;size:512;not null;default:''"`
	Description  string `gorm:"column:description;type:text;not null;default:''"`
	ThumbnailURL string `gorm:"column:thumbnail_url;size:1024;not null;default:''"`
	SiteName     string `gorm:"column:site_name;size:190;not null;default:''"`
	Kind         string `gorm:"column:kind;size:32;not null;default:''"`
	VideoID      string `gorm:"column:video_id;size:190;not null;default:''"`
}

// Present reports whether the preview carries any data.
func (p LinkPreview) Present() bool {
	return p.URL != ""
}

// Post models a published post. ParentID is nil for top-level posts; replies
// reference their parent through it. A post's quoted post is not stored as a
// foreign key; it is resolved through QuoteRecord lookups (see store.go).
type Post struct {
	ID        int64       `gorm:"column:id;primaryKey;autoIncrement"`
	AuthorID  int64       `gorm:"column:author_id;not null;index"`
	Author    users.User  `gorm:"foreignKey:AuthorID"`
	ParentID  *int64      `gorm:"column:parent_id;index"`
	Content   *string     `gorm:"column:content;type:text"`
	MediaURL  *string     `gorm:"column:media_url;size:1024"`
	Preview   LinkPreview `gorm:"embedded;embeddedPrefix:link_"`
	Anonymous bool        `gorm:"column:anonymous;not null;default:false"`

	// LikeCount, CommentCount, ReplyCount and QuoteCount are denormalized
	// counters. CommentCount and ReplyCount are tracked by independent
	// writers upstream; views report their sum.
	LikeCount    int64 `gorm:"column:like_count;not null;default:0"`
	CommentCount int64 `gorm:"column:comment_count;not null;default:0"`
	ReplyCount   int64 `gorm:"column:reply_count;not null;default:0"`
	QuoteCount   int64 `gorm:"column:quote_count;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index"`

	Likes     []PostLike     `gorm:"foreignKey:PostID"`
	Bookmarks []PostBookmark `gorm:"foreignKey:PostID"`
	Poll      *Poll          `gorm:"foreignKey:PostID"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// LikedBy reports whether the given user appears in the post's like list.
func (p *Post) LikedBy(userID int64) bool {
	if userID <= 0 {
		return false
	}
	for _, like := range p.Likes {
		if like.UserID == userID {
			return true
		}
	}
	return false
}

// BookmarkedBy reports whether the given user bookmarked the post.
func (p *Post) BookmarkedBy(userID int64) bool {
	if userID <= 0 {
		return false
	}
	for _, bookmark := range p.Bookmarks {
		if bookmark.UserID == userID {
			return true
		}
	}
	return false
}

// PostLike records a user liking a post.
type PostLike struct {
	PostID    int64     `gorm:"column:post_id;primaryKey;not null"`
	UserID    int64     `gorm:"column:user_id;primaryKey;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (PostLike) TableName() string {
	return "post_likes"
}

// PostBookmark records a user bookmarking a post.
type PostBookmark struct {
	PostID    int64     `gorm:"column:post_id;primaryKey;not null"`
	UserID    int64     `gorm:"column:user_id;primaryKey;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (PostBookmark) TableName() string {
	return "post_bookmarks"
}

// QuoteRecord links a quoting post to the post it quotes. The quoting post is
// identified only indirectly: by author, exact content and creation time.
// This is a best-effort join, not a foreign key.
type QuoteRecord struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	AuthorID     int64     `gorm:"column:author_id;not null;index:idx_quotes_author_time,priority:1"`
	Content      string    `gorm:"column:content;type:text;not null;default:''"`
	QuotedPostID int64     `gorm:"column:quoted_post_id;not null"`
	Quoted       *Post     `gorm:"foreignKey:QuotedPostID"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index:idx_quotes_author_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (QuoteRecord) TableName() string {
	return "post_quotes"
}

// Poll attaches a multiple-choice poll to a post.
type Poll struct {
	ID        int64        `gorm:"column:id;primaryKey;autoIncrement"`
	PostID    int64        `gorm:"column:post_id;not null;uniqueIndex"`
	Options   []PollOption `gorm:"foreignKey:PollID"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Poll) TableName() string {
	return "post_polls"
}

// PollOption is a single choice within a poll.
type PollOption struct {
	ID     int64      `gorm:"column:id;primaryKey;autoIncrement"`
	PollID int64      `gorm:"column:poll_id;not null;index"`
	Label  string     `gorm:"column:label;size:190;not null"`
	Votes  []PollVote `gorm:"foreignKey:OptionID"`
}

// TableName provides the explicit table binding for GORM.
func (PollOption) TableName() string {
	return "post_poll_options"
}

// PollVote records a user's single vote within a poll. The (poll, user)
// primary key enforces one vote per poll; re-voting moves the vote.
type PollVote struct {
	PollID    int64     `gorm:"column:poll_id;primaryKey;not null"`
	UserID    int64     `gorm:"column:user_id;primaryKey;not null"`
	OptionID  int64     `gorm:"column:option_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (PollVote) TableName() string {
	return "post_poll_votes"
}
