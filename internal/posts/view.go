package posts

import "strconv"

// AuthorView is the public projection of a post's author.
type AuthorView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Verified    bool   `json:"verified"`
}

// LinkPreviewView is the public projection of a link preview.
type LinkPreviewView struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
	SiteName     string `json:"site_name"`
	Kind         string `json:"type"`
	VideoID      string `json:"video_id"`
}

// PollOptionView is the public projection of a poll option.
type PollOptionView struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Votes   int64  `json:"votes"`
	IsVoted bool   `json:"is_voted"`
}

// PollView is the public projection of a post's poll.
type PollView struct {
	ID      string           `json:"id"`
	Options []PollOptionView `json:"options"`
}

// PostView is the response-shaped projection of a post. Identifiers are
// stringified, absent fields are null, and the viewer-relative flags are
// false when there is no viewer. Comments reports the sum of the comment
// and reply counters; the two are tracked by independent writers and
// summing avoids undercounting when either is stale.
type PostView struct {
	ID           string           `json:"id"`
	Content      *string          `json:"content"`
	MediaURL     *string          `json:"media_url"`
	LinkPreview  *LinkPreviewView `json:"link_preview"`
	Anonymous    bool             `json:"anonymous"`
	Author       *AuthorView      `json:"author"`
	CreatedAtMs  int64            `json:"created_at_ms"`
	IsLiked      bool             `json:"is_liked"`
	IsBookmarked bool             `json:"is_bookmarked"`
	Likes        int64            `json:"likes"`
	Comments     int64            `json:"comments"`
	Quotes       int64            `json:"quotes"`
	QuotedPost   *PostView        `json:"quoted_post"`
	Poll         *PollView        `json:"poll"`
}

// FormatPost projects a raw post (and its resolved quoted post, if any) into
// the response shape. viewerID <= 0 means no viewer: all viewer-relative
// flags come back false. Anonymous posts carry no author.
func FormatPost(post *Post, quoted *Post, viewerID int64) PostView {
	view := PostView{
		ID:           strconv.FormatInt(post.ID, 10),
		Content:      post.Content,
		MediaURL:     post.MediaURL,
		Anonymous:    post.Anonymous,
		CreatedAtMs:  post.CreatedAt.UnixMilli(),
		IsLiked:      post.LikedBy(viewerID),
		IsBookmarked: post.BookmarkedBy(viewerID),
		Likes:        post.LikeCount,
		Comments:     post.CommentCount + post.ReplyCount,
		Quotes:       post.QuoteCount,
	}

	if post.Preview.Present() {
		view.LinkPreview = &LinkPreviewView{
			URL:          post.Preview.URL,
			Title:        post.Preview.Title,
			Description:  post.Preview.Description,
			ThumbnailURL: post.Preview.ThumbnailURL,
			SiteName:     post.Preview.SiteName,
			Kind:         post.Preview.Kind,
			VideoID:      post.Preview.VideoID,
		}
	}

	if !post.Anonymous {
		view.Author = &AuthorView{
			ID:          strconv.FormatInt(post.Author.ID, 10),
			Username:    post.Author.Username,
			DisplayName: post.Author.DisplayName,
			AvatarURL:   post.Author.AvatarURL,
			Verified:    post.Author.Verified,
		}
	}

	if post.Poll != nil {
		view.Poll = formatPoll(post.Poll, viewerID)
	}

	if quoted != nil {
		quotedView := FormatPost(quoted, nil, viewerID)
		view.QuotedPost = &quotedView
	}

	return view
}

func formatPoll(poll *Poll, viewerID int64) *PollView {
	view := &PollView{
		ID:      strconv.FormatInt(poll.ID, 10),
		Options: make([]PollOptionView, 0, len(poll.Options)),
	}
	for _, option := range poll.Options {
		optionView := PollOptionView{
			ID:    strconv.FormatInt(option.ID, 10),
			Label: option.Label,
			Votes: int64(len(option.Votes)),
		}
		if viewerID > 0 {
			for _, vote := range option.Votes {
				if vote.UserID == viewerID {
					optionView.IsVoted = true
					break
				}
			}
		}
		view.Options = append(view.Options, optionView)
	}
	return view
}
