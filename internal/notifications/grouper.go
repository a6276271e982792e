package notifications

import (
	"sort"
	"strconv"
	"time"

	"github.com/tessera-social/tessera/internal/posts"
)

// followMergeWindow bounds the gap under which consecutive FOLLOW
// notifications collapse into one group.
const followMergeWindow = 3 * time.Hour

// ActorSnapshot is the projection of an acting user carried by a group.
type ActorSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// GroupedNotification is the transient display grouping of one or more
// notifications. It is rebuilt on every grouping pass and never persisted.
// Read is the logical AND of all constituent read flags. NotificationID and
// CreatedAt identify the representative (most recent) constituent. SourceIDs
// lists every constituent for batched mark-read.
type GroupedNotification struct {
	Type           Type            `json:"type"`
	Read           bool            `json:"read"`
	NotificationID int64           `json:"notification_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Actors         []ActorSnapshot `json:"actors"`
	Post           *posts.Post     `json:"-"`
	SourceIDs      []int64         `json:"source_ids"`
}

// Group collapses a newest-first notification sequence into display groups.
// Likes on the same post merge into one group; consecutive follows merge
// while their timestamps stay within the three hour window. All other kinds
// stay singletons. The caller guarantees the input is sorted by creation
// time descending; the output is defensively re-sorted the same way since
// like-merges can promote a group's representative timestamp.
//
// The follow window is tracked through whichever follow group was appended
// last, not keyed by any entity: a non-follow notification between two
// follows does not close the window.
func Group(notifs []Notification) []GroupedNotification {
	groups := make([]GroupedNotification, 0, len(notifs))
	likeGroupByPost := make(map[int64]int)
	lastFollowGroup := -1

	for i := range notifs {
		notif := &notifs[i]
		switch {
		case notif.Type == TypeLike && notif.PostID != nil:
			if index, open := likeGroupByPost[*notif.PostID]; open {
				mergeLike(&groups[index], notif)
				continue
			}
			groups = append(groups, newGroup(notif))
			likeGroupByPost[*notif.PostID] = len(groups) - 1

		case notif.Type == TypeFollow:
			if lastFollowGroup >= 0 {
				gap := groups[lastFollowGroup].CreatedAt.Sub(notif.CreatedAt)
				if gap < 0 {
					gap = -gap
				}
				if gap < followMergeWindow {
					mergeFollow(&groups[lastFollowGroup], notif)
					continue
				}
			}
			groups = append(groups, newGroup(notif))
			lastFollowGroup = len(groups) - 1

		default:
			// Includes malformed likes with no post reference: those fall
			// back to non-mergeable singletons rather than erroring.
			groups = append(groups, newGroup(notif))
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups
}

func newGroup(notif *Notification) GroupedNotification {
	group := GroupedNotification{
		Type:           notif.Type,
		Read:           notif.Read,
		NotificationID: notif.ID,
		CreatedAt:      notif.CreatedAt,
		Actors:         []ActorSnapshot{snapshotActor(notif)},
		SourceIDs:      []int64{notif.ID},
	}
	if notif.Post != nil {
		group.Post = notif.Post
	}
	return group
}

// mergeLike folds a like into its open group. The representative id and
// timestamp advance only when the incoming notification is strictly newer.
func mergeLike(group *GroupedNotification, notif *Notification) {
	appendActor(group, notif)
	group.SourceIDs = append(group.SourceIDs, notif.ID)
	group.Read = group.Read && notif.Read
	if notif.CreatedAt.After(group.CreatedAt) {
		group.NotificationID = notif.ID
		group.CreatedAt = notif.CreatedAt
	}
}

// mergeFollow folds a follow into the open follow group. Unlike likes, the
// representative id and timestamp never advance.
func mergeFollow(group *GroupedNotification, notif *Notification) {
	appendActor(group, notif)
	group.SourceIDs = append(group.SourceIDs, notif.ID)
	group.Read = group.Read && notif.Read
}

// appendActor adds the notification's actor unless already present,
// preserving first-seen order.
func appendActor(group *GroupedNotification, notif *Notification) {
	snapshot := snapshotActor(notif)
	for _, actor := range group.Actors {
		if actor.ID == snapshot.ID {
			return
		}
	}
	group.Actors = append(group.Actors, snapshot)
}

func snapshotActor(notif *Notification) ActorSnapshot {
	return ActorSnapshot{
		ID:          strconv.FormatInt(notif.ActorID, 10),
		Username:    notif.Actor.Username,
		DisplayName: notif.Actor.DisplayName,
		AvatarURL:   notif.Actor.AvatarURL,
	}
}
