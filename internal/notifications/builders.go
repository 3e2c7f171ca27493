package notifications

import (
	"fmt"

	"github.com/soundbay/backend/internal/models"
)

func ref(s string) *string { return &s }

func trackTitle(t *models.Track) string {
	return fmt.Sprintf("%q", t.Title)
}

func Liked(actor *models.User, track *models.Track) *models.Notification {
	return &models.Notification{
		RecipientID: track.UserID,
		ActorID:     ref(actor.ID),
		Type:        models.NotifyLike,
		TrackID:     ref(track.ID),
		Message:     fmt.Sprintf("%s liked %s", actor.Username, trackTitle(track)),
	}
}

func Reposted(actor *models.User, track *models.Track) *models.Notification {
	return &models.Notification{
		RecipientID: track.UserID,
		ActorID:     ref(actor.ID),
		Type:        models.NotifyRepost,
		TrackID:     ref(track.ID),
		Message:     fmt.Sprintf("%s reposted %s", actor.Username, trackTitle(track)),
	}
}

func Followed(actor *models.User, followingID string) *models.Notification {
	return &models.Notification{
		RecipientID: followingID,
		ActorID:     ref(actor.ID),
		Type:        models.NotifyFollow,
		Message:     fmt.Sprintf("%s started following you", actor.Username),
	}
}

func Commented(actor *models.User, track *models.Track, comment *models.Comment) *models.Notification {
	return &models.Notification{
		RecipientID: track.UserID,
		ActorID:     ref(actor.ID),
		Type:        models.NotifyComment,
		TrackID:     ref(track.ID),
		CommentID:   ref(comment.ID),
		Message:     fmt.Sprintf("%s commented on %s", actor.Username, trackTitle(track)),
	}
}

func Replied(actor *models.User, parentAuthorID string, track *models.Track, comment *models.Comment) *models.Notification {
	return &models.Notification{
		RecipientID: parentAuthorID,
		ActorID:     ref(actor.ID),
		Type:        models.NotifyReply,
		TrackID:     ref(track.ID),
		CommentID:   ref(comment.ID),
		Message:     fmt.Sprintf("%s replied to your comment on %s", actor.Username, trackTitle(track)),
	}
}

func Mentioned(actor *models.User, recipientID string, track *models.Track, comment *models.Comment) *models.Notification {
	return &models.Notification{
		RecipientID: recipientID,
		ActorID:     ref(actor.ID),
		Type:        models.NotifyMention,
		TrackID:     ref(track.ID),
		CommentID:   ref(comment.ID),
		Message:     fmt.Sprintf("%s mentioned you on %s", actor.Username, trackTitle(track)),
	}
}

// Moderated tells the owner about an approval or rejection. Moderation
// notices carry no actor so they are never dropped as self-notifications.
func Moderated(track *models.Track) *models.Notification {
	n := &models.Notification{
		RecipientID: track.UserID,
		TrackID:     ref(track.ID),
	}
	if track.Status == models.TrackApproved {
		n.Type = models.NotifyTrackApproved
		n.Message = fmt.Sprintf("Your track %s was approved", trackTitle(track))
	} else {
		n.Type = models.NotifyTrackRejected
		n.Message = fmt.Sprintf("Your track %s was rejected", trackTitle(track))
		if track.RejectionReason != "" {
			n.Message += ": " + track.RejectionReason
		}
	}
	return n
}
