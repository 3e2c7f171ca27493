package models

import (
	"time"

	"gorm.io/gorm"
)

type NotificationType string

const (
	NotifyLike          NotificationType = "like"
	NotifyRepost        NotificationType = "repost"
	NotifyComment       NotificationType = "comment"
	NotifyReply         NotificationType = "reply"
	NotifyMention       NotificationType = "mention"
	NotifyFollow        NotificationType = "follow"
	NotifyTrackApproved NotificationType = "track_approved"
	NotifyTrackRejected NotificationType = "track_rejected"
	NotifyTrackFailed   NotificationType = "track_failed"
)

// Notification is a stored activity item for a recipient
type Notification struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	RecipientID string           `gorm:"size:36;not null;index:idx_notifications_recipient" json:"recipient_id"`
	ActorID     *string          `gorm:"size:36" json:"actor_id,omitempty"`
	Actor       *User            `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Type        NotificationType `gorm:"size:30;not null" json:"type"`
	TrackID     *string          `gorm:"size:36;index" json:"track_id,omitempty"`
	CommentID   *string          `gorm:"size:36" json:"comment_id,omitempty"`
	Message     string           `gorm:"type:text" json:"message"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `gorm:"index:idx_notifications_recipient" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = newID()
	}
	return nil
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
