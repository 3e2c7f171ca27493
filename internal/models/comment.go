package models

import (
	"time"

	"gorm.io/gorm"
)

// CommentEditWindow is how long an author may edit a comment
const CommentEditWindow = 15 * time.Minute

// Comment is a remark on a track, optionally a reply to a top-level comment
type Comment struct {
	ID       string  `gorm:"primaryKey;size:36" json:"id"`
	TrackID  string  `gorm:"size:36;not null;index:idx_comments_track_created" json:"track_id"`
	UserID   string  `gorm:"size:36;not null;index" json:"user_id"`
	User     *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ParentID *string `gorm:"size:36;index" json:"parent_id,omitempty"`

	Body string `gorm:"type:text;not null" json:"body"`
	// Position in the track the comment refers to
	TimestampSeconds *float64 `json:"timestamp_seconds,omitempty"`

	IsEdited  bool `gorm:"default:false" json:"is_edited"`
	IsDeleted bool `gorm:"default:false" json:"is_deleted"`

	Replies []Comment `gorm:"-" json:"replies,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_comments_track_created" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return nil
}

// CanEdit reports whether the edit window is still open at now
func (c *Comment) CanEdit(now time.Time) bool {
	return !c.IsDeleted && now.Sub(c.CreatedAt) <= CommentEditWindow
}

// Redact hides the body of a deleted comment for display
func (c *Comment) Redact() {
	if c.IsDeleted {
		c.Body = ""
	}
}
