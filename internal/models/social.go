package models

import "time"

// Like is the (user, track) pivot for likes
type Like struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	TrackID   string    `gorm:"primaryKey;size:36;index" json:"track_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Track     *Track    `gorm:"foreignKey:TrackID" json:"track,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repost shares a track onto the reposter's followers' feeds
type Repost struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	TrackID   string    `gorm:"primaryKey;size:36;index" json:"track_id"`
	Caption   string    `gorm:"size:280" json:"caption,omitempty"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Track     *Track    `gorm:"foreignKey:TrackID" json:"track,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Follow is a directed follower -> following edge
type Follow struct {
	FollowerID  string    `gorm:"primaryKey;size:36" json:"follower_id"`
	FollowingID string    `gorm:"primaryKey;size:36;index" json:"following_id"`
	Follower    *User     `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Following   *User     `gorm:"foreignKey:FollowingID" json:"following,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
