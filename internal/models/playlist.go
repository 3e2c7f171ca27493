package models

import (
	"time"

	"gorm.io/gorm"
)

// Playlist is an ordered collection of tracks owned by one user
type Playlist struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	UserID      string `gorm:"size:36;not null;index" json:"user_id"`
	User        *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title       string `gorm:"size:120;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	IsPublic    bool   `gorm:"not null" json:"is_public"`

	TrackCount    int     `gorm:"default:0" json:"track_count"`
	TotalDuration float64 `gorm:"default:0" json:"total_duration"`

	Tracks []PlaylistTrack `gorm:"foreignKey:PlaylistID" json:"tracks,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Playlist) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return nil
}

// VisibleTo reports whether userID may view the playlist
func (p *Playlist) VisibleTo(userID string) bool {
	return p.IsPublic || p.UserID == userID
}

// PlaylistTrack places a track at a 0-based position in a playlist
type PlaylistTrack struct {
	PlaylistID string    `gorm:"primaryKey;size:36" json:"playlist_id"`
	TrackID    string    `gorm:"primaryKey;size:36;index" json:"track_id"`
	Track      *Track    `gorm:"foreignKey:TrackID" json:"track,omitempty"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	AddedAt    time.Time `json:"added_at"`
}
