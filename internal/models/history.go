package models

import (
	"time"

	"gorm.io/gorm"
)

// HistoryLimit bounds stored listening history per user
const HistoryLimit = 500

// ListeningHistory records one play of a track by a signed-in listener
type ListeningHistory struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	UserID          string    `gorm:"size:36;not null;index:idx_history_user_played" json:"user_id"`
	TrackID         string    `gorm:"size:36;not null;index" json:"track_id"`
	Track           *Track    `gorm:"foreignKey:TrackID" json:"track,omitempty"`
	PlayedAt        time.Time `gorm:"not null;index:idx_history_user_played" json:"played_at"`
	ProgressSeconds float64   `json:"progress_seconds"`
}

func (ListeningHistory) TableName() string {
	return "listening_history"
}

func (h *ListeningHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = newID()
	}
	return nil
}

// Play is one counted play of a track, signed in or not. It backs trending
// and is independent of a listener's history, which they can clear.
type Play struct {
	ID       string    `gorm:"primaryKey;size:36" json:"id"`
	TrackID  string    `gorm:"size:36;not null;index:idx_plays_track_played" json:"track_id"`
	PlayedAt time.Time `gorm:"not null;index:idx_plays_track_played;index" json:"played_at"`
}

func (p *Play) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.PlayedAt.IsZero() {
		p.PlayedAt = time.Now().UTC()
	}
	return nil
}
