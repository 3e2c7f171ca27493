package models

import (
	"time"

	"gorm.io/gorm"
)

// TrackStatus is the moderation state of a track
type TrackStatus string

const (
	TrackPending  TrackStatus = "pending"
	TrackApproved TrackStatus = "approved"
	TrackRejected TrackStatus = "rejected"
)

// ProcessingStatus is the transcode pipeline state of a track
type ProcessingStatus string

const (
	ProcessingQueued     ProcessingStatus = "queued"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingComplete   ProcessingStatus = "complete"
	ProcessingFailed     ProcessingStatus = "failed"
)

// RejectionTranscodeFailed is the reason recorded when the pipeline fails
const RejectionTranscodeFailed = "transcoding failed"

// CanTransition reports whether moderation may move a track from s to next.
// Tracks never return to pending.
func (s TrackStatus) CanTransition(next TrackStatus) bool {
	switch s {
	case TrackPending:
		return next == TrackApproved || next == TrackRejected
	case TrackApproved:
		return next == TrackRejected
	case TrackRejected:
		return next == TrackApproved
	}
	return false
}

func (s TrackStatus) Valid() bool {
	return s == TrackPending || s == TrackApproved || s == TrackRejected
}

// Track is an uploaded piece of audio
type Track struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"size:36;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Title       string      `gorm:"size:120;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Genre       string      `gorm:"size:50;index" json:"genre"`
	Tags        StringArray `json:"tags"`
	IsPublic    bool        `gorm:"not null" json:"is_public"`

	Status          TrackStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	RejectionReason string      `gorm:"type:text" json:"rejection_reason,omitempty"`
	ModeratedBy     *string     `gorm:"size:36" json:"moderated_by,omitempty"`
	ModeratedAt     *time.Time  `json:"moderated_at,omitempty"`

	ProcessingStatus ProcessingStatus `gorm:"size:20;not null;default:queued;index" json:"processing_status"`
	ProcessingError  string           `gorm:"type:text" json:"processing_error,omitempty"`

	OriginalKey      string `json:"-"`
	OriginalFilename string `json:"original_filename"`
	AudioKey         string `json:"-"`
	AudioURL         string `json:"audio_url,omitempty"`
	WaveformKey      string `json:"-"`
	WaveformURL      string `json:"waveform_url,omitempty"`
	Waveform         Peaks  `gorm:"type:text" json:"-"`

	DurationSeconds float64 `json:"duration_seconds"`
	FileSize        int64   `json:"file_size"`
	Bitrate         int     `json:"bitrate"`

	PlayCount    int `gorm:"default:0" json:"play_count"`
	LikeCount    int `gorm:"default:0" json:"like_count"`
	RepostCount  int `gorm:"default:0" json:"repost_count"`
	CommentCount int `gorm:"default:0" json:"comment_count"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Status == "" {
		t.Status = TrackPending
	}
	if t.ProcessingStatus == "" {
		t.ProcessingStatus = ProcessingQueued
	}
	return nil
}

// Streamable reports whether listeners may play the track
func (t *Track) Streamable() bool {
	return t.Status == TrackApproved && t.ProcessingStatus == ProcessingComplete && t.AudioKey != ""
}

// VisibleTo reports whether viewerID may see the track's details
func (t *Track) VisibleTo(viewerID string, isAdmin bool) bool {
	if isAdmin || (viewerID != "" && viewerID == t.UserID) {
		return true
	}
	return t.Status == TrackApproved && t.IsPublic
}
