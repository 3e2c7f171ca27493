package models

import (
	"time"

	"gorm.io/gorm"
)

type ReportTargetType string

const (
	ReportTargetTrack   ReportTargetType = "track"
	ReportTargetComment ReportTargetType = "comment"
	ReportTargetUser    ReportTargetType = "user"
)

type ReportReason string

const (
	ReportSpam      ReportReason = "spam"
	ReportOffensive ReportReason = "offensive"
	ReportCopyright ReportReason = "copyright"
	ReportOther     ReportReason = "other"
)

type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Report flags content for moderator review
type Report struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	ReporterID     string           `gorm:"size:36;not null;index" json:"reporter_id"`
	TargetType     ReportTargetType `gorm:"size:20;not null;index:idx_reports_target" json:"target_type"`
	TargetID       string           `gorm:"size:36;not null;index:idx_reports_target" json:"target_id"`
	Reason         ReportReason     `gorm:"size:20;not null" json:"reason"`
	Details        string           `gorm:"type:text" json:"details,omitempty"`
	Status         ReportStatus     `gorm:"size:20;not null;default:open;index" json:"status"`
	ResolvedBy     *string          `gorm:"size:36" json:"resolved_by,omitempty"`
	ResolutionNote string           `gorm:"type:text" json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = ReportOpen
	}
	return nil
}

func ValidReportTarget(t ReportTargetType) bool {
	return t == ReportTargetTrack || t == ReportTargetComment || t == ReportTargetUser
}

func ValidReportReason(r ReportReason) bool {
	switch r {
	case ReportSpam, ReportOffensive, ReportCopyright, ReportOther:
		return true
	}
	return false
}
