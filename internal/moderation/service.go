// Package moderation applies approve and reject decisions to tracks and
// fans the outcome out to search, notifications and email.
package moderation

import (
	"context"
	"errors"
	"strings"

	"github.com/soundbay/backend/internal/email"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/repository"
	"go.uber.org/zap"
)

// ErrReasonRequired is returned when a rejection has no reason
var ErrReasonRequired = errors.New("a rejection reason is required")

const maxReasonLength = 500

// Notifier stores and delivers a notification
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// Indexer keeps the search index in step with moderation
type Indexer interface {
	SyncTrack(ctx context.Context, track *models.Track) error
	RemoveTrack(ctx context.Context, trackID string) error
}

// Decision is the outcome of one moderation action
type Decision struct {
	Track    *models.Track      `json:"track"`
	Previous models.TrackStatus `json:"previous_status"`
}

type Service struct {
	tracks   repository.TrackRepository
	notifier Notifier
	mailer   email.Mailer
	index    Indexer
}

// NewService builds a Service. notifier, mailer and index may be nil.
func NewService(tracks repository.TrackRepository, notifier Notifier, mailer email.Mailer, index Indexer) *Service {
	return &Service{tracks: tracks, notifier: notifier, mailer: mailer, index: index}
}

// Approve moves a pending or rejected track to approved. The track must
// have finished processing.
func (s *Service) Approve(ctx context.Context, trackID, moderatorID string) (*Decision, error) {
	return s.decide(ctx, trackID, models.TrackApproved, "", moderatorID)
}

// Reject moves a pending or approved track to rejected. Objects are kept so
// the track can be approved later.
func (s *Service) Reject(ctx context.Context, trackID, reason, moderatorID string) (*Decision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if len([]rune(reason)) > maxReasonLength {
		reason = string([]rune(reason)[:maxReasonLength])
	}
	return s.decide(ctx, trackID, models.TrackRejected, reason, moderatorID)
}

func (s *Service) decide(ctx context.Context, trackID string, next models.TrackStatus, reason, moderatorID string) (*Decision, error) {
	track, prev, err := s.tracks.Moderate(ctx, trackID, next, reason, moderatorID)
	if err != nil {
		return nil, err
	}
	action := "approve"
	if next == models.TrackRejected {
		action = "reject"
	}
	metrics.Get().ModerationTotal.WithLabelValues(action).Inc()
	logger.Log.Info("Track moderated",
		logger.WithTrackID(track.ID),
		zap.String("moderator_id", moderatorID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))

	s.reindex(ctx, track)
	s.tellOwner(ctx, track)
	return &Decision{Track: track, Previous: prev}, nil
}

func (s *Service) reindex(ctx context.Context, track *models.Track) {
	if s.index == nil {
		return
	}
	var err error
	if track.Status == models.TrackApproved {
		err = s.index.SyncTrack(ctx, track)
	} else {
		err = s.index.RemoveTrack(ctx, track.ID)
	}
	if err != nil {
		logger.Log.Warn("Failed to update search index after moderation", logger.WithTrackID(track.ID), zap.Error(err))
	}
}

func (s *Service) tellOwner(ctx context.Context, track *models.Track) {
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notifications.Moderated(track)); err != nil {
			logger.Log.Warn("Failed to notify owner of moderation", logger.WithTrackID(track.ID), zap.Error(err))
		}
	}
	if s.mailer == nil || track.User == nil || track.User.Email == "" {
		return
	}
	if err := s.mailer.SendModerationResult(ctx, track.User.Email, track); err != nil {
		logger.Log.Warn("Failed to email moderation result",
			logger.WithTrackID(track.ID),
			logger.WithUserID(track.UserID),
			zap.Error(err))
	}
}
