// Package notifications stores activity notifications and pushes them to
// connected websocket clients.
package notifications

import (
	"context"
	"strconv"
	"time"

	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/websocket"
	"go.uber.org/zap"
)

// Pusher is the part of the websocket hub the service needs
type Pusher interface {
	SendToUser(userID string, message *websocket.Message)
	IsUserOnline(userID string) bool
}

type Service struct {
	repo   repository.NotificationRepository
	pusher Pusher
	now    func() time.Time
}

// NewService builds a Service. pusher may be nil, in which case
// notifications are only stored.
func NewService(repo repository.NotificationRepository, pusher Pusher) *Service {
	return &Service{repo: repo, pusher: pusher, now: time.Now}
}

// Notify persists n and pushes it live when the recipient is connected.
// Notifications a user would send to themselves are dropped.
func (s *Service) Notify(ctx context.Context, n *models.Notification) error {
	if n == nil || n.RecipientID == "" {
		return repository.ErrInvalidInput
	}
	if n.ActorID != nil && *n.ActorID == n.RecipientID {
		return nil
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	delivered := s.push(ctx, n)
	metrics.Get().NotificationsTotal.WithLabelValues(string(n.Type), strconv.FormatBool(delivered)).Inc()
	logger.Log.Debug("Notification stored",
		logger.WithUserID(n.RecipientID),
		zap.String("type", string(n.Type)),
		zap.Bool("delivered", delivered))
	return nil
}

func (s *Service) push(ctx context.Context, n *models.Notification) bool {
	if s.pusher == nil || !s.pusher.IsUserOnline(n.RecipientID) {
		return false
	}
	s.pusher.SendToUser(n.RecipientID, websocket.NewMessage(websocket.MessageTypeNotification, n))
	s.pushCount(ctx, n.RecipientID)
	return true
}

func (s *Service) pushCount(ctx context.Context, userID string) {
	if s.pusher == nil || !s.pusher.IsUserOnline(userID) {
		return
	}
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		logger.Log.Warn("Failed to count unread notifications", logger.WithUserID(userID), zap.Error(err))
		return
	}
	s.pusher.SendToUser(userID, websocket.NewMessage(websocket.MessageTypeNotificationCount,
		websocket.NotificationCountPayload{UnreadCount: count}))
}

// NotifyAsync delivers n in the background so request handlers never wait on it
func (s *Service) NotifyAsync(n *models.Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Notify(ctx, n); err != nil {
			logger.Log.Warn("Failed to deliver notification",
				logger.WithUserID(n.RecipientID),
				zap.String("type", string(n.Type)),
				zap.Error(err))
		}
	}()
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, page repository.Page) ([]models.Notification, int64, error) {
	return s.repo.List(ctx, userID, unreadOnly, page)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC()); err != nil {
		return err
	}
	s.pushCount(ctx, userID)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.pushCount(ctx, userID)
	return n, nil
}

func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	if err := s.repo.Delete(ctx, userID, notificationID); err != nil {
		return err
	}
	s.pushCount(ctx, userID)
	return nil
}
