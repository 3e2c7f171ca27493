package repository

import (
	"context"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, recipientID string, unreadOnly bool, page Page) ([]models.Notification, int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID, notificationID string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	Delete(ctx context.Context, recipientID, notificationID string) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n == nil || n.RecipientID == "" || n.Type == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Omit("Actor").Create(n).Error
}

func (r *notificationRepository) List(ctx context.Context, recipientID string, unreadOnly bool, page Page) ([]models.Notification, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.Notification
	err := q.Preload("Actor").Preload("Actor.Profile").
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&items).Error
	return items, total, err
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	return count, err
}

// MarkRead is idempotent for an already read notification
func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, notificationID string, at time.Time) error {
	found, err := exists(r.db.WithContext(ctx), &models.Notification{}, "id = ? AND recipient_id = ?", notificationID, recipientID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotificationNotFound
	}
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", notificationID).
		Update("read_at", at).Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) Delete(ctx context.Context, recipientID, notificationID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteReadBefore prunes notifications read before cutoff
func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
