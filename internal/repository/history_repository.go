package repository

import (
	"context"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

type HistoryRepository interface {
	Record(ctx context.Context, userID, trackID string, at time.Time, progress float64) error
	List(ctx context.Context, userID string, page Page) ([]models.ListeningHistory, int64, error)
	Clear(ctx context.Context, userID string) (int64, error)
	Remove(ctx context.Context, userID, entryID string) error
}

type historyRepository struct {
	db    *gorm.DB
	limit int
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db, limit: models.HistoryLimit}
}

// Record appends a play and trims the user's history to the newest entries
func (r *historyRepository) Record(ctx context.Context, userID, trackID string, at time.Time, progress float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.ListeningHistory{
			UserID:          userID,
			TrackID:         trackID,
			PlayedAt:        at,
			ProgressSeconds: progress,
		}
		if err := tx.Omit("Track").Create(&entry).Error; err != nil {
			return err
		}

		var stale []string
		if err := tx.Model(&models.ListeningHistory{}).
			Where("user_id = ?", userID).
			Order("played_at DESC").Order("id DESC").
			Offset(r.limit).
			Limit(MaxLimit).
			Pluck("id", &stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		return tx.Where("id IN ?", stale).Delete(&models.ListeningHistory{}).Error
	})
}

func (r *historyRepository) List(ctx context.Context, userID string, page Page) ([]models.ListeningHistory, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.ListeningHistory{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.ListeningHistory
	err := q.Preload("Track").Preload("Track.User").
		Order("played_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&entries).Error
	return entries, total, err
}

func (r *historyRepository) Clear(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ListeningHistory{})
	return res.RowsAffected, res.Error
}

func (r *historyRepository) Remove(ctx context.Context, userID, entryID string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", entryID, userID).Delete(&models.ListeningHistory{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrHistoryNotFound
	}
	return nil
}
