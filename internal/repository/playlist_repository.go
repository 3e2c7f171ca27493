package repository

import (
	"context"
	"errors"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlaylistRepository handles playlists and their ordered entries.
// Positions are 0-based and contiguous after every operation.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist *models.Playlist) error
	Get(ctx context.Context, playlistID string) (*models.Playlist, error)
	ListByUser(ctx context.Context, userID string, includePrivate bool, page Page) ([]models.Playlist, int64, error)
	Update(ctx context.Context, playlistID string, fields map[string]interface{}) (*models.Playlist, error)
	Delete(ctx context.Context, playlistID string) error

	AddTrack(ctx context.Context, playlistID, trackID string) (*models.Playlist, error)
	RemoveTrack(ctx context.Context, playlistID, trackID string) (*models.Playlist, error)
	MoveTrack(ctx context.Context, playlistID, trackID string, position int) (*models.Playlist, error)
}

type playlistRepository struct {
	db *gorm.DB
}

func NewPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &playlistRepository{db: db}
}

func (r *playlistRepository) Create(ctx context.Context, playlist *models.Playlist) error {
	if playlist == nil || playlist.UserID == "" || playlist.Title == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Omit("User", "Tracks").Create(playlist).Error
}

// Get loads the playlist with entries in position order
func (r *playlistRepository) Get(ctx context.Context, playlistID string) (*models.Playlist, error) {
	var playlist models.Playlist
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("User.Profile").
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Tracks.Track").
		First(&playlist, "id = ?", playlistID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

func (r *playlistRepository) ListByUser(ctx context.Context, userID string, includePrivate bool, page Page) ([]models.Playlist, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Playlist{}).Where("user_id = ?", userID)
	if !includePrivate {
		q = q.Where("is_public = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var playlists []models.Playlist
	err := q.Order("updated_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&playlists).Error
	return playlists, total, err
}

func (r *playlistRepository) Update(ctx context.Context, playlistID string, fields map[string]interface{}) (*models.Playlist, error) {
	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&models.Playlist{}).Where("id = ?", playlistID).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrPlaylistNotFound
		}
	}
	return r.Get(ctx, playlistID)
}

func (r *playlistRepository) Delete(ctx context.Context, playlistID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", playlistID).Delete(&models.PlaylistTrack{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", playlistID).Delete(&models.Playlist{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPlaylistNotFound
		}
		return nil
	})
}

// forUpdate row-locks the playlist so concurrent edits to its entries run one
// at a time. SQLite has no row locks; its single writer serializes instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func lockPlaylist(tx *gorm.DB, playlistID string) (*models.Playlist, error) {
	var playlist models.Playlist
	if err := forUpdate(tx).First(&playlist, "id = ?", playlistID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlaylistNotFound
		}
		return nil, err
	}
	return &playlist, nil
}

// AddTrack appends an approved track at the end
func (r *playlistRepository) AddTrack(ctx context.Context, playlistID, trackID string) (*models.Playlist, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		playlist, err := lockPlaylist(tx, playlistID)
		if err != nil {
			return err
		}
		if _, err := approvedTrack(tx, trackID); err != nil {
			return err
		}
		present, err := exists(tx, &models.PlaylistTrack{}, "playlist_id = ? AND track_id = ?", playlistID, trackID)
		if err != nil {
			return err
		}
		if present {
			return ErrTrackInPlaylist
		}
		entry := models.PlaylistTrack{
			PlaylistID: playlistID,
			TrackID:    trackID,
			Position:   playlist.TrackCount,
			AddedAt:    time.Now().UTC(),
		}
		if err := tx.Omit("Track").Create(&entry).Error; err != nil {
			return err
		}
		return recountPlaylist(tx, playlistID)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, playlistID)
}

// RemoveTrack deletes the entry and closes the gap
func (r *playlistRepository) RemoveTrack(ctx context.Context, playlistID, trackID string) (*models.Playlist, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPlaylist(tx, playlistID); err != nil {
			return err
		}
		res := tx.Where("playlist_id = ? AND track_id = ?", playlistID, trackID).Delete(&models.PlaylistTrack{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTrackNotInPlaylist
		}
		return recountPlaylist(tx, playlistID)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, playlistID)
}

// MoveTrack places trackID at position, shifting the entries in between
func (r *playlistRepository) MoveTrack(ctx context.Context, playlistID, trackID string, position int) (*models.Playlist, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPlaylist(tx, playlistID); err != nil {
			return err
		}
		var entries []models.PlaylistTrack
		if err := tx.Where("playlist_id = ?", playlistID).Order("position ASC").Find(&entries).Error; err != nil {
			return err
		}
		if position < 0 || position >= len(entries) {
			return ErrInvalidPosition
		}

		from := -1
		for i, e := range entries {
			if e.TrackID == trackID {
				from = i
				break
			}
		}
		if from < 0 {
			return ErrTrackNotInPlaylist
		}

		order := moveIndex(entries, from, position)
		for i, e := range order {
			if e.Position == i {
				continue
			}
			if err := tx.Model(&models.PlaylistTrack{}).
				Where("playlist_id = ? AND track_id = ?", playlistID, e.TrackID).
				UpdateColumn("position", i).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Playlist{}).Where("id = ?", playlistID).Update("updated_at", time.Now().UTC()).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, playlistID)
}

// moveIndex returns a copy of s with element from moved to index to
func moveIndex[T any](s []T, from, to int) []T {
	out := make([]T, 0, len(s))
	item := s[from]
	for i, v := range s {
		if i != from {
			out = append(out, v)
		}
	}
	out = append(out[:to], append([]T{item}, out[to:]...)...)
	return out
}
