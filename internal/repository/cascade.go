package repository

import (
	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

// deleteTrackCascade soft-deletes track and hard-deletes everything hanging off it
func deleteTrackCascade(tx *gorm.DB, track *models.Track) error {
	var playlistIDs []string
	if err := tx.Model(&models.PlaylistTrack{}).Where("track_id = ?", track.ID).
		Pluck("playlist_id", &playlistIDs).Error; err != nil {
		return err
	}

	steps := []struct {
		model interface{}
		where string
	}{
		{&models.Like{}, "track_id = ?"},
		{&models.Repost{}, "track_id = ?"},
		{&models.Comment{}, "track_id = ?"},
		{&models.Notification{}, "track_id = ?"},
		{&models.ListeningHistory{}, "track_id = ?"},
		{&models.Play{}, "track_id = ?"},
		{&models.PlaylistTrack{}, "track_id = ?"},
	}
	for _, s := range steps {
		if err := tx.Where(s.where, track.ID).Delete(s.model).Error; err != nil {
			return err
		}
	}
	for _, id := range playlistIDs {
		if err := recountPlaylist(tx, id); err != nil {
			return err
		}
	}

	if err := tx.Delete(track).Error; err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ? AND track_count > 0", track.UserID).
		UpdateColumn("track_count", gorm.Expr("track_count - 1")).Error
}

// recountPlaylist makes positions contiguous from 0 and refreshes the totals
func recountPlaylist(tx *gorm.DB, playlistID string) error {
	var entries []models.PlaylistTrack
	if err := tx.Preload("Track").Where("playlist_id = ?", playlistID).
		Order("position ASC").Order("added_at ASC").Find(&entries).Error; err != nil {
		return err
	}
	var total float64
	for i, e := range entries {
		if e.Track != nil {
			total += e.Track.DurationSeconds
		}
		if e.Position != i {
			if err := tx.Model(&models.PlaylistTrack{}).
				Where("playlist_id = ? AND track_id = ?", playlistID, e.TrackID).
				UpdateColumn("position", i).Error; err != nil {
				return err
			}
		}
	}
	return tx.Model(&models.Playlist{}).Where("id = ?", playlistID).UpdateColumns(map[string]interface{}{
		"track_count":    len(entries),
		"total_duration": total,
	}).Error
}

// releaseLikes deletes matching likes and decrements the liked tracks' counters
func releaseLikes(tx *gorm.DB, where string, args ...interface{}) error {
	var likes []models.Like
	if err := tx.Where(where, args...).Find(&likes).Error; err != nil {
		return err
	}
	for _, l := range likes {
		if err := decrement(tx, &models.Track{}, l.TrackID, "like_count"); err != nil {
			return err
		}
	}
	return tx.Where(where, args...).Delete(&models.Like{}).Error
}

func releaseReposts(tx *gorm.DB, where string, args ...interface{}) error {
	var reposts []models.Repost
	if err := tx.Where(where, args...).Find(&reposts).Error; err != nil {
		return err
	}
	for _, rp := range reposts {
		if err := decrement(tx, &models.Track{}, rp.TrackID, "repost_count"); err != nil {
			return err
		}
	}
	return tx.Where(where, args...).Delete(&models.Repost{}).Error
}

// releaseFollows removes both directions of userID's follow graph
func releaseFollows(tx *gorm.DB, userID string) error {
	var follows []models.Follow
	if err := tx.Where("follower_id = ? OR following_id = ?", userID, userID).Find(&follows).Error; err != nil {
		return err
	}
	for _, f := range follows {
		var err error
		if f.FollowerID == userID {
			err = decrement(tx, &models.User{}, f.FollowingID, "follower_count")
		} else {
			err = decrement(tx, &models.User{}, f.FollowerID, "following_count")
		}
		if err != nil {
			return err
		}
	}
	return tx.Where("follower_id = ? OR following_id = ?", userID, userID).Delete(&models.Follow{}).Error
}

// releaseComments deletes userID's comments and the replies under them
func releaseComments(tx *gorm.DB, userID string) error {
	var comments []models.Comment
	if err := tx.Where("user_id = ? OR parent_id IN (?)", userID,
		tx.Model(&models.Comment{}).Select("id").Where("user_id = ? AND parent_id IS NULL", userID),
	).Find(&comments).Error; err != nil {
		return err
	}
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
		if !c.IsDeleted {
			if err := decrement(tx, &models.Track{}, c.TrackID, "comment_count"); err != nil {
				return err
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("comment_id IN ?", ids).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.Comment{}).Error
}

// decrement lowers column on the row with id, never below zero
func decrement(tx *gorm.DB, model interface{}, id, column string) error {
	return tx.Model(model).Where("id = ? AND "+column+" > 0", id).
		UpdateColumn(column, gorm.Expr(column+" - 1")).Error
}

func increment(tx *gorm.DB, model interface{}, id, column string) error {
	return tx.Model(model).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}
