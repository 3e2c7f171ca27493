package repository

import (
	"context"
	"errors"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

// SocialRepository handles likes, reposts and follows. Counters change in
// the same transaction as the pivot row.
type SocialRepository interface {
	Like(ctx context.Context, userID, trackID string) (*models.Track, error)
	Unlike(ctx context.Context, userID, trackID string) (*models.Track, error)
	IsLiked(ctx context.Context, userID, trackID string) (bool, error)
	Likers(ctx context.Context, trackID string, page Page) ([]models.User, error)
	LikedTracks(ctx context.Context, userID string, page Page) ([]models.Track, error)

	Repost(ctx context.Context, userID, trackID, caption string) (*models.Track, error)
	Unrepost(ctx context.Context, userID, trackID string) (*models.Track, error)
	IsReposted(ctx context.Context, userID, trackID string) (bool, error)

	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	Followers(ctx context.Context, userID string, page Page) ([]models.User, error)
	Following(ctx context.Context, userID string, page Page) ([]models.User, error)
}

type socialRepository struct {
	db *gorm.DB
}

func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

// approvedTrack loads a track that listeners may interact with
func approvedTrack(tx *gorm.DB, trackID string) (*models.Track, error) {
	var track models.Track
	if err := tx.First(&track, "id = ?", trackID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, err
	}
	if track.Status != models.TrackApproved {
		return nil, ErrTrackNotApproved
	}
	return &track, nil
}

func exists(tx *gorm.DB, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	err := tx.Model(model).Where(query, args...).Count(&count).Error
	return count > 0, err
}

func (r *socialRepository) reload(ctx context.Context, trackID string) (*models.Track, error) {
	var track models.Track
	if err := r.db.WithContext(ctx).First(&track, "id = ?", trackID).Error; err != nil {
		return nil, err
	}
	return &track, nil
}

func (r *socialRepository) Like(ctx context.Context, userID, trackID string) (*models.Track, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := approvedTrack(tx, trackID); err != nil {
			return err
		}
		liked, err := exists(tx, &models.Like{}, "user_id = ? AND track_id = ?", userID, trackID)
		if err != nil {
			return err
		}
		if liked {
			return ErrAlreadyLiked
		}
		if err := tx.Create(&models.Like{UserID: userID, TrackID: trackID}).Error; err != nil {
			return err
		}
		return increment(tx, &models.Track{}, trackID, "like_count")
	})
	if err != nil {
		return nil, err
	}
	return r.reload(ctx, trackID)
}

func (r *socialRepository) Unlike(ctx context.Context, userID, trackID string) (*models.Track, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND track_id = ?", userID, trackID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotLiked
		}
		return decrement(tx, &models.Track{}, trackID, "like_count")
	})
	if err != nil {
		return nil, err
	}
	track, err := r.reload(ctx, trackID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	return track, err
}

func (r *socialRepository) IsLiked(ctx context.Context, userID, trackID string) (bool, error) {
	return exists(r.db.WithContext(ctx), &models.Like{}, "user_id = ? AND track_id = ?", userID, trackID)
}

func (r *socialRepository) Likers(ctx context.Context, trackID string, page Page) ([]models.User, error) {
	page = page.Normalize()
	var users []models.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Joins("JOIN likes ON likes.user_id = users.id").
		Where("likes.track_id = ?", trackID).
		Order("likes.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&users).Error
	return users, err
}

// LikedTracks lists the visible tracks userID liked, most recent like first
func (r *socialRepository) LikedTracks(ctx context.Context, userID string, page Page) ([]models.Track, error) {
	page = page.Normalize()
	var tracks []models.Track
	err := withOwner(visible(r.db.WithContext(ctx).Model(&models.Track{}))).
		Joins("JOIN likes ON likes.track_id = tracks.id").
		Where("likes.user_id = ?", userID).
		Order("likes.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&tracks).Error
	return tracks, err
}

func (r *socialRepository) Repost(ctx context.Context, userID, trackID, caption string) (*models.Track, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		track, err := approvedTrack(tx, trackID)
		if err != nil {
			return err
		}
		if track.UserID == userID {
			return ErrSelfRepost
		}
		reposted, err := exists(tx, &models.Repost{}, "user_id = ? AND track_id = ?", userID, trackID)
		if err != nil {
			return err
		}
		if reposted {
			return ErrAlreadyReposted
		}
		if err := tx.Create(&models.Repost{UserID: userID, TrackID: trackID, Caption: caption}).Error; err != nil {
			return err
		}
		return increment(tx, &models.Track{}, trackID, "repost_count")
	})
	if err != nil {
		return nil, err
	}
	return r.reload(ctx, trackID)
}

func (r *socialRepository) Unrepost(ctx context.Context, userID, trackID string) (*models.Track, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND track_id = ?", userID, trackID).Delete(&models.Repost{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotReposted
		}
		return decrement(tx, &models.Track{}, trackID, "repost_count")
	})
	if err != nil {
		return nil, err
	}
	track, err := r.reload(ctx, trackID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	return track, err
}

func (r *socialRepository) IsReposted(ctx context.Context, userID, trackID string) (bool, error) {
	return exists(r.db.WithContext(ctx), &models.Repost{}, "user_id = ? AND track_id = ?", userID, trackID)
}

func (r *socialRepository) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return ErrSelfFollow
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := exists(tx, &models.User{}, "id = ?", followingID)
		if err != nil {
			return err
		}
		if !target {
			return ErrUserNotFound
		}
		following, err := exists(tx, &models.Follow{}, "follower_id = ? AND following_id = ?", followerID, followingID)
		if err != nil {
			return err
		}
		if following {
			return ErrAlreadyFollowing
		}
		if err := tx.Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error; err != nil {
			return err
		}
		if err := increment(tx, &models.User{}, followingID, "follower_count"); err != nil {
			return err
		}
		return increment(tx, &models.User{}, followerID, "following_count")
	})
}

func (r *socialRepository) Unfollow(ctx context.Context, followerID, followingID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFollowing
		}
		if err := decrement(tx, &models.User{}, followingID, "follower_count"); err != nil {
			return err
		}
		return decrement(tx, &models.User{}, followerID, "following_count")
	})
}

func (r *socialRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	return exists(r.db.WithContext(ctx), &models.Follow{}, "follower_id = ? AND following_id = ?", followerID, followingID)
}

// Followers gets users following userID
func (r *socialRepository) Followers(ctx context.Context, userID string, page Page) ([]models.User, error) {
	page = page.Normalize()
	var users []models.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.following_id = ?", userID).
		Order("follows.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&users).Error
	return users, err
}

// Following gets users that userID follows
func (r *socialRepository) Following(ctx context.Context, userID string, page Page) ([]models.User, error) {
	page = page.Normalize()
	var users []models.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Joins("JOIN follows ON follows.following_id = users.id").
		Where("follows.follower_id = ?", userID).
		Order("follows.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&users).Error
	return users, err
}
