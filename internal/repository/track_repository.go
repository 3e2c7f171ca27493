package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository handles tracks, moderation state and feeds
type TrackRepository interface {
	Create(ctx context.Context, track *models.Track) error
	Get(ctx context.Context, trackID string) (*models.Track, error)
	Update(ctx context.Context, trackID string, fields map[string]interface{}) (*models.Track, error)
	Delete(ctx context.Context, trackID string) (*models.Track, error)

	List(ctx context.Context, filter TrackFilter, page Page) ([]models.Track, int64, error)
	ListByUser(ctx context.Context, userID string, includeHidden bool, page Page) ([]models.Track, int64, error)
	ListByStatus(ctx context.Context, status models.TrackStatus, page Page) ([]models.Track, int64, error)
	ListApproved(ctx context.Context, afterID string, limit int) ([]models.Track, error)
	Search(ctx context.Context, query string, page Page) ([]models.Track, int64, error)
	GetVisible(ctx context.Context, ids []string) ([]models.Track, error)

	Moderate(ctx context.Context, trackID string, next models.TrackStatus, reason, moderatorID string) (*models.Track, models.TrackStatus, error)
	IncrementPlays(ctx context.Context, trackID string) error

	Trending(ctx context.Context, since time.Time, limit int) ([]models.Track, error)
	Feed(ctx context.Context, userID string, page Page) ([]FeedItem, error)

	CountByStatus(ctx context.Context) (map[models.TrackStatus]int64, error)
	TotalPlays(ctx context.Context) (int64, error)
}

const (
	SortLatest  = "latest"
	SortPopular = "popular"
)

// TrackFilter narrows public track listings
type TrackFilter struct {
	Sort  string
	Genre string
}

// FeedItem is a track surfaced in a feed, either uploaded or reposted by a followed user
type FeedItem struct {
	Track      models.Track `json:"track"`
	RepostedBy *string      `json:"reposted_by,omitempty"`
	ActivityAt time.Time    `json:"activity_at"`
}

type trackRepository struct {
	db *gorm.DB
}

func NewTrackRepository(db *gorm.DB) TrackRepository {
	return &trackRepository{db: db}
}

// visible restricts q to tracks any listener may see
func visible(q *gorm.DB) *gorm.DB {
	return q.
		Joins("JOIN users ON users.id = tracks.user_id AND users.is_banned = ? AND users.deleted_at IS NULL", false).
		Where("tracks.status = ? AND tracks.processing_status = ? AND tracks.is_public = ?",
			models.TrackApproved, models.ProcessingComplete, true)
}

func withOwner(q *gorm.DB) *gorm.DB {
	return q.Preload("User").Preload("User.Profile")
}

func (r *trackRepository) Create(ctx context.Context, track *models.Track) error {
	if track == nil || track.UserID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User").Create(track).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", track.UserID).
			UpdateColumn("track_count", gorm.Expr("track_count + 1")).Error
	})
}

func (r *trackRepository) Get(ctx context.Context, trackID string) (*models.Track, error) {
	var track models.Track
	err := withOwner(r.db.WithContext(ctx)).First(&track, "id = ?", trackID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &track, nil
}

func (r *trackRepository) Update(ctx context.Context, trackID string, fields map[string]interface{}) (*models.Track, error) {
	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&models.Track{}).Where("id = ?", trackID).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrTrackNotFound
		}
	}
	return r.Get(ctx, trackID)
}

// Delete removes the track and its likes, reposts, comments, notifications,
// history and playlist entries. The returned track carries the object keys to purge.
func (r *trackRepository) Delete(ctx context.Context, trackID string) (*models.Track, error) {
	var track models.Track
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&track, "id = ?", trackID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrackNotFound
			}
			return err
		}
		return deleteTrackCascade(tx, &track)
	})
	if err != nil {
		return nil, err
	}
	return &track, nil
}

func (r *trackRepository) List(ctx context.Context, filter TrackFilter, page Page) ([]models.Track, int64, error) {
	page = page.Normalize()
	q := visible(r.db.WithContext(ctx).Model(&models.Track{}))
	if filter.Genre != "" {
		q = q.Where("LOWER(tracks.genre) = LOWER(?)", filter.Genre)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch filter.Sort {
	case SortPopular:
		q = q.Order("tracks.play_count DESC").Order("tracks.like_count DESC").Order("tracks.created_at DESC")
	default:
		q = q.Order("tracks.created_at DESC")
	}

	var tracks []models.Track
	err := withOwner(q).Limit(page.Limit).Offset(page.Offset).Find(&tracks).Error
	return tracks, total, err
}

// ListByUser returns a user's tracks; includeHidden adds pending, rejected
// and private ones for the owner and admins
func (r *trackRepository) ListByUser(ctx context.Context, userID string, includeHidden bool, page Page) ([]models.Track, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Track{})
	if !includeHidden {
		q = visible(q)
	}
	q = q.Where("tracks.user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tracks []models.Track
	err := withOwner(q).Order("tracks.created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&tracks).Error
	return tracks, total, err
}

// ListByStatus is the moderation queue, oldest first
func (r *trackRepository) ListByStatus(ctx context.Context, status models.TrackStatus, page Page) ([]models.Track, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Track{}).Where("status = ?", status)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tracks []models.Track
	err := withOwner(q).Order("created_at ASC").Limit(page.Limit).Offset(page.Offset).Find(&tracks).Error
	return tracks, total, err
}

// ListApproved pages through every searchable track by id, for reindexing
func (r *trackRepository) ListApproved(ctx context.Context, afterID string, limit int) ([]models.Track, error) {
	var tracks []models.Track
	err := withOwner(visible(r.db.WithContext(ctx).Model(&models.Track{}))).
		Where("tracks.id > ?", afterID).
		Order("tracks.id ASC").
		Limit(limit).
		Find(&tracks).Error
	return tracks, err
}

// Search matches visible tracks by title, description, genre or tags
func (r *trackRepository) Search(ctx context.Context, query string, page Page) ([]models.Track, int64, error) {
	page = page.Normalize()
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	q := visible(r.db.WithContext(ctx).Model(&models.Track{})).
		Where("LOWER(tracks.title) LIKE ? OR LOWER(tracks.description) LIKE ? OR LOWER(tracks.genre) LIKE ? OR LOWER(CAST(tracks.tags AS TEXT)) LIKE ?",
			pattern, pattern, pattern, pattern)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tracks []models.Track
	err := withOwner(q).
		Order("tracks.like_count DESC").
		Order("tracks.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&tracks).Error
	return tracks, total, err
}

// GetVisible loads the visible tracks among ids, preserving the order of ids
func (r *trackRepository) GetVisible(ctx context.Context, ids []string) ([]models.Track, error) {
	if len(ids) == 0 {
		return []models.Track{}, nil
	}
	var found []models.Track
	if err := withOwner(visible(r.db.WithContext(ctx).Model(&models.Track{}))).
		Where("tracks.id IN ?", ids).
		Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Track, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]models.Track, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Moderate applies a status transition and returns the updated track and the previous status
func (r *trackRepository) Moderate(ctx context.Context, trackID string, next models.TrackStatus, reason, moderatorID string) (*models.Track, models.TrackStatus, error) {
	var prev models.TrackStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&track, "id = ?", trackID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrackNotFound
			}
			return err
		}
		prev = track.Status
		if !prev.CanTransition(next) {
			return ErrInvalidTransition
		}
		if next == models.TrackApproved && track.ProcessingStatus != models.ProcessingComplete {
			return ErrTrackNotReady
		}
		if next != models.TrackRejected {
			reason = ""
		}
		now := time.Now().UTC()
		fields := map[string]interface{}{
			"status":           next,
			"rejection_reason": reason,
			"moderated_at":     &now,
		}
		if moderatorID != "" {
			fields["moderated_by"] = moderatorID
		}
		return tx.Model(&track).Updates(fields).Error
	})
	if err != nil {
		return nil, prev, err
	}
	track, err := r.Get(ctx, trackID)
	return track, prev, err
}

// IncrementPlays bumps the lifetime counter and records the play for trending
func (r *trackRepository) IncrementPlays(ctx context.Context, trackID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Track{}).Where("id = ?", trackID).
			UpdateColumn("play_count", gorm.Expr("play_count + 1")).Error; err != nil {
			return err
		}
		return tx.Create(&models.Play{TrackID: trackID}).Error
	})
}

// Trending ranks visible tracks by likes and counted plays since the cutoff
func (r *trackRepository) Trending(ctx context.Context, since time.Time, limit int) ([]models.Track, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	// One expression: gorm drops an OrderBy expression merged with later Order calls.
	score := clause.Expr{
		SQL: "((SELECT COUNT(*) FROM likes WHERE likes.track_id = tracks.id AND likes.created_at >= ?) + " +
			"(SELECT COUNT(*) FROM plays WHERE plays.track_id = tracks.id AND plays.played_at >= ?)) DESC, " +
			"tracks.play_count DESC, tracks.created_at DESC",
		Vars:               []interface{}{since, since},
		WithoutParentheses: true,
	}
	var tracks []models.Track
	err := withOwner(visible(r.db.WithContext(ctx).Model(&models.Track{}))).
		Order(clause.OrderBy{Expression: score}).
		Limit(limit).
		Find(&tracks).Error
	return tracks, err
}

// Feed merges uploads and reposts by followed users, newest activity first,
// one entry per track
func (r *trackRepository) Feed(ctx context.Context, userID string, page Page) ([]FeedItem, error) {
	page = page.Normalize()
	window := page.Offset + page.Limit
	db := r.db.WithContext(ctx)

	followed := db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", userID)

	var uploads []models.Track
	if err := visible(db.Model(&models.Track{})).
		Where("tracks.user_id IN (?)", followed).
		Order("tracks.created_at DESC").
		Limit(window).
		Find(&uploads).Error; err != nil {
		return nil, err
	}

	// Rank reposted tracks by their latest repost, then load the repost rows
	// themselves to recover the time and reposter.
	var repostedIDs []string
	if err := visible(db.Table("reposts").
		Joins("JOIN tracks ON tracks.id = reposts.track_id AND tracks.deleted_at IS NULL")).
		Where("reposts.user_id IN (?)", followed).
		Group("reposts.track_id").
		Order("MAX(reposts.created_at) DESC").
		Limit(window).
		Pluck("reposts.track_id", &repostedIDs).Error; err != nil {
		return nil, err
	}

	items := make(map[string]*FeedItem, len(uploads)+len(repostedIDs))
	for _, t := range uploads {
		items[t.ID] = &FeedItem{Track: t, ActivityAt: t.CreatedAt}
	}

	if len(repostedIDs) > 0 {
		var reposts []models.Repost
		if err := db.Where("track_id IN ? AND user_id IN (?)", repostedIDs, followed).Find(&reposts).Error; err != nil {
			return nil, err
		}
		latest := make(map[string]models.Repost, len(repostedIDs))
		for _, rp := range reposts {
			if cur, ok := latest[rp.TrackID]; !ok || rp.CreatedAt.After(cur.CreatedAt) {
				latest[rp.TrackID] = rp
			}
		}

		var missing []string
		for id := range latest {
			if _, ok := items[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			var tracks []models.Track
			if err := db.Where("id IN ?", missing).Find(&tracks).Error; err != nil {
				return nil, err
			}
			for _, t := range tracks {
				items[t.ID] = &FeedItem{Track: t, ActivityAt: t.CreatedAt}
			}
		}
		for id, rp := range latest {
			item, ok := items[id]
			if !ok {
				continue
			}
			if rp.CreatedAt.After(item.ActivityAt) {
				by := rp.UserID
				item.RepostedBy = &by
				item.ActivityAt = rp.CreatedAt
			}
		}
	}

	feed := make([]FeedItem, 0, len(items))
	for _, item := range items {
		feed = append(feed, *item)
	}
	sort.Slice(feed, func(i, j int) bool {
		if feed[i].ActivityAt.Equal(feed[j].ActivityAt) {
			return feed[i].Track.ID > feed[j].Track.ID
		}
		return feed[i].ActivityAt.After(feed[j].ActivityAt)
	})

	if page.Offset >= len(feed) {
		return []FeedItem{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(feed) {
		end = len(feed)
	}
	feed = feed[page.Offset:end]

	if err := r.attachOwners(ctx, feed); err != nil {
		return nil, err
	}
	return feed, nil
}

func (r *trackRepository) attachOwners(ctx context.Context, feed []FeedItem) error {
	ids := make([]string, 0, len(feed))
	for _, item := range feed {
		ids = append(ids, item.Track.UserID)
	}
	if len(ids) == 0 {
		return nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Preload("Profile").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return err
	}
	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for i := range feed {
		feed[i].Track.User = byID[feed[i].Track.UserID]
	}
	return nil
}

func (r *trackRepository) CountByStatus(ctx context.Context) (map[models.TrackStatus]int64, error) {
	var rows []struct {
		Status models.TrackStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Track{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := map[models.TrackStatus]int64{
		models.TrackPending:  0,
		models.TrackApproved: 0,
		models.TrackRejected: 0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *trackRepository) TotalPlays(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Track{}).
		Select("COALESCE(SUM(play_count), 0)").
		Scan(&total).Error
	return total, err
}
