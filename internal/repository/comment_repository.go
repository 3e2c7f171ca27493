package repository

import (
	"context"
	"errors"
	"time"

	"github.com/soundbay/backend/internal/models"
	"gorm.io/gorm"
)

// CommentRepository handles threaded comments on tracks
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) (*CreatedComment, error)
	Get(ctx context.Context, commentID string) (*models.Comment, error)
	ListForTrack(ctx context.Context, trackID string, page Page) ([]models.Comment, int64, error)
	Update(ctx context.Context, commentID, body string, now time.Time) (*models.Comment, error)
	Delete(ctx context.Context, commentID string) (*models.Comment, error)
}

// CreatedComment is a new comment with the context needed to notify people
type CreatedComment struct {
	Comment *models.Comment
	Track   *models.Track
	// RepliedTo is the comment the author answered, nil for top-level comments
	RepliedTo *models.Comment
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create stores a comment. Replies to replies attach to the top-level parent
// so threads stay one level deep.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) (*CreatedComment, error) {
	if comment == nil || comment.TrackID == "" || comment.UserID == "" {
		return nil, ErrInvalidInput
	}
	out := &CreatedComment{Comment: comment}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		track, err := approvedTrack(tx, comment.TrackID)
		if err != nil {
			return err
		}
		out.Track = track

		if comment.ParentID != nil && *comment.ParentID != "" {
			var parent models.Comment
			if err := tx.First(&parent, "id = ? AND track_id = ?", *comment.ParentID, comment.TrackID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrCommentNotFound
				}
				return err
			}
			if parent.IsDeleted {
				return ErrCommentDeleted
			}
			out.RepliedTo = &parent
			if parent.ParentID != nil {
				top := *parent.ParentID
				comment.ParentID = &top
			}
		} else {
			comment.ParentID = nil
		}

		if err := tx.Omit("User").Create(comment).Error; err != nil {
			return err
		}
		return increment(tx, &models.Track{}, comment.TrackID, "comment_count")
	})
	if err != nil {
		return nil, err
	}

	if created, err := r.Get(ctx, comment.ID); err == nil {
		out.Comment = created
	}
	return out, nil
}

func (r *commentRepository) Get(ctx context.Context, commentID string) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).Preload("User").Preload("User.Profile").First(&comment, "id = ?", commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListForTrack pages top-level comments newest first with their replies
// nested oldest first. Deleted comments keep their place, body redacted, only
// while they still have live replies.
func (r *commentRepository) ListForTrack(ctx context.Context, trackID string, page Page) ([]models.Comment, int64, error) {
	page = page.Normalize()
	db := r.db.WithContext(ctx)

	q := db.Model(&models.Comment{}).
		Where("track_id = ? AND parent_id IS NULL", trackID).
		Where("is_deleted = ? OR EXISTS (SELECT 1 FROM comments AS replies WHERE replies.parent_id = comments.id AND replies.is_deleted = ?)", false, false)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var top []models.Comment
	if err := q.Preload("User").Preload("User.Profile").
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&top).Error; err != nil {
		return nil, 0, err
	}
	if len(top) == 0 {
		return top, total, nil
	}

	ids := make([]string, len(top))
	for i := range top {
		ids[i] = top[i].ID
	}
	var replies []models.Comment
	if err := db.Preload("User").Preload("User.Profile").
		Where("parent_id IN ? AND is_deleted = ?", ids, false).
		Order("created_at ASC").
		Find(&replies).Error; err != nil {
		return nil, 0, err
	}

	byParent := make(map[string][]models.Comment, len(top))
	for _, reply := range replies {
		byParent[*reply.ParentID] = append(byParent[*reply.ParentID], reply)
	}
	for i := range top {
		top[i].Redact()
		top[i].Replies = byParent[top[i].ID]
	}
	return top, total, nil
}

// Update edits the body while the edit window is open
func (r *commentRepository) Update(ctx context.Context, commentID, body string, now time.Time) (*models.Comment, error) {
	comment, err := r.Get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.IsDeleted {
		return nil, ErrCommentDeleted
	}
	if !comment.CanEdit(now) {
		return nil, ErrEditWindowExpired
	}
	if err := r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", commentID).
		Updates(map[string]interface{}{"body": body, "is_edited": true}).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, commentID)
}

// Delete soft-deletes the comment and decrements the track's counter
func (r *commentRepository) Delete(ctx context.Context, commentID string) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&comment, "id = ?", commentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCommentNotFound
			}
			return err
		}
		if comment.IsDeleted {
			return ErrCommentDeleted
		}
		if err := tx.Model(&comment).Update("is_deleted", true).Error; err != nil {
			return err
		}
		return decrement(tx, &models.Track{}, comment.TrackID, "comment_count")
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}
