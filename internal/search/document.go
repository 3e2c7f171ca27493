package search

import (
	"time"

	"github.com/soundbay/backend/internal/models"
)

// TrackDoc is the indexed form of a visible track
type TrackDoc struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	PlayCount       int       `json:"play_count"`
	LikeCount       int       `json:"like_count"`
	CreatedAt       time.Time `json:"created_at"`
}

type UserDoc struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Genres        []string  `json:"genres,omitempty"`
	FollowerCount int       `json:"follower_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// TrackToDoc expects track.User to be loaded for the owner fields
func TrackToDoc(track *models.Track) TrackDoc {
	doc := TrackDoc{
		ID:              track.ID,
		UserID:          track.UserID,
		Title:           track.Title,
		Description:     track.Description,
		Genre:           track.Genre,
		Tags:            []string(track.Tags),
		DurationSeconds: track.DurationSeconds,
		PlayCount:       track.PlayCount,
		LikeCount:       track.LikeCount,
		CreatedAt:       track.CreatedAt,
	}
	if track.User != nil {
		doc.Username = track.User.Username
		if track.User.Profile != nil {
			doc.DisplayName = track.User.Profile.DisplayName
		}
	}
	return doc
}

func UserToDoc(user *models.User) UserDoc {
	doc := UserDoc{
		ID:            user.ID,
		Username:      user.Username,
		FollowerCount: user.FollowerCount,
		CreatedAt:     user.CreatedAt,
	}
	if user.Profile != nil {
		doc.DisplayName = user.Profile.DisplayName
		doc.Bio = user.Profile.Bio
		doc.Genres = []string(user.Profile.Genres)
	}
	return doc
}

// searchable reports whether a track belongs in the index
func searchable(track *models.Track) bool {
	return track.Status == models.TrackApproved &&
		track.ProcessingStatus == models.ProcessingComplete &&
		track.IsPublic
}
