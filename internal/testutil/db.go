// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/soundbay/backend/internal/database"
	"github.com/soundbay/backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated SQLite database that lives for the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with the given username
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Email:    username + "@example.com",
		Username: username,
		Profile:  &models.Profile{DisplayName: username},
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateTrack inserts an approved, transcoded public track owned by userID
func CreateTrack(t *testing.T, db *gorm.DB, userID, title string) *models.Track {
	t.Helper()
	tr := &models.Track{
		UserID:           userID,
		Title:            title,
		Genre:            "electronic",
		IsPublic:         true,
		Status:           models.TrackApproved,
		ProcessingStatus: models.ProcessingComplete,
		AudioKey:         "audio/" + title + ".mp3",
		AudioURL:         "http://cdn.test/audio/" + title + ".mp3",
		DurationSeconds:  120,
	}
	require.NoError(t, db.Create(tr).Error)
	return tr
}
