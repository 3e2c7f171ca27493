package seed

import (
	"context"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var small = Counts{
	Users:     6,
	Tracks:    12,
	Follows:   15,
	Likes:     30,
	Reposts:   8,
	Comments:  20,
	Playlists: 3,
	Plays:     40,
}

func TestSeedDevKeepsCountersConsistent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, NewSeeder(db).SeedDev(ctx, small))

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Equal(t, int64(small.Users), users)

	var tracks []models.Track
	require.NoError(t, db.Find(&tracks).Error)
	require.Len(t, tracks, small.Tracks)
	for _, tr := range tracks {
		var likes int64
		db.Model(&models.Like{}).Where("track_id = ?", tr.ID).Count(&likes)
		assert.Equal(t, int(likes), tr.LikeCount, tr.ID)
	}

	var owners []models.User
	require.NoError(t, db.Find(&owners).Error)
	total := 0
	for _, u := range owners {
		total += u.TrackCount
		assert.True(t, models.ValidUsername(u.Username), u.Username)
	}
	assert.Equal(t, small.Tracks, total)

	var selfReposts int64
	db.Model(&models.Repost{}).Joins("JOIN tracks ON tracks.id = reposts.track_id").
		Where("tracks.user_id = reposts.user_id").Count(&selfReposts)
	assert.Zero(t, selfReposts)
}

func TestSeedTestIsIdempotentAndCleanRemovesSeedData(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	outsider := testutil.CreateUser(t, db, "outsider")

	s := NewSeeder(db)
	first, err := s.SeedTest(ctx)
	require.NoError(t, err)
	require.Len(t, first, 5)
	assert.True(t, first[0].IsAdmin)

	second, err := s.SeedTest(ctx)
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID)

	var tracks int64
	db.Model(&models.Track{}).Count(&tracks)
	assert.Equal(t, int64(10), tracks)

	require.NoError(t, s.Clean(ctx))
	var remaining []models.User
	require.NoError(t, db.Unscoped().Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, outsider.ID, remaining[0].ID)
	db.Unscoped().Model(&models.Track{}).Count(&tracks)
	assert.Zero(t, tracks)
}
