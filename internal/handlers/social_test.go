package handlers

import (
	"net/http"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeAndUnlike(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	_, token := env.user("fan")
	track := testutil.CreateTrack(t, env.db, owner.ID, "hit")
	path := "/api/v1/tracks/" + track.ID + "/like"

	rec := env.do(http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, true, resp["liked"])
	assert.Equal(t, float64(1), resp["like_count"])
	assert.True(t, env.waitForNotification(owner.ID, models.NotifyLike))

	rec = env.do(http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/tracks/"+track.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, true, resp["is_liked"])
	assert.Equal(t, false, resp["is_reposted"])

	rec = env.do(http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.track(track.ID).LikeCount)

	rec = env.do(http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLikeHiddenTrackIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	_, token := env.user("fan")
	track := testutil.CreateTrack(t, env.db, owner.ID, "secret")
	require.NoError(t, env.db.Model(track).Update("status", models.TrackPending).Error)

	rec := env.do(http.MethodPost, "/api/v1/tracks/"+track.ID+"/like", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, env.track(track.ID).LikeCount)
}

func TestRepostRules(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.user("owner")
	_, fanToken := env.user("fan")
	track := testutil.CreateTrack(t, env.db, owner.ID, "anthem")
	path := "/api/v1/tracks/" + track.ID + "/repost"

	rec := env.do(http.MethodPost, path, ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	long := make([]rune, maxCaptionLength+1)
	for i := range long {
		long[i] = 'a'
	}
	rec = env.do(http.MethodPost, path, fanToken, map[string]string{"caption": string(long)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodPost, path, fanToken, map[string]string{"caption": "on repeat"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.track(track.ID).RepostCount)
	assert.True(t, env.waitForNotification(owner.ID, models.NotifyRepost))

	rec = env.do(http.MethodPost, path, fanToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodDelete, path, fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.track(track.ID).RepostCount)
}

func TestFollowAndFeed(t *testing.T) {
	env := newTestEnv(t)
	artist, artistToken := env.user("artist")
	fan, fanToken := env.user("fan")
	curator, curatorToken := env.user("curator")
	other := testutil.CreateUser(t, env.db, "other")
	testutil.CreateTrack(t, env.db, artist.ID, "original")
	reposted := testutil.CreateTrack(t, env.db, other.ID, "discovery")

	rec := env.do(http.MethodPost, "/api/v1/users/fan/follow", fanToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/users/artist/follow", fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.waitForNotification(artist.ID, models.NotifyFollow))
	rec = env.do(http.MethodPost, "/api/v1/users/artist/follow", fanToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/users/curator/follow", fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/api/v1/tracks/"+reposted.ID+"/repost", curatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/feed", fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Items []repository.FeedItem `json:"items"`
		Total *int64                `json:"total"`
	}
	decode(t, rec, &feed)
	require.Len(t, feed.Items, 2)
	assert.Nil(t, feed.Total)
	titles := []string{feed.Items[0].Track.Title, feed.Items[1].Track.Title}
	assert.ElementsMatch(t, []string{"original", "discovery"}, titles)
	for _, item := range feed.Items {
		if item.Track.ID == reposted.ID {
			require.NotNil(t, item.RepostedBy)
			assert.Equal(t, curator.ID, *item.RepostedBy)
		}
	}

	rec = env.do(http.MethodGet, "/api/v1/users/artist/followers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var followers struct {
		Items []models.User `json:"items"`
	}
	decode(t, rec, &followers)
	require.Len(t, followers.Items, 1)
	assert.Equal(t, fan.ID, followers.Items[0].ID)

	rec = env.do(http.MethodDelete, "/api/v1/users/artist/follow", fanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, "/api/v1/users/artist/follow", fanToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/feed", artistToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTrendingIsPublic(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	testutil.CreateTrack(t, env.db, owner.ID, "wave")

	rec := env.do(http.MethodGet, "/api/v1/feed/trending?limit=500", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items  []models.Track `json:"items"`
		Window string         `json:"window"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "7d", resp.Window)
}
