package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadTrackQueuesTranscode(t *testing.T) {
	env := newTestEnv(t)
	artist, token := env.user("artist")

	rec := env.upload("/api/v1/tracks", token, "audio", "First Light.wav", []byte("RIFF....WAVEfmt "), map[string]string{
		"genre": "ambient",
		"tags":  "Drone, field recording",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Track     models.Track `json:"track"`
		JobID     string       `json:"job_id"`
		StatusURL string       `json:"status_url"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "First Light", resp.Track.Title)
	assert.Equal(t, models.TrackPending, resp.Track.Status)
	assert.Equal(t, models.ProcessingQueued, resp.Track.ProcessingStatus)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "/api/v1/tracks/"+resp.Track.ID+"/status", resp.StatusURL)
	assert.Equal(t, []string{resp.Track.ID}, env.queue.submitted)

	stored := env.track(resp.Track.ID)
	assert.Equal(t, artist.ID, stored.UserID)
	assert.NotEmpty(t, stored.OriginalKey)
	assert.Equal(t, models.StringArray{"drone", "field recording"}, stored.Tags)

	// the owner can follow the job
	rec = env.do(http.MethodGet, resp.StatusURL+"?job_id="+resp.JobID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decode(t, rec, &status)
	assert.Equal(t, "queued", status["processing_status"])
	assert.NotNil(t, status["job"])

	// pending tracks are hidden from everyone else
	_, otherToken := env.user("listener")
	rec = env.do(http.MethodGet, "/api/v1/tracks/"+resp.Track.ID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodGet, resp.StatusURL, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadTrackRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("artist")

	rec := env.upload("/api/v1/tracks", token, "audio", "notes.txt", []byte("hello"), nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = env.upload("/api/v1/tracks", token, "file", "song.mp3", []byte("ID3"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.upload("/api/v1/tracks", token, "audio", "song.mp3", []byte("ID3"), map[string]string{
		"title": strings.Repeat("x", 121),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	big := bytes.Repeat([]byte{0}, 3<<19)
	rec = env.upload("/api/v1/tracks", token, "audio", "song.mp3", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.upload("/api/v1/tracks", "", "audio", "song.mp3", []byte("ID3"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, env.queue.submitted)
}

func TestUploadTrackSurvivesFullQueue(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("artist")
	env.queue.submitErr = queue.ErrQueueFull

	rec := env.upload("/api/v1/tracks", token, "audio", "song.mp3", []byte("ID3"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Track models.Track `json:"track"`
		JobID string       `json:"job_id"`
	}
	decode(t, rec, &resp)
	assert.Empty(t, resp.JobID)
	assert.Equal(t, models.ProcessingQueued, env.track(resp.Track.ID).ProcessingStatus)
}

func TestStreamTrackCountsPlaysOncePerListener(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	listener, token := env.user("listener")
	track := testutil.CreateTrack(t, env.db, owner.ID, "loop")

	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodGet, "/api/v1/tracks/"+track.ID+"/stream", "", nil)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "http://cdn.test/"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	}
	assert.Equal(t, 1, env.track(track.ID).PlayCount)

	rec := env.do(http.MethodGet, "/api/v1/tracks/"+track.ID+"/stream?progress=30", token, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	env.do(http.MethodGet, "/api/v1/tracks/"+track.ID+"/stream", token, nil)
	assert.Equal(t, 2, env.track(track.ID).PlayCount)

	var history []models.ListeningHistory
	require.NoError(t, env.db.Where("user_id = ?", listener.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, track.ID, history[0].TrackID)

	// every counted play is kept for trending, anonymous ones included
	var plays int64
	require.NoError(t, env.db.Model(&models.Play{}).Where("track_id = ?", track.ID).Count(&plays).Error)
	assert.Equal(t, int64(2), plays)
}

func TestStreamTrackRequiresProcessedApprovedAudio(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.user("owner")
	track := testutil.CreateTrack(t, env.db, owner.ID, "demo")
	require.NoError(t, env.db.Model(track).Update("processing_status", models.ProcessingProcessing).Error)

	rec := env.do(http.MethodGet, "/api/v1/tracks/"+track.ID+"/stream", ownerToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, env.db.Model(track).Update("is_public", false).Error)
	rec = env.do(http.MethodGet, "/api/v1/tracks/"+track.ID+"/stream", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDeleteTrackOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.user("owner")
	_, strangerToken := env.user("stranger")
	_, adminToken := env.admin("boss")
	track := testutil.CreateTrack(t, env.db, owner.ID, "draft")

	rec := env.do(http.MethodPatch, "/api/v1/tracks/"+track.ID, strangerToken, map[string]interface{}{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPatch, "/api/v1/tracks/"+track.ID, ownerToken, map[string]interface{}{"title": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodPatch, "/api/v1/tracks/"+track.ID, ownerToken, map[string]interface{}{
		"title":     "Final Mix",
		"is_public": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := env.track(track.ID)
	assert.Equal(t, "Final Mix", updated.Title)
	assert.False(t, updated.IsPublic)

	rec = env.do(http.MethodDelete, "/api/v1/tracks/"+track.ID, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/tracks/"+track.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/tracks/"+track.ID, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTracksValidatesSort(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	testutil.CreateTrack(t, env.db, owner.ID, "one")
	testutil.CreateTrack(t, env.db, owner.ID, "two")

	rec := env.do(http.MethodGet, "/api/v1/tracks?sort=popular&limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []models.Track `json:"items"`
		Total int64          `json:"total"`
		Limit int            `json:"limit"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Items, 1)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, 1, list.Limit)

	rec = env.do(http.MethodGet, "/api/v1/tracks?sort=random", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}
