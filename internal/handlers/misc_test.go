package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/search"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationInbox(t *testing.T) {
	env := newTestEnv(t)
	me, token := env.user("artist")
	fan := testutil.CreateUser(t, env.db, "fan")
	track := testutil.CreateTrack(t, env.db, me.ID, "song")

	ctx := context.Background()
	svc := notifications.NewService(env.notes, nil)
	require.NoError(t, svc.Notify(ctx, notifications.Liked(fan, track)))
	require.NoError(t, svc.Notify(ctx, notifications.Followed(fan, me.ID)))

	rec := env.do(http.MethodGet, "/api/v1/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Items  []models.Notification `json:"items"`
		Total  int64                 `json:"total"`
		Unread int64                 `json:"unread"`
	}
	decode(t, rec, &inbox)
	require.Len(t, inbox.Items, 2)
	assert.Equal(t, int64(2), inbox.Unread)

	rec = env.do(http.MethodPost, "/api/v1/notifications/"+inbox.Items[0].ID+"/read", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int64
	decode(t, rec, &count)
	assert.Equal(t, int64(1), count["unread"])

	// other users cannot touch my notifications
	secondID := inbox.Items[1].ID
	_, otherToken := env.user("other")
	rec = env.do(http.MethodDelete, "/api/v1/notifications/"+secondID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/notifications/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/notifications?unread=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &inbox)
	assert.Empty(t, inbox.Items)
	assert.Equal(t, int64(0), inbox.Unread)

	rec = env.do(http.MethodDelete, "/api/v1/notifications/"+secondID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	_, token := env.user("listener")
	a := testutil.CreateTrack(t, env.db, owner.ID, "a")
	b := testutil.CreateTrack(t, env.db, owner.ID, "b")

	for _, tr := range []*models.Track{a, b} {
		rec := env.do(http.MethodGet, "/api/v1/tracks/"+tr.ID+"/stream", token, nil)
		require.Equal(t, http.StatusFound, rec.Code)
	}

	rec := env.do(http.MethodGet, "/api/v1/me/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Items []models.ListeningHistory `json:"items"`
		Total int64                     `json:"total"`
	}
	decode(t, rec, &history)
	require.Len(t, history.Items, 2)

	rec = env.do(http.MethodDelete, "/api/v1/me/history/"+history.Items[0].ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodDelete, "/api/v1/me/history/"+history.Items[0].ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/me/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared map[string]int64
	decode(t, rec, &cleared)
	assert.Equal(t, int64(1), cleared["removed"])
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "producer")
	testutil.CreateTrack(t, env.db, owner.ID, "midnight")
	testutil.CreateTrack(t, env.db, owner.ID, "daybreak")

	rec := env.do(http.MethodGet, "/api/v1/search?q=midnight", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results search.Results
	decode(t, rec, &results)
	assert.Equal(t, search.BackendDatabase, results.Backend)
	require.Len(t, results.Tracks, 1)
	assert.Equal(t, "midnight", results.Tracks[0].Title)

	rec = env.do(http.MethodGet, "/api/v1/search?q=produ&type=users", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &results)
	require.Len(t, results.Users, 1)
	assert.Equal(t, owner.ID, results.Users[0].ID)

	rec = env.do(http.MethodGet, "/api/v1/search?q=", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/search?q=x&type=albums", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthAndWebsocketUnavailable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Services["database"])
	require.NotNil(t, health.Queue)
	assert.Equal(t, 4, health.Queue.Capacity)

	rec = env.do(http.MethodGet, "/api/v1/ws", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
