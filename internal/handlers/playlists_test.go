package handlers

import (
	"net/http"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPlaylist(t *testing.T, env *testEnv, token string, body map[string]interface{}) models.Playlist {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/v1/playlists", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p models.Playlist
	decode(t, rec, &p)
	return p
}

func TestPlaylistLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("curator")
	artist := testutil.CreateUser(t, env.db, "artist")
	first := testutil.CreateTrack(t, env.db, artist.ID, "first")
	second := testutil.CreateTrack(t, env.db, artist.ID, "second")
	third := testutil.CreateTrack(t, env.db, artist.ID, "third")

	playlist := createPlaylist(t, env, token, map[string]interface{}{"title": "Late Night"})
	assert.True(t, playlist.IsPublic)
	assert.Equal(t, owner.ID, playlist.UserID)
	tracksPath := "/api/v1/playlists/" + playlist.ID + "/tracks"

	for _, tr := range []*models.Track{first, second, third} {
		rec := env.do(http.MethodPost, tracksPath, token, map[string]string{"track_id": tr.ID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := env.do(http.MethodPost, tracksPath, token, map[string]string{"track_id": first.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPut, tracksPath+"/"+third.ID+"/position", token, map[string]int{"position": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPut, tracksPath+"/"+third.ID+"/position", token, map[string]int{"position": 7})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/playlists/"+playlist.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Playlist
	decode(t, rec, &got)
	require.Len(t, got.Tracks, 3)
	assert.Equal(t, third.ID, got.Tracks[0].TrackID)
	assert.Equal(t, first.ID, got.Tracks[1].TrackID)
	assert.Equal(t, second.ID, got.Tracks[2].TrackID)
	assert.Equal(t, 3, got.TrackCount)

	rec = env.do(http.MethodDelete, tracksPath+"/"+first.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, tracksPath+"/"+first.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPatch, "/api/v1/playlists/"+playlist.ID, token, map[string]interface{}{"title": "Sunrise"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, "Sunrise", got.Title)

	rec = env.do(http.MethodDelete, "/api/v1/playlists/"+playlist.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/playlists/"+playlist.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaylistAccessControl(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.user("curator")
	_, strangerToken := env.user("stranger")

	private := createPlaylist(t, env, ownerToken, map[string]interface{}{"title": "Drafts", "is_public": false})
	public := createPlaylist(t, env, ownerToken, map[string]interface{}{"title": "Favourites"})

	rec := env.do(http.MethodGet, "/api/v1/playlists/"+private.ID, strangerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/playlists/"+private.ID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPatch, "/api/v1/playlists/"+private.ID, strangerToken, map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodPatch, "/api/v1/playlists/"+public.ID, strangerToken, map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/users/curator/playlists", strangerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []models.Playlist `json:"items"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, public.ID, list.Items[0].ID)

	rec = env.do(http.MethodGet, "/api/v1/me/playlists", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list.Items, 2)

	rec = env.do(http.MethodPost, "/api/v1/playlists", ownerToken, map[string]interface{}{"description": "no title"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlaylistHidesUnavailableTracks(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("curator")
	_, viewerToken := env.user("viewer")
	artist := testutil.CreateUser(t, env.db, "artist")
	kept := testutil.CreateTrack(t, env.db, artist.ID, "kept")
	hidden := testutil.CreateTrack(t, env.db, artist.ID, "hidden")

	playlist := createPlaylist(t, env, token, map[string]interface{}{"title": "Mix"})
	for _, tr := range []*models.Track{kept, hidden} {
		rec := env.do(http.MethodPost, "/api/v1/playlists/"+playlist.ID+"/tracks", token, map[string]string{"track_id": tr.ID})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.NoError(t, env.db.Model(hidden).Update("is_public", false).Error)

	rec := env.do(http.MethodGet, "/api/v1/playlists/"+playlist.ID, viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Playlist
	decode(t, rec, &got)
	require.Len(t, got.Tracks, 1)
	assert.Equal(t, kept.ID, got.Tracks[0].TrackID)
}
