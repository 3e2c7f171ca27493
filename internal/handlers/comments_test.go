package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommentAndReply(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.user("owner")
	fan, fanToken := env.user("fan")
	friend := testutil.CreateUser(t, env.db, "friend")
	track := testutil.CreateTrack(t, env.db, owner.ID, "groove")
	path := "/api/v1/tracks/" + track.ID + "/comments"

	rec := env.do(http.MethodPost, path, fanToken, map[string]interface{}{
		"body":              "that drop at 1:00 @friend",
		"timestamp_seconds": 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var comment models.Comment
	decode(t, rec, &comment)
	assert.Equal(t, fan.ID, comment.UserID)
	require.NotNil(t, comment.TimestampSeconds)
	assert.Equal(t, 60.0, *comment.TimestampSeconds)

	assert.True(t, env.waitForNotification(owner.ID, models.NotifyComment))
	assert.True(t, env.waitForNotification(friend.ID, models.NotifyMention))

	rec = env.do(http.MethodPost, path, ownerToken, map[string]interface{}{
		"body":      "thanks!",
		"parent_id": comment.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.waitForNotification(fan.ID, models.NotifyReply))

	rec = env.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []models.Comment `json:"items"`
		Total int64            `json:"total"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)
	require.Len(t, list.Items[0].Replies, 1)
	assert.Equal(t, "thanks!", list.Items[0].Replies[0].Body)
	assert.Equal(t, 2, env.track(track.ID).CommentCount)
}

func TestCreateCommentValidation(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner")
	_, token := env.user("fan")
	track := testutil.CreateTrack(t, env.db, owner.ID, "short")
	path := "/api/v1/tracks/" + track.ID + "/comments"

	cases := []map[string]interface{}{
		{"body": "   "},
		{"body": strings.Repeat("a", maxCommentLength+1)},
		{"body": "early", "timestamp_seconds": -1},
		{"body": "late", "timestamp_seconds": track.DurationSeconds + 1},
	}
	for _, body := range cases {
		rec := env.do(http.MethodPost, path, token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}

	rec := env.do(http.MethodPost, path, "", map[string]string{"body": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, env.track(track.ID).CommentCount)
}

func TestEditAndDeleteComment(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.user("owner")
	_, fanToken := env.user("fan")
	_, strangerToken := env.user("stranger")
	track := testutil.CreateTrack(t, env.db, owner.ID, "groove")

	rec := env.do(http.MethodPost, "/api/v1/tracks/"+track.ID+"/comments", fanToken, map[string]string{"body": "first"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var comment models.Comment
	decode(t, rec, &comment)
	path := "/api/v1/comments/" + comment.ID

	rec = env.do(http.MethodPatch, path, strangerToken, map[string]string{"body": "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPatch, path, fanToken, map[string]string{"body": "first!"})
	require.Equal(t, http.StatusOK, rec.Code)
	var edited models.Comment
	decode(t, rec, &edited)
	assert.Equal(t, "first!", edited.Body)
	assert.True(t, edited.IsEdited)

	// past the edit window the author can no longer edit
	require.NoError(t, env.db.Model(&models.Comment{}).Where("id = ?", comment.ID).
		UpdateColumn("created_at", time.Now().Add(-models.CommentEditWindow-time.Minute)).Error)
	rec = env.do(http.MethodPatch, path, fanToken, map[string]string{"body": "too late"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, path, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// the track owner moderates their own comment section
	rec = env.do(http.MethodDelete, path, ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.track(track.ID).CommentCount)
}
