package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/audio"
	"github.com/soundbay/backend/internal/cache"
	apierrors "github.com/soundbay/backend/internal/errors"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

const (
	// a listener's repeat plays inside this window count once
	playDedupWindow = 30 * time.Minute
	defaultSignedTTL = 15 * time.Minute

	maxTitleLength       = 120
	maxDescriptionLength = 5000
	maxGenreLength       = 50
	maxTags              = 10
)

// UploadTrack accepts a multipart upload, stores the original and queues it
// for transcoding. The track starts pending/queued.
// POST /api/v1/tracks
func (h *Handlers) UploadTrack(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	m := metrics.Get()
	maxBytes := maxUploadBytes(h.cfg.Audio.MaxUploadMB)
	// leave room for the other form fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+(1<<20))

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			m.UploadsTotal.WithLabelValues("too_large", "unknown").Inc()
			util.RespondWithAPIError(c, apierrors.PayloadTooLarge(maxBytes>>20))
			return
		}
		util.RespondValidationError(c, "audio", "audio file is required")
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	}
	description := strings.TrimSpace(c.PostForm("description"))
	genre := strings.TrimSpace(c.PostForm("genre"))
	if msg, field := validateTrackFields(title, description, genre); msg != "" {
		util.RespondValidationError(c, field, msg)
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if err := audio.ValidateUpload(fileHeader.Filename, fileHeader.Size, maxBytes); err != nil {
		m.UploadsTotal.WithLabelValues("rejected", strings.TrimPrefix(ext, ".")).Inc()
		respondError(c, err, "invalid upload")
		return
	}

	ctx := c.Request.Context()
	path, size, err := util.SaveUploadedFile(fileHeader, h.uploadDir(), maxBytes)
	if errors.Is(err, util.ErrFileTooLarge) {
		util.RespondWithAPIError(c, apierrors.PayloadTooLarge(maxBytes>>20))
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to save upload", err)
		return
	}

	now := time.Now().UTC()
	originalKey := storage.OriginalKey(now, user.ID, fileHeader.Filename)
	if err := h.putFile(ctx, originalKey, path, ext, user.ID); err != nil {
		os.Remove(path)
		util.RespondInternalError(c, "failed to store upload", err)
		return
	}

	track := &models.Track{
		UserID:           user.ID,
		Title:            title,
		Description:      description,
		Genre:            genre,
		Tags:             models.StringArray(util.ParseTags(c.PostForm("tags"), maxTags)),
		IsPublic:         util.ParseBool(c.PostForm("is_public"), true),
		OriginalKey:      originalKey,
		OriginalFilename: fileHeader.Filename,
		FileSize:         size,
	}
	if err := h.tracks.Create(ctx, track); err != nil {
		os.Remove(path)
		if delErr := h.store.Delete(ctx, originalKey); delErr != nil {
			logger.WarnWithFields("Failed to remove orphaned original", delErr)
		}
		util.RespondInternalError(c, "failed to create track", err)
		return
	}

	m.UploadsTotal.WithLabelValues("accepted", strings.TrimPrefix(ext, ".")).Inc()
	m.UploadBytes.Observe(float64(size))

	var jobID string
	job, err := h.queue.Submit(track.ID, user.ID, path, fileHeader.Filename)
	if err != nil {
		// the original is stored, so the track stays queued and is resumed at boot
		os.Remove(path)
		logger.Log.Warn("Transcode job not submitted",
			logger.WithTrackID(track.ID),
			logger.WithUserID(user.ID),
			zap.Error(err))
	} else {
		jobID = job.ID
	}

	logger.Log.Info("Track uploaded",
		logger.WithTrackID(track.ID),
		logger.WithUserID(user.ID),
		logger.WithJobID(jobID),
		zap.Int64("size", size))

	c.JSON(http.StatusAccepted, gin.H{
		"track":      track,
		"job_id":     jobID,
		"status_url": "/api/v1/tracks/" + track.ID + "/status",
	})
}

func (h *Handlers) uploadDir() string {
	dir := h.cfg.Audio.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "uploads")
}

func (h *Handlers) putFile(ctx context.Context, key, path, ext, userID string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return h.store.PutObject(ctx, key, f, storage.ContentType(ext), map[string]string{"user_id": userID})
}

func validateTrackFields(title, description, genre string) (string, string) {
	switch {
	case title == "" || len([]rune(title)) > maxTitleLength:
		return "title must be 1-120 characters", "title"
	case len([]rune(description)) > maxDescriptionLength:
		return "description must be at most 5000 characters", "description"
	case len([]rune(genre)) > maxGenreLength:
		return "genre must be at most 50 characters", "genre"
	}
	return "", ""
}

// TrackStatus reports the processing state, including the live job when known
// GET /api/v1/tracks/:id/status
func (h *Handlers) TrackStatus(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	track, err := h.tracks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load track")
		return
	}
	if track.UserID != userID && !util.IsAdmin(c) {
		util.RespondNotFound(c, "track")
		return
	}

	resp := gin.H{
		"track_id":          track.ID,
		"status":            track.Status,
		"processing_status": track.ProcessingStatus,
		"processing_error":  track.ProcessingError,
		"rejection_reason":  track.RejectionReason,
	}
	if jobID := c.Query("job_id"); jobID != "" {
		if job, err := h.queue.Status(jobID); err == nil && job.TrackID == track.ID {
			resp["job"] = job
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetTrack
// GET /api/v1/tracks/:id
func (h *Handlers) GetTrack(c *gin.Context) {
	track, ok := h.visibleTrack(c, c.Param("id"))
	if !ok {
		return
	}

	resp := gin.H{"track": track}
	if viewerID := util.ViewerID(c); viewerID != "" {
		ctx := c.Request.Context()
		liked, _ := h.social.IsLiked(ctx, viewerID, track.ID)
		reposted, _ := h.social.IsReposted(ctx, viewerID, track.ID)
		resp["is_liked"] = liked
		resp["is_reposted"] = reposted
	}
	c.JSON(http.StatusOK, resp)
}

// ListTracks lists approved public tracks
// GET /api/v1/tracks?sort=latest|popular&genre=
func (h *Handlers) ListTracks(c *gin.Context) {
	page := pageFromQuery(c)
	filter := repository.TrackFilter{
		Sort:  c.DefaultQuery("sort", repository.SortLatest),
		Genre: strings.TrimSpace(c.Query("genre")),
	}
	if filter.Sort != repository.SortLatest && filter.Sort != repository.SortPopular {
		util.RespondValidationError(c, "sort", "sort must be latest or popular")
		return
	}

	tracks, total, err := h.tracks.List(c.Request.Context(), filter, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list tracks", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(tracks, total, page))
}

// ListUserTracks lists a user's tracks. The owner and admins also see
// pending, rejected and private uploads.
// GET /api/v1/users/:username/tracks
func (h *Handlers) ListUserTracks(c *gin.Context) {
	owner, ok := h.userByUsername(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	includeHidden := owner.ID == util.ViewerID(c) || util.IsAdmin(c)

	tracks, total, err := h.tracks.ListByUser(c.Request.Context(), owner.ID, includeHidden, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list tracks", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(tracks, total, page))
}

// UpdateTrack edits metadata; only the owner may
// PATCH /api/v1/tracks/:id
func (h *Handlers) UpdateTrack(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	track, err := h.tracks.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load track")
		return
	}
	if track.UserID != userID {
		util.RespondForbidden(c, "only the owner can edit this track")
		return
	}

	var req struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Genre       *string  `json:"genre"`
		Tags        []string `json:"tags"`
		IsPublic    *bool    `json:"is_public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	fields := map[string]interface{}{}
	title, description, genre := track.Title, track.Description, track.Genre
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
		fields["title"] = title
	}
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
		fields["description"] = description
	}
	if req.Genre != nil {
		genre = strings.TrimSpace(*req.Genre)
		fields["genre"] = genre
	}
	if msg, field := validateTrackFields(title, description, genre); msg != "" {
		util.RespondValidationError(c, field, msg)
		return
	}
	if req.Tags != nil {
		fields["tags"] = models.StringArray(util.ParseTags(strings.Join(req.Tags, ","), maxTags))
	}
	if req.IsPublic != nil {
		fields["is_public"] = *req.IsPublic
	}

	updated, err := h.tracks.Update(ctx, track.ID, fields)
	if err != nil {
		respondError(c, err, "failed to update track")
		return
	}
	h.syncTrack(ctx, updated)
	c.JSON(http.StatusOK, updated)
}

// DeleteTrack removes the track, its objects and its index entry.
// Owners and admins may delete.
// DELETE /api/v1/tracks/:id
func (h *Handlers) DeleteTrack(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	track, err := h.tracks.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load track")
		return
	}
	if track.UserID != user.ID && !user.IsAdmin {
		util.RespondForbidden(c, "only the owner can delete this track")
		return
	}

	deleted, err := h.tracks.Delete(ctx, track.ID)
	if err != nil {
		respondError(c, err, "failed to delete track")
		return
	}
	h.purgeObjects(ctx, deleted)
	h.removeTrackFromIndex(ctx, deleted.ID)

	logger.Log.Info("Track deleted",
		logger.WithTrackID(deleted.ID),
		logger.WithUserID(user.ID),
		zap.Bool("by_admin", deleted.UserID != user.ID))
	c.Status(http.StatusNoContent)
}

func (h *Handlers) purgeObjects(ctx context.Context, track *models.Track) {
	keys := []string{track.OriginalKey, track.AudioKey, track.WaveformKey}
	if track.WaveformKey != "" {
		keys = append(keys, storage.WaveformKey(track.ID, "json"))
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := h.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			logger.Log.Warn("Failed to delete object", logger.WithTrackID(track.ID), zap.String("key", key), zap.Error(err))
		}
	}
}

// StreamTrack redirects to a short-lived signed URL for the transcoded audio
// GET /api/v1/tracks/:id/stream
func (h *Handlers) StreamTrack(c *gin.Context) {
	track, ok := h.visibleTrack(c, c.Param("id"))
	if !ok {
		return
	}
	if !track.Streamable() {
		util.RespondConflict(c, "track is not available for streaming")
		return
	}

	ttl := h.cfg.Storage.SignedTTL
	if ttl <= 0 {
		ttl = defaultSignedTTL
	}
	url, err := h.store.SignedURL(c.Request.Context(), track.AudioKey, ttl)
	if err != nil {
		util.RespondInternalError(c, "failed to sign stream url", err)
		return
	}

	h.countPlay(c, track)
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, url)
}

// countPlay increments the play count once per listener per window and
// records history for signed-in listeners. A cache outage counts the play.
func (h *Handlers) countPlay(c *gin.Context, track *models.Track) {
	ctx := c.Request.Context()
	viewerID := util.ViewerID(c)
	listener := viewerID
	if listener == "" {
		listener = "ip:" + c.ClientIP()
	}

	first, err := h.cache.SetNX(ctx, cache.PlayKey(track.ID, listener), "1", playDedupWindow)
	if err != nil {
		logger.Log.Warn("Play de-duplication unavailable", logger.WithTrackID(track.ID), zap.Error(err))
		first = true
	}
	if !first {
		return
	}

	if err := h.tracks.IncrementPlays(ctx, track.ID); err != nil {
		logger.Log.Warn("Failed to increment play count", logger.WithTrackID(track.ID), zap.Error(err))
		return
	}
	metrics.Get().PlaysTotal.Inc()

	if viewerID == "" {
		return
	}
	progress := 0.0
	if p := util.ParseInt(c.Query("progress"), 0); p > 0 {
		progress = float64(p)
	}
	if err := h.history.Record(ctx, viewerID, track.ID, time.Now().UTC(), progress); err != nil {
		logger.Log.Warn("Failed to record listening history",
			logger.WithTrackID(track.ID),
			logger.WithUserID(viewerID),
			zap.Error(err))
	}
}

// GetWaveform returns the peak values drawn by players
// GET /api/v1/tracks/:id/waveform
func (h *Handlers) GetWaveform(c *gin.Context) {
	track, ok := h.visibleTrack(c, c.Param("id"))
	if !ok {
		return
	}
	if len(track.Waveform) == 0 {
		util.RespondNotFound(c, "waveform")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.JSON(http.StatusOK, gin.H{
		"track_id":         track.ID,
		"duration_seconds": track.DurationSeconds,
		"peaks":            track.Waveform,
		"waveform_url":     track.WaveformURL,
	})
}

// jobResponse is returned when an admin requeues a transcode
func jobResponse(track *models.Track, job *queue.Job) gin.H {
	return gin.H{
		"track_id": track.ID,
		"job_id":   job.ID,
		"status":   job.Status,
	}
}
