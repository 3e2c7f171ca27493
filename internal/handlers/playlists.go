package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/util"
)

type playlistRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

func (r *playlistRequest) fields() (map[string]interface{}, string, string) {
	fields := map[string]interface{}{}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" || len([]rune(title)) > maxTitleLength {
			return nil, "title", "title must be 1-120 characters"
		}
		fields["title"] = title
	}
	if r.Description != nil {
		description := strings.TrimSpace(*r.Description)
		if len([]rune(description)) > maxDescriptionLength {
			return nil, "description", "description must be at most 5000 characters"
		}
		fields["description"] = description
	}
	if r.IsPublic != nil {
		fields["is_public"] = *r.IsPublic
	}
	return fields, "", ""
}

// hideUnavailable drops entries whose track the viewer may no longer see
func hideUnavailable(p *models.Playlist, viewerID string, isAdmin bool) {
	kept := p.Tracks[:0]
	for _, entry := range p.Tracks {
		if entry.Track != nil && entry.Track.VisibleTo(viewerID, isAdmin) {
			kept = append(kept, entry)
		}
	}
	p.Tracks = kept
}

// ownedPlaylist loads :id and checks the caller owns it
func (h *Handlers) ownedPlaylist(c *gin.Context, userID string) (*models.Playlist, bool) {
	playlist, err := h.playlists.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load playlist")
		return nil, false
	}
	if playlist.UserID != userID {
		if !playlist.IsPublic {
			util.RespondNotFound(c, "playlist")
			return nil, false
		}
		util.RespondForbidden(c, "only the owner can change this playlist")
		return nil, false
	}
	return playlist, true
}

// CreatePlaylist
// POST /api/v1/playlists
func (h *Handlers) CreatePlaylist(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req playlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.Title == nil {
		util.RespondValidationError(c, "title", "title is required")
		return
	}
	fields, field, msg := req.fields()
	if fields == nil {
		util.RespondValidationError(c, field, msg)
		return
	}

	playlist := &models.Playlist{
		UserID:   userID,
		Title:    fields["title"].(string),
		IsPublic: true,
	}
	if d, ok := fields["description"].(string); ok {
		playlist.Description = d
	}
	if p, ok := fields["is_public"].(bool); ok {
		playlist.IsPublic = p
	}
	if err := h.playlists.Create(c.Request.Context(), playlist); err != nil {
		respondError(c, err, "failed to create playlist")
		return
	}
	c.JSON(http.StatusCreated, playlist)
}

// GetPlaylist returns a playlist with its tracks in order. Private playlists
// are only visible to their owner.
// GET /api/v1/playlists/:id
func (h *Handlers) GetPlaylist(c *gin.Context) {
	playlist, err := h.playlists.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load playlist")
		return
	}
	viewerID := util.ViewerID(c)
	if !playlist.VisibleTo(viewerID) {
		util.RespondNotFound(c, "playlist")
		return
	}
	hideUnavailable(playlist, viewerID, util.IsAdmin(c))
	c.JSON(http.StatusOK, playlist)
}

// ListMyPlaylists includes private playlists
// GET /api/v1/me/playlists
func (h *Handlers) ListMyPlaylists(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	playlists, total, err := h.playlists.ListByUser(c.Request.Context(), userID, true, page)
	if err != nil {
		util.RespondInternalError(c, "failed to list playlists", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(playlists, total, page))
}

// ListUserPlaylists lists another user's public playlists
// GET /api/v1/users/:username/playlists
func (h *Handlers) ListUserPlaylists(c *gin.Context) {
	owner, ok := h.userByUsername(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	playlists, total, err := h.playlists.ListByUser(c.Request.Context(), owner.ID, owner.ID == util.ViewerID(c), page)
	if err != nil {
		util.RespondInternalError(c, "failed to list playlists", err)
		return
	}
	c.JSON(http.StatusOK, listResponse(playlists, total, page))
}

// UpdatePlaylist
// PATCH /api/v1/playlists/:id
func (h *Handlers) UpdatePlaylist(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req playlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	fields, field, msg := req.fields()
	if fields == nil {
		util.RespondValidationError(c, field, msg)
		return
	}
	playlist, ok := h.ownedPlaylist(c, userID)
	if !ok {
		return
	}

	updated, err := h.playlists.Update(c.Request.Context(), playlist.ID, fields)
	if err != nil {
		respondError(c, err, "failed to update playlist")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeletePlaylist
// DELETE /api/v1/playlists/:id
func (h *Handlers) DeletePlaylist(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	playlist, ok := h.ownedPlaylist(c, userID)
	if !ok {
		return
	}
	if err := h.playlists.Delete(c.Request.Context(), playlist.ID); err != nil {
		respondError(c, err, "failed to delete playlist")
		return
	}
	c.Status(http.StatusNoContent)
}

// AddPlaylistTrack appends an approved track
// POST /api/v1/playlists/:id/tracks
func (h *Handlers) AddPlaylistTrack(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		TrackID string `json:"track_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	playlist, ok := h.ownedPlaylist(c, userID)
	if !ok {
		return
	}
	if _, ok := h.visibleTrack(c, req.TrackID); !ok {
		return
	}

	updated, err := h.playlists.AddTrack(c.Request.Context(), playlist.ID, req.TrackID)
	if err != nil {
		respondError(c, err, "failed to add track")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RemovePlaylistTrack removes a track and closes the gap in positions
// DELETE /api/v1/playlists/:id/tracks/:trackId
func (h *Handlers) RemovePlaylistTrack(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	playlist, ok := h.ownedPlaylist(c, userID)
	if !ok {
		return
	}

	updated, err := h.playlists.RemoveTrack(c.Request.Context(), playlist.ID, c.Param("trackId"))
	if err != nil {
		respondError(c, err, "failed to remove track")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// MovePlaylistTrack moves a track to a 0-based position, shifting the rest
// PUT /api/v1/playlists/:id/tracks/:trackId/position
func (h *Handlers) MovePlaylistTrack(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Position *int `json:"position" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	playlist, ok := h.ownedPlaylist(c, userID)
	if !ok {
		return
	}

	updated, err := h.playlists.MoveTrack(c.Request.Context(), playlist.ID, c.Param("trackId"), *req.Position)
	if err != nil {
		respondError(c, err, "failed to move track")
		return
	}
	c.JSON(http.StatusOK, updated)
}
