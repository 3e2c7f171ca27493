package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	apierrors "github.com/soundbay/backend/internal/errors"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

const maxAvatarBytes = 5 << 20

var avatarExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// GetProfile returns a public profile with counters. Signed-in viewers also
// get is_following.
// GET /api/v1/users/:username
func (h *Handlers) GetProfile(c *gin.Context) {
	user, ok := h.userByUsername(c)
	if !ok {
		return
	}

	resp := gin.H{"user": user}
	if viewerID := util.ViewerID(c); viewerID != "" && viewerID != user.ID {
		following, err := h.social.IsFollowing(c.Request.Context(), viewerID, user.ID)
		if err != nil {
			logger.Log.Warn("Failed to check follow state", logger.WithUserID(viewerID), zap.Error(err))
		}
		resp["is_following"] = following
	}
	c.JSON(http.StatusOK, resp)
}

type profileRequest struct {
	DisplayName *string  `json:"display_name"`
	Bio         *string  `json:"bio"`
	Location    *string  `json:"location"`
	Website     *string  `json:"website"`
	HeaderURL   *string  `json:"header_url"`
	Genres      []string `json:"genres"`
}

func validWebsite(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (r *profileRequest) fields() (map[string]interface{}, *apierrors.APIError) {
	fields := map[string]interface{}{}
	limits := []struct {
		name  string
		value *string
		max   int
	}{
		{"display_name", r.DisplayName, 60},
		{"bio", r.Bio, 500},
		{"location", r.Location, 100},
		{"website", r.Website, 255},
		{"header_url", r.HeaderURL, 255},
	}
	for _, l := range limits {
		if l.value == nil {
			continue
		}
		v := strings.TrimSpace(*l.value)
		if len([]rune(v)) > l.max {
			return nil, apierrors.ValidationError(l.name, "value is too long")
		}
		fields[l.name] = v
	}
	if w, ok := fields["website"].(string); ok && w != "" && !validWebsite(w) {
		return nil, apierrors.ValidationError("website", "website must be an http(s) URL")
	}
	if r.Genres != nil {
		fields["genres"] = models.StringArray(util.ParseTags(strings.Join(r.Genres, ","), maxTags))
	}
	return fields, nil
}

// UpdateProfile
// PATCH /api/v1/me/profile
func (h *Handlers) UpdateProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	fields, apiErr := req.fields()
	if apiErr != nil {
		util.RespondWithAPIError(c, apiErr)
		return
	}

	ctx := c.Request.Context()
	profile, err := h.users.UpdateProfile(ctx, userID, fields)
	if err != nil {
		respondError(c, err, "failed to update profile")
		return
	}
	if _, changed := fields["display_name"]; changed {
		if user, err := h.users.Get(ctx, userID); err == nil {
			h.syncUser(ctx, user)
		}
	}
	c.JSON(http.StatusOK, profile)
}

// ChangeUsername
// PUT /api/v1/me/username
func (h *Handlers) ChangeUsername(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !models.ValidUsername(username) {
		util.RespondValidationError(c, "username", "username must be 3-30 characters of a-z, 0-9 and _")
		return
	}

	ctx := c.Request.Context()
	if err := h.users.ChangeUsername(ctx, userID, username); err != nil {
		respondError(c, err, "failed to change username")
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}
	h.syncUser(ctx, user)
	c.JSON(http.StatusOK, user)
}

// UploadAvatar stores a jpg, png or webp image of at most 5 MB
// POST /api/v1/me/avatar
func (h *Handlers) UploadAvatar(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarBytes+(1<<20))

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			util.RespondWithAPIError(c, apierrors.PayloadTooLarge(maxAvatarBytes>>20))
			return
		}
		util.RespondValidationError(c, "avatar", "avatar image is required")
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !avatarExtensions[ext] {
		util.RespondWithAPIError(c, apierrors.UnsupportedMedia(ext))
		return
	}
	if fileHeader.Size > maxAvatarBytes {
		util.RespondWithAPIError(c, apierrors.PayloadTooLarge(maxAvatarBytes>>20))
		return
	}

	path, _, err := util.SaveUploadedFile(fileHeader, h.uploadDir(), maxAvatarBytes)
	if errors.Is(err, util.ErrFileTooLarge) {
		util.RespondWithAPIError(c, apierrors.PayloadTooLarge(maxAvatarBytes>>20))
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to save avatar", err)
		return
	}
	defer os.Remove(path)

	ctx := c.Request.Context()
	key := storage.AvatarKey(userID, fileHeader.Filename)
	if err := h.putFile(ctx, key, path, ext, userID); err != nil {
		util.RespondInternalError(c, "failed to store avatar", err)
		return
	}

	profile, err := h.users.UpdateProfile(ctx, userID, map[string]interface{}{"avatar_url": h.store.URL(key)})
	if err != nil {
		respondError(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}
