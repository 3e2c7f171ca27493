package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/audio"
	"github.com/soundbay/backend/internal/auth"
	apierrors "github.com/soundbay/backend/internal/errors"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/moderation"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/search"
	"github.com/soundbay/backend/internal/util"
	"go.uber.org/zap"
)

func newAPIError(code apierrors.ErrorCode, err error) *apierrors.APIError {
	return &apierrors.APIError{Code: code, Message: err.Error(), Status: code.StatusCode()}
}

// sentinel errors from the service layers and the response they map to
var errorCodes = []struct {
	err  error
	code apierrors.ErrorCode
}{
	{repository.ErrUserNotFound, apierrors.ErrNotFound},
	{repository.ErrTrackNotFound, apierrors.ErrNotFound},
	{repository.ErrCommentNotFound, apierrors.ErrNotFound},
	{repository.ErrPlaylistNotFound, apierrors.ErrNotFound},
	{repository.ErrReportNotFound, apierrors.ErrNotFound},
	{repository.ErrNotificationNotFound, apierrors.ErrNotFound},
	{repository.ErrHistoryNotFound, apierrors.ErrNotFound},
	{repository.ErrNotLiked, apierrors.ErrNotFound},
	{repository.ErrNotReposted, apierrors.ErrNotFound},
	{repository.ErrNotFollowing, apierrors.ErrNotFound},
	{repository.ErrTrackNotInPlaylist, apierrors.ErrNotFound},

	{repository.ErrUserExists, apierrors.ErrAlreadyExists},
	{repository.ErrUsernameTaken, apierrors.ErrAlreadyExists},
	{repository.ErrAlreadyLiked, apierrors.ErrConflict},
	{repository.ErrAlreadyReposted, apierrors.ErrConflict},
	{repository.ErrAlreadyFollowing, apierrors.ErrConflict},
	{repository.ErrTrackInPlaylist, apierrors.ErrConflict},
	{repository.ErrTrackNotApproved, apierrors.ErrConflict},
	{repository.ErrInvalidTransition, apierrors.ErrConflict},
	{repository.ErrTrackNotReady, apierrors.ErrConflict},
	{repository.ErrCommentDeleted, apierrors.ErrConflict},
	{repository.ErrReportClosed, apierrors.ErrConflict},

	{repository.ErrSelfRepost, apierrors.ErrForbidden},
	{repository.ErrEditWindowExpired, apierrors.ErrForbidden},
	{repository.ErrSelfFollow, apierrors.ErrBadRequest},
	{repository.ErrInvalidInput, apierrors.ErrBadRequest},

	{auth.ErrInvalidCredentials, apierrors.ErrUnauthorized},
	{auth.ErrInvalidToken, apierrors.ErrUnauthorized},
	{auth.ErrInvalidCode, apierrors.ErrUnauthorized},
	{auth.ErrUserBanned, apierrors.ErrForbidden},
	{auth.ErrInvalidResetToken, apierrors.ErrBadRequest},
	{auth.ErrInvalidState, apierrors.ErrBadRequest},
	{auth.ErrNoProviderEmail, apierrors.ErrBadRequest},
	{auth.ErrProviderDisabled, apierrors.ErrNotFound},
	{auth.ErrTwoFactorEnabled, apierrors.ErrConflict},
	{auth.ErrTwoFactorNotEnabled, apierrors.ErrConflict},
	{auth.ErrTwoFactorNotSetup, apierrors.ErrConflict},

	{queue.ErrJobNotFound, apierrors.ErrNotFound},
	{queue.ErrNoOriginal, apierrors.ErrConflict},
	{audio.ErrInvalidUpload, apierrors.ErrBadRequest},
}

var validationFields = map[error]string{
	auth.ErrWeakPassword:         "password",
	auth.ErrInvalidUsername:      "username",
	auth.ErrInvalidEmail:         "email",
	repository.ErrInvalidPosition: "position",
	search.ErrEmptyQuery:         "q",
	search.ErrUnknownKind:        "type",
	moderation.ErrReasonRequired: "reason",
}

// toAPIError maps service and repository errors onto API errors.
// Unknown errors become a 500.
func toAPIError(err error) *apierrors.APIError {
	if apiErr, ok := apierrors.AsAPIError(err); ok {
		return apiErr
	}

	var unsupported *audio.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return apierrors.UnsupportedMedia(unsupported.Extension)
	}
	var tooLarge *audio.TooLargeError
	if errors.As(err, &tooLarge) {
		return apierrors.PayloadTooLarge(tooLarge.Max >> 20)
	}

	for sentinel, field := range validationFields {
		if errors.Is(err, sentinel) {
			return apierrors.ValidationError(field, err.Error())
		}
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return newAPIError(m.code, m.err)
		}
	}

	switch {
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueStopped):
		return apierrors.ServiceUnavailable("transcode queue")
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.Timeout("request")
	}
	return nil
}

// respondError writes the API error for err, logging anything unexpected
func respondError(c *gin.Context, err error, message string) {
	if apiErr := toAPIError(err); apiErr != nil {
		util.RespondWithAPIError(c, apiErr)
		return
	}
	util.RespondInternalError(c, message, err)
}

// pageFromQuery reads limit and offset query parameters
func pageFromQuery(c *gin.Context) repository.Page {
	return repository.Page{
		Limit:  util.ParseInt(c.Query("limit"), repository.DefaultLimit),
		Offset: util.ParseInt(c.Query("offset"), 0),
	}.Normalize()
}

// ListResponse is the envelope for paginated collections. Total is omitted
// for lists that are not counted.
type ListResponse struct {
	Items  interface{} `json:"items"`
	Total  *int64      `json:"total,omitempty"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func listResponse(items interface{}, total int64, page repository.Page) ListResponse {
	return ListResponse{Items: items, Total: &total, Limit: page.Limit, Offset: page.Offset}
}

func uncountedList(items interface{}, page repository.Page) ListResponse {
	return ListResponse{Items: items, Limit: page.Limit, Offset: page.Offset}
}

// visibleTrack loads a track the current viewer may see. Hidden tracks are
// reported as missing so their existence does not leak.
func (h *Handlers) visibleTrack(c *gin.Context, trackID string) (*models.Track, bool) {
	track, err := h.tracks.Get(c.Request.Context(), trackID)
	if err != nil {
		respondError(c, err, "failed to load track")
		return nil, false
	}
	if !track.VisibleTo(util.ViewerID(c), util.IsAdmin(c)) || (track.User != nil && track.User.IsBanned && !util.IsAdmin(c)) {
		util.RespondNotFound(c, "track")
		return nil, false
	}
	return track, true
}

// userByUsername resolves the :username path parameter
func (h *Handlers) userByUsername(c *gin.Context) (*models.User, bool) {
	user, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err, "failed to load user")
		return nil, false
	}
	if user.IsBanned && !util.IsAdmin(c) {
		util.RespondNotFound(c, "user")
		return nil, false
	}
	return user, true
}

// notify delivers n in the background; nil notifications are skipped
func (h *Handlers) notify(n *models.Notification) {
	if h.notifier == nil || n == nil {
		return
	}
	h.notifier.NotifyAsync(n)
}

func (h *Handlers) syncTrack(ctx context.Context, track *models.Track) {
	if err := h.search.SyncTrack(ctx, track); err != nil {
		logger.Log.Warn("Failed to sync track to search index", logger.WithTrackID(track.ID), zap.Error(err))
	}
}

func (h *Handlers) removeTrackFromIndex(ctx context.Context, trackID string) {
	if err := h.search.RemoveTrack(ctx, trackID); err != nil {
		logger.Log.Warn("Failed to remove track from search index", logger.WithTrackID(trackID), zap.Error(err))
	}
}

func (h *Handlers) syncUser(ctx context.Context, user *models.User) {
	if err := h.search.SyncUser(ctx, user); err != nil {
		logger.Log.Warn("Failed to sync user to search index", logger.WithUserID(user.ID), zap.Error(err))
	}
}

func maxUploadBytes(mb int64) int64 {
	if mb <= 0 {
		mb = 100
	}
	return mb << 20
}
