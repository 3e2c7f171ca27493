package repository

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("email already registered")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrTrackNotFound        = errors.New("track not found")
	ErrCommentNotFound      = errors.New("comment not found")
	ErrPlaylistNotFound     = errors.New("playlist not found")
	ErrReportNotFound       = errors.New("report not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrHistoryNotFound      = errors.New("history entry not found")

	ErrAlreadyLiked     = errors.New("track already liked")
	ErrNotLiked         = errors.New("track not liked")
	ErrAlreadyReposted  = errors.New("track already reposted")
	ErrNotReposted      = errors.New("track not reposted")
	ErrSelfRepost       = errors.New("cannot repost your own track")
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following user")
	ErrNotFollowing     = errors.New("not following user")

	ErrTrackNotApproved   = errors.New("track is not approved")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTrackNotReady      = errors.New("track has not finished processing")
	ErrEditWindowExpired  = errors.New("comment can no longer be edited")
	ErrCommentDeleted     = errors.New("comment was deleted")
	ErrTrackInPlaylist    = errors.New("track already in playlist")
	ErrTrackNotInPlaylist = errors.New("track not in playlist")
	ErrInvalidPosition    = errors.New("position out of range")
	ErrReportClosed       = errors.New("report already closed")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is a limit/offset window
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the window to sane bounds
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
