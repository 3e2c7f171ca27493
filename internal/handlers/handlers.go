package handlers

import (
	"context"

	"github.com/soundbay/backend/internal/auth"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/email"
	"github.com/soundbay/backend/internal/moderation"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/search"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/websocket"
	"gorm.io/gorm"
)

// Transcoder is the part of the transcode queue the HTTP layer drives
type Transcoder interface {
	Submit(trackID, userID, sourcePath, filename string) (*queue.Job, error)
	Requeue(ctx context.Context, trackID string) (*queue.Job, error)
	Status(jobID string) (queue.Job, error)
	Depth() int
	Running() int
	Capacity() int
}

// Dependencies are the collaborators the handlers are built from.
// Search, Mailer, WebSocket and Hub may be nil.
type Dependencies struct {
	Config        *config.Config
	DB            *gorm.DB
	Auth          auth.Authenticator
	Users         repository.UserRepository
	Tracks        repository.TrackRepository
	Social        repository.SocialRepository
	Comments      repository.CommentRepository
	Playlists     repository.PlaylistRepository
	History       repository.HistoryRepository
	Reports       repository.ReportRepository
	Notifications *notifications.Service
	Search        *search.Service
	Storage       storage.Store
	Cache         cache.Store
	Queue         Transcoder
	Mailer        email.Mailer
	Moderation    *moderation.Service
	WebSocket     *websocket.Handler
	Hub           *websocket.Hub
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	cfg       *config.Config
	db        *gorm.DB
	auth      auth.Authenticator
	users     repository.UserRepository
	tracks    repository.TrackRepository
	social    repository.SocialRepository
	comments  repository.CommentRepository
	playlists repository.PlaylistRepository
	history   repository.HistoryRepository
	reports   repository.ReportRepository
	notifier  *notifications.Service
	search    *search.Service
	store     storage.Store
	cache     cache.Store
	queue     Transcoder
	mailer    email.Mailer
	moderator *moderation.Service
	wsHandler *websocket.Handler
	hub       *websocket.Hub
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies) *Handlers {
	h := &Handlers{
		cfg:       deps.Config,
		db:        deps.DB,
		auth:      deps.Auth,
		users:     deps.Users,
		tracks:    deps.Tracks,
		social:    deps.Social,
		comments:  deps.Comments,
		playlists: deps.Playlists,
		history:   deps.History,
		reports:   deps.Reports,
		notifier:  deps.Notifications,
		search:    deps.Search,
		store:     deps.Storage,
		cache:     deps.Cache,
		queue:     deps.Queue,
		mailer:    deps.Mailer,
		moderator: deps.Moderation,
		wsHandler: deps.WebSocket,
		hub:       deps.Hub,
	}
	if h.cfg == nil {
		h.cfg = &config.Config{}
	}
	if h.cache == nil {
		h.cache = cache.NewMemoryStore()
	}
	if h.search == nil {
		h.search = search.NewService(nil, h.tracks, h.users, nil, 0)
	}
	if h.moderator == nil {
		var notifier moderation.Notifier
		if h.notifier != nil {
			notifier = h.notifier
		}
		h.moderator = moderation.NewService(h.tracks, notifier, h.mailer, h.search)
	}
	return h
}

// SetWebSocketHandler sets the WebSocket handler for real-time notifications
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler, hub *websocket.Hub) {
	h.wsHandler = ws
	h.hub = hub
}

