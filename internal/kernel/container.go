// Package kernel wires Soundbay's services together. cmd/server and the
// soundbay CLI both build one Kernel from the loaded config.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soundbay/backend/internal/audio"
	"github.com/soundbay/backend/internal/auth"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/database"
	"github.com/soundbay/backend/internal/email"
	"github.com/soundbay/backend/internal/handlers"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/moderation"
	"github.com/soundbay/backend/internal/notifications"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/repository"
	"github.com/soundbay/backend/internal/search"
	"github.com/soundbay/backend/internal/storage"
	"github.com/soundbay/backend/internal/telemetry"
	"github.com/soundbay/backend/internal/validation"
	"github.com/soundbay/backend/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories groups the data access layer
type Repositories struct {
	Users         repository.UserRepository
	Tracks        repository.TrackRepository
	Social        repository.SocialRepository
	Comments      repository.CommentRepository
	Playlists     repository.PlaylistRepository
	History       repository.HistoryRepository
	Reports       repository.ReportRepository
	Notifications repository.NotificationRepository
}

// NewRepositories builds every repository on db
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         repository.NewUserRepository(db),
		Tracks:        repository.NewTrackRepository(db),
		Social:        repository.NewSocialRepository(db),
		Comments:      repository.NewCommentRepository(db),
		Playlists:     repository.NewPlaylistRepository(db),
		History:       repository.NewHistoryRepository(db),
		Reports:       repository.NewReportRepository(db),
		Notifications: repository.NewNotificationRepository(db),
	}
}

// Kernel holds all application dependencies and their shutdown hooks
type Kernel struct {
	cfg   *config.Config
	db    *gorm.DB
	repos Repositories

	cache   cache.Store
	store   storage.Store
	encoder *audio.FFmpeg
	search  *search.Service
	mailer  email.Mailer

	hub       *websocket.Hub
	wsHandler *websocket.Handler

	auth          *auth.Service
	notifications *notifications.Service
	moderation    *moderation.Service
	queue         *queue.TranscodeQueue

	pruner     *notifications.Pruner
	reconciler *search.Reconciler

	cleanupFuncs []func(context.Context) error
	started      bool
	mu           sync.RWMutex
}

// New creates an empty kernel for cfg. Build fills it in.
func New(cfg *config.Config) *Kernel {
	return &Kernel{cfg: cfg}
}

// Build opens every backing service named by cfg. Optional services that
// fail to connect degrade to local fallbacks unless REQUIRE_SERVICES lists
// them. Background workers are not started; see Start.
func Build(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	k := New(cfg)
	if err := k.build(ctx); err != nil {
		if cerr := k.Cleanup(context.Background()); cerr != nil {
			logger.Log.Warn("Cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return k, nil
}

func (k *Kernel) build(ctx context.Context) error {
	cfg := k.cfg

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Enabled:      cfg.Tracing.Enabled,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	} else if tp != nil {
		k.OnCleanup(tp.Shutdown)
	}

	db, err := database.Open(cfg.Database, cfg.Log.Level == "debug")
	if err != nil {
		return err
	}
	k.db = db
	k.OnCleanup(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	k.repos = NewRepositories(db)

	if err := k.buildCache(); err != nil {
		return err
	}
	if err := k.buildStorage(ctx); err != nil {
		return err
	}

	k.encoder = audio.NewFFmpeg()
	if err := k.encoder.Available(); err != nil {
		logger.Log.Warn("FFmpeg not available, uploads will fail to transcode", zap.Error(err))
	}

	k.buildSearch(ctx)
	k.buildMailer(ctx)

	k.hub = websocket.NewHub()
	k.notifications = notifications.NewService(k.repos.Notifications, k.hub)
	k.auth = auth.NewService(k.repos.Users, auth.Options{
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
		TOTPIssuer: cfg.Auth.TOTPIssuer,
		OAuth:      cfg.OAuthProviders(),
		States:     k.cache,
		Mailer:     k.mailer,
		HTTPClient: telemetry.NewInstrumentedHTTPClient(10 * time.Second),
	})
	k.wsHandler = websocket.NewHandler(k.hub, k.auth, cfg.CORSOrigins)
	k.moderation = moderation.NewService(k.repos.Tracks, k.notifications, k.mailer, k.search)

	k.queue = queue.NewTranscodeQueue(db, k.store, k.encoder, k.notifications, queue.Options{
		Workers:      cfg.Audio.Workers,
		QueueSize:    cfg.Audio.QueueSize,
		Timeout:      cfg.Audio.Timeout,
		TempDir:      cfg.Audio.TempDir,
		AutoApprove:  cfg.Audio.AutoApprove,
		WaveformBars: cfg.Audio.WaveformBars,
	})
	k.queue.SetCompletionHook(func(_ context.Context, track *models.Track) {
		if track.Status == models.TrackApproved {
			k.search.SyncTrackAsync(track)
		}
	})

	k.pruner = notifications.NewPruner(k.repos.Notifications, notifications.DefaultRetention, notifications.DefaultPruneInterval)
	k.reconciler = search.NewReconciler(k.search, cfg.Search.ReconcileInterval)

	return k.validator().ValidateServices(ctx)
}

func (k *Kernel) buildCache() error {
	cfg := k.cfg
	if !cfg.Redis.Enabled() {
		if cfg.Requires(validation.ServiceRedis) {
			return errors.New("REDIS_HOST is required when redis is a required service")
		}
		logger.Log.Info("Redis not configured, using in-memory cache")
		k.cache = cache.NewMemoryStore()
		return nil
	}
	client, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		if cfg.Requires(validation.ServiceRedis) {
			return err
		}
		logger.Log.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		k.cache = cache.NewMemoryStore()
		return nil
	}
	k.cache = client
	k.OnCleanup(func(context.Context) error { return client.Close() })
	return nil
}

func (k *Kernel) buildStorage(ctx context.Context) error {
	cfg := k.cfg.Storage
	baseURL := cfg.CDNBaseURL
	if cfg.Driver == "s3" {
		s3Store, err := storage.NewS3Store(ctx, cfg.Region, cfg.Bucket, cfg.Endpoint, baseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		k.store = s3Store
		return nil
	}
	if baseURL == "" {
		baseURL = k.cfg.APIBaseURL
	}
	local, err := storage.NewLocalStore(cfg.LocalDir, baseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize local storage: %w", err)
	}
	k.store = local
	return nil
}

func (k *Kernel) buildSearch(ctx context.Context) {
	var client *search.Client
	if k.cfg.Search.Enabled() {
		c, err := search.NewClient(k.cfg.Search)
		if err != nil {
			logger.Log.Warn("Elasticsearch client failed, search falls back to the database", zap.Error(err))
		} else {
			client = c
			if created, err := client.EnsureIndices(ctx); err != nil {
				logger.Log.Warn("Failed to ensure search indices", zap.Error(err))
			} else if created {
				logger.Log.Info("Search indices created; run `soundbay search reindex` to backfill")
			}
		}
	}
	k.search = search.NewService(client, k.repos.Tracks, k.repos.Users, k.cache, k.cfg.Search.CacheTTL)
}

func (k *Kernel) buildMailer(ctx context.Context) {
	cfg := k.cfg
	if cfg.Email.Enabled() {
		ses, err := email.NewSESMailer(ctx, cfg.Email.Region, cfg.Email.FromEmail, cfg.Email.FromName, cfg.BaseURL)
		if err == nil {
			k.mailer = ses
			return
		}
		logger.Log.Warn("SES unavailable, logging emails instead", zap.Error(err))
	}
	k.mailer = email.NewLogMailer(cfg.BaseURL)
}

func (k *Kernel) validator() *validation.ServiceValidator {
	sv := validation.NewServiceValidator(k.cfg.RequireServices)
	sv.Register(validation.ServiceRedis, func(ctx context.Context) error {
		if !k.cfg.Redis.Enabled() {
			return errors.New("redis is not configured")
		}
		return k.cache.Ping(ctx)
	})
	sv.Register(validation.ServiceS3, func(ctx context.Context) error {
		if k.cfg.Storage.Driver != "s3" {
			return errors.New("STORAGE_DRIVER is not s3")
		}
		return k.store.CheckAccess(ctx)
	})
	sv.Register(validation.ServiceElasticsearch, func(ctx context.Context) error {
		client := k.search.Client()
		if client == nil {
			return search.ErrUnavailable
		}
		return client.Ping(ctx)
	})
	sv.Register(validation.ServiceFFmpeg, func(context.Context) error {
		return k.encoder.Available()
	})
	sv.Register(validation.ServiceSES, func(context.Context) error {
		if _, ok := k.mailer.(*email.SESMailer); !ok {
			return errors.New("SES is not configured")
		}
		return nil
	})
	return sv
}

// Start launches the background workers: websocket hub, transcode pool,
// notification pruner and search reconciler. Each registers its own
// shutdown hook.
func (k *Kernel) Start(ctx context.Context) {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return
	}
	k.started = true
	k.mu.Unlock()

	go k.hub.Run()
	k.OnCleanup(k.hub.Shutdown)

	k.queue.Start()
	k.OnCleanup(k.queue.Stop)
	if n, err := k.queue.ResumePending(ctx); err != nil {
		logger.Log.Warn("Failed to resume pending transcodes", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Resumed pending transcodes", zap.Int("count", n))
	}

	k.pruner.Start()
	k.OnCleanup(func(context.Context) error {
		k.pruner.Stop()
		return nil
	})

	k.reconciler.Start()
	k.OnCleanup(func(context.Context) error {
		k.reconciler.Stop()
		return nil
	})
}

// Handlers builds the HTTP layer over the kernel's services
func (k *Kernel) Handlers() *handlers.Handlers {
	return handlers.NewHandlers(handlers.Dependencies{
		Config:        k.cfg,
		DB:            k.db,
		Auth:          k.auth,
		Users:         k.repos.Users,
		Tracks:        k.repos.Tracks,
		Social:        k.repos.Social,
		Comments:      k.repos.Comments,
		Playlists:     k.repos.Playlists,
		History:       k.repos.History,
		Reports:       k.repos.Reports,
		Notifications: k.notifications,
		Search:        k.search,
		Storage:       k.store,
		Cache:         k.cache,
		Queue:         k.queue,
		Mailer:        k.mailer,
		Moderation:    k.moderation,
		WebSocket:     k.wsHandler,
		Hub:           k.hub,
	})
}

func (k *Kernel) Config() *config.Config { return k.cfg }
func (k *Kernel) DB() *gorm.DB { return k.db }
func (k *Kernel) Repos() Repositories { return k.repos }
func (k *Kernel) Cache() cache.Store { return k.cache }
func (k *Kernel) Storage() storage.Store { return k.store }
func (k *Kernel) Search() *search.Service { return k.search }
func (k *Kernel) Mailer() email.Mailer { return k.mailer }
func (k *Kernel) Hub() *websocket.Hub { return k.hub }
func (k *Kernel) Auth() *auth.Service { return k.auth }
func (k *Kernel) Moderation() *moderation.Service { return k.moderation }
func (k *Kernel) Queue() *queue.TranscodeQueue { return k.queue }
func (k *Kernel) Notifications() *notifications.Service { return k.notifications }

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions run in LIFO order.
func (k *Kernel) OnCleanup(fn func(context.Context) error) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cleanupFuncs = append(k.cleanupFuncs, fn)
	return k
}

// Cleanup runs every registered cleanup function, newest first, and
// returns the joined errors. Later hooks still run when one fails.
func (k *Kernel) Cleanup(ctx context.Context) error {
	k.mu.Lock()
	funcs := k.cleanupFuncs
	k.cleanupFuncs = nil
	k.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			logger.Log.Error("Cleanup function failed", zap.Int("index", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the services the HTTP layer cannot run without are set
func (k *Kernel) Validate() error {
	var missing []string
	if k.db == nil {
		missing = append(missing, "database")
	}
	if k.auth == nil {
		missing = append(missing, "auth service")
	}
	if k.store == nil {
		missing = append(missing, "object storage")
	}
	if k.queue == nil {
		missing = append(missing, "transcode queue")
	}
	if k.cache == nil {
		missing = append(missing, "cache")
	}
	if len(missing) > 0 {
		return NewInitializationError("missing required dependencies", missing)
	}
	return nil
}
