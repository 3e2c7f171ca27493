package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/middleware"
	"github.com/soundbay/backend/internal/storage"
)

const trendingCacheTTL = 5 * time.Minute

// RegisterRoutes mounts /health, /metrics, local media and the /api/v1 tree on r
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	requireAuth := middleware.RequireAuth(h.auth)
	optionalAuth := middleware.OptionalAuth(h.auth)

	r.GET("/health", h.Health)
	r.GET("/metrics", Metrics())
	if local, ok := h.store.(*storage.LocalStore); ok {
		r.Static(storage.MediaPath, local.Root())
	}

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(h.cache, middleware.DefaultRateLimitConfig()))

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(h.cache, middleware.AuthRateLimitConfig()))
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/2fa/verify", h.VerifyTwoFactorLogin)
		authGroup.GET("/oauth/:provider", h.OAuthLogin)
		authGroup.GET("/oauth/:provider/callback", h.OAuthCallback)
		authGroup.POST("/password-reset", h.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", h.ResetPassword)
	}

	me := api.Group("/me", requireAuth)
	{
		me.GET("", h.Me)
		me.POST("/password", h.ChangePassword)
		me.PATCH("/profile", h.UpdateProfile)
		me.PUT("/username", h.ChangeUsername)
		me.POST("/avatar", h.UploadAvatar)
		me.GET("/playlists", h.ListMyPlaylists)

		me.GET("/history", h.GetHistory)
		me.DELETE("/history", h.ClearHistory)
		me.DELETE("/history/:id", h.RemoveHistoryEntry)

		me.GET("/2fa", h.GetTwoFactorStatus)
		me.POST("/2fa/setup", h.SetupTwoFactor)
		me.POST("/2fa/enable", h.EnableTwoFactor)
		me.POST("/2fa/disable", h.DisableTwoFactor)
		me.POST("/2fa/backup-codes", h.RegenerateBackupCodes)
	}

	tracks := api.Group("/tracks")
	{
		tracks.GET("", h.ListTracks)
		tracks.POST("", requireAuth, middleware.RateLimit(h.cache, middleware.UploadRateLimitConfig()), h.UploadTrack)
		tracks.GET("/:id", optionalAuth, h.GetTrack)
		tracks.PATCH("/:id", requireAuth, h.UpdateTrack)
		tracks.DELETE("/:id", requireAuth, h.DeleteTrack)
		tracks.GET("/:id/status", requireAuth, h.TrackStatus)
		tracks.GET("/:id/stream", optionalAuth, h.StreamTrack)
		tracks.GET("/:id/waveform", optionalAuth, h.GetWaveform)

		tracks.POST("/:id/like", requireAuth, h.LikeTrack)
		tracks.DELETE("/:id/like", requireAuth, h.UnlikeTrack)
		tracks.GET("/:id/likes", optionalAuth, h.ListLikers)
		tracks.POST("/:id/repost", requireAuth, h.RepostTrack)
		tracks.DELETE("/:id/repost", requireAuth, h.UnrepostTrack)

		tracks.GET("/:id/comments", optionalAuth, h.ListComments)
		tracks.POST("/:id/comments", requireAuth, h.CreateComment)
	}

	comments := api.Group("/comments", requireAuth)
	{
		comments.PATCH("/:id", h.UpdateComment)
		comments.DELETE("/:id", h.DeleteComment)
	}

	users := api.Group("/users", optionalAuth)
	{
		users.GET("/:username", h.GetProfile)
		users.GET("/:username/tracks", h.ListUserTracks)
		users.GET("/:username/likes", h.ListLikedTracks)
		users.GET("/:username/playlists", h.ListUserPlaylists)
		users.GET("/:username/followers", h.ListFollowers)
		users.GET("/:username/following", h.ListFollowing)
		users.POST("/:username/follow", requireAuth, h.FollowUser)
		users.DELETE("/:username/follow", requireAuth, h.UnfollowUser)
	}

	feed := api.Group("/feed")
	{
		feed.GET("", requireAuth, h.GetFeed)
		feed.GET("/trending", middleware.ResponseCache(h.cache, cache.TrendingKey, trendingCacheTTL), h.GetTrending)
	}

	playlists := api.Group("/playlists")
	{
		playlists.POST("", requireAuth, h.CreatePlaylist)
		playlists.GET("/:id", optionalAuth, h.GetPlaylist)
		playlists.PATCH("/:id", requireAuth, h.UpdatePlaylist)
		playlists.DELETE("/:id", requireAuth, h.DeletePlaylist)
		playlists.POST("/:id/tracks", requireAuth, h.AddPlaylistTrack)
		playlists.DELETE("/:id/tracks/:trackId", requireAuth, h.RemovePlaylistTrack)
		playlists.PUT("/:id/tracks/:trackId/position", requireAuth, h.MovePlaylistTrack)
	}

	notificationsGroup := api.Group("/notifications", requireAuth)
	{
		notificationsGroup.GET("", h.GetNotifications)
		notificationsGroup.GET("/unread-count", h.GetUnreadCount)
		notificationsGroup.POST("/read", h.MarkAllNotificationsRead)
		notificationsGroup.POST("/:id/read", h.MarkNotificationRead)
		notificationsGroup.DELETE("/:id", h.DeleteNotification)
	}

	// the websocket handler authenticates from the token query parameter
	api.GET("/ws", h.HandleWebSocket)

	api.GET("/search", middleware.RateLimit(h.cache, middleware.SearchRateLimitConfig()), h.Search)
	api.POST("/reports", requireAuth, h.CreateReport)

	admin := api.Group("/admin", requireAuth, middleware.RequireAdmin())
	{
		admin.GET("/tracks", h.ModerationQueue)
		admin.POST("/tracks/:id/approve", h.ApproveTrack)
		admin.POST("/tracks/:id/reject", h.RejectTrack)
		admin.POST("/tracks/:id/retranscode", h.RetranscodeTrack)

		admin.GET("/reports", h.ListReports)
		admin.POST("/reports/:id/resolve", h.ResolveReport)
		admin.POST("/reports/:id/dismiss", h.DismissReport)

		admin.GET("/users", h.ListUsers)
		admin.POST("/users/:id/ban", h.BanUser)
		admin.DELETE("/users/:id/ban", h.UnbanUser)
		admin.POST("/users/:id/promote", h.PromoteUser)
		admin.POST("/users/:id/demote", h.DemoteUser)

		admin.GET("/stats", h.GetStats)
		admin.GET("/ws/stats", h.WebSocketStats)
	}
}
