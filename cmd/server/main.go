package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/kernel"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"github.com/soundbay/backend/internal/middleware"
	"github.com/soundbay/backend/internal/storage"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "soundbay server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Initialize(cfg.Log.Level, cfg.Log.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Log.Info("Soundbay server starting",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.Int("transcode_workers", cfg.Audio.Workers))

	metrics.Initialize()

	ctx := context.Background()
	k, err := kernel.Build(ctx, cfg)
	if err != nil {
		return err
	}
	if err := k.Validate(); err != nil {
		_ = k.Cleanup(ctx)
		return err
	}
	k.Start(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(cfg)
	k.Handlers().RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case serveErr = <-serverErrors:
		logger.Log.Error("Server failed", zap.Error(serveErr))
	case sig := <-quit:
		logger.Log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// stop taking requests first; the kernel then drains the hub, the
	// transcode pool and the background loops before closing the database
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := k.Cleanup(shutdownCtx); err != nil {
		logger.Log.Warn("Shutdown finished with errors", zap.Error(err))
	}

	logger.Log.Info("Server exited")
	return serveErr
}

func newRouter(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/api/v1/ws", "/metrics", storage.MediaPath}),
	))

	r.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName))
	r.Use(middleware.SpanEnrichmentMiddleware())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	return r
}
