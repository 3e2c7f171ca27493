package database

import (
	"context"
	"fmt"
	"time"

	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Initialize opens the configured database and stores it in DB
func Initialize(cfg config.DatabaseConfig, verbose bool) error {
	db, err := Open(cfg, verbose)
	if err != nil {
		return err
	}
	DB = db
	logger.Log.Info("Database connected", zap.String("driver", cfg.Driver))
	return nil
}

// Open creates and configures a connection without touching the global
func Open(cfg config.DatabaseConfig, verbose bool) (*gorm.DB, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if verbose {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	gormCfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqliteDSN(cfg.SQLitePath)), gormCfg)
	default:
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
		logger.Log.Warn("Failed to register GORM tracing plugin", zap.Error(err))
	}
	return db, nil
}

// OpenSQLite opens a migrated SQLite database at path; used by tests and the CLI
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", SQLitePath: path}, false)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "soundbay.db"
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Migrate runs auto-migration for all models
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pg_trgm"`).Error; err != nil {
			logger.Log.Warn("Could not create pg_trgm extension", zap.Error(err))
		}
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	createIndexes(db)
	logger.Log.Info("Database migrations completed")
	return nil
}

// createIndexes adds indexes gorm tags cannot express. Failures are logged
// and skipped; they only cost performance.
func createIndexes(db *gorm.DB) {
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_user_created ON tracks (user_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tracks_feed ON tracks (status, processing_status, is_public, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_comments_track_created ON comments (track_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications (recipient_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_history_user_played ON listening_history (user_id, played_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports (status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_position ON playlist_tracks (playlist_id, position)",
	}
	if db.Dialector.Name() == "postgres" {
		statements = append(statements,
			"CREATE INDEX IF NOT EXISTS idx_users_username_trgm ON users USING gin (username gin_trgm_ops)",
			"CREATE INDEX IF NOT EXISTS idx_tracks_title_trgm ON tracks USING gin (title gin_trgm_ops)",
			"CREATE INDEX IF NOT EXISTS idx_tracks_tags ON tracks USING gin (tags)",
			"CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (recipient_id) WHERE read_at IS NULL",
		)
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Log.Warn("Failed to create index", zap.String("sql", stmt), zap.Error(err))
		}
	}
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}
